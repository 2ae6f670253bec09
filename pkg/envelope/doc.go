// Package envelope implements the encrypted request envelope and the
// authenticated response wrapper of the Secure Control Protocol.
//
// # Requests
//
// A request travels as four string arguments:
//
//	nonce          base64, the AEAD nonce (12 bytes)
//	payload        base64, the ciphertext without tag
//	payloadLength  decimal, the ciphertext length in bytes
//	mac            base64, the detached AEAD tag (16 bytes)
//
// The key is derived from the current device password. Open reports every
// failure (encoding, length, tag, decryption) as the single error ErrOpen so
// that a network peer cannot tell the causes apart.
//
// # Responses
//
// Responses are JSON documents. Every response except the NVCN fetch
// response is wrapped as
//
//	{"response":"<base64 document>","hmac":"<base64 HMAC-SHA512>"}
//
// with the HMAC keyed from the same password.
package envelope
