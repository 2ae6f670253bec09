package envelope

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Key derivation purposes.
const (
	// PurposeRequest derives the AEAD key for request envelopes.
	PurposeRequest = "scp-request"

	// PurposeResponse derives the HMAC key for sealed responses.
	PurposeResponse = "scp-response"
)

// ErrEmptyPassword is returned when a key is derived from an empty password.
var ErrEmptyPassword = errors.New("empty password")

// Cipher is the symmetric primitive the codec depends on.
type Cipher interface {
	// DeriveKey derives key material for the given purpose from a password.
	DeriveKey(password, purpose string) ([]byte, error)

	// NonceSize is the required nonce length in bytes.
	NonceSize() int

	// TagSize is the length of the detached authentication tag in bytes.
	TagSize() int

	// Seal encrypts plaintext and returns ciphertext and detached tag.
	Seal(key, nonce, plaintext []byte) (ciphertext, tag []byte, err error)

	// Open authenticates and decrypts ciphertext with its detached tag.
	Open(key, nonce, ciphertext, tag []byte) ([]byte, error)

	// Sum computes the response authentication tag over message.
	Sum(key, message []byte) []byte
}

// ChaCha20Poly1305 is the default Cipher: HKDF-SHA256 key derivation,
// ChaCha20-Poly1305 for requests and HMAC-SHA512 for responses.
type ChaCha20Poly1305 struct{}

// DeriveKey derives a 32-byte key with HKDF-SHA256. The purpose is used as
// the HKDF info so request and response keys never coincide.
func (ChaCha20Poly1305) DeriveKey(password, purpose string) ([]byte, error) {
	if password == "" {
		return nil, ErrEmptyPassword
	}
	key := make([]byte, chacha20poly1305.KeySize)
	r := hkdf.New(sha256.New, []byte(password), nil, []byte(purpose))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}

// NonceSize returns 12.
func (ChaCha20Poly1305) NonceSize() int { return chacha20poly1305.NonceSize }

// TagSize returns 16.
func (ChaCha20Poly1305) TagSize() int { return chacha20poly1305.Overhead }

// Seal encrypts plaintext and splits off the tag.
func (c ChaCha20Poly1305) Seal(key, nonce, plaintext []byte) ([]byte, []byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, nil, err
	}
	if len(nonce) != aead.NonceSize() {
		return nil, nil, fmt.Errorf("nonce must be %d bytes, got %d", aead.NonceSize(), len(nonce))
	}
	out := aead.Seal(nil, nonce, plaintext, nil)
	split := len(out) - aead.Overhead()
	return out[:split], out[split:], nil
}

// Open joins ciphertext and tag and decrypts.
func (c ChaCha20Poly1305) Open(key, nonce, ciphertext, tag []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != aead.NonceSize() || len(tag) != aead.Overhead() {
		return nil, errors.New("invalid nonce or tag size")
	}
	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)
	return aead.Open(nil, nonce, sealed, nil)
}

// Sum returns HMAC-SHA512(key, message).
func (ChaCha20Poly1305) Sum(key, message []byte) []byte {
	mac := hmac.New(sha512.New, key)
	mac.Write(message)
	return mac.Sum(nil)
}

// Compile-time interface satisfaction check.
var _ Cipher = ChaCha20Poly1305{}
