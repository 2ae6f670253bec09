// Package protocol implements the device side of the Secure Control
// Protocol.
//
// A Dispatcher owns the protocol state of one device: its identity, the
// persisted password record, the NVCN authority, the network associator and
// the registered control and measure actions. Every request is processed to
// completion under a single lock.
//
// # Request flow
//
// An incoming Envelope is opened with the current password, parsed into a
// Command, checked against the device ID and, for privileged commands, the
// issued NVCN. The handler result is serialized to JSON and sealed with the
// password in effect after the handler ran. The NVCN fetch response is the
// only unsealed response.
//
// # Failure model
//
// Decryption, grammar, identity, freshness and unknown message type failures
// all collapse to a single malformed-payload Result. The cause is kept in
// Result.Err for logging only. A failed Wi-Fi association is not a protocol
// failure: it produces a sealed response with result "error".
//
// # Post actions
//
// Restart and reset responses carry a PostAction. The caller executes it only
// after the response bytes have been flushed.
package protocol
