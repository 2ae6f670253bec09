package envelope

import (
	"crypto/hmac"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Codec errors.
var (
	// ErrOpen is the only error Open returns. It intentionally carries no cause.
	ErrOpen = errors.New("envelope could not be opened")

	// ErrSealedResponse is returned when a sealed response fails verification.
	ErrSealedResponse = errors.New("sealed response verification failed")
)

// Envelope is a request as received on the wire.
type Envelope struct {
	Nonce         string
	Payload       string
	PayloadLength string
	MAC           string
}

// Sealed is the JSON wrapper of an authenticated response.
type Sealed struct {
	Response string `json:"response"`
	HMAC     string `json:"hmac"`
}

// Codec opens request envelopes and seals responses.
type Codec struct {
	cipher Cipher
}

// NewCodec creates a codec around the given cipher. A nil cipher selects
// ChaCha20Poly1305.
func NewCodec(c Cipher) *Codec {
	if c == nil {
		c = ChaCha20Poly1305{}
	}
	return &Codec{cipher: c}
}

// Open decrypts and authenticates env with a key derived from password.
func (c *Codec) Open(env Envelope, password string) ([]byte, error) {
	nonce, err := base64.StdEncoding.DecodeString(env.Nonce)
	if err != nil || len(nonce) != c.cipher.NonceSize() {
		return nil, ErrOpen
	}
	ciphertext, err := base64.StdEncoding.DecodeString(env.Payload)
	if err != nil {
		return nil, ErrOpen
	}
	declared, err := strconv.Atoi(env.PayloadLength)
	if err != nil || declared != len(ciphertext) {
		return nil, ErrOpen
	}
	tag, err := base64.StdEncoding.DecodeString(env.MAC)
	if err != nil || len(tag) != c.cipher.TagSize() {
		return nil, ErrOpen
	}

	key, err := c.cipher.DeriveKey(password, PurposeRequest)
	if err != nil {
		return nil, ErrOpen
	}
	plaintext, err := c.cipher.Open(key, nonce, ciphertext, tag)
	if err != nil {
		return nil, ErrOpen
	}
	if plaintext == nil {
		plaintext = []byte{}
	}
	return plaintext, nil
}

// Encrypt builds an envelope for plaintext under password using a fresh
// random nonce. This is the client side of Open.
func (c *Codec) Encrypt(plaintext []byte, password string) (Envelope, error) {
	key, err := c.cipher.DeriveKey(password, PurposeRequest)
	if err != nil {
		return Envelope{}, err
	}
	nonce := make([]byte, c.cipher.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return Envelope{}, fmt.Errorf("generate nonce: %w", err)
	}
	ciphertext, tag, err := c.cipher.Seal(key, nonce, plaintext)
	if err != nil {
		return Envelope{}, fmt.Errorf("encrypt payload: %w", err)
	}
	return Envelope{
		Nonce:         base64.StdEncoding.EncodeToString(nonce),
		Payload:       base64.StdEncoding.EncodeToString(ciphertext),
		PayloadLength: strconv.Itoa(len(ciphertext)),
		MAC:           base64.StdEncoding.EncodeToString(tag),
	}, nil
}

// Seal wraps response with an HMAC keyed from password.
func (c *Codec) Seal(response []byte, password string) ([]byte, error) {
	key, err := c.cipher.DeriveKey(password, PurposeResponse)
	if err != nil {
		return nil, fmt.Errorf("seal response: %w", err)
	}
	return json.Marshal(Sealed{
		Response: base64.StdEncoding.EncodeToString(response),
		HMAC:     base64.StdEncoding.EncodeToString(c.cipher.Sum(key, response)),
	})
}

// VerifySealed checks a sealed response and returns the inner document.
func (c *Codec) VerifySealed(sealed []byte, password string) ([]byte, error) {
	var s Sealed
	if err := json.Unmarshal(sealed, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSealedResponse, err)
	}
	response, err := base64.StdEncoding.DecodeString(s.Response)
	if err != nil {
		return nil, fmt.Errorf("%w: response encoding", ErrSealedResponse)
	}
	tag, err := base64.StdEncoding.DecodeString(s.HMAC)
	if err != nil {
		return nil, fmt.Errorf("%w: hmac encoding", ErrSealedResponse)
	}
	key, err := c.cipher.DeriveKey(password, PurposeResponse)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSealedResponse, err)
	}
	if !hmac.Equal(tag, c.cipher.Sum(key, response)) {
		return nil, fmt.Errorf("%w: hmac mismatch", ErrSealedResponse)
	}
	return response, nil
}
