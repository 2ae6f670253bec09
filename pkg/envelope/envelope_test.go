package envelope

import (
	"encoding/base64"
	"encoding/json"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPassword = "1234567890123456"

func flipBit(t *testing.T, b64 string, index int) string {
	t.Helper()
	raw, err := base64.StdEncoding.DecodeString(b64)
	require.NoError(t, err)
	raw[index%len(raw)] ^= 0x01
	return base64.StdEncoding.EncodeToString(raw)
}

func TestCodecRoundTrip(t *testing.T) {
	codec := NewCodec(nil)
	plaintext := []byte("a1b2:control:dev:nvcn:toggle")

	env, err := codec.Encrypt(plaintext, testPassword)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(len(plaintext)), env.PayloadLength)

	got, err := codec.Open(env, testPassword)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestCodecOpenRejectsTampering(t *testing.T) {
	codec := NewCodec(nil)
	env, err := codec.Encrypt([]byte("salt:security-fetch-nvcn:dev"), testPassword)
	require.NoError(t, err)

	t.Run("MACBitFlip", func(t *testing.T) {
		for i := 0; i < 16; i++ {
			bad := env
			bad.MAC = flipBit(t, env.MAC, i)
			_, err := codec.Open(bad, testPassword)
			assert.ErrorIs(t, err, ErrOpen)
		}
	})

	t.Run("CiphertextBitFlip", func(t *testing.T) {
		bad := env
		bad.Payload = flipBit(t, env.Payload, 3)
		_, err := codec.Open(bad, testPassword)
		assert.ErrorIs(t, err, ErrOpen)
	})

	t.Run("NonceBitFlip", func(t *testing.T) {
		bad := env
		bad.Nonce = flipBit(t, env.Nonce, 0)
		_, err := codec.Open(bad, testPassword)
		assert.ErrorIs(t, err, ErrOpen)
	})

	t.Run("LengthMismatch", func(t *testing.T) {
		bad := env
		n, _ := strconv.Atoi(env.PayloadLength)
		bad.PayloadLength = strconv.Itoa(n + 1)
		_, err := codec.Open(bad, testPassword)
		assert.ErrorIs(t, err, ErrOpen)
	})

	t.Run("LengthNotNumeric", func(t *testing.T) {
		bad := env
		bad.PayloadLength = "twelve"
		_, err := codec.Open(bad, testPassword)
		assert.ErrorIs(t, err, ErrOpen)
	})

	t.Run("BadBase64", func(t *testing.T) {
		bad := env
		bad.Payload = "!!not base64!!"
		_, err := codec.Open(bad, testPassword)
		assert.ErrorIs(t, err, ErrOpen)
	})

	t.Run("WrongPassword", func(t *testing.T) {
		_, err := codec.Open(env, "6543210987654321")
		assert.ErrorIs(t, err, ErrOpen)
	})

	t.Run("EmptyPassword", func(t *testing.T) {
		_, err := codec.Open(env, "")
		assert.ErrorIs(t, err, ErrOpen)
	})
}

func TestCodecOpenEmptyPlaintextIsNotNil(t *testing.T) {
	codec := NewCodec(nil)
	env, err := codec.Encrypt(nil, testPassword)
	require.NoError(t, err)

	got, err := codec.Open(env, testPassword)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestCodecSeal(t *testing.T) {
	codec := NewCodec(nil)
	response := []byte(`{"type":"control","result":"success"}`)

	sealed, err := codec.Seal(response, testPassword)
	require.NoError(t, err)

	var s Sealed
	require.NoError(t, json.Unmarshal(sealed, &s))
	assert.Equal(t, base64.StdEncoding.EncodeToString(response), s.Response)

	got, err := codec.VerifySealed(sealed, testPassword)
	require.NoError(t, err)
	assert.Equal(t, response, got)

	_, err = codec.VerifySealed(sealed, "6543210987654321")
	assert.ErrorIs(t, err, ErrSealedResponse)

	s.HMAC = flipBit(t, s.HMAC, 10)
	tampered, _ := json.Marshal(s)
	_, err = codec.VerifySealed(tampered, testPassword)
	assert.ErrorIs(t, err, ErrSealedResponse)
}

func TestDeriveKeySeparatesPurposes(t *testing.T) {
	c := ChaCha20Poly1305{}
	req, err := c.DeriveKey(testPassword, PurposeRequest)
	require.NoError(t, err)
	resp, err := c.DeriveKey(testPassword, PurposeResponse)
	require.NoError(t, err)

	assert.Len(t, req, 32)
	assert.NotEqual(t, req, resp)

	_, err = c.DeriveKey("", PurposeRequest)
	assert.ErrorIs(t, err, ErrEmptyPassword)
}
