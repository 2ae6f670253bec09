package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommands(t *testing.T) {
	h := Header{Salt: "s4lt", DeviceID: "dev1"}
	g := Guard{NVCN: "n0nce"}

	tests := []struct {
		name      string
		plaintext string
		want      Command
	}{
		{"FetchNVCN", "s4lt:security-fetch-nvcn:dev1", FetchNVCN{h}},
		{"FetchNVCNTrailingSeparator", "s4lt:security-fetch-nvcn:dev1:", FetchNVCN{h}},
		{"PasswordChange", "s4lt:security-pw-change:dev1:n0nce:abcdefghijklmnop", PasswordChange{h, g, "abcdefghijklmnop"}},
		{"Rename", "s4lt:security-rename:dev1:n0nce:Kitchen Lamp", Rename{h, g, "Kitchen Lamp"}},
		{"WifiConfig", "s4lt:security-wifi-config:dev1:n0nce:home:secretkey", WifiConfig{h, g, "home", "secretkey"}},
		{"ResetToDefault", "s4lt:security-reset-to-default:dev1:n0nce", ResetToDefault{h, g}},
		{"Restart", "s4lt:security-restart:dev1:n0nce:", Restart{h, g}},
		{"Control", "s4lt:control:dev1:n0nce:toggle", Control{h, g, "toggle"}},
		{"Measure", "s4lt:measure:dev1:n0nce:temperature", Measure{h, g, "temperature"}},
		{"TrailingFieldsIgnored", "s4lt:control:dev1:n0nce:toggle:extra:stuff", Control{h, g, "toggle"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse([]byte(tt.plaintext))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name      string
		plaintext string
		want      error
	}{
		{"Empty", "", ErrMissingField},
		{"SaltOnly", "s4lt", ErrMissingField},
		{"EmptySalt", ":control:dev1:n0nce:toggle", ErrEmptySalt},
		{"NoDeviceID", "s4lt:control", ErrMissingField},
		{"UnterminatedDeviceID", "s4lt:control:dev1", ErrMissingField},
		{"NoNVCN", "s4lt:control:dev1:", ErrMissingField},
		{"WifiMissingKey", "s4lt:security-wifi-config:dev1:n0nce:home", ErrMissingField},
		{"UnknownType", "s4lt:bogus:dev1:n0nce:", ErrUnknownMessageType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.plaintext))
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, ErrGrammar)
		})
	}
}

func TestPrivilegedCommands(t *testing.T) {
	cmd, err := Parse([]byte("s:control:d:n:a"))
	require.NoError(t, err)
	p, ok := cmd.(Privileged)
	require.True(t, ok)
	assert.Equal(t, "n", p.Freshness())

	cmd, err = Parse([]byte("s:security-fetch-nvcn:d"))
	require.NoError(t, err)
	_, ok = cmd.(Privileged)
	assert.False(t, ok)
}

func TestFormat(t *testing.T) {
	h := Header{Salt: "s4lt", DeviceID: "dev1"}
	g := Guard{NVCN: "n0nce"}

	got, err := Format(WifiConfig{h, g, "home", "secretkey"})
	require.NoError(t, err)
	assert.Equal(t, "s4lt:security-wifi-config:dev1:n0nce:home:secretkey", got)

	got, err = Format(FetchNVCN{h})
	require.NoError(t, err)
	assert.Equal(t, "s4lt:security-fetch-nvcn:dev1", got)

	// Formatted commands parse back to themselves.
	cmds := []Command{
		FetchNVCN{h},
		PasswordChange{h, g, "abcdefghijklmnop"},
		Rename{h, g, "Lamp"},
		WifiConfig{h, g, "home", "secretkey"},
		ResetToDefault{h, g},
		Restart{h, g},
		Control{h, g, "on"},
		Measure{h, g, "temp"},
	}
	for _, c := range cmds {
		s, err := Format(c)
		require.NoError(t, err)
		back, err := Parse([]byte(s))
		require.NoError(t, err)
		assert.Equal(t, c, back)
	}
}

func TestFormatRejectsSeparator(t *testing.T) {
	h := Header{Salt: "s4lt", DeviceID: "dev1"}

	_, err := Format(WifiConfig{h, Guard{"n"}, "my:net", "key"})
	assert.ErrorIs(t, err, ErrSeparatorInField)

	_, err = Format(Rename{Header{Salt: "a:b", DeviceID: "d"}, Guard{"n"}, "x"})
	assert.ErrorIs(t, err, ErrSeparatorInField)

	_, err = Format(Control{Header{DeviceID: "d"}, Guard{"n"}, "x"})
	assert.ErrorIs(t, err, ErrEmptySalt)
}

func TestNewSalt(t *testing.T) {
	a, err := NewSalt()
	require.NoError(t, err)
	b, err := NewSalt()
	require.NoError(t, err)

	assert.Len(t, a, 16)
	assert.NotEqual(t, a, b)
}
