package protocol

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/scp-protocol/scp-go/pkg/command"
	"github.com/scp-protocol/scp-go/pkg/nvcn"
)

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{fmt.Errorf("%w: bad tag", ErrDecryption), "decryption"},
		{command.ErrMissingField, "grammar"},
		{command.ErrEmptySalt, "grammar"},
		{ErrPasswordLength, "grammar"},
		{command.ErrUnknownMessageType, "unknown-type"},
		{ErrUnknownAction, "unknown-action"},
		{ErrIdentityMismatch, "identity"},
		{nvcn.ErrMismatch, "freshness"},
		{nvcn.ErrNotIssued, "freshness"},
		{ErrAssociation, "association"},
		{ErrStorage, "storage"},
		{ErrInvalidReading, "reading"},
		{errors.New("boom"), "internal"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Kind(tt.err), "Kind(%v)", tt.err)
	}
}

func TestPostActionString(t *testing.T) {
	assert.Equal(t, "NONE", None.String())
	assert.Equal(t, "RESTART", Restart.String())
	assert.Equal(t, "RESET_AND_RESTART", ResetAndRestart.String())
	assert.Equal(t, "UNKNOWN", PostAction(7).String())
}
