package protocol

import (
	"errors"
	"fmt"

	"github.com/scp-protocol/scp-go/pkg/command"
	"github.com/scp-protocol/scp-go/pkg/nvcn"
	"github.com/scp-protocol/scp-go/pkg/persistence"
)

// Failure classes. All of them except ErrAssociation produce the
// malformed-payload result.
var (
	// ErrDecryption is returned when the envelope cannot be opened.
	ErrDecryption = errors.New("decryption failure")

	// ErrGrammar is returned when the plaintext is not a valid command.
	ErrGrammar = command.ErrGrammar

	// ErrUnknownMessageType is returned for message types the device does
	// not implement. It also matches ErrGrammar.
	ErrUnknownMessageType = command.ErrUnknownMessageType

	// ErrIdentityMismatch is returned when the command names another device.
	ErrIdentityMismatch = errors.New("device id mismatch")

	// ErrFreshness is returned when the NVCN is absent, stale or consumed.
	ErrFreshness = nvcn.ErrFreshness

	// ErrAssociation is returned when the Wi-Fi attempt budget is exhausted.
	ErrAssociation = errors.New("association failure")

	// ErrUnknownAction is returned for actions outside the device catalog
	// or without a registered handler.
	ErrUnknownAction = fmt.Errorf("%w: unknown action", ErrGrammar)

	// ErrPasswordLength is returned for new passwords of the wrong length.
	ErrPasswordLength = fmt.Errorf("%w: %w", ErrGrammar, persistence.ErrPasswordLength)

	// ErrStorage is returned when persisting a change failed.
	ErrStorage = errors.New("storage failure")

	// ErrInvalidReading is returned when a measure callback yields NaN or
	// an infinity, which the JSON response cannot carry.
	ErrInvalidReading = errors.New("non-finite measurement")
)

// Kind returns a short class name for err, used in log events.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDecryption):
		return "decryption"
	case errors.Is(err, ErrUnknownMessageType):
		return "unknown-type"
	case errors.Is(err, ErrUnknownAction):
		return "unknown-action"
	case errors.Is(err, ErrGrammar):
		return "grammar"
	case errors.Is(err, ErrIdentityMismatch):
		return "identity"
	case errors.Is(err, ErrFreshness):
		return "freshness"
	case errors.Is(err, ErrAssociation):
		return "association"
	case errors.Is(err, ErrStorage):
		return "storage"
	case errors.Is(err, ErrInvalidReading):
		return "reading"
	default:
		return "internal"
	}
}
