package protocol

import (
	"net/http"

	"github.com/scp-protocol/scp-go/pkg/command"
	"github.com/scp-protocol/scp-go/pkg/discovery"
)

// Content types written by the dispatcher.
const (
	ContentTypeJSON = "application/json"
	ContentTypeText = "text/plain"
)

// TypeDiscoverHello labels discovery results.
const TypeDiscoverHello command.MessageType = discovery.HelloPayload

// PostAction is work the transport runs after the response was flushed.
type PostAction uint8

const (
	// None means no follow-up.
	None PostAction = iota

	// Restart reboots the device.
	Restart

	// ResetAndRestart erases persisted configuration, then reboots.
	ResetAndRestart
)

// String returns the post action name.
func (a PostAction) String() string {
	switch a {
	case None:
		return "NONE"
	case Restart:
		return "RESTART"
	case ResetAndRestart:
		return "RESET_AND_RESTART"
	default:
		return "UNKNOWN"
	}
}

// Result is the outcome of one request.
type Result struct {
	// Status is the HTTP status code.
	Status int

	// ContentType is the MIME type of Body.
	ContentType string

	// Body is the response body. Empty for malformed results; the transport
	// renders the diagnostic listing itself since only it knows the
	// request arguments.
	Body []byte

	// After is run by the transport once Body has been flushed.
	After PostAction

	// MessageType is the parsed command type, if parsing got that far.
	MessageType command.MessageType

	// Sealed reports whether Body is an authenticated response.
	Sealed bool

	// Action is the control or measure action the request named.
	Action string

	// Outcome is the result field of the response (done, success, error).
	Outcome string

	// Err is the failure cause of a malformed result, for logging only.
	Err error
}

// Malformed reports whether the request collapsed to the malformed-payload
// response.
func (r Result) Malformed() bool {
	return r.Err != nil
}

// withOutcome records the action and response result for logging. Malformed
// results are returned unchanged.
func (r Result) withOutcome(action, outcome string) Result {
	if r.Malformed() {
		return r
	}
	r.Action = action
	r.Outcome = outcome
	return r
}

func malformed(t command.MessageType, err error) Result {
	return Result{
		Status:      http.StatusNotFound,
		ContentType: ContentTypeText,
		MessageType: t,
		Err:         err,
	}
}

func jsonResult(t command.MessageType, body []byte, sealed bool) Result {
	return Result{
		Status:      http.StatusOK,
		ContentType: ContentTypeJSON,
		Body:        body,
		MessageType: t,
		Sealed:      sealed,
	}
}
