// Package nvcn issues and consumes the single-use freshness tokens (NVCN)
// that authorize privileged Secure Control Protocol commands.
//
// At most one token is issued at a time. Issuing replaces any outstanding
// token, and a token authorizes exactly one command.
package nvcn

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"
)

// TokenSize is the number of random bytes in a token.
const TokenSize = 16

// Freshness errors.
var (
	ErrFreshness = errors.New("nvcn rejected")
	ErrNotIssued = fmt.Errorf("%w: no token issued", ErrFreshness)
	ErrMismatch  = fmt.Errorf("%w: token mismatch", ErrFreshness)
)

// State is the lifecycle state of the current token.
type State uint8

const (
	// StateUnissued indicates no token has been issued since boot.
	StateUnissued State = iota

	// StateIssued indicates a token is outstanding.
	StateIssued

	// StateConsumed indicates the last token authorized a command.
	StateConsumed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateUnissued:
		return "UNISSUED"
	case StateIssued:
		return "ISSUED"
	case StateConsumed:
		return "CONSUMED"
	default:
		return "UNKNOWN"
	}
}

// Authority owns the token state. Issue and Consume are atomic with respect
// to each other.
type Authority struct {
	mu    sync.Mutex
	state State
	value string
	rand  io.Reader

	onStateChange func(oldState, newState State)
}

// NewAuthority creates an authority in the Unissued state.
func NewAuthority() *Authority {
	return &Authority{rand: rand.Reader}
}

// OnStateChange registers a callback invoked after each transition.
// The callback runs with the authority's lock held and must not call back.
func (a *Authority) OnStateChange(fn func(oldState, newState State)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onStateChange = fn
}

// State returns the current state.
func (a *Authority) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Issue generates a fresh token, replacing any outstanding one.
func (a *Authority) Issue() (string, error) {
	buf := make([]byte, TokenSize)
	if _, err := io.ReadFull(a.rand, buf); err != nil {
		return "", fmt.Errorf("generate nvcn: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.value = hex.EncodeToString(buf)
	a.transition(StateIssued)
	return a.value, nil
}

// Consume checks candidate against the outstanding token and, if it
// matches, marks the token consumed. A mismatch leaves the token issued.
func (a *Authority) Consume(candidate string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != StateIssued {
		return ErrNotIssued
	}
	if subtle.ConstantTimeCompare([]byte(candidate), []byte(a.value)) != 1 {
		return ErrMismatch
	}
	a.value = ""
	a.transition(StateConsumed)
	return nil
}

// Reset discards any outstanding token.
func (a *Authority) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.value = ""
	a.transition(StateUnissued)
}

func (a *Authority) transition(newState State) {
	old := a.state
	a.state = newState
	if a.onStateChange != nil && old != newState {
		a.onStateChange(old, newState)
	}
}
