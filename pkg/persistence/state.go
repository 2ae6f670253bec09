package persistence

import (
	"sync"
	"time"
)

// StateVersion is the current version of the persisted state format.
const StateVersion = 1

// PasswordRecord is the shared secret and its bookkeeping.
type PasswordRecord struct {
	// Password is the shared secret all keys are derived from.
	Password string `cbor:"1,keyasint"`

	// Version increments once per successful password change.
	Version uint32 `cbor:"2,keyasint"`

	// IsDefault is true until the operator changes the password.
	IsDefault bool `cbor:"3,keyasint"`
}

// WifiCredentials are the operator network credentials.
type WifiCredentials struct {
	SSID         string `cbor:"1,keyasint,omitempty"`
	PreSharedKey string `cbor:"2,keyasint,omitempty"`

	// Configured is set once credentials have been verified and stored.
	Configured bool `cbor:"3,keyasint"`
}

// State is the complete persisted device configuration.
type State struct {
	// Version is the state format version.
	Version int `cbor:"1,keyasint"`

	// SavedAt is when the state was last saved.
	SavedAt time.Time `cbor:"2,keyasint"`

	// PasswordSet records that a password was written at least once.
	PasswordSet bool `cbor:"3,keyasint"`

	Password PasswordRecord `cbor:"4,keyasint"`

	DeviceID   string `cbor:"5,keyasint,omitempty"`
	DeviceName string `cbor:"6,keyasint,omitempty"`

	Wifi WifiCredentials `cbor:"7,keyasint"`
}

// Backend persists a State as a whole.
type Backend interface {
	// Load returns the stored state, or nil, nil if nothing is stored.
	Load() (*State, error)

	// Save replaces the stored state.
	Save(state *State) error

	// Clear removes the stored state.
	Clear() error
}

// MemoryBackend keeps state in memory. It is lost when the process exits.
type MemoryBackend struct {
	mu    sync.Mutex
	state *State
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

// Load returns a copy of the stored state.
func (b *MemoryBackend) Load() (*State, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == nil {
		return nil, nil
	}
	cp := *b.state
	return &cp, nil
}

// Save stores a copy of state.
func (b *MemoryBackend) Save(state *State) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := *state
	cp.Version = StateVersion
	if cp.SavedAt.IsZero() {
		cp.SavedAt = time.Now()
	}
	b.state = &cp
	return nil
}

// Clear drops the stored state.
func (b *MemoryBackend) Clear() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = nil
	return nil
}

// Compile-time interface satisfaction check.
var _ Backend = (*MemoryBackend)(nil)
