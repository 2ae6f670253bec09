package persistence

import (
	"errors"
	"fmt"
	"sync"
)

// DefaultPassword is the factory password.
const DefaultPassword = "1234567890123456"

// PasswordLength is the required length of every password.
const PasswordLength = len(DefaultPassword)

// ErrPasswordLength is returned for a password of the wrong length.
var ErrPasswordLength = fmt.Errorf("password must be %d characters", PasswordLength)

// ErrDeviceIDSet is returned when the device ID would be overwritten.
var ErrDeviceIDSet = errors.New("device ID already set")

// Store provides the granular accessors the protocol uses. Every mutation
// is written through to the backend before it returns.
type Store struct {
	mu      sync.Mutex
	backend Backend
	state   *State
}

// NewStore loads the current state from backend.
func NewStore(backend Backend) (*Store, error) {
	state, err := backend.Load()
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	if state == nil {
		state = &State{}
	}
	return &Store{backend: backend, state: state}, nil
}

// update applies fn to a copy of the state and persists it. The cached state
// only changes when the backend accepted the write.
func (s *Store) update(fn func(*State) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := *s.state
	if err := fn(&next); err != nil {
		return err
	}
	if err := s.backend.Save(&next); err != nil {
		return fmt.Errorf("persist state: %w", err)
	}
	s.state = &next
	return nil
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.state
}

// PasswordSet reports whether a password was ever written.
func (s *Store) PasswordSet() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.PasswordSet
}

// Password returns the current password record.
func (s *Store) Password() PasswordRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Password
}

// SetDefaultPassword writes the factory password and marks it as default.
// The version counter is kept so clients can still detect staleness.
func (s *Store) SetDefaultPassword() error {
	return s.update(func(st *State) error {
		st.PasswordSet = true
		st.Password.Password = DefaultPassword
		st.Password.IsDefault = true
		return nil
	})
}

// ChangePassword stores a new password, increments the version by exactly
// one and clears the default flag. It returns the new record.
func (s *Store) ChangePassword(password string) (PasswordRecord, error) {
	if len(password) != PasswordLength {
		return PasswordRecord{}, ErrPasswordLength
	}
	var rec PasswordRecord
	err := s.update(func(st *State) error {
		st.PasswordSet = true
		st.Password = PasswordRecord{
			Password:  password,
			Version:   st.Password.Version + 1,
			IsDefault: false,
		}
		rec = st.Password
		return nil
	})
	return rec, err
}

// DeviceID returns the device ID, or "" if none was generated yet.
func (s *Store) DeviceID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.DeviceID
}

// SetDeviceID writes the device ID. It can only be written once.
func (s *Store) SetDeviceID(id string) error {
	return s.update(func(st *State) error {
		if st.DeviceID != "" {
			return ErrDeviceIDSet
		}
		st.DeviceID = id
		return nil
	})
}

// DeviceName returns the human-readable name.
func (s *Store) DeviceName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.DeviceName
}

// SetDeviceName writes the human-readable name.
func (s *Store) SetDeviceName(name string) error {
	return s.update(func(st *State) error {
		st.DeviceName = name
		return nil
	})
}

// Wifi returns the stored operator network credentials.
func (s *Store) Wifi() WifiCredentials {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Wifi
}

// SetWifi stores verified credentials and sets the configured flag.
func (s *Store) SetWifi(ssid, psk string) error {
	return s.update(func(st *State) error {
		st.Wifi = WifiCredentials{SSID: ssid, PreSharedKey: psk, Configured: true}
		return nil
	})
}

// Erase returns the device to factory defaults. The device ID survives,
// everything else is cleared. The reset image replaces the stored one in a
// single write, so a failed write leaves both the backend and the cached
// state untouched.
func (s *Store) Erase() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := &State{DeviceID: s.state.DeviceID}
	if next.DeviceID == "" {
		if err := s.backend.Clear(); err != nil {
			return fmt.Errorf("clear state: %w", err)
		}
	} else if err := s.backend.Save(next); err != nil {
		return fmt.Errorf("persist state: %w", err)
	}
	s.state = next
	return nil
}
