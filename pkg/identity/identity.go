// Package identity describes who a device is: its stable ID, its type and
// the actions it supports.
package identity

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidAction is returned for an action name the wire grammar cannot carry.
var ErrInvalidAction = errors.New("invalid action name")

// Identity is fixed for the lifetime of the process.
type Identity struct {
	// DeviceID is generated once at first boot and never changes.
	DeviceID string

	// DeviceType is fixed by the firmware build.
	DeviceType string

	// ControlActions lists the supported control action names.
	ControlActions []string

	// MeasureActions lists the supported measurement names.
	MeasureActions []string
}

// SupportsControl reports whether action is in the control catalog.
func (id Identity) SupportsControl(action string) bool {
	return contains(id.ControlActions, action)
}

// SupportsMeasure reports whether action is in the measurement catalog.
func (id Identity) SupportsMeasure(action string) bool {
	return contains(id.MeasureActions, action)
}

// ValidateActions checks that every catalog entry can be carried as a
// command field.
func ValidateActions(actions []string) error {
	for _, a := range actions {
		if a == "" || strings.Contains(a, ":") {
			return fmt.Errorf("%w: %q", ErrInvalidAction, a)
		}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// IDStore is the persistence the device ID needs.
type IDStore interface {
	DeviceID() string
	SetDeviceID(id string) error
}

// NewDeviceID returns a new random device ID. It is a UUID without dashes,
// so it never contains the command separator.
func NewDeviceID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// Ensure returns the stored device ID, generating and storing one first if
// none exists. The bool reports whether a new ID was generated.
func Ensure(store IDStore) (string, bool, error) {
	if id := store.DeviceID(); id != "" {
		return id, false, nil
	}
	id := NewDeviceID()
	if err := store.SetDeviceID(id); err != nil {
		return "", false, fmt.Errorf("store device ID: %w", err)
	}
	return id, true, nil
}
