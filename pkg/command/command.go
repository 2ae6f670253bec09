// Package command parses and builds the colon-delimited plaintext commands
// carried inside request envelopes.
//
// Every command starts with
//
//	salt:messageType:deviceId:
//
// security-fetch-nvcn ends there. Every other type continues with the NVCN
// and its own fields:
//
//	salt:security-pw-change:deviceId:nvcn:newPassword
//	salt:security-rename:deviceId:nvcn:newName
//	salt:security-wifi-config:deviceId:nvcn:ssid:preSharedKey
//	salt:security-reset-to-default:deviceId:nvcn
//	salt:security-restart:deviceId:nvcn
//	salt:control:deviceId:nvcn:action
//	salt:measure:deviceId:nvcn:action
//
// There is no escaping. Field values must not contain ':', which Format
// enforces for every command it builds.
package command

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// Separator delimits fields.
const Separator = ":"

// MessageType identifies a command on the wire.
type MessageType string

// Message types.
const (
	TypeFetchNVCN      MessageType = "security-fetch-nvcn"
	TypePasswordChange MessageType = "security-pw-change"
	TypeRename         MessageType = "security-rename"
	TypeWifiConfig     MessageType = "security-wifi-config"
	TypeResetToDefault MessageType = "security-reset-to-default"
	TypeRestart        MessageType = "security-restart"
	TypeControl        MessageType = "control"
	TypeMeasure        MessageType = "measure"
)

// String returns the wire name.
func (t MessageType) String() string { return string(t) }

// Header is the prefix shared by all commands.
type Header struct {
	Salt     string
	DeviceID string
}

// Command is one of the concrete command types in this package.
type Command interface {
	// Type returns the wire message type.
	Type() MessageType

	// Head returns the common prefix fields.
	Head() Header

	fields() []string
}

// Privileged is implemented by every command that must present an NVCN.
type Privileged interface {
	Command

	// Freshness returns the presented NVCN.
	Freshness() string
}

// Guard carries the NVCN of a privileged command.
type Guard struct {
	NVCN string
}

// Freshness returns the presented NVCN.
func (g Guard) Freshness() string { return g.NVCN }

// FetchNVCN requests a fresh NVCN.
type FetchNVCN struct {
	Header
}

// PasswordChange replaces the shared password.
type PasswordChange struct {
	Header
	Guard
	NewPassword string
}

// Rename sets the human-readable device name.
type Rename struct {
	Header
	Guard
	NewName string
}

// WifiConfig provides credentials for the operator network.
type WifiConfig struct {
	Header
	Guard
	SSID         string
	PreSharedKey string
}

// ResetToDefault erases persisted configuration and reboots.
type ResetToDefault struct {
	Header
	Guard
}

// Restart reboots the device.
type Restart struct {
	Header
	Guard
}

// Control invokes a control action.
type Control struct {
	Header
	Guard
	Action string
}

// Measure reads a measurement.
type Measure struct {
	Header
	Guard
	Action string
}

func (c FetchNVCN) Type() MessageType      { return TypeFetchNVCN }
func (c PasswordChange) Type() MessageType { return TypePasswordChange }
func (c Rename) Type() MessageType         { return TypeRename }
func (c WifiConfig) Type() MessageType     { return TypeWifiConfig }
func (c ResetToDefault) Type() MessageType { return TypeResetToDefault }
func (c Restart) Type() MessageType        { return TypeRestart }
func (c Control) Type() MessageType        { return TypeControl }
func (c Measure) Type() MessageType        { return TypeMeasure }

func (c FetchNVCN) Head() Header      { return c.Header }
func (c PasswordChange) Head() Header { return c.Header }
func (c Rename) Head() Header         { return c.Header }
func (c WifiConfig) Head() Header     { return c.Header }
func (c ResetToDefault) Head() Header { return c.Header }
func (c Restart) Head() Header        { return c.Header }
func (c Control) Head() Header        { return c.Header }
func (c Measure) Head() Header        { return c.Header }

func (c FetchNVCN) fields() []string      { return nil }
func (c PasswordChange) fields() []string { return []string{c.NVCN, c.NewPassword} }
func (c Rename) fields() []string         { return []string{c.NVCN, c.NewName} }
func (c WifiConfig) fields() []string     { return []string{c.NVCN, c.SSID, c.PreSharedKey} }
func (c ResetToDefault) fields() []string { return []string{c.NVCN} }
func (c Restart) fields() []string        { return []string{c.NVCN} }
func (c Control) fields() []string        { return []string{c.NVCN, c.Action} }
func (c Measure) fields() []string        { return []string{c.NVCN, c.Action} }

// NewSalt returns a random 16-character hex salt.
func NewSalt() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	return hex.EncodeToString(b), nil
}
