package service

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/scp-protocol/scp-go/pkg/discovery"
	"github.com/scp-protocol/scp-go/pkg/identity"
	"github.com/scp-protocol/scp-go/pkg/log"
	"github.com/scp-protocol/scp-go/pkg/mode"
	"github.com/scp-protocol/scp-go/pkg/network"
	"github.com/scp-protocol/scp-go/pkg/protocol"
	"github.com/scp-protocol/scp-go/pkg/transport"
)

// Service errors.
var (
	ErrNotStarted     = errors.New("service not started")
	ErrAlreadyStarted = errors.New("service already started")
	ErrInvalidConfig  = errors.New("invalid configuration")
)

// ServiceState represents the service state.
type ServiceState uint8

const (
	// StateIdle - service created but not started.
	StateIdle ServiceState = iota

	// StateStarting - service is booting.
	StateStarting

	// StateRunning - service is serving requests.
	StateRunning

	// StateStopping - service is shutting down.
	StateStopping

	// StateStopped - service has stopped.
	StateStopped
)

// String returns the state name.
func (s ServiceState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateStarting:
		return "STARTING"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// DeviceConfig configures a DeviceService.
type DeviceConfig struct {
	// DeviceType is fixed per product (e.g., "lamp").
	DeviceType string

	// ControlActions and MeasureActions are the action catalogs.
	ControlActions []string
	MeasureActions []string

	// RestrictActions rejects actions missing from the catalogs instead
	// of handing them to the registered callbacks.
	RestrictActions bool

	// ListenAddress is the address to listen on (default ":19316").
	ListenAddress string

	// PostActionDelay separates a restart response from the restart.
	PostActionDelay time.Duration

	// BootAttempts and BootInterval bound the Control mode association.
	BootAttempts int
	BootInterval time.Duration

	// ConfigAttempts and ConfigInterval bound the wifi-config check.
	ConfigAttempts int
	ConfigInterval time.Duration

	// Advertiser announces the device in Control mode (optional).
	Advertiser discovery.Advertiser

	// Logger is the optional logger for debug output.
	// If nil, logging is disabled.
	Logger *slog.Logger

	// ProtocolLogger receives structured protocol events (optional).
	ProtocolLogger log.Logger
}

// DefaultDeviceConfig returns the firmware defaults.
func DefaultDeviceConfig() DeviceConfig {
	return DeviceConfig{
		ListenAddress:   fmt.Sprintf(":%d", transport.DefaultPort),
		PostActionDelay: transport.DefaultPostActionDelay,
		BootAttempts:    network.DefaultAttempts,
		BootInterval:    500 * time.Millisecond,
		ConfigAttempts:  network.DefaultAttempts,
		ConfigInterval:  network.DefaultInterval,
	}
}

// Validate checks the configuration.
func (c *DeviceConfig) Validate() error {
	if c.DeviceType == "" {
		return fmt.Errorf("%w: device type is required", ErrInvalidConfig)
	}
	if err := identity.ValidateActions(c.ControlActions); err != nil {
		return fmt.Errorf("%w: control actions: %w", ErrInvalidConfig, err)
	}
	if err := identity.ValidateActions(c.MeasureActions); err != nil {
		return fmt.Errorf("%w: measure actions: %w", ErrInvalidConfig, err)
	}
	if c.BootAttempts < 1 || c.ConfigAttempts < 1 {
		return fmt.Errorf("%w: association attempts must be positive", ErrInvalidConfig)
	}
	if c.BootInterval < 0 || c.ConfigInterval < 0 || c.PostActionDelay < 0 {
		return fmt.Errorf("%w: negative duration", ErrInvalidConfig)
	}
	return nil
}

// EventType identifies a service event.
type EventType uint8

const (
	// EventDefaultPasswordSet - the factory password was written.
	EventDefaultPasswordSet EventType = iota

	// EventDeviceIDCreated - a device ID was generated.
	EventDeviceIDCreated

	// EventModeEntered - the operating mode was entered.
	EventModeEntered

	// EventAssociationFailed - Control mode could not join its network.
	EventAssociationFailed

	// EventProtocol - a request changed device state, see Protocol.
	EventProtocol

	// EventRestarting - the service is about to restart.
	EventRestarting

	// EventReset - persisted configuration was erased.
	EventReset
)

// String returns the event type name.
func (e EventType) String() string {
	switch e {
	case EventDefaultPasswordSet:
		return "DEFAULT_PASSWORD_SET"
	case EventDeviceIDCreated:
		return "DEVICE_ID_CREATED"
	case EventModeEntered:
		return "MODE_ENTERED"
	case EventAssociationFailed:
		return "ASSOCIATION_FAILED"
	case EventProtocol:
		return "PROTOCOL"
	case EventRestarting:
		return "RESTARTING"
	case EventReset:
		return "RESET"
	default:
		return "UNKNOWN"
	}
}

// Event represents a service event.
type Event struct {
	// Type is the event type.
	Type EventType

	// DeviceID is the device ID.
	DeviceID string

	// Mode is the operating mode (for mode events).
	Mode mode.Mode

	// AccessPoint is the provisioning access point name.
	AccessPoint string

	// Protocol is the dispatcher event (for EventProtocol).
	Protocol *protocol.Event

	// Error is set if the event is an error.
	Error error
}

// EventHandler handles service events.
type EventHandler func(Event)
