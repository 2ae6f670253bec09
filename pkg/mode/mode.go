// Package mode decides which network identity a device presents.
//
// A device without operator Wi-Fi credentials is in Provisioning mode and
// opens its own access point for onboarding. A device with credentials is in
// Control mode and joins the operator network. The mode is decided once at
// boot; leaving Provisioning always goes through a restart.
package mode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/scp-protocol/scp-go/pkg/network"
	"github.com/scp-protocol/scp-go/pkg/persistence"
)

// Mode is the operating mode.
type Mode uint8

const (
	// Unknown is the mode before boot completed.
	Unknown Mode = iota

	// Provisioning serves onboarding on a local access point.
	Provisioning

	// Control serves the secure endpoints on the operator network.
	Control
)

// String returns a human-readable mode name.
func (m Mode) String() string {
	switch m {
	case Provisioning:
		return "PROVISIONING"
	case Control:
		return "CONTROL"
	default:
		return "UNKNOWN"
	}
}

// ErrNoCredentials is returned when Control mode is entered without stored
// credentials.
var ErrNoCredentials = errors.New("no wifi credentials stored")

// Decision is the outcome of Decide.
type Decision struct {
	Mode Mode

	// ResetPassword is set when a non-default password was found without
	// Wi-Fi credentials. The password must be forced back to default.
	ResetPassword bool
}

// Decide maps persisted state to a mode. An inconsistent state is treated as
// needing onboarding, never as an error.
func Decide(password persistence.PasswordRecord, wifi persistence.WifiCredentials) Decision {
	switch {
	case wifi.Configured:
		return Decision{Mode: Control}
	case password.IsDefault:
		return Decision{Mode: Provisioning}
	default:
		return Decision{Mode: Provisioning, ResetPassword: true}
	}
}

// AccessPointName returns "<deviceType>-<mac without colons>".
func AccessPointName(deviceType, mac string) string {
	return deviceType + "-" + strings.ReplaceAll(mac, ":", "")
}

// Store is the persistence the machine reads and repairs.
type Store interface {
	Password() persistence.PasswordRecord
	Wifi() persistence.WifiCredentials
	SetDefaultPassword() error
}

// Config configures a Machine.
type Config struct {
	DeviceType string
	Store      Store
	Radio      network.Radio

	// Associator joins the operator network in Control mode.
	Associator *network.Associator

	// Logger for debug output (optional).
	Logger *slog.Logger
}

// Machine enters the mode decided at boot.
type Machine struct {
	mu sync.RWMutex

	config Config
	logger *slog.Logger
	mode   Mode

	accessPoint string

	onModeEntered func(Mode)
}

// NewMachine creates a machine in the Unknown mode.
func NewMachine(config Config) *Machine {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Machine{config: config, logger: logger}
}

// OnModeEntered registers a callback invoked after Enter succeeds.
func (m *Machine) OnModeEntered(fn func(Mode)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onModeEntered = fn
}

// Mode returns the current mode.
func (m *Machine) Mode() Mode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mode
}

// AccessPoint returns the provisioning access point name, if one is open.
func (m *Machine) AccessPoint() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.accessPoint
}

// Enter decides the mode from persisted state and brings up the matching
// network identity. In Control mode an exhausted association budget is
// returned as an error; the mode is still Control.
func (m *Machine) Enter(ctx context.Context) (Mode, error) {
	d := Decide(m.config.Store.Password(), m.config.Store.Wifi())

	if d.ResetPassword {
		m.logger.Info("non-default password without wifi credentials, restoring default password")
		if err := m.config.Store.SetDefaultPassword(); err != nil {
			return Unknown, fmt.Errorf("restore default password: %w", err)
		}
	}

	var err error
	switch d.Mode {
	case Provisioning:
		err = m.enterProvisioning(ctx)
	case Control:
		err = m.enterControl(ctx)
	}

	m.mu.Lock()
	m.mode = d.Mode
	cb := m.onModeEntered
	m.mu.Unlock()

	if cb != nil {
		cb(d.Mode)
	}
	return d.Mode, err
}

func (m *Machine) enterProvisioning(ctx context.Context) error {
	mac, err := m.config.Radio.HardwareAddr()
	if err != nil {
		return fmt.Errorf("read hardware address: %w", err)
	}
	ssid := AccessPointName(m.config.DeviceType, strings.ToUpper(mac.String()))
	if err := m.config.Radio.StartAccessPoint(ctx, ssid, network.DefaultAccessPointPassphrase); err != nil {
		return fmt.Errorf("start access point: %w", err)
	}

	m.mu.Lock()
	m.accessPoint = ssid
	m.mu.Unlock()

	m.logger.Info("provisioning mode", "access_point", ssid)
	return nil
}

func (m *Machine) enterControl(ctx context.Context) error {
	wifi := m.config.Store.Wifi()
	if wifi.SSID == "" {
		return ErrNoCredentials
	}
	m.logger.Info("control mode, connecting", "ssid", wifi.SSID)
	if err := m.config.Associator.Associate(ctx, wifi.SSID, wifi.PreSharedKey); err != nil {
		return err
	}
	return nil
}
