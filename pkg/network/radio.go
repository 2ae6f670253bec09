// Package network models the Wi-Fi radio of a device and the bounded
// association procedure used when joining an operator network.
package network

import (
	"context"
	"errors"
	"net"
	"sync"
)

// Radio errors.
var (
	ErrAssociationFailed = errors.New("wifi association failed")
	ErrNotConnected      = errors.New("not connected")
)

// DefaultAccessPointPassphrase protects the provisioning access point.
const DefaultAccessPointPassphrase = "1234567890123456"

// Radio is the Wi-Fi hardware of the device.
type Radio interface {
	// StartAccessPoint opens a local access point for onboarding.
	StartAccessPoint(ctx context.Context, ssid, passphrase string) error

	// Begin starts associating with a network. Progress is observed with
	// Connected.
	Begin(ctx context.Context, ssid, psk string) error

	// Connected reports whether the station is associated.
	Connected() bool

	// Disconnect drops any station association.
	Disconnect() error

	// HardwareAddr returns the MAC address of the radio.
	HardwareAddr() (net.HardwareAddr, error)
}

// SimulatedRadio is an in-memory Radio. Networks maps each reachable SSID
// to its pre-shared key.
type SimulatedRadio struct {
	mu sync.Mutex

	mac      net.HardwareAddr
	networks map[string]string

	// pollsUntilConnected delays association by this many Connected calls.
	pollsUntilConnected int

	apSSID    string
	joined    string
	candidate string
	psk       string
	polls     int
}

// NewSimulatedRadio creates a simulated radio.
func NewSimulatedRadio(mac net.HardwareAddr, networks map[string]string) *SimulatedRadio {
	n := make(map[string]string, len(networks))
	for k, v := range networks {
		n[k] = v
	}
	return &SimulatedRadio{mac: mac, networks: n}
}

// SetAssociationDelay makes association succeed only after polls calls to
// Connected.
func (r *SimulatedRadio) SetAssociationDelay(polls int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pollsUntilConnected = polls
}

// AddNetwork makes a network reachable.
func (r *SimulatedRadio) AddNetwork(ssid, psk string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.networks[ssid] = psk
}

// StartAccessPoint records the access point name.
func (r *SimulatedRadio) StartAccessPoint(ctx context.Context, ssid, passphrase string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.apSSID = ssid
	return nil
}

// AccessPoint returns the SSID of the open access point, if any.
func (r *SimulatedRadio) AccessPoint() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.apSSID
}

// Begin starts a simulated association.
func (r *SimulatedRadio) Begin(ctx context.Context, ssid, psk string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.joined = ""
	r.candidate = ssid
	r.psk = psk
	r.polls = 0
	return nil
}

// Connected completes the association once the delay elapsed and the
// credentials match a reachable network.
func (r *SimulatedRadio) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.joined != "" {
		return true
	}
	if r.candidate == "" {
		return false
	}
	r.polls++
	if r.polls <= r.pollsUntilConnected {
		return false
	}
	if psk, ok := r.networks[r.candidate]; ok && psk == r.psk {
		r.joined = r.candidate
		return true
	}
	return false
}

// Joined returns the SSID of the associated network, if any.
func (r *SimulatedRadio) Joined() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.joined
}

// Disconnect drops the association.
func (r *SimulatedRadio) Disconnect() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.joined = ""
	r.candidate = ""
	r.psk = ""
	return nil
}

// HardwareAddr returns the configured MAC address.
func (r *SimulatedRadio) HardwareAddr() (net.HardwareAddr, error) {
	return r.mac, nil
}

// Compile-time interface satisfaction check.
var _ Radio = (*SimulatedRadio)(nil)
