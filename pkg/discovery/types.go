package discovery

import (
	"context"
	"errors"
	"time"
)

// Service type constants for mDNS.
const (
	// ServiceType is the DNS-SD service type of SCP devices.
	ServiceType = "_scp._tcp"

	// Domain is the mDNS domain.
	Domain = "local"

	// DefaultPort is the default SCP HTTP port.
	DefaultPort = 19316

	// ProtocolVersion is advertised in the pv TXT key.
	ProtocolVersion = "1"
)

// TXT record key constants.
const (
	TXTKeyDeviceID   = "id"   // Device ID
	TXTKeyDeviceType = "type" // Device type
	TXTKeyProtocol   = "pv"   // Protocol version
	TXTKeyDeviceName = "name" // Device name (optional, user-configurable)
)

// Timing constants.
const (
	// BrowseTimeout is the default timeout for mDNS browsing.
	BrowseTimeout = 5 * time.Second
)

// Limits.
const (
	// MaxInstanceNameLen is the DNS label limit.
	MaxInstanceNameLen = 63
)

// Errors.
var (
	ErrMalformed        = errors.New("malformed discover payload")
	ErrNotFound         = errors.New("service not found")
	ErrMissingRequired  = errors.New("missing required TXT field")
	ErrInvalidTXTRecord = errors.New("invalid TXT record")
)

// ServiceInfo describes the device being advertised.
type ServiceInfo struct {
	DeviceID   string
	DeviceType string
	DeviceName string
	Port       uint16
}

// InstanceName returns "<deviceType>-<deviceId>", truncated to a DNS label.
func (i *ServiceInfo) InstanceName() string {
	name := i.DeviceType + "-" + i.DeviceID
	if len(name) > MaxInstanceNameLen {
		name = name[:MaxInstanceNameLen]
	}
	return name
}

// Service is a device found by browsing.
type Service struct {
	InstanceName string
	Host         string
	Port         uint16
	Addresses    []string

	DeviceID   string
	DeviceType string
	DeviceName string
	Protocol   string
}

// AdvertiserConfig configures an Advertiser.
type AdvertiserConfig struct {
	// Interface restricts advertising to one network interface (optional).
	Interface string

	// TTL is the record TTL. Zero uses the library default.
	TTL time.Duration
}

// DefaultAdvertiserConfig returns the default advertiser configuration.
func DefaultAdvertiserConfig() AdvertiserConfig {
	return AdvertiserConfig{TTL: 120 * time.Second}
}

// BrowserConfig configures a Browser.
type BrowserConfig struct {
	// Interface restricts browsing to one network interface (optional).
	Interface string
}

// DefaultBrowserConfig returns the default browser configuration.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{}
}

// Advertiser announces a device on the network.
type Advertiser interface {
	// Advertise starts or replaces the advertisement.
	Advertise(ctx context.Context, info *ServiceInfo) error

	// Update replaces the TXT records of the running advertisement.
	Update(info *ServiceInfo) error

	// Stop withdraws the advertisement.
	Stop()
}

// Browser finds devices on the network.
type Browser interface {
	// Browse streams services until ctx ends.
	Browse(ctx context.Context) (<-chan *Service, error)

	// FindByDeviceID returns the first service with the given device ID.
	FindByDeviceID(ctx context.Context, deviceID string) (*Service, error)
}
