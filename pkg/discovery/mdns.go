package discovery

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/enbility/zeroconf/v3"
)

// MDNSAdvertiser announces an SCP device as _scp._tcp via zeroconf.
type MDNSAdvertiser struct {
	ifaces []net.Interface
	ttl    uint32

	mu     sync.Mutex
	server *zeroconf.Server
}

// NewMDNSAdvertiser creates an advertiser. It fails if config names an
// interface that does not exist.
func NewMDNSAdvertiser(config AdvertiserConfig) (*MDNSAdvertiser, error) {
	ifaces, err := lookupInterface(config.Interface)
	if err != nil {
		return nil, err
	}
	return &MDNSAdvertiser{ifaces: ifaces, ttl: uint32(config.TTL.Seconds())}, nil
}

// Advertise registers the device, replacing a running advertisement. A
// device reboots into Control mode with the same ID, so the instance name
// stays stable across restarts.
func (a *MDNSAdvertiser) Advertise(ctx context.Context, info *ServiceInfo) error {
	if info.DeviceID == "" || info.DeviceType == "" {
		return fmt.Errorf("%w: device id and type", ErrMissingRequired)
	}
	port := int(info.Port)
	if port == 0 {
		port = DefaultPort
	}
	var opts []zeroconf.ServerOption
	if a.ttl > 0 {
		opts = append(opts, zeroconf.TTL(a.ttl))
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.shutdownLocked()

	server, err := zeroconf.Register(info.InstanceName(), ServiceType, Domain, port,
		TXTRecordsToStrings(EncodeTXT(info)), a.ifaces, opts...)
	if err != nil {
		return fmt.Errorf("register %s: %w", info.InstanceName(), err)
	}
	a.server = server
	return nil
}

// Update republishes the TXT records, e.g. after security-rename.
func (a *MDNSAdvertiser) Update(info *ServiceInfo) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server == nil {
		return ErrNotFound
	}
	a.server.SetText(TXTRecordsToStrings(EncodeTXT(info)))
	return nil
}

// Stop withdraws the advertisement. It is a no-op when nothing is
// advertised.
func (a *MDNSAdvertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.shutdownLocked()
}

func (a *MDNSAdvertiser) shutdownLocked() {
	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
}

// MDNSBrowser finds SCP devices via zeroconf.
type MDNSBrowser struct {
	opts []zeroconf.ClientOption
}

// NewMDNSBrowser creates a browser. It fails if config names an interface
// that does not exist.
func NewMDNSBrowser(config BrowserConfig) (*MDNSBrowser, error) {
	ifaces, err := lookupInterface(config.Interface)
	if err != nil {
		return nil, err
	}
	b := &MDNSBrowser{}
	if ifaces != nil {
		b.opts = append(b.opts, zeroconf.SelectIfaces(ifaces))
	}
	return b, nil
}

// Browse streams devices until ctx ends. A device is reported when first
// seen and again whenever its name, port or address set changes; every
// report is a fresh copy the caller may keep.
func (b *MDNSBrowser) Browse(ctx context.Context) (<-chan *Service, error) {
	out := make(chan *Service)
	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	go func() {
		defer close(out)
		table := newDeviceTable()
		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				svc := table.add(entry)
				if svc == nil {
					continue
				}
				select {
				case out <- svc:
				case <-ctx.Done():
					return
				}
			case entry, ok := <-removed:
				if ok {
					table.remove(entry)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		_ = zeroconf.Browse(ctx, ServiceType, Domain, entries, removed, b.opts...)
	}()

	return out, nil
}

// FindByDeviceID browses until the device with deviceID shows up.
func (b *MDNSBrowser) FindByDeviceID(ctx context.Context, deviceID string) (*Service, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results, err := b.Browse(ctx)
	if err != nil {
		return nil, err
	}
	for svc := range results {
		if svc.DeviceID == deviceID {
			return svc, nil
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, ErrNotFound
}

// deviceTable folds the per-interface zeroconf entries into one Service
// per device ID.
type deviceTable struct {
	byID       map[string]*Service
	byInstance map[string]string
}

func newDeviceTable() *deviceTable {
	return &deviceTable{
		byID:       make(map[string]*Service),
		byInstance: make(map[string]string),
	}
}

// add merges entry and returns a copy of the device to report, or nil if
// the entry is not an SCP device or taught nothing new.
func (t *deviceTable) add(entry *zeroconf.ServiceEntry) *Service {
	svc := entryToService(entry)
	if svc == nil {
		return nil
	}
	cur, ok := t.byID[svc.DeviceID]
	if !ok {
		t.byID[svc.DeviceID] = svc
		t.byInstance[svc.InstanceName] = svc.DeviceID
		return svc.clone()
	}

	changed := cur.DeviceName != svc.DeviceName || cur.Port != svc.Port
	before := len(cur.Addresses)
	cur.Addresses = mergeAddresses(cur.Addresses, svc.Addresses)
	cur.DeviceName = svc.DeviceName
	cur.Port = svc.Port
	cur.Host = svc.Host
	if !changed && len(cur.Addresses) == before {
		return nil
	}
	return cur.clone()
}

// remove drops the addresses of entry and forgets the device once none
// are left.
func (t *deviceTable) remove(entry *zeroconf.ServiceEntry) {
	id, ok := t.byInstance[entry.Instance]
	if !ok {
		return
	}
	cur := t.byID[id]
	cur.Addresses = removeAddresses(cur.Addresses, entryAddrs(entry))
	if len(cur.Addresses) == 0 {
		delete(t.byID, id)
		delete(t.byInstance, entry.Instance)
	}
}

// entryToService converts a zeroconf entry. Entries whose TXT records are
// not those of a compatible SCP device yield nil.
func entryToService(entry *zeroconf.ServiceEntry) *Service {
	svc, err := DecodeTXT(StringsToTXTRecords(entry.Text))
	if err != nil {
		return nil
	}
	svc.InstanceName = entry.Instance
	svc.Host = entry.HostName
	svc.Port = uint16(entry.Port)
	svc.Addresses = entryAddrs(entry)
	return svc
}

func entryAddrs(entry *zeroconf.ServiceEntry) []string {
	addrs := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	for _, ip := range entry.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}
	return addrs
}

// mergeAddresses appends the addresses of added not yet in existing.
func mergeAddresses(existing, added []string) []string {
	for _, addr := range added {
		if !containsAddr(existing, addr) {
			existing = append(existing, addr)
		}
	}
	return existing
}

func removeAddresses(addresses, gone []string) []string {
	kept := addresses[:0:0]
	for _, addr := range addresses {
		if !containsAddr(gone, addr) {
			kept = append(kept, addr)
		}
	}
	return kept
}

func containsAddr(list []string, addr string) bool {
	for _, a := range list {
		if a == addr {
			return true
		}
	}
	return false
}

// URL returns the base URL of the device's HTTP endpoint, preferring the
// first resolved address over the host name.
func (s *Service) URL() string {
	host := s.Host
	if len(s.Addresses) > 0 {
		host = s.Addresses[0]
	}
	port := s.Port
	if port == 0 {
		port = DefaultPort
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(int(port)))
}

func (s *Service) clone() *Service {
	cp := *s
	cp.Addresses = append([]string(nil), s.Addresses...)
	return &cp
}

// lookupInterface resolves an optional interface name. An empty name means
// all interfaces and yields nil.
func lookupInterface(name string) ([]net.Interface, error) {
	if name == "" {
		return nil, nil
	}
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return nil, fmt.Errorf("interface %q: %w", name, err)
	}
	return []net.Interface{*iface}, nil
}

var (
	_ Advertiser = (*MDNSAdvertiser)(nil)
	_ Browser    = (*MDNSBrowser)(nil)
)
