package service_test

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scp-protocol/scp-go/pkg/client"
	"github.com/scp-protocol/scp-go/pkg/discovery"
	"github.com/scp-protocol/scp-go/pkg/mode"
	"github.com/scp-protocol/scp-go/pkg/network"
	"github.com/scp-protocol/scp-go/pkg/nvcn"
	"github.com/scp-protocol/scp-go/pkg/persistence"
	"github.com/scp-protocol/scp-go/pkg/protocol"
	"github.com/scp-protocol/scp-go/pkg/service"
)

// fakeAdvertiser records advertising calls.
type fakeAdvertiser struct {
	mu      sync.Mutex
	infos   []discovery.ServiceInfo
	updates []discovery.ServiceInfo
	stopped bool
}

func (a *fakeAdvertiser) Advertise(ctx context.Context, info *discovery.ServiceInfo) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.infos = append(a.infos, *info)
	return nil
}

func (a *fakeAdvertiser) Update(info *discovery.ServiceInfo) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.updates = append(a.updates, *info)
	return nil
}

func (a *fakeAdvertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped = true
}

type harness struct {
	svc        *service.DeviceService
	store      *persistence.Store
	radio      *network.SimulatedRadio
	advertiser *fakeAdvertiser

	mu     sync.Mutex
	events []service.Event
}

func testConfig() service.DeviceConfig {
	cfg := service.DefaultDeviceConfig()
	cfg.DeviceType = "lamp"
	cfg.ControlActions = []string{"on", "off"}
	cfg.MeasureActions = []string{"temperature"}
	cfg.ListenAddress = "127.0.0.1:0"
	cfg.PostActionDelay = 10 * time.Millisecond
	cfg.BootAttempts = 3
	cfg.BootInterval = time.Millisecond
	cfg.ConfigAttempts = 3
	cfg.ConfigInterval = time.Millisecond
	return cfg
}

func newHarness(t *testing.T, store *persistence.Store) *harness {
	t.Helper()

	if store == nil {
		var err error
		store, err = persistence.NewStore(persistence.NewMemoryBackend())
		require.NoError(t, err)
	}
	mac, _ := net.ParseMAC("5c:cf:7f:01:02:03")
	h := &harness{
		store:      store,
		radio:      network.NewSimulatedRadio(mac, map[string]string{"home": "home-psk"}),
		advertiser: &fakeAdvertiser{},
	}

	actions := protocol.NewActions()
	actions.HandleControl(func(ctx context.Context, action string) error { return nil })
	actions.HandleMeasure(func(ctx context.Context, action string) (float64, error) { return 20, nil })

	cfg := testConfig()
	cfg.Advertiser = h.advertiser

	svc, err := service.NewDeviceService(store, h.radio, actions, cfg)
	require.NoError(t, err)
	svc.OnEvent(func(e service.Event) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.events = append(h.events, e)
	})
	h.svc = svc
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	require.NoError(t, h.svc.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = h.svc.Stop(ctx)
	})
}

func (h *harness) client(t *testing.T, password string) *client.Client {
	t.Helper()
	c, err := client.New(client.Config{
		BaseURL:  "http://" + h.svc.Addr().String(),
		Password: password,
	})
	require.NoError(t, err)
	return c
}

func (h *harness) eventTypes() []service.EventType {
	h.mu.Lock()
	defer h.mu.Unlock()
	var types []service.EventType
	for _, e := range h.events {
		types = append(types, e.Type)
	}
	return types
}

func TestNewDeviceServiceValidation(t *testing.T) {
	store, err := persistence.NewStore(persistence.NewMemoryBackend())
	require.NoError(t, err)
	mac, _ := net.ParseMAC("5c:cf:7f:01:02:03")
	radio := network.NewSimulatedRadio(mac, nil)

	t.Run("missing device type", func(t *testing.T) {
		cfg := testConfig()
		cfg.DeviceType = ""
		_, err := service.NewDeviceService(store, radio, nil, cfg)
		assert.ErrorIs(t, err, service.ErrInvalidConfig)
	})

	t.Run("action with separator", func(t *testing.T) {
		cfg := testConfig()
		cfg.ControlActions = []string{"set:on"}
		_, err := service.NewDeviceService(store, radio, nil, cfg)
		assert.ErrorIs(t, err, service.ErrInvalidConfig)
	})

	t.Run("missing radio", func(t *testing.T) {
		_, err := service.NewDeviceService(store, nil, nil, testConfig())
		assert.ErrorIs(t, err, service.ErrInvalidConfig)
	})
}

func TestFreshBootEntersProvisioning(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)

	assert.Equal(t, service.StateRunning, h.svc.State())
	assert.Equal(t, mode.Provisioning, h.svc.Mode())
	assert.Equal(t, "lamp-5CCF7F010203", h.svc.AccessPoint())
	assert.Equal(t, "lamp-5CCF7F010203", h.radio.AccessPoint())
	assert.Equal(t, nvcn.StateUnissued, h.svc.NVCNState())

	pw := h.store.Password()
	assert.True(t, pw.IsDefault)
	assert.Equal(t, persistence.DefaultPassword, pw.Password)
	assert.Len(t, h.svc.Identity().DeviceID, 32)
	assert.Equal(t, h.store.DeviceID(), h.svc.Identity().DeviceID)

	assert.Equal(t, []service.EventType{
		service.EventDefaultPasswordSet,
		service.EventDeviceIDCreated,
		service.EventModeEntered,
	}, h.eventTypes())

	// Provisioning devices are not advertised.
	h.advertiser.mu.Lock()
	assert.Empty(t, h.advertiser.infos)
	h.advertiser.mu.Unlock()

	resp, err := h.client(t, persistence.DefaultPassword).Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint32(0), resp.CurrentPasswordNumber)
	assert.Equal(t, "lamp", resp.DeviceType)
	assert.Equal(t, []string{"on", "off"}, resp.ControlActions)
}

func TestStartTwice(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)
	assert.ErrorIs(t, h.svc.Start(context.Background()), service.ErrAlreadyStarted)
}

func TestRebootKeepsDeviceID(t *testing.T) {
	store, err := persistence.NewStore(persistence.NewMemoryBackend())
	require.NoError(t, err)

	first := newHarness(t, store)
	first.start(t)
	id := first.svc.Identity().DeviceID
	require.NoError(t, first.svc.Stop(context.Background()))

	second := newHarness(t, store)
	second.start(t)
	assert.Equal(t, id, second.svc.Identity().DeviceID)
	assert.NotContains(t, second.eventTypes(), service.EventDeviceIDCreated)
	assert.NotContains(t, second.eventTypes(), service.EventDefaultPasswordSet)
}

func TestBootEntersControl(t *testing.T) {
	store, err := persistence.NewStore(persistence.NewMemoryBackend())
	require.NoError(t, err)
	require.NoError(t, store.SetDefaultPassword())
	_, err = store.ChangePassword("abcdefghijklmnop")
	require.NoError(t, err)
	require.NoError(t, store.SetWifi("home", "home-psk"))
	require.NoError(t, store.SetDeviceName("Hall"))

	h := newHarness(t, store)
	h.start(t)

	assert.Equal(t, mode.Control, h.svc.Mode())
	assert.Equal(t, "home", h.radio.Joined())
	assert.Empty(t, h.svc.AccessPoint())

	h.advertiser.mu.Lock()
	infos := append([]discovery.ServiceInfo(nil), h.advertiser.infos...)
	h.advertiser.mu.Unlock()
	require.Len(t, infos, 1)
	info := infos[0]
	assert.Equal(t, "lamp", info.DeviceType)
	assert.Equal(t, "Hall", info.DeviceName)
	assert.Equal(t, h.svc.Identity().DeviceID, info.DeviceID)
	assert.Equal(t, uint16(h.svc.Addr().(*net.TCPAddr).Port), info.Port)

	c := h.client(t, "abcdefghijklmnop")
	ctx := context.Background()
	_, err = c.Discover(ctx)
	require.NoError(t, err)
	_, err = c.Rename(ctx, "Kitchen")
	require.NoError(t, err)

	h.advertiser.mu.Lock()
	updates := append([]discovery.ServiceInfo(nil), h.advertiser.updates...)
	h.advertiser.mu.Unlock()
	require.Len(t, updates, 1)
	assert.Equal(t, "Kitchen", updates[0].DeviceName)

	require.NoError(t, h.svc.Stop(ctx))
	h.advertiser.mu.Lock()
	assert.True(t, h.advertiser.stopped)
	h.advertiser.mu.Unlock()
}

func TestControlBootWithUnreachableNetwork(t *testing.T) {
	store, err := persistence.NewStore(persistence.NewMemoryBackend())
	require.NoError(t, err)
	require.NoError(t, store.SetDefaultPassword())
	require.NoError(t, store.SetWifi("elsewhere", "psk"))

	h := newHarness(t, store)
	h.start(t)

	assert.Equal(t, mode.Control, h.svc.Mode())
	assert.Contains(t, h.eventTypes(), service.EventAssociationFailed)
	assert.Equal(t, service.StateRunning, h.svc.State())
}

func TestNonDefaultPasswordWithoutWifiIsRepaired(t *testing.T) {
	store, err := persistence.NewStore(persistence.NewMemoryBackend())
	require.NoError(t, err)
	require.NoError(t, store.SetDefaultPassword())
	_, err = store.ChangePassword("abcdefghijklmnop")
	require.NoError(t, err)

	h := newHarness(t, store)
	h.start(t)

	assert.Equal(t, mode.Provisioning, h.svc.Mode())
	pw := store.Password()
	assert.True(t, pw.IsDefault)
	assert.Equal(t, persistence.DefaultPassword, pw.Password)
	assert.Equal(t, uint32(1), pw.Version)
}

func TestOnboardingFlow(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)
	ctx := context.Background()

	c := h.client(t, persistence.DefaultPassword)
	_, err := c.Discover(ctx)
	require.NoError(t, err)

	version, err := c.ChangePassword(ctx, "abcdefghijklmnop")
	require.NoError(t, err)
	assert.Equal(t, uint32(1), version)
	assert.Equal(t, nvcn.StateConsumed, h.svc.NVCNState())

	_, err = c.Rename(ctx, "Desk")
	require.NoError(t, err)
	require.NoError(t, c.ConfigureWifi(ctx, "home", "home-psk"))
	assert.True(t, h.store.Wifi().Configured)

	require.NoError(t, c.Restart(ctx))

	select {
	case action := <-h.svc.Restarts():
		assert.Equal(t, protocol.Restart, action)
	case <-time.After(2 * time.Second):
		t.Fatal("restart not signalled")
	}
	assert.Contains(t, h.eventTypes(), service.EventRestarting)

	var protocolEvents []protocol.EventType
	h.mu.Lock()
	for _, e := range h.events {
		if e.Type == service.EventProtocol {
			protocolEvents = append(protocolEvents, e.Protocol.Type)
		}
	}
	h.mu.Unlock()
	assert.Contains(t, protocolEvents, protocol.EventPasswordChanged)
	assert.Contains(t, protocolEvents, protocol.EventRenamed)
	assert.Contains(t, protocolEvents, protocol.EventWifiConfigured)
}

func TestResetToDefaultErasesState(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)
	ctx := context.Background()
	id := h.svc.Identity().DeviceID

	c := h.client(t, persistence.DefaultPassword)
	_, err := c.Discover(ctx)
	require.NoError(t, err)
	_, err = c.Rename(ctx, "Desk")
	require.NoError(t, err)

	require.NoError(t, c.ResetToDefault(ctx))

	select {
	case action := <-h.svc.Restarts():
		assert.Equal(t, protocol.ResetAndRestart, action)
	case <-time.After(2 * time.Second):
		t.Fatal("reset not signalled")
	}

	assert.Contains(t, h.eventTypes(), service.EventReset)
	assert.Empty(t, h.store.DeviceName())
	assert.False(t, h.store.PasswordSet())
	assert.Equal(t, id, h.store.DeviceID())
}

func TestRequestRestart(t *testing.T) {
	h := newHarness(t, nil)
	assert.ErrorIs(t, h.svc.RequestRestart(protocol.Restart), service.ErrNotStarted)

	h.start(t)
	require.NoError(t, h.svc.RequestRestart(protocol.Restart))
	// Only the first request is delivered.
	require.NoError(t, h.svc.RequestRestart(protocol.Restart))

	assert.Equal(t, protocol.Restart, <-h.svc.Restarts())
	select {
	case <-h.svc.Restarts():
		t.Fatal("second restart delivered")
	default:
	}
}
