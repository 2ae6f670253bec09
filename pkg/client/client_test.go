package client_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scp-protocol/scp-go/pkg/client"
	"github.com/scp-protocol/scp-go/pkg/identity"
	"github.com/scp-protocol/scp-go/pkg/network"
	"github.com/scp-protocol/scp-go/pkg/persistence"
	"github.com/scp-protocol/scp-go/pkg/protocol"
	"github.com/scp-protocol/scp-go/pkg/transport"
)

const testDeviceID = "0123456789abcdef0123456789abcdef"

type device struct {
	store *persistence.Store
	radio *network.SimulatedRadio
	http  *httptest.Server

	mu          sync.Mutex
	controlled  []string
	postActions chan protocol.PostAction
}

func newDevice(t *testing.T) *device {
	t.Helper()

	store, err := persistence.NewStore(persistence.NewMemoryBackend())
	require.NoError(t, err)
	require.NoError(t, store.SetDefaultPassword())

	mac, _ := net.ParseMAC("5c:cf:7f:01:02:03")
	dev := &device{
		store:       store,
		radio:       network.NewSimulatedRadio(mac, map[string]string{"home": "home-psk"}),
		postActions: make(chan protocol.PostAction, 1),
	}

	actions := protocol.NewActions()
	actions.HandleControl(func(ctx context.Context, action string) error {
		switch action {
		case "on", "off":
		case "jam":
			return errors.New("stuck")
		default:
			return fmt.Errorf("no actuator for %q", action)
		}
		dev.mu.Lock()
		dev.controlled = append(dev.controlled, action)
		dev.mu.Unlock()
		return nil
	})
	actions.HandleMeasure(func(ctx context.Context, action string) (float64, error) {
		if action != "temperature" {
			return 0, fmt.Errorf("no sensor for %q", action)
		}
		return 19.25, nil
	})

	d, err := protocol.NewDispatcher(protocol.Config{
		Identity: identity.Identity{
			DeviceID:       testDeviceID,
			DeviceType:     "lamp",
			ControlActions: []string{"on", "off", "jam"},
			MeasureActions: []string{"temperature"},
		},
		Store:      store,
		Associator: &network.Associator{Radio: dev.radio, Attempts: 2, Interval: time.Millisecond},
		Actions:    actions,
	})
	require.NoError(t, err)

	srv, err := transport.NewServer(transport.ServerConfig{
		Handler:         d,
		PostActionDelay: 10 * time.Millisecond,
		OnPostAction: func(action protocol.PostAction) {
			dev.postActions <- action
		},
	})
	require.NoError(t, err)

	dev.http = httptest.NewServer(srv.Handler())
	t.Cleanup(dev.http.Close)
	return dev
}

func newClient(t *testing.T, dev *device) *client.Client {
	t.Helper()
	c, err := client.New(client.Config{
		BaseURL:  dev.http.URL,
		Password: persistence.DefaultPassword,
	})
	require.NoError(t, err)
	return c
}

func TestNewRequiresBaseURL(t *testing.T) {
	_, err := client.New(client.Config{})
	assert.Error(t, err)
}

func TestDiscoverAdoptsDeviceID(t *testing.T) {
	dev := newDevice(t)
	c := newClient(t, dev)

	resp, err := c.Discover(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "discover-response", resp.Type)
	assert.Equal(t, testDeviceID, resp.DeviceID)
	assert.Equal(t, "lamp", resp.DeviceType)
	assert.Equal(t, []string{"temperature"}, resp.MeasureActions)
	assert.Equal(t, uint32(0), resp.CurrentPasswordNumber)
	assert.Equal(t, testDeviceID, c.DeviceID())
}

func TestFetchNVCN(t *testing.T) {
	dev := newDevice(t)
	c := newClient(t, dev)
	_, err := c.Discover(context.Background())
	require.NoError(t, err)

	first, err := c.FetchNVCN(context.Background())
	require.NoError(t, err)
	second, err := c.FetchNVCN(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, first)
	assert.NotEqual(t, first, second)
}

func TestWrongPasswordIsMalformed(t *testing.T) {
	dev := newDevice(t)
	c, err := client.New(client.Config{
		BaseURL:  dev.http.URL,
		DeviceID: testDeviceID,
		Password: "wrongwrongwrong!",
	})
	require.NoError(t, err)

	_, err = c.FetchNVCN(context.Background())
	assert.ErrorIs(t, err, client.ErrMalformedPayload)
}

func TestChangePassword(t *testing.T) {
	dev := newDevice(t)
	c := newClient(t, dev)
	ctx := context.Background()
	_, err := c.Discover(ctx)
	require.NoError(t, err)

	version, err := c.ChangePassword(ctx, "abcdefghijklmnop")
	require.NoError(t, err)
	assert.Equal(t, uint32(1), version)
	assert.Equal(t, "abcdefghijklmnop", c.Password())
	assert.Equal(t, "abcdefghijklmnop", dev.store.Password().Password)

	// The new password authorizes subsequent commands.
	name, err := c.Rename(ctx, "Kitchen")
	require.NoError(t, err)
	assert.Equal(t, "Kitchen", name)

	t.Run("wrong length", func(t *testing.T) {
		_, err := c.ChangePassword(ctx, "short")
		assert.ErrorIs(t, err, client.ErrMalformedPayload)
		assert.Equal(t, "abcdefghijklmnop", c.Password())
	})
}

func TestConfigureWifi(t *testing.T) {
	ctx := context.Background()

	t.Run("reachable network", func(t *testing.T) {
		dev := newDevice(t)
		c := newClient(t, dev)
		_, err := c.Discover(ctx)
		require.NoError(t, err)

		require.NoError(t, c.ConfigureWifi(ctx, "home", "home-psk"))
		wifi := dev.store.Wifi()
		assert.True(t, wifi.Configured)
		assert.Equal(t, "home", wifi.SSID)
	})

	t.Run("wrong key", func(t *testing.T) {
		dev := newDevice(t)
		c := newClient(t, dev)
		_, err := c.Discover(ctx)
		require.NoError(t, err)

		err = c.ConfigureWifi(ctx, "home", "nope")
		assert.ErrorIs(t, err, client.ErrActionFailed)
		assert.False(t, dev.store.Wifi().Configured)
	})
}

func TestControlAndMeasure(t *testing.T) {
	dev := newDevice(t)
	c := newClient(t, dev)
	ctx := context.Background()
	_, err := c.Discover(ctx)
	require.NoError(t, err)

	require.NoError(t, c.Control(ctx, "on"))
	dev.mu.Lock()
	assert.Equal(t, []string{"on"}, dev.controlled)
	dev.mu.Unlock()

	value, err := c.Measure(ctx, "temperature")
	require.NoError(t, err)
	assert.InDelta(t, 19.25, value, 1e-9)

	assert.ErrorIs(t, c.Control(ctx, "dim"), client.ErrMalformedPayload)
	_, err = c.Measure(ctx, "humidity")
	assert.ErrorIs(t, err, client.ErrMalformedPayload)
}

func TestRestartHaltsDevice(t *testing.T) {
	dev := newDevice(t)
	c := newClient(t, dev)
	ctx := context.Background()
	_, err := c.Discover(ctx)
	require.NoError(t, err)

	require.NoError(t, c.Restart(ctx))

	select {
	case action := <-dev.postActions:
		assert.Equal(t, protocol.Restart, action)
	case <-time.After(2 * time.Second):
		t.Fatal("post action not run")
	}

	_, err = c.Discover(ctx)
	assert.ErrorIs(t, err, client.ErrUnexpectedStatus)
}

func TestResetToDefault(t *testing.T) {
	dev := newDevice(t)
	c := newClient(t, dev)
	ctx := context.Background()
	_, err := c.Discover(ctx)
	require.NoError(t, err)

	require.NoError(t, c.ResetToDefault(ctx))

	select {
	case action := <-dev.postActions:
		assert.Equal(t, protocol.ResetAndRestart, action)
	case <-time.After(2 * time.Second):
		t.Fatal("post action not run")
	}
}

func TestDeviceMismatch(t *testing.T) {
	dev := newDevice(t)
	c, err := client.New(client.Config{
		BaseURL:  dev.http.URL,
		DeviceID: "ffffffffffffffffffffffffffffffff",
		Password: persistence.DefaultPassword,
	})
	require.NoError(t, err)

	_, err = c.FetchNVCN(context.Background())
	assert.ErrorIs(t, err, client.ErrMalformedPayload)
}

func TestWaitReady(t *testing.T) {
	var calls int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n < 3 {
			http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"type":"discover-response","deviceId":"` + testDeviceID + `","deviceType":"lamp","deviceName":"","controlActions":[],"measureActions":[],"currentPasswordNumber":2}`))
	}))
	defer srv.Close()

	c, err := client.New(client.Config{BaseURL: srv.URL})
	require.NoError(t, err)

	resp, err := c.WaitReady(context.Background(), 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), resp.CurrentPasswordNumber)
	assert.Equal(t, testDeviceID, c.DeviceID())
}
