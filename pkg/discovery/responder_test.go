package discovery_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/scp-protocol/scp-go/pkg/discovery"
	"github.com/scp-protocol/scp-go/pkg/identity"
	"github.com/scp-protocol/scp-go/pkg/persistence"
)

func newResponder(t *testing.T) (*discovery.Responder, *persistence.Store) {
	t.Helper()
	store, err := persistence.NewStore(persistence.NewMemoryBackend())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := store.SetDefaultPassword(); err != nil {
		t.Fatalf("SetDefaultPassword: %v", err)
	}
	id := identity.Identity{
		DeviceID:       "0123456789abcdef0123456789abcdef",
		DeviceType:     "lamp",
		ControlActions: []string{"on", "off"},
		MeasureActions: []string{"brightness"},
	}
	return discovery.NewResponder(id, store), store
}

// TestResponderFreshDevice verifies the description of a freshly booted device.
func TestResponderFreshDevice(t *testing.T) {
	r, _ := newResponder(t)

	body, err := r.Respond(discovery.HelloPayload)
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}

	want := map[string]any{
		"type":                  "discover-response",
		"deviceId":              "0123456789abcdef0123456789abcdef",
		"deviceType":            "lamp",
		"deviceName":            "",
		"currentPasswordNumber": float64(0),
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %v, want %v", k, got[k], v)
		}
	}
	if actions, ok := got["controlActions"].([]any); !ok || len(actions) != 2 {
		t.Errorf("controlActions = %v, want 2 entries", got["controlActions"])
	}
	if actions, ok := got["measureActions"].([]any); !ok || len(actions) != 1 {
		t.Errorf("measureActions = %v, want 1 entry", got["measureActions"])
	}
}

// TestResponderTracksStore verifies name and password version come from the store.
func TestResponderTracksStore(t *testing.T) {
	r, store := newResponder(t)

	if err := store.SetDeviceName("kitchen"); err != nil {
		t.Fatalf("SetDeviceName: %v", err)
	}
	if _, err := store.ChangePassword("abcdefghijklmnop"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}

	desc := r.Describe()
	if desc.DeviceName != "kitchen" {
		t.Errorf("DeviceName = %q, want %q", desc.DeviceName, "kitchen")
	}
	if desc.CurrentPasswordNumber != 1 {
		t.Errorf("CurrentPasswordNumber = %d, want 1", desc.CurrentPasswordNumber)
	}
}

// TestResponderRejectsOtherPayloads verifies only the literal hello is answered.
func TestResponderRejectsOtherPayloads(t *testing.T) {
	r, _ := newResponder(t)

	for _, payload := range []string{"", "discover", "discover-hello ", "DISCOVER-HELLO"} {
		if _, err := r.Respond(payload); !errors.Is(err, discovery.ErrMalformed) {
			t.Errorf("Respond(%q) error = %v, want ErrMalformed", payload, err)
		}
	}
}

// TestResponderEmptyCatalogs verifies catalogs are encoded as arrays.
func TestResponderEmptyCatalogs(t *testing.T) {
	store, _ := persistence.NewStore(persistence.NewMemoryBackend())
	r := discovery.NewResponder(identity.Identity{DeviceID: "id", DeviceType: "plug"}, store)

	body, err := r.Respond(discovery.HelloPayload)
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	if _, ok := got["controlActions"].([]any); !ok {
		t.Errorf("controlActions = %v, want empty array", got["controlActions"])
	}
}
