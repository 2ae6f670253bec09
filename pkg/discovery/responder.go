package discovery

import (
	"encoding/json"

	"github.com/scp-protocol/scp-go/pkg/identity"
	"github.com/scp-protocol/scp-go/pkg/persistence"
)

// HelloPayload is the only payload the responder answers.
const HelloPayload = "discover-hello"

// ResponseType is the type field of the discovery response.
const ResponseType = "discover-response"

// Response is the unauthenticated device description.
type Response struct {
	Type                  string   `json:"type"`
	DeviceID              string   `json:"deviceId"`
	DeviceType            string   `json:"deviceType"`
	DeviceName            string   `json:"deviceName"`
	ControlActions        []string `json:"controlActions"`
	MeasureActions        []string `json:"measureActions"`
	CurrentPasswordNumber uint32   `json:"currentPasswordNumber"`
}

// Store provides the mutable parts of the description.
type Store interface {
	DeviceName() string
	Password() persistence.PasswordRecord
}

// Responder answers discover-hello.
type Responder struct {
	identity identity.Identity
	store    Store
}

// NewResponder creates a responder for a device.
func NewResponder(id identity.Identity, store Store) *Responder {
	return &Responder{identity: id, store: store}
}

// Describe returns the current device description.
func (r *Responder) Describe() Response {
	resp := Response{
		Type:                  ResponseType,
		DeviceID:              r.identity.DeviceID,
		DeviceType:            r.identity.DeviceType,
		DeviceName:            r.store.DeviceName(),
		ControlActions:        r.identity.ControlActions,
		MeasureActions:        r.identity.MeasureActions,
		CurrentPasswordNumber: r.store.Password().Version,
	}
	// Catalogs are always arrays on the wire.
	if resp.ControlActions == nil {
		resp.ControlActions = []string{}
	}
	if resp.MeasureActions == nil {
		resp.MeasureActions = []string{}
	}
	return resp
}

// Respond returns the JSON description for the literal HelloPayload and
// ErrMalformed for anything else.
func (r *Responder) Respond(payload string) ([]byte, error) {
	if payload != HelloPayload {
		return nil, ErrMalformed
	}
	return json.Marshal(r.Describe())
}
