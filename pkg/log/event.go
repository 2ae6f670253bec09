package log

import "time"

// Event represents a protocol log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// RequestID correlates every event of one HTTP request (UUID).
	RequestID string `cbor:"2,keyasint,omitempty"`

	// Direction indicates message flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// RemoteAddr is the peer address (IP:port).
	RemoteAddr string `cbor:"6,keyasint,omitempty"`

	// DeviceID is the identifier of the local device.
	DeviceID string `cbor:"7,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Request     *RequestEvent     `cbor:"8,keyasint,omitempty"`  // Transport layer
	Message     *MessageEvent     `cbor:"9,keyasint,omitempty"`  // Protocol layer
	StateChange *StateChangeEvent `cbor:"10,keyasint,omitempty"` // Mode, NVCN, configuration
	Error       *ErrorEventData   `cbor:"11,keyasint,omitempty"` // Errors at any layer
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates an incoming message.
	DirectionIn Direction = 0
	// DirectionOut indicates an outgoing message.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which protocol layer captured the event.
type Layer uint8

const (
	// LayerTransport is the HTTP layer (routes and arguments).
	LayerTransport Layer = 0
	// LayerProtocol is the envelope, grammar and dispatch layer.
	LayerProtocol Layer = 1
	// LayerService is the device service layer.
	LayerService Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerProtocol:
		return "PROTOCOL"
	case LayerService:
		return "SERVICE"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage indicates a request or response.
	CategoryMessage Category = 0
	// CategoryState indicates a state change.
	CategoryState Category = 1
	// CategoryError indicates an error event.
	CategoryError Category = 2
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// RequestEvent captures an HTTP request as the transport saw it.
// Argument values are never recorded, only their names.
type RequestEvent struct {
	// Route is the request path.
	Route string `cbor:"1,keyasint"`

	// Method is the HTTP method.
	Method string `cbor:"2,keyasint"`

	// ArgNames lists the argument names in arrival order.
	ArgNames []string `cbor:"3,keyasint,omitempty"`

	// Status is the HTTP status written (responses only).
	Status int `cbor:"4,keyasint,omitempty"`

	// Size is the response body size in bytes (responses only).
	Size int `cbor:"5,keyasint,omitempty"`
}

// MessageEvent captures a decoded protocol message.
type MessageEvent struct {
	// MessageType is the command type (for example "control").
	MessageType string `cbor:"1,keyasint"`

	// Result is the result string of the response, if any.
	Result string `cbor:"2,keyasint,omitempty"`

	// Sealed indicates the response was authenticated.
	Sealed bool `cbor:"3,keyasint,omitempty"`

	// Action is the control or measure action name.
	Action string `cbor:"4,keyasint,omitempty"`

	// ProcessingTime is the duration from request receipt to response.
	ProcessingTime *time.Duration `cbor:"5,keyasint,omitempty"`
}

// StateChangeEvent captures lifecycle changes of device state.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityMode indicates an operating mode change.
	StateEntityMode StateEntity = 0
	// StateEntityNVCN indicates an NVCN lifecycle change.
	StateEntityNVCN StateEntity = 1
	// StateEntityPassword indicates a password version change.
	StateEntityPassword StateEntity = 2
	// StateEntityConfiguration indicates a name or Wi-Fi change.
	StateEntityConfiguration StateEntity = 3
	// StateEntityPower indicates a restart or factory reset.
	StateEntityPower StateEntity = 4
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityMode:
		return "MODE"
	case StateEntityNVCN:
		return "NVCN"
	case StateEntityPassword:
		return "PASSWORD"
	case StateEntityConfiguration:
		return "CONFIGURATION"
	case StateEntityPower:
		return "POWER"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Kind is the error class (decryption, grammar, identity, freshness,
	// unknown-type, association, internal).
	Kind string `cbor:"2,keyasint"`

	// Message is the error message.
	Message string `cbor:"3,keyasint"`

	// Context describes what operation was being performed.
	Context string `cbor:"4,keyasint,omitempty"`
}
