package protocol

// EventType identifies a state change made by a handler.
type EventType uint8

const (
	// EventNVCNIssued - a new NVCN was issued.
	EventNVCNIssued EventType = iota

	// EventPasswordChanged - the password was rotated.
	EventPasswordChanged

	// EventRenamed - the device name changed.
	EventRenamed

	// EventWifiConfigured - credentials were verified and stored.
	EventWifiConfigured

	// EventWifiFailed - the association budget was exhausted.
	EventWifiFailed

	// EventControl - a control action ran.
	EventControl

	// EventMeasure - a measure action ran.
	EventMeasure

	// EventRestartRequested - a restart was scheduled.
	EventRestartRequested

	// EventResetRequested - a factory reset was scheduled.
	EventResetRequested

	// EventRejected - a request collapsed to the malformed-payload response.
	EventRejected
)

// String returns the event type name.
func (e EventType) String() string {
	switch e {
	case EventNVCNIssued:
		return "NVCN_ISSUED"
	case EventPasswordChanged:
		return "PASSWORD_CHANGED"
	case EventRenamed:
		return "RENAMED"
	case EventWifiConfigured:
		return "WIFI_CONFIGURED"
	case EventWifiFailed:
		return "WIFI_FAILED"
	case EventControl:
		return "CONTROL"
	case EventMeasure:
		return "MEASURE"
	case EventRestartRequested:
		return "RESTART_REQUESTED"
	case EventResetRequested:
		return "RESET_REQUESTED"
	case EventRejected:
		return "REJECTED"
	default:
		return "UNKNOWN"
	}
}

// Event describes a handled request. Secrets are never included.
type Event struct {
	Type EventType

	// Action is the control or measure action name.
	Action string

	// Value is the measured reading.
	Value float64

	// PasswordVersion is the version after a password change.
	PasswordVersion uint32

	// Name is the new device name.
	Name string

	// SSID is the network of a wifi-config request.
	SSID string

	// Err is the rejection or association cause.
	Err error
}

// EventHandler receives dispatcher events.
type EventHandler func(Event)
