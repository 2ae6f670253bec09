package log

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// A protocol log is a CBOR sequence: events are appended one after another
// as requests are served, each a definite-length map with integer keys.
var (
	eventEncMode = mustEncMode(cbor.EncOptions{
		Sort:        cbor.SortCoreDeterministic,
		IndefLength: cbor.IndefLengthForbidden,
		Time:        cbor.TimeRFC3339Nano,
	})
	eventDecMode = mustDecMode(cbor.DecOptions{
		DupMapKey:       cbor.DupMapKeyEnforcedAPF,
		IndefLength:     cbor.IndefLengthForbidden,
		MaxNestedLevels: 8,
	})
)

func mustEncMode(opts cbor.EncOptions) cbor.EncMode {
	m, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("log: cbor encoder options: %v", err))
	}
	return m
}

func mustDecMode(opts cbor.DecOptions) cbor.DecMode {
	m, err := opts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("log: cbor decoder options: %v", err))
	}
	return m
}

// EncodeEvent returns the CBOR encoding of one event.
func EncodeEvent(event Event) ([]byte, error) {
	return eventEncMode.Marshal(event)
}

// DecodeEvent decodes a single event. Duplicate keys and indefinite-length
// items are rejected; both mean the data was not written by FileLogger.
func DecodeEvent(data []byte) (Event, error) {
	var event Event
	if err := eventDecMode.Unmarshal(data, &event); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	return event, nil
}

func newEventEncoder(w io.Writer) *cbor.Encoder {
	return eventEncMode.NewEncoder(w)
}

func newEventDecoder(r io.Reader) *cbor.Decoder {
	return eventDecMode.NewDecoder(r)
}
