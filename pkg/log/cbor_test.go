package log

import (
	"testing"
	"time"
)

func TestEventCBORRoundTrip(t *testing.T) {
	ts := time.Date(2026, 1, 28, 10, 15, 32, 123456789, time.UTC)
	elapsed := 42 * time.Millisecond
	original := Event{
		Timestamp:  ts,
		RequestID:  "abc12345-def6-7890-abcd-ef1234567890",
		Direction:  DirectionOut,
		Layer:      LayerProtocol,
		Category:   CategoryMessage,
		RemoteAddr: "192.168.4.2:51234",
		DeviceID:   "0f1e2d3c4b5a69788796a5b4c3d2e1f0",
		Message: &MessageEvent{
			MessageType:    "measure",
			Result:         "success",
			Sealed:         true,
			Action:         "temperature",
			ProcessingTime: &elapsed,
		},
	}

	data, err := EncodeEvent(original)
	if err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}

	decoded, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}

	if !decoded.Timestamp.Equal(original.Timestamp) {
		t.Errorf("Timestamp: got %v, want %v", decoded.Timestamp, original.Timestamp)
	}
	if decoded.RequestID != original.RequestID {
		t.Errorf("RequestID: got %q, want %q", decoded.RequestID, original.RequestID)
	}
	if decoded.Direction != original.Direction || decoded.Layer != original.Layer || decoded.Category != original.Category {
		t.Errorf("classification: got %v/%v/%v", decoded.Direction, decoded.Layer, decoded.Category)
	}
	if decoded.RemoteAddr != original.RemoteAddr || decoded.DeviceID != original.DeviceID {
		t.Errorf("addressing: got %q/%q", decoded.RemoteAddr, decoded.DeviceID)
	}
	if decoded.Message == nil {
		t.Fatal("Message is nil")
	}
	if decoded.Message.MessageType != "measure" || decoded.Message.Action != "temperature" || !decoded.Message.Sealed {
		t.Errorf("Message: got %+v", decoded.Message)
	}
	if decoded.Message.ProcessingTime == nil || *decoded.Message.ProcessingTime != elapsed {
		t.Errorf("ProcessingTime: got %v, want %v", decoded.Message.ProcessingTime, elapsed)
	}
}

func TestStateAndErrorEventCBORRoundTrip(t *testing.T) {
	events := []Event{
		{
			Timestamp:   time.Now(),
			Layer:       LayerService,
			Category:    CategoryState,
			StateChange: &StateChangeEvent{Entity: StateEntityNVCN, OldState: "CONSUMED", NewState: "ISSUED"},
		},
		{
			Timestamp: time.Now(),
			Layer:     LayerProtocol,
			Category:  CategoryError,
			Error:     &ErrorEventData{Layer: LayerProtocol, Kind: "freshness", Message: "nvcn rejected", Context: "control"},
		},
	}

	for _, e := range events {
		data, err := EncodeEvent(e)
		if err != nil {
			t.Fatalf("EncodeEvent failed: %v", err)
		}
		decoded, err := DecodeEvent(data)
		if err != nil {
			t.Fatalf("DecodeEvent failed: %v", err)
		}
		switch {
		case e.StateChange != nil:
			if decoded.StateChange == nil || *decoded.StateChange != *e.StateChange {
				t.Errorf("StateChange: got %+v, want %+v", decoded.StateChange, e.StateChange)
			}
		case e.Error != nil:
			if decoded.Error == nil || *decoded.Error != *e.Error {
				t.Errorf("Error: got %+v, want %+v", decoded.Error, e.Error)
			}
		}
	}
}

func TestDecodeEventInvalid(t *testing.T) {
	if _, err := DecodeEvent([]byte{0xff, 0xff}); err == nil {
		t.Error("DecodeEvent of garbage succeeded, want error")
	}
}

func TestDecodeEventRejectsIndefiniteLength(t *testing.T) {
	// An empty indefinite-length map: well-formed CBOR, but never written
	// by FileLogger.
	if _, err := DecodeEvent([]byte{0xbf, 0xff}); err == nil {
		t.Error("DecodeEvent of indefinite-length map succeeded, want error")
	}
	if _, err := DecodeEvent([]byte{0xa0}); err != nil {
		t.Errorf("DecodeEvent of empty definite map failed: %v", err)
	}
}
