package log

import (
	"context"
	"testing"
	"time"
)

// mockLogger records events for testing
type mockLogger struct {
	events []Event
}

func (m *mockLogger) Log(event Event) {
	m.events = append(m.events, event)
}

func TestNoopLoggerDoesNotPanic(t *testing.T) {
	logger := NoopLogger{}

	event := Event{
		Timestamp: time.Now(),
		RequestID: "req-1",
		Direction: DirectionIn,
		Layer:     LayerTransport,
		Category:  CategoryMessage,
	}
	logger.Log(event)

	event.Request = &RequestEvent{Route: "/secure-control", Method: "POST"}
	logger.Log(event)

	event.Request = nil
	event.Message = &MessageEvent{MessageType: "control"}
	logger.Log(event)

	event.Message = nil
	event.StateChange = &StateChangeEvent{Entity: StateEntityMode, NewState: "CONTROL"}
	logger.Log(event)

	event.StateChange = nil
	event.Error = &ErrorEventData{Kind: "freshness", Message: "test error"}
	logger.Log(event)
}

func TestNoopLoggerIsZeroValue(t *testing.T) {
	var logger NoopLogger
	logger.Log(Event{})
}

func TestMultiLoggerCallsAll(t *testing.T) {
	mock1 := &mockLogger{}
	mock2 := &mockLogger{}

	multi := NewMultiLogger(mock1, mock2)
	multi.Log(Event{RequestID: "req-123", Category: CategoryState})

	for i, mock := range []*mockLogger{mock1, mock2} {
		if len(mock.events) != 1 {
			t.Errorf("logger %d: got %d events, want 1", i, len(mock.events))
			continue
		}
		if mock.events[0].RequestID != "req-123" {
			t.Errorf("logger %d: RequestID = %q, want %q", i, mock.events[0].RequestID, "req-123")
		}
	}
}

func TestMultiLoggerEmptyList(t *testing.T) {
	NewMultiLogger().Log(Event{RequestID: "req-123"})
}

func TestMultiLoggerSkipsNil(t *testing.T) {
	mock := &mockLogger{}
	multi := NewMultiLogger(nil, mock, nil)
	multi.Log(Event{RequestID: "req-7"})

	if len(mock.events) != 1 {
		t.Fatalf("got %d events, want 1", len(mock.events))
	}
}

func TestEnumStrings(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{DirectionIn.String(), "IN"},
		{DirectionOut.String(), "OUT"},
		{Direction(9).String(), "UNKNOWN"},
		{LayerTransport.String(), "TRANSPORT"},
		{LayerProtocol.String(), "PROTOCOL"},
		{LayerService.String(), "SERVICE"},
		{CategoryMessage.String(), "MESSAGE"},
		{CategoryState.String(), "STATE"},
		{CategoryError.String(), "ERROR"},
		{StateEntityMode.String(), "MODE"},
		{StateEntityNVCN.String(), "NVCN"},
		{StateEntityPassword.String(), "PASSWORD"},
		{StateEntityConfiguration.String(), "CONFIGURATION"},
		{StateEntityPower.String(), "POWER"},
		{StateEntity(99).String(), "UNKNOWN"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("String() = %q, want %q", tt.got, tt.want)
		}
	}
}

func TestRequestIDContext(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-9")
	if got := RequestID(ctx); got != "req-9" {
		t.Errorf("RequestID = %q, want %q", got, "req-9")
	}
	if got := RequestID(context.Background()); got != "" {
		t.Errorf("RequestID of empty context = %q, want empty", got)
	}
}
