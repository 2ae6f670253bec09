package log

import (
	"context"
	"log/slog"
)

// SlogAdapter mirrors protocol events into an slog.Logger, typically the
// device's console. Traffic goes out at Debug; error events at Warn so a
// failing controller shows up without turning on debug output.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter returns an adapter writing to logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log implements Logger.
func (a *SlogAdapter) Log(event Event) {
	msg, level, attrs := "scp event", slog.LevelDebug, eventAttrs(event)
	switch {
	case event.Request != nil:
		msg = "scp request"
		attrs = append(attrs, requestAttrs(event.Request)...)
	case event.Message != nil:
		msg = "scp message"
		attrs = append(attrs, messageAttrs(event.Direction, event.Message)...)
	case event.StateChange != nil:
		msg = "scp state"
		attrs = append(attrs,
			slog.String("entity", event.StateChange.Entity.String()),
			slog.String("old_state", event.StateChange.OldState),
			slog.String("new_state", event.StateChange.NewState),
		)
		attrs = appendNonEmpty(attrs, "reason", event.StateChange.Reason)
	case event.Error != nil:
		msg, level = "scp error", slog.LevelWarn
		attrs = append(attrs,
			slog.String("error_layer", event.Error.Layer.String()),
			slog.String("error_kind", event.Error.Kind),
			slog.String("error_msg", event.Error.Message),
		)
		attrs = appendNonEmpty(attrs, "error_context", event.Error.Context)
	}
	a.logger.LogAttrs(context.Background(), level, msg, attrs...)
}

func eventAttrs(event Event) []slog.Attr {
	attrs := make([]slog.Attr, 0, 12)
	attrs = append(attrs,
		slog.String("direction", event.Direction.String()),
		slog.String("layer", event.Layer.String()),
	)
	attrs = appendNonEmpty(attrs, "request_id", event.RequestID)
	attrs = appendNonEmpty(attrs, "remote", event.RemoteAddr)
	return appendNonEmpty(attrs, "device_id", event.DeviceID)
}

func requestAttrs(r *RequestEvent) []slog.Attr {
	attrs := []slog.Attr{slog.String("method", r.Method), slog.String("route", r.Route)}
	if len(r.ArgNames) > 0 {
		attrs = append(attrs, slog.Any("args", r.ArgNames))
	}
	// Status is only known once the response is written.
	if r.Status != 0 {
		attrs = append(attrs, slog.Int("status", r.Status), slog.Int("size", r.Size))
	}
	return attrs
}

func messageAttrs(dir Direction, m *MessageEvent) []slog.Attr {
	attrs := appendNonEmpty([]slog.Attr{slog.String("msg_type", m.MessageType)}, "action", m.Action)
	attrs = appendNonEmpty(attrs, "result", m.Result)
	if dir == DirectionOut {
		attrs = append(attrs, slog.Bool("sealed", m.Sealed))
	}
	if m.ProcessingTime != nil {
		attrs = append(attrs, slog.Duration("processing_time", *m.ProcessingTime))
	}
	return attrs
}

func appendNonEmpty(attrs []slog.Attr, key, value string) []slog.Attr {
	if value == "" {
		return attrs
	}
	return append(attrs, slog.String(key, value))
}

var _ Logger = (*SlogAdapter)(nil)
