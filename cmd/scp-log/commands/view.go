// Package commands implements the scp-log CLI commands.
package commands

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/scp-protocol/scp-go/pkg/log"
)

// ViewFilter selects the events the view command prints.
type ViewFilter struct {
	Layer     *log.Layer
	Direction *log.Direction
	Category  *log.Category
	RequestID string
}

func (f ViewFilter) logFilter() log.Filter {
	return log.Filter{
		Layer:     f.Layer,
		Direction: f.Direction,
		Category:  f.Category,
		RequestID: f.RequestID,
	}
}

// formatEvent prints one event as a header line followed by indented
// details and a blank line:
//
//	2026-03-02T09:30:00.001000Z [req:a1b2c3d4] OUT PROTOCOL measure
//	  Action: temperature
func formatEvent(w io.Writer, event log.Event) {
	fmt.Fprintf(w, "%s [req:%s] %-3s %s %s\n",
		event.Timestamp.UTC().Format(timeLayout), shortenRequestID(event.RequestID),
		event.Direction.String(), event.Layer.String(), eventLabel(event))
	for _, d := range eventDetails(event) {
		fmt.Fprintf(w, "  %s\n", d)
	}
	fmt.Fprintln(w)
}

func eventLabel(event log.Event) string {
	switch {
	case event.Request != nil:
		return event.Request.Method + " " + event.Request.Route
	case event.Message != nil:
		return event.Message.MessageType
	case event.StateChange != nil:
		return "State"
	case event.Error != nil:
		return "Error"
	}
	return "Unknown"
}

// eventDetails returns the detail lines of an event, skipping unset fields.
func eventDetails(event log.Event) []string {
	var lines []string
	add := func(label, value string) {
		if value != "" {
			lines = append(lines, label+": "+value)
		}
	}
	switch {
	case event.Request != nil:
		add("Args", strings.Join(event.Request.ArgNames, ", "))
		if event.Request.Status != 0 {
			lines = append(lines, fmt.Sprintf("Status: %d  Size: %d bytes", event.Request.Status, event.Request.Size))
		}
	case event.Message != nil:
		m := event.Message
		add("Action", m.Action)
		add("Result", m.Result)
		if m.Sealed {
			add("Sealed", "yes")
		}
		if m.ProcessingTime != nil {
			add("Duration", formatDuration(*m.ProcessingTime))
		}
	case event.StateChange != nil:
		sc := event.StateChange
		add("Entity", sc.Entity.String())
		lines = append(lines, strings.TrimSpace(sc.OldState+" -> "+sc.NewState))
		add("Reason", sc.Reason)
	case event.Error != nil:
		e := event.Error
		add("Layer", e.Layer.String())
		add("Kind", e.Kind)
		add("Message", e.Message)
		add("Context", e.Context)
	}
	return lines
}

// shortenRequestID keeps the first UUID group, enough to tell requests
// apart on one screen.
func shortenRequestID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%.3fus", float64(d.Nanoseconds())/1e3)
	case d < time.Second:
		return fmt.Sprintf("%.3fms", float64(d.Microseconds())/1e3)
	}
	return fmt.Sprintf("%.3fs", d.Seconds())
}

var (
	layerNames     = map[string]log.Layer{"transport": log.LayerTransport, "protocol": log.LayerProtocol, "service": log.LayerService}
	directionNames = map[string]log.Direction{"in": log.DirectionIn, "out": log.DirectionOut}
	categoryNames  = map[string]log.Category{"message": log.CategoryMessage, "state": log.CategoryState, "error": log.CategoryError}
)

// parseName looks s up case-insensitively in names.
func parseName[T any](what, s string, names map[string]T) (T, error) {
	if v, ok := names[strings.ToLower(s)]; ok {
		return v, nil
	}
	valid := make([]string, 0, len(names))
	for name := range names {
		valid = append(valid, name)
	}
	sort.Strings(valid)
	var zero T
	return zero, fmt.Errorf("invalid %s: %s (must be one of %s)", what, s, strings.Join(valid, ", "))
}

// ParseLayerFlag parses a layer name (case-insensitive).
func ParseLayerFlag(s string) (log.Layer, error) { return parseName("layer", s, layerNames) }

// ParseDirectionFlag parses a direction name (case-insensitive).
func ParseDirectionFlag(s string) (log.Direction, error) {
	return parseName("direction", s, directionNames)
}

// ParseCategoryFlag parses a category name (case-insensitive).
func ParseCategoryFlag(s string) (log.Category, error) {
	return parseName("category", s, categoryNames)
}

// RunView prints the events of the log at path that match filter.
func RunView(path string, filter ViewFilter, output io.Writer) error {
	reader, err := log.NewFilteredReader(path, filter.logFilter())
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		formatEvent(output, event)
	}
	if reader.Truncated() {
		fmt.Fprintln(output, "(log ends in a truncated event)")
	}
	return nil
}
