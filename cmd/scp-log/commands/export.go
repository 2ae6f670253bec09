package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/scp-protocol/scp-go/pkg/log"
)

const timeLayout = "2006-01-02T15:04:05.000000Z"

// record is the flat, tool-friendly form of an event. JSONL and CSV share
// it so both exports carry the same columns.
type record struct {
	Timestamp   string  `json:"timestamp"`
	RequestID   string  `json:"request_id,omitempty"`
	Remote      string  `json:"remote,omitempty"`
	Direction   string  `json:"direction"`
	Layer       string  `json:"layer"`
	Category    string  `json:"category"`
	DeviceID    string  `json:"device_id,omitempty"`
	Kind        string  `json:"kind"`
	Route       string  `json:"route,omitempty"`
	Status      int     `json:"status,omitempty"`
	MessageType string  `json:"msg_type,omitempty"`
	Action      string  `json:"action,omitempty"`
	Result      string  `json:"result,omitempty"`
	Sealed      bool    `json:"sealed,omitempty"`
	DurationMS  float64 `json:"duration_ms,omitempty"`
	Detail      string  `json:"detail,omitempty"`
}

var csvHeader = []string{
	"timestamp", "request_id", "remote", "direction", "layer", "category", "device_id",
	"kind", "route", "status", "msg_type", "action", "result", "sealed", "duration_ms", "detail",
}

func toRecord(e log.Event) record {
	r := record{
		Timestamp: e.Timestamp.UTC().Format(timeLayout),
		RequestID: e.RequestID,
		Remote:    e.RemoteAddr,
		Direction: e.Direction.String(),
		Layer:     e.Layer.String(),
		Category:  e.Category.String(),
		DeviceID:  e.DeviceID,
		Kind:      "unknown",
	}
	switch {
	case e.Request != nil:
		r.Kind = "request"
		r.Route = e.Request.Route
		r.Status = e.Request.Status
	case e.Message != nil:
		r.Kind = e.Message.MessageType
		r.MessageType = e.Message.MessageType
		r.Action = e.Message.Action
		r.Result = e.Message.Result
		r.Sealed = e.Message.Sealed
		if e.Message.ProcessingTime != nil {
			r.DurationMS = float64(*e.Message.ProcessingTime) / float64(time.Millisecond)
		}
	case e.StateChange != nil:
		r.Kind = "state"
		r.Detail = e.StateChange.Entity.String() + "=" + e.StateChange.NewState
	case e.Error != nil:
		r.Kind = "error"
		r.MessageType = e.Error.Context
		r.Detail = e.Error.Kind + ": " + e.Error.Message
	}
	return r
}

func (r record) row() []string {
	status, duration := "", ""
	if r.Status != 0 {
		status = strconv.Itoa(r.Status)
	}
	if r.DurationMS != 0 {
		duration = strconv.FormatFloat(r.DurationMS, 'f', 3, 64)
	}
	return []string{
		r.Timestamp, r.RequestID, r.Remote, r.Direction, r.Layer, r.Category, r.DeviceID,
		r.Kind, r.Route, status, r.MessageType, r.Action, r.Result, strconv.FormatBool(r.Sealed), duration, r.Detail,
	}
}

// RunExport writes every event of the log at path to output (stdout when
// empty) as jsonl or csv.
func RunExport(path, format, output string) error {
	if format != "jsonl" && format != "csv" {
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}
	var write func(record) error
	var flush func() error

	w, closeOut, err := openOutput(output)
	if err != nil {
		return err
	}
	defer closeOut()

	switch format {
	case "jsonl":
		enc := json.NewEncoder(w)
		write = func(r record) error { return enc.Encode(r) }
		flush = func() error { return nil }
	case "csv":
		cw := csv.NewWriter(w)
		if err := cw.Write(csvHeader); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
		write = func(r record) error { return cw.Write(r.row()) }
		flush = func() error { cw.Flush(); return cw.Error() }
	}

	reader, err := log.NewReader(path)
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
		if err := write(toRecord(event)); err != nil {
			return fmt.Errorf("write %s: %w", format, err)
		}
	}
	return flush()
}

func openOutput(path string) (io.Writer, func(), error) {
	if path == "" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, func() { f.Close() }, nil
}
