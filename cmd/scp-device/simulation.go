package main

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/scp-protocol/scp-go/pkg/protocol"
)

// simulator is a fake appliance behind the control and measure actions.
// "on" and "off" switch it, every other control action is just recorded.
type simulator struct {
	mu      sync.Mutex
	logger  *slog.Logger
	on      bool
	last    string
	started time.Time
}

func newSimulator(logger *slog.Logger) *simulator {
	return &simulator{logger: logger, started: time.Now()}
}

// Register installs the simulator callbacks.
func (s *simulator) Register(actions *protocol.Actions) {
	actions.HandleControl(s.control)
	actions.HandleMeasure(s.measure)
}

func (s *simulator) control(ctx context.Context, action string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch action {
	case "on":
		s.on = true
	case "off":
		s.on = false
	}
	s.last = action
	s.logger.Info("[SIM] control", "action", action, "on", s.on)
	return nil
}

func (s *simulator) measure(ctx context.Context, action string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elapsed := time.Since(s.started).Seconds()
	var v float64
	switch action {
	case "temperature":
		// Slow drift around 21 degrees.
		v = 21 + 1.5*math.Sin(elapsed/60)
	case "power":
		if s.on {
			v = 60 + 5*math.Sin(elapsed/5)
		}
	default:
		return 0, fmt.Errorf("no sensor for %q", action)
	}
	v = math.Round(v*100) / 100
	s.logger.Debug("[SIM] measure", "action", action, "value", v)
	return v, nil
}

// Status describes the simulated appliance.
func (s *simulator) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := "off"
	if s.on {
		state = "on"
	}
	if s.last == "" {
		return state
	}
	return fmt.Sprintf("%s (last action: %s)", state, s.last)
}
