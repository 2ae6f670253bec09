package protocol

import (
	"context"
	"sync"
)

// ControlFunc performs a control action.
type ControlFunc func(ctx context.Context, action string) error

// MeasureFunc takes a reading for a measure action.
type MeasureFunc func(ctx context.Context, action string) (float64, error)

// Actions holds the callbacks the embedding application registered.
type Actions struct {
	mu      sync.RWMutex
	control ControlFunc
	measure MeasureFunc
}

// NewActions creates an empty registry.
func NewActions() *Actions {
	return &Actions{}
}

// HandleControl registers the control callback, replacing any previous one.
func (a *Actions) HandleControl(fn ControlFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.control = fn
}

// HandleMeasure registers the measure callback, replacing any previous one.
func (a *Actions) HandleMeasure(fn MeasureFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.measure = fn
}

func (a *Actions) controlFunc() ControlFunc {
	if a == nil {
		return nil
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.control
}

func (a *Actions) measureFunc() MeasureFunc {
	if a == nil {
		return nil
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.measure
}
