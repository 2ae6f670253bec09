package network

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff"
)

// Association defaults.
const (
	// DefaultAttempts is the hard ceiling on association polls.
	DefaultAttempts = 40

	// DefaultInterval is the spacing between polls.
	DefaultInterval = time.Second
)

// Associator joins a network with a bounded number of attempts. It blocks
// the caller for at most Attempts × Interval.
type Associator struct {
	Radio    Radio
	Attempts int
	Interval time.Duration
	Logger   *slog.Logger
}

// NewAssociator creates an associator with the default budget.
func NewAssociator(radio Radio, logger *slog.Logger) *Associator {
	return &Associator{
		Radio:    radio,
		Attempts: DefaultAttempts,
		Interval: DefaultInterval,
		Logger:   logger,
	}
}

func (a *Associator) logger() *slog.Logger {
	if a.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return a.Logger
}

// Associate begins association with ssid and polls until the radio reports
// a connection. It returns ErrAssociationFailed when the attempt budget is
// exhausted or ctx ends.
func (a *Associator) Associate(ctx context.Context, ssid, psk string) error {
	if err := a.Radio.Begin(ctx, ssid, psk); err != nil {
		return fmt.Errorf("%w: %v", ErrAssociationFailed, err)
	}

	attempts := a.Attempts
	if attempts < 1 {
		attempts = 1
	}

	try := 0
	op := func() error {
		try++
		if a.Radio.Connected() {
			return nil
		}
		a.logger().Debug("wifi not connected yet", "ssid", ssid, "try", try, "max", attempts)
		return ErrNotConnected
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(a.Interval), uint64(attempts-1)),
		ctx,
	)
	if err := backoff.Retry(op, b); err != nil {
		return fmt.Errorf("%w: %s after %d attempts", ErrAssociationFailed, ssid, try)
	}
	a.logger().Info("wifi connected", "ssid", ssid, "attempts", try)
	return nil
}

// Disconnect drops the current association.
func (a *Associator) Disconnect() error {
	return a.Radio.Disconnect()
}
