package protocol

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/scp-protocol/scp-go/pkg/command"
	"github.com/scp-protocol/scp-go/pkg/discovery"
	"github.com/scp-protocol/scp-go/pkg/envelope"
	"github.com/scp-protocol/scp-go/pkg/identity"
	"github.com/scp-protocol/scp-go/pkg/log"
	"github.com/scp-protocol/scp-go/pkg/nvcn"
	"github.com/scp-protocol/scp-go/pkg/persistence"
)

// Store is the persisted device state the dispatcher reads and changes.
type Store interface {
	Password() persistence.PasswordRecord
	ChangePassword(password string) (persistence.PasswordRecord, error)
	DeviceName() string
	SetDeviceName(name string) error
	SetWifi(ssid, psk string) error
}

// Associator tries operator credentials on the radio.
type Associator interface {
	Associate(ctx context.Context, ssid, psk string) error
	Disconnect() error
}

// Config configures a Dispatcher.
type Config struct {
	// Identity is the device identity. DeviceID must be set.
	Identity identity.Identity

	// Store holds the password record and configuration.
	Store Store

	// Authority issues and consumes NVCNs. A new one is created if nil.
	Authority *nvcn.Authority

	// Codec opens requests and seals responses. Defaults to
	// ChaCha20-Poly1305.
	Codec *envelope.Codec

	// Associator verifies wifi-config credentials.
	Associator Associator

	// Actions holds the control and measure callbacks.
	Actions *Actions

	// RestrictActions rejects control and measure actions outside the
	// identity catalogs before the NVCN is consumed. By default every
	// action name is handed to the registered callback.
	RestrictActions bool

	// Logger for debug output (optional).
	Logger *slog.Logger

	// ProtocolLogger receives structured protocol events (optional).
	ProtocolLogger log.Logger
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Identity.DeviceID == "" {
		return errors.New("device ID is required")
	}
	if c.Store == nil {
		return errors.New("store is required")
	}
	if c.Associator == nil {
		return errors.New("associator is required")
	}
	return nil
}

// Dispatcher authenticates, authorizes and executes commands.
type Dispatcher struct {
	mu sync.Mutex

	identity   identity.Identity
	store      Store
	authority  *nvcn.Authority
	codec      *envelope.Codec
	associator Associator
	actions    *Actions
	restrict   bool
	responder  *discovery.Responder

	logger         *slog.Logger
	protocolLogger log.Logger

	eventMu sync.RWMutex
	onEvent EventHandler

	now func() time.Time
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(config Config) (*Dispatcher, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	d := &Dispatcher{
		identity:       config.Identity,
		store:          config.Store,
		authority:      config.Authority,
		codec:          config.Codec,
		associator:     config.Associator,
		actions:        config.Actions,
		restrict:       config.RestrictActions,
		logger:         config.Logger,
		protocolLogger: config.ProtocolLogger,
		now:            time.Now,
	}
	if d.authority == nil {
		d.authority = nvcn.NewAuthority()
	}
	if d.codec == nil {
		d.codec = envelope.NewCodec(envelope.ChaCha20Poly1305{})
	}
	if d.actions == nil {
		d.actions = NewActions()
	}
	d.responder = discovery.NewResponder(d.identity, d.store)
	if d.logger == nil {
		d.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if d.protocolLogger == nil {
		d.protocolLogger = log.NoopLogger{}
	}
	return d, nil
}

// Authority returns the NVCN authority.
func (d *Dispatcher) Authority() *nvcn.Authority {
	return d.authority
}

// Identity returns the device identity.
func (d *Dispatcher) Identity() identity.Identity {
	return d.identity
}

// OnEvent registers a handler for dispatcher events.
func (d *Dispatcher) OnEvent(fn EventHandler) {
	d.eventMu.Lock()
	defer d.eventMu.Unlock()
	d.onEvent = fn
}

func (d *Dispatcher) emit(e Event) {
	d.eventMu.RLock()
	fn := d.onEvent
	d.eventMu.RUnlock()
	if fn != nil {
		fn(e)
	}
}

// Lock acquires the protocol state lock. Holders may read and change the
// store without racing a request in flight.
func (d *Dispatcher) Lock() { d.mu.Lock() }

// Unlock releases the protocol state lock.
func (d *Dispatcher) Unlock() { d.mu.Unlock() }

// Discover answers a /secure-control/discover-hello request.
func (d *Dispatcher) Discover(ctx context.Context, payload string) Result {
	start := d.now()

	d.mu.Lock()
	body, err := d.responder.Respond(payload)
	d.mu.Unlock()

	var res Result
	if err != nil {
		res = malformed(TypeDiscoverHello, err)
		d.logError(ctx, res)
	} else {
		res = jsonResult(TypeDiscoverHello, body, false)
	}
	d.logMessage(ctx, res, start)
	return res
}

// SecureControl processes one /secure-control request.
func (d *Dispatcher) SecureControl(ctx context.Context, env envelope.Envelope) Result {
	start := d.now()

	d.mu.Lock()
	res := d.secureControl(ctx, env)
	d.mu.Unlock()

	if res.Malformed() {
		d.logger.Debug("malformed payload", "type", res.MessageType, "kind", Kind(res.Err), "error", res.Err)
		d.logError(ctx, res)
		d.emit(Event{Type: EventRejected, Err: res.Err})
	}
	d.logMessage(ctx, res, start)
	return res
}

func (d *Dispatcher) secureControl(ctx context.Context, env envelope.Envelope) Result {
	plaintext, err := d.codec.Open(env, d.store.Password().Password)
	if err != nil {
		return malformed("", fmt.Errorf("%w: %v", ErrDecryption, err))
	}

	cmd, err := command.Parse(plaintext)
	if err != nil {
		return malformed("", err)
	}
	t := cmd.Type()

	if !d.ownDeviceID(cmd.Head().DeviceID) {
		return malformed(t, ErrIdentityMismatch)
	}

	if c, ok := cmd.(command.FetchNVCN); ok {
		return d.fetchNVCN(c)
	}

	p, ok := cmd.(command.Privileged)
	if !ok {
		return malformed(t, ErrUnknownMessageType)
	}
	if err := d.validate(cmd); err != nil {
		return malformed(t, err)
	}
	if err := d.authority.Consume(p.Freshness()); err != nil {
		return malformed(t, err)
	}

	switch c := cmd.(type) {
	case command.PasswordChange:
		return d.changePassword(c)
	case command.Rename:
		return d.rename(c)
	case command.WifiConfig:
		return d.configureWifi(ctx, c)
	case command.ResetToDefault:
		return d.resetToDefault(c)
	case command.Restart:
		return d.restart(c)
	case command.Control:
		return d.control(ctx, c)
	case command.Measure:
		return d.measure(ctx, c)
	}
	return malformed(t, ErrUnknownMessageType)
}

func (d *Dispatcher) ownDeviceID(candidate string) bool {
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(d.identity.DeviceID)) == 1
}

// validate rejects requests that could never succeed before their NVCN is
// consumed.
func (d *Dispatcher) validate(cmd command.Command) error {
	switch c := cmd.(type) {
	case command.PasswordChange:
		if len(c.NewPassword) != persistence.PasswordLength {
			return ErrPasswordLength
		}
	case command.Control:
		if d.actions.controlFunc() == nil || (d.restrict && !d.identity.SupportsControl(c.Action)) {
			return fmt.Errorf("%w: %q", ErrUnknownAction, c.Action)
		}
	case command.Measure:
		if d.actions.measureFunc() == nil || (d.restrict && !d.identity.SupportsMeasure(c.Action)) {
			return fmt.Errorf("%w: %q", ErrUnknownAction, c.Action)
		}
	}
	return nil
}

func (d *Dispatcher) fetchNVCN(c command.FetchNVCN) Result {
	token, err := d.authority.Issue()
	if err != nil {
		return malformed(c.Type(), err)
	}
	body, err := json.Marshal(FetchNVCNResponse{
		Type:     string(c.Type()),
		DeviceID: d.identity.DeviceID,
		NVCN:     token,
	})
	if err != nil {
		return malformed(c.Type(), err)
	}
	d.emit(Event{Type: EventNVCNIssued})
	return jsonResult(c.Type(), body, false)
}

func (d *Dispatcher) changePassword(c command.PasswordChange) Result {
	rec, err := d.store.ChangePassword(c.NewPassword)
	if err != nil {
		return malformed(c.Type(), fmt.Errorf("%w: %v", ErrStorage, err))
	}
	d.logger.Info("password changed", "version", rec.Version)
	d.emit(Event{Type: EventPasswordChanged, PasswordVersion: rec.Version})

	return d.seal(c.Type(), None, PasswordChangeResponse{
		Type:                  string(c.Type()),
		DeviceID:              d.identity.DeviceID,
		CurrentPasswordNumber: rec.Version,
		Result:                ResultDone,
	}).withOutcome("", ResultDone)
}

func (d *Dispatcher) rename(c command.Rename) Result {
	if err := d.store.SetDeviceName(c.NewName); err != nil {
		return malformed(c.Type(), fmt.Errorf("%w: %v", ErrStorage, err))
	}
	name := d.store.DeviceName()
	d.logger.Info("device renamed", "name", name)
	d.emit(Event{Type: EventRenamed, Name: name})

	return d.seal(c.Type(), None, RenameResponse{
		Type:     string(c.Type()),
		DeviceID: d.identity.DeviceID,
		NewName:  name,
		Result:   ResultDone,
	}).withOutcome("", ResultDone)
}

func (d *Dispatcher) configureWifi(ctx context.Context, c command.WifiConfig) Result {
	result := ResultSuccess
	if err := d.associator.Associate(ctx, c.SSID, c.PreSharedKey); err != nil {
		d.logger.Warn("wifi credentials rejected", "ssid", c.SSID, "error", err)
		d.emit(Event{Type: EventWifiFailed, SSID: c.SSID, Err: fmt.Errorf("%w: %v", ErrAssociation, err)})
		result = ResultError
	} else {
		if err := d.associator.Disconnect(); err != nil {
			d.logger.Warn("disconnect after wifi check failed", "error", err)
		}
		if err := d.store.SetWifi(c.SSID, c.PreSharedKey); err != nil {
			return malformed(c.Type(), fmt.Errorf("%w: %v", ErrStorage, err))
		}
		d.logger.Info("wifi credentials stored", "ssid", c.SSID)
		d.emit(Event{Type: EventWifiConfigured, SSID: c.SSID})
	}

	return d.seal(c.Type(), None, StatusResponse{
		Type:     string(c.Type()),
		DeviceID: d.identity.DeviceID,
		Result:   result,
	}).withOutcome("", result)
}

func (d *Dispatcher) resetToDefault(c command.ResetToDefault) Result {
	d.emit(Event{Type: EventResetRequested})
	return d.seal(c.Type(), ResetAndRestart, StatusResponse{
		Type:     string(c.Type()),
		DeviceID: d.identity.DeviceID,
		Result:   ResultSuccess,
	}).withOutcome("", ResultSuccess)
}

func (d *Dispatcher) restart(c command.Restart) Result {
	d.emit(Event{Type: EventRestartRequested})
	return d.seal(c.Type(), Restart, StatusResponse{
		Type:     string(c.Type()),
		DeviceID: d.identity.DeviceID,
		Result:   ResultSuccess,
	}).withOutcome("", ResultSuccess)
}

func (d *Dispatcher) control(ctx context.Context, c command.Control) Result {
	if err := d.actions.controlFunc()(ctx, c.Action); err != nil {
		return malformed(c.Type(), fmt.Errorf("%w: %q: %v", ErrUnknownAction, c.Action, err))
	}
	d.emit(Event{Type: EventControl, Action: c.Action})

	return d.seal(c.Type(), None, ControlResponse{
		Type:     string(c.Type()),
		DeviceID: d.identity.DeviceID,
		Action:   c.Action,
		Result:   ResultSuccess,
	}).withOutcome(c.Action, ResultSuccess)
}

func (d *Dispatcher) measure(ctx context.Context, c command.Measure) Result {
	value, err := d.actions.measureFunc()(ctx, c.Action)
	if err != nil {
		return malformed(c.Type(), fmt.Errorf("%w: %q: %v", ErrUnknownAction, c.Action, err))
	}
	// JSON has no encoding for NaN or infinities.
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return malformed(c.Type(), fmt.Errorf("%w: %q: %v", ErrInvalidReading, c.Action, value))
	}
	d.emit(Event{Type: EventMeasure, Action: c.Action, Value: value})

	return d.seal(c.Type(), None, MeasureResponse{
		Type:     string(c.Type()),
		DeviceID: d.identity.DeviceID,
		Action:   c.Action,
		Value:    value,
		Result:   ResultSuccess,
	}).withOutcome(c.Action, ResultSuccess)
}

// seal serializes v and authenticates it with the password in effect now,
// which after a password change is the new one.
func (d *Dispatcher) seal(t command.MessageType, after PostAction, v any) Result {
	body, err := json.Marshal(v)
	if err != nil {
		return malformed(t, err)
	}
	sealed, err := d.codec.Seal(body, d.store.Password().Password)
	if err != nil {
		return malformed(t, err)
	}
	res := jsonResult(t, sealed, true)
	res.After = after
	return res
}

func (d *Dispatcher) logMessage(ctx context.Context, res Result, start time.Time) {
	elapsed := d.now().Sub(start)
	result := res.Outcome
	if res.Malformed() {
		result = "malformed"
	}
	d.protocolLogger.Log(log.Event{
		Timestamp: d.now(),
		RequestID: log.RequestID(ctx),
		Direction: log.DirectionOut,
		Layer:     log.LayerProtocol,
		Category:  log.CategoryMessage,
		DeviceID:  d.identity.DeviceID,
		Message: &log.MessageEvent{
			MessageType:    string(res.MessageType),
			Result:         result,
			Sealed:         res.Sealed,
			Action:         res.Action,
			ProcessingTime: &elapsed,
		},
	})
}

func (d *Dispatcher) logError(ctx context.Context, res Result) {
	d.protocolLogger.Log(log.Event{
		Timestamp: d.now(),
		RequestID: log.RequestID(ctx),
		Direction: log.DirectionIn,
		Layer:     log.LayerProtocol,
		Category:  log.CategoryError,
		DeviceID:  d.identity.DeviceID,
		Error: &log.ErrorEventData{
			Layer:   log.LayerProtocol,
			Kind:    Kind(res.Err),
			Message: res.Err.Error(),
			Context: string(res.MessageType),
		},
	})
}
