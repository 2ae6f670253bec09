package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/scp-protocol/scp-go/pkg/discovery"
	"github.com/scp-protocol/scp-go/pkg/identity"
	"github.com/scp-protocol/scp-go/pkg/log"
	"github.com/scp-protocol/scp-go/pkg/mode"
	"github.com/scp-protocol/scp-go/pkg/network"
	"github.com/scp-protocol/scp-go/pkg/nvcn"
	"github.com/scp-protocol/scp-go/pkg/persistence"
	"github.com/scp-protocol/scp-go/pkg/protocol"
	"github.com/scp-protocol/scp-go/pkg/transport"
)

// DeviceService runs one boot of an SCP device.
type DeviceService struct {
	mu sync.RWMutex

	config  DeviceConfig
	state   ServiceState
	store   *persistence.Store
	radio   network.Radio
	actions *protocol.Actions

	identity   identity.Identity
	machine    *mode.Machine
	dispatcher *protocol.Dispatcher
	server     *transport.Server
	advertiser discovery.Advertiser
	advertised bool

	restarts    chan protocol.PostAction
	restartOnce sync.Once

	eventHandlers []EventHandler

	logger         *slog.Logger
	protocolLogger log.Logger
}

// NewDeviceService creates a device service over persisted state and a radio.
func NewDeviceService(store *persistence.Store, radio network.Radio, actions *protocol.Actions, config DeviceConfig) (*DeviceService, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if store == nil || radio == nil {
		return nil, fmt.Errorf("%w: store and radio are required", ErrInvalidConfig)
	}
	if actions == nil {
		actions = protocol.NewActions()
	}

	svc := &DeviceService{
		config:         config,
		state:          StateIdle,
		store:          store,
		radio:          radio,
		actions:        actions,
		advertiser:     config.Advertiser,
		restarts:       make(chan protocol.PostAction, 1),
		logger:         config.Logger,
		protocolLogger: config.ProtocolLogger,
	}
	if svc.logger == nil {
		svc.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if svc.protocolLogger == nil {
		svc.protocolLogger = log.NoopLogger{}
	}
	return svc, nil
}

// State returns the current service state.
func (s *DeviceService) State() ServiceState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// OnEvent registers an event handler.
func (s *DeviceService) OnEvent(handler EventHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eventHandlers = append(s.eventHandlers, handler)
}

func (s *DeviceService) emit(e Event) {
	s.mu.RLock()
	handlers := append([]EventHandler(nil), s.eventHandlers...)
	if e.DeviceID == "" {
		e.DeviceID = s.identity.DeviceID
	}
	s.mu.RUnlock()

	for _, h := range handlers {
		h(e)
	}
}

// Restarts delivers the post action that ended this service. At most one
// value is ever sent.
func (s *DeviceService) Restarts() <-chan protocol.PostAction {
	return s.restarts
}

// Identity returns the device identity. Valid after Start.
func (s *DeviceService) Identity() identity.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

// Mode returns the operating mode.
func (s *DeviceService) Mode() mode.Mode {
	s.mu.RLock()
	m := s.machine
	s.mu.RUnlock()
	if m == nil {
		return mode.Unknown
	}
	return m.Mode()
}

// AccessPoint returns the provisioning access point name, if open.
func (s *DeviceService) AccessPoint() string {
	s.mu.RLock()
	m := s.machine
	s.mu.RUnlock()
	if m == nil {
		return ""
	}
	return m.AccessPoint()
}

// Store returns the persisted state.
func (s *DeviceService) Store() *persistence.Store {
	return s.store
}

// Dispatcher returns the protocol dispatcher. Valid after Start.
func (s *DeviceService) Dispatcher() *protocol.Dispatcher {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dispatcher
}

// NVCNState returns the state of the NVCN authority.
func (s *DeviceService) NVCNState() nvcn.State {
	d := s.Dispatcher()
	if d == nil {
		return nvcn.StateUnissued
	}
	return d.Authority().State()
}

// Addr returns the listen address. Valid after Start.
func (s *DeviceService) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.server == nil {
		return nil
	}
	return s.server.Addr()
}

// Start boots the device and starts serving.
func (s *DeviceService) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.state = StateStarting
	s.mu.Unlock()

	if err := s.boot(ctx); err != nil {
		s.mu.Lock()
		s.state = StateStopped
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.state = StateRunning
	s.mu.Unlock()
	return nil
}

func (s *DeviceService) boot(ctx context.Context) error {
	if !s.store.PasswordSet() {
		if err := s.store.SetDefaultPassword(); err != nil {
			return fmt.Errorf("set default password: %w", err)
		}
		s.logger.Info("default password set")
		s.emit(Event{Type: EventDefaultPasswordSet})
	}

	deviceID, created, err := identity.Ensure(s.store)
	if err != nil {
		return err
	}
	id := identity.Identity{
		DeviceID:       deviceID,
		DeviceType:     s.config.DeviceType,
		ControlActions: s.config.ControlActions,
		MeasureActions: s.config.MeasureActions,
	}
	s.mu.Lock()
	s.identity = id
	s.mu.Unlock()
	if created {
		s.logger.Info("device ID generated", "device_id", deviceID)
		s.emit(Event{Type: EventDeviceIDCreated})
	}

	machine := mode.NewMachine(mode.Config{
		DeviceType: s.config.DeviceType,
		Store:      s.store,
		Radio:      s.radio,
		Associator: &network.Associator{
			Radio:    s.radio,
			Attempts: s.config.BootAttempts,
			Interval: s.config.BootInterval,
			Logger:   s.logger,
		},
		Logger: s.logger,
	})
	s.mu.Lock()
	s.machine = machine
	s.mu.Unlock()

	m, err := machine.Enter(ctx)
	s.logState(log.StateEntityMode, mode.Unknown.String(), m.String(), "boot")
	switch {
	case err != nil && m == mode.Control:
		s.logger.Error("could not join operator network", "error", err)
		s.emit(Event{Type: EventModeEntered, Mode: m, Error: err})
		s.emit(Event{Type: EventAssociationFailed, Mode: m, Error: err})
	case err != nil:
		return fmt.Errorf("enter %s mode: %w", m, err)
	default:
		s.emit(Event{Type: EventModeEntered, Mode: m, AccessPoint: machine.AccessPoint()})
	}

	authority := nvcn.NewAuthority()
	authority.OnStateChange(func(oldState, newState nvcn.State) {
		s.logState(log.StateEntityNVCN, oldState.String(), newState.String(), "")
	})

	dispatcher, err := protocol.NewDispatcher(protocol.Config{
		Identity:  id,
		Store:     s.store,
		Authority: authority,
		Associator: &network.Associator{
			Radio:    s.radio,
			Attempts: s.config.ConfigAttempts,
			Interval: s.config.ConfigInterval,
			Logger:   s.logger,
		},
		Actions:         s.actions,
		RestrictActions: s.config.RestrictActions,
		Logger:          s.logger,
		ProtocolLogger:  s.protocolLogger,
	})
	if err != nil {
		return err
	}
	dispatcher.OnEvent(s.handleProtocolEvent)

	server, err := transport.NewServer(transport.ServerConfig{
		Address:         s.config.ListenAddress,
		Handler:         dispatcher,
		PostActionDelay: s.config.PostActionDelay,
		OnPostAction:    s.handlePostAction,
		Logger:          s.logger,
		ProtocolLogger:  s.protocolLogger,
	})
	if err != nil {
		return err
	}
	if err := server.Start(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	s.dispatcher = dispatcher
	s.server = server
	s.mu.Unlock()

	if m == mode.Control {
		s.advertise(ctx)
	}
	return nil
}

// Stop stops serving and withdraws the mDNS advertisement.
func (s *DeviceService) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return nil
	}
	s.state = StateStopping
	server := s.server
	advertised := s.advertised
	s.mu.Unlock()

	if s.advertiser != nil && advertised {
		s.advertiser.Stop()
	}
	var err error
	if server != nil {
		err = server.Stop(ctx)
	}

	s.mu.Lock()
	s.state = StateStopped
	s.mu.Unlock()
	return err
}

// RequestRestart runs a post action as if a request had asked for it.
func (s *DeviceService) RequestRestart(action protocol.PostAction) error {
	if s.State() != StateRunning {
		return ErrNotStarted
	}
	s.handlePostAction(action)
	return nil
}

func (s *DeviceService) handlePostAction(action protocol.PostAction) {
	if action == protocol.ResetAndRestart {
		d := s.Dispatcher()
		if d != nil {
			d.Lock()
		}
		err := s.store.Erase()
		if d != nil {
			d.Unlock()
		}
		if err != nil {
			s.logger.Error("factory reset failed", "error", err)
		} else {
			s.logger.Info("persisted configuration erased")
		}
		s.logState(log.StateEntityPower, "", "RESET", "security-reset-to-default")
		s.emit(Event{Type: EventReset, Error: err})
	}

	s.restartOnce.Do(func() {
		s.logger.Info("restarting", "action", action)
		s.logState(log.StateEntityPower, "", "RESTART", action.String())
		s.emit(Event{Type: EventRestarting})
		s.restarts <- action
	})
}

func (s *DeviceService) handleProtocolEvent(e protocol.Event) {
	switch e.Type {
	case protocol.EventPasswordChanged:
		s.logState(log.StateEntityPassword, "", fmt.Sprint(e.PasswordVersion), "security-pw-change")
	case protocol.EventRenamed:
		s.logState(log.StateEntityConfiguration, "", "NAME", "security-rename")
		s.updateAdvertisement()
	case protocol.EventWifiConfigured:
		s.logState(log.StateEntityConfiguration, "", "WIFI", "security-wifi-config")
	}
	s.emit(Event{Type: EventProtocol, Protocol: &e, Error: e.Err})
}

func (s *DeviceService) serviceInfo() *discovery.ServiceInfo {
	id := s.Identity()
	info := &discovery.ServiceInfo{
		DeviceID:   id.DeviceID,
		DeviceType: id.DeviceType,
		DeviceName: s.store.DeviceName(),
	}
	if tcp, ok := s.Addr().(*net.TCPAddr); ok {
		info.Port = uint16(tcp.Port)
	}
	return info
}

func (s *DeviceService) advertise(ctx context.Context) {
	if s.advertiser == nil {
		return
	}
	if err := s.advertiser.Advertise(ctx, s.serviceInfo()); err != nil {
		s.logger.Warn("mdns advertising failed", "error", err)
		return
	}
	s.mu.Lock()
	s.advertised = true
	s.mu.Unlock()
	s.logger.Info("advertising", "service", discovery.ServiceType)
}

func (s *DeviceService) updateAdvertisement() {
	s.mu.RLock()
	advertised := s.advertised
	s.mu.RUnlock()
	if s.advertiser == nil || !advertised {
		return
	}
	if err := s.advertiser.Update(s.serviceInfo()); err != nil {
		s.logger.Warn("mdns update failed", "error", err)
	}
}

func (s *DeviceService) logState(entity log.StateEntity, oldState, newState, reason string) {
	s.protocolLogger.Log(log.Event{
		Timestamp: time.Now(),
		Direction: log.DirectionOut,
		Layer:     log.LayerService,
		Category:  log.CategoryState,
		DeviceID:  s.Identity().DeviceID,
		StateChange: &log.StateChangeEvent{
			Entity:   entity,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}
