// Command scp-device is a reference SCP device.
//
// It runs the complete device side of the Secure Control Protocol on a
// simulated radio: provisioning access point, password change, Wi-Fi
// onboarding, control and measure actions, restarts and factory reset.
//
// Usage:
//
//	scp-device [flags]
//
// Flags:
//
//	-config string        YAML configuration file
//	-type string          Device type (default "lamp")
//	-control string       Comma separated control actions (default "on,off")
//	-measure string       Comma separated measure actions (default "temperature,power")
//	-restrict-actions     Reject actions outside the catalogs
//	-port int             Listen port (default 19316)
//	-storage string       State storage: memory, file, sqlite (default "memory")
//	-state string         State file or database path
//	-networks string      Reachable networks as ssid=psk,... (default "home=home-psk-1234")
//	-mdns                 Advertise via mDNS in Control mode
//	-interactive          Start the interactive console
//	-log-level string     Log level: debug, info, warn, error (default "info")
//	-protocol-log string  Write protocol events to this file
//
// Examples:
//
//	# Fresh lamp with in-memory state
//	scp-device -interactive
//
//	# Heater keeping its state across process restarts
//	scp-device -type heater -control boost,eco -storage sqlite -state heater.db
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/scp-protocol/scp-go/cmd/scp-device/interactive"
	"github.com/scp-protocol/scp-go/pkg/discovery"
	"github.com/scp-protocol/scp-go/pkg/log"
	"github.com/scp-protocol/scp-go/pkg/network"
	"github.com/scp-protocol/scp-go/pkg/persistence"
	"github.com/scp-protocol/scp-go/pkg/protocol"
	"github.com/scp-protocol/scp-go/pkg/service"
)

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(2)
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// parseFlags loads the optional config file and applies explicitly set
// flags on top.
func parseFlags(args []string) (Config, error) {
	fs := flag.NewFlagSet("scp-device", flag.ContinueOnError)

	def := DefaultConfig()
	configFile := fs.String("config", "", "YAML configuration file")
	deviceType := fs.String("type", def.DeviceType, "Device type")
	control := fs.String("control", "on,off", "Comma separated control actions")
	measure := fs.String("measure", "temperature,power", "Comma separated measure actions")
	restrict := fs.Bool("restrict-actions", false, "Reject actions outside the catalogs")
	port := fs.Int("port", def.Port, "Listen port")
	storage := fs.String("storage", def.Storage, "State storage: memory, file, sqlite")
	statePath := fs.String("state", "", "State file or database path")
	networks := fs.String("networks", "home=home-psk-1234", "Reachable networks as ssid=psk,...")
	mdns := fs.Bool("mdns", false, "Advertise via mDNS in Control mode")
	interactiveMode := fs.Bool("interactive", false, "Start the interactive console")
	logLevel := fs.String("log-level", def.LogLevel, "Log level: debug, info, warn, error")
	protocolLog := fs.String("protocol-log", "", "Write protocol events to this file")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := def
	if *configFile != "" {
		loaded, err := LoadConfig(*configFile)
		if err != nil {
			return Config{}, err
		}
		cfg = loaded
	}

	var ferr error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "type":
			cfg.DeviceType = *deviceType
		case "control":
			cfg.ControlActions = parseList(*control)
		case "measure":
			cfg.MeasureActions = parseList(*measure)
		case "restrict-actions":
			cfg.RestrictActions = *restrict
		case "port":
			cfg.Port = *port
		case "storage":
			cfg.Storage = *storage
		case "state":
			cfg.StatePath = *statePath
		case "networks":
			n, err := parseNetworks(*networks)
			if err != nil {
				ferr = err
			}
			cfg.Networks = n
		case "mdns":
			cfg.MDNS = *mdns
		case "interactive":
			cfg.Interactive = *interactiveMode
		case "log-level":
			cfg.LogLevel = *logLevel
		case "protocol-log":
			cfg.ProtocolLog = *protocolLog
		}
	})
	if ferr != nil {
		return Config{}, ferr
	}
	return cfg, cfg.Validate()
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// openStore opens the configured persistence backend. The returned closer
// releases it.
func openStore(cfg Config) (*persistence.Store, io.Closer, error) {
	var backend persistence.Backend
	var closer io.Closer = nopCloser{}

	switch cfg.Storage {
	case StorageFile:
		backend = persistence.NewFileBackend(cfg.StatePath)
	case StorageSQLite:
		b, err := persistence.OpenSQLiteBackend(cfg.StatePath)
		if err != nil {
			return nil, nil, err
		}
		backend, closer = b, b
	default:
		backend = persistence.NewMemoryBackend()
	}

	store, err := persistence.NewStore(backend)
	if err != nil {
		closer.Close()
		return nil, nil, err
	}
	return store, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func run(cfg Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var out io.Writer = os.Stderr
	var console *interactive.Console
	sim := newSimulator(nil)

	if cfg.Interactive {
		c, err := interactive.New(sim)
		if err != nil {
			return err
		}
		console = c
		out = c.Stdout()
	}

	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	sim.logger = logger

	var plog log.Logger = log.NewSlogAdapter(logger)
	if cfg.ProtocolLog != "" {
		fileLogger, err := log.NewFileLogger(cfg.ProtocolLog, log.WithErrorLogger(logger))
		if err != nil {
			return fmt.Errorf("open protocol log: %w", err)
		}
		defer fileLogger.Close()
		plog = log.NewMultiLogger(plog, fileLogger)
	}

	store, closer, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open state: %w", err)
	}
	defer closer.Close()

	mac, _ := net.ParseMAC(cfg.MAC)

	var advertiser discovery.Advertiser
	if cfg.MDNS {
		a, err := discovery.NewMDNSAdvertiser(discovery.DefaultAdvertiserConfig())
		if err != nil {
			return fmt.Errorf("mdns: %w", err)
		}
		advertiser = a
	}

	actions := protocol.NewActions()
	sim.Register(actions)

	logger.Info("SCP reference device", "type", cfg.DeviceType, "port", cfg.Port, "storage", cfg.Storage)

	if console != nil {
		go console.Run(ctx, cancel)
	}

	for boot := 1; ; boot++ {
		svcConfig := service.DefaultDeviceConfig()
		svcConfig.DeviceType = cfg.DeviceType
		svcConfig.ControlActions = cfg.ControlActions
		svcConfig.MeasureActions = cfg.MeasureActions
		svcConfig.RestrictActions = cfg.RestrictActions
		svcConfig.ListenAddress = fmt.Sprintf(":%d", cfg.Port)
		if cfg.PostActionDelay > 0 {
			svcConfig.PostActionDelay = cfg.PostActionDelay
		}
		svcConfig.Advertiser = advertiser
		svcConfig.Logger = logger.With("boot", boot)
		svcConfig.ProtocolLogger = plog

		// Every boot starts from fresh radio hardware state.
		radio := network.NewSimulatedRadio(mac, cfg.Networks)

		svc, err := service.NewDeviceService(store, radio, actions, svcConfig)
		if err != nil {
			return err
		}
		svc.OnEvent(func(e service.Event) { handleEvent(logger, e) })

		if err := svc.Start(ctx); err != nil {
			return fmt.Errorf("boot %d: %w", boot, err)
		}
		if console != nil {
			console.Attach(svc)
		}

		select {
		case <-ctx.Done():
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := svc.Stop(stopCtx)
			stopCancel()
			logger.Info("Goodbye!")
			return err

		case action := <-svc.Restarts():
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := svc.Stop(stopCtx); err != nil {
				logger.Warn("stop before restart", "error", err)
			}
			stopCancel()
			if console != nil {
				console.Attach(nil)
			}
			logger.Info("rebooting", "action", action)
		}
	}
}

func handleEvent(logger *slog.Logger, event service.Event) {
	switch event.Type {
	case service.EventModeEntered:
		if event.AccessPoint != "" {
			logger.Info("[EVENT] mode entered", "mode", event.Mode, "access_point", event.AccessPoint)
		} else {
			logger.Info("[EVENT] mode entered", "mode", event.Mode)
		}
	case service.EventAssociationFailed:
		logger.Warn("[EVENT] operator network unreachable", "error", event.Error)
	case service.EventDeviceIDCreated:
		logger.Info("[EVENT] device ID created", "device_id", event.DeviceID)
	case service.EventReset:
		logger.Info("[EVENT] configuration erased")
	case service.EventProtocol:
		if event.Protocol != nil && event.Protocol.Type == protocol.EventRejected {
			logger.Debug("[EVENT] request rejected", "error", event.Error)
		}
	}
}
