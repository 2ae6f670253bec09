// Package interactive provides the interactive command-line interface
// for scp-device.
package interactive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/chzyer/readline"

	"github.com/scp-protocol/scp-go/pkg/protocol"
	"github.com/scp-protocol/scp-go/pkg/service"
)

// Simulator reports the state of the simulated appliance.
type Simulator interface {
	Status() string
}

// Console handles interactive mode for scp-device. The service it talks to
// is replaced on every boot.
type Console struct {
	mu  sync.RWMutex
	svc *service.DeviceService

	sim Simulator
	rl  *readline.Instance
	out io.Writer
}

// New creates a console on the terminal.
func New(sim Simulator) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "device> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	c := newConsole(sim, rl.Stdout())
	c.rl = rl
	return c, nil
}

func newConsole(sim Simulator, out io.Writer) *Console {
	return &Console{sim: sim, out: out}
}

// Stdout returns a writer that properly coordinates with the readline input.
// Use this for log output to avoid interfering with the command prompt.
func (c *Console) Stdout() io.Writer {
	return c.out
}

// Attach points the console at the service of the current boot.
func (c *Console) Attach(svc *service.DeviceService) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.svc = svc
}

func (c *Console) service() *service.DeviceService {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.svc
}

// Run starts the interactive command loop. It calls cancel when the user
// quits.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}

		if quit := c.Execute(line); quit {
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}
	}
}

// Execute runs one command line and reports whether the user asked to quit.
func (c *Console) Execute(line string) bool {
	parts := strings.Fields(strings.TrimSpace(line))
	if len(parts) == 0 {
		return false
	}

	switch strings.ToLower(parts[0]) {
	case "help", "?":
		c.printHelp()
	case "status", "s":
		c.cmdStatus()
	case "mode":
		c.cmdMode()
	case "nvcn":
		c.cmdNVCN()
	case "restart":
		c.cmdPostAction(protocol.Restart)
	case "reset":
		c.cmdPostAction(protocol.ResetAndRestart)
	case "quit", "exit", "q":
		return true
	default:
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for commands)\n", parts[0])
	}
	return false
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, `
SCP Device Commands:
    status             - Show device identity and persisted state
    mode               - Show operating mode and access point
    nvcn               - Show NVCN state
    restart            - Restart the device
    reset              - Erase configuration and restart
    quit               - Exit`)
}

func (c *Console) cmdStatus() {
	svc := c.service()
	if svc == nil {
		fmt.Fprintln(c.out, "Device is booting")
		return
	}
	id := svc.Identity()
	snap := svc.Store().Snapshot()

	name := snap.DeviceName
	if name == "" {
		name = "(unset)"
	}
	fmt.Fprintf(c.out, "Device ID:    %s\n", id.DeviceID)
	fmt.Fprintf(c.out, "Device type:  %s\n", id.DeviceType)
	fmt.Fprintf(c.out, "Device name:  %s\n", name)
	fmt.Fprintf(c.out, "Service:      %s\n", svc.State())
	fmt.Fprintf(c.out, "Mode:         %s\n", svc.Mode())
	fmt.Fprintf(c.out, "Password:     version %d (default: %t)\n", snap.Password.Version, snap.Password.IsDefault)
	if snap.Wifi.Configured {
		fmt.Fprintf(c.out, "Wi-Fi:        %s\n", snap.Wifi.SSID)
	} else {
		fmt.Fprintln(c.out, "Wi-Fi:        not configured")
	}
	fmt.Fprintf(c.out, "Control:      %s\n", strings.Join(id.ControlActions, ", "))
	fmt.Fprintf(c.out, "Measure:      %s\n", strings.Join(id.MeasureActions, ", "))
	if addr := svc.Addr(); addr != nil {
		fmt.Fprintf(c.out, "Listening:    %s\n", addr)
	}
	if c.sim != nil {
		fmt.Fprintf(c.out, "Appliance:    %s\n", c.sim.Status())
	}
}

func (c *Console) cmdMode() {
	svc := c.service()
	if svc == nil {
		fmt.Fprintln(c.out, "Device is booting")
		return
	}
	fmt.Fprintf(c.out, "Mode: %s\n", svc.Mode())
	if ap := svc.AccessPoint(); ap != "" {
		fmt.Fprintf(c.out, "Access point: %s\n", ap)
	}
}

func (c *Console) cmdNVCN() {
	svc := c.service()
	if svc == nil {
		fmt.Fprintln(c.out, "Device is booting")
		return
	}
	fmt.Fprintf(c.out, "NVCN: %s\n", svc.NVCNState())
}

func (c *Console) cmdPostAction(action protocol.PostAction) {
	svc := c.service()
	if svc == nil {
		fmt.Fprintln(c.out, "Device is booting")
		return
	}
	if err := svc.RequestRestart(action); err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "%s requested\n", action)
}
