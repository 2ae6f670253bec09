package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/scp-protocol/scp-go/pkg/client"
	"github.com/scp-protocol/scp-go/pkg/discovery"
)

// errUsage is returned for a command with the wrong arguments.
var errUsage = errors.New("usage")

// restartWait bounds how long the shell wait command polls for the device.
const restartWait = 90 * time.Second

type controller struct {
	client *client.Client
	out    io.Writer
}

func (c *controller) ensureDevice(ctx context.Context) error {
	if c.client.DeviceID() != "" {
		return nil
	}
	_, err := c.client.Discover(ctx)
	return err
}

// run executes one command.
func (c *controller) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return nil
	}
	cmd, rest := strings.ToLower(args[0]), args[1:]

	need := func(n int, usage string) error {
		if len(rest) != n {
			return fmt.Errorf("%w: %s %s", errUsage, cmd, usage)
		}
		return nil
	}

	if cmd != "discover" {
		if err := c.ensureDevice(ctx); err != nil {
			return fmt.Errorf("discover: %w", err)
		}
	}

	switch cmd {
	case "discover":
		resp, err := c.client.Discover(ctx)
		if err != nil {
			return err
		}
		c.printDevice(resp)

	case "nvcn":
		token, err := c.client.FetchNVCN(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(c.out, token)

	case "password":
		if err := need(1, "<new-password>"); err != nil {
			return err
		}
		version, err := c.client.ChangePassword(ctx, rest[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "Password changed (version %d)\n", version)

	case "rename":
		if err := need(1, "<name>"); err != nil {
			return err
		}
		name, err := c.client.Rename(ctx, rest[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "Renamed to %q\n", name)

	case "wifi":
		if err := need(2, "<ssid> <psk>"); err != nil {
			return err
		}
		if err := c.client.ConfigureWifi(ctx, rest[0], rest[1]); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "Device joined %s\n", rest[0])

	case "control":
		if err := need(1, "<action>"); err != nil {
			return err
		}
		if err := c.client.Control(ctx, rest[0]); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "%s: done\n", rest[0])

	case "measure":
		if err := need(1, "<action>"); err != nil {
			return err
		}
		v, err := c.client.Measure(ctx, rest[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "%s: %g\n", rest[0], v)

	case "restart":
		if err := c.client.Restart(ctx); err != nil {
			return err
		}
		fmt.Fprintln(c.out, "Restart scheduled")

	case "reset":
		if err := c.client.ResetToDefault(ctx); err != nil {
			return err
		}
		fmt.Fprintln(c.out, "Factory reset scheduled")

	case "onboard":
		if err := need(3, "<new-password> <ssid> <psk>"); err != nil {
			return err
		}
		return c.onboard(ctx, rest[0], rest[1], rest[2])

	default:
		return fmt.Errorf("unknown command: %s", cmd)
	}
	return nil
}

// onboard runs the provisioning sequence: password change, Wi-Fi setup and
// restart into Control mode.
func (c *controller) onboard(ctx context.Context, password, ssid, psk string) error {
	version, err := c.client.ChangePassword(ctx, password)
	if err != nil {
		return fmt.Errorf("change password: %w", err)
	}
	fmt.Fprintf(c.out, "Password changed (version %d)\n", version)

	if err := c.client.ConfigureWifi(ctx, ssid, psk); err != nil {
		return fmt.Errorf("configure wifi: %w", err)
	}
	fmt.Fprintf(c.out, "Device joined %s\n", ssid)

	if err := c.client.Restart(ctx); err != nil {
		return fmt.Errorf("restart: %w", err)
	}
	fmt.Fprintln(c.out, "Device restarting into Control mode")
	return nil
}

func (c *controller) printDevice(resp discovery.Response) {
	name := resp.DeviceName
	if name == "" {
		name = "(unset)"
	}
	fmt.Fprintf(c.out, "Device ID:   %s\n", resp.DeviceID)
	fmt.Fprintf(c.out, "Type:        %s\n", resp.DeviceType)
	fmt.Fprintf(c.out, "Name:        %s\n", name)
	fmt.Fprintf(c.out, "Password:    version %d\n", resp.CurrentPasswordNumber)
	fmt.Fprintf(c.out, "Control:     %s\n", strings.Join(resp.ControlActions, ", "))
	fmt.Fprintf(c.out, "Measure:     %s\n", strings.Join(resp.MeasureActions, ", "))
}

// shell runs commands read from the terminal until quit or EOF.
func (c *controller) shell(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "scp> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()
	c.out = rl.Stdout()

	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			return nil
		}
		args := strings.Fields(line)
		if len(args) == 0 {
			continue
		}
		switch args[0] {
		case "quit", "exit", "q":
			return nil
		case "wait":
			resp, err := c.client.WaitReady(ctx, restartWait)
			if err != nil {
				fmt.Fprintf(c.out, "Error: %v\n", err)
				continue
			}
			c.printDevice(resp)
			continue
		}
		if err := c.run(ctx, args); err != nil {
			fmt.Fprintf(c.out, "Error: %v\n", err)
		}
	}
}

// runBrowse lists advertised devices.
func runBrowse(ctx context.Context, out io.Writer, window time.Duration) error {
	browser, err := discovery.NewMDNSBrowser(discovery.DefaultBrowserConfig())
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, window)
	defer cancel()

	services, err := browser.Browse(ctx)
	if err != nil {
		return err
	}

	found := make(map[string]*discovery.Service)
	for svc := range services {
		found[svc.DeviceID] = svc
	}

	ids := make([]string, 0, len(found))
	for id := range found {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	if len(ids) == 0 {
		fmt.Fprintln(out, "No devices found")
		return nil
	}
	for _, id := range ids {
		svc := found[id]
		fmt.Fprintf(out, "%s  %-10s %-20s %s\n", id, svc.DeviceType, svc.DeviceName, svc.URL())
	}
	return nil
}
