// Command scp-controller drives SCP devices from the command line.
//
// Usage:
//
//	scp-controller [flags] <command> [args]
//
// Commands:
//
//	browse                     List devices advertised via mDNS
//	discover                   Send discover-hello
//	nvcn                       Fetch a fresh NVCN
//	password <new>             Change the shared password
//	rename <name>              Set the device name
//	wifi <ssid> <psk>          Configure the operator network
//	control <action>           Invoke a control action
//	measure <action>           Read a measurement
//	restart                    Restart the device
//	reset                      Erase configuration and restart
//	onboard <pw> <ssid> <psk>  Password change, Wi-Fi setup and restart
//	shell                      Interactive mode
//
// Examples:
//
//	# Onboard a fresh device on its access point
//	scp-controller -url http://192.168.4.1:19316 onboard s3cretpassw0rd16 home home-psk
//
//	# Read a measurement over the operator network
//	scp-controller -url http://lamp.local:19316 -password s3cretpassw0rd16 measure temperature
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/scp-protocol/scp-go/pkg/client"
	"github.com/scp-protocol/scp-go/pkg/persistence"
)

func main() {
	fs := flag.NewFlagSet("scp-controller", flag.ExitOnError)
	baseURL := fs.String("url", "http://192.168.4.1:19316", "Device base URL")
	password := fs.String("password", persistence.DefaultPassword, "Shared password")
	deviceID := fs.String("device-id", "", "Device ID (discovered when empty)")
	timeout := fs.Duration("timeout", client.DefaultTimeout, "Request timeout")
	verbose := fs.Bool("v", false, "Verbose logging")
	_ = fs.Parse(os.Args[1:])

	if fs.NArg() < 1 {
		fs.Usage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	args := fs.Args()
	if args[0] == "browse" {
		if err := runBrowse(ctx, os.Stdout, 3*time.Second); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	c, err := client.New(client.Config{
		BaseURL:    *baseURL,
		DeviceID:   *deviceID,
		Password:   *password,
		HTTPClient: &http.Client{Timeout: *timeout},
		Logger:     logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	ctl := &controller{client: c, out: os.Stdout}
	if args[0] == "shell" {
		if err := ctl.shell(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := ctl.run(ctx, args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
