// Package client implements the controller side of the Secure Control
// Protocol: it builds encrypted command envelopes, posts them to a device
// and verifies the sealed answers.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/scp-protocol/scp-go/pkg/command"
	"github.com/scp-protocol/scp-go/pkg/discovery"
	"github.com/scp-protocol/scp-go/pkg/envelope"
	"github.com/scp-protocol/scp-go/pkg/protocol"
	"github.com/scp-protocol/scp-go/pkg/transport"
)

// Client errors.
var (
	// ErrMalformedPayload is returned when the device answered 404
	// "Malformed payload".
	ErrMalformedPayload = errors.New("device rejected payload")

	// ErrUnexpectedStatus is returned for any other non-200 answer.
	ErrUnexpectedStatus = errors.New("unexpected HTTP status")

	// ErrDeviceMismatch is returned when a response names another device.
	ErrDeviceMismatch = errors.New("response from unexpected device")

	// ErrActionFailed is returned when a sealed response carries
	// result "error".
	ErrActionFailed = errors.New("device reported failure")
)

// DefaultTimeout bounds a single HTTP exchange.
const DefaultTimeout = 10 * time.Second

// Config configures a Client.
type Config struct {
	// BaseURL of the device, e.g. "http://192.168.4.1:19316". Required.
	BaseURL string

	// DeviceID of the target device. Filled by Discover when empty.
	DeviceID string

	// Password is the shared password currently in effect.
	Password string

	// HTTPClient is used for requests (default: 10s timeout).
	HTTPClient *http.Client

	// Codec builds and verifies envelopes (default: ChaCha20-Poly1305).
	Codec *envelope.Codec

	// Logger for debug output (optional).
	Logger *slog.Logger
}

// Client talks to one device.
type Client struct {
	baseURL  string
	deviceID string
	password string

	http   *http.Client
	codec  *envelope.Codec
	logger *slog.Logger
}

// New creates a client.
func New(config Config) (*Client, error) {
	if config.BaseURL == "" {
		return nil, errors.New("base URL is required")
	}
	if _, err := url.Parse(config.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	c := &Client{
		baseURL:  strings.TrimRight(config.BaseURL, "/"),
		deviceID: config.DeviceID,
		password: config.Password,
		http:     config.HTTPClient,
		codec:    config.Codec,
		logger:   config.Logger,
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: DefaultTimeout}
	}
	if c.codec == nil {
		c.codec = envelope.NewCodec(nil)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c, nil
}

// DeviceID returns the target device ID.
func (c *Client) DeviceID() string { return c.deviceID }

// Password returns the password the client currently uses.
func (c *Client) Password() string { return c.password }

// SetPassword replaces the password, e.g. after reading it from storage.
func (c *Client) SetPassword(password string) { c.password = password }

// Discover sends discover-hello and adopts the returned device ID when none
// was configured.
func (c *Client) Discover(ctx context.Context) (discovery.Response, error) {
	form := url.Values{transport.ArgPayload: {discovery.HelloPayload}}
	body, err := c.post(ctx, transport.RouteDiscoverHello, form)
	if err != nil {
		return discovery.Response{}, err
	}
	var resp discovery.Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return discovery.Response{}, fmt.Errorf("decode discover response: %w", err)
	}
	if c.deviceID == "" {
		c.deviceID = resp.DeviceID
	}
	return resp, nil
}

// WaitReady polls discover-hello with exponential backoff until the device
// answers or ctx ends. Used after a restart.
func (c *Client) WaitReady(ctx context.Context, maxWait time.Duration) (discovery.Response, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = maxWait

	var resp discovery.Response
	op := func() error {
		r, err := c.Discover(ctx)
		if err != nil {
			c.logger.Debug("device not ready", "error", err)
			return err
		}
		resp = r
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return discovery.Response{}, err
	}
	return resp, nil
}

// FetchNVCN obtains a fresh single-use token.
func (c *Client) FetchNVCN(ctx context.Context) (string, error) {
	salt, err := command.NewSalt()
	if err != nil {
		return "", err
	}
	body, err := c.send(ctx, command.FetchNVCN{Header: c.header(salt)})
	if err != nil {
		return "", err
	}
	var resp protocol.FetchNVCNResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode nvcn response: %w", err)
	}
	if resp.DeviceID != c.deviceID {
		return "", ErrDeviceMismatch
	}
	return resp.NVCN, nil
}

// ChangePassword replaces the shared password. On success the client
// switches to the new password and returns its version.
func (c *Client) ChangePassword(ctx context.Context, newPassword string) (uint32, error) {
	var resp protocol.PasswordChangeResponse
	err := c.privileged(ctx, func(h command.Header, g command.Guard) command.Command {
		return command.PasswordChange{Header: h, Guard: g, NewPassword: newPassword}
	}, newPassword, &resp)
	if err != nil {
		return 0, err
	}
	c.password = newPassword
	return resp.CurrentPasswordNumber, nil
}

// Rename sets the device name and returns the stored value.
func (c *Client) Rename(ctx context.Context, name string) (string, error) {
	var resp protocol.RenameResponse
	err := c.privileged(ctx, func(h command.Header, g command.Guard) command.Command {
		return command.Rename{Header: h, Guard: g, NewName: name}
	}, "", &resp)
	if err != nil {
		return "", err
	}
	return resp.NewName, nil
}

// ConfigureWifi hands operator network credentials to the device.
// ErrActionFailed is returned when the device could not join.
func (c *Client) ConfigureWifi(ctx context.Context, ssid, psk string) error {
	var resp protocol.StatusResponse
	err := c.privileged(ctx, func(h command.Header, g command.Guard) command.Command {
		return command.WifiConfig{Header: h, Guard: g, SSID: ssid, PreSharedKey: psk}
	}, "", &resp)
	if err != nil {
		return err
	}
	if resp.Result == protocol.ResultError {
		return ErrActionFailed
	}
	return nil
}

// Restart asks the device to reboot.
func (c *Client) Restart(ctx context.Context) error {
	var resp protocol.StatusResponse
	return c.privileged(ctx, func(h command.Header, g command.Guard) command.Command {
		return command.Restart{Header: h, Guard: g}
	}, "", &resp)
}

// ResetToDefault asks the device to erase its configuration and reboot.
func (c *Client) ResetToDefault(ctx context.Context) error {
	var resp protocol.StatusResponse
	return c.privileged(ctx, func(h command.Header, g command.Guard) command.Command {
		return command.ResetToDefault{Header: h, Guard: g}
	}, "", &resp)
}

// Control invokes a control action.
func (c *Client) Control(ctx context.Context, action string) error {
	var resp protocol.ControlResponse
	return c.privileged(ctx, func(h command.Header, g command.Guard) command.Command {
		return command.Control{Header: h, Guard: g, Action: action}
	}, "", &resp)
}

// Measure reads a measurement.
func (c *Client) Measure(ctx context.Context, action string) (float64, error) {
	var resp protocol.MeasureResponse
	err := c.privileged(ctx, func(h command.Header, g command.Guard) command.Command {
		return command.Measure{Header: h, Guard: g, Action: action}
	}, "", &resp)
	if err != nil {
		return 0, err
	}
	return resp.Value, nil
}

func (c *Client) header(salt string) command.Header {
	return command.Header{Salt: salt, DeviceID: c.deviceID}
}

// privileged fetches an NVCN, sends the command built by build and decodes
// the sealed response into out. sealPassword overrides the password the
// response is expected to be sealed with.
func (c *Client) privileged(ctx context.Context, build func(command.Header, command.Guard) command.Command, sealPassword string, out any) error {
	token, err := c.FetchNVCN(ctx)
	if err != nil {
		return fmt.Errorf("fetch nvcn: %w", err)
	}
	salt, err := command.NewSalt()
	if err != nil {
		return err
	}
	cmd := build(c.header(salt), command.Guard{NVCN: token})

	body, err := c.send(ctx, cmd)
	if err != nil {
		return err
	}
	if sealPassword == "" {
		sealPassword = c.password
	}
	inner, err := c.codec.VerifySealed(body, sealPassword)
	if err != nil {
		return err
	}

	var head struct {
		Type     string `json:"type"`
		DeviceID string `json:"deviceId"`
	}
	if err := json.Unmarshal(inner, &head); err != nil {
		return fmt.Errorf("decode %s response: %w", cmd.Type(), err)
	}
	if head.DeviceID != c.deviceID {
		return ErrDeviceMismatch
	}
	if err := json.Unmarshal(inner, out); err != nil {
		return fmt.Errorf("decode %s response: %w", cmd.Type(), err)
	}
	c.logger.Debug("command completed", "type", cmd.Type())
	return nil
}

// send formats, encrypts and posts cmd, returning the raw response body.
func (c *Client) send(ctx context.Context, cmd command.Command) ([]byte, error) {
	plaintext, err := command.Format(cmd)
	if err != nil {
		return nil, err
	}
	env, err := c.codec.Encrypt([]byte(plaintext), c.password)
	if err != nil {
		return nil, err
	}
	form := url.Values{
		transport.ArgNonce:         {env.Nonce},
		transport.ArgPayload:       {env.Payload},
		transport.ArgPayloadLength: {env.PayloadLength},
		transport.ArgMAC:           {env.MAC},
	}
	return c.post(ctx, transport.RouteSecureControl, form)
}

func (c *Client) post(ctx context.Context, route string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+route, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, transport.DefaultMaxBodySize))
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusNotFound && strings.HasPrefix(string(body), "Malformed payload"):
		return nil, ErrMalformedPayload
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}
}
