package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/scp-protocol/scp-go/pkg/envelope"
	"github.com/scp-protocol/scp-go/pkg/log"
	"github.com/scp-protocol/scp-go/pkg/protocol"
)

// Routes.
const (
	RouteSecureControl = "/secure-control"
	RouteDiscoverHello = "/secure-control/discover-hello"
)

// Argument names.
const (
	ArgNonce         = "nonce"
	ArgPayload       = "payload"
	ArgPayloadLength = "payloadLength"
	ArgMAC           = "mac"
)

// Defaults.
const (
	// DefaultPort is the SCP HTTP port.
	DefaultPort = 19316

	// DefaultPostActionDelay separates a flushed response from its post
	// action.
	DefaultPostActionDelay = time.Second

	// DefaultMaxBodySize bounds request bodies.
	DefaultMaxBodySize = 16 * 1024
)

// ErrServerRunning is returned by Start on a running server.
var ErrServerRunning = errors.New("server already running")

// Handler processes decoded requests.
type Handler interface {
	SecureControl(ctx context.Context, env envelope.Envelope) protocol.Result
	Discover(ctx context.Context, payload string) protocol.Result
}

// ServerConfig configures a Server.
type ServerConfig struct {
	// Address to listen on (e.g., ":19316" or "127.0.0.1:19316").
	Address string

	// Handler processes requests. Required.
	Handler Handler

	// PostActionDelay is the pause between flushing a response and running
	// its post action.
	PostActionDelay time.Duration

	// MaxBodySize bounds request bodies (default: 16KB).
	MaxBodySize int64

	// OnPostAction runs restart and reset requests. It is called from its
	// own goroutine after the server stopped accepting requests.
	OnPostAction func(action protocol.PostAction)

	// Logger for debug output (optional).
	Logger *slog.Logger

	// ProtocolLogger receives request and response events (optional).
	ProtocolLogger log.Logger
}

// Server is the device HTTP endpoint.
type Server struct {
	config ServerConfig
	logger *slog.Logger
	plog   log.Logger

	httpServer *http.Server
	listener   net.Listener

	// reqMu serializes request processing.
	reqMu sync.Mutex

	running atomic.Bool
	halted  atomic.Bool
	wg      sync.WaitGroup
}

// NewServer creates a server.
func NewServer(config ServerConfig) (*Server, error) {
	if config.Handler == nil {
		return nil, fmt.Errorf("handler is required")
	}
	if config.Address == "" {
		config.Address = fmt.Sprintf(":%d", DefaultPort)
	}
	if config.PostActionDelay == 0 {
		config.PostActionDelay = DefaultPostActionDelay
	}
	if config.MaxBodySize == 0 {
		config.MaxBodySize = DefaultMaxBodySize
	}

	s := &Server{
		config: config,
		logger: config.Logger,
		plog:   config.ProtocolLogger,
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if s.plog == nil {
		s.plog = log.NoopLogger{}
	}
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler returns the routing handler, for use with httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(RouteSecureControl, s.serveSecureControl)
	mux.HandleFunc(RouteDiscoverHello, s.serveDiscoverHello)
	mux.HandleFunc("/", s.serveNotFound)
	return mux
}

// Start listens and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	if s.running.Load() {
		return ErrServerRunning
	}

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.listener = listener
	s.running.Store(true)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server stopped", "error", err)
		}
	}()

	s.logger.Info("listening", "address", listener.Addr().String())
	return nil
}

// Stop shuts the server down, waiting for the request in flight.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.Swap(false) {
		return nil
	}
	err := s.httpServer.Shutdown(ctx)
	s.wg.Wait()
	return err
}

// Addr returns the server's listen address.
func (s *Server) Addr() net.Addr {
	if s.listener != nil {
		return s.listener.Addr()
	}
	return nil
}

// exchange is one request in flight.
type exchange struct {
	id    string
	route string
	w     http.ResponseWriter
	r     *http.Request
	args  Args
	ctx   context.Context
}

// begin serializes the request and parses its arguments. It returns false
// when the request was already answered.
func (s *Server) begin(w http.ResponseWriter, r *http.Request, route string) (*exchange, bool) {
	s.reqMu.Lock()

	x := &exchange{id: uuid.New().String(), route: route, w: w, r: r}
	x.ctx = log.WithRequestID(r.Context(), x.id)

	if s.halted.Load() {
		s.reqMu.Unlock()
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return nil, false
	}

	args, err := parseArgs(r, s.config.MaxBodySize)
	if err != nil {
		s.reqMu.Unlock()
		s.logger.Debug("unreadable request", "route", route, "error", err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return nil, false
	}
	x.args = args

	s.plog.Log(log.Event{
		Timestamp:  time.Now(),
		RequestID:  x.id,
		Direction:  log.DirectionIn,
		Layer:      log.LayerTransport,
		Category:   log.CategoryMessage,
		RemoteAddr: r.RemoteAddr,
		Request: &log.RequestEvent{
			Route:    route,
			Method:   r.Method,
			ArgNames: args.Names(),
		},
	})
	return x, true
}

func (s *Server) serveSecureControl(w http.ResponseWriter, r *http.Request) {
	x, ok := s.begin(w, r, RouteSecureControl)
	if !ok {
		return
	}

	res := s.config.Handler.SecureControl(x.ctx, envelope.Envelope{
		Nonce:         x.args.Get(ArgNonce),
		Payload:       x.args.Get(ArgPayload),
		PayloadLength: x.args.Get(ArgPayloadLength),
		MAC:           x.args.Get(ArgMAC),
	})
	s.finish(x, res)
}

func (s *Server) serveDiscoverHello(w http.ResponseWriter, r *http.Request) {
	x, ok := s.begin(w, r, RouteDiscoverHello)
	if !ok {
		return
	}

	s.finish(x, s.config.Handler.Discover(x.ctx, x.args.Get(ArgPayload)))
}

func (s *Server) serveNotFound(w http.ResponseWriter, r *http.Request) {
	x, ok := s.begin(w, r, r.URL.Path)
	if !ok {
		return
	}
	defer s.reqMu.Unlock()

	method := "POST"
	if r.Method == http.MethodGet {
		method = "GET"
	}

	var b strings.Builder
	b.WriteString("File Not Found\n\n")
	fmt.Fprintf(&b, "URI: %s\nMethod: %s\nArguments: %d\n", r.URL.Path, method, len(x.args))
	x.args.writeListing(&b)

	s.write(x, http.StatusNotFound, protocol.ContentTypeText, []byte(b.String()))
}

// finish writes res and releases the request lock, handing it to the post
// action when there is one.
func (s *Server) finish(x *exchange, res protocol.Result) {
	body := res.Body
	if res.Malformed() {
		var b strings.Builder
		b.WriteString("Malformed payload\n\n")
		x.args.writeListing(&b)
		body = []byte(b.String())
	}

	s.write(x, res.Status, res.ContentType, body)

	if res.After == protocol.None || res.Malformed() {
		s.reqMu.Unlock()
		return
	}

	if f, ok := x.w.(http.Flusher); ok {
		f.Flush()
	}
	s.logger.Info("post action scheduled", "action", res.After, "delay", s.config.PostActionDelay)

	go func(action protocol.PostAction) {
		time.Sleep(s.config.PostActionDelay)
		s.halted.Store(true)
		s.reqMu.Unlock()

		if s.config.OnPostAction != nil {
			s.config.OnPostAction(action)
		}
	}(res.After)
}

func (s *Server) write(x *exchange, status int, contentType string, body []byte) {
	h := x.w.Header()
	h.Set("Content-Type", contentType)
	h.Set("Content-Length", strconv.Itoa(len(body)))
	x.w.WriteHeader(status)
	if _, err := x.w.Write(body); err != nil {
		s.logger.Debug("write response", "request_id", x.id, "error", err)
	}

	s.plog.Log(log.Event{
		Timestamp:  time.Now(),
		RequestID:  x.id,
		Direction:  log.DirectionOut,
		Layer:      log.LayerTransport,
		Category:   log.CategoryMessage,
		RemoteAddr: x.r.RemoteAddr,
		Request: &log.RequestEvent{
			Route:  x.route,
			Method: x.r.Method,
			Status: status,
			Size:   len(body),
		},
	})
}
