package eventbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/kingrea/layerdeck/internal/order"
)

// ServerStatus reports runtime lifecycle states for the HTTP server.
type ServerStatus string

const (
	StatusStarting ServerStatus = "starting"
	StatusReady    ServerStatus = "ready"
	StatusDraining ServerStatus = "draining"
)

var errServerDisabled = errors.New("eventbridge: server disabled")

// OrderSource returns the current resolved order and the paint index base.
type OrderSource interface {
	CurrentOrder(ctx context.Context) (order.Snapshot, int, error)
}

// Server wraps the HTTP listener and handlers backing the event bridge.
type Server struct {
	settings  Settings
	processor EventProcessor
	logger    Logger
	clock     func() time.Time
	orders    OrderSource
	router    *Router
	metrics   http.Handler

	mu          sync.RWMutex
	server      *http.Server
	listener    net.Listener
	status      ServerStatus
	startTime   time.Time
	routerReady bool
}

// Option customizes server construction.
type Option func(*Server)

// WithProcessor overrides the default no-op event processor.
func WithProcessor(p EventProcessor) Option {
	return func(s *Server) {
		if p != nil {
			s.processor = p
		}
	}
}

// WithLogger overrides the default no-op logger.
func WithLogger(l Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithOrderSource serves GET /order from src.
func WithOrderSource(src OrderSource) Option {
	return func(s *Server) {
		s.orders = src
	}
}

// WithRouter serves GET /events/stream from router.
func WithRouter(router *Router) Option {
	return func(s *Server) {
		s.router = router
	}
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithClock allows tests to control timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *Server) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewServer prepares a bridge server using the provided settings.
func NewServer(settings Settings, opts ...Option) *Server {
	s := &Server{
		settings:  settings,
		processor: EventProcessorFunc(func(Event) error { return nil }),
		logger:    nopLogger{},
		clock:     func() time.Time { return time.Now().UTC() },
		status:    StatusStarting,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Start binds the TCP listener and begins serving HTTP traffic.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("eventbridge: server is nil")
	}
	if !s.settings.Enabled {
		return errServerDisabled
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return fmt.Errorf("eventbridge: server already started")
	}
	addr := s.settings.Address()
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("eventbridge: listen %s: %w", addr, err)
	}
	s.listener = listener
	s.routerReady = s.router != nil
	s.startTime = s.clock()
	server := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.settings.ReadTimeout,
		WriteTimeout: s.settings.WriteTimeout,
		IdleTimeout:  s.settings.IdleTimeout,
	}
	if ctx != nil {
		server.BaseContext = func(net.Listener) context.Context { return ctx }
	}
	s.server = server
	s.status = StatusReady
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("eventbridge: serve error: %v", err)
		}
	}()
	s.logger.Printf("eventbridge: listening on %s", listener.Addr().String())
	return nil
}

// Handler returns the bridge's HTTP routes. The mux answers 405 for
// methods a route does not list.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /events", s.handleEvents)
	mux.HandleFunc("GET /events/stream", s.handleStream)
	mux.HandleFunc("GET /order", s.handleOrder)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	return mux
}

// Shutdown stops accepting new connections and waits for in-flight requests to exit.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil || s.server == nil {
		return nil
	}
	s.status = StatusDraining
	deadline := ctx
	if deadline == nil {
		var cancel context.CancelFunc
		deadline, cancel = context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
	}
	if err := s.server.Shutdown(deadline); err != nil {
		return err
	}
	s.listener = nil
	s.server = nil
	return nil
}

// Addr returns the bound TCP address once the server has started.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// BaseURL returns the HTTP base URL (scheme + host:port) for the running server.
func (s *Server) BaseURL() string {
	addr := s.Addr()
	if addr == "" {
		return s.settings.URL()
	}
	return "http://" + addr
}

// Status reports the server's lifecycle state.
func (s *Server) Status() ServerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Server) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock().UTC()
}

func (s *Server) uptimeSeconds() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.startTime.IsZero() {
		return 0
	}
	return int64(time.Since(s.startTime).Seconds())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:        string(s.Status()),
		Version:       ProtocolVersion,
		RouterReady:   s.routerReady,
		UptimeSeconds: s.uptimeSeconds(),
	})
}

// readEvent decodes and validates one producer event from the request body.
// The returned status is the HTTP code to answer with when err is non-nil.
func (s *Server) readEvent(w http.ResponseWriter, r *http.Request) (Event, int, error) {
	var evt Event
	if r.Body == nil || r.Body == http.NoBody {
		return evt, http.StatusBadRequest, errors.New("empty body")
	}
	reader := http.MaxBytesReader(w, r.Body, s.settings.MaxBodyBytes)
	defer reader.Close()
	body, err := io.ReadAll(reader)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return evt, http.StatusRequestEntityTooLarge, errors.New("payload exceeds limit")
		}
		return evt, http.StatusBadRequest, errors.New("unable to read body")
	}
	if err := json.Unmarshal(body, &evt); err != nil {
		return evt, http.StatusBadRequest, errors.New("invalid JSON")
	}
	evt.Normalize()
	if err := evt.Validate(); err != nil {
		return evt, http.StatusBadRequest, err
	}
	evt.StampServerTime(s.now())
	return evt, 0, nil
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	evt, status, err := s.readEvent(w, r)
	if err != nil {
		writeError(w, status, err.Error())
		return
	}
	if err := s.processor.HandleEvent(evt); err != nil {
		if errors.Is(err, ErrBadPayload) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Printf("eventbridge: %s %s from %s: %v", evt.Type, evt.EventID, evt.Source, err)
		writeError(w, http.StatusInternalServerError, "event processing failed")
		return
	}
	writeJSON(w, http.StatusAccepted, eventResponse{Status: "accepted", EventID: evt.EventID, ServerTime: evt.ServerTime})
}

func (s *Server) handleOrder(w http.ResponseWriter, r *http.Request) {
	if s.orders == nil {
		writeError(w, http.StatusServiceUnavailable, "no order source")
		return
	}
	snapshot, base, err := s.orders.CurrentOrder(r.Context())
	if err != nil {
		s.logger.Printf("eventbridge: order lookup: %v", err)
		writeError(w, http.StatusServiceUnavailable, "order unavailable")
		return
	}
	writeJSON(w, http.StatusOK, orderResponse{Base: base, Entries: EntriesFromSnapshot(snapshot)})
}

// handleStream relays router events on one topic (default "order") as
// server-sent events until the client goes away. Idle streams get a comment
// line every KeepAlive so proxies keep the connection open.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.router == nil {
		writeError(w, http.StatusServiceUnavailable, "router not ready")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	topic := r.URL.Query().Get("topic")
	if topic == "" {
		topic = TopicOrder
	}
	sub := s.router.Subscribe(topic)
	defer sub.Close()
	// Streams outlive the server's write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	var keepAlive <-chan time.Time
	if s.settings.KeepAlive > 0 {
		ticker := time.NewTicker(s.settings.KeepAlive)
		defer ticker.Stop()
		keepAlive = ticker.C
	}
	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive:
			if _, err := io.WriteString(w, ": keep-alive\n\n"); err != nil {
				return
			}
		case evt, ok := <-sub.Events:
			if !ok {
				return
			}
			if err := writeSSE(w, evt); err != nil {
				if errors.Is(err, errEncodeEvent) {
					s.logger.Printf("eventbridge: %v", err)
					continue
				}
				return
			}
		}
		flusher.Flush()
	}
}

var errEncodeEvent = errors.New("encode stream event")

func writeSSE(w io.Writer, evt Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("%w %s: %v", errEncodeEvent, evt.EventID, err)
	}
	_, err = fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", evt.EventID, evt.Type, data)
	return err
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}
