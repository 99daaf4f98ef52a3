package graphql

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/99designs/gqlgen/graphql/playground"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vektah/gqlparser/v2/ast"
	"golang.org/x/time/rate"

	"github.com/c360/socialgate/errors"
	"github.com/c360/socialgate/events"
	"github.com/c360/socialgate/health"
)

// Server is the HTTP front door: queries and mutations over POST, the
// subscription transport over a websocket upgrade on the same path, plus
// health, metrics and the playground.
type Server struct {
	config   Config
	builder  *ContextBuilder
	executor *Executor
	bus      events.Bus
	logger   *slog.Logger

	registry   *prometheus.Registry
	metrics    *gatewayMetrics
	healthMon  *health.Monitor
	subs       *subscriptionServer
	limiter    *rate.Limiter
	httpServer *http.Server
	mux        *http.ServeMux

	// Lifecycle
	running  bool
	mu       sync.RWMutex
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewServer creates the gateway server. bus may be nil, which disables the
// subscription transport.
func NewServer(config Config, builder *ContextBuilder, executor *Executor, bus events.Bus, logger *slog.Logger) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "Server", "NewServer", "config validation")
	}
	if builder == nil {
		return nil, errors.Wrap(errors.ErrMissingConfig, "Server", "NewServer",
			"context builder is required")
	}
	if executor == nil {
		return nil, errors.Wrap(errors.ErrMissingConfig, "Server", "NewServer",
			"executor is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	registry := prometheus.NewRegistry()
	metrics, err := newGatewayMetrics(registry)
	if err != nil {
		return nil, err
	}

	s := &Server{
		config:   config,
		builder:  builder,
		executor: executor,
		bus:      bus,
		logger:   logger.With("component", "gateway"),
		registry: registry,
		metrics:  metrics,
		mux:      http.NewServeMux(),
		stopChan: make(chan struct{}),
	}
	if config.RateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(config.RateLimit), config.RateBurst)
	}
	if bus != nil {
		s.subs = newSubscriptionServer(builder, executor, bus, metrics, s.logger)
	}
	return s, nil
}

// Setup configures the HTTP routes and the underlying server.
func (s *Server) Setup() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	s.mux.HandleFunc(s.config.Path, s.handleGraphQL)

	if s.config.EnablePlayground {
		s.mux.Handle("/", playground.Handler("GraphQL Playground", s.config.Path))
		s.logger.Info("GraphQL Playground enabled",
			"url", fmt.Sprintf("http://%s/", s.config.BindAddress))
	}

	var handler http.Handler = s.mux
	if s.limiter != nil {
		handler = s.rateLimitMiddleware(handler)
	}
	if s.config.EnableCORS {
		handler = s.corsMiddleware(handler)
	}

	s.httpServer = &http.Server{
		Addr:         s.config.BindAddress,
		Handler:      handler,
		ReadTimeout:  s.config.Timeout(),
		WriteTimeout: s.config.Timeout(),
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("Server configured",
		"address", s.config.BindAddress,
		"path", s.config.Path,
		"timeout", s.config.Timeout())
	return nil
}

// Start runs the HTTP server until ctx is cancelled or Stop is called. The
// ready channel is closed when the server is about to accept connections.
func (s *Server) Start(ctx context.Context, ready chan<- struct{}) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.Wrap(errors.ErrAlreadyStarted, "Server", "Start", "start")
	}
	if s.httpServer == nil {
		s.mu.Unlock()
		return errors.Wrap(errors.ErrNotStarted, "Server", "Start", "Setup must run first")
	}
	s.running = true
	server := s.httpServer
	s.mu.Unlock()

	if s.subs != nil {
		s.subs.start(ctx)
	}

	errChan := make(chan error, 1)
	go func() {
		defer close(errChan)
		s.logger.Info("Server starting", "address", s.config.BindAddress)

		if ready != nil {
			close(ready)
		}

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", "error", err)
			select {
			case errChan <- err:
			case <-ctx.Done():
			case <-s.stopChan:
			}
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Server context cancelled, shutting down")
		return s.Stop(30 * time.Second)

	case <-s.stopChan:
		s.logger.Info("Server stop requested")
		return nil

	case err := <-errChan:
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return errors.Wrap(err, "Server", "Start", "HTTP server")
	}
}

// Stop gracefully shuts down the HTTP server and subscription connections.
func (s *Server) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	server := s.httpServer
	s.mu.Unlock()

	s.logger.Info("Server stopping")

	s.stopOnce.Do(func() {
		close(s.stopChan)
	})

	if s.subs != nil {
		s.subs.stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		s.logger.Error("Failed to shutdown server gracefully", "error", err)
		return errors.WrapTransient(err, "Server", "Stop", "graceful shutdown")
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info("Server stopped")
	return nil
}

// IsRunning reports whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Handler exposes the configured routes, including middleware, for tests
// driving the server through httptest without a listening socket.
func (s *Server) Handler() http.Handler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.httpServer != nil {
		return s.httpServer.Handler
	}
	return s.mux
}

// handleGraphQL serves one query or mutation, or upgrades to the websocket
// subscription transport.
func (s *Server) handleGraphQL(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		if s.subs == nil {
			http.Error(w, "subscriptions disabled", http.StatusNotImplemented)
			return
		}
		s.subs.handleUpgrade(w, r)
		return
	}

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	start := time.Now()
	var req Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeOperationError(w, errors.WrapValidation(err, "Server", "handleGraphQL",
			"request body is not valid JSON"), "parse")
		return
	}

	kind, err := OperationKind(req.Query, req.OperationName)
	if err != nil {
		writeOperationError(w, err, "parse")
		return
	}
	if kind == ast.Subscription {
		writeOperationError(w, errors.WrapValidation(
			errors.New("subscription over HTTP"), "Server", "handleGraphQL",
			"subscriptions must use the websocket transport"), req.OperationName)
		return
	}

	// Credential verification is operation-fatal: a bad token never reaches
	// the executor. An absent token proceeds anonymously.
	token := r.Header.Get(s.config.TokenHeader)
	oc, err := s.builder.Request(r.Context(), token)
	if err != nil {
		s.metrics.record(KindRequest, start, err)
		writeOperationError(w, err, req.OperationName)
		return
	}

	ctx := WithOperation(r.Context(), oc)
	resp := s.executor.Execute(ctx, req)

	var opErr error
	if len(resp.Errors) > 0 {
		opErr = resp.Errors[0]
	}
	s.metrics.record(KindRequest, start, opErr)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("Failed to write response", "error", err)
	}
}

// UseHealth attaches a monitor whose aggregate drives the health endpoint.
// Must be called before Setup.
func (s *Server) UseHealth(m *health.Monitor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthMon = m
}

// handleHealth handles health check requests. With a monitor attached the
// response reflects the backing resources; otherwise it reports whether the
// server is running.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	running := s.running
	monitor := s.healthMon
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")

	if monitor != nil {
		status := monitor.AggregateHealth("socialgate")
		if !status.IsHealthy() {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		_ = json.NewEncoder(w).Encode(status)
		return
	}

	if !running {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"unavailable"}`))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}

// rateLimitMiddleware rejects requests above the configured sustained rate.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"errors":[{"message":"rate limit exceeded"}]}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware adds CORS headers to responses.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		allowed := false
		for _, allowedOrigin := range s.config.CORSOrigins {
			if allowedOrigin == "*" || allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			if origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
			} else {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers",
				"Content-Type, Authorization, "+s.config.TokenHeader)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Max-Age", "3600")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
