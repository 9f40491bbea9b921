package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/Layr-Labs/eigenx-remote-signer/pkg/metrics"
	"github.com/Layr-Labs/eigenx-remote-signer/pkg/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

/*
Server exposes the signing service over HTTP.

  GET  /healthz  liveness, always "OK", never touches the backend
  GET  /pub      checksummed signer address as text/plain
  GET  /config   backend descriptor with secrets redacted
  GET  /journal  most recent signing records (when a journal is configured)
  GET  /metrics  Prometheus exposition (when a registry is configured)
  POST /         {"id", "jsonrpc", "method": "eth_sendTransaction", "params": [tx]}

Malformed sign envelopes get a plain text 400. Well formed envelopes always
get a JSON envelope back: 200 with "result" or 500 with "error".
*/

const (
	defaultReadTimeout  = 30 * time.Second
	defaultWriteTimeout = 60 * time.Second
	defaultMaxBodyBytes = 1 << 20
)

type ServerConfig struct {
	Port int

	// RateLimit is the sustained sign requests per second; 0 disables limiting.
	RateLimit float64
	RateBurst int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxBodyBytes int64
}

type Server struct {
	service    *service.SigningService
	metrics    *metrics.Metrics
	gatherer   prometheus.Gatherer
	limiter    *rate.Limiter
	logger     *zap.Logger
	config     *ServerConfig
	httpServer *http.Server
	listener   net.Listener
}

// NewServer wires the routes. m and gatherer may be nil.
func NewServer(
	svc *service.SigningService,
	cfg *ServerConfig,
	m *metrics.Metrics,
	gatherer prometheus.Gatherer,
	logger *zap.Logger,
) *Server {
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.MaxBodyBytes == 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}

	s := &Server{
		service:  svc,
		metrics:  m,
		gatherer: gatherer,
		logger:   logger,
		config:   cfg,
	}

	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = int(cfg.RateLimit) + 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	mux := http.NewServeMux()

	mux.Handle("/", s.instrument("sign", s.rateLimit(http.HandlerFunc(s.handleSign))))
	mux.Handle("/healthz", s.instrument("healthz", http.HandlerFunc(s.handleHealthz)))
	mux.Handle("/pub", s.instrument("pub", http.HandlerFunc(s.handlePub)))
	mux.Handle("/config", s.instrument("config", http.HandlerFunc(s.handleConfig)))
	mux.Handle("/journal", s.instrument("journal", http.HandlerFunc(s.handleJournal)))

	if gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s
}

// Start binds the listener and serves in the background. Bind errors are
// returned directly.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	s.listener = listener

	go func() {
		s.logger.Sugar().Infow("Starting HTTP server", "address", listener.Addr().String())
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Sugar().Errorw("HTTP server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address once Start has succeeded.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.httpServer.Addr
	}
	return s.listener.Addr().String()
}

// Stop drains in-flight requests until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// GetHandler returns the HTTP handler (for testing)
func (s *Server) GetHandler() http.Handler {
	return s.httpServer.Handler
}
