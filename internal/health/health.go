// Package health reports liveness and readiness of the helpline daemon.
//
// Docker and Kubernetes probe /healthz and /readyz on the health port. The
// public API exposes the same Report under GET /health. When a gRPC port is
// configured the standard grpc.health.v1 service mirrors the readiness flag.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Status values reported in Report.Status.
const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
	StatusStarting = "starting"
)

// checkTimeout bounds each component check.
const checkTimeout = 2 * time.Second

// Check probes one dependency.
type Check func(ctx context.Context) error

// Info describes the configured pipeline.
type Info struct {
	STTBackend string
	Responders []string
	TTSEnabled bool
}

// Memory is host memory usage.
type Memory struct {
	TotalBytes     uint64  `json:"total_bytes"`
	AvailableBytes uint64  `json:"available_bytes"`
	UsedPercent    float64 `json:"used_percent"`
}

// Report is the health document.
type Report struct {
	Status     string            `json:"status" example:"healthy"`
	STTBackend string            `json:"stt_backend" example:"whisper"`
	Responders []string          `json:"responders"`
	TTSEnabled bool              `json:"tts_enabled"`
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components"`
	Memory     *Memory           `json:"memory,omitempty"`
}

type namedCheck struct {
	name  string
	check Check
}

// Checker holds the readiness flag and the registered component checks.
type Checker struct {
	info  Info
	ready atomic.Bool
	now   func() time.Time

	mu       sync.Mutex
	checks   []namedCheck
	watchers []func(bool)
}

// NewChecker creates a checker that starts not ready.
func NewChecker(info Info) *Checker {
	return &Checker{info: info, now: time.Now}
}

// Register adds a component check. Checks run in registration order.
func (c *Checker) Register(name string, check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks = append(c.checks, namedCheck{name: name, check: check})
}

// SetReady marks the daemon as ready to accept traffic.
func (c *Checker) SetReady(ready bool) {
	c.ready.Store(ready)
	c.mu.Lock()
	watchers := append(([]func(bool))(nil), c.watchers...)
	c.mu.Unlock()
	for _, w := range watchers {
		w(ready)
	}
}

// Ready reports the readiness flag.
func (c *Checker) Ready() bool { return c.ready.Load() }

func (c *Checker) watch(fn func(bool)) {
	c.mu.Lock()
	c.watchers = append(c.watchers, fn)
	c.mu.Unlock()
	fn(c.ready.Load())
}

// Report runs every check and assembles the health document.
func (c *Checker) Report(ctx context.Context) Report {
	c.mu.Lock()
	checks := append([]namedCheck(nil), c.checks...)
	c.mu.Unlock()

	r := Report{
		Status:     StatusHealthy,
		STTBackend: c.info.STTBackend,
		Responders: c.info.Responders,
		TTSEnabled: c.info.TTSEnabled,
		Timestamp:  c.now().UTC(),
		Components: make(map[string]string, len(checks)),
	}
	if r.Responders == nil {
		r.Responders = []string{}
	}

	for _, nc := range checks {
		cctx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := nc.check(cctx)
		cancel()
		if err != nil {
			slog.Warn("health check failed", "component", nc.name, "error", err)
			r.Components[nc.name] = "unavailable"
			r.Status = StatusDegraded
			continue
		}
		r.Components[nc.name] = "ok"
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		r.Memory = &Memory{
			TotalBytes:     vm.Total,
			AvailableBytes: vm.Available,
			UsedPercent:    vm.UsedPercent,
		}
	}

	if !c.Ready() {
		r.Status = StatusStarting
	}
	return r
}

// Server is a lightweight HTTP server that exposes /healthz and /readyz.
type Server struct {
	port    int
	checker *Checker
	server  *http.Server
}

// NewServer creates a health server for checker.
func NewServer(port int, checker *Checker) *Server {
	return &Server{port: port, checker: checker}
}

// Handler returns the probe routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Liveness: the process is up and has finished wiring.
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if !s.checker.Ready() {
			writeStatus(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
			return
		}
		writeStatus(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Readiness: every component check passes too.
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		rep := s.checker.Report(r.Context())
		code := http.StatusOK
		if rep.Status != StatusHealthy {
			code = http.StatusServiceUnavailable
		}
		writeStatus(w, code, rep)
	})
	return mux
}

// ListenAndServe starts the health check HTTP server.
// It blocks until the context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	slog.Info("health server listening", "port", s.port)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("health server: %w", err)
	}
	return nil
}

// ServeGRPC exposes grpc.health.v1 on port until ctx is cancelled.
func (s *Server) ServeGRPC(ctx context.Context, port int) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("grpc health listen: %w", err)
	}
	return s.serveGRPC(ctx, lis)
}

func (s *Server) serveGRPC(ctx context.Context, lis net.Listener) error {
	gs := grpc.NewServer()
	hs := grpchealth.NewServer()
	healthpb.RegisterHealthServer(gs, hs)

	s.checker.watch(func(ready bool) {
		status := healthpb.HealthCheckResponse_NOT_SERVING
		if ready {
			status = healthpb.HealthCheckResponse_SERVING
		}
		hs.SetServingStatus("", status)
	})

	slog.Info("grpc health service listening", "addr", lis.Addr().String())

	go func() {
		<-ctx.Done()
		hs.Shutdown()
		gs.GracefulStop()
	}()

	if err := gs.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("grpc health server: %w", err)
	}
	return nil
}

func writeStatus(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
