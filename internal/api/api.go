// Package api provides the HTTP surface and the main server wiring for
// BreatheCheck.
//
// It exposes the Twilio inbound webhook, a direct assessment-turn endpoint,
// session inspection, and health checking, and assembles the store, air
// quality client, assessment engine, messaging, and expiry scheduler.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BTreeMap/BreatheCheck/internal/airquality"
	"github.com/BTreeMap/BreatheCheck/internal/flow"
	"github.com/BTreeMap/BreatheCheck/internal/messaging"
	"github.com/BTreeMap/BreatheCheck/internal/scheduler"
	"github.com/BTreeMap/BreatheCheck/internal/store"
)

// Default configuration for the API server.
const (
	// DefaultAddr is the default listen address.
	DefaultAddr = ":8080"
	// DefaultExpiryCron sweeps idle sessions every 15 minutes.
	DefaultExpiryCron = "*/15 * * * *"
	// DefaultShutdownTimeout bounds graceful HTTP shutdown.
	DefaultShutdownTimeout = 10 * time.Second
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr       string
	IdleExpiry time.Duration // 0 disables the idle-session sweep
	ExpiryCron string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the HTTP listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithIdleExpiry enables the idle-session sweep with the given idle bound.
func WithIdleExpiry(d time.Duration) Option {
	return func(o *Opts) { o.IdleExpiry = d }
}

// WithExpiryCron overrides the sweep schedule.
func WithExpiryCron(expr string) Option {
	return func(o *Opts) { o.ExpiryCron = expr }
}

// Server holds the wired components behind the HTTP handlers.
type Server struct {
	engine      *flow.Engine
	store       store.Store
	msgService  messaging.Service
	respHandler *messaging.ResponseHandler
	twilio      *messaging.TwilioService // non-nil when the Twilio webhook is enabled
	addr        string
}

// NewServer wires a Server from already-built components. Exposed for tests.
func NewServer(engine *flow.Engine, st store.Store, msgService messaging.Service, addr string) *Server {
	s := &Server{
		engine:     engine,
		store:      st,
		msgService: msgService,
		addr:       addr,
	}
	s.respHandler = messaging.NewResponseHandler(msgService, engine.HandleTurn)
	if twilioService, ok := msgService.(*messaging.TwilioService); ok {
		s.twilio = twilioService
	}
	if s.addr == "" {
		s.addr = DefaultAddr
	}
	return s
}

// Handler builds the HTTP route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/v1/turn", s.turnHandler)
	mux.HandleFunc("/v1/sessions/", s.sessionHandler)
	if s.twilio != nil {
		mux.HandleFunc("/webhook/twilio", s.twilioWebhookHandler)
	}
	return mux
}

// Run assembles all modules and serves until SIGINT/SIGTERM.
func Run(storeOpts []store.Option, aqOpts []airquality.Option, msgService messaging.Service, apiOpts []Option) error {
	cfg := Opts{
		Addr:       DefaultAddr,
		ExpiryCron: DefaultExpiryCron,
	}
	for _, opt := range apiOpts {
		opt(&cfg)
	}

	st, err := buildStore(storeOpts)
	if err != nil {
		return err
	}
	defer st.Close()

	air := buildAirQualityClient(aqOpts)
	engine := flow.NewEngine(st, air)
	server := NewServer(engine, st, msgService, cfg.Addr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := msgService.Start(ctx); err != nil {
		slog.Error("Failed to start messaging service", "error", err)
		return err
	}
	defer func() {
		if err := msgService.Stop(); err != nil {
			slog.Error("Failed to stop messaging service", "error", err)
		}
	}()

	server.respHandler.Start(ctx)
	go drainReceipts(ctx, msgService)

	sched := scheduler.NewScheduler()
	defer sched.Stop()
	if cfg.IdleExpiry > 0 {
		idleExpiry := cfg.IdleExpiry
		err := sched.AddJob(cfg.ExpiryCron, func() {
			removed, err := st.DeleteSessionsIdleBefore(time.Now().Add(-idleExpiry))
			if err != nil {
				slog.Error("Idle session sweep failed", "error", err)
				return
			}
			if removed > 0 {
				slog.Info("Idle session sweep removed sessions", "count", removed, "idle_bound", idleExpiry)
			}
		})
		if err != nil {
			slog.Error("Failed to schedule idle session sweep", "error", err, "cron", cfg.ExpiryCron)
			return err
		}
		slog.Info("Idle session sweep scheduled", "cron", cfg.ExpiryCron, "idle_bound", cfg.IdleExpiry)
	} else {
		slog.Debug("Idle session sweep disabled")
	}

	httpServer := &http.Server{Addr: server.addr, Handler: server.Handler()}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("BreatheCheck API listening", "addr", server.addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server failed", "error", err)
			return err
		}
		return nil
	case <-ctx.Done():
		slog.Info("Shutdown signal received, draining")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown failed", "error", err)
		return err
	}
	server.respHandler.Wait()
	slog.Info("BreatheCheck API stopped")
	return nil
}

// buildStore selects the session store backend from the configured DSN:
// PostgreSQL for postgres DSNs, SQLite for file paths, in-memory when no DSN
// is set.
func buildStore(storeOpts []store.Option) (store.Store, error) {
	var cfg store.Opts
	for _, opt := range storeOpts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Info("No database DSN configured, using in-memory session store")
		return store.NewInMemoryStore(), nil
	}
	if store.DetectDSNType(cfg.DSN) == "postgres" {
		slog.Info("Using PostgreSQL session store")
		return store.NewPostgresStore(storeOpts...)
	}
	slog.Info("Using SQLite session store", "path", cfg.DSN)
	return store.NewSQLiteStore(storeOpts...)
}

// buildAirQualityClient returns the WAQI client, or a static unavailable
// reading when no token is configured so assessments still complete.
func buildAirQualityClient(aqOpts []airquality.Option) airquality.Client {
	var cfg airquality.Opts
	for _, opt := range aqOpts {
		opt(&cfg)
	}
	if cfg.Token == "" {
		slog.Warn("No WAQI token configured, air-quality readings will be unavailable")
		return &airquality.StaticClient{}
	}
	return airquality.NewWAQIClient(aqOpts...)
}

// drainReceipts logs delivery receipts until the context ends.
func drainReceipts(ctx context.Context, msgService messaging.Service) {
	for {
		select {
		case <-ctx.Done():
			return
		case receipt, ok := <-msgService.Receipts():
			if !ok {
				return
			}
			slog.Debug("Delivery receipt", "to", receipt.To, "status", receipt.Status)
		}
	}
}
