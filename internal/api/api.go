// Package api provides HTTP handlers and the main server logic for AtendeBot.
//
// It exposes the Twilio inbound webhook, menu administration endpoints and
// analytics queries, and owns the wiring between the transport, the
// dialogue engine, the menu cache and the scheduler.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/comunidadegraca/atendebot/internal/analytics"
	"github.com/comunidadegraca/atendebot/internal/dialog"
	"github.com/comunidadegraca/atendebot/internal/menu"
	"github.com/comunidadegraca/atendebot/internal/messaging"
	"github.com/comunidadegraca/atendebot/internal/scheduler"
	"github.com/comunidadegraca/atendebot/internal/store"
	"github.com/comunidadegraca/atendebot/internal/twiliowhatsapp"
	"github.com/comunidadegraca/atendebot/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultAddr is the default API listen address
	DefaultAddr = ":8080"
	// DefaultRefreshHour is the wall-clock hour of the daily menu cache refresh
	DefaultRefreshHour = 3
	// DefaultRollupHour is the wall-clock hour of the daily analytics rollup
	DefaultRollupHour = 0
	// DefaultExpiryIntervalMinutes is how often the session expiry sweep runs
	DefaultExpiryIntervalMinutes = 10
	// DefaultShutdownTimeout bounds graceful HTTP shutdown
	DefaultShutdownTimeout = 10 * time.Second
	// janitorInterval is how often idle conversation state is evicted
	janitorInterval = 5 * time.Minute
)

// TransportKind selects the WhatsApp transport implementation.
type TransportKind string

const (
	// TransportTwilio receives messages via the Twilio webhook.
	TransportTwilio TransportKind = "twilio"
	// TransportWhatsmeow receives messages via a WhatsApp Web session.
	TransportWhatsmeow TransportKind = "whatsmeow"
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr        string
	RefreshHour int
	Transport   TransportKind
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithRefreshHour sets the wall-clock hour of the daily cache refresh.
func WithRefreshHour(hour int) Option {
	return func(o *Opts) { o.RefreshHour = hour }
}

// WithTransport selects the WhatsApp transport implementation.
func WithTransport(t TransportKind) Option {
	return func(o *Opts) { o.Transport = t }
}

// Server wires the transport, dialogue engine, menu cache, store and
// scheduler together and serves the HTTP API.
type Server struct {
	st         store.Store
	dedupRepo  store.DedupRepo
	cache      *menu.Cache
	states     *dialog.States
	engine     *dialog.Engine
	tracker    *analytics.Tracker
	msgService messaging.Service
	twilioSvc  *messaging.TwilioService // non-nil when the Twilio transport is active
	sched      *scheduler.Scheduler
	addr       string
}

// Run builds the full service from the given module options and blocks
// until SIGINT/SIGTERM. It returns an error if startup fails.
func Run(storeOpts []store.Option, waOpts []whatsapp.Option, twilioOpts []twiliowhatsapp.Option, apiOpts []Option) error {
	cfg := Opts{Addr: DefaultAddr, RefreshHour: DefaultRefreshHour, Transport: TransportTwilio}
	for _, opt := range apiOpts {
		opt(&cfg)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := NewServer(ctx, cfg, storeOpts, waOpts, twilioOpts)
	if err != nil {
		return err
	}
	defer s.Close()

	return s.Serve(ctx)
}

// NewServer constructs and starts all modules. The caller owns Close.
func NewServer(ctx context.Context, cfg Opts, storeOpts []store.Option, waOpts []whatsapp.Option, twilioOpts []twiliowhatsapp.Option) (*Server, error) {
	st, dedupRepo, err := buildStore(storeOpts)
	if err != nil {
		return nil, err
	}

	cache := menu.NewCache(st)
	if err := cache.Refresh(ctx); err != nil {
		// Fail-open: the bot starts with an empty cache and answers with
		// the maintenance message until a refresh succeeds.
		slog.Warn("Server: initial menu cache refresh failed", "error", err)
	}

	states := dialog.NewStates(dialog.DefaultStateTTL)
	states.StartJanitor(janitorInterval)

	tracker := analytics.NewTracker(st)
	tracker.Start(ctx)

	engine := dialog.NewEngine(cache, states,
		dialog.WithTracker(tracker),
		dialog.WithDedupWindow(dialog.NewDedupWindow(dialog.DefaultDedupWindow)),
	)

	s := &Server{
		st:        st,
		dedupRepo: dedupRepo,
		cache:     cache,
		states:    states,
		engine:    engine,
		tracker:   tracker,
		sched:     scheduler.NewScheduler(),
		addr:      cfg.Addr,
	}

	if err := s.buildTransport(ctx, cfg.Transport, waOpts, twilioOpts); err != nil {
		s.Close()
		return nil, err
	}

	s.scheduleJobs(ctx, cfg.RefreshHour)
	go s.dispatchResponses(ctx)

	return s, nil
}

// buildStore selects the store backend from the configured options.
// With no DSN an in-memory store is used.
func buildStore(storeOpts []store.Option) (store.Store, store.DedupRepo, error) {
	var cfg store.Opts
	for _, opt := range storeOpts {
		opt(&cfg)
	}

	if cfg.DSN == "" {
		slog.Info("Server: no database DSN configured, using in-memory store")
		mem := store.NewInMemoryStore()
		return mem, mem, nil
	}

	if store.DetectDSNType(cfg.DSN) == "postgres" {
		pg, err := store.NewPostgresStore(storeOpts...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open postgres store: %w", err)
		}
		return pg, pg, nil
	}

	sq, err := store.NewSQLiteStore(storeOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open sqlite store: %w", err)
	}
	return sq, sq, nil
}

// buildTransport constructs the configured messaging service.
func (s *Server) buildTransport(ctx context.Context, kind TransportKind, waOpts []whatsapp.Option, twilioOpts []twiliowhatsapp.Option) error {
	switch kind {
	case TransportWhatsmeow:
		client, err := whatsapp.NewClient(waOpts...)
		if err != nil {
			return fmt.Errorf("failed to create whatsapp client: %w", err)
		}
		s.msgService = messaging.NewWhatsAppService(client)
	default:
		client, err := twiliowhatsapp.NewClient(twilioOpts...)
		if err != nil {
			return fmt.Errorf("failed to create twilio client: %w", err)
		}
		twilioSvc := messaging.NewTwilioService(client)
		s.twilioSvc = twilioSvc
		s.msgService = twilioSvc
	}

	if err := s.msgService.Start(ctx); err != nil {
		return fmt.Errorf("failed to start messaging service: %w", err)
	}
	slog.Info("Server: messaging transport ready", "transport", string(kind))
	return nil
}

// scheduleJobs registers the housekeeping schedules: daily cache refresh
// at the configured hour, daily analytics rollup after midnight, and the
// periodic session expiry sweep.
func (s *Server) scheduleJobs(ctx context.Context, refreshHour int) {
	if err := s.sched.AddDailyJob(refreshHour, func() {
		if err := s.cache.Refresh(ctx); err != nil {
			slog.Error("Server: scheduled menu refresh failed", "error", err)
		}
	}); err != nil {
		slog.Error("Server: failed to schedule menu refresh", "error", err, "hour", refreshHour)
	}

	if err := s.sched.AddDailyJob(DefaultRollupHour, func() {
		yesterday := time.Now().AddDate(0, 0, -1).Format("2006-01-02")
		s.tracker.LogDailySummary(yesterday)
	}); err != nil {
		slog.Error("Server: failed to schedule daily rollup", "error", err)
	}

	if err := s.sched.AddIntervalJob(DefaultExpiryIntervalMinutes, s.tracker.ExpireSessions); err != nil {
		slog.Error("Server: failed to schedule session expiry", "error", err)
	}
}

// Serve starts the HTTP server and blocks until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/webhook/twilio", s.webhookHandler)
	mux.HandleFunc("/messages", s.sendHandler)
	mux.HandleFunc("/menu", s.menuHandler)
	mux.HandleFunc("/menu/refresh", s.menuRefreshHandler)
	mux.HandleFunc("/menu/nodes", s.menuNodesHandler)
	mux.HandleFunc("/menu/nodes/", s.menuNodesHandler)
	mux.HandleFunc("/sessions", s.sessionsHandler)
	mux.HandleFunc("/stats/daily", s.dailyStatsHandler)
	mux.HandleFunc("/health", s.healthHandler)

	srv := &http.Server{Addr: s.addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server: HTTP API listening", "addr", s.addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
		slog.Info("Server: shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Close stops background modules in reverse dependency order.
func (s *Server) Close() {
	if s.sched != nil {
		s.sched.Stop()
	}
	if s.msgService != nil {
		if err := s.msgService.Stop(); err != nil {
			slog.Error("Server: messaging service stop failed", "error", err)
		}
	}
	if s.tracker != nil {
		s.tracker.Stop()
	}
	if s.states != nil {
		s.states.Stop()
	}
	if s.st != nil {
		if err := s.st.Close(); err != nil {
			slog.Error("Server: store close failed", "error", err)
		}
	}
}
