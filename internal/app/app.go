// Package app wires the server components together and owns the
// process lifecycle.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"smartscribe/internal/retention"
	"smartscribe/pkg/auth"
	"smartscribe/pkg/banner"
	"smartscribe/pkg/config"
	"smartscribe/pkg/exchange"
	"smartscribe/pkg/ingest"
	"smartscribe/pkg/logger"
	"smartscribe/pkg/responder"
	"smartscribe/pkg/store"
	"smartscribe/pkg/transcriber"
	"smartscribe/pkg/validation"
)

// App encapsulates the server components and lifecycle.
type App struct {
	eff     config.EffectiveConfigResult
	version string

	gate      auth.IdentityGate
	exchanger *exchange.Exchanger
	pipeline  *ingest.Pipeline
	queue     *ingest.Queue

	srv *http.Server
}

// New initializes resources that do not require a running context
// (store, validation rules, collaborator clients). Call Run to start
// the workers and the HTTP server and block until shutdown.
func New(eff config.EffectiveConfigResult, version string) (*App, error) {
	if err := validateConfig(eff); err != nil {
		return nil, err
	}
	cfg := eff.Config

	initValidation(cfg)

	if err := store.Open(eff.DBPath); err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", eff.DBPath, err)
	}

	a := &App{eff: eff, version: version}

	if cfg.Auth.GateURL != "" {
		a.gate = auth.NewGateClient(cfg.Auth.GateURL)
	}

	var engine responder.Engine
	if cfg.Responder.Provider == "" || cfg.Responder.Provider == "genai" {
		if cfg.Responder.APIKey != "" {
			e, err := responder.NewGenAIEngine(cfg.Responder.APIKey, cfg.Responder.Model)
			if err != nil {
				store.Close()
				return nil, fmt.Errorf("responder init failed: %w", err)
			}
			engine = e
		}
	}
	if engine == nil {
		logger.Warn("responder_disabled", "provider", cfg.Responder.Provider)
	}
	a.exchanger = exchange.New(engine, exchange.Options{
		HistoryLimit:    cfg.Responder.HistoryLimit,
		MaxContextBytes: cfg.Responder.MaxContextBytes,
	})

	a.queue = ingest.NewQueue(cfg.Ingest.QueueCapacity)
	stt := transcriber.NewRemote(cfg.Transcriber.URL, time.Duration(cfg.Transcriber.TimeoutSeconds)*time.Second)
	a.pipeline = ingest.NewPipeline(a.queue, stt, cfg.Ingest.Workers)

	return a, nil
}

// Run starts the ingestion workers, the retention janitor and the HTTP
// server, and blocks until ctx is canceled or a fatal server error
// occurs.
func (a *App) Run(ctx context.Context) error {
	banner.Print(a.eff, a.version)

	workCtx, cancelWork := context.WithCancel(context.Background())
	workersDone := make(chan error, 1)
	go func() { workersDone <- a.pipeline.Run(workCtx) }()

	stopRetention, err := retention.Start(ctx, a.eff.Config)
	if err != nil {
		cancelWork()
		return err
	}
	defer stopRetention()

	errCh := a.startHTTP()

	select {
	case <-ctx.Done():
		a.stop(cancelWork, workersDone)
		return nil
	case err := <-errCh:
		a.stop(cancelWork, workersDone)
		return err
	}
}

// stop drains in-flight work: the HTTP server stops accepting, then the
// queue is closed while the workers keep running, so jobs already
// accepted still complete. Workers are cancelled only after they empty
// the queue or the drain deadline passes.
func (a *App) stop(cancelWork context.CancelFunc, workersDone chan error) {
	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if a.srv != nil {
		_ = a.srv.Shutdown(shutCtx)
	}
	a.queue.Close()
	select {
	case <-workersDone:
	case <-shutCtx.Done():
		logger.Warn("worker_drain_timeout")
	}
	cancelWork()
	a.queue.Drain()
	if err := store.Close(); err != nil {
		logger.Error("store_close_error", "error", err)
	}
	logger.Info("server_stopped")
}

// initValidation builds validation rules from config and sets them globally.
func initValidation(cfg *config.Config) {
	vr := validation.Rules{Types: map[string]string{}, MaxLen: map[string]int{}}
	vr.Required = append(vr.Required, cfg.Validation.Required...)
	for _, t := range cfg.Validation.Types {
		vr.Types[t.Path] = t.Type
	}
	for _, ml := range cfg.Validation.MaxLen {
		vr.MaxLen[ml.Path] = ml.Max
	}
	validation.SetRules(vr)
}
