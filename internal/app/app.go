// Package app wires the delivery pipeline together and runs the local ops
// HTTP surface the embedding shell talks to.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"cadence/internal/retention"
	"cadence/pkg/banner"
	"cadence/pkg/cache"
	"cadence/pkg/config"
	"cadence/pkg/connectivity"
	"cadence/pkg/convmeta"
	"cadence/pkg/delivery"
	"cadence/pkg/fragment"
	"cadence/pkg/genclient"
	"cadence/pkg/logger"
	"cadence/pkg/remote"
)

// App encapsulates the daemon components and lifecycle.
type App struct {
	cfg     *config.Config
	version string

	db     *cache.Store
	conn   *connectivity.Signal
	meta   *convmeta.Updater
	orch   *delivery.Orchestrator
	retCan context.CancelFunc

	srv *http.Server
}

// New initializes everything that does not need a running context: the
// local cache, the remote adapters and the orchestrator. Call Run to start
// the workers and the HTTP server.
func New(cfg *config.Config, version string) (*App, error) {
	db, err := cache.Open(cfg.Cache.Path)
	if err != nil {
		return nil, fmt.Errorf("open cache at %s: %w", cfg.Cache.Path, err)
	}

	backend := remote.NewClient(cfg.Backend.BaseURL, cfg.Backend.APIKey, cfg.Backend.Timeout.Std())
	msgs := remote.NewMessages(backend)
	convs := remote.NewConversations(backend)
	gen := genclient.New(cfg.Generation.BaseURL, cfg.Generation.APIKey)

	conn := connectivity.New(true)
	meta := convmeta.New(convs, cfg.Metadata.Debounce.Std())

	orch := delivery.New(delivery.Config{
		UserID: cfg.User.ID,
		Fragment: fragment.Options{
			MaxLen:        cfg.Fragment.MaxLen,
			ThinkingDelay: cfg.Fragment.ThinkingDelay.Std(),
			TypingPerChar: cfg.Fragment.TypingPerChar.Std(),
			MinDelay:      cfg.Fragment.MinDelay.Std(),
			MaxDelay:      cfg.Fragment.MaxDelay.Std(),
		},
		GenerationTimeout: cfg.Generation.Timeout.Std(),
		GenerationRate:    rate.Limit(cfg.Generation.Rate),
		GenerationBurst:   cfg.Generation.Burst,
		QueueCapacity:     cfg.Queue.Capacity,
		FragmentPause:     cfg.Sequence.Pause.Std(),
		FallbackReply:     cfg.Generation.FallbackReply,
		ApologyReply:      cfg.Generation.ApologyReply,
	}, gen, msgs, meta, conn, db)

	return &App{cfg: cfg, version: version, db: db, conn: conn, meta: meta, orch: orch}, nil
}

// Run starts the pipeline workers, the retention sweep and the HTTP server,
// and blocks until ctx is cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	a.orch.Run()

	cancel, err := retention.Start(ctx, a.cfg.Retention, uint64(a.cfg.Cache.MaxSize), a.db)
	if err != nil {
		return err
	}
	a.retCan = cancel

	banner.Print(a.cfg, a.version)

	errCh := a.startHTTP()
	select {
	case <-ctx.Done():
		a.shutdown()
		return nil
	case err := <-errCh:
		a.shutdown()
		return err
	}
}

// shutdown closes components in dependency order: stop intake, flush
// metadata, then release storage.
func (a *App) shutdown() {
	logger.Info("shutting_down")
	if a.srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.srv.Shutdown(ctx)
		cancel()
	}
	if a.retCan != nil {
		a.retCan()
	}
	a.orch.Close()
	a.meta.Close()
	if err := a.db.Close(); err != nil {
		logger.Warn("cache_close_failed", "error", err)
	}
	logger.Info("shutdown_complete")
}
