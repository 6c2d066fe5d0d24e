package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/dkeye/Mesh/internal/adapters/http"
	"github.com/dkeye/Mesh/internal/app"
	"github.com/dkeye/Mesh/internal/app/orch"
	"github.com/dkeye/Mesh/internal/config"
	"github.com/dkeye/Mesh/internal/guard"
	"github.com/dkeye/Mesh/internal/membership"
	"github.com/dkeye/Mesh/internal/sdp"
	"github.com/dkeye/Mesh/internal/storage"
	"github.com/dkeye/Mesh/internal/wake"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	store, err := storage.NewStore(cfg.StorePath, nil)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.StorePath).Msg("failed to open store")
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate store")
	}

	g := guard.New(cfg.Guard)

	o := &orch.Orchestrator{
		Registry:   app.NewRegistry(),
		Pending:    app.NewPendingCalls(cfg.Call.PendingTTL, nil),
		Tokens:     app.NewTokenService(cfg.Call.TokenTTL, nil),
		Calls:      app.NewCallIndex(cfg.Call),
		Groups:     app.NewGroupManager(cfg.Group.Capacity),
		Store:      store,
		CallLogs:   store,
		Sanitizer:  sdp.NewSanitizer(),
		Membership: membership.Permissive{},
		Waker:      wake.NewLogWaker(),
		Transfer:   cfg.Transfer,
	}
	o.Wire()

	go sweep(ctx, cfg, store, g)

	r := router.SetupRouter(ctx, cfg, o, g)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Mesh server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}

// sweep is the periodic janitor: stale transfer rows and idle limiter
// windows.
func sweep(ctx context.Context, cfg *config.Config, store *storage.Store, g *guard.Guard) {
	ticker := time.NewTicker(cfg.Transfer.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.ExpireStale(ctx, time.Now(),
				cfg.Transfer.PendingTTL, cfg.Transfer.PausedTTL, cfg.Transfer.ActiveTTL)
			if err != nil {
				log.Error().Err(err).Msg("transfer sweep failed")
			} else if n > 0 {
				log.Info().Int64("expired", n).Msg("transfer sweep")
			}
			g.GC()
		}
	}
}
