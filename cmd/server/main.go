// ForgeBridge — an in-process command bridge for AI automation clients.
//
// This is the main entry point for the bridge server. It provides:
//   - Tool registry with schema validation
//   - Request pipeline (idempotency, locks, jobs, change sets)
//   - Property system over registered editor types
//   - Event stream and observability endpoints

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

	"github.com/forgebridge/forgebridge/internal/changeset"
	"github.com/forgebridge/forgebridge/internal/config"
	"github.com/forgebridge/forgebridge/internal/events"
	"github.com/forgebridge/forgebridge/internal/host"
	"github.com/forgebridge/forgebridge/internal/idempotency"
	"github.com/forgebridge/forgebridge/internal/jobs"
	"github.com/forgebridge/forgebridge/internal/lock"
	"github.com/forgebridge/forgebridge/internal/observability"
	"github.com/forgebridge/forgebridge/internal/patch"
	"github.com/forgebridge/forgebridge/internal/policy"
	"github.com/forgebridge/forgebridge/internal/propsys"
	"github.com/forgebridge/forgebridge/internal/registry"
	"github.com/forgebridge/forgebridge/internal/router"
	"github.com/forgebridge/forgebridge/internal/telemetry"
	"github.com/forgebridge/forgebridge/internal/tools"
	"github.com/forgebridge/forgebridge/internal/transport"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	log.Info().Msg("🔨 ForgeBridge starting...")

	cfg := config.Load()

	shutdownTelemetry, err := telemetry.Init(cfg.Telemetry, cfg.Version)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize telemetry")
	}
	defer shutdownTelemetry(context.Background())

	types := propsys.NewRegistry()
	if err := host.RegisterWorldTypes(types); err != nil {
		log.Fatal().Err(err).Msg("Failed to register editor types")
	}

	h := host.New(types)
	if err := host.SeedDemoWorld(h); err != nil {
		log.Fatal().Err(err).Msg("Failed to seed demo world")
	}

	var pol policy.Policy
	if cfg.PolicyPath != "" {
		pol, err = policy.Load(cfg.PolicyPath, h, "ForgeDemo")
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.PolicyPath).Msg("Failed to load policy rules")
		}
	} else {
		pol = policy.New(h, "ForgeDemo")
	}

	stream := events.NewStream(cfg.EventBuffer)
	tracker := jobs.NewTracker(stream)
	locks := lock.New()
	cache := idempotency.New()
	metrics := observability.New()
	changeSets := changeset.NewMemoryStore(h)
	reg := registry.New()

	err = tools.RegisterBuiltins(tools.Deps{
		Host:       h,
		Patch:      patch.NewEngine(types, h),
		Registry:   reg,
		Jobs:       tracker,
		ChangeSets: changeSets,
		Stream:     stream,
		Locks:      locks,
		Metrics:    metrics,
		Version:    cfg.Version,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to register tools")
	}

	rt := router.New(router.Config{
		Registry:   reg,
		Policy:     pol,
		Locks:      locks,
		Cache:      cache,
		Jobs:       tracker,
		ChangeSets: changeSets,
		Stream:     stream,
		Metrics:    metrics,
	})

	srv := transport.NewServer(rt, stream, tracker, metrics, cfg.Version)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      srv.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info().Msg("🛑 Shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	log.Info().
		Int("port", cfg.Port).
		Str("version", cfg.Version).
		Int("tools", len(reg.BuildToolsList(false, ""))).
		Msg("🔥 ForgeBridge is ready!")

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("Server failed")
	}
}
