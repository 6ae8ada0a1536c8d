// Command voxcast is the authoritative voice spell casting server.
package main

import (
	"cmp"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voxcast/internal/app"
	"github.com/MrWong99/voxcast/internal/config"
	"github.com/MrWong99/voxcast/internal/observe"
	"github.com/MrWong99/voxcast/pkg/provider/stt"
	"github.com/MrWong99/voxcast/pkg/provider/stt/deepgram"
	"github.com/MrWong99/voxcast/pkg/provider/stt/whisper"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	// Polling starts with watcher.Run, after the application exists.
	var application *app.App
	watcher, err := config.NewWatcher(*configPath, func(old, cfg *config.Config) {
		application.Reload(old, cfg)
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voxcast: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voxcast: %v\n", err)
		}
		return 1
	}
	cfg := watcher.Current()

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(app.SlogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("voxcast starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"tick_rate_hz", cfg.Server.TickRateHz,
		"stt", cfg.Providers.STT.Name,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		Registerer:     promReg,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		slog.Error("failed to create metrics", "err", err)
		return 1
	}

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg, cfg.Voice)

	application, err = app.New(ctx, cfg,
		app.WithRegistry(reg),
		app.WithMetrics(metrics),
		app.WithLevelVar(level),
		app.WithGatherer(promReg),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return application.Run(gctx) })
	g.Go(func() error { return watcher.Run(gctx) })

	slog.Info("server ready, press Ctrl+C to shut down", "speech", application.ListenerKind())
	runErr := g.Wait()
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping")
	exit := 0
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		exit = 1
	}
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		exit = 1
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return exit
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires the STT providers that ship with voxcast.
// voice supplies the defaults a provider entry does not override.
func registerBuiltinProviders(reg *config.Registry, voice config.VoiceConfig) {
	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		opts := []deepgram.Option{
			deepgram.WithModel(entry.Model),
			deepgram.WithLanguage(cmp.Or(optString(entry.Options, "language"), voice.Language)),
			deepgram.WithSampleRate(voice.SampleRate),
			deepgram.WithEndpoint(entry.BaseURL),
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := cmp.Or(entry.Model, optString(entry.Options, "model_path"))
		opts := []whisper.NativeOption{
			whisper.WithLanguage(cmp.Or(optString(entry.Options, "language"), voice.Language)),
			whisper.WithSampleRate(voice.SampleRate),
		}
		if ms, ok := optInt(entry.Options, "pause_ms"); ok {
			opts = append(opts, whisper.WithPauseMs(ms))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	for _, name := range reg.STTNames() {
		slog.Debug("registered provider", "kind", "stt", "name", name)
	}
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optInt extracts an integer value from a provider Options map. YAML decodes
// whole numbers as int.
func optInt(opts map[string]any, key string) (int, bool) {
	switch v := opts[key].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	}
	return 0, false
}
