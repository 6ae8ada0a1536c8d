// Package app wires the voxcast subsystems into a running server.
//
// New builds everything from a [config.Config]: the spell access policy and
// its store, the speech engine (or the stub fallback), the listener, the
// world loop and the HTTP surface. Run drives the world and the HTTP server
// until the context is cancelled; Shutdown releases what New acquired.
//
// Tests inject doubles with functional options (WithAccessStore, WithSTT).
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voxcast/internal/access"
	"github.com/MrWong99/voxcast/internal/config"
	"github.com/MrWong99/voxcast/internal/health"
	"github.com/MrWong99/voxcast/internal/intent"
	"github.com/MrWong99/voxcast/internal/observe"
	"github.com/MrWong99/voxcast/internal/resilience"
	"github.com/MrWong99/voxcast/internal/session"
	"github.com/MrWong99/voxcast/internal/transcript/phonetic"
	"github.com/MrWong99/voxcast/internal/transport/ws"
	"github.com/MrWong99/voxcast/internal/world"
	"github.com/MrWong99/voxcast/pkg/provider/stt"
	"github.com/MrWong99/voxcast/pkg/types"
)

// maxTickAge is the readiness threshold for the world loop.
const maxTickAge = 2 * time.Second

// App owns all subsystem lifetimes.
type App struct {
	cfg      atomic.Pointer[config.Config]
	level    *slog.LevelVar
	metrics  *observe.Metrics
	registry *config.Registry
	gatherer prometheus.Gatherer

	store    access.Store
	policy   *access.Policy
	sttProv  stt.Provider
	matcher  *intent.Matcher
	listener *session.Listener
	world    *world.World
	handler  http.Handler
	server   *http.Server

	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithAccessStore injects the spell access store instead of choosing one
// from access.postgres_dsn.
func WithAccessStore(s access.Store) Option {
	return func(a *App) { a.store = s }
}

// WithSTT injects the speech provider instead of building it from the
// registry.
func WithSTT(p stt.Provider) Option {
	return func(a *App) { a.sttProv = p }
}

// WithRegistry sets the provider registry used to build the speech engine.
func WithRegistry(r *config.Registry) Option {
	return func(a *App) { a.registry = r }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLevelVar lets config reloads change the log level.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// WithGatherer exposes g on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(a *App) { a.gatherer = g }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New builds an App from cfg.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{}
	a.cfg.Store(cfg)
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.level == nil {
		a.level = new(slog.LevelVar)
	}
	a.level.Set(SlogLevel(cfg.Server.LogLevel))

	// ── 1. Spell access ──────────────────────────────────────────────────
	if err := a.initAccess(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init access: %w", err)
	}

	// ── 2. Speech sessions ───────────────────────────────────────────────
	a.matcher = intent.NewMatcher(intent.Builtin())
	a.matcher.SetConfigured(cfg.Voice.Phrases)
	a.initListener()

	// ── 3. World ─────────────────────────────────────────────────────────
	a.world = world.New(cfg, world.Deps{
		Policy:    a.policy,
		Matcher:   a.matcher,
		Listener:  a.listener,
		Suggester: phonetic.New(),
	}, world.WithMetrics(a.metrics))

	// ── 4. HTTP surface ──────────────────────────────────────────────────
	a.handler = a.routes()
	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

func (a *App) initAccess(ctx context.Context) error {
	if a.store == nil {
		dsn := a.cfg.Load().Access.PostgresDSN
		if dsn == "" {
			slog.Info("app: spell access overrides kept in memory")
			a.store = access.NewMemStore()
		} else {
			pg, err := access.NewPostgresStore(ctx, dsn)
			if err != nil {
				return err
			}
			a.closers = append(a.closers, func() error { pg.Close(); return nil })
			a.store = pg
			slog.Info("app: spell access overrides stored in postgres")
		}
	}

	policy, err := access.NewPolicy(ctx, a.store, func(spellID string) bool {
		_, ok := a.cfg.Load().CostOf(spellID)
		return ok
	})
	if err != nil {
		return err
	}
	a.policy = policy
	return nil
}

func (a *App) initListener() {
	cfg := a.cfg.Load()
	probe := session.ProbeConfig{
		Engine: session.EngineConfig{
			Stream: stt.StreamConfig{
				SampleRate: cfg.Voice.SampleRate,
				Channels:   1,
				Language:   cfg.Voice.Language,
				Keywords:   a.keywords(),
			},
			MaxListen: time.Duration(cfg.Voice.MaxListenSec * float64(time.Second)),
			Recognises: func(normalized string) bool {
				_, ok := a.matcher.Match(normalized)
				return ok
			},
			Notify: func(actor types.ActorID, message string) { a.world.Post(actor, message) },
		},
		TestPhrase: cfg.Voice.TestPhrase,
		StubDelay:  session.DefaultStubDelay,
	}
	factory, kind := session.Probe(a.buildSTT, probe)
	a.listener = session.NewListener(factory, kind, session.WithMetrics(a.metrics))
	a.closers = append(a.closers, func() error { a.listener.Close(); return nil })
}

// buildSTT builds the configured provider, wrapped in a failover group when
// fallbacks are configured.
func (a *App) buildSTT() (stt.Provider, error) {
	if a.sttProv != nil {
		return a.sttProv, nil
	}
	cfg := a.cfg.Load().Providers
	if cfg.STT.Name == "" {
		return nil, session.ErrNoEngine
	}
	if a.registry == nil {
		return nil, fmt.Errorf("app: no provider registry for stt %q", cfg.STT.Name)
	}

	primary, err := a.registry.CreateSTT(cfg.STT)
	if err != nil {
		return nil, fmt.Errorf("create stt provider %q: %w", cfg.STT.Name, err)
	}
	a.addCloser(primary)
	if len(cfg.STTFallbacks) == 0 {
		return primary, nil
	}

	fb := resilience.NewSTTFallback(primary, cfg.STT.Name, resilience.FallbackConfig{}, a.metrics)
	for _, entry := range cfg.STTFallbacks {
		p, err := a.registry.CreateSTT(entry)
		if err != nil {
			slog.Warn("app: skipping stt fallback", "name", entry.Name, "err", err)
			continue
		}
		a.addCloser(p)
		fb.AddFallback(entry.Name, p)
	}
	return fb, nil
}

func (a *App) addCloser(p stt.Provider) {
	if c, ok := p.(interface{ Close() error }); ok {
		a.closers = append(a.closers, c.Close)
	}
}

// keywords boosts every known phrase plus the configured hotwords.
func (a *App) keywords() []types.KeywordBoost {
	seen := make(map[string]bool)
	var out []types.KeywordBoost
	add := func(k string, boost float64) {
		if k == "" || seen[k] {
			return
		}
		seen[k] = true
		out = append(out, types.KeywordBoost{Keyword: k, Boost: boost})
	}
	for _, h := range a.cfg.Load().Voice.Hotwords {
		add(h, 5)
	}
	for _, p := range a.matcher.Phrases() {
		add(p, 2)
	}
	return out
}

func (a *App) routes() http.Handler {
	cfg := a.cfg.Load()
	mux := http.NewServeMux()

	health.New(
		health.TickCheck("world", a.world.CheckAlive, maxTickAge),
		health.Checker{Name: "access_store", Check: a.policy.Ping},
	).Register(mux)
	access.NewHandler(a.policy).Register(mux)
	mux.Handle("GET /ws", ws.NewServer(a.world,
		ws.WithTokens(cfg.Server.ActorTokens),
		ws.WithAudio(a.listener),
	))
	if a.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{}))
	}
	return observe.Middleware(a.metrics)(mux)
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Handler returns the HTTP handler serving every route.
func (a *App) Handler() http.Handler { return a.handler }

// World returns the world loop.
func (a *App) World() *world.World { return a.world }

// Policy returns the spell access policy.
func (a *App) Policy() *access.Policy { return a.policy }

// ListenerKind reports whether sessions use the speech engine or the stub.
func (a *App) ListenerKind() string { return a.listener.Kind() }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP on the configured address and drives the world loop until
// ctx is cancelled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Load().Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen: %w", err)
	}
	return a.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	a.server = &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.world.Run(gctx) })
	g.Go(func() error {
		slog.Info("app: http server listening", "addr", ln.Addr().String())
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Reload applies a changed configuration. It is the config watcher callback.
func (a *App) Reload(old, cfg *config.Config) {
	d := config.Diff(old, cfg)
	if len(d.RestartRequired) > 0 {
		slog.Warn("app: changed settings take effect after a restart", "keys", d.RestartRequired)
	}
	if !d.HotReloadable() {
		return
	}
	if d.LogLevelChanged {
		a.level.Set(SlogLevel(d.NewLogLevel))
	}
	a.cfg.Store(cfg)
	a.world.Reload(cfg)
	slog.Info("app: configuration reloaded",
		"log_level", d.LogLevelChanged,
		"phrases", d.PhrasesChanged,
		"spells", d.SpellsChanged,
		"mana", d.ManaChanged,
		"debug_notices", d.DebugNoticesChanged,
	)
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown releases what New acquired, in reverse order. Remaining closers
// are skipped once ctx expires.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	a.stopOnce.Do(func() {
		for i := len(a.closers) - 1; i >= 0; i-- {
			if ctx.Err() != nil {
				slog.Warn("app: shutdown deadline exceeded", "remaining", i+1)
				err = ctx.Err()
				return
			}
			if cerr := a.closers[i](); cerr != nil {
				slog.Warn("app: closer error", "index", i, "err", cerr)
			}
		}
		slog.Info("app: shutdown complete")
	})
	return err
}

func (a *App) closeAll() { _ = a.Shutdown(context.Background()) }

// SlogLevel maps a configured level to its slog equivalent.
func SlogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
