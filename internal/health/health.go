// Package health serves the liveness and readiness probes of the voxcast
// server.
//
//   - /healthz reports that the process serves HTTP. It is always 200.
//   - /readyz runs every registered [Checker] concurrently and is 200 only
//     when all of them pass.
//
// Both respond with a JSON object carrying "status" ("ok" or "fail"), the
// process uptime and, for /readyz, the result of each named check.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

// Checker is a named readiness check. Check returns nil when the dependency
// is healthy.
type Checker struct {
	// Name labels the check in the response (e.g. "world", "access_store").
	Name string

	// Check probes the dependency. It must respect context cancellation.
	Check func(ctx context.Context) error
}

type result struct {
	Status    string            `json:"status"`
	UptimeSec int64             `json:"uptime_sec"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// Handler serves /healthz and /readyz. The checker list is fixed at
// construction time.
type Handler struct {
	checkers []Checker
	started  time.Time
	now      func() time.Time
}

// New returns a [Handler] over checkers.
func New(checkers ...Checker) *Handler {
	return &Handler{
		checkers: append([]Checker(nil), checkers...),
		started:  time.Now(),
		now:      time.Now,
	}
}

// Healthz is the liveness probe.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok", UptimeSec: h.uptime()})
}

// Readyz is the readiness probe. Each checker gets [checkTimeout] derived
// from the request context.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	var (
		mu     sync.Mutex
		checks = make(map[string]string, len(h.checkers))
		failed bool
	)

	// Checks never fail the group so a slow dependency does not cancel
	// the others.
	g, ctx := errgroup.WithContext(r.Context())
	for _, c := range h.checkers {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()
			err := run(cctx, c)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				checks[c.Name] = "fail: " + err.Error()
				failed = true
			} else {
				checks[c.Name] = "ok"
			}
			return nil
		})
	}
	_ = g.Wait()

	res := result{Status: "ok", UptimeSec: h.uptime(), Checks: checks}
	status := http.StatusOK
	if failed {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

// run calls c.Check and turns a panic into a failed check.
func run(ctx context.Context, c Checker) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("check panicked: %v", p)
		}
	}()
	return c.Check(ctx)
}

func (h *Handler) uptime() int64 {
	return int64(h.now().Sub(h.started) / time.Second)
}

// Register adds the /healthz and /readyz routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// TickCheck adapts a loop liveness function such as
// (*world.World).CheckAlive into a [Checker].
func TickCheck(name string, alive func(maxAge time.Duration) error, maxAge time.Duration) Checker {
	return Checker{Name: name, Check: func(context.Context) error { return alive(maxAge) }}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
