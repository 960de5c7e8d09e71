// Package runtime wires the router and artifact store into one
// explicitly managed context object: created once at process start,
// injected into agents at construction, and shut down explicitly.
// There is no module-level singleton.
package runtime

import (
	"context"
	"errors"
	"time"

	"github.com/jllopis/agora/pkg/router"
	"github.com/jllopis/agora/pkg/store"
)

// Runtime is the lifecycle contract for an agent execution context.
type Runtime interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Router() *router.Router
	Store() *store.SQLiteStore
}

// Local is the single-process runtime: one router, one store instance,
// and an optional background sweep that purges expired artifacts.
type Local struct {
	router *router.Router
	store  *store.SQLiteStore

	sweepInterval time.Duration
	sweepTimeout  time.Duration
	sweepCancel   context.CancelFunc
	sweepDone     chan struct{}

	started bool
}

// Option configures a Local runtime.
type Option func(*Local)

// WithSweepInterval enables the expiry sweep at the given cadence.
// Zero disables it.
func WithSweepInterval(d time.Duration) Option {
	return func(l *Local) { l.sweepInterval = d }
}

// WithSweepTimeout bounds each sweep pass.
func WithSweepTimeout(d time.Duration) Option {
	return func(l *Local) { l.sweepTimeout = d }
}

// NewLocal creates a runtime around the given router and store.
func NewLocal(rt *router.Router, st *store.SQLiteStore, opts ...Option) *Local {
	l := &Local{router: rt, store: st}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start marks the runtime ready and launches the expiry sweeper when
// an interval is configured.
func (l *Local) Start(_ context.Context) error {
	if l.started {
		return errors.New("runtime already started")
	}
	l.started = true
	l.startSweeper()
	return nil
}

// Stop halts the sweeper and marks the runtime stopped. It does not
// close the database; the owner of the *sql.DB does that.
func (l *Local) Stop(_ context.Context) error {
	if !l.started {
		return nil
	}
	l.stopSweeper()
	l.started = false
	return nil
}

// Router returns the message router.
func (l *Local) Router() *router.Router {
	return l.router
}

// Store returns the artifact store.
func (l *Local) Store() *store.SQLiteStore {
	return l.store
}
