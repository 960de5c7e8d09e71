package runtime

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/jllopis/agora/pkg/artifact"
	"github.com/jllopis/agora/pkg/errors"
	"github.com/jllopis/agora/pkg/router"
	"github.com/jllopis/agora/pkg/store"

	_ "modernc.org/sqlite"
)

func newRuntimeStore(t *testing.T) (*store.SQLiteStore, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	// A second pool connection to :memory: is a fresh empty database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	s, err := store.New(db, t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s, db
}

func TestLifecycle(t *testing.T) {
	st, _ := newRuntimeStore(t)
	rt := NewLocal(router.New(), st)
	ctx := context.Background()

	if err := rt.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := rt.Start(ctx); err == nil {
		t.Fatalf("double start must fail")
	}
	if rt.Router() == nil || rt.Store() == nil {
		t.Fatalf("accessors must return the wired components")
	}
	if err := rt.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	// Stop is idempotent.
	if err := rt.Stop(ctx); err != nil {
		t.Fatalf("second stop: %v", err)
	}
	// And the runtime can be restarted.
	if err := rt.Start(ctx); err != nil {
		t.Fatalf("restart: %v", err)
	}
	rt.Stop(ctx)
}

func TestSweeperPurgesExpired(t *testing.T) {
	st, db := newRuntimeStore(t)
	ctx := context.Background()

	a, err := artifact.New(artifact.TypeReport, "Stale", "alice", "old content")
	if err != nil {
		t.Fatalf("new artifact: %v", err)
	}
	future := time.Now().UTC().Add(time.Hour)
	a.ExpiresAt = &future
	if _, err := st.Store(ctx, a); err != nil {
		t.Fatalf("store: %v", err)
	}
	// Backdate the stored expiry directly; the public API refuses to
	// persist an already-expired artifact.
	past := time.Now().UTC().Add(-time.Minute).UnixMilli()
	if _, err := db.Exec(`UPDATE artifacts SET expires_at = ? WHERE id = ?`, past, a.ID); err != nil {
		t.Fatalf("backdate: %v", err)
	}

	rt := NewLocal(router.New(), st,
		WithSweepInterval(10*time.Millisecond),
		WithSweepTimeout(time.Second),
	)
	if err := rt.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer rt.Stop(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := st.Retrieve(ctx, a.ID, ""); errors.IsNotFound(err) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("sweeper did not purge the expired artifact")
}

func TestSweeperDisabledWithoutInterval(t *testing.T) {
	st, _ := newRuntimeStore(t)
	rt := NewLocal(router.New(), st)
	ctx := context.Background()
	if err := rt.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if rt.sweepDone != nil {
		t.Fatalf("sweeper must stay off without an interval")
	}
	if err := rt.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
}
