package sessionstore

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/playperu/reelquiz/internal/database"
	"github.com/playperu/reelquiz/internal/game"
	"github.com/playperu/reelquiz/internal/moviequiz"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

var testRetention = Retention{IdleTimeout: 30 * time.Minute, TerminalGrace: 10 * time.Minute}

func newTestSession(t *testing.T, id string, at time.Time) game.Session {
	t.Helper()
	m := moviequiz.Movie{ID: "m1", Title: "The Matrix", ReleaseYear: 1999, PosterPath: "/p.jpg", BackdropPath: "/b.jpg"}
	hs := moviequiz.HintSet{Dialogue: "There is no spoon.", Emoji: "💊🐇", Trivia: "Sushi code.", Location: "A simulated city."}
	s, err := game.Start(id, m, hs, game.Config{MaxAttempts: 3}, at)
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	return s
}

func newSQLiteStore(t *testing.T) Store {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	s, err := NewSQLite(ctx, db, testRetention)
	if err != nil {
		t.Fatalf("init sqlite store: %v", err)
	}
	return s
}

func newRedisStore(t *testing.T) Store {
	t.Helper()
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("parse redis url: %v", err)
	}
	rdb := redis.NewClient(opt)
	t.Cleanup(func() { rdb.Close() })

	prefix := "test:" + t.Name() + ":" + time.Now().Format("150405.000000") + ":"
	return NewRedis(rdb, testRetention, prefix)
}

func TestStores(t *testing.T) {
	backends := []struct {
		name string
		open func(t *testing.T) Store
	}{
		{name: "memory", open: func(*testing.T) Store { return NewMemory(testRetention) }},
		{name: "sqlite", open: newSQLiteStore},
		{name: "redis", open: newRedisStore},
	}

	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			t.Run("create and get", func(t *testing.T) { testCreateGet(t, b.open(t)) })
			t.Run("optimistic update", func(t *testing.T) { testUpdate(t, b.open(t)) })
			t.Run("delete", func(t *testing.T) { testDelete(t, b.open(t)) })
			t.Run("due and sweep", func(t *testing.T) { testSweep(t, b.open(t)) })
			t.Run("concurrent writers", func(t *testing.T) { testConcurrentWriters(t, b.open(t)) })
		})
	}
}

func testCreateGet(t *testing.T, store Store) {
	ctx := context.Background()
	s := newTestSession(t, "s1", t0)

	created, err := store.Create(ctx, s)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Version != 1 {
		t.Errorf("created version = %d, want 1", created.Version)
	}
	if _, err := store.Create(ctx, s); err == nil {
		t.Error("expected error creating a duplicate id")
	}

	got, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != "s1" || got.Version != 1 || got.Status != game.StatusActive {
		t.Errorf("got id=%q version=%d status=%s", got.ID, got.Version, got.Status)
	}
	if got.Target.Title != "The Matrix" || got.MaxStage != s.MaxStage || got.AttemptsRemaining != 3 {
		t.Errorf("fields not preserved: %+v", got)
	}
	if !got.CreatedAt.Equal(t0) {
		t.Errorf("createdAt = %s, want %s", got.CreatedAt, t0)
	}

	if _, err := store.Get(ctx, "nope"); !errors.Is(err, moviequiz.ErrSessionNotFound) {
		t.Errorf("get unknown: err = %v, want ErrSessionNotFound", err)
	}
}

func testUpdate(t *testing.T, store Store) {
	ctx := context.Background()
	s, err := store.Create(ctx, newTestSession(t, "s1", t0))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	revealed, _ := game.RevealNext(s, t0.Add(time.Second))
	updated, err := store.Update(ctx, revealed)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Version != 2 || updated.Stage != 1 {
		t.Errorf("updated version=%d stage=%d, want 2/1", updated.Version, updated.Stage)
	}

	// A second writer still holding version 1 must be rejected.
	if _, err := store.Update(ctx, revealed); !errors.Is(err, moviequiz.ErrStaleWrite) {
		t.Errorf("stale update: err = %v, want ErrStaleWrite", err)
	}

	got, _ := store.Get(ctx, "s1")
	if got.Version != 2 || got.Stage != 1 {
		t.Errorf("stored version=%d stage=%d, want 2/1", got.Version, got.Stage)
	}

	ghost := newTestSession(t, "ghost", t0)
	if _, err := store.Update(ctx, ghost); !errors.Is(err, moviequiz.ErrSessionNotFound) {
		t.Errorf("update unknown: err = %v, want ErrSessionNotFound", err)
	}
}

func testDelete(t *testing.T, store Store) {
	ctx := context.Background()
	if _, err := store.Create(ctx, newTestSession(t, "s1", t0)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Delete(ctx, "s1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, "s1"); !errors.Is(err, moviequiz.ErrSessionNotFound) {
		t.Errorf("get after delete: err = %v, want ErrSessionNotFound", err)
	}
	if err := store.Delete(ctx, "s1"); !errors.Is(err, moviequiz.ErrSessionNotFound) {
		t.Errorf("second delete: err = %v, want ErrSessionNotFound", err)
	}
}

func testSweep(t *testing.T, store Store) {
	ctx := context.Background()

	idle, _ := store.Create(ctx, newTestSession(t, "idle", t0))
	if _, err := store.Create(ctx, newTestSession(t, "fresh", t0.Add(25*time.Minute))); err != nil {
		t.Fatalf("create fresh: %v", err)
	}
	won, _ := store.Create(ctx, newTestSession(t, "won", t0))
	w, _, _ := game.SubmitGuess(won, "The Matrix", t0.Add(time.Minute))
	if _, err := store.Update(ctx, w); err != nil {
		t.Fatalf("update won: %v", err)
	}

	now := t0.Add(31 * time.Minute)
	due, err := store.Due(ctx, now)
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	ids := map[string]bool{}
	for _, s := range due {
		ids[s.ID] = true
	}
	if !ids["idle"] || !ids["won"] || ids["fresh"] {
		t.Fatalf("due = %v, want idle and won", ids)
	}

	res, err := Sweep(ctx, store, now)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(res.Expired) != 1 || res.Expired[0].ID != idle.ID {
		t.Errorf("expired = %v, want [idle]", res.Expired)
	}
	if len(res.Evicted) != 1 || res.Evicted[0] != "won" {
		t.Errorf("evicted = %v, want [won]", res.Evicted)
	}

	got, err := store.Get(ctx, "idle")
	if err != nil {
		t.Fatalf("get idle: %v", err)
	}
	if got.Status != game.StatusExpired {
		t.Errorf("idle status = %s, want EXPIRED", got.Status)
	}
	if _, err := store.Get(ctx, "won"); !errors.Is(err, moviequiz.ErrSessionNotFound) {
		t.Errorf("won session not evicted: %v", err)
	}

	// The expired session is evicted once its grace period passes.
	res, err = Sweep(ctx, store, now.Add(11*time.Minute))
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if len(res.Evicted) != 1 || res.Evicted[0] != "idle" {
		t.Errorf("second sweep evicted = %v, want [idle]", res.Evicted)
	}
	if _, err := store.Get(ctx, "fresh"); err != nil {
		t.Errorf("fresh session should survive the first sweep window: %v", err)
	}
}

func testConcurrentWriters(t *testing.T, store Store) {
	ctx := context.Background()
	s, err := store.Create(ctx, newTestSession(t, "s1", t0))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	const writers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ok      int
		stale   int
		unknown []error
	)
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			next, _, err := game.SubmitGuess(s, "Inception", t0.Add(time.Duration(i)*time.Second))
			if err != nil {
				t.Errorf("guess: %v", err)
				return
			}
			_, err = store.Update(ctx, next)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, moviequiz.ErrStaleWrite):
				stale++
			default:
				unknown = append(unknown, err)
			}
		}()
	}
	wg.Wait()

	if len(unknown) > 0 {
		t.Fatalf("unexpected errors: %v", unknown)
	}
	if ok != 1 || stale != writers-1 {
		t.Errorf("accepted=%d stale=%d, want 1/%d", ok, stale, writers-1)
	}

	got, _ := store.Get(ctx, "s1")
	if len(got.Guesses) != 1 || got.Version != 2 {
		t.Errorf("stored guesses=%d version=%d, want 1/2", len(got.Guesses), got.Version)
	}
}

func TestRetentionExpiresAt(t *testing.T) {
	s := newTestSession(t, "s1", t0)
	if got, want := testRetention.ExpiresAt(s), t0.Add(30*time.Minute); !got.Equal(want) {
		t.Errorf("active expiresAt = %s, want %s", got, want)
	}

	lost, _ := game.GiveUp(s, t0.Add(time.Minute))
	if got, want := testRetention.ExpiresAt(lost), t0.Add(11*time.Minute); !got.Equal(want) {
		t.Errorf("terminal expiresAt = %s, want %s", got, want)
	}
}
