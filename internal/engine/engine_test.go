package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/playperu/reelquiz/internal/game"
	"github.com/playperu/reelquiz/internal/moviequiz"
	"github.com/playperu/reelquiz/internal/ratelimit"
	"github.com/playperu/reelquiz/internal/sessionstore"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type outcome struct {
	movieID string
	won     bool
}

type fakeCatalog struct {
	err error

	mu       sync.Mutex
	outcomes []outcome
}

func (c *fakeCatalog) FindEligibleMovie(_ context.Context, industry moviequiz.Industry) (moviequiz.Movie, moviequiz.HintSet, error) {
	if c.err != nil {
		return moviequiz.Movie{}, moviequiz.HintSet{}, c.err
	}
	return moviequiz.Movie{
			ID:           "the-matrix",
			Title:        "The Matrix",
			ReleaseYear:  1999,
			Industry:     moviequiz.IndustryHollywood,
			PosterPath:   "p.jpg",
			BackdropPath: "b.jpg",
		}, moviequiz.HintSet{
			Dialogue: "There is no spoon.",
			Emoji:    "💊🐇",
			Trivia:   "Sushi code.",
			Location: "A simulated city.",
		}, nil
}

func (c *fakeCatalog) RecordOutcome(_ context.Context, movieID string, won bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outcomes = append(c.outcomes, outcome{movieID, won})
	return nil
}

func (c *fakeCatalog) recorded() []outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]outcome(nil), c.outcomes...)
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Publish(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

type denyAll struct{ retry time.Duration }

func (d denyAll) Check(string) ratelimit.Decision { return ratelimit.Decision{RetryAfter: d.retry} }

type harness struct {
	engine  *Engine
	store   sessionstore.Store
	catalog *fakeCatalog
	clock   *fakeClock
	events  *recorder
}

var testRetention = sessionstore.Retention{IdleTimeout: 30 * time.Minute, TerminalGrace: 10 * time.Minute}

func newHarness(t *testing.T, store sessionstore.Store, opts ...Option) *harness {
	t.Helper()
	if store == nil {
		store = sessionstore.NewMemory(testRetention)
	}
	h := &harness{
		store:   store,
		catalog: &fakeCatalog{},
		clock:   &fakeClock{t: t0},
		events:  &recorder{},
	}
	n := 0
	opts = append([]Option{
		WithClock(h.clock.Now),
		WithNotifier(h.events),
		WithIDs(func() string { n++; return fmt.Sprintf("s%d", n) }),
	}, opts...)
	h.engine = New(h.catalog, store, Config{
		Game:      game.Config{MaxAttempts: 3},
		Retention: testRetention,
	}, slog.New(slog.DiscardHandler), opts...)
	return h
}

func (h *harness) start(t *testing.T) game.Session {
	t.Helper()
	s, err := h.engine.Start(context.Background(), "client", moviequiz.IndustryAny)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	return s
}

func TestStart(t *testing.T) {
	h := newHarness(t, nil)
	s := h.start(t)

	if s.ID != "s1" || s.Status != game.StatusActive || s.Version != 1 {
		t.Errorf("session id=%s status=%s version=%d", s.ID, s.Status, s.Version)
	}
	if s.AttemptsRemaining != 3 || s.MaxStage != 5 {
		t.Errorf("attempts=%d maxStage=%d, want 3/5", s.AttemptsRemaining, s.MaxStage)
	}
	if got := h.events.types(); len(got) != 1 || got[0] != EventStarted {
		t.Errorf("events = %v, want [started]", got)
	}

	stored, err := h.engine.Get(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Target.Title != "The Matrix" {
		t.Errorf("stored target = %q", stored.Target.Title)
	}
}

func TestStartNoEligibleMovie(t *testing.T) {
	h := newHarness(t, nil)
	h.catalog.err = moviequiz.ErrNoEligibleMovie

	_, err := h.engine.Start(context.Background(), "client", moviequiz.IndustryAnime)
	if !errors.Is(err, moviequiz.ErrNoEligibleMovie) {
		t.Fatalf("err = %v, want ErrNoEligibleMovie", err)
	}
}

func TestRateLimited(t *testing.T) {
	h := newHarness(t, nil, WithLimiter(denyAll{retry: 3 * time.Second}))

	_, err := h.engine.Start(context.Background(), "client", moviequiz.IndustryAny)
	if !errors.Is(err, moviequiz.ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
	var rl *moviequiz.RateLimitError
	if !errors.As(err, &rl) || rl.RetryAfter != 3*time.Second {
		t.Errorf("retry after = %v, want 3s", rl)
	}
}

func TestRateLimitedPerClient(t *testing.T) {
	h := newHarness(t, nil, WithLimiter(ratelimit.New(0.001, 2, time.Minute)))
	ctx := context.Background()
	s := h.start(t)

	if _, err := h.engine.Reveal(ctx, "client", s.ID); err != nil {
		t.Fatalf("reveal within burst: %v", err)
	}
	if _, err := h.engine.Reveal(ctx, "client", s.ID); !errors.Is(err, moviequiz.ErrRateLimited) {
		t.Errorf("err = %v, want ErrRateLimited", err)
	}
	if _, err := h.engine.Reveal(ctx, "other-client", s.ID); err != nil {
		t.Errorf("other client limited: %v", err)
	}
}

func TestWinRecordsOutcome(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	s := h.start(t)

	if _, err := h.engine.Reveal(ctx, "client", s.ID); err != nil {
		t.Fatalf("reveal: %v", err)
	}
	h.clock.Advance(10 * time.Second)

	won, res, err := h.engine.Guess(ctx, "client", s.ID, "the matrix")
	if err != nil {
		t.Fatalf("guess: %v", err)
	}
	if !res.IsMatch || res.Similarity != 1 {
		t.Errorf("result = %+v, want exact match", res)
	}
	if won.Status != game.StatusWon || won.Score == nil || *won.Score <= 0 {
		t.Fatalf("status=%s score=%v", won.Status, won.Score)
	}

	if got := h.catalog.recorded(); len(got) != 1 || got[0] != (outcome{"the-matrix", true}) {
		t.Errorf("outcomes = %v", got)
	}
	want := []string{EventStarted, EventRevealed, EventWon}
	if got := h.events.types(); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("events = %v, want %v", got, want)
	}

	if _, err := h.engine.Reveal(ctx, "client", s.ID); !errors.Is(err, moviequiz.ErrSessionTerminal) {
		t.Errorf("reveal after win: err = %v, want ErrSessionTerminal", err)
	}
	if _, _, err := h.engine.Guess(ctx, "client", s.ID, "the matrix"); !errors.Is(err, moviequiz.ErrSessionTerminal) {
		t.Errorf("guess after win: err = %v, want ErrSessionTerminal", err)
	}
	if got := h.catalog.recorded(); len(got) != 1 {
		t.Errorf("outcome recorded again: %v", got)
	}
}

func TestThreeMissesLose(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	s := h.start(t)

	var last game.Session
	for _, g := range []string{"Inception", "Titanic", "Avatar"} {
		var err error
		last, _, err = h.engine.Guess(ctx, "client", s.ID, g)
		if err != nil {
			t.Fatalf("guess %q: %v", g, err)
		}
	}
	if last.Status != game.StatusLost || last.AttemptsRemaining != 0 || *last.Score != 0 {
		t.Errorf("status=%s attempts=%d score=%d", last.Status, last.AttemptsRemaining, *last.Score)
	}
	if got := h.catalog.recorded(); len(got) != 1 || got[0].won {
		t.Errorf("outcomes = %v, want one loss", got)
	}
}

func TestGiveUp(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	s := h.start(t)

	lost, err := h.engine.GiveUp(ctx, "client", s.ID)
	if err != nil {
		t.Fatalf("give up: %v", err)
	}
	if lost.Status != game.StatusLost || !lost.GaveUp {
		t.Errorf("status=%s gaveUp=%v", lost.Status, lost.GaveUp)
	}
	if _, err := h.engine.GiveUp(ctx, "client", s.ID); !errors.Is(err, moviequiz.ErrSessionTerminal) {
		t.Errorf("second give up: err = %v, want ErrSessionTerminal", err)
	}
}

func TestUnknownSession(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	if _, err := h.engine.Get(ctx, "nope"); !errors.Is(err, moviequiz.ErrSessionNotFound) {
		t.Errorf("get: err = %v", err)
	}
	if _, err := h.engine.Reveal(ctx, "client", "nope"); !errors.Is(err, moviequiz.ErrSessionNotFound) {
		t.Errorf("reveal: err = %v", err)
	}
	if _, _, err := h.engine.Guess(ctx, "client", "nope", "x"); !errors.Is(err, moviequiz.ErrSessionNotFound) {
		t.Errorf("guess: err = %v", err)
	}
}

func TestIdleSessionExpiresOnRead(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	s := h.start(t)

	h.clock.Advance(29 * time.Minute)
	if got, _ := h.engine.Get(ctx, s.ID); got.Status != game.StatusActive {
		t.Fatalf("status before timeout = %s", got.Status)
	}

	h.clock.Advance(2 * time.Minute)
	got, err := h.engine.Get(ctx, s.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != game.StatusExpired || got.Score != nil {
		t.Errorf("status=%s score=%v, want EXPIRED without score", got.Status, got.Score)
	}
	if _, err := h.engine.Reveal(ctx, "client", s.ID); !errors.Is(err, moviequiz.ErrSessionTerminal) {
		t.Errorf("reveal on expired: err = %v, want ErrSessionTerminal", err)
	}
	if len(h.catalog.recorded()) != 0 {
		t.Error("expiry should not count as a play")
	}
}

// interleavingStore runs hook once just before the first Update, standing
// in for a concurrent request that writes between our read and our write.
type interleavingStore struct {
	sessionstore.Store
	once sync.Once
	hook func(inner sessionstore.Store)
}

func (s *interleavingStore) Update(ctx context.Context, sess game.Session) (game.Session, error) {
	s.once.Do(func() { s.hook(s.Store) })
	return s.Store.Update(ctx, sess)
}

func concurrentGuess(t *testing.T, id, text string) func(sessionstore.Store) {
	return func(inner sessionstore.Store) {
		ctx := context.Background()
		cur, err := inner.Get(ctx, id)
		if err != nil {
			t.Errorf("concurrent get: %v", err)
			return
		}
		next, _, err := game.SubmitGuess(cur, text, t0)
		if err != nil {
			t.Errorf("concurrent guess: %v", err)
			return
		}
		if _, err := inner.Update(ctx, next); err != nil {
			t.Errorf("concurrent update: %v", err)
		}
	}
}

func TestConcurrentSameGuessIsRedundant(t *testing.T) {
	store := &interleavingStore{Store: sessionstore.NewMemory(testRetention)}
	h := newHarness(t, store)
	ctx := context.Background()

	s, err := h.engine.Start(ctx, "client", moviequiz.IndustryAny)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	store.hook = concurrentGuess(t, s.ID, "Inception")

	_, _, err = h.engine.Guess(ctx, "client", s.ID, "inception!")
	if !errors.Is(err, moviequiz.ErrRedundantGuess) {
		t.Fatalf("err = %v, want ErrRedundantGuess", err)
	}

	got, _ := h.engine.Get(ctx, s.ID)
	if len(got.Guesses) != 1 || got.AttemptsRemaining != 2 {
		t.Errorf("guesses=%d attempts=%d, want 1/2", len(got.Guesses), got.AttemptsRemaining)
	}
}

func TestConcurrentDifferentGuessRetries(t *testing.T) {
	store := &interleavingStore{Store: sessionstore.NewMemory(testRetention)}
	h := newHarness(t, store)
	ctx := context.Background()

	s, err := h.engine.Start(ctx, "client", moviequiz.IndustryAny)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	store.hook = concurrentGuess(t, s.ID, "Titanic")

	got, res, err := h.engine.Guess(ctx, "client", s.ID, "Inception")
	if err != nil {
		t.Fatalf("guess: %v", err)
	}
	if res.IsMatch {
		t.Error("unexpected match")
	}
	if len(got.Guesses) != 2 || got.AttemptsRemaining != 1 {
		t.Fatalf("guesses=%d attempts=%d, want 2/1", len(got.Guesses), got.AttemptsRemaining)
	}
	if got.Guesses[0].Text != "Titanic" || got.Guesses[1].Text != "Inception" {
		t.Errorf("history order = %q, %q", got.Guesses[0].Text, got.Guesses[1].Text)
	}
	if got.Guesses[0].Version == got.Guesses[1].Version {
		t.Errorf("two entries claim version %d", got.Guesses[0].Version)
	}
}

type alwaysStale struct{ sessionstore.Store }

func (alwaysStale) Update(context.Context, game.Session) (game.Session, error) {
	return game.Session{}, moviequiz.ErrStaleWrite
}

func TestRetriesExhausted(t *testing.T) {
	inner := sessionstore.NewMemory(testRetention)
	h := newHarness(t, alwaysStale{inner})
	s := h.start(t)

	if _, err := h.engine.Reveal(context.Background(), "client", s.ID); !errors.Is(err, moviequiz.ErrTransient) {
		t.Fatalf("err = %v, want ErrTransient", err)
	}
}

func TestSweep(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	s := h.start(t)

	h.clock.Advance(31 * time.Minute)
	res, err := h.engine.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(res.Expired) != 1 || res.Expired[0].ID != s.ID {
		t.Fatalf("expired = %v", res.Expired)
	}

	h.clock.Advance(11 * time.Minute)
	res, err = h.engine.Sweep(ctx)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if len(res.Evicted) != 1 {
		t.Fatalf("evicted = %v", res.Evicted)
	}
	if _, err := h.engine.Get(ctx, s.ID); !errors.Is(err, moviequiz.ErrSessionNotFound) {
		t.Errorf("get after eviction: err = %v", err)
	}

	want := []string{EventStarted, EventExpired, EventEvicted}
	if got := h.events.types(); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestRunSweeperStopsOnCancel(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- h.engine.RunSweeper(ctx, time.Millisecond) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("RunSweeper returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("RunSweeper did not stop")
	}
}
