package session

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/emera/sattur/internal/store"
)

func TestAdvance(t *testing.T) {
	for n := 1; n <= 20; n++ {
		s := &State{UnlockedLesson: n}
		if !s.Advance(n) || s.UnlockedLesson != n+1 {
			t.Errorf("completing unlocked lesson %d should unlock %d, got %d", n, n+1, s.UnlockedLesson)
		}
		for _, m := range []int{n - 1, n + 1, n + 5, 0, -1} {
			s := &State{UnlockedLesson: n}
			if s.Advance(m) || s.UnlockedLesson != n {
				t.Errorf("completing lesson %d with %d unlocked must be a no-op, got %d", m, n, s.UnlockedLesson)
			}
		}
	}
}

func TestUnlocked(t *testing.T) {
	s := &State{UnlockedLesson: 3}
	for n, want := range map[int]bool{0: false, 1: true, 3: true, 4: false} {
		if got := s.Unlocked(n); got != want {
			t.Errorf("Unlocked(%d) = %v, want %v", n, got, want)
		}
	}
}

func TestCloneIsDeep(t *testing.T) {
	s := &State{ID: "a", UnlockedLesson: 2, Previous: &Exchange{Query: "q", Response: "r"}}
	c := s.Clone()
	c.Previous.Query = "changed"
	if s.Previous.Query != "q" {
		t.Error("clone shares the previous exchange")
	}
}

// storeFactories lists every Store implementation the shared contract tests
// run against. Redis joins when SATTUR_TEST_REDIS_ADDR is set.
func storeFactories(t *testing.T) map[string]func(t *testing.T) Store {
	t.Helper()
	factories := map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemoryStore(0) },
		"sqlite": func(t *testing.T) Store { return NewSQLStore(openTestDB(t)) },
	}
	if addr := os.Getenv("SATTUR_TEST_REDIS_ADDR"); addr != "" {
		factories["redis"] = func(t *testing.T) Store {
			client := redis.NewClient(&redis.Options{Addr: addr})
			prefix := "sattur:test:" + strings.ReplaceAll(t.Name(), "/", "_") + ":"
			t.Cleanup(func() {
				ctx := context.Background()
				keys, _ := client.Keys(ctx, prefix+"*").Result()
				if len(keys) > 0 {
					client.Del(ctx, keys...)
				}
				client.Close()
			})
			return NewRedisStoreWithClient(client, prefix, time.Minute)
		}
	}
	return factories
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	s, err := store.Open("file:" + name + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s.DB()
}

func TestStoreContract(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			t.Run("fresh session", func(t *testing.T) {
				st, err := newStore(t).Get(context.Background(), "learner-1")
				if err != nil {
					t.Fatalf("Get: %v", err)
				}
				if st.UnlockedLesson != FirstLesson || st.Previous != nil {
					t.Errorf("unexpected fresh state %+v", st)
				}
			})

			t.Run("progression", func(t *testing.T) {
				s := newStore(t)
				ctx := context.Background()

				steps := []struct {
					complete int
					want     int
					advanced bool
				}{
					{1, 2, true},  // in order
					{1, 2, false}, // replaying an old lesson
					{5, 2, false}, // skipping ahead
					{2, 3, true},
					{3, 4, true},
				}
				for _, step := range steps {
					st, advanced, err := s.CompleteLesson(ctx, "learner-1", step.complete)
					if err != nil {
						t.Fatalf("CompleteLesson(%d): %v", step.complete, err)
					}
					if st.UnlockedLesson != step.want {
						t.Errorf("after completing %d: unlocked %d, want %d", step.complete, st.UnlockedLesson, step.want)
					}
					if advanced != step.advanced {
						t.Errorf("completing %d: advanced = %v, want %v", step.complete, advanced, step.advanced)
					}
				}

				other, err := s.Get(ctx, "learner-2")
				if err != nil {
					t.Fatalf("Get: %v", err)
				}
				if other.UnlockedLesson != FirstLesson {
					t.Errorf("sessions must be independent, got %d", other.UnlockedLesson)
				}
			})

			t.Run("exchange", func(t *testing.T) {
				s := newStore(t)
				ctx := context.Background()

				if err := s.RecordExchange(ctx, "learner-1", "What is sandhi?", "Sound joining."); err != nil {
					t.Fatalf("RecordExchange: %v", err)
				}
				if err := s.RecordExchange(ctx, "learner-1", "Example?", "gaja + indra"); err != nil {
					t.Fatalf("RecordExchange: %v", err)
				}
				st, err := s.Get(ctx, "learner-1")
				if err != nil {
					t.Fatalf("Get: %v", err)
				}
				if st.Previous == nil || st.Previous.Query != "Example?" || st.Previous.Response != "gaja + indra" {
					t.Errorf("unexpected previous exchange %+v", st.Previous)
				}
				if st.UnlockedLesson != FirstLesson {
					t.Errorf("exchange must not change progression, got %d", st.UnlockedLesson)
				}
			})

			t.Run("concurrent completions advance once", func(t *testing.T) {
				s := newStore(t)
				ctx := context.Background()

				var (
					wg       sync.WaitGroup
					advances atomic.Int32
				)
				for range 16 {
					wg.Add(1)
					go func() {
						defer wg.Done()
						_, advanced, err := s.CompleteLesson(ctx, "learner-1", 1)
						if err != nil {
							t.Errorf("CompleteLesson: %v", err)
						}
						if advanced {
							advances.Add(1)
						}
					}()
				}
				wg.Wait()

				if n := advances.Load(); n != 1 {
					t.Errorf("%d calls reported advancing, want 1", n)
				}

				st, err := s.Get(ctx, "learner-1")
				if err != nil {
					t.Fatalf("Get: %v", err)
				}
				if st.UnlockedLesson != 2 {
					t.Errorf("expected exactly one advance, unlocked = %d", st.UnlockedLesson)
				}
			})
		})
	}
}

func TestMemoryStoreReadsDoNotCreateSessions(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	ctx := context.Background()

	for i := range 100 {
		st, err := s.Get(ctx, fmt.Sprintf("visitor-%d", i))
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if st.UnlockedLesson != FirstLesson {
			t.Errorf("unexpected state %+v", st)
		}
	}
	if n := s.Len(); n != 0 {
		t.Fatalf("reads stored %d sessions, want 0", n)
	}

	if err := s.RecordExchange(ctx, "learner-1", "q", "a"); err != nil {
		t.Fatalf("RecordExchange: %v", err)
	}
	if n := s.Len(); n != 1 {
		t.Errorf("writes stored %d sessions, want 1", n)
	}
}

func TestMemoryStoreEvictsIdleSessions(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	if _, _, err := s.CompleteLesson(ctx, "idle", 1); err != nil {
		t.Fatalf("CompleteLesson: %v", err)
	}
	now = now.Add(30 * time.Minute)
	if err := s.RecordExchange(ctx, "active", "q", "a"); err != nil {
		t.Fatalf("RecordExchange: %v", err)
	}

	now = now.Add(45 * time.Minute)
	st, err := s.Get(ctx, "idle")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if st.UnlockedLesson != FirstLesson {
		t.Errorf("idle session survived its TTL: unlocked %d", st.UnlockedLesson)
	}
	st, err = s.Get(ctx, "active")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if st.Previous == nil {
		t.Error("active session was evicted")
	}

	// A write sweeps every expired session, not only the one it touches.
	now = now.Add(2 * time.Hour)
	if err := s.RecordExchange(ctx, "newcomer", "q", "a"); err != nil {
		t.Fatalf("RecordExchange: %v", err)
	}
	if n := s.Len(); n != 1 {
		t.Errorf("%d sessions held after sweep, want 1", n)
	}
}

func TestSQLStoreReadsDoNotCreateRows(t *testing.T) {
	db := openTestDB(t)
	s := NewSQLStore(db)
	ctx := context.Background()

	if _, err := s.Get(ctx, "visitor"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Errorf("Get stored %d rows, want 0", n)
	}
}
