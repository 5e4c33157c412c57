package eval

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/freeeve/blunderscan/internal/game"
)

// collector records games handed to OnResult.
type collector struct {
	mu    sync.Mutex
	games []game.Game
	err   error // returned from every call when set
}

func (c *collector) add(g game.Game) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.games = append(c.games, g)
	return nil
}

func (c *collector) ids() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make(map[string]int)
	for _, g := range c.games {
		ids[g.ID]++
	}
	return ids
}

func batch(n int) []game.Record {
	recs := make([]game.Record, n)
	for i := range recs {
		recs[i] = synthetic(fmt.Sprintf("game-%02d", i), "A", "B", 4)
	}
	return recs
}

func newTestScheduler(t *testing.T, capacity int, ff *fakeFactory, c *collector) *Scheduler {
	t.Helper()
	s, err := NewScheduler(SchedulerConfig{
		Capacity:     capacity,
		PollInterval: 2 * time.Millisecond,
		Scan:         testScanOptions(ff, "A"),
		Logger:       zerolog.Nop(),
		OnResult:     c.add,
	})
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	return s
}

func TestNewScheduler_Validation(t *testing.T) {
	ff := &fakeFactory{}
	c := &collector{}
	tests := []struct {
		name string
		cfg  SchedulerConfig
	}{
		{"zero capacity", SchedulerConfig{Capacity: 0, Scan: ScanOptions{NewSession: ff.New}, OnResult: c.add}},
		{"no factory", SchedulerConfig{Capacity: 1, OnResult: c.add}},
		{"no callback", SchedulerConfig{Capacity: 1, Scan: ScanOptions{NewSession: ff.New}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewScheduler(tt.cfg); err == nil {
				t.Error("NewScheduler succeeded, want error")
			}
		})
	}

	s, err := NewScheduler(SchedulerConfig{Capacity: 1, Scan: ScanOptions{NewSession: ff.New}, OnResult: c.add})
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	if s.cfg.PollInterval != 20*time.Millisecond {
		t.Errorf("PollInterval = %v, want 20ms", s.cfg.PollInterval)
	}
}

func TestScheduler_RespectsCapacity(t *testing.T) {
	for _, capacity := range []int{1, 2, 3} {
		t.Run(fmt.Sprintf("capacity %d", capacity), func(t *testing.T) {
			ff := &fakeFactory{
				scores: map[string]score{fen(0): {shallow: 300, deep: 300}, fen(1): {shallow: 300, deep: 300}},
				delay:  time.Millisecond,
			}
			c := &collector{}
			s := newTestScheduler(t, capacity, ff, c)

			const games = 7
			if err := s.Run(context.Background(), batch(games)); err != nil {
				t.Fatalf("Run: %v", err)
			}

			ids := c.ids()
			if len(ids) != games {
				t.Errorf("persisted %d games, want %d", len(ids), games)
			}
			for id, n := range ids {
				if n != 1 {
					t.Errorf("game %s persisted %d times", id, n)
				}
			}

			st := s.Status()
			if st.PeakActive > int64(capacity) {
				t.Errorf("PeakActive = %d, capacity %d", st.PeakActive, capacity)
			}
			if st.Started != games || st.Finished != games || st.Active != 0 || st.Pending != 0 {
				t.Errorf("Status() = %+v", st)
			}
			// Two sessions per worker, all released.
			if ff.peak > int64(2*capacity) {
				t.Errorf("peak open sessions = %d, want <= %d", ff.peak, 2*capacity)
			}
			if ff.live != 0 {
				t.Errorf("%d sessions left open", ff.live)
			}
		})
	}
}

func TestScheduler_SkipsDuplicateIDs(t *testing.T) {
	ff := &fakeFactory{}
	c := &collector{}
	s := newTestScheduler(t, 2, ff, c)

	pending := batch(3)
	pending = append(pending, pending[1], pending[0])
	if err := s.Run(context.Background(), pending); err != nil {
		t.Fatalf("Run: %v", err)
	}

	ids := c.ids()
	if len(ids) != 3 {
		t.Errorf("persisted %d games, want 3", len(ids))
	}
	if s.Status().Started != 3 {
		t.Errorf("Started = %d, want 3", s.Status().Started)
	}
}

func TestScheduler_EmptyBatch(t *testing.T) {
	c := &collector{}
	s := newTestScheduler(t, 2, &fakeFactory{}, c)
	if err := s.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(c.games) != 0 {
		t.Errorf("persisted %d games, want 0", len(c.games))
	}
}

func TestScheduler_PersistErrorStopsRun(t *testing.T) {
	diskFull := errors.New("disk full")
	c := &collector{err: diskFull}
	s := newTestScheduler(t, 2, &fakeFactory{}, c)

	err := s.Run(context.Background(), batch(5))
	if !errors.Is(err, diskFull) {
		t.Fatalf("Run error = %v, want %v", err, diskFull)
	}
	if s.Status().Started >= 5 {
		t.Errorf("Started = %d, want the run to stop early", s.Status().Started)
	}
}

func TestScheduler_WorkerErrorStopsRun(t *testing.T) {
	c := &collector{}
	s := newTestScheduler(t, 1, &fakeFactory{}, c)

	pending := batch(4)
	pending[1] = synthetic("stranger", "X", "Y", 4)
	err := s.Run(context.Background(), pending)
	if !errors.Is(err, game.ErrPlayerNotFound) {
		t.Fatalf("Run error = %v, want ErrPlayerNotFound", err)
	}

	// Capacity 1 runs games in order: only the first was persisted.
	ids := c.ids()
	if len(ids) != 1 || ids["game-00"] != 1 {
		t.Errorf("persisted %v, want only game-00", ids)
	}
}

func TestScheduler_AbortWaitsForActiveWorkers(t *testing.T) {
	ff := &fakeFactory{delay: 20 * time.Millisecond}
	c := &collector{}
	s := newTestScheduler(t, 3, ff, c)

	pending := batch(3)
	pending[0] = synthetic("stranger", "X", "Y", 4)
	err := s.Run(context.Background(), pending)
	if !errors.Is(err, game.ErrPlayerNotFound) {
		t.Fatalf("Run error = %v, want ErrPlayerNotFound", err)
	}
	if live := atomic.LoadInt64(&ff.live); live != 0 {
		t.Errorf("%d engine sessions still open after Run returned", live)
	}
	if st := s.Status(); st.Active != 0 {
		t.Errorf("Active = %d after abort, want 0", st.Active)
	}
}

func TestScheduler_CancelledContext(t *testing.T) {
	c := &collector{}
	ff := &fakeFactory{}
	s := newTestScheduler(t, 2, ff, c)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Run(ctx, batch(3))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run error = %v, want context.Canceled", err)
	}
	if ff.opened != 0 || len(c.games) != 0 {
		t.Errorf("started work after cancel: %d sessions, %d games", ff.opened, len(c.games))
	}
}
