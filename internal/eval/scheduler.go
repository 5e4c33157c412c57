package eval

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/freeeve/blunderscan/internal/game"
)

// SchedulerConfig configures the analysis scheduler.
type SchedulerConfig struct {
	Capacity     int           // Maximum concurrently running workers
	PollInterval time.Duration // Wait per worker result channel in each poll pass
	Scan         ScanOptions   // Per-game analysis settings
	Logger       zerolog.Logger

	// OnResult persists a finished game. An error aborts the run.
	OnResult func(game.Game) error
}

// SchedulerStatus is a snapshot of scheduler progress.
type SchedulerStatus struct {
	Pending    int   `json:"pending"`
	Active     int   `json:"active"`
	Started    int64 `json:"started"`
	Finished   int64 `json:"finished"`
	PeakActive int64 `json:"peak_active"`
}

// Scheduler keeps up to Capacity workers busy over a list of games.
// Its control loop is the only owner of the results it hands to OnResult.
type Scheduler struct {
	cfg SchedulerConfig
	log zerolog.Logger

	// Stats
	pending    int64
	active     int64
	started    int64
	finished   int64
	peakActive int64
}

// NewScheduler validates cfg and fills in defaults.
func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if cfg.Capacity < 1 {
		return nil, fmt.Errorf("scheduler capacity must be at least 1, got %d", cfg.Capacity)
	}
	if cfg.Scan.NewSession == nil {
		return nil, errors.New("scheduler needs a session factory")
	}
	if cfg.OnResult == nil {
		return nil, errors.New("scheduler needs a result callback")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 20 * time.Millisecond
	}
	return &Scheduler{cfg: cfg, log: cfg.Logger}, nil
}

// Status returns current progress counters.
func (s *Scheduler) Status() SchedulerStatus {
	return SchedulerStatus{
		Pending:    int(atomic.LoadInt64(&s.pending)),
		Active:     int(atomic.LoadInt64(&s.active)),
		Started:    atomic.LoadInt64(&s.started),
		Finished:   atomic.LoadInt64(&s.finished),
		PeakActive: atomic.LoadInt64(&s.peakActive),
	}
}

// Run analyses pending in order. Callers must already have removed games
// present in the store. Each finished game is passed to OnResult before the
// next poll pass. A worker error or an OnResult error stops the run: Run
// waits for the other active workers to exit, discards their games and
// returns the error. Games persisted before that point stay persisted.
//
// Cancelling ctx stops new workers from starting; Run then waits for the
// active ones and returns ctx.Err() if any game was left unstarted.
func (s *Scheduler) Run(ctx context.Context, pending []game.Record) error {
	queue := NewQueue()
	for _, rec := range pending {
		if !queue.Enqueue(rec) {
			s.log.Warn().Str("game", rec.ID).Msg("duplicate game in batch, skipping")
		}
	}
	atomic.StoreInt64(&s.pending, int64(queue.Len()))

	s.log.Info().
		Int("games", queue.Len()).
		Int("capacity", s.cfg.Capacity).
		Msg("scheduler started")

	var active []*Handle
	for {
		for len(active) < s.cfg.Capacity && ctx.Err() == nil {
			rec, ok := queue.Dequeue()
			if !ok {
				break
			}
			active = append(active, Start(rec, s.cfg.Scan))
			s.noteStarted(len(active), queue.Len())
			s.log.Debug().Str("game", rec.ID).Int("active", len(active)).Msg("worker started")
		}

		if len(active) == 0 {
			if err := ctx.Err(); err != nil && queue.Len() > 0 {
				return err
			}
			s.log.Info().Int64("finished", atomic.LoadInt64(&s.finished)).Msg("scheduler finished")
			return nil
		}

		for _, h := range active {
			g, done := s.poll(h)
			if !done {
				continue
			}
			h.finished = true
			if g == nil {
				continue
			}
			if err := s.cfg.OnResult(*g); err != nil {
				s.drain(active)
				return fmt.Errorf("persist game %s: %w", g.ID, err)
			}
			s.log.Info().Str("game", g.ID).Int("blunders", len(g.Blunders)).Msg("finished analysing")
		}

		running := active[:0]
		var finished []*Handle
		for _, h := range active {
			if h.finished {
				finished = append(finished, h)
			} else {
				running = append(running, h)
			}
		}
		for _, h := range finished {
			if err := h.Wait(); err != nil {
				s.drain(running)
				return fmt.Errorf("analyse game %s: %w", h.ID, err)
			}
			atomic.AddInt64(&s.finished, 1)
		}
		active = running
		atomic.StoreInt64(&s.active, int64(len(active)))
	}
}

// poll waits up to PollInterval for h to report. done is true once the
// worker has delivered its game or exited without one.
func (s *Scheduler) poll(h *Handle) (g *game.Game, done bool) {
	timer := time.NewTimer(s.cfg.PollInterval)
	defer timer.Stop()

	select {
	case result, ok := <-h.Results():
		if !ok {
			return nil, true
		}
		return &result, true
	case <-timer.C:
		return nil, false
	}
}

// drain waits for handles to exit after the run was aborted. Their games
// are dropped.
func (s *Scheduler) drain(handles []*Handle) {
	for _, h := range handles {
		if err := h.Wait(); err != nil {
			s.log.Debug().Str("game", h.ID).Err(err).Msg("worker failed during abort")
		}
	}
	atomic.StoreInt64(&s.active, 0)
	s.log.Warn().Int("workers", len(handles)).Msg("run aborted, active workers drained")
}

func (s *Scheduler) noteStarted(active, pending int) {
	atomic.AddInt64(&s.started, 1)
	atomic.StoreInt64(&s.active, int64(active))
	atomic.StoreInt64(&s.pending, int64(pending))
	if int64(active) > atomic.LoadInt64(&s.peakActive) {
		atomic.StoreInt64(&s.peakActive, int64(active))
	}
}
