package eval

import (
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"

	"github.com/freeeve/blunderscan/internal/game"
)

// Classifier names the opening of a game from its moves.
type Classifier interface {
	Classify(sans []string) *game.Opening
}

// ScanOptions configures the analysis of each game.
type ScanOptions struct {
	Player     string         // Audited player, matched against the White/Black tags
	MoveLimit  int            // Plies to look at per game (0 = all)
	Detector   DetectorConfig // Blunder screen settings
	NewSession SessionFactory // Opens engine sessions
	Classifier Classifier     // Optional opening classifier
	Logger     zerolog.Logger
}

// Handle is a running analysis worker. The worker sends at most one Game on
// Results and then closes it; Wait reports how the worker ended.
type Handle struct {
	ID string

	results  chan game.Game
	done     chan struct{}
	err      error
	finished bool
}

// Results delivers the finished game. The channel is closed when the worker
// exits, with or without a result.
func (h *Handle) Results() <-chan game.Game {
	return h.results
}

// Wait blocks until the worker has exited and returns its error.
func (h *Handle) Wait() error {
	<-h.done
	return h.err
}

// Start analyses rec on its own goroutine.
func Start(rec game.Record, opts ScanOptions) *Handle {
	h := &Handle{
		ID:      rec.ID,
		results: make(chan game.Game, 1),
		done:    make(chan struct{}),
	}
	w := &worker{
		rec:  rec,
		opts: opts,
		log:  opts.Logger.With().Str("game", rec.ID).Logger(),
	}
	go func() {
		defer close(h.done)
		defer close(h.results)
		defer func() {
			if r := recover(); r != nil {
				h.err = fmt.Errorf("worker panic: %v\n%s", r, debug.Stack())
			}
		}()
		h.err = w.run(h.results)
	}()
	return h
}

type worker struct {
	rec  game.Record
	opts ScanOptions
	log  zerolog.Logger
}

func (w *worker) run(results chan<- game.Game) error {
	start := time.Now()

	// Fail before spawning engines when the player is not in the game.
	if _, err := w.rec.PlayerColor(w.opts.Player); err != nil {
		return err
	}

	before, err := w.opts.NewSession()
	if err != nil {
		return fmt.Errorf("open engine: %w", err)
	}
	defer before.Close()

	after, err := w.opts.NewSession()
	if err != nil {
		return fmt.Errorf("open engine: %w", err)
	}
	defer after.Close()

	cfg := w.opts.Detector
	cfg.Logger = w.log
	detector := NewDetector(cfg, before, after)

	blunders, err := detector.Detect(&w.rec, w.opts.Player, w.opts.MoveLimit)
	if err != nil {
		return err
	}

	result := game.Game{
		ID:       w.rec.ID,
		Blunders: blunders,
	}
	if w.opts.Classifier != nil {
		result.Opening = w.opts.Classifier.Classify(w.rec.SANs())
	}

	screened, confirmed := detector.Stats()
	w.log.Info().
		Int("blunders", len(blunders)).
		Int64("screened", screened).
		Int64("confirmed", confirmed).
		Dur("elapsed", time.Since(start)).
		Msg("game analysed")

	results <- result
	return nil
}
