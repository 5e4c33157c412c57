package eval

import (
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/freeeve/blunderscan/internal/engine"
	"github.com/freeeve/blunderscan/internal/game"
)

// Evaluator is one engine session: a position is set once and may then be
// searched several times.
type Evaluator interface {
	SetPosition(fen string) error
	Evaluate(depth int) (engine.Analysis, error)
	Close() error
}

// SessionFactory opens a new Evaluator.
type SessionFactory func() (Evaluator, error)

// EngineFactory opens engine processes at path.
func EngineFactory(path string, opts engine.Options) SessionFactory {
	return func() (Evaluator, error) {
		s, err := engine.Open(path, opts)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// DetectorConfig configures the two-stage blunder screen.
type DetectorConfig struct {
	ShallowDepth int // Depth of the screening search
	DeepDepth    int // Depth of the confirmation search
	Threshold    int // A move is a blunder when the loss strictly exceeds this (centipawns)
	SkipPlies    int // Opening plies never evaluated
	Logger       zerolog.Logger
}

// Detector finds the blunders of one side in one game. It drives two
// sessions: one always holds the position before the move, the other the
// position after it.
type Detector struct {
	cfg    DetectorConfig
	before Evaluator
	after  Evaluator
	log    zerolog.Logger

	// Stats
	screened  int64 // Moves evaluated at shallow depth
	confirmed int64 // Moves re-evaluated at deep depth
}

// NewDetector creates a detector over two open sessions. The caller keeps
// ownership of the sessions.
func NewDetector(cfg DetectorConfig, before, after Evaluator) *Detector {
	return &Detector{
		cfg:    cfg,
		before: before,
		after:  after,
		log:    cfg.Logger,
	}
}

// Stats returns how many moves went through each stage.
func (d *Detector) Stats() (screened, confirmed int64) {
	return atomic.LoadInt64(&d.screened), atomic.LoadInt64(&d.confirmed)
}

// Detect returns the blunders player made in rec within the first moveLimit
// plies, in move order. A moveLimit of zero or less means the whole game.
func (d *Detector) Detect(rec *game.Record, player string, moveLimit int) ([]game.Blunder, error) {
	color, err := rec.PlayerColor(player)
	if err != nil {
		return nil, err
	}

	var blunders []game.Blunder
	for ply, mv := range rec.Moves {
		if moveLimit > 0 && ply >= moveLimit {
			break
		}
		if !color.ToPlay(ply) || ply < d.cfg.SkipPlies {
			continue
		}

		blunder, ok, err := d.check(mv)
		if err != nil {
			return nil, fmt.Errorf("ply %d (%s): %w", ply, mv.SAN, err)
		}
		if ok {
			blunders = append(blunders, blunder)
		}
	}
	return blunders, nil
}

// check runs the shallow screen and, if it fires, the deep confirmation on
// the positions already loaded into both sessions.
func (d *Detector) check(mv game.MoveRecord) (game.Blunder, bool, error) {
	if err := d.before.SetPosition(mv.FenBefore); err != nil {
		return game.Blunder{}, false, err
	}
	before, err := d.before.Evaluate(d.cfg.ShallowDepth)
	if err != nil {
		return game.Blunder{}, false, err
	}
	if err := d.after.SetPosition(mv.FenAfter); err != nil {
		return game.Blunder{}, false, err
	}
	after, err := d.after.Evaluate(d.cfg.ShallowDepth)
	if err != nil {
		return game.Blunder{}, false, err
	}
	atomic.AddInt64(&d.screened, 1)

	if loss(before, after) <= d.cfg.Threshold {
		return game.Blunder{}, false, nil
	}

	before, err = d.before.Evaluate(d.cfg.DeepDepth)
	if err != nil {
		return game.Blunder{}, false, err
	}
	after, err = d.after.Evaluate(d.cfg.DeepDepth)
	if err != nil {
		return game.Blunder{}, false, err
	}
	atomic.AddInt64(&d.confirmed, 1)

	lost := loss(before, after)
	if lost <= d.cfg.Threshold {
		d.log.Debug().
			Str("fen", mv.FenBefore).
			Str("move", mv.SAN).
			Int("loss", lost).
			Msg("screen false positive")
		return game.Blunder{}, false, nil
	}

	d.log.Info().
		Str("fen", mv.FenBefore).
		Str("move", mv.SAN).
		Int("loss", lost).
		Int("eval_before", int(before.Eval)).
		Int("eval_after", -int(after.Eval)).
		Str("best", before.BestMove).
		Msg("blunder")

	return game.Blunder{
		Position:   mv.FenBefore,
		Move:       mv.SAN,
		EvalBefore: before.Eval,
		EvalAfter:  after.Eval,
	}, true, nil
}

// loss sums the two side-to-move scores. The position after the move is
// scored for the opponent, so the sum is what the mover gave away.
func loss(before, after engine.Analysis) int {
	return int(before.Eval) + int(after.Eval)
}
