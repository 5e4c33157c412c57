package eval

import (
	"context"
	"fmt"

	"github.com/freeeve/uci"
	"github.com/rs/zerolog"

	"github.com/freeeve/blunderscan/internal/game"
)

// ReviewConfig configures the deep re-evaluation of recurring blunders.
type ReviewConfig struct {
	EnginePath string
	Logger     zerolog.Logger
	Depth      int // Search depth per position
	HashMB     int // Engine hash table size
	Threads    int // Engine threads
}

// Review is the deep evaluation of a recurring blunder's position, from the
// side to move.
type Review struct {
	Recurring game.RecurringBlunder `json:"recurring"`
	Eval      game.Evaluation       `json:"eval"`
	Mate      bool                  `json:"mate"`
	Depth     int                   `json:"depth"`
}

// Reviewer re-scores positions with a single long-lived engine.
type Reviewer struct {
	engine *uci.Engine
	cfg    ReviewConfig
	log    zerolog.Logger
}

// NewReviewer starts the review engine.
func NewReviewer(cfg ReviewConfig) (*Reviewer, error) {
	if cfg.EnginePath == "" {
		return nil, fmt.Errorf("engine path required")
	}
	if cfg.Depth == 0 {
		cfg.Depth = 24
	}
	if cfg.HashMB == 0 {
		cfg.HashMB = 256
	}
	if cfg.Threads == 0 {
		cfg.Threads = 2
	}

	engine, err := uci.NewEngine(cfg.EnginePath)
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}

	opts := uci.Options{
		Hash:    cfg.HashMB,
		Threads: cfg.Threads,
		MultiPV: 1,
		Ponder:  false,
		OwnBook: false,
	}
	if err := engine.SetOptions(opts); err != nil {
		engine.Close()
		return nil, fmt.Errorf("set options: %w", err)
	}

	return &Reviewer{engine: engine, cfg: cfg, log: cfg.Logger}, nil
}

// Close stops the review engine.
func (r *Reviewer) Close() {
	if r.engine != nil {
		r.engine.Close()
	}
}

// Review evaluates each recurring blunder's position in order.
func (r *Reviewer) Review(ctx context.Context, recurring []game.RecurringBlunder) ([]Review, error) {
	reviews := make([]Review, 0, len(recurring))
	for _, rb := range recurring {
		select {
		case <-ctx.Done():
			return reviews, ctx.Err()
		default:
		}

		if err := r.engine.SetFEN(rb.Blunder.Position); err != nil {
			return reviews, fmt.Errorf("set FEN: %w", err)
		}
		results, err := r.engine.GoDepth(r.cfg.Depth, uci.HighestDepthOnly)
		if err != nil {
			return reviews, fmt.Errorf("review eval: %w", err)
		}
		if len(results.Results) == 0 {
			return reviews, fmt.Errorf("no results from engine for %s", rb.Blunder.Position)
		}

		best := results.Results[0]
		for _, res := range results.Results {
			if res.Depth > best.Depth {
				best = res
			}
		}

		review := Review{Recurring: rb, Mate: best.Mate, Depth: r.cfg.Depth}
		if best.Mate {
			review.Eval = game.FromMate(best.Score)
		} else {
			review.Eval = game.FromCentipawns(best.Score)
		}

		r.log.Debug().
			Str("fen", rb.Blunder.Position).
			Int("score", best.Score).
			Bool("mate", best.Mate).
			Msg("reviewed position")

		reviews = append(reviews, review)
	}
	return reviews, nil
}
