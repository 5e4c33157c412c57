// Package game holds the records that flow between the parser, the
// analysis workers and the store.
package game

import (
	"errors"
	"fmt"
)

// MateMultiplier converts a mate-in-N score into centipawns so that any
// forced mate dominates a material evaluation.
const MateMultiplier = 2000

// Evaluation is a score in centipawns from the side to move's perspective.
type Evaluation int

// FromCentipawns returns the evaluation for a "score cp" value.
func FromCentipawns(cp int) Evaluation {
	return Evaluation(cp)
}

// FromMate returns the evaluation for a "score mate" value.
func FromMate(n int) Evaluation {
	return Evaluation(n * MateMultiplier)
}

// Color is the side a player controls.
type Color uint8

const (
	White Color = iota
	Black
)

func (c Color) String() string {
	if c == White {
		return "white"
	}
	return "black"
}

// ToPlay reports whether c moves at the given ply. White moves on even plies.
func (c Color) ToPlay(ply int) bool {
	if ply%2 == 0 {
		return c == White
	}
	return c == Black
}

// ErrPlayerNotFound is returned when the audited player is neither side of a game.
var ErrPlayerNotFound = errors.New("player not found in game")

// MoveRecord is one played move with the positions around it.
type MoveRecord struct {
	FenBefore string
	FenAfter  string
	SAN       string
}

// Record is a parsed game ready for analysis.
type Record struct {
	ID      string
	Headers map[string]string
	Moves   []MoveRecord
}

func (r *Record) White() string { return r.Headers["White"] }
func (r *Record) Black() string { return r.Headers["Black"] }
func (r *Record) Site() string  { return r.Headers["Site"] }

// SANs returns the move notation in order.
func (r *Record) SANs() []string {
	sans := make([]string, len(r.Moves))
	for i, mv := range r.Moves {
		sans[i] = mv.SAN
	}
	return sans
}

// PlayerColor returns the side the named player controls.
func (r *Record) PlayerColor(name string) (Color, error) {
	switch name {
	case r.White():
		return White, nil
	case r.Black():
		return Black, nil
	}
	return White, fmt.Errorf("%w: %q (white %q, black %q)", ErrPlayerNotFound, name, r.White(), r.Black())
}

// Blunder is a move that lost more than the configured threshold.
// Two blunders are the same blunder when they start from the same position.
type Blunder struct {
	Position   string     `yaml:"position" json:"position"`
	Move       string     `yaml:"move" json:"move"`
	EvalBefore Evaluation `yaml:"eval_before" json:"eval_before"`
	EvalAfter  Evaluation `yaml:"eval_after" json:"eval_after"`
}

// Key is the identity of the blunder.
func (b Blunder) Key() string {
	return b.Position
}

// Equal compares blunders by position only.
func (b Blunder) Equal(other Blunder) bool {
	return b.Position == other.Position
}

// Loss is the swing the mover suffered. Both evaluations are taken from
// their own side to move, so the swing is their sum.
func (b Blunder) Loss() int {
	return int(b.EvalBefore) + int(b.EvalAfter)
}

// Opening is an ECO classification.
type Opening struct {
	ECO  string `yaml:"eco" json:"eco"`
	Name string `yaml:"name" json:"name"`
}

// Game is the analysis result for one game.
type Game struct {
	ID       string    `yaml:"id" json:"id"`
	Opening  *Opening  `yaml:"opening,omitempty" json:"opening,omitempty"`
	Blunders []Blunder `yaml:"blunders" json:"blunders"`
}
