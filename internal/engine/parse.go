package engine

import (
	"regexp"
	"strconv"

	"github.com/freeeve/blunderscan/internal/game"
)

var (
	bestMoveRe = regexp.MustCompile(`bestmove\s+(\S+)`)
	scoreRe    = regexp.MustCompile(`score (cp|mate) (-?[0-9]+)`)
)

// Analysis is the outcome of one depth-limited search.
type Analysis struct {
	BestMove string
	Eval     game.Evaluation
	Raw      string
}

// ParseBestMove returns the move of the last "bestmove" token in text.
func ParseBestMove(text string) (string, error) {
	matches := bestMoveRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return "", ErrNoBestMove
	}
	return matches[len(matches)-1][1], nil
}

// ParseEvaluation returns the last "score cp|mate" value in text. Engines
// report one score per iteration and only the deepest one counts.
func ParseEvaluation(text string) (game.Evaluation, error) {
	matches := scoreRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return 0, ErrNoScore
	}
	last := matches[len(matches)-1]
	value, err := strconv.Atoi(last[2])
	if err != nil {
		return 0, &OpError{Op: "parse score", Kind: ErrProtocol, Err: err}
	}
	if last[1] == "mate" {
		return game.FromMate(value), nil
	}
	return game.FromCentipawns(value), nil
}

// ParseAnalysis extracts the best move and evaluation from search output.
func ParseAnalysis(text string) (Analysis, error) {
	best, err := ParseBestMove(text)
	if err != nil {
		return Analysis{}, err
	}
	eval, err := ParseEvaluation(text)
	if err != nil {
		return Analysis{}, err
	}
	return Analysis{BestMove: best, Eval: eval, Raw: text}, nil
}
