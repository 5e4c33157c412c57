// Package report formats analysis results for the terminal.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/freeeve/blunderscan/internal/eval"
	"github.com/freeeve/blunderscan/internal/game"
)

var (
	heading = color.New(color.Bold)
	bad     = color.New(color.FgRed)
	warn    = color.New(color.FgYellow)
	good    = color.New(color.FgGreen)
	dim     = color.New(color.FgHiBlack)
)

// Recurring prints every recurring blunder with the games it occurred in.
func Recurring(w io.Writer, groups []game.RecurringBlunder) {
	if len(groups) == 0 {
		fmt.Fprintln(w, good.Sprint("No recurring blunders."))
		return
	}
	for _, rb := range groups {
		fmt.Fprintf(w, "%s %s\n", heading.Sprint("In position:"), rb.Blunder.Position)
		fmt.Fprintf(w, "  you played %s %s\n",
			bad.Sprint(rb.Blunder.Move),
			warn.Sprintf("(%d times, lost %s)", rb.Count, Centipawns(rb.Blunder.Loss())))
		fmt.Fprintf(w, "  %s\n", dim.Sprint(strings.Join(rb.GameIDs, ", ")))
	}
}

// Reviews prints deep evaluations of recurring blunder positions.
func Reviews(w io.Writer, reviews []eval.Review) {
	for _, r := range reviews {
		score := Centipawns(int(r.Eval))
		if r.Mate {
			score = fmt.Sprintf("mate in %d", int(r.Eval)/game.MateMultiplier)
		}
		fmt.Fprintf(w, "%s %s\n", heading.Sprint("Position:"), r.Recurring.Blunder.Position)
		fmt.Fprintf(w, "  played %s %d times; depth %d eval before the move: %s\n",
			bad.Sprint(r.Recurring.Blunder.Move), r.Recurring.Count, r.Depth, good.Sprint(score))
	}
}

// ScanSummary describes one scan run.
type ScanSummary struct {
	Read     int
	Skipped  int
	Known    int // Already in the store
	Analysed int
	Blunders int
	Elapsed  time.Duration
}

// Scan prints the result of a scan run.
func Scan(w io.Writer, s ScanSummary) {
	fmt.Fprintf(w, "%s %d games read, %d skipped, %d already stored\n",
		heading.Sprint("Scan:"), s.Read, s.Skipped, s.Known)
	blunders := good.Sprint("0 blunders")
	if s.Blunders > 0 {
		blunders = bad.Sprintf("%d blunders", s.Blunders)
	}
	fmt.Fprintf(w, "  analysed %d games, found %s in %s\n", s.Analysed, blunders, s.Elapsed.Round(time.Millisecond))
}

// Centipawns renders cp as pawns with a sign, e.g. +1.25.
func Centipawns(cp int) string {
	return fmt.Sprintf("%+.2f", float64(cp)/100)
}
