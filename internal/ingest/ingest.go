// Package ingest turns a PGN batch into game records ready for analysis.
package ingest

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/notnil/chess"
	"github.com/rs/zerolog"

	"github.com/freeeve/blunderscan/internal/game"
)

// ErrMalformed is returned when the batch cannot be parsed as PGN.
var ErrMalformed = errors.New("malformed PGN")

// Options configures loading.
type Options struct {
	MaxGames int // Stop after this many games are read (0 = no limit)
	Logger   zerolog.Logger
}

// Stats summarises a load.
type Stats struct {
	Read    int // Games read from the batch
	Loaded  int // Games returned
	Skipped int // Games with no moves or missing player tags
}

// Load reads the PGN batch at path. Files ending in .zst are decompressed.
func Load(path string, opts Options) ([]game.Record, Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Stats{}, err
	}
	defer f.Close()

	var r io.Reader = f
	if isZstd(path) {
		dec, err := zstd.NewReader(f)
		if err != nil {
			return nil, Stats{}, fmt.Errorf("zstd reader: %w", err)
		}
		defer dec.Close()
		r = dec
	}

	start := time.Now()
	records, stats, err := Parse(r, opts)
	if err != nil {
		return nil, stats, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}

	opts.Logger.Info().
		Str("file", filepath.Base(path)).
		Int("read", stats.Read).
		Int("loaded", stats.Loaded).
		Int("skipped", stats.Skipped).
		Dur("elapsed", time.Since(start)).
		Msg("batch loaded")
	return records, stats, nil
}

// Parse reads games from r in batch order.
func Parse(r io.Reader, opts Options) ([]game.Record, Stats, error) {
	var (
		records []game.Record
		stats   Stats
	)

	scanner := chess.NewScanner(r)
	for scanner.Scan() {
		g := scanner.Next()
		stats.Read++

		rec, ok := convert(g)
		if !ok {
			stats.Skipped++
			opts.Logger.Debug().Int("game", stats.Read).Msg("skipping game without moves or players")
		} else {
			records = append(records, rec)
			stats.Loaded++
		}

		if opts.MaxGames > 0 && stats.Read >= opts.MaxGames {
			return records, stats, nil
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return nil, stats, fmt.Errorf("%w: game %d: %v", ErrMalformed, stats.Read+1, err)
	}
	return records, stats, nil
}

// Filter returns the records whose id is not known to exists, keeping order.
func Filter(records []game.Record, exists func(id string) bool) []game.Record {
	var out []game.Record
	for _, rec := range records {
		if !exists(rec.ID) {
			out = append(out, rec)
		}
	}
	return out
}

func convert(g *chess.Game) (game.Record, bool) {
	headers := make(map[string]string)
	for _, tp := range g.TagPairs() {
		headers[tp.Key] = tp.Value
	}
	rec := game.Record{Headers: headers}
	if rec.White() == "" || rec.Black() == "" {
		return rec, false
	}

	moves := g.Moves()
	positions := g.Positions()
	if len(moves) == 0 || len(positions) != len(moves)+1 {
		return rec, false
	}

	notation := chess.AlgebraicNotation{}
	rec.Moves = make([]game.MoveRecord, len(moves))
	for i, mv := range moves {
		rec.Moves[i] = game.MoveRecord{
			FenBefore: positions[i].String(),
			FenAfter:  positions[i+1].String(),
			SAN:       notation.Encode(positions[i], mv),
		}
	}
	rec.ID = GameID(headers)
	return rec, true
}

// GameID identifies a game by its Site tag, falling back to the players,
// date and round when the source has no site.
func GameID(headers map[string]string) string {
	if site := headers["Site"]; site != "" && site != "?" {
		return site
	}
	return strings.Join([]string{headers["White"], headers["Black"], headers["Date"], headers["Round"]}, "-")
}

func isZstd(name string) bool {
	return filepath.Ext(name) == ".zst"
}
