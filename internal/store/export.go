package store

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/klauspost/compress/zstd"

	"github.com/freeeve/blunderscan/internal/game"
)

var exportHeader = []string{"game", "eco", "opening", "position", "move", "eval_before", "eval_after", "loss"}

// WriteCSV writes one row per blunder and returns the row count.
func WriteCSV(w io.Writer, games []game.Game) (int, error) {
	writer := csv.NewWriter(w)
	if err := writer.Write(exportHeader); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}

	rows := 0
	for _, g := range games {
		var eco, opening string
		if g.Opening != nil {
			eco, opening = g.Opening.ECO, g.Opening.Name
		}
		for _, b := range g.Blunders {
			row := []string{
				g.ID,
				eco,
				opening,
				b.Position,
				b.Move,
				strconv.Itoa(int(b.EvalBefore)),
				strconv.Itoa(int(b.EvalAfter)),
				strconv.Itoa(b.Loss()),
			}
			if err := writer.Write(row); err != nil {
				return rows, fmt.Errorf("write row: %w", err)
			}
			rows++
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return rows, fmt.Errorf("csv writer error: %w", err)
	}
	return rows, nil
}

// ExportFile writes the CSV export of s to path, compressed when path ends
// in .zst.
func ExportFile(s Store, path string) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create output file: %w", err)
	}
	defer f.Close()

	var w io.Writer = f
	var enc *zstd.Encoder
	if filepath.Ext(path) == ".zst" {
		enc, err = zstd.NewWriter(f)
		if err != nil {
			return 0, fmt.Errorf("zstd writer: %w", err)
		}
		w = enc
	}

	rows, err := WriteCSV(w, s.Games())
	if err != nil {
		if enc != nil {
			enc.Close()
		}
		return rows, err
	}
	if enc != nil {
		if err := enc.Close(); err != nil {
			return rows, fmt.Errorf("zstd close: %w", err)
		}
	}
	return rows, f.Close()
}
