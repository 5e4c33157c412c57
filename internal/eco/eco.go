// Package eco provides ECO (Encyclopedia of Chess Openings) lookup.
package eco

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/freeeve/pgn/v3"

	"github.com/freeeve/blunderscan/internal/game"
)

// Database holds ECO opening data indexed by position.
type Database struct {
	byPosition map[pgn.PackedPosition]game.Opening
	count      int
}

// NewDatabase creates an empty ECO database.
func NewDatabase() *Database {
	return &Database{
		byPosition: make(map[pgn.PackedPosition]game.Opening),
	}
}

// moveNumberRegex matches move numbers like "1." or "12..."
var moveNumberRegex = regexp.MustCompile(`\d+\.+\s*`)

// LoadDir loads all .tsv files from a directory.
func (db *Database) LoadDir(dir string) error {
	files, err := filepath.Glob(filepath.Join(dir, "*.tsv"))
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no .tsv files found in %s", dir)
	}

	for _, file := range files {
		if err := db.LoadFile(file); err != nil {
			return fmt.Errorf("load %s: %w", file, err)
		}
	}
	return nil
}

// LoadFile loads a single TSV file of eco, name and move text columns.
// Lines whose moves do not replay are skipped.
func (db *Database) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Text()

		if lineNum == 1 && strings.HasPrefix(line, "eco\t") {
			continue
		}

		parts := strings.SplitN(line, "\t", 3)
		if len(parts) != 3 {
			continue
		}

		cleaned := moveNumberRegex.ReplaceAllString(parts[2], "")
		pos, ok := replay(strings.Fields(cleaned))
		if !ok {
			continue
		}

		db.byPosition[pos.Pack()] = game.Opening{ECO: parts[0], Name: parts[1]}
		db.count++
	}

	return scanner.Err()
}

// Classify returns the opening of the deepest position along sans that the
// database knows, or nil. Replay stops at the first move that does not parse.
func (db *Database) Classify(sans []string) *game.Opening {
	var found *game.Opening
	pos := pgn.NewStartingPosition()
	for _, san := range sans {
		if !apply(pos, san) {
			break
		}
		if o, ok := db.byPosition[pos.Pack()]; ok {
			o := o
			found = &o
		}
	}
	return found
}

// Count returns the number of openings loaded.
func (db *Database) Count() int {
	return db.count
}

func replay(sans []string) (*pgn.GameState, bool) {
	pos := pgn.NewStartingPosition()
	for _, san := range sans {
		if san == "" || san[0] == '$' || san[0] == '{' {
			continue
		}
		if !apply(pos, san) {
			return nil, false
		}
	}
	return pos, true
}

func apply(pos *pgn.GameState, san string) bool {
	san = strings.TrimSuffix(san, "+")
	san = strings.TrimSuffix(san, "#")

	mv, err := pgn.ParseSAN(pos, san)
	if err != nil {
		return false
	}
	return pgn.ApplyMove(pos, mv) == nil
}
