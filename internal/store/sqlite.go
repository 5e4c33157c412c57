package store

import (
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/freeeve/blunderscan/internal/game"
)

// SQLiteStore keeps games and blunders in two tables.
type SQLiteStore struct {
	*games
	path string
	db   *sql.DB
}

// OpenSQLite opens or creates the database at path and loads every game.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrStoreIO, path, err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping %s: %w", ErrStoreIO, path, err)
	}
	if err := createTables(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: schema %s: %w", ErrStoreIO, path, err)
	}

	list, err := loadGames(db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: load %s: %w", ErrStoreIO, path, err)
	}
	return &SQLiteStore{games: newGames(list), path: path, db: db}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS games (
			seq INTEGER PRIMARY KEY,
			id TEXT NOT NULL,
			eco TEXT NOT NULL DEFAULT '',
			opening TEXT NOT NULL DEFAULT ''
		);
		CREATE TABLE IF NOT EXISTS blunders (
			game_seq INTEGER NOT NULL,
			idx INTEGER NOT NULL,
			position TEXT NOT NULL,
			move TEXT NOT NULL,
			eval_before INTEGER NOT NULL,
			eval_after INTEGER NOT NULL,
			PRIMARY KEY (game_seq, idx)
		);
		CREATE INDEX IF NOT EXISTS blunders_position ON blunders(position);
	`)
	return err
}

func loadGames(db *sql.DB) ([]game.Game, error) {
	rows, err := db.Query(`SELECT seq, id, eco, opening FROM games ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	var list []game.Game
	bySeq := make(map[int64]int)
	for rows.Next() {
		var (
			seq          int64
			g            game.Game
			eco, opening string
		)
		if err := rows.Scan(&seq, &g.ID, &eco, &opening); err != nil {
			rows.Close()
			return nil, err
		}
		if eco != "" || opening != "" {
			g.Opening = &game.Opening{ECO: eco, Name: opening}
		}
		bySeq[seq] = len(list)
		list = append(list, g)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	rows, err = db.Query(`SELECT game_seq, position, move, eval_before, eval_after FROM blunders ORDER BY game_seq, idx`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			seq int64
			b   game.Blunder
		)
		if err := rows.Scan(&seq, &b.Position, &b.Move, &b.EvalBefore, &b.EvalAfter); err != nil {
			return nil, err
		}
		i, ok := bySeq[seq]
		if !ok {
			return nil, fmt.Errorf("blunder for unknown game %d", seq)
		}
		list[i].Blunders = append(list[i].Blunders, b)
	}
	return list, rows.Err()
}

// Save replaces the table contents with the in-memory games in one transaction.
func (s *SQLiteStore) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("%w: begin: %w", ErrStoreIO, err)
	}
	if err := s.write(tx); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("%w: write %s: %w", ErrStoreIO, s.path, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit %s: %w", ErrStoreIO, s.path, err)
	}
	return nil
}

func (s *SQLiteStore) write(tx *sql.Tx) error {
	if _, err := tx.Exec(`DELETE FROM blunders`); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM games`); err != nil {
		return err
	}

	insertGame, err := tx.Prepare(`INSERT INTO games (seq, id, eco, opening) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer insertGame.Close()
	insertBlunder, err := tx.Prepare(`
		INSERT INTO blunders (game_seq, idx, position, move, eval_before, eval_after)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer insertBlunder.Close()

	for seq, g := range s.list {
		var eco, opening string
		if g.Opening != nil {
			eco, opening = g.Opening.ECO, g.Opening.Name
		}
		if _, err := insertGame.Exec(seq, g.ID, eco, opening); err != nil {
			return err
		}
		for idx, b := range g.Blunders {
			if _, err := insertBlunder.Exec(seq, idx, b.Position, b.Move, int(b.EvalBefore), int(b.EvalAfter)); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
