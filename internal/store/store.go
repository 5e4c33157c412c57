// Package store persists analysed games.
//
// Backends:
//   - YAML document (any other suffix): the whole game list, rewritten on every Save
//   - zstd-compressed YAML (.zst)
//   - SQLite (.db, .sqlite): games and blunders tables, rewritten in one transaction per Save
//
// A missing store is an empty store. A store that exists but cannot be read
// is an error, never silently empty.
package store

import (
	"errors"
	"path/filepath"
	"sync"

	"github.com/freeeve/blunderscan/internal/game"
)

// ErrStoreIO is returned when persisted state cannot be read or written.
var ErrStoreIO = errors.New("store I/O failure")

// Store is an ordered list of analysed games.
type Store interface {
	// Games returns every stored game in insertion order.
	Games() []game.Game
	// Has reports whether a game with id is stored.
	Has(id string) bool
	// Add appends g in memory. Call Save to persist.
	Add(g game.Game)
	// Save writes the whole store.
	Save() error
	Close() error
}

// Open opens the store at path, choosing the backend by suffix.
func Open(path string) (Store, error) {
	switch filepath.Ext(path) {
	case ".db", ".sqlite":
		return OpenSQLite(path)
	default:
		return OpenFile(path)
	}
}

// Merge appends the games of src that dst does not already hold and returns
// how many were added. dst is not saved.
func Merge(dst, src Store) int {
	added := 0
	for _, g := range src.Games() {
		if dst.Has(g.ID) {
			continue
		}
		dst.Add(g)
		added++
	}
	return added
}

// Stats summarises a store.
type Stats struct {
	Games     int `json:"games"`
	Blunders  int `json:"blunders"`
	Recurring int `json:"recurring"`
}

// Summarize counts games, blunders and positions blundered more than once.
func Summarize(s Store) Stats {
	games := s.Games()
	return Stats{
		Games:     len(games),
		Blunders:  game.CountBlunders(games),
		Recurring: len(game.Recurring(games, 2)),
	}
}

// games is the in-memory list shared by the backends.
type games struct {
	mu    sync.RWMutex
	list  []game.Game
	index map[string]int
}

func newGames(list []game.Game) *games {
	g := &games{list: list, index: make(map[string]int, len(list))}
	for i, gm := range list {
		if _, ok := g.index[gm.ID]; !ok {
			g.index[gm.ID] = i
		}
	}
	return g
}

func (g *games) Games() []game.Game {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]game.Game, len(g.list))
	copy(out, g.list)
	return out
}

func (g *games) Has(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.index[id]
	return ok
}

func (g *games) Add(gm game.Game) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.index[gm.ID]; !ok {
		g.index[gm.ID] = len(g.list)
	}
	g.list = append(g.list, gm)
}

// Lookup returns the stored game with id.
func Lookup(s Store, id string) (game.Game, bool) {
	if g, ok := s.(interface{ lookup(string) (game.Game, bool) }); ok {
		return g.lookup(id)
	}
	for _, g := range s.Games() {
		if g.ID == id {
			return g, true
		}
	}
	return game.Game{}, false
}

func (g *games) lookup(id string) (game.Game, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	i, ok := g.index[id]
	if !ok {
		return game.Game{}, false
	}
	return g.list[i], true
}
