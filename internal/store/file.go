package store

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"gopkg.in/yaml.v3"

	"github.com/freeeve/blunderscan/internal/game"
)

// document is the on-disk layout of a file store.
type document struct {
	Games []game.Game `yaml:"games"`
}

// FileStore keeps the whole store as one YAML document.
type FileStore struct {
	*games
	path       string
	compressed bool
}

// OpenFile reads the YAML store at path. Paths ending in .zst are zstd
// compressed.
func OpenFile(path string) (*FileStore, error) {
	s := &FileStore{
		path:       path,
		compressed: filepath.Ext(path) == ".zst",
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		s.games = newGames(nil)
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrStoreIO, path, err)
	}

	if s.compressed {
		dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("%w: zstd reader: %w", ErrStoreIO, err)
		}
		data, err = dec.DecodeAll(data, nil)
		dec.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: decompress %s: %w", ErrStoreIO, path, err)
		}
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrStoreIO, path)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", ErrStoreIO, path, err)
	}
	s.games = newGames(doc.Games)
	return s, nil
}

// Save writes the store to a temporary file and renames it over path.
func (s *FileStore) Save() error {
	s.mu.RLock()
	doc := document{Games: s.list}
	if doc.Games == nil {
		doc.Games = []game.Game{}
	}
	data, err := yaml.Marshal(&doc)
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("%w: encode: %w", ErrStoreIO, err)
	}

	if s.compressed {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return fmt.Errorf("%w: zstd writer: %w", ErrStoreIO, err)
		}
		data = enc.EncodeAll(data, nil)
		enc.Close()
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: write %s: %w", ErrStoreIO, tmpPath, err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: rename %s: %w", ErrStoreIO, s.path, err)
	}
	return nil
}

// Close is a no-op; every Save is complete on disk.
func (s *FileStore) Close() error {
	return nil
}
