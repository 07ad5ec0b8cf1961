package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// ErrNotFound is returned by Get when no blob exists for a key.
var ErrNotFound = errors.New("cache entry not found")

const partSuffix = ".part"

// FileCache maps a content key to a byte blob on disk. Entries are
// write-once: a writer streams into a part file and renames it into
// place on commit, so readers only ever see complete blobs. Concurrent
// writers for the same key are tolerated; the last rename wins.
type FileCache struct {
	dir string
	log zerolog.Logger
}

func New(dir string, log zerolog.Logger) (*FileCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	c := &FileCache{dir: dir, log: log.With().Str("component", "cache").Logger()}
	c.sweepPartFiles()
	return c, nil
}

// Key derives the deterministic cache key for a source URL.
func Key(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}

// Get returns the path of the cached blob for key, or ErrNotFound.
func (c *FileCache) Get(key string) (string, error) {
	path := filepath.Join(c.dir, key)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", ErrNotFound
		}
		return "", err
	}
	return path, nil
}

// Put opens a writable entry for key. The blob becomes visible to Get
// only after Commit; Discard drops it. Each writer gets its own part
// file, so overlapping fetches for one key cannot corrupt each other.
func (c *FileCache) Put(key string) (*Entry, error) {
	f, err := os.CreateTemp(c.dir, key+".*"+partSuffix)
	if err != nil {
		return nil, fmt.Errorf("create cache part file: %w", err)
	}
	return &Entry{f: f, part: f.Name(), final: filepath.Join(c.dir, key)}, nil
}

// sweepPartFiles removes leftovers from interrupted fetches.
func (c *FileCache) sweepPartFiles() {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		c.log.Warn().Err(err).Msg("cache sweep failed")
		return
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), partSuffix) {
			if err := os.Remove(filepath.Join(c.dir, e.Name())); err != nil {
				c.log.Warn().Err(err).Str("file", e.Name()).Msg("remove stale part file")
			}
		}
	}
}

// Entry is an in-flight cache write.
type Entry struct {
	f     *os.File
	part  string
	final string
	done  bool
}

func (e *Entry) Write(p []byte) (int, error) {
	return e.f.Write(p)
}

// Commit closes the entry and publishes the blob under its key.
func (e *Entry) Commit() error {
	if e.done {
		return nil
	}
	e.done = true
	if err := e.f.Close(); err != nil {
		os.Remove(e.part)
		return err
	}
	return os.Rename(e.part, e.final)
}

// Discard closes the entry and removes the partial blob.
func (e *Entry) Discard() {
	if e.done {
		return
	}
	e.done = true
	e.f.Close()
	os.Remove(e.part)
}
