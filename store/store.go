// Package store keeps compiled chunks in a SQLite database so unchanged
// scripts skip compilation across runs.
package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tliron/commonlog"
	"golang.org/x/crypto/blake2b"
	_ "modernc.org/sqlite"

	"github.com/chazu/squirrel/pkg/bytecode"
)

var log = commonlog.GetLogger("squirrel.store")

const schema = `
CREATE TABLE IF NOT EXISTS chunks (
	digest  TEXT PRIMARY KEY,
	name    TEXT NOT NULL,
	data    BLOB NOT NULL,
	created INTEGER NOT NULL,
	used    INTEGER NOT NULL,
	hits    INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS chunks_used ON chunks(used);
`

// ---------------------------------------------------------------------------
// ChunkStore
// ---------------------------------------------------------------------------

// ChunkStore is a content-addressed chunk cache. Entries are keyed by a
// BLAKE2b digest of the bytecode version, the script name and its source,
// so any edit or format change misses.
type ChunkStore struct {
	db   *sql.DB
	path string
}

// Stats summarizes the cache contents.
type Stats struct {
	Chunks int
	Bytes  int64
	Hits   int64
}

// Open opens or creates the cache database at path. Missing parent
// directories are created.
func Open(path string) (*ChunkStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open cache %s: %w", path, err)
	}
	// One connection keeps :memory: databases coherent and serializes writers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init cache %s: %w", path, err)
	}
	log.Debugf("opened chunk cache %s", path)
	return &ChunkStore{db: db, path: path}, nil
}

// Close releases the database.
func (s *ChunkStore) Close() error {
	return s.db.Close()
}

// Path returns the database location.
func (s *ChunkStore) Path() string { return s.path }

// Digest returns the cache key for a script.
func Digest(name string, src []byte) string {
	h, _ := blake2b.New256(nil)
	var ver [2]byte
	binary.BigEndian.PutUint16(ver[:], bytecode.BytecodeVersion)
	h.Write(ver[:])
	h.Write([]byte(name))
	h.Write([]byte{0})
	h.Write(src)
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached chunk for name and src. Rows that no longer
// decode are dropped and reported as misses.
func (s *ChunkStore) Get(name string, src []byte) (*bytecode.Chunk, bool) {
	return s.GetContext(context.Background(), name, src)
}

// GetContext is Get bounded by ctx.
func (s *ChunkStore) GetContext(ctx context.Context, name string, src []byte) (*bytecode.Chunk, bool) {
	key := Digest(name, src)
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM chunks WHERE digest = ?`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false
	}
	if err != nil {
		log.Warningf("lookup %s: %v", name, err)
		return nil, false
	}

	chunk, err := bytecode.Deserialize(data)
	if err != nil {
		log.Warningf("dropping unreadable entry for %s: %v", name, err)
		if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE digest = ?`, key); err != nil {
			log.Warningf("drop %s: %v", name, err)
		}
		return nil, false
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE chunks SET hits = hits + 1, used = ? WHERE digest = ?`,
		time.Now().Unix(), key); err != nil {
		log.Warningf("touch %s: %v", name, err)
	}
	return chunk, true
}

// Put stores chunk as the compiled form of name and src.
func (s *ChunkStore) Put(name string, src []byte, chunk *bytecode.Chunk) error {
	return s.PutContext(context.Background(), name, src, chunk)
}

// PutContext is Put bounded by ctx.
func (s *ChunkStore) PutContext(ctx context.Context, name string, src []byte, chunk *bytecode.Chunk) error {
	data, err := chunk.Serialize()
	if err != nil {
		return err
	}
	now := time.Now().Unix()
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO chunks (digest, name, data, created, used, hits) VALUES (?, ?, ?, ?, ?, 0)`,
		Digest(name, src), name, data, now, now)
	if err != nil {
		return fmt.Errorf("store %s: %w", name, err)
	}
	return nil
}

// Prune removes entries not used since before. It returns the number
// removed.
func (s *ChunkStore) Prune(before time.Time) (int, error) {
	res, err := s.db.Exec(`DELETE FROM chunks WHERE used < ?`, before.Unix())
	if err != nil {
		return 0, fmt.Errorf("prune: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Infof("pruned %d cached chunks", n)
	}
	return int(n), nil
}

// Clear removes every entry.
func (s *ChunkStore) Clear() error {
	_, err := s.db.Exec(`DELETE FROM chunks`)
	return err
}

// Stats reports entry count, stored bytes and total hits.
func (s *ChunkStore) Stats() (Stats, error) {
	var st Stats
	err := s.db.QueryRow(
		`SELECT COUNT(*), COALESCE(SUM(LENGTH(data)), 0), COALESCE(SUM(hits), 0) FROM chunks`,
	).Scan(&st.Chunks, &st.Bytes, &st.Hits)
	if err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}
	return st, nil
}
