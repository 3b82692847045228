// Package cache implements the content-addressed file cache (C2): a
// directory mapping a logical file name to a cached copy, with atomic
// writes and a best-effort BoltDB index of access metadata (A6), grounded
// on services/orchestrator/persistence.go's warmed-cache/index pattern.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ErrCacheMiss is returned by Get when name has no cached entry.
var ErrCacheMiss = errors.New("cache: miss")

var indexBucket = []byte("entries")

type indexEntry struct {
	Size       int64     `json:"size"`
	LastAccess time.Time `json:"last_access"`
}

// Cache is the worker's local file cache directory, content-addressed by
// logical file name (usually a hash supplied by the job config or fetcher).
type Cache struct {
	dir string
	db  *bbolt.DB // nil when the index could not be opened; Get/Put still work

	mu sync.Mutex

	hits, misses metric.Int64Counter
	putLatency   metric.Float64Histogram
}

// New opens (or creates) a cache rooted at dir. Failure to open the BoltDB
// metadata index is logged and degrades to index-less operation: the index
// is advisory only and must never block Get/Put.
func New(ctx context.Context, dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o775); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	meter := otel.Meter("recodex-worker")
	hits, _ := meter.Int64Counter("recodex_cache_hits_total")
	misses, _ := meter.Int64Counter("recodex_cache_misses_total")
	putLatency, _ := meter.Float64Histogram("recodex_cache_put_ms")

	c := &Cache{dir: dir, hits: hits, misses: misses, putLatency: putLatency}

	db, err := bbolt.Open(filepath.Join(dir, "cache-index.db"), 0o644, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		slog.Warn("cache index unavailable, continuing without it", "error", err)
		return c, nil
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(indexBucket)
		return err
	})
	if err != nil {
		slog.Warn("cache index bucket creation failed, continuing without it", "error", err)
		db.Close()
		return c, nil
	}
	c.db = db
	return c, nil
}

// Close releases the metadata index, if open.
func (c *Cache) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

func (c *Cache) path(name string) string {
	return filepath.Join(c.dir, name)
}

// Get copies the cached file identified by name to dstPath, returning
// ErrCacheMiss if no such entry exists. A successful Get touches the
// source's mtime forward so external age-based cleanup daemons treat it as
// recently used.
func (c *Cache) Get(ctx context.Context, name string, dstPath string) error {
	src := c.path(name)
	in, err := os.Open(src)
	if err != nil {
		if os.IsNotExist(err) {
			c.misses.Add(ctx, 1, metric.WithAttributes(attribute.String("name", name)))
			return ErrCacheMiss
		}
		return fmt.Errorf("cache get %q: %w", name, err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return fmt.Errorf("cache get %q: %w", name, err)
	}
	out, err := os.Create(dstPath)
	if err != nil {
		return fmt.Errorf("cache get %q: %w", name, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("cache get %q: %w", name, err)
	}

	now := time.Now()
	_ = os.Chtimes(src, now, now)
	c.hits.Add(ctx, 1, metric.WithAttributes(attribute.String("name", name)))
	c.touchIndex(name, now)
	return nil
}

// Put atomically writes srcPath into the cache under name: it copies to a
// uniquely-suffixed temp file in the same directory (so the final rename is
// same-filesystem and atomic), then renames over any existing entry. The
// temp and final files are created group+other writable so an external
// cleanup process can remove them. Concurrent Puts of the same name are
// safe — each uses its own random suffix, and whichever rename lands last
// wins.
func (c *Cache) Put(ctx context.Context, srcPath string, name string) error {
	start := time.Now()
	tmp := c.path(fmt.Sprintf("%s-%s.tmp", name, uuid.NewString()))

	in, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("cache put %q: %w", name, err)
	}
	defer in.Close()

	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o666)
	if err != nil {
		return fmt.Errorf("cache put %q: %w", name, err)
	}
	size, copyErr := io.Copy(out, in)
	closeErr := out.Close()
	if copyErr != nil || closeErr != nil {
		os.Remove(tmp)
		if copyErr != nil {
			return fmt.Errorf("cache put %q: %w", name, copyErr)
		}
		return fmt.Errorf("cache put %q: %w", name, closeErr)
	}
	if err := os.Chmod(tmp, 0o666); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("cache put %q: %w", name, err)
	}

	final := c.path(name)
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("cache put %q: %w", name, err)
	}

	c.putLatency.Record(ctx, float64(time.Since(start).Milliseconds()), metric.WithAttributes(attribute.String("name", name)))
	c.touchIndexSize(name, time.Now(), size)
	return nil
}

// touchIndex updates the last-access timestamp for name, best-effort.
func (c *Cache) touchIndex(name string, at time.Time) {
	if c.db == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(indexBucket)
		var entry indexEntry
		if raw := b.Get([]byte(name)); raw != nil {
			_ = json.Unmarshal(raw, &entry)
		}
		entry.LastAccess = at
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return b.Put([]byte(name), data)
	})
}

func (c *Cache) touchIndexSize(name string, at time.Time, size int64) {
	if c.db == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(indexBucket)
		entry := indexEntry{Size: size, LastAccess: at}
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return b.Put([]byte(name), data)
	})
}
