// Package fetcher composes the local file cache (primary) with a remote
// HTTP file server (secondary), grounded on
// original_source/src/fileman/fallback_file_manager.cpp's try-primary,
// fall-back-to-secondary, best-effort-repopulate-primary shape.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/recodex/worker/internal/cache"
	"github.com/recodex/worker/internal/otelinit"
	"github.com/recodex/worker/internal/resilience"
)

// BasicAuth names a URL prefix and the credentials to send for it.
type BasicAuth struct {
	URLPrefix string
	Username  string
	Password  string
}

// Fetcher is the primary/secondary file source used by the job engine to
// materialize submission archives, test inputs and judge binaries.
type Fetcher struct {
	cache      *cache.Cache
	httpClient *http.Client
	auths      []BasicAuth
	attempts   int
	retryDelay time.Duration
	breaker    *resilience.CircuitBreaker
}

// New builds a Fetcher over the given cache and a set of basic-auth entries
// (longest URL prefix wins). A circuit breaker guards the remote file
// server: once at least five calls in the last 30s window have been
// recorded and the failed share reaches the breaker's adaptive threshold
// (starting at one half), further calls are rejected immediately instead of
// each retrying three times against a server that is already down.
func New(c *cache.Cache, auths []BasicAuth) *Fetcher {
	return &Fetcher{
		cache:      c,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		auths:      auths,
		attempts:   3,
		retryDelay: 500 * time.Millisecond,
		breaker:    resilience.NewCircuitBreakerAdaptive(30*time.Second, 6, 5, 0.5, 10*time.Second, 2),
	}
}

func (f *Fetcher) authFor(url string) (string, string, bool) {
	best := -1
	var user, pass string
	for _, a := range f.auths {
		if strings.HasPrefix(url, a.URLPrefix) && len(a.URLPrefix) > best {
			best = len(a.URLPrefix)
			user, pass = a.Username, a.Password
		}
	}
	return user, pass, best >= 0
}

// Get resolves name to dstPath: primary cache hit wins outright; on a cache
// miss the secondary HTTP source is tried (url is the full download URL),
// and on success the primary cache is best-effort repopulated under
// cacheName. Errors from the secondary propagate to the caller.
func (f *Fetcher) Get(ctx context.Context, url string, cacheName string, dstPath string) error {
	ctx, span := otelinit.WithSpan(ctx, "fetcher.get")
	defer span()

	if err := f.cache.Get(ctx, cacheName, dstPath); err == nil {
		return nil
	}

	if err := f.fetchHTTP(ctx, url, dstPath); err != nil {
		return fmt.Errorf("fetch %q: %w", url, err)
	}

	if err := f.cache.Put(ctx, dstPath, cacheName); err != nil {
		// Best-effort: the file has already landed at dstPath, so a cache
		// repopulation failure must not fail the overall fetch.
		return nil
	}
	return nil
}

// Put uploads srcPath to the secondary (remote) file server only; the
// worker never treats an uploaded results archive as cacheable.
func (f *Fetcher) Put(ctx context.Context, url string, srcPath string) error {
	ctx, span := otelinit.WithSpan(ctx, "fetcher.put")
	defer span()

	if !f.breaker.Allow() {
		return fmt.Errorf("put %q: circuit breaker open, remote file server looks down", url)
	}
	_, err := resilience.Retry(ctx, f.attempts, f.retryDelay, func() (struct{}, error) {
		return struct{}{}, f.putOnce(ctx, url, srcPath)
	})
	f.breaker.RecordResult(err == nil)
	return err
}

func (f *Fetcher) putOnce(ctx context.Context, url string, srcPath string) error {
	file, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, file)
	if err != nil {
		return err
	}
	req.ContentLength = info.Size()
	if user, pass, ok := f.authFor(url); ok {
		req.SetBasicAuth(user, pass)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("upload %s: status %s", url, resp.Status)
	}
	return nil
}

func (f *Fetcher) fetchHTTP(ctx context.Context, url string, dstPath string) error {
	if !f.breaker.Allow() {
		return fmt.Errorf("fetch %q: circuit breaker open, remote file server looks down", url)
	}
	_, err := resilience.Retry(ctx, f.attempts, f.retryDelay, func() (struct{}, error) {
		return struct{}{}, f.fetchOnce(ctx, url, dstPath)
	})
	f.breaker.RecordResult(err == nil)
	return err
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string, dstPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if user, pass, ok := f.authFor(url); ok {
		req.SetBasicAuth(user, pass)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("download %s: status %s", url, resp.Status)
	}

	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dstPath)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, resp.Body)
	return err
}

