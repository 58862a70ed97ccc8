// Package imagefetch optionally resolves a remote image_url content part to
// a local path the backend's vision-aware templates can embed, caching
// downloads by URL so a repeated reference in the same conversation (or
// across requests) doesn't re-fetch.
package imagefetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/spf13/afero"

	"github.com/llamaedge/chat-core/internal/log"
)

// Fetcher downloads an image_url once per distinct URL, storing it under
// dir via fs and remembering the resulting path for ttl.
type Fetcher struct {
	fs     afero.Fs
	dir    string
	client *http.Client
	cache  *gocache.Cache
}

// New builds a Fetcher rooted at dir on fs, caching resolved paths for ttl.
func New(fs afero.Fs, dir string, ttl time.Duration) *Fetcher {
	return &Fetcher{
		fs:     fs,
		dir:    dir,
		client: &http.Client{Timeout: 30 * time.Second},
		cache:  gocache.New(ttl, ttl*2),
	}
}

// Fetch resolves url to a local path, downloading it if not already
// cached. Non-HTTP(S) URLs are returned unchanged (already-local or
// inline references need no fetch).
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	if len(url) < 4 || (url[:4] != "http") {
		return url, nil
	}

	if cached, ok := f.cache.Get(url); ok {
		return cached.(string), nil
	}

	path, err := f.download(ctx, url)
	if err != nil {
		return "", err
	}

	f.cache.Set(url, path, gocache.DefaultExpiration)

	log.Debug(ctx, "imagefetch: downloaded image", log.String("url", url), log.String("path", path))

	return path, nil
}

func (f *Fetcher) download(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("imagefetch: build request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("imagefetch: fetch %q: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("imagefetch: fetch %q: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("imagefetch: read body of %q: %w", url, err)
	}

	sum := sha256.Sum256([]byte(url))
	name := hex.EncodeToString(sum[:]) + filepath.Ext(url)
	path := filepath.Join(f.dir, name)

	if err := afero.WriteFile(f.fs, path, body, 0o644); err != nil {
		return "", fmt.Errorf("imagefetch: write %q: %w", path, err)
	}

	return path, nil
}
