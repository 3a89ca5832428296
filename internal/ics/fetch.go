package ics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	appLog "coursecal/internal/log"
)

const userAgent = "coursecal/1.0"

// FetchResult is the outcome of checking the upstream calendar.
type FetchResult struct {
	Body []byte
	// Changed is false when the upstream content is byte-identical to the
	// previous run (304 Not Modified or equal content hash); the caller
	// may skip regeneration entirely.
	Changed   bool
	FromCache bool
}

// cacheEntry holds the HTTP conditional-request state plus the content
// hash of the last seen body.
type cacheEntry struct {
	URL          string    `json:"url,omitempty"`
	Path         string    `json:"path,omitempty"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	SHA256       string    `json:"sha256,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Fetcher retrieves the upstream ICS feed with ETag / Last-Modified
// conditionals and a disk-backed cache, so unchanged upstreams cost one
// request and no regeneration.
type Fetcher struct {
	client   *http.Client
	cacheDir string
}

func NewFetcher(cacheDir string) *Fetcher {
	if cacheDir == "" {
		cacheDir = "./var/ics-cache"
	}
	return &Fetcher{
		client:   &http.Client{Timeout: 30 * time.Second},
		cacheDir: cacheDir,
	}
}

// Fetch retrieves the upstream ICS over HTTP. On network errors it falls
// back to the cached body (Changed=false) when one exists.
func (f *Fetcher) Fetch(ctx context.Context, url string) (FetchResult, error) {
	if url == "" {
		return FetchResult{}, errors.New("ics: upstream URL is empty")
	}
	if err := os.MkdirAll(f.cacheDir, 0o700); err != nil {
		return FetchResult{}, err
	}

	meta, _ := f.loadMeta()
	cachedBody, _ := os.ReadFile(f.bodyPath())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return FetchResult{}, err
	}
	req.Header.Set("User-Agent", userAgent)
	if meta.ETag != "" {
		req.Header.Set("If-None-Match", meta.ETag)
	} else if meta.LastModified != "" {
		req.Header.Set("If-Modified-Since", meta.LastModified)
	}

	appLog.Info("upstream fetch start", "url", appLog.RedactURL(url))

	resp, err := f.client.Do(req)
	if err != nil {
		if len(cachedBody) > 0 {
			appLog.Warn("upstream fetch failed, using cached body", "url", appLog.RedactURL(url), "reason", err)
			return FetchResult{Body: cachedBody, Changed: false, FromCache: true}, nil
		}
		return FetchResult{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return FetchResult{}, readErr
		}
		sum := sha256Hex(body)
		changed := sum != meta.SHA256

		newMeta := cacheEntry{
			URL:          url,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
			SHA256:       sum,
		}
		if err := f.saveCache(newMeta, body); err != nil {
			appLog.Error("cache save failed", err, "dir", f.cacheDir)
		}
		appLog.Info("upstream fetch done", "url", appLog.RedactURL(url), "changed", changed)
		return FetchResult{Body: body, Changed: changed}, nil

	case http.StatusNotModified:
		if len(cachedBody) == 0 {
			return FetchResult{}, errors.New("ics: 304 Not Modified but no cached body")
		}
		appLog.Info("upstream not modified", "url", appLog.RedactURL(url))
		return FetchResult{Body: cachedBody, Changed: false, FromCache: true}, nil

	default:
		if len(cachedBody) > 0 {
			appLog.Warn("upstream returned non-OK, using cached body",
				"url", appLog.RedactURL(url), "status", resp.StatusCode)
			return FetchResult{Body: cachedBody, Changed: false, FromCache: true}, nil
		}
		return FetchResult{}, fmt.Errorf("ics: upstream status %s", resp.Status)
	}
}

// FetchLocal reads the upstream from a local file, using the content hash
// for change detection.
func (f *Fetcher) FetchLocal(path string) (FetchResult, error) {
	if err := os.MkdirAll(f.cacheDir, 0o700); err != nil {
		return FetchResult{}, err
	}
	body, err := os.ReadFile(path)
	if err != nil {
		return FetchResult{}, fmt.Errorf("ics: reading local upstream: %w", err)
	}

	meta, _ := f.loadMeta()
	sum := sha256Hex(body)
	changed := sum != meta.SHA256 || meta.Path != path

	if changed {
		if err := f.saveCache(cacheEntry{Path: path, SHA256: sum}, body); err != nil {
			appLog.Error("cache save failed", err, "dir", f.cacheDir)
		}
	}
	appLog.Info("local upstream read", "path", path, "changed", changed)
	return FetchResult{Body: body, Changed: changed}, nil
}

func (f *Fetcher) metaPath() string { return filepath.Join(f.cacheDir, "meta.json") }
func (f *Fetcher) bodyPath() string { return filepath.Join(f.cacheDir, "body.ics") }

func (f *Fetcher) loadMeta() (cacheEntry, error) {
	var meta cacheEntry
	data, err := os.ReadFile(f.metaPath())
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return cacheEntry{}, err
	}
	return meta, nil
}

func (f *Fetcher) saveCache(meta cacheEntry, body []byte) error {
	// Body first, so meta never points at a missing body.
	if err := os.WriteFile(f.bodyPath(), body, 0o600); err != nil {
		return err
	}
	meta.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(f.metaPath(), data, 0o600)
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
