package discovery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/deusflow/hunews/internal/storage"
)

// ErrNotFound means the requested archive file does not exist (yet).
var ErrNotFound = errors.New("not found")

// Store reads archive files by name, e.g. "index.json" or "2025-10-16.json".
type Store interface {
	Get(ctx context.Context, name string) ([]byte, error)
	Exists(ctx context.Context, name string) (bool, error)
}

// DirStore reads the archive from a local data directory.
type DirStore struct {
	dir *storage.Dir
}

func NewDirStore(path string) *DirStore {
	return &DirStore{dir: storage.NewDir(path)}
}

func (s *DirStore) Get(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := s.dir.ReadRaw(name)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	return data, err
}

func (s *DirStore) Exists(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return s.dir.Exists(name)
}

const maxDocumentBytes = 8 << 20

var ErrTooLarge = errors.New("document too large")

// HTTPStore reads the archive from the static host serving the front end.
type HTTPStore struct {
	base      *url.URL
	client    *http.Client
	userAgent string
	maxBytes  int64
}

func NewHTTPStore(baseURL string, client *http.Client, userAgent string) (*HTTPStore, error) {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	base, err := url.Parse(baseURL)
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") {
		return nil, fmt.Errorf("invalid archive base URL %q", baseURL)
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPStore{base: base, client: client, userAgent: userAgent, maxBytes: maxDocumentBytes}, nil
}

func (s *HTTPStore) Get(ctx context.Context, name string) ([]byte, error) {
	resp, err := s.do(ctx, http.MethodGet, name)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("GET %s: HTTP %d", name, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	if int64(len(data)) > s.maxBytes {
		return nil, fmt.Errorf("%s: %w (limit %d bytes)", name, ErrTooLarge, s.maxBytes)
	}
	return data, nil
}

func (s *HTTPStore) Exists(ctx context.Context, name string) (bool, error) {
	resp, err := s.do(ctx, http.MethodHead, name)
	if err != nil {
		return false, err
	}
	resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	}
	return false, fmt.Errorf("HEAD %s: HTTP %d", name, resp.StatusCode)
}

func (s *HTTPStore) do(ctx context.Context, method, name string) (*http.Response, error) {
	ref, err := url.Parse(name)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, s.base.ResolveReference(ref).String(), nil)
	if err != nil {
		return nil, err
	}
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}
	return s.client.Do(req)
}
