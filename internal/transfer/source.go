package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsupportedScheme is returned for source URIs no registered Source handles.
var ErrUnsupportedScheme = errors.New("unsupported source scheme")

// Source reads objects identified by URI.
type Source interface {
	// Stat returns the object size in bytes, or -1 when it is unknown.
	Stat(ctx context.Context, uri string) (int64, error)
	// Open returns a reader over the object contents.
	Open(ctx context.Context, uri string) (io.ReadCloser, error)
}

// Router dispatches to a Source by URI scheme. URIs without a scheme are
// treated as "file".
type Router struct {
	sources map[string]Source
}

// NewRouter builds a Router from scheme → Source pairs.
func NewRouter(sources map[string]Source) *Router {
	r := &Router{sources: make(map[string]Source, len(sources))}
	for scheme, src := range sources {
		if src != nil {
			r.sources[strings.ToLower(scheme)] = src
		}
	}
	return r
}

// Stat implements Source.
func (r *Router) Stat(ctx context.Context, uri string) (int64, error) {
	src, err := r.route(uri)
	if err != nil {
		return 0, err
	}
	return src.Stat(ctx, uri)
}

// Open implements Source.
func (r *Router) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	src, err := r.route(uri)
	if err != nil {
		return nil, err
	}
	return src.Open(ctx, uri)
}

func (r *Router) route(uri string) (Source, error) {
	scheme := schemeOf(uri)
	src, ok := r.sources[scheme]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, scheme)
	}
	return src, nil
}

func schemeOf(uri string) string {
	u, err := url.Parse(uri)
	// Single-letter schemes are Windows drive letters.
	if err != nil || len(u.Scheme) < 2 {
		return "file"
	}
	return strings.ToLower(u.Scheme)
}

// FileSource reads from the local filesystem. It accepts plain paths and
// file:// URIs.
type FileSource struct{}

// Stat implements Source.
func (FileSource) Stat(_ context.Context, uri string) (int64, error) {
	info, err := os.Stat(filePath(uri))
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", uri, err)
	}
	if info.IsDir() {
		return 0, fmt.Errorf("stat %s: is a directory", uri)
	}
	return info.Size(), nil
}

// Open implements Source.
func (FileSource) Open(_ context.Context, uri string) (io.ReadCloser, error) {
	f, err := os.Open(filePath(uri))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", uri, err)
	}
	return f, nil
}

func filePath(uri string) string {
	if after, ok := strings.CutPrefix(uri, "file://"); ok {
		return filepath.FromSlash(after)
	}
	return uri
}

// HTTPSource reads over HTTP(S). Sizes come from Content-Length of a HEAD
// request; servers that omit it yield an unknown size.
type HTTPSource struct {
	Client *http.Client
}

func (s HTTPSource) client() *http.Client {
	if s.Client != nil {
		return s.Client
	}
	return http.DefaultClient
}

// Stat implements Source.
func (s HTTPSource) Stat(ctx context.Context, uri string) (int64, error) {
	resp, err := s.do(ctx, http.MethodHead, uri)
	if err != nil {
		return 0, err
	}
	_ = resp.Body.Close()
	if resp.ContentLength < 0 {
		return -1, nil
	}
	return resp.ContentLength, nil
}

// Open implements Source.
func (s HTTPSource) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	resp, err := s.do(ctx, http.MethodGet, uri)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (s HTTPSource) do(ctx context.Context, method, uri string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", method, err)
	}
	resp, err := s.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, uri, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%s %s: unexpected status %s", method, uri, resp.Status)
	}
	return resp, nil
}
