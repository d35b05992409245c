package transfer

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"cloud.google.com/go/storage"
)

// GCSSource reads gs://bucket/object URIs through a Cloud Storage client.
type GCSSource struct {
	client *storage.Client
}

// NewGCSSource wraps client.
func NewGCSSource(client *storage.Client) *GCSSource {
	return &GCSSource{client: client}
}

// Stat implements Source.
func (s *GCSSource) Stat(ctx context.Context, uri string) (int64, error) {
	obj, err := s.object(uri)
	if err != nil {
		return 0, err
	}
	attrs, err := obj.Attrs(ctx)
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", uri, err)
	}
	return attrs.Size, nil
}

// Open implements Source.
func (s *GCSSource) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	obj, err := s.object(uri)
	if err != nil {
		return nil, err
	}
	r, err := obj.NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", uri, err)
	}
	return r, nil
}

func (s *GCSSource) object(uri string) (*storage.ObjectHandle, error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("storage client is required for %s", uri)
	}
	bucket, object, err := ParseGCSURI(uri)
	if err != nil {
		return nil, err
	}
	return s.client.Bucket(bucket).Object(object), nil
}

// ParseGCSURI splits gs://bucket/path into its bucket and object name.
func ParseGCSURI(uri string) (bucket, object string, err error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", fmt.Errorf("parse %q: %w", uri, err)
	}
	if u.Scheme != "gs" {
		return "", "", fmt.Errorf("%q is not a gs:// uri", uri)
	}
	object = strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || object == "" {
		return "", "", fmt.Errorf("%q must name a bucket and an object", uri)
	}
	return u.Host, object, nil
}
