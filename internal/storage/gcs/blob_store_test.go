package gcs

import (
	"context"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.ErrorContains(t, err, "storage client is required")

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	_, err = New(client, Config{})
	require.ErrorContains(t, err, "bucket name is required")

	store, err := New(client, Config{Bucket: "archive", Prefix: "/runs/"})
	require.NoError(t, err)
	require.Equal(t, "runs/backup/a.txt", store.ObjectName("backup/a.txt"))

	_, err = store.PutObject(context.Background(), " ", "", nil)
	require.ErrorContains(t, err, "path is required")
}
