package blobstore

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/johannesboyne/gofakes3"
	"github.com/johannesboyne/gofakes3/backend/s3mem"
	"github.com/stretchr/testify/require"
)

const (
	fakeS3AccessKey = "fakeaccess"
	fakeS3SecretKey = "fakesecret"
	fakeS3Region    = "us-east-1"
	fakeS3Bucket    = "testbucket"
)

func newFakeS3(t *testing.T) string {
	t.Helper()

	backend := s3mem.New()
	require.NoError(t, backend.CreateBucket(fakeS3Bucket))
	fake := gofakes3.New(backend)
	server := httptest.NewServer(fake.Server())
	t.Cleanup(server.Close)

	t.Setenv("AWS_ACCESS_KEY_ID", fakeS3AccessKey)
	t.Setenv("AWS_SECRET_ACCESS_KEY", fakeS3SecretKey)
	t.Setenv("AWS_REGION", fakeS3Region)

	return server.URL
}

func TestS3_WriteHeadPublicURL(t *testing.T) {
	endpoint := newFakeS3(t)
	ctx := context.Background()

	store, err := NewS3(ctx, S3Options{
		Bucket:    fakeS3Bucket,
		Region:    fakeS3Region,
		Endpoint:  endpoint,
		AccessKey: fakeS3AccessKey,
		SecretKey: fakeS3SecretKey,
		PathStyle: true,
	}, "hosted", "https://img.example.com")
	require.NoError(t, err)
	defer store.Close()

	attr, err := store.Write(ctx, "ny/42/ticket-abc.png", []byte("fake-png"), "image/png", "public, max-age=31536000, immutable")
	require.NoError(t, err)
	require.Equal(t, int64(len("fake-png")), attr.Size)

	head, err := store.Head(ctx, "ny/42/ticket-abc.png")
	require.NoError(t, err)
	require.True(t, head.Exists)
	require.Equal(t, attr.Size, head.Size)

	require.Equal(t,
		"https://img.example.com/hosted/ny/42/ticket-abc.png",
		store.PublicURL("ny/42/ticket-abc.png"))
}

func TestS3_HeadAbsentIsNotError(t *testing.T) {
	endpoint := newFakeS3(t)
	ctx := context.Background()

	store, err := NewS3(ctx, S3Options{
		Bucket:    fakeS3Bucket,
		Region:    fakeS3Region,
		Endpoint:  endpoint,
		AccessKey: fakeS3AccessKey,
		SecretKey: fakeS3SecretKey,
		PathStyle: true,
	}, "", "")
	require.NoError(t, err)
	defer store.Close()

	head, err := store.Head(ctx, "never/written.png")
	require.NoError(t, err)
	require.False(t, head.Exists)
}
