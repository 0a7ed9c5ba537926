package blobstore

import (
	"context"
	"os"
	"testing"
)

func TestWriteHeadRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemory("assets", "https://cdn.example.com")
	defer store.Close()

	head, err := store.Head(ctx, "ny/1/ticket-abc.png")
	if err != nil {
		t.Fatalf("head before write: %v", err)
	}
	if head.Exists {
		t.Fatal("object should not exist yet")
	}

	attr, err := store.Write(ctx, "ny/1/ticket-abc.png", []byte("png-bytes"), "image/png", "public, max-age=60")
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if attr.Size != int64(len("png-bytes")) {
		t.Fatalf("unexpected size %d", attr.Size)
	}

	head, err = store.Head(ctx, "ny/1/ticket-abc.png")
	if err != nil {
		t.Fatalf("head after write: %v", err)
	}
	if !head.Exists {
		t.Fatal("object should exist after write")
	}
	if head.Size != attr.Size {
		t.Fatalf("head size %d != write size %d", head.Size, attr.Size)
	}
}

func TestWriteOverwriteSameKey(t *testing.T) {
	ctx := context.Background()
	store := NewMemory("", "")
	defer store.Close()

	if _, err := store.Write(ctx, "k", []byte("same"), "image/png", ""); err != nil {
		t.Fatalf("first write: %v", err)
	}
	// Content-addressed keys make a repeat write carry identical bytes.
	if _, err := store.Write(ctx, "k", []byte("same"), "image/png", ""); err != nil {
		t.Fatalf("second write: %v", err)
	}

	data, _, err := store.Read(ctx, "k")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "same" {
		t.Fatalf("unexpected content %q", data)
	}
}

func TestPublicURL(t *testing.T) {
	store := NewMemory("assets", "https://cdn.example.com/")
	defer store.Close()

	got := store.PublicURL("ny/1/ticket-abc.png")
	want := "https://cdn.example.com/assets/ny/1/ticket-abc.png"
	if got != want {
		t.Fatalf("public url %q, want %q", got, want)
	}
}

func TestWriteIfMatch(t *testing.T) {
	ctx := context.Background()
	store := NewMemory("", "")
	defer store.Close()

	// Empty ifMatch means create-only.
	attr, err := store.WriteIfMatch(ctx, "m", []byte("v1"), "application/json", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.WriteIfMatch(ctx, "m", []byte("v2"), "application/json", ""); err != ErrPreconditionFailed {
		t.Fatalf("expected ErrPreconditionFailed, got %v", err)
	}

	if _, err := store.WriteIfMatch(ctx, "m", []byte("v2"), "application/json", attr.ETag); err != nil {
		t.Fatalf("conditional update: %v", err)
	}
	if _, err := store.WriteIfMatch(ctx, "m", []byte("v3"), "application/json", attr.ETag); err != ErrPreconditionFailed {
		t.Fatalf("stale etag should fail, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemory("", "")
	defer store.Close()

	if _, err := store.Write(ctx, "k", []byte("v"), "image/png", ""); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	head, err := store.Head(ctx, "k")
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if head.Exists {
		t.Fatal("object should be gone after delete")
	}
	// Deleting an absent key is not an error.
	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete absent: %v", err)
	}
}

func TestReadNotFound(t *testing.T) {
	ctx := context.Background()
	store := NewMemory("", "")
	defer store.Close()

	if _, _, err := store.Read(ctx, "missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFileBackendRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, dir, err := NewFileTemp("hosted", "/hosted")
	if err != nil {
		t.Fatalf("open file store: %v", err)
	}
	defer os.RemoveAll(dir)
	defer store.Close()

	if _, err := store.Write(ctx, "ny/1/ticket-abc.png", []byte("png-bytes"), "image/png", ""); err != nil {
		t.Fatalf("write: %v", err)
	}

	data, attr, err := store.Read(ctx, "ny/1/ticket-abc.png")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "png-bytes" {
		t.Fatalf("unexpected content %q", data)
	}
	if attr.Size != int64(len("png-bytes")) {
		t.Fatalf("unexpected size %d", attr.Size)
	}
	if got := store.PublicURL("ny/1/ticket-abc.png"); got != "/hosted/hosted/ny/1/ticket-abc.png" {
		t.Fatalf("public url %q", got)
	}
}

func TestDryRunSkipsWrites(t *testing.T) {
	ctx := context.Background()
	store := NewMemory("", "https://cdn.example.com")
	defer store.Close()

	dry := NewDryRun(store)
	attr, err := dry.Write(ctx, "k", []byte("bytes"), "image/png", "")
	if err != nil {
		t.Fatalf("dry write: %v", err)
	}
	if attr.Size != 5 {
		t.Fatalf("dry write should echo size, got %d", attr.Size)
	}

	head, err := store.Head(ctx, "k")
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if head.Exists {
		t.Fatal("dry run must not write to the backing store")
	}
	if dry.PublicURL("k") != store.PublicURL("k") {
		t.Fatal("dry run should report the real public url")
	}
}
