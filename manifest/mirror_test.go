package manifest

import (
	"context"
	"testing"

	"gocloud.dev/blob/memblob"

	"github.com/scratchatlas/rehost/blobstore"
)

func TestMirror_LoadMissingIsEmpty(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemory("", "")
	defer store.Close()

	m, err := NewMirror(store).Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if m.Len() != 0 {
		t.Fatalf("expected empty manifest, got %d entries", m.Len())
	}
}

func TestMirror_SaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemory("", "")
	defer store.Close()

	mr := NewMirror(store)
	if _, err := mr.Load(ctx); err != nil {
		t.Fatalf("initial load: %v", err)
	}

	m := New()
	m.Put("https://upstream.example/img/1.png", testEntry("ns/1/ticket-aaa.png"))
	if err := mr.Save(ctx, m); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := NewMirror(store).Load(ctx)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", got.Len())
	}
}

func TestMirror_PrefixedStoreSingleApplication(t *testing.T) {
	ctx := context.Background()
	bkt := memblob.OpenBucket(nil)
	defer bkt.Close()

	// Two views of one bucket: the prefixed store the pipeline uses and a
	// raw view to observe the final object key.
	prefixed := blobstore.New(bkt, "assets", "")
	raw := blobstore.New(bkt, "", "")

	m := New()
	m.Put("https://upstream.example/img/1.png", testEntry("ns/1/ticket-aaa.png"))
	mr := NewMirror(prefixed)
	if _, err := mr.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if err := mr.Save(ctx, m); err != nil {
		t.Fatalf("save: %v", err)
	}

	// The prefix must be applied exactly once.
	head, err := raw.Head(ctx, "assets/meta/manifest.json")
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if !head.Exists {
		t.Fatal("mirror missing at assets/meta/manifest.json")
	}
	doubled, err := raw.Head(ctx, "assets/assets/meta/manifest.json")
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if doubled.Exists {
		t.Fatal("mirror written under a doubled prefix")
	}

	got, err := NewMirror(prefixed).Load(ctx)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.Len() != 1 {
		t.Fatalf("expected 1 entry after reload, got %d", got.Len())
	}
}

func TestMirror_ConflictAbsorbsRemote(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemory("", "")
	defer store.Close()

	// Another machine wrote the mirror after we loaded it.
	other := New()
	other.Put("u-other", testEntry("other/1.png"))
	otherMirror := NewMirror(store)
	if _, err := otherMirror.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if err := otherMirror.Save(ctx, other); err != nil {
		t.Fatal(err)
	}

	// Our mirror still holds the pre-write etag (empty: loaded before).
	ours := New()
	ours.Put("u-ours", testEntry("ours/1.png"))
	mr := NewMirror(store)
	if err := mr.Save(ctx, ours); err != nil {
		t.Fatalf("save with conflict: %v", err)
	}

	// After the CAS retry both sets must be present.
	final, err := NewMirror(store).Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := final.Get("u-ours"); !ok {
		t.Fatal("our entry missing after conflict resolution")
	}
	if _, ok := final.Get("u-other"); !ok {
		t.Fatal("remote entry lost during conflict resolution")
	}
}
