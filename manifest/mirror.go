package manifest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/scratchatlas/rehost/blobstore"
)

// Mirror keeps a copy of the manifest in the asset bucket under a fixed
// key so ingestion runs on different machines share dedup state. Saves
// are guarded by an ETag compare-and-swap; on conflict the remote copy is
// absorbed and the write retried.
type Mirror struct {
	store *blobstore.Store
	etag  string
}

func NewMirror(store *blobstore.Store) *Mirror {
	return &Mirror{store: store}
}

// Load fetches the mirrored manifest. A missing or malformed object is an
// empty manifest.
func (mr *Mirror) Load(ctx context.Context) (*Manifest, error) {
	data, attr, err := mr.store.Read(ctx, mr.store.ManifestMirrorPath())
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			mr.etag = ""
			return New(), nil
		}
		return nil, fmt.Errorf("read manifest mirror: %w", err)
	}

	mr.etag = attr.ETag
	m, decodeErr := Decode(data)
	if decodeErr != nil {
		// Same tolerance as the local file: a corrupt mirror must not
		// block ingestion.
		return New(), nil
	}
	return m, nil
}

// Save writes the manifest to the mirror. On a lost CAS race the remote
// copy is re-read and merged, then the write is retried with a short
// backoff, capped attempts.
func (mr *Mirror) Save(ctx context.Context, m *Manifest) error {
	const maxRetries = 5

	for attempt := 0; attempt < maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		data, err := Encode(m)
		if err != nil {
			return fmt.Errorf("encode manifest: %w", err)
		}

		_, err = mr.store.WriteIfMatch(ctx, mr.store.ManifestMirrorPath(), data, "application/json", mr.etag)
		if err == nil {
			return nil
		}
		if !errors.Is(err, blobstore.ErrPreconditionFailed) {
			return fmt.Errorf("write manifest mirror: %w", err)
		}

		remote, loadErr := mr.Load(ctx)
		if loadErr != nil {
			return loadErr
		}
		m.Absorb(remote)

		backoff := time.Millisecond * 10 * time.Duration(attempt+1)
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return fmt.Errorf("save manifest mirror: conflict persisted after %d attempts", maxRetries)
}
