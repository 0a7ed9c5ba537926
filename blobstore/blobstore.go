// Package blobstore hosts rehosted assets and pipeline metadata on any
// gocloud.dev blob backend (S3-compatible, GCS, Azure, local filesystem,
// in-memory for tests).
package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
)

var (
	ErrNotFound           = errors.New("object not found")
	ErrPreconditionFailed = errors.New("precondition failed")
)

// Store wraps a bucket with a key prefix and the public base URL under
// which objects written through it become fetchable.
type Store struct {
	bucket     *blob.Bucket
	prefix     string
	publicBase string
	owns       bool
}

func Open(ctx context.Context, bucketURL, prefix, publicBase string) (*Store, error) {
	bkt, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("open bucket %q: %w", bucketURL, err)
	}
	return &Store{
		bucket:     bkt,
		prefix:     strings.TrimSuffix(prefix, "/"),
		publicBase: strings.TrimSuffix(publicBase, "/"),
		owns:       true,
	}, nil
}

func New(bkt *blob.Bucket, prefix, publicBase string) *Store {
	return &Store{
		bucket:     bkt,
		prefix:     strings.TrimSuffix(prefix, "/"),
		publicBase: strings.TrimSuffix(publicBase, "/"),
		owns:       false,
	}
}

func (s *Store) Close() error {
	if s.owns && s.bucket != nil {
		return s.bucket.Close()
	}
	return nil
}

func (s *Store) Prefix() string {
	return s.prefix
}

func (s *Store) path(parts ...string) string {
	if s.prefix == "" {
		return path.Join(parts...)
	}
	return path.Join(append([]string{s.prefix}, parts...)...)
}

// AssetPath maps a content-addressed asset key onto the bucket namespace.
func (s *Store) AssetPath(key string) string {
	return s.path(key)
}

// ManifestMirrorPath is the fixed key of the shared dedup manifest
// mirrored alongside the hosted assets. Like asset keys it is given
// without the store prefix; Read/Write apply the prefix exactly once.
func (s *Store) ManifestMirrorPath() string {
	return "meta/manifest.json"
}

// PublicURL returns the externally fetchable URL for a stored key.
// Pure, no I/O.
func (s *Store) PublicURL(key string) string {
	if s.publicBase == "" {
		return s.AssetPath(key)
	}
	return s.publicBase + "/" + s.AssetPath(key)
}

type Attributes struct {
	Size        int64
	ETag        string
	ContentType string
	ModTime     time.Time
}

// HeadResult reports object existence. Absence is a normal outcome and is
// never surfaced as an error.
type HeadResult struct {
	Exists bool
	ETag   string
	Size   int64
}

func (s *Store) Head(ctx context.Context, key string) (HeadResult, error) {
	attr, err := s.bucket.Attributes(ctx, s.AssetPath(key))
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return HeadResult{}, nil
		}
		return HeadResult{}, err
	}
	return HeadResult{
		Exists: true,
		ETag:   attr.ETag,
		Size:   attr.Size,
	}, nil
}

func (s *Store) Read(ctx context.Context, key string) ([]byte, Attributes, error) {
	full := s.AssetPath(key)
	attr, err := s.bucket.Attributes(ctx, full)
	if err != nil {
		return nil, Attributes{}, s.mapError(err)
	}

	r, err := s.bucket.NewReader(ctx, full, nil)
	if err != nil {
		return nil, Attributes{}, s.mapError(err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, Attributes{}, err
	}

	return data, Attributes{
		Size:        attr.Size,
		ETag:        attr.ETag,
		ContentType: attr.ContentType,
	}, nil
}

// Write uploads data under key. Keys are content-addressed upstream, so a
// repeated write for the same key carries identical bytes and plain
// overwrite semantics are safe.
func (s *Store) Write(ctx context.Context, key string, data []byte, contentType, cacheControl string) (Attributes, error) {
	opts := &blob.WriterOptions{
		ContentType:  contentType,
		CacheControl: cacheControl,
	}
	if opts.ContentType == "" {
		opts.ContentType = "application/octet-stream"
	}

	full := s.AssetPath(key)
	w, err := s.bucket.NewWriter(ctx, full, opts)
	if err != nil {
		return Attributes{}, s.mapError(err)
	}

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return Attributes{}, err
	}

	if err := w.Close(); err != nil {
		return Attributes{}, s.mapError(err)
	}

	attr, err := s.bucket.Attributes(ctx, full)
	if err != nil {
		return Attributes{}, err
	}

	return Attributes{
		Size:        attr.Size,
		ETag:        attr.ETag,
		ContentType: attr.ContentType,
	}, nil
}

// WriteIfMatch writes key only when the stored ETag matches ifMatch, or
// when ifMatch is empty and the object does not exist yet. Used by the
// manifest mirror so concurrent runs on different machines do not clobber
// each other's dedup state.
func (s *Store) WriteIfMatch(ctx context.Context, key string, data []byte, contentType, ifMatch string) (Attributes, error) {
	currentAttr, err := s.bucket.Attributes(ctx, s.AssetPath(key))
	objectExists := err == nil
	if err != nil && gcerrors.Code(err) != gcerrors.NotFound {
		return Attributes{}, err
	}

	if ifMatch == "" {
		if objectExists {
			return Attributes{}, ErrPreconditionFailed
		}
	} else {
		if !objectExists {
			return Attributes{}, ErrPreconditionFailed
		}
		if currentAttr.ETag != ifMatch {
			return Attributes{}, ErrPreconditionFailed
		}
	}

	return s.Write(ctx, key, data, contentType, "")
}

func (s *Store) Delete(ctx context.Context, key string) error {
	err := s.bucket.Delete(ctx, s.AssetPath(key))
	if err != nil && gcerrors.Code(err) == gcerrors.NotFound {
		return nil
	}
	return err
}

func (s *Store) mapError(err error) error {
	if err == nil {
		return nil
	}
	switch gcerrors.Code(err) {
	case gcerrors.NotFound:
		return ErrNotFound
	case gcerrors.FailedPrecondition:
		return ErrPreconditionFailed
	default:
		return err
	}
}
