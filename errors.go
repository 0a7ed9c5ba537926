package rehost

import (
	"errors"
	"fmt"

	"github.com/scratchatlas/rehost/content"
	"github.com/scratchatlas/rehost/fetch"
)

// StorageError reports a backend put or head failure.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IngestError wraps whatever ultimately failed for one asset after all
// fallback paths were exhausted.
type IngestError struct {
	SourceURL string
	Err       error
}

func (e *IngestError) Error() string {
	return fmt.Sprintf("ingest %s: %v", e.SourceURL, e.Err)
}

func (e *IngestError) Unwrap() error { return e.Err }

// IsUnsupportedFormat reports whether err stems from a rejected image
// format rather than a transport or storage failure.
func IsUnsupportedFormat(err error) bool {
	var ufe *content.UnsupportedFormatError
	return errors.As(err, &ufe)
}

// IsFetchFailure reports whether err stems from exhausted fetch attempts.
func IsFetchFailure(err error) bool {
	var fe *fetch.Error
	return errors.As(err, &fe)
}
