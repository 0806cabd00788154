package manifest

import (
	"errors"
	"fmt"
)

// ErrCatalogTimeout reports that the producer did not publish the reference
// catalog within the caller's wait bound.
var ErrCatalogTimeout = errors.New("timed out waiting for catalog ready")

// CorruptManifestError reports a manifest file that failed to parse. The
// pipeline's own writes are atomic, so this only happens when the file is
// damaged externally.
type CorruptManifestError struct {
	Path string
	Err  error
}

func (e *CorruptManifestError) Error() string {
	return fmt.Sprintf("manifest %s is corrupt: %v", e.Path, e.Err)
}

func (e *CorruptManifestError) Unwrap() error {
	return e.Err
}

// IsCorrupt reports whether err wraps a CorruptManifestError.
func IsCorrupt(err error) bool {
	var corrupt *CorruptManifestError
	return errors.As(err, &corrupt)
}
