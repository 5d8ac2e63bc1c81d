package artifact

import (
	"errors"
	"fmt"
)

// Sentinel errors for artifact operations.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, artifact.ErrArtifactNotFound) {
//	    // Nothing bundled for this platform
//	}
var (
	// ErrArtifactNotFound indicates neither the architecture-specific nor the
	// generic resource exists in the bundle.
	ErrArtifactNotFound = errors.New("artifact: no bundled executable for this platform")

	// ErrPermissionDenied indicates the execute bit could not be set on the target.
	ErrPermissionDenied = errors.New("artifact: cannot set executable permission")

	// ErrExtractionFailed indicates an I/O failure while materialising the executable.
	ErrExtractionFailed = errors.New("artifact: extraction failed")
)

// ExtractionError carries the I/O failure behind ErrExtractionFailed.
type ExtractionError struct {
	Op    string
	Cause error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("artifact: extraction failed: %s: %v", e.Op, e.Cause)
}

// Unwrap exposes the underlying I/O error.
func (e *ExtractionError) Unwrap() error {
	return e.Cause
}

// Is reports ErrExtractionFailed as a match so callers can test the category.
func (e *ExtractionError) Is(target error) bool {
	return target == ErrExtractionFailed
}

func extractionError(op string, cause error) error {
	return &ExtractionError{Op: op, Cause: cause}
}
