package release

import (
	"errors"
	"fmt"
)

var (
	// ErrNetwork marks any failed fetch. It aborts the current variant only and is not retried.
	ErrNetwork = errors.New("network error")
	// ErrFormat marks an unexpected manifest tag or content.
	ErrFormat = errors.New("unexpected format")
	// ErrUnavailable marks a version that fell out of the CDN retention window.
	ErrUnavailable = errors.New("version is not available on the CDN, only recent versions can be downloaded")
	// ErrFilesystemLock marks a directory that stayed locked through every removal attempt.
	ErrFilesystemLock = errors.New("filesystem resource is locked")
	// ErrPartialWrite marks an archive or install directory that was not fully written.
	ErrPartialWrite = errors.New("partial write")
	// ErrNotFound is returned when the deploy history has no line for the variant.
	ErrNotFound = errors.New("no versions found in deploy history")
	// ErrNotEnoughVersions is returned when a selection needs more history than exists.
	ErrNotEnoughVersions = errors.New("not enough versions in deploy history")
	// ErrUnknownVariant is returned for variant names other than player and studio.
	ErrUnknownVariant = errors.New("unknown variant")
	// ErrVariantMismatch is returned when a manifest belongs to the other variant.
	ErrVariantMismatch = fmt.Errorf("%w: manifest belongs to another variant", ErrFormat)
)
