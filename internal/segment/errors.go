package segment

import "errors"

var (
	// ErrNotFound is returned by Attach when the backing object does not exist.
	ErrNotFound = errors.New("segment: backing object not found")
	// ErrSizeMismatch is returned when the backing object size differs from the
	// size implied by the configured layout.
	ErrSizeMismatch = errors.New("segment: size mismatch")
	// ErrBadMagic is returned when an instance slice carries no valid header.
	ErrBadMagic = errors.New("segment: invalid magic or version")
	// ErrFingerprintMismatch is returned when the header was written for a
	// different layout than the one requested.
	ErrFingerprintMismatch = errors.New("segment: layout fingerprint mismatch")
	// ErrMapFailed wraps failures of the mapping syscalls.
	ErrMapFailed = errors.New("segment: mapping failed")
	// ErrInvalidLayout is returned for layouts that cannot be laid out.
	ErrInvalidLayout = errors.New("segment: invalid layout")
	// ErrUnsupported is returned on platforms without a shared memory backing.
	ErrUnsupported = errors.New("segment: shared memory not supported on this platform")
)
