//go:build !linux

package segment

// Create is not available without a /dev/shm style backing.
func Create(opts Options) (*Segment, error) { return nil, ErrUnsupported }

// Attach is not available without a /dev/shm style backing.
func Attach(opts Options) (*Segment, error) { return nil, ErrUnsupported }

// Unlink is not available without a /dev/shm style backing.
func Unlink(opts Options) error { return ErrUnsupported }
