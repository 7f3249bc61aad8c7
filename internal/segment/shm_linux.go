//go:build linux

package segment

import (
	"errors"
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"
	"golang.org/x/sys/unix"
)

// sharedMode gives every local user read/write access to the object.
const sharedMode = 0o666

type shmMapping struct {
	region mmap.MMap
}

func (m *shmMapping) Bytes() []byte { return m.region }

func (m *shmMapping) Close() error {
	if m.region == nil {
		return nil
	}
	err := m.region.Unmap()
	m.region = nil
	if err != nil {
		return fmt.Errorf("%w: unmap: %v", ErrMapFailed, err)
	}
	return nil
}

// Create opens the backing object, creating it if needed, and returns the
// requested instance slice. An object of the wrong size is truncated to the
// expected size and every instance header is reinitialized. An object of the
// right size keeps its state so a restarting client finds its peer's registers.
func Create(opts Options) (*Segment, error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	path := opts.Path()

	fd, err := unix.Open(path, unix.O_CREAT|unix.O_RDWR|unix.O_CLOEXEC, sharedMode)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrMapFailed, path, err)
	}
	f := os.NewFile(uintptr(fd), path)
	defer f.Close()

	// umask may have narrowed the creation mode.
	if err := unix.Fchmod(fd, sharedMode); err != nil {
		return nil, fmt.Errorf("%w: chmod %s: %v", ErrMapFailed, path, err)
	}

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return nil, fmt.Errorf("%w: stat %s: %v", ErrMapFailed, path, err)
	}
	recreated := false
	if st.Size != opts.TotalSize() {
		if err := unix.Ftruncate(fd, 0); err != nil {
			return nil, fmt.Errorf("%w: truncate %s: %v", ErrMapFailed, path, err)
		}
		if err := unix.Ftruncate(fd, opts.TotalSize()); err != nil {
			return nil, fmt.Errorf("%w: resize %s: %v", ErrMapFailed, path, err)
		}
		recreated = true
	}

	var self *Segment
	for i := 0; i < opts.Instances; i++ {
		seg, err := mapInstance(f, opts, i)
		if err != nil {
			if self != nil {
				self.Close()
			}
			return nil, err
		}
		if recreated || seg.load(offMagic) != magicWord() {
			seg.initHeader()
		} else if err := seg.verifyHeader(); err != nil {
			seg.Close()
			if self != nil {
				self.Close()
			}
			return nil, err
		}
		if i == opts.Instance {
			self = seg
			continue
		}
		seg.Close()
	}
	return self, nil
}

// Attach maps the instance slice of an existing backing object. It fails
// when the object is missing, has the wrong size, or was initialized for a
// different layout.
func Attach(opts Options) (*Segment, error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	path := opts.Path()

	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		if errors.Is(err, unix.ENOENT) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("%w: open %s: %v", ErrMapFailed, path, err)
	}
	f := os.NewFile(uintptr(fd), path)
	defer f.Close()

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return nil, fmt.Errorf("%w: stat %s: %v", ErrMapFailed, path, err)
	}
	if st.Size != opts.TotalSize() {
		return nil, fmt.Errorf("%w: %s is %d bytes, expected %d", ErrSizeMismatch, path, st.Size, opts.TotalSize())
	}

	seg, err := mapInstance(f, opts, opts.Instance)
	if err != nil {
		return nil, err
	}
	if err := seg.verifyHeader(); err != nil {
		seg.Close()
		return nil, err
	}
	return seg, nil
}

// Unlink removes the backing object. Peers that still have it mapped keep
// their mapping until they detach.
func Unlink(opts Options) error {
	path := opts.Path()
	if err := unix.Unlink(path); err != nil {
		if errors.Is(err, unix.ENOENT) {
			return fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return fmt.Errorf("unlink %s: %w", path, err)
	}
	return nil
}

func mapInstance(f *os.File, opts Options, instance int) (*Segment, error) {
	stride := opts.Layout.Stride()
	region, err := mmap.MapRegion(f, stride, mmap.RDWR, 0, int64(instance)*int64(stride))
	if err != nil {
		return nil, fmt.Errorf("%w: map instance %d: %v", ErrMapFailed, instance, err)
	}
	seg, err := newSegment(opts.Name, instance, opts.Layout, &shmMapping{region: region})
	if err != nil {
		region.Unmap()
		return nil, err
	}
	return seg, nil
}
