package segment

import (
	"fmt"
	"path/filepath"
	"strings"
)

// DefaultName is the well-known backing object name.
const DefaultName = "/JackBridge"

// DefaultDir is where POSIX shared memory objects live on Linux.
const DefaultDir = "/dev/shm"

// Options selects a backing object and the instance slice to map.
type Options struct {
	Name      string // backing object name, e.g. "/JackBridge"
	Dir       string // directory holding the object; defaults to /dev/shm
	Instance  int    // instance slice to map
	Instances int    // instance slices in the backing object
	Layout    Layout
}

func (o Options) withDefaults() Options {
	if o.Name == "" {
		o.Name = DefaultName
	}
	if o.Dir == "" {
		o.Dir = DefaultDir
	}
	if o.Instances == 0 {
		o.Instances = 1
	}
	return o
}

func (o Options) validate() error {
	if err := o.Layout.Validate(); err != nil {
		return err
	}
	if o.Instances < 1 {
		return fmt.Errorf("%w: instances %d must be positive", ErrInvalidLayout, o.Instances)
	}
	if o.Instance < 0 || o.Instance >= o.Instances {
		return fmt.Errorf("%w: instance %d out of range [0,%d)", ErrInvalidLayout, o.Instance, o.Instances)
	}
	return nil
}

// Path returns the filesystem path of the backing object.
func (o Options) Path() string {
	o = o.withDefaults()
	return filepath.Join(o.Dir, strings.TrimPrefix(o.Name, "/"))
}

// TotalSize returns the size of the whole backing object.
func (o Options) TotalSize() int64 {
	o = o.withDefaults()
	return int64(o.Layout.Stride()) * int64(o.Instances)
}
