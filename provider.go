package memres

import (
	"github.com/cockroachdb/errors"
	"github.com/edsrzf/mmap-go"
)

// Provider supplies the raw storage behind Owned buffers.
// Engines never call a Provider directly; they go through Buffer.
type Provider interface {
	// Allocate returns a zeroed byte slice of exactly size bytes.
	Allocate(size int) ([]byte, error)
	// Free gives back a slice previously returned by Allocate.
	Free(b []byte) error
}

const (
	ProviderHeap = "heap"
	ProviderMmap = "mmap"
)

// HeapProvider allocates from the Go heap. Free is a no-op; the garbage
// collector reclaims the slice once the last reference is dropped.
type HeapProvider struct{}

func (HeapProvider) Allocate(size int) ([]byte, error) {
	if size <= 0 {
		return nil, errors.Wrapf(ErrInvalidConfiguration, "heap: cannot allocate %d bytes", size)
	}
	return make([]byte, size), nil
}

func (HeapProvider) Free([]byte) error { return nil }

// MmapProvider allocates anonymous private mappings outside the Go heap.
// Memory is returned to the OS on Free.
type MmapProvider struct{}

func (MmapProvider) Allocate(size int) ([]byte, error) {
	if size <= 0 {
		return nil, errors.Wrapf(ErrInvalidConfiguration, "mmap: cannot map %d bytes", size)
	}
	m, err := mmap.MapRegion(nil, size, mmap.RDWR, mmap.ANON, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "mmap: map %d bytes", size)
	}
	return m, nil
}

func (MmapProvider) Free(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	m := mmap.MMap(b)
	return errors.Wrap(m.Unmap(), "mmap: unmap")
}

// ProviderByName maps a configuration value to a Provider.
func ProviderByName(name string) (Provider, error) {
	switch name {
	case "", ProviderHeap:
		return HeapProvider{}, nil
	case ProviderMmap:
		return MmapProvider{}, nil
	default:
		return nil, errors.Wrapf(ErrInvalidConfiguration, "unknown provider %q", name)
	}
}

// DefaultProvider is used by constructors that take no explicit Provider.
var DefaultProvider Provider = HeapProvider{}
