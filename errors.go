package memres

import "github.com/cockroachdb/errors"

var (
	// ErrOutOfMemory is returned when a pool or arena has no room left for a request.
	// It is recoverable: adapters react to it by appending a larger chunk.
	ErrOutOfMemory = errors.New("memres: out of memory")

	// ErrInvalidConfiguration is returned by constructors and Config.Validate
	// when sizes, counts or buffers cannot describe a usable engine.
	ErrInvalidConfiguration = errors.New("memres: invalid configuration")

	// ErrInvalidRelease is returned when a free does not match a live allocation:
	// a foreign or misaligned address, a double free, or an out-of-order
	// release on a Mono or Bidi arena.
	ErrInvalidRelease = errors.New("memres: invalid release")
)
