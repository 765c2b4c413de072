// Package meshopt provides mesh optimization algorithms for GPU rendering:
// vertex deduplication, cache and fetch ordering, overdraw reduction,
// simplification, meshlet clustering and compact buffer codecs.
//
// All functions operate on caller-owned slices and never retain them.
// The package keeps no global state and is safe for concurrent use on
// independent buffers.
package meshopt

import "errors"

// Error taxonomy.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrBufferTooSmall  = errors.New("destination buffer too small")
	ErrDecode          = errors.New("malformed encoded data")
)

// Decode error refinements. Both match ErrDecode with errors.Is.
var (
	ErrUnsupportedVersion = &decodeError{"unsupported encoding version"}
	ErrTruncated          = &decodeError{"truncated encoded data"}
)

type decodeError struct{ msg string }

func (e *decodeError) Error() string { return e.msg }

// Is reports ErrDecode as a match so callers can test the broad category.
func (e *decodeError) Is(target error) bool { return target == ErrDecode }
