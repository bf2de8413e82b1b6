// Package efpakerr defines the error kinds shared by the package codec and
// the installer, so callers can distinguish failure classes with errors.As
// instead of matching strings.
package efpakerr

import "fmt"

// Kind classifies a failure the way the format and installer distinguish
// them internally: I/O, malformed container, compression, disk layout,
// unsupported field values, and illegal operation sequencing.
type Kind int

const (
	// IO covers any syscall failure: open, read, write, seek, ioctl, mount.
	IO Kind = iota
	// Format covers a bad signature, out-of-range offsets, a truncated
	// block, or an invalid MBR magic.
	Format
	// Compression covers a decoder returning an unexpected code, or a
	// compressed stream that ends before the declared size.
	Compression
	// Layout covers an active partition outside {0,1}, declared data
	// exceeding its target band, a device too small, or a sector size
	// other than 512.
	Layout
	// Unsupported covers an unknown block type, compression scheme,
	// filesystem, or partition id.
	Unsupported
	// Operation covers PART and DISK mixed in one package, or a FILE
	// destination path that isn't absolute.
	Operation
)

func (k Kind) String() string {
	switch k {
	case IO:
		return "io"
	case Format:
		return "format"
	case Compression:
		return "compression"
	case Layout:
		return "layout"
	case Unsupported:
		return "unsupported"
	case Operation:
		return "operation"
	default:
		return "unknown"
	}
}

// Error is a classified efpak failure. Wrap the underlying cause with
// pkg/errors at the call site; Error itself carries only the Kind and a
// short message so errors.As can recover the Kind regardless of how many
// layers of context have been stacked on top.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// New builds a classified error with a formatted message.
func New(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Is reports whether err (or anything it wraps) is an *Error of kind k.
func Is(err error, k Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Kind == k
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
