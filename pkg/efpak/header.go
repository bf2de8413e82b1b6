// Package efpak implements the efpak container format: a streamable,
// block-based binary layout carrying a disk image, partition images, loose
// files and hooks, each optionally gzip-framed. Reader walks an existing
// package; Writer authors a new one. All multi-byte integers are
// little-endian, matching the wire format exactly.
package efpak

import (
	"encoding/binary"

	"efpak/internal/efpakerr"
)

// BlockType identifies the shape of a block's tail fields.
type BlockType uint8

const (
	TypeFormat BlockType = 0
	TypeDisk   BlockType = 1
	TypePart   BlockType = 2
	TypeFile   BlockType = 3
	TypeHook   BlockType = 4
)

func (t BlockType) String() string {
	switch t {
	case TypeFormat:
		return "FORMAT"
	case TypeDisk:
		return "DISK"
	case TypePart:
		return "PART"
	case TypeFile:
		return "FILE"
	case TypeHook:
		return "HOOK"
	default:
		return "UNKNOWN"
	}
}

// CompKind identifies how a block's payload is framed on disk.
type CompKind uint8

const (
	CompNone CompKind = 0
	CompGzip CompKind = 1
)

// PartID identifies which of the three managed partitions a PART block
// targets.
type PartID uint8

const (
	PartBoot PartID = 0
	PartRoot PartID = 1
	PartApp  PartID = 2
)

func (p PartID) String() string {
	switch p {
	case PartBoot:
		return "boot"
	case PartRoot:
		return "root"
	case PartApp:
		return "app"
	default:
		return "unknown"
	}
}

// FsID identifies the filesystem an image formats a managed partition with.
type FsID uint8

const (
	FsVFAT     FsID = 0
	FsSquashfs FsID = 1
	FsExt2     FsID = 2
	FsExt3     FsID = 3
)

func (f FsID) String() string {
	switch f {
	case FsVFAT:
		return "vfat"
	case FsSquashfs:
		return "squashfs"
	case FsExt2:
		return "ext2"
	case FsExt3:
		return "ext3"
	default:
		return "unknown"
	}
}

// DefaultFsID returns the original tool's default filesystem for a
// partition kind, used by add_part when the caller doesn't name one.
func DefaultFsID(p PartID) FsID {
	switch p {
	case PartBoot:
		return FsVFAT
	case PartRoot:
		return FsSquashfs
	default:
		return FsExt3
	}
}

// Hook "when" bits: the points in the install lifecycle a hook may run at.
const (
	HookWhenNow   uint32 = 1 << 0
	HookWhenPreX  uint32 = 1 << 1
	HookWhenPostX uint32 = 1 << 2
	HookWhenCompl uint32 = 1 << 3
	HookWhenMBR   uint32 = 1 << 4
)

// Hook "exec" bits.
const (
	HookExecExecve uint32 = 1 << 0
)

// FormatSignature is the fixed 4-byte magic every package starts with.
var FormatSignature = [4]byte{'E', 'F', 'P', 'K'}

// sharedPrefixSize is the byte length of the fields common to every block:
// vers, type, comp (1 byte each), then header_size, comp_data_size,
// raw_data_size (8 bytes each).
const sharedPrefixSize = 3 + 8 + 8 + 8

// Header describes one block: the shared prefix plus whichever
// type-specific tail fields apply to Type. A Header returned by Reader is a
// borrow, valid only until the next call to NextBlock — copy it with Clone
// if it must outlive that call.
type Header struct {
	Vers         uint8
	Type         BlockType
	Comp         CompKind
	HeaderSize   uint64
	CompDataSize uint64
	RawDataSize  uint64

	// FORMAT
	FormatSig  [4]byte
	FormatVers uint8

	// PART
	PartID PartID
	FsID   FsID

	// FILE, HOOK
	Path string
	// PathInvalid is set when the declared path bytes contain no NUL
	// terminator: the block is structurally intact but its path can't be
	// trusted, so Path is left empty and callers must check this flag
	// instead of treating "" as a legitimate path.
	PathInvalid bool

	// HOOK
	HookWhen uint32
	HookExec uint32
}

// Clone returns a value that doesn't alias any reader-owned memory.
func (h *Header) Clone() Header {
	c := *h
	return c
}

// Describe renders every field relevant to Type, for the list subcommand.
// Mirrors the original tool's do_list output.
func (h *Header) Describe() string {
	base := fmtHeaderCommon(h)
	switch h.Type {
	case TypeFormat:
		return base + fmtFormatTail(h)
	case TypePart:
		return base + fmtPartTail(h)
	case TypeFile:
		return base + fmtFileTail(h)
	case TypeHook:
		return base + fmtHookTail(h)
	default:
		return base
	}
}

// minTailSize returns the minimum, fixed-size portion of a block's
// type-specific tail (the variable path bytes of FILE/HOOK are excluded;
// callers add path_len separately once they've read it).
func minTailSize(t BlockType) uint64 {
	switch t {
	case TypeFormat:
		return 4 + 1
	case TypeDisk:
		return 1
	case TypePart:
		return 2
	case TypeFile:
		return 2
	case TypeHook:
		return 4 + 4 + 2
	default:
		return 0
	}
}

// decodeHeader parses a block header starting at buf[0:], returning the
// parsed Header, whose HeaderSize the caller validates against the bytes
// actually available. buf must have at least
// sharedPrefixSize bytes; the tail is read from whatever follows.
func decodeHeader(buf []byte) (Header, error) {
	if len(buf) < sharedPrefixSize {
		return Header{}, efpakerr.New(efpakerr.Format, "truncated block header: need %d bytes, have %d", sharedPrefixSize, len(buf))
	}

	var h Header
	h.Vers = buf[0]
	h.Type = BlockType(buf[1])
	h.Comp = CompKind(buf[2])
	h.HeaderSize = binary.LittleEndian.Uint64(buf[3:11])
	h.CompDataSize = binary.LittleEndian.Uint64(buf[11:19])
	h.RawDataSize = binary.LittleEndian.Uint64(buf[19:27])

	if h.Comp != CompNone && h.Comp != CompGzip {
		return Header{}, efpakerr.New(efpakerr.Unsupported, "unknown compression scheme %d", h.Comp)
	}
	if h.Comp == CompNone && h.CompDataSize != h.RawDataSize {
		return Header{}, efpakerr.New(efpakerr.Format, "uncompressed block has comp_data_size %d != raw_data_size %d", h.CompDataSize, h.RawDataSize)
	}
	if h.HeaderSize < sharedPrefixSize+minTailSize(h.Type) {
		return Header{}, efpakerr.New(efpakerr.Format, "header_size %d too small for type %s tail", h.HeaderSize, h.Type)
	}

	tail := buf[sharedPrefixSize:]

	switch h.Type {
	case TypeFormat:
		if len(tail) < 5 {
			return Header{}, efpakerr.New(efpakerr.Format, "truncated FORMAT tail")
		}
		copy(h.FormatSig[:], tail[0:4])
		h.FormatVers = tail[4]
		if h.FormatSig != FormatSignature {
			return Header{}, efpakerr.New(efpakerr.Format, "bad FORMAT signature %q", h.FormatSig)
		}

	case TypeDisk:
		// One dummy byte, carries no information.

	case TypePart:
		if len(tail) < 2 {
			return Header{}, efpakerr.New(efpakerr.Format, "truncated PART tail")
		}
		h.PartID = PartID(tail[0])
		h.FsID = FsID(tail[1])
		if h.PartID > PartApp {
			return Header{}, efpakerr.New(efpakerr.Unsupported, "unknown part_id %d", tail[0])
		}
		if h.FsID > FsExt3 {
			return Header{}, efpakerr.New(efpakerr.Unsupported, "unknown fs_id %d", tail[1])
		}

	case TypeFile:
		path, ok, err := decodePath(tail, 0)
		if err != nil {
			return Header{}, err
		}
		if !ok {
			h.PathInvalid = true
		} else {
			h.Path = path
		}

	case TypeHook:
		if len(tail) < 8 {
			return Header{}, efpakerr.New(efpakerr.Format, "truncated HOOK tail")
		}
		h.HookWhen = binary.LittleEndian.Uint32(tail[0:4])
		h.HookExec = binary.LittleEndian.Uint32(tail[4:8])
		path, ok, err := decodePath(tail, 8)
		if err != nil {
			return Header{}, err
		}
		if !ok {
			h.PathInvalid = true
		} else {
			h.Path = path
		}

	default:
		return Header{}, efpakerr.New(efpakerr.Unsupported, "unknown block type %d", h.Type)
	}

	return h, nil
}

// decodePath reads a u16 path_len at off, then path_len bytes, returning the
// path without its trailing NUL. A declared length with no NUL inside it
// isn't a structural error: the block is otherwise intact, so decodePath
// reports ok=false rather than failing the whole header, leaving it to the
// caller to treat the block as invalid without aborting the stream.
func decodePath(tail []byte, off int) (path string, ok bool, err error) {
	if len(tail) < off+2 {
		return "", false, efpakerr.New(efpakerr.Format, "truncated path_len field")
	}
	pathLen := int(binary.LittleEndian.Uint16(tail[off : off+2]))
	start := off + 2
	if len(tail) < start+pathLen {
		return "", false, efpakerr.New(efpakerr.Format, "declared path_len %d exceeds available tail bytes", pathLen)
	}
	raw := tail[start : start+pathLen]
	nul := -1
	for i, b := range raw {
		if b == 0 {
			nul = i
			break
		}
	}
	if nul < 0 {
		return "", false, nil
	}
	return string(raw[:nul]), true, nil
}

func fmtHeaderCommon(h *Header) string {
	return sprintfCommon(h)
}
