package efpak

import (
	"io"
	"os"

	"golang.org/x/sys/unix"

	"efpak/internal/blockmem"
	"efpak/internal/efpakerr"
)

// Reader walks the blocks of a package file in order and exposes each
// block's payload through a Block-memory back-end (Ram for comp=none,
// Inflate for comp=gzip). It mirrors the original istream: base/size of a
// memory-mapped package, a current offset, and the current header, valid
// only until the next call to NextBlock.
type Reader struct {
	data    []byte
	mapped  bool
	offset  int
	header  Header
	have    bool
	inBlock bool
	mem     blockmem.Reader
}

// OpenFile memory-maps path read-only and returns a Reader over it. The
// mapping is released by Close.
func OpenFile(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, efpakerr.New(efpakerr.IO, "open %s: %v", path, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, efpakerr.New(efpakerr.IO, "stat %s: %v", path, err)
	}
	size := int(fi.Size())
	if size == 0 {
		return NewReader(nil), nil
	}

	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, efpakerr.New(efpakerr.IO, "mmap %s: %v", path, err)
	}
	r := NewReader(data)
	r.mapped = true
	return r, nil
}

// NewReader wraps an already-resident package image (e.g. read via
// os.ReadFile, or a slice handed in by a test).
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// NextBlock advances past the previously yielded block (if any) and parses
// the header at the new offset. It returns (nil, nil) at end of stream. The
// returned Header aliases Reader-owned state: it is valid only until the
// next NextBlock call.
func (r *Reader) NextBlock() (*Header, error) {
	if r.inBlock {
		return nil, efpakerr.New(efpakerr.Operation, "NextBlock called while a block is still open")
	}

	if r.have {
		advance := r.header.HeaderSize + r.header.CompDataSize
		next := uint64(r.offset) + advance
		if next < uint64(r.offset) || next > uint64(len(r.data)) {
			return nil, efpakerr.New(efpakerr.Format, "block at offset %d overruns package (advance %d, total %d)", r.offset, advance, len(r.data))
		}
		r.offset = int(next)
	}

	if r.offset == len(r.data) {
		r.have = false
		return nil, nil
	}

	h, err := decodeHeader(r.data[r.offset:])
	if err != nil {
		return nil, err
	}
	if uint64(r.offset)+h.HeaderSize > uint64(len(r.data)) {
		return nil, efpakerr.New(efpakerr.Format, "header at offset %d extends past end of package", r.offset)
	}
	if uint64(r.offset)+h.HeaderSize+h.CompDataSize > uint64(len(r.data)) {
		return nil, efpakerr.New(efpakerr.Format, "block at offset %d declares more data than the package holds", r.offset)
	}

	r.header = h
	r.have = true
	return &r.header, nil
}

// StartBlock opens the current block's payload for reading. It must be
// called at most once per block yielded by NextBlock, and matched with
// EndBlock before the next NextBlock call.
func (r *Reader) StartBlock() error {
	if !r.have {
		return efpakerr.New(efpakerr.Operation, "StartBlock called with no current block")
	}
	if r.inBlock {
		return efpakerr.New(efpakerr.Operation, "StartBlock called twice for the same block")
	}

	payloadOff := r.offset + int(r.header.HeaderSize)
	payload := r.data[payloadOff : payloadOff+int(r.header.CompDataSize)]

	switch r.header.Comp {
	case CompNone:
		r.mem = blockmem.NewRam(payload)
	case CompGzip:
		inf, err := blockmem.NewInflate(payload)
		if err != nil {
			return err
		}
		r.mem = inf
	default:
		return efpakerr.New(efpakerr.Unsupported, "unknown compression scheme %d", r.header.Comp)
	}

	r.inBlock = true
	return nil
}

// EndBlock releases the current block's payload reader.
func (r *Reader) EndBlock() error {
	if !r.inBlock {
		return nil
	}
	err := r.mem.Close()
	r.mem = nil
	r.inBlock = false
	return err
}

// Next pulls the next chunk of the current block's decompressed payload (at
// most size bytes, or blockmem.ChunkSize if size <= 0). It returns io.EOF
// once the payload is exhausted.
func (r *Reader) Next(size int) ([]byte, error) {
	if !r.inBlock {
		return nil, efpakerr.New(efpakerr.Operation, "Next called outside StartBlock/EndBlock")
	}
	return r.mem.Next(size)
}

// Seek moves the current block's read cursor to an absolute payload offset.
func (r *Reader) Seek(off int64) error {
	if !r.inBlock {
		return efpakerr.New(efpakerr.Operation, "Seek called outside StartBlock/EndBlock")
	}
	return r.mem.Seek(off)
}

// ReadAll drains the remainder of the current block's payload into a single
// slice. Convenient for small blocks; the extract command reads every block
// this way, while the installer streams PART/DISK payloads chunk by chunk.
func (r *Reader) ReadAll() ([]byte, error) {
	var out []byte
	for {
		chunk, err := r.Next(0)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, chunk...)
	}
}

// Close auto-ends an open block and releases the memory mapping, if any.
func (r *Reader) Close() error {
	if err := r.EndBlock(); err != nil {
		return err
	}
	if r.mapped && r.data != nil {
		err := unix.Munmap(r.data)
		r.data = nil
		r.mapped = false
		if err != nil {
			return efpakerr.New(efpakerr.IO, "munmap: %v", err)
		}
	}
	return nil
}
