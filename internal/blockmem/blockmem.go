// Package blockmem streams the raw payload bytes of a single efpak block,
// hiding whether that block was stored compressed or uncompressed behind a
// small tagged interface. The two variants — Ram and Inflate — mirror the
// original C design's ram_mem_t/inflate_mem_t pair; callers select one at
// construction time based on a block's comp field and never branch on it
// again. Both are a uniform "seek + next-chunk" view, per the design notes:
// a pair of interface implementations rather than function-pointer dispatch.
package blockmem

import (
	"io"

	"efpak/internal/codec"
	"efpak/internal/efpakerr"
)

// ChunkSize is the default unit Next hands back when called with size <= 0.
// It matches codec.DefaultChunkSize so a Ram and an Inflate reader feed an
// installer write loop identically sized chunks regardless of which one is
// in play.
const ChunkSize = codec.DefaultChunkSize

// Reader streams a block's decompressed payload. Next returns io.EOF once
// every byte has been produced. Seek takes an absolute logical offset into
// the decompressed payload; Ram permits arbitrary jumps, Inflate is
// forward-only (seeking backward is an error).
type Reader interface {
	// Next returns up to size bytes of payload (ChunkSize if size <= 0).
	Next(size int) ([]byte, error)
	// Seek moves the logical read cursor to an absolute payload offset.
	Seek(off int64) error
	// Close releases any resources the reader holds. Both Ram's and
	// Inflate's Close are no-ops.
	Close() error
}

// Ram streams payload bytes straight out of an in-memory slice — used for
// blocks stored uncompressed (comp == NONE).
type Ram struct {
	data         []byte
	pos          int64
	initialEmpty bool
	emptyDone    bool
}

// NewRam wraps an already-resident, uncompressed block payload.
func NewRam(data []byte) *Ram {
	return &Ram{data: data, initialEmpty: len(data) == 0}
}

func (r *Ram) Next(size int) ([]byte, error) {
	if size <= 0 {
		size = ChunkSize
	}
	if r.pos >= int64(len(r.data)) {
		if r.initialEmpty && !r.emptyDone {
			r.emptyDone = true
			return r.data[0:0], nil
		}
		return nil, io.EOF
	}
	end := r.pos + int64(size)
	if end > int64(len(r.data)) {
		end = int64(len(r.data))
	}
	chunk := r.data[r.pos:end]
	r.pos = end
	return chunk, nil
}

func (r *Ram) Seek(off int64) error {
	if off < 0 || off > int64(len(r.data)) {
		return efpakerr.New(efpakerr.Format, "seek offset %d out of range [0,%d]", off, len(r.data))
	}
	r.pos = off
	return nil
}

func (r *Ram) Close() error { return nil }

// Inflate streams payload bytes out of a gzip-framed compressed block,
// decompressing on demand via internal/codec so a caller that only wants
// the first chunk never pays to inflate the whole block up front.
type Inflate struct {
	inf        *codec.Inflater
	buf        []byte
	logicalOff int64
	eof        bool
}

// NewInflate wraps a compressed block payload. compressed must hold the
// entire gzip stream; inflation still proceeds chunk by chunk.
func NewInflate(compressed []byte) (*Inflate, error) {
	inf := codec.NewInflater(ChunkSize)
	if err := inf.Reset(compressed); err != nil {
		return nil, err
	}
	return &Inflate{inf: inf}, nil
}

func (r *Inflate) fill() error {
	if len(r.buf) > 0 || r.eof {
		return nil
	}
	chunk, err := r.inf.Next()
	if err != nil {
		return err
	}
	if len(chunk) == 0 {
		r.eof = true
		return nil
	}
	r.buf = chunk
	return nil
}

func (r *Inflate) Next(size int) ([]byte, error) {
	if size <= 0 {
		size = ChunkSize
	}
	if err := r.fill(); err != nil {
		return nil, err
	}
	if len(r.buf) == 0 {
		return nil, io.EOF
	}
	n := size
	if n > len(r.buf) {
		n = len(r.buf)
	}
	out := r.buf[:n]
	r.buf = r.buf[n:]
	r.logicalOff += int64(n)
	return out, nil
}

// Seek is forward-only: the decoder cannot rewind without re-inflating from
// the start, so a backward seek is reported as an error rather than silently
// restarting the stream.
func (r *Inflate) Seek(off int64) error {
	if off < r.logicalOff {
		return efpakerr.New(efpakerr.Operation, "backward seek on compressed block payload (at %d, want %d)", r.logicalOff, off)
	}
	for r.logicalOff < off {
		want := off - r.logicalOff
		chunk, err := r.Next(int(want))
		if err == io.EOF {
			return efpakerr.New(efpakerr.Format, "seek past end of compressed block payload")
		}
		if err != nil {
			return err
		}
		if len(chunk) == 0 {
			return efpakerr.New(efpakerr.Format, "truncated compressed block payload during seek")
		}
	}
	return nil
}

func (r *Inflate) Close() error { return nil }
