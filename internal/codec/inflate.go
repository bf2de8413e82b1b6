// Package codec wraps the gzip-framed compressor/decompressor the efpak
// format uses for block payloads. It mirrors the contract of the original
// C implementation's efpak_inflate_t (feed one input slice, pull fixed-size
// output chunks) but built on klauspost/compress/gzip instead of a direct
// zlib binding.
package codec

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"

	"efpak/internal/efpakerr"
)

// DefaultChunkSize is the natural output chunk size for the inflater. It is
// a multiple of the 512-byte disk sector size so the installer can write
// whole sectors without re-buffering, and large enough to keep sector
// writes infrequent.
const DefaultChunkSize = 64 * 1024

// Inflater pulls fixed-size chunks of decompressed data out of a single,
// wholly-buffered gzip-framed input slice. It does not stream input: the
// compressed payload of an efpak block is already fully mapped in memory,
// so set_input/set_eoi from the original design collapse into a single
// Reset call.
type Inflater struct {
	chunkSize int
	gz        *gzip.Reader
	buf       *bytes.Reader
	eof       bool
}

// NewInflater allocates an inflater with the given output chunk size. A
// size of 0 selects DefaultChunkSize. When used to feed disk writes, size
// must be a multiple of 512.
func NewInflater(chunkSize int) *Inflater {
	if chunkSize == 0 {
		chunkSize = DefaultChunkSize
	}
	return &Inflater{chunkSize: chunkSize}
}

// Reset replaces the input window, equivalent to set_input followed by
// set_eoi: the whole compressed slice is known up front, there is no
// partial-input state to manage.
func (inf *Inflater) Reset(compressed []byte) error {
	inf.buf = bytes.NewReader(compressed)
	inf.eof = false

	var err error
	if inf.gz == nil {
		inf.gz, err = gzip.NewReader(inf.buf)
	} else {
		err = inf.gz.Reset(inf.buf)
	}
	if err != nil {
		return efpakerr.New(efpakerr.Compression, "gzip header: %v", err)
	}
	return nil
}

// Next returns the next decompressed chunk, sized at most the inflater's
// chunk size. It
// returns a zero-length slice once the stream is fully drained, mirroring
// next_output's "(NULL, 0)"/"is_done" distinction collapsed to a plain EOF
// since the whole input is already resident.
func (inf *Inflater) Next() ([]byte, error) {
	if inf.eof {
		return nil, nil
	}

	out := make([]byte, inf.chunkSize)
	n, err := io.ReadFull(inf.gz, out)
	switch {
	case err == nil:
		return out, nil
	case err == io.ErrUnexpectedEOF || err == io.EOF:
		inf.eof = true
		return out[:n], nil
	default:
		return nil, efpakerr.New(efpakerr.Compression, "inflate: %v", err)
	}
}

// IsDone reports whether every decompressed byte has been produced.
func (inf *Inflater) IsDone() bool {
	return inf.eof
}

// DeflateIfLarger compresses data with gzip framing at default compression
// when it exceeds threshold, returning the compressed bytes and true; data
// itself (unchanged) and false otherwise. Mirrors deflate_file_if_large's
// 64 KiB threshold from the original writer.
func DeflateIfLarger(data []byte, threshold int) ([]byte, bool, error) {
	if len(data) <= threshold {
		return data, false, nil
	}

	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, false, errors.Wrap(err, "compress block payload")
	}
	if err := w.Close(); err != nil {
		return nil, false, errors.Wrap(err, "flush compressed block payload")
	}
	return buf.Bytes(), true, nil
}
