package installer

import (
	"io"
	"os"
	"path/filepath"

	"efpak/internal/efpakerr"
	"efpak/pkg/efpak"
)

// streamToSectors pulls chunks from r's current block, capped so a read
// never consumes more than the rawBytes remaining (the grub-region copy and
// the partition copies that follow it all draw from the same DISK block, so
// a read unbounded by rawBytes would run into whatever comes next in the
// stream), and writes them to disk at successive sector offsets starting at
// destOff. The final short chunk, if any, is zero-padded up to a whole
// sector; the caller's MBR entry records the padded size. It stops once
// rawBytes worth of payload has been consumed or the block runs out,
// whichever comes first.
func streamToSectors(r *efpak.Reader, disk Disk, destOff, rawBytes uint64) (writtenSectors uint64, err error) {
	cur := destOff
	var consumed uint64

	for consumed < rawBytes {
		want := rawBytes - consumed
		chunk, err := r.Next(int(want))
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, err
		}
		if len(chunk) == 0 {
			break
		}
		consumed += uint64(len(chunk))

		data := chunk
		if len(data)%sectorSize != 0 {
			padded := make([]byte, (len(data)/sectorSize+1)*sectorSize)
			copy(padded, data)
			data = padded
		}
		if err := disk.WriteSectors(cur, data); err != nil {
			return 0, err
		}
		cur += uint64(len(data)) / sectorSize
	}

	return cur - destOff, nil
}

func mkdirAllFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return efpakerr.New(efpakerr.IO, "mkdir -p %s: %v", dir, err)
	}
	return nil
}

func createFileForWrite(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0755)
	if err != nil {
		return nil, efpakerr.New(efpakerr.IO, "create %s: %v", path, err)
	}
	return f, nil
}
