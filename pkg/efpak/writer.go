package efpak

import (
	"encoding/binary"
	"io"
	"io/fs"
	"os"
	"path"

	"golang.org/x/sys/unix"

	"efpak/internal/codec"
	"efpak/internal/efpakerr"
)

// compressThreshold is the payload size above which add_disk/add_part/
// add_file compress before writing, matching deflate_file_if_large in the
// original writer.
const compressThreshold = 64 * 1024

// Writer appends framed blocks to a package file. It never rewrites bytes
// already written: a failure partway through an Add* call leaves the file
// with, at most, one partial trailing block — this is an authoring tool,
// not a transactional store, so the caller discards the package on error.
type Writer struct {
	f *os.File
}

// CreateFile opens path for read-write, creating it if missing. If the file
// is empty (new), a FORMAT block is emitted immediately; otherwise writes
// resume at the current end of file.
func CreateFile(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, efpakerr.New(efpakerr.IO, "open %s: %v", path, err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, efpakerr.New(efpakerr.IO, "stat %s: %v", path, err)
	}

	w := &Writer{f: f}
	if fi.Size() == 0 {
		if err := w.writeFormatBlock(); err != nil {
			f.Close()
			return nil, err
		}
		return w, nil
	}

	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return nil, efpakerr.New(efpakerr.IO, "seek to end of %s: %v", path, err)
	}
	return w, nil
}

func (w *Writer) writeFormatBlock() error {
	h := Header{Vers: 0, Type: TypeFormat, Comp: CompNone, FormatSig: FormatSignature, FormatVers: 0}
	buf, err := buildHeaderBytes(&h)
	if err != nil {
		return err
	}
	return w.writeAll(buf)
}

// AddDisk appends a DISK block carrying the whole-disk image at path.
func (w *Writer) AddDisk(imagePath string) error {
	data, unmap, err := mmapFile(imagePath)
	if err != nil {
		return err
	}
	defer unmap()
	return w.writeDataBlock(TypeDisk, data, nil)
}

// AddPart appends a PART block carrying a single partition image.
func (w *Writer) AddPart(imagePath string, partID PartID, fsID FsID) error {
	data, unmap, err := mmapFile(imagePath)
	if err != nil {
		return err
	}
	defer unmap()
	return w.writeDataBlock(TypePart, data, func(h *Header) {
		h.PartID = partID
		h.FsID = fsID
	})
}

// AddFile appends a FILE block carrying local's contents, to be installed
// at the absolute path dest.
func (w *Writer) AddFile(local, dest string) error {
	if !path.IsAbs(dest) {
		return efpakerr.New(efpakerr.Operation, "FILE destination %q is not absolute", dest)
	}
	data, unmap, err := mmapFile(local)
	if err != nil {
		return err
	}
	defer unmap()
	return w.writeDataBlock(TypeFile, data, func(h *Header) {
		h.Path = dest
	})
}

// AddDir walks localDir recursively, adding a FILE block for every regular
// file found, destined at the matching path under destDir. Directories
// recurse; symlinks and special files are skipped, not followed — the
// original add_dir_rec only ever dispatched on S_ISREG/S_ISDIR.
func (w *Writer) AddDir(localDir, destDir string) error {
	return fs.WalkDir(os.DirFS(localDir), ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return efpakerr.New(efpakerr.IO, "walk %s: %v", p, err)
		}
		if p == "." {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return efpakerr.New(efpakerr.IO, "stat %s: %v", p, err)
		}
		mode := info.Mode()
		if d.IsDir() {
			if mode&os.ModeSymlink != 0 {
				return fs.SkipDir
			}
			return nil
		}
		if !mode.IsRegular() {
			return nil
		}
		return w.AddFile(path.Join(localDir, p), path.Join(destDir, p))
	})
}

// AddHook appends a HOOK block. dataPath may be empty, in which case the
// block carries no payload and path is read from the header alone (the
// "run this" form instead of the "stage this" form).
func (w *Writer) AddHook(dataPath, hookPath string, whenFlags, execFlags uint32) error {
	var data []byte
	if dataPath != "" {
		mapped, unmap, err := mmapFile(dataPath)
		if err != nil {
			return err
		}
		defer unmap()
		data = mapped
	}
	return w.writeDataBlock(TypeHook, data, func(h *Header) {
		h.HookWhen = whenFlags
		h.HookExec = execFlags
		h.Path = hookPath
	})
}

// writeDataBlock compresses data if it exceeds compressThreshold, builds a
// header of the given type (tailFn fills in type-specific fields), and
// writes header then payload.
func (w *Writer) writeDataBlock(t BlockType, data []byte, tailFn func(*Header)) error {
	compData, compressed, err := codec.DeflateIfLarger(data, compressThreshold)
	if err != nil {
		return err
	}
	comp := CompNone
	if compressed {
		comp = CompGzip
	}

	h := Header{
		Vers:         0,
		Type:         t,
		Comp:         comp,
		CompDataSize: uint64(len(compData)),
		RawDataSize:  uint64(len(data)),
	}
	if tailFn != nil {
		tailFn(&h)
	}

	buf, err := buildHeaderBytes(&h)
	if err != nil {
		return err
	}
	if err := w.writeAll(buf); err != nil {
		return err
	}
	return w.writeAll(compData)
}

func (w *Writer) writeAll(buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	if _, err := w.f.Write(buf); err != nil {
		return efpakerr.New(efpakerr.IO, "write: %v", err)
	}
	return nil
}

// Close flushes and closes the underlying file.
func (w *Writer) Close() error {
	if err := w.f.Close(); err != nil {
		return efpakerr.New(efpakerr.IO, "close: %v", err)
	}
	return nil
}

// buildHeaderBytes encodes h's shared prefix and type-specific tail,
// computing and filling in h.HeaderSize.
func buildHeaderBytes(h *Header) ([]byte, error) {
	tail, err := encodeTail(h)
	if err != nil {
		return nil, err
	}
	h.HeaderSize = sharedPrefixSize + uint64(len(tail))

	buf := make([]byte, h.HeaderSize)
	buf[0] = h.Vers
	buf[1] = byte(h.Type)
	buf[2] = byte(h.Comp)
	binary.LittleEndian.PutUint64(buf[3:11], h.HeaderSize)
	binary.LittleEndian.PutUint64(buf[11:19], h.CompDataSize)
	binary.LittleEndian.PutUint64(buf[19:27], h.RawDataSize)
	copy(buf[sharedPrefixSize:], tail)
	return buf, nil
}

func encodeTail(h *Header) ([]byte, error) {
	switch h.Type {
	case TypeFormat:
		buf := make([]byte, 5)
		copy(buf[0:4], FormatSignature[:])
		buf[4] = h.FormatVers
		return buf, nil

	case TypeDisk:
		return []byte{0}, nil

	case TypePart:
		return []byte{byte(h.PartID), byte(h.FsID)}, nil

	case TypeFile:
		return encodePath(h.Path), nil

	case TypeHook:
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint32(buf[0:4], h.HookWhen)
		binary.LittleEndian.PutUint32(buf[4:8], h.HookExec)
		return append(buf, encodePath(h.Path)...), nil

	default:
		return nil, efpakerr.New(efpakerr.Unsupported, "unknown block type %d", h.Type)
	}
}

// encodePath renders path as a u16 length-prefixed, NUL-terminated field.
func encodePath(p string) []byte {
	nulTerminated := p + "\x00"
	buf := make([]byte, 2+len(nulTerminated))
	binary.LittleEndian.PutUint16(buf[0:2], uint16(len(nulTerminated)))
	copy(buf[2:], nulTerminated)
	return buf
}

// mmapFile memory-maps path read-only for add_disk/add_part/add_file/
// add_hook, returning the mapping and a closer that unmaps it.
func mmapFile(path string) ([]byte, func() error, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, efpakerr.New(efpakerr.IO, "open %s: %v", path, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, nil, efpakerr.New(efpakerr.IO, "stat %s: %v", path, err)
	}
	if fi.Size() == 0 {
		return []byte{}, func() error { return nil }, nil
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(fi.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, nil, efpakerr.New(efpakerr.IO, "mmap %s: %v", path, err)
	}
	return data, func() error { return unix.Munmap(data) }, nil
}
