// Package installer orchestrates writing an efpak package onto a raw block
// device: it maps package blocks to disk regions via internal/mbr, writes
// through internal/diskio, and commits the patched MBR only once every
// write has succeeded.
package installer

import (
	"context"
	"io"

	"github.com/golang/glog"

	"efpak/internal/efpakerr"
	"efpak/internal/mbr"
	"efpak/pkg/efpak"
)

type mode int

const (
	modeNone mode = iota
	modeDisk
	modePart
)

// Disk is the subset of *diskio.Disk the installer drives. It exists so
// tests can substitute an in-memory fake instead of opening a real block
// device; *diskio.Disk satisfies it as-is.
type Disk interface {
	TotalSectors() uint64
	Geometry() mbr.Geometry
	ReadSectors(off, n uint64) ([]byte, error)
	WriteSectors(off uint64, data []byte) error
	AddPartition(pno int, offSectors, sizeSectors uint64, devname string) error
	DelPartition(pno int, devname string) error
	DeviceName() string
	Mkdev(minor int) uint64
}

// Installer drives a single install run against one open disk and one open
// package reader. It owns the in-memory MBR from the point it's first read
// until the final commit write.
type Installer struct {
	disk   Disk
	reader *efpak.Reader

	layout *partLayout
	curMBR *mbr.MBR
	dirty  bool
	mode   mode

	// mountOps and publish are test seams: New defaults them to the real
	// syscall-backed implementation and to in.publishSlot, respectively.
	mountOps mountOps
	publish  func(partID efpak.PartID, fsID efpak.FsID, offSectors, sizeSectors uint64) error
}

// New builds an Installer over an already-open disk handle and package
// reader, positioned before any data block.
func New(disk Disk, reader *efpak.Reader) *Installer {
	in := &Installer{disk: disk, reader: reader, mountOps: realMountOps{}}
	in.publish = in.publishSlot
	return in
}

// Run drives the install loop to completion. ctx is checked once per block,
// between dispatches — never mid-write, so a cancellation never leaves a
// single disk write half-issued. On any error it returns immediately
// without committing the MBR; partition writes already issued land in the
// inactive slot and are harmless.
func (in *Installer) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return efpakerr.New(efpakerr.Operation, "install cancelled: %v", err)
		}

		h, err := in.reader.NextBlock()
		if err != nil {
			return err
		}
		if h == nil {
			break
		}

		// Clone before StartBlock/EndBlock: the header is a reader-owned
		// borrow, valid only until the next NextBlock call, and the
		// handlers below read its fields after pulling the payload.
		hc := h.Clone()

		switch hc.Type {
		case efpak.TypeFormat:
			glog.V(1).Infof("FORMAT block: vers=%d", hc.FormatVers)

		case efpak.TypeDisk:
			glog.Infof("installing DISK block (raw_data_size=%d)", hc.RawDataSize)
			if err := in.dispatch(&hc, in.installDisk); err != nil {
				return err
			}

		case efpak.TypePart:
			glog.Infof("installing PART block part_id=%s fs_id=%s (raw_data_size=%d)", hc.PartID, hc.FsID, hc.RawDataSize)
			if err := in.dispatch(&hc, in.installPart); err != nil {
				return err
			}

		case efpak.TypeFile:
			if hc.PathInvalid {
				glog.Warningf("skipping FILE block: path not NUL-terminated within declared length")
				continue
			}
			glog.Infof("installing FILE block path=%q (raw_data_size=%d)", hc.Path, hc.RawDataSize)
			if err := in.dispatch(&hc, in.installFile); err != nil {
				return err
			}

		default:
			glog.V(1).Infof("skipping %s block", hc.Type)
		}
	}

	if in.dirty {
		glog.Infof("committing MBR to sector 0")
		if err := in.disk.WriteSectors(0, in.curMBR.Serialize()); err != nil {
			return err
		}
	}
	return nil
}

// dispatch wraps a block handler with the required StartBlock/EndBlock pair.
func (in *Installer) dispatch(h *efpak.Header, fn func(h *efpak.Header) error) error {
	if err := in.reader.StartBlock(); err != nil {
		return err
	}
	err := fn(h)
	if endErr := in.reader.EndBlock(); endErr != nil && err == nil {
		err = endErr
	}
	return err
}

// readExact accumulates exactly n bytes from the reader's current block,
// erroring if the payload ends first.
func readExact(r *efpak.Reader, n int) ([]byte, error) {
	buf := make([]byte, 0, n)
	for len(buf) < n {
		chunk, err := r.Next(n - len(buf))
		if err == io.EOF {
			return nil, efpakerr.New(efpakerr.Format, "payload ended after %d of %d expected bytes", len(buf), n)
		}
		if err != nil {
			return nil, err
		}
		buf = append(buf, chunk...)
	}
	return buf, nil
}
