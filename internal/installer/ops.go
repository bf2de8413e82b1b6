package installer

import (
	"io"

	"github.com/golang/glog"

	"efpak/internal/efpakerr"
	"efpak/internal/mbr"
	"efpak/pkg/efpak"
)

// ensureLayout computes the partition layout on the first DISK or PART
// block, from whichever MBR source applies (m is the target disk's sector
// 0 for PART, or the incoming image's own MBR for DISK).
func (in *Installer) ensureLayout(m *mbr.MBR) error {
	if in.layout != nil {
		return nil
	}
	if !mbr.IsValidSignature(m.Serialize()) {
		return efpakerr.New(efpakerr.Format, "MBR has no valid 0x55 0xAA signature")
	}
	l, err := computeLayout(m, in.disk.TotalSectors())
	if err != nil {
		return err
	}
	in.layout = l
	in.curMBR = m
	return nil
}

// installPart streams a PART block to the inactive slot of its target
// partition, updates the in-memory MBR entry, and publishes the new slot
// to the running kernel.
func (in *Installer) installPart(h *efpak.Header) error {
	if in.mode == modeDisk {
		return efpakerr.New(efpakerr.Operation, "PART block follows a DISK block in the same package")
	}
	in.mode = modePart

	if in.layout == nil {
		sector0, err := in.disk.ReadSectors(0, 1)
		if err != nil {
			return err
		}
		m, err := mbr.Parse(sector0)
		if err != nil {
			return err
		}
		if err := in.ensureLayout(m); err != nil {
			return err
		}
	}

	i := int(h.PartID)
	if i < 0 || i > 2 {
		return efpakerr.New(efpakerr.Unsupported, "unknown part_id %d", h.PartID)
	}

	sizeSectors := (h.RawDataSize + sectorSize - 1) / sectorSize
	if sizeSectors > in.layout.areaSize[i] {
		return efpakerr.New(efpakerr.Layout, "PART %s needs %d sectors, area holds only %d", h.PartID, sizeSectors, in.layout.areaSize[i])
	}

	wasValid := in.layout.partSize[i] != 0
	destOff := in.layout.targetOffset(i)

	written, err := streamToSectors(in.reader, in.disk, destOff, h.RawDataSize)
	if err != nil {
		return err
	}

	e := &in.curMBR.Entries[in.layout.mbrIndex[i]]
	mbr.SetEntryAddr(e, in.disk.Geometry(), uint32(destOff), uint32(written))
	switch h.PartID {
	case efpak.PartApp:
		e.Status = 0x00
		e.Type = mbr.TypeLinux
	case efpak.PartBoot:
		if !wasValid {
			e.Status = 0x00
		}
		e.Type = mbr.TypeFAT32LBA
	default:
		if !wasValid {
			e.Status = 0x00
		}
		e.Type = mbr.TypeLinux
	}
	in.dirty = true

	return in.publish(h.PartID, h.FsID, destOff, written)
}

// installDisk streams a whole-disk image: its leading MBR becomes the
// template for the layout, any grub/empty region ahead of the first
// managed partition is copied verbatim, and each managed partition is
// relocated into its fixed band.
func (in *Installer) installDisk(h *efpak.Header) error {
	if in.mode == modePart {
		return efpakerr.New(efpakerr.Operation, "DISK block follows a PART block in the same package")
	}
	if in.layout != nil {
		return efpakerr.New(efpakerr.Operation, "more than one DISK block in the same package")
	}
	in.mode = modeDisk

	mbrBuf, err := readExact(in.reader, mbr.Size)
	if err != nil {
		return err
	}
	m, err := mbr.Parse(mbrBuf)
	if err != nil {
		return err
	}
	if err := in.ensureLayout(m); err != nil {
		return err
	}
	l := in.layout

	if l.partOff[0] > 1 {
		grubSectors := l.partOff[0] - 1
		if _, err := streamToSectors(in.reader, in.disk, 1, grubSectors*sectorSize); err != nil {
			return err
		}
	}

	for i := 0; i < 3; i++ {
		if l.partSize[i] == 0 {
			continue
		}
		if err := in.reader.Seek(int64(l.partOff[i]) * sectorSize); err != nil {
			return err
		}
		written, err := streamToSectors(in.reader, in.disk, l.areaOff[i], l.partSize[i]*sectorSize)
		if err != nil {
			return err
		}
		e := &in.curMBR.Entries[l.mbrIndex[i]]
		mbr.SetEntryAddr(e, in.disk.Geometry(), uint32(l.areaOff[i]), uint32(written))
	}
	in.dirty = true
	return nil
}

// installFile streams a FILE block's payload to its absolute destination
// path in the running (not newly-installed) filesystem.
func (in *Installer) installFile(h *efpak.Header) error {
	if h.Path == "" || h.Path[0] != '/' {
		return efpakerr.New(efpakerr.Operation, "FILE destination %q is not absolute", h.Path)
	}

	if err := mkdirAllFile(h.Path); err != nil {
		return err
	}
	f, err := createFileForWrite(h.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	for {
		chunk, err := in.reader.Next(0)
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if _, err := f.Write(chunk); err != nil {
			return efpakerr.New(efpakerr.IO, "write %s: %v", h.Path, err)
		}
	}
	glog.V(1).Infof("wrote FILE block to %s", h.Path)
	return nil
}
