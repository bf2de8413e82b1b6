package installer

import (
	"efpak/internal/efpakerr"
	"efpak/internal/mbr"
)

const (
	// sectorSize matches diskio.SectorSize; duplicated here as an untyped
	// constant so layout math stays in one place with the sizes below.
	sectorSize = 512

	emptySectors = (sectorSize + 2*1024*1024) / sectorSize
	bootSectors  = 2 * 256 * 1024 * 1024 / sectorSize
	rootSectors  = 2 * 512 * 1024 * 1024 / sectorSize
	appSectors   = 2 * 512 * 1024 * 1024 / sectorSize

	// maxSectors caps layout computation at 4 GiB, per spec.
	maxSectors = 0x800000
)

// partLayout is the install_get_part_layout result: where the boot/root/app
// managed entries live in the MBR's table, the fixed band each maps to, and
// whatever offset/size that MBR entry currently declares (zero size if the
// entry is absent or invalid).
type partLayout struct {
	bootIndex int
	mbrIndex  [3]int
	areaOff   [3]uint64
	areaSize  [3]uint64
	partOff   [3]uint64
	partSize  [3]uint64
}

// computeLayout derives a partLayout from m (either the target disk's
// current sector 0, for a PART install, or the incoming image's own MBR,
// for a DISK install) and the disk's total sector count.
func computeLayout(m *mbr.MBR, diskSectors uint64) (*partLayout, error) {
	bootIndex := m.FindActive()
	if bootIndex > 1 {
		return nil, efpakerr.New(efpakerr.Layout, "active partition index %d leaves no room for boot/root/app", bootIndex)
	}

	l := &partLayout{bootIndex: bootIndex}

	emptyEnd := uint64(emptySectors)
	bootOff := emptyEnd
	rootOff := bootOff + bootSectors
	appOff := rootOff + rootSectors

	l.areaOff = [3]uint64{bootOff, rootOff, appOff}
	l.areaSize = [3]uint64{bootSectors, rootSectors, appSectors}

	limit := diskSectors
	if maxSectors < limit {
		limit = maxSectors
	}
	if appOff+appSectors > limit {
		return nil, efpakerr.New(efpakerr.Layout, "disk too small: app area ends at sector %d, disk/limit is %d sectors", appOff+appSectors, limit)
	}

	for i := 0; i < 3; i++ {
		idx := bootIndex + i
		l.mbrIndex[i] = idx
		e := &m.Entries[idx]
		if e.IsValid() {
			off, size := mbr.GetEntryAddr(e)
			l.partOff[i] = uint64(off)
			l.partSize[i] = uint64(size)
		}
	}
	return l, nil
}

// targetOffset picks the slot for partition index i: the lower half of the
// band unless that half is the one currently recorded as in use, in which
// case the upper half. With no pre-existing entry this always collapses to
// the lower half.
func (l *partLayout) targetOffset(i int) uint64 {
	if l.partSize[i] != 0 && l.partOff[i] == l.areaOff[i] {
		return l.areaOff[i] + l.areaSize[i]/2
	}
	return l.areaOff[i]
}
