// Package mbr parses and serializes a classic DOS master boot record: 446
// bytes of bootcode, four 16-byte partition entries, and a 2-byte 0x55/0xAA
// signature. It also implements the CHS<->LBA conversion the installer
// needs to keep both address forms in an entry in sync.
package mbr

import (
	"encoding/binary"

	"efpak/internal/efpakerr"
)

// Size is the fixed on-disk size of an MBR sector.
const Size = 512

// EntryCount is the number of partition entries an MBR carries.
const EntryCount = 4

const (
	bootCodeSize = 446
	entrySize    = 16
)

// Accepted partition types for managed entries.
const (
	TypeFAT32LBA uint8 = 0x0C
	TypeLinux    uint8 = 0x83
)

// ActiveBit marks an entry's status byte as the boot partition.
const ActiveBit uint8 = 0x80

// Entry is one 16-byte MBR partition table entry.
type Entry struct {
	Status      uint8
	FirstCHS    [3]byte
	Type        uint8
	LastCHS     [3]byte
	FirstLBA    uint32
	SectorCount uint32
}

// IsActive reports whether the entry's status bit 7 is set.
func (e *Entry) IsActive() bool {
	return e.Status&ActiveBit != 0
}

// IsValid reports whether status has no bits set below bit 7, and type is
// one of the accepted managed types.
func (e *Entry) IsValid() bool {
	if e.Status&^ActiveBit != 0 {
		return false
	}
	return e.Type == TypeFAT32LBA || e.Type == TypeLinux
}

// MBR is a parsed classic DOS master boot record.
type MBR struct {
	BootCode  [bootCodeSize]byte
	Entries   [EntryCount]Entry
	Signature [2]byte
}

// IsValidSignature reports whether buf's last two bytes are 0x55 0xAA. buf
// must be at least Size bytes.
func IsValidSignature(buf []byte) bool {
	if len(buf) < Size {
		return false
	}
	return buf[Size-2] == 0x55 && buf[Size-1] == 0xAA
}

// Parse decodes a 512-byte sector into an MBR.
func Parse(buf []byte) (*MBR, error) {
	if len(buf) < Size {
		return nil, efpakerr.New(efpakerr.Format, "MBR sector too short: %d bytes", len(buf))
	}
	if !IsValidSignature(buf) {
		return nil, efpakerr.New(efpakerr.Format, "bad MBR signature %02x %02x", buf[Size-2], buf[Size-1])
	}

	var m MBR
	copy(m.BootCode[:], buf[:bootCodeSize])

	off := bootCodeSize
	for i := 0; i < EntryCount; i++ {
		e := buf[off : off+entrySize]
		m.Entries[i] = Entry{
			Status:      e[0],
			FirstCHS:    [3]byte{e[1], e[2], e[3]},
			Type:        e[4],
			LastCHS:     [3]byte{e[5], e[6], e[7]},
			FirstLBA:    binary.LittleEndian.Uint32(e[8:12]),
			SectorCount: binary.LittleEndian.Uint32(e[12:16]),
		}
		off += entrySize
	}
	copy(m.Signature[:], buf[Size-2:])
	return &m, nil
}

// Serialize encodes m back into a 512-byte sector.
func (m *MBR) Serialize() []byte {
	buf := make([]byte, Size)
	copy(buf[:bootCodeSize], m.BootCode[:])

	off := bootCodeSize
	for i := 0; i < EntryCount; i++ {
		e := m.Entries[i]
		buf[off+0] = e.Status
		buf[off+1] = e.FirstCHS[0]
		buf[off+2] = e.FirstCHS[1]
		buf[off+3] = e.FirstCHS[2]
		buf[off+4] = e.Type
		buf[off+5] = e.LastCHS[0]
		buf[off+6] = e.LastCHS[1]
		buf[off+7] = e.LastCHS[2]
		binary.LittleEndian.PutUint32(buf[off+8:off+12], e.FirstLBA)
		binary.LittleEndian.PutUint32(buf[off+12:off+16], e.SectorCount)
		off += entrySize
	}
	buf[Size-2] = 0x55
	buf[Size-1] = 0xAA
	return buf
}

// FindActive returns the index of the first active entry, or EntryCount if
// none is active.
func (m *MBR) FindActive() int {
	for i := range m.Entries {
		if m.Entries[i].IsActive() {
			return i
		}
	}
	return EntryCount
}

// Geometry is the head/sector-per-track shape used for CHS<->LBA
// conversion. Cylinder count is implied, not required by the conversion.
type Geometry struct {
	Heads         uint32
	SectorsPerTrk uint32
}

// CHSToLBA converts a 3-byte CHS address to a 0-based LBA, per the standard
// DOS encoding: the top 2 bits of the cylinder occupy the top 2 bits of the
// second CHS byte, and the sector field is the bottom 6 bits, 1-based.
func (g Geometry) CHSToLBA(chs [3]byte) uint32 {
	head := uint32(chs[0])
	sector := uint32(chs[1] & 0x3F)
	cylinder := (uint32(chs[1]&0xC0) << 2) | uint32(chs[2])
	return (cylinder*g.Heads+head)*g.SectorsPerTrk + sector - 1
}

// LBAToCHS converts a 0-based LBA to a 3-byte CHS address.
func (g Geometry) LBAToCHS(lba uint32) [3]byte {
	spt := g.SectorsPerTrk
	hpc := g.Heads

	cylinder := lba / (spt * hpc)
	head := (lba / spt) % hpc
	sector := (lba % spt) + 1

	return [3]byte{
		byte(head),
		byte(sector) | byte((cylinder>>2)&0xC0),
		byte(cylinder),
	}
}

// SetEntryAddr writes both the CHS and LBA forms of offSectors/sizeSectors
// into e, keeping them in sync.
func SetEntryAddr(e *Entry, geom Geometry, offSectors, sizeSectors uint32) {
	e.FirstCHS = geom.LBAToCHS(offSectors)
	e.LastCHS = geom.LBAToCHS(offSectors + sizeSectors - 1)
	e.FirstLBA = offSectors
	e.SectorCount = sizeSectors
}

// GetEntryAddr reads the offset/size in sectors from e's LBA fields,
// preferred over CHS per the format's own convention.
func GetEntryAddr(e *Entry) (offSectors, sizeSectors uint32) {
	return e.FirstLBA, e.SectorCount
}
