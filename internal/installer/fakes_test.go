package installer

import (
	"io/fs"

	"efpak/internal/mbr"
)

// fakeDisk is an in-memory stand-in for *diskio.Disk: it records every
// sector write and BLKPG call instead of touching a real block device, so
// Installer.Run can be driven end-to-end in a test.
type fakeDisk struct {
	total uint64
	geom  mbr.Geometry
	name  string

	sector0 []byte
	writes  []diskWrite
	adds    []addCall
	dels    []delCall

	readErr  error
	writeErr error
	addErr   error
	delErr   error
}

type diskWrite struct {
	off  uint64
	data []byte
}

type addCall struct {
	pno                     int
	offSectors, sizeSectors uint64
	devname                 string
}

type delCall struct {
	pno     int
	devname string
}

func newFakeDisk(total uint64) *fakeDisk {
	return &fakeDisk{
		total: total,
		geom:  mbr.Geometry{Heads: 255, SectorsPerTrk: 63},
		name:  "fakedisk0",
	}
}

func (d *fakeDisk) TotalSectors() uint64   { return d.total }
func (d *fakeDisk) Geometry() mbr.Geometry { return d.geom }
func (d *fakeDisk) DeviceName() string     { return d.name }
func (d *fakeDisk) Mkdev(minor int) uint64 { return uint64(minor) }

func (d *fakeDisk) ReadSectors(off, n uint64) ([]byte, error) {
	if d.readErr != nil {
		return nil, d.readErr
	}
	buf := make([]byte, n*sectorSize)
	if off == 0 && d.sector0 != nil {
		copy(buf, d.sector0)
	}
	return buf, nil
}

func (d *fakeDisk) WriteSectors(off uint64, data []byte) error {
	if d.writeErr != nil {
		return d.writeErr
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	d.writes = append(d.writes, diskWrite{off: off, data: cp})
	if off == 0 {
		d.sector0 = cp
	}
	return nil
}

func (d *fakeDisk) AddPartition(pno int, offSectors, sizeSectors uint64, devname string) error {
	d.adds = append(d.adds, addCall{pno, offSectors, sizeSectors, devname})
	return d.addErr
}

func (d *fakeDisk) DelPartition(pno int, devname string) error {
	d.dels = append(d.dels, delCall{pno, devname})
	return d.delErr
}

// fakeMountOps is an in-memory stand-in for realMountOps: it records every
// call instead of touching device nodes, mount points, or the kernel mount
// table, so publishSlot's rollback chain can be driven in a test.
type fakeMountOps struct {
	existing map[string]bool

	mknodCalls      []string
	mkdirCalls      []string
	mountCalls      []mountCall
	unmountCalls    []string
	removeNodeCalls []string
	removeDirCalls  []string

	mknodErr error
	mkdirErr error
	mountErr error
}

type mountCall struct {
	devPath, mountPoint, fsType string
	flags                      uintptr
}

func (m *fakeMountOps) stat(path string) error {
	if m.existing[path] {
		return nil
	}
	return fs.ErrNotExist
}

func (m *fakeMountOps) mknod(path string, dev uint64) error {
	m.mknodCalls = append(m.mknodCalls, path)
	if m.mknodErr != nil {
		return m.mknodErr
	}
	if m.existing == nil {
		m.existing = map[string]bool{}
	}
	m.existing[path] = true
	return nil
}

func (m *fakeMountOps) mkdirAll(path string) error {
	m.mkdirCalls = append(m.mkdirCalls, path)
	return m.mkdirErr
}

func (m *fakeMountOps) mount(devPath, mountPoint, fsType string, flags uintptr) error {
	m.mountCalls = append(m.mountCalls, mountCall{devPath, mountPoint, fsType, flags})
	return m.mountErr
}

func (m *fakeMountOps) unmount(mountPoint string) error {
	m.unmountCalls = append(m.unmountCalls, mountPoint)
	return nil
}

func (m *fakeMountOps) removeNode(path string) error {
	m.removeNodeCalls = append(m.removeNodeCalls, path)
	return nil
}

func (m *fakeMountOps) removeDir(path string) error {
	m.removeDirCalls = append(m.removeDirCalls, path)
	return nil
}
