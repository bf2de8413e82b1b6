// Package diskio opens a raw block device, discovers its geometry and
// existing partition table from ioctls and sysfs, and provides
// sector-aligned read/write plus the BLKPG calls the installer uses to
// publish a freshly written partition to the running kernel. Grounded on
// the original installer's disk_open/disk_read/disk_write plus the
// buffered/flushing writer shape used by other block-device installers in
// the ecosystem.
package diskio

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"

	"efpak/internal/efpakerr"
	"efpak/internal/mbr"
)

// SectorSize is the only physical block size the installer supports.
const SectorSize = 512

// Linux ioctl request numbers this package relies on. These are fixed
// kernel ABI constants (linux/fs.h, linux/hdreg.h, linux/blkpg.h); x/sys/unix
// does not name all of them so they're declared directly, the same way the
// original C source refers to the macros from those headers.
const (
	ioctlBLKGETSIZE   = 0x1260
	ioctlBLKPBSZGET   = 0x127b
	ioctlHDIOGETGEO   = 0x0301
	ioctlBLKPG        = 0x1269
	blkpgAddPartition = 1
	blkpgDelPartition = 2
	devnameLen        = 64
)

// hdGeometry mirrors struct hd_geometry from linux/hdreg.h.
type hdGeometry struct {
	Heads     uint8
	Sectors   uint8
	Cylinders uint16
	Start     uint64
}

// blkpgIoctlArg mirrors struct blkpg_ioctl_arg from linux/blkpg.h.
type blkpgIoctlArg struct {
	Op      int32
	Flags   int32
	Datalen int32
	Data    uintptr
}

// blkpgPartition mirrors struct blkpg_partition from linux/blkpg.h.
type blkpgPartition struct {
	Start   int64
	Length  int64
	Pno     int32
	Devname [devnameLen]byte
	Volname [devnameLen]byte
}

// Partition is one entry discovered from /sys/class/block/<name>p<i>.
type Partition struct {
	Index  int
	Offset uint64 // sectors
	Size   uint64 // sectors
}

// Disk is an open raw block device.
type Disk struct {
	Name         string // e.g. "mmcblk0", without /dev or partition suffix
	f            *os.File
	major        uint32
	SectorSize   uint64
	totalSectors uint64
	geometry     mbr.Geometry
	Partitions   []Partition
}

// DeviceName returns the disk's base name, e.g. "mmcblk0".
func (d *Disk) DeviceName() string { return d.Name }

// TotalSectors returns the disk's size in 512-byte sectors, as reported by
// BLKGETSIZE.
func (d *Disk) TotalSectors() uint64 { return d.totalSectors }

// Geometry returns the CHS geometry used to fill legacy MBR entry fields.
func (d *Disk) Geometry() mbr.Geometry { return d.geometry }

// Mkdev builds a device number for a partition of this disk with the given
// minor number, for use with unix.Mknod.
func (d *Disk) Mkdev(minor int) uint64 {
	return unix.Mkdev(d.major, uint32(minor))
}

// ResolveRootDevice follows /dev/root to the underlying disk's base name,
// stripping the trailing partition digit (and, for devices like mmcblkN,
// the "pN" suffix).
func ResolveRootDevice() (string, error) {
	target, err := os.Readlink("/dev/root")
	if err != nil {
		return "", efpakerr.New(efpakerr.IO, "readlink /dev/root: %v", err)
	}
	name := filepath.Base(target)
	return stripPartitionSuffix(name), nil
}

func stripPartitionSuffix(name string) string {
	if i := strings.LastIndexByte(name, 'p'); i > 0 {
		if _, err := strconv.Atoi(name[i+1:]); err == nil {
			return name[:i]
		}
	}
	for len(name) > 0 && name[len(name)-1] >= '0' && name[len(name)-1] <= '9' {
		name = name[:len(name)-1]
	}
	return name
}

// Open opens /dev/<name> read-write with O_SYNC, and discovers geometry,
// size, and the existing partition table.
func Open(name string) (*Disk, error) {
	path := "/dev/" + name
	f, err := os.OpenFile(path, os.O_RDWR|unix.O_SYNC, 0)
	if err != nil {
		return nil, efpakerr.New(efpakerr.IO, "open %s: %v", path, err)
	}

	d := &Disk{Name: name, f: f}

	var stat unix.Stat_t
	if err := unix.Fstat(int(f.Fd()), &stat); err != nil {
		f.Close()
		return nil, efpakerr.New(efpakerr.IO, "fstat %s: %v", path, err)
	}
	d.major = unix.Major(stat.Rdev)

	pbsz, err := ioctlUint64(f, ioctlBLKPBSZGET)
	if err != nil {
		f.Close()
		return nil, efpakerr.New(efpakerr.IO, "BLKPBSZGET %s: %v", path, err)
	}
	if pbsz != SectorSize {
		f.Close()
		return nil, efpakerr.New(efpakerr.Layout, "%s has physical block size %d, want %d", path, pbsz, SectorSize)
	}
	d.SectorSize = pbsz

	total, err := ioctlUint64(f, ioctlBLKGETSIZE)
	if err != nil {
		f.Close()
		return nil, efpakerr.New(efpakerr.IO, "BLKGETSIZE %s: %v", path, err)
	}
	d.totalSectors = total

	var geo hdGeometry
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), ioctlHDIOGETGEO, uintptr(unsafe.Pointer(&geo)))
	if errno != 0 {
		d.geometry = mbr.Geometry{Heads: 255, SectorsPerTrk: 63}
	} else {
		d.geometry = mbr.Geometry{Heads: uint32(geo.Heads), SectorsPerTrk: uint32(geo.Sectors)}
	}

	d.Partitions = discoverPartitions(name)
	return d, nil
}

func discoverPartitions(name string) []Partition {
	var parts []Partition
	for i := 1; ; i++ {
		base := fmt.Sprintf("/sys/class/block/%sp%d", name, i)
		off, errOff := readSysfsUint(base + "/start")
		size, errSize := readSysfsUint(base + "/size")
		if errOff != nil || errSize != nil {
			break
		}
		parts = append(parts, Partition{Index: i, Offset: off, Size: size})
	}
	return parts
}

func readSysfsUint(path string) (uint64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
}

func ioctlUint64(f *os.File, req uintptr) (uint64, error) {
	var v uint64
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), req, uintptr(unsafe.Pointer(&v)))
	if errno != 0 {
		return 0, errno
	}
	return v, nil
}

// ReadSectors reads n sectors starting at sector off.
func (d *Disk) ReadSectors(off, n uint64) ([]byte, error) {
	buf := make([]byte, n*SectorSize)
	read, err := unix.Pread(int(d.f.Fd()), buf, int64(off*SectorSize))
	if err != nil {
		return nil, efpakerr.New(efpakerr.IO, "read sector %d: %v", off, err)
	}
	if uint64(read) != uint64(len(buf)) {
		return nil, efpakerr.New(efpakerr.IO, "short read at sector %d: got %d bytes, want %d", off, read, len(buf))
	}
	return buf, nil
}

// WriteSectors writes data, whose length must be a multiple of SectorSize,
// starting at sector off.
func (d *Disk) WriteSectors(off uint64, data []byte) error {
	if len(data)%SectorSize != 0 {
		return efpakerr.New(efpakerr.Layout, "write of %d bytes is not sector-aligned", len(data))
	}
	n, err := unix.Pwrite(int(d.f.Fd()), data, int64(off*SectorSize))
	if err != nil {
		return efpakerr.New(efpakerr.IO, "write sector %d: %v", off, err)
	}
	if n != len(data) {
		return efpakerr.New(efpakerr.IO, "short write at sector %d: wrote %d of %d bytes", off, n, len(data))
	}
	return nil
}

// AddPartition publishes a new partition to the running kernel via
// BLKPG_ADD_PARTITION. offSectors/sizeSectors are converted to bytes.
func (d *Disk) AddPartition(pno int, offSectors, sizeSectors uint64, devname string) error {
	return d.blkpg(blkpgAddPartition, pno, offSectors, sizeSectors, devname)
}

// DelPartition removes a partition the installer added, as part of
// rolling back a failed mount.
func (d *Disk) DelPartition(pno int, devname string) error {
	return d.blkpg(blkpgDelPartition, pno, 0, 0, devname)
}

func (d *Disk) blkpg(op int, pno int, offSectors, sizeSectors uint64, devname string) error {
	var part blkpgPartition
	part.Start = int64(offSectors * SectorSize)
	part.Length = int64(sizeSectors * SectorSize)
	part.Pno = int32(pno)
	copy(part.Devname[:], devname)

	arg := blkpgIoctlArg{
		Op:      int32(op),
		Datalen: int32(unsafe.Sizeof(part)),
		Data:    uintptr(unsafe.Pointer(&part)),
	}

	_, _, errno := unix.Syscall(unix.SYS_IOCTL, d.f.Fd(), ioctlBLKPG, uintptr(unsafe.Pointer(&arg)))
	if errno != 0 {
		return efpakerr.New(efpakerr.IO, "BLKPG op %d on partition %d: %v", op, pno, errno)
	}
	return nil
}

// Close closes the underlying file descriptor.
func (d *Disk) Close() error {
	if err := d.f.Close(); err != nil {
		return efpakerr.New(efpakerr.IO, "close disk: %v", err)
	}
	return nil
}
