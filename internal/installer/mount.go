package installer

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/golang/glog"
	"golang.org/x/sys/unix"

	"efpak/internal/efpakerr"
	"efpak/pkg/efpak"
)

// mountOps is the set of OS calls publishSlot needs beyond the Disk
// interface's BLKPG calls: device-node and mount-point management. It's a
// test seam, same purpose as the Disk interface; realMountOps is the
// production implementation and New installs it by default.
type mountOps interface {
	stat(path string) error
	mknod(path string, dev uint64) error
	mkdirAll(path string) error
	mount(devPath, mountPoint, fsType string, flags uintptr) error
	unmount(mountPoint string) error
	removeNode(path string) error
	removeDir(path string) error
}

type realMountOps struct{}

func (realMountOps) stat(path string) error {
	_, err := os.Stat(path)
	return err
}

func (realMountOps) mknod(path string, dev uint64) error {
	return unix.Mknod(path, unix.S_IFBLK|0600, int(dev))
}

func (realMountOps) mkdirAll(path string) error {
	return os.MkdirAll(path, 0755)
}

func (realMountOps) mount(devPath, mountPoint, fsType string, flags uintptr) error {
	return unix.Mount(devPath, mountPoint, fsType, flags, "")
}

func (realMountOps) unmount(mountPoint string) error {
	return unix.Unmount(mountPoint, 0)
}

func (realMountOps) removeNode(path string) error {
	return os.Remove(path)
}

func (realMountOps) removeDir(path string) error {
	return os.Remove(path)
}

// devMinor is the reserved kernel minor number for each newly-installed
// slot's partition device node.
var devMinor = map[efpak.PartID]int{
	efpak.PartBoot: 5,
	efpak.PartRoot: 6,
	efpak.PartApp:  7,
}

var mountPoint = map[efpak.PartID]string{
	efpak.PartBoot: "/tmp/new_boot",
	efpak.PartRoot: "/tmp/new_root",
	efpak.PartApp:  "/tmp/new_app",
}

func fsTypeName(id efpak.FsID) (string, error) {
	switch id {
	case efpak.FsVFAT:
		return "vfat", nil
	case efpak.FsSquashfs:
		return "squashfs", nil
	case efpak.FsExt2:
		return "ext2", nil
	case efpak.FsExt3:
		return "ext3", nil
	default:
		return "", efpakerr.New(efpakerr.Unsupported, "unknown fs_id %d", id)
	}
}

// publishSlot tells the running kernel about the newly-written partition,
// creates its device node and mount point, and mounts it — read-only for
// root, per spec. Any failure after BLKPG_ADD_PARTITION succeeds rolls the
// slot back: unmount, remove the mount point, unlink the node, and
// BLKPG_DEL_PARTITION, in that order.
func (in *Installer) publishSlot(partID efpak.PartID, fsID efpak.FsID, offSectors, sizeSectors uint64) error {
	minor := devMinor[partID]
	devPath := fmt.Sprintf("/dev/%sp%d", in.disk.DeviceName(), minor)
	mp := mountPoint[partID]

	if err := in.disk.AddPartition(minor, offSectors, sizeSectors, devPath); err != nil {
		return err
	}

	rollback := func(cause error) error {
		glog.Warningf("rolling back slot %s after %v", partID, cause)
		_ = in.mountOps.unmount(mp)
		_ = in.mountOps.removeDir(mp)
		_ = in.mountOps.removeNode(devPath)
		_ = in.disk.DelPartition(minor, devPath)
		return cause
	}

	if statErr := in.mountOps.stat(devPath); errors.Is(statErr, fs.ErrNotExist) {
		dev := in.disk.Mkdev(minor)
		if err := in.mountOps.mknod(devPath, dev); err != nil {
			return rollback(efpakerr.New(efpakerr.IO, "mknod %s: %v", devPath, err))
		}
	}

	if err := in.mountOps.mkdirAll(mp); err != nil {
		return rollback(efpakerr.New(efpakerr.IO, "mkdir -p %s: %v", mp, err))
	}

	_ = in.mountOps.unmount(mp) // best-effort: a stale prior mount shouldn't block us

	fsType, err := fsTypeName(fsID)
	if err != nil {
		return rollback(err)
	}
	flags := uintptr(0)
	if partID == efpak.PartRoot {
		flags |= unix.MS_RDONLY
	}
	if err := in.mountOps.mount(devPath, mp, fsType, flags); err != nil {
		return rollback(efpakerr.New(efpakerr.IO, "mount %s at %s: %v", devPath, mp, err))
	}

	return nil
}
