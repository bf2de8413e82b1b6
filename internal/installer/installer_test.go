package installer

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"efpak/internal/mbr"
	"efpak/pkg/efpak"
)

func buildPartPackage(t *testing.T, data []byte, id efpak.PartID, fs efpak.FsID) *efpak.Reader {
	t.Helper()
	dir := t.TempDir()
	img := filepath.Join(dir, "part.img")
	if err := os.WriteFile(img, data, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	pkgPath := filepath.Join(dir, "a.efpak")
	w, err := efpak.CreateFile(pkgPath)
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	if err := w.AddPart(img, id, fs); err != nil {
		t.Fatalf("AddPart: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r, err := efpak.OpenFile(pkgPath)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	return r
}

// activeBlankMBR returns an MBR with entry 0 marked active (FindActive
// picks index 0) and otherwise empty entries, matching how layout_test.go
// seeds a fresh disk.
func activeBlankMBR() *mbr.MBR {
	var m mbr.MBR
	m.Signature = [2]byte{0x55, 0xAA}
	m.Entries[0].Status = mbr.ActiveBit
	m.Entries[0].Type = mbr.TypeFAT32LBA
	return &m
}

func TestRunInstallsPartBlockPublishesAndCommitsMBR(t *testing.T) {
	data := bytes.Repeat([]byte{0xAB}, 1024) // 2 sectors, no compression
	r := buildPartPackage(t, data, efpak.PartBoot, efpak.FsVFAT)
	defer r.Close()

	disk := newFakeDisk(maxSectors)
	disk.sector0 = activeBlankMBR().Serialize()

	mops := &fakeMountOps{}
	in := New(disk, r)
	in.mountOps = mops

	if err := in.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(disk.adds) != 1 {
		t.Fatalf("expected 1 AddPartition call, got %d", len(disk.adds))
	}
	add := disk.adds[0]
	if add.pno != devMinor[efpak.PartBoot] {
		t.Errorf("AddPartition pno: got %d, want %d", add.pno, devMinor[efpak.PartBoot])
	}
	if add.offSectors != emptySectors {
		t.Errorf("AddPartition offSectors: got %d, want %d (lower half of boot band, no pre-existing slot)", add.offSectors, uint64(emptySectors))
	}
	if add.sizeSectors != 2 {
		t.Errorf("AddPartition sizeSectors: got %d, want 2", add.sizeSectors)
	}

	if len(mops.mountCalls) != 1 {
		t.Fatalf("expected 1 mount call, got %d", len(mops.mountCalls))
	}

	// The MBR commit must be the last disk write and must reflect the new
	// boot entry's offset/size.
	last := disk.writes[len(disk.writes)-1]
	if last.off != 0 {
		t.Fatalf("last disk write was to sector %d, want 0 (MBR commit)", last.off)
	}
	m, err := mbr.Parse(last.data)
	if err != nil {
		t.Fatalf("mbr.Parse(committed MBR): %v", err)
	}
	if m.Entries[0].FirstLBA != uint32(emptySectors) {
		t.Errorf("committed entry FirstLBA: got %d, want %d", m.Entries[0].FirstLBA, uint32(emptySectors))
	}
	if m.Entries[0].SectorCount != 2 {
		t.Errorf("committed entry SectorCount: got %d, want 2", m.Entries[0].SectorCount)
	}
	if m.Entries[0].Status != 0x00 {
		t.Errorf("committed entry Status: got 0x%02x, want 0x00 (no pre-existing valid slot)", m.Entries[0].Status)
	}
}

func TestRunResetsAppStatusAndPicksUpperSlotWhenAlreadyValid(t *testing.T) {
	data := bytes.Repeat([]byte{0xCD}, 512)
	r := buildPartPackage(t, data, efpak.PartApp, efpak.FsExt3)
	defer r.Close()

	m := activeBlankMBR()
	// Pre-seed the app entry (mbrIndex[2] = bootIndex+2 = 2) as already
	// holding a valid image in the lower half of its band, so installPart
	// sees wasValid=true and must target the upper half.
	appAreaOff := uint32(emptySectors + bootSectors + rootSectors)
	m.Entries[2].Status = 0x80 // would be forced to 0x00 for app regardless; asserted separately below
	m.Entries[2].Type = mbr.TypeLinux
	m.Entries[2].FirstLBA = appAreaOff
	m.Entries[2].SectorCount = 10

	disk := newFakeDisk(maxSectors)
	disk.sector0 = m.Serialize()
	in := New(disk, r)
	in.mountOps = &fakeMountOps{}

	if err := in.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(disk.adds) != 1 {
		t.Fatalf("expected 1 AddPartition call, got %d", len(disk.adds))
	}
	wantOff := uint64(appAreaOff) + appSectors/2
	if disk.adds[0].offSectors != wantOff {
		t.Errorf("AddPartition offSectors: got %d, want upper half %d", disk.adds[0].offSectors, wantOff)
	}

	last := disk.writes[len(disk.writes)-1]
	parsed, err := mbr.Parse(last.data)
	if err != nil {
		t.Fatalf("mbr.Parse: %v", err)
	}
	// installPart always resets an APP entry's status to 0x00, regardless
	// of wasValid.
	if parsed.Entries[2].Status != 0x00 {
		t.Errorf("app entry Status: got 0x%02x, want 0x00", parsed.Entries[2].Status)
	}
}

func TestRunDoesNotCommitMBROnPublishFailure(t *testing.T) {
	data := bytes.Repeat([]byte{0xEF}, 512)
	r := buildPartPackage(t, data, efpak.PartRoot, efpak.FsSquashfs)
	defer r.Close()

	disk := newFakeDisk(maxSectors)
	disk.sector0 = activeBlankMBR().Serialize()
	mops := &fakeMountOps{mountErr: os.ErrPermission}
	in := New(disk, r)
	in.mountOps = mops

	if err := in.Run(context.Background()); err == nil {
		t.Fatalf("expected Run to fail when mount fails")
	}

	for _, w := range disk.writes {
		if w.off == 0 {
			t.Errorf("MBR must not be committed when the install fails, but a write to sector 0 occurred")
		}
	}
	if len(disk.dels) != 1 {
		t.Errorf("expected rollback to call DelPartition once, got %d calls", len(disk.dels))
	}
	if len(mops.unmountCalls) == 0 {
		t.Errorf("expected rollback to attempt an unmount")
	}
}

func TestRunInstallsDiskBlockRelocatesGrubAndPartitions(t *testing.T) {
	m := activeBlankMBR()
	const partOff0 = 3 // leaves exactly 2 sectors of grub/empty region ahead of it
	const partSize0 = 2
	m.Entries[0].FirstLBA = partOff0
	m.Entries[0].SectorCount = partSize0

	mbrBytes := m.Serialize()
	grub := bytes.Repeat([]byte{0xAA}, int(partOff0-1)*sectorSize)
	bootData := bytes.Repeat([]byte{0xBB}, partSize0*sectorSize)
	image := append(append(append([]byte{}, mbrBytes...), grub...), bootData...)

	dir := t.TempDir()
	imgPath := filepath.Join(dir, "disk.img")
	if err := os.WriteFile(imgPath, image, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	pkgPath := filepath.Join(dir, "a.efpak")
	w, err := efpak.CreateFile(pkgPath)
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	if err := w.AddDisk(imgPath); err != nil {
		t.Fatalf("AddDisk: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r, err := efpak.OpenFile(pkgPath)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer r.Close()

	disk := newFakeDisk(maxSectors)
	in := New(disk, r)
	in.mountOps = &fakeMountOps{}

	if err := in.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var grubWrite, bootWrite *diskWrite
	for i := range disk.writes {
		w := &disk.writes[i]
		switch w.off {
		case 1:
			grubWrite = w
		case emptySectors:
			bootWrite = w
		}
	}
	if grubWrite == nil {
		t.Fatalf("no write to sector 1 (grub region): formula should copy part_off[0]-1 = %d sectors starting at sector 1", partOff0-1)
	}
	if !bytes.Equal(grubWrite.data, grub) {
		t.Errorf("grub region write mismatch: got %d bytes, want %d", len(grubWrite.data), len(grub))
	}
	if bootWrite == nil {
		t.Fatalf("no write to sector %d (boot area): boot partition should relocate to the fixed band", uint64(emptySectors))
	}
	if !bytes.Equal(bootWrite.data, bootData) {
		t.Errorf("boot area write mismatch: got %d bytes, want %d", len(bootWrite.data), len(bootData))
	}

	last := disk.writes[len(disk.writes)-1]
	if last.off != 0 {
		t.Fatalf("last write was to sector %d, want 0 (MBR commit)", last.off)
	}
	parsed, err := mbr.Parse(last.data)
	if err != nil {
		t.Fatalf("mbr.Parse: %v", err)
	}
	if parsed.Entries[0].FirstLBA != uint32(emptySectors) {
		t.Errorf("committed boot entry FirstLBA: got %d, want %d", parsed.Entries[0].FirstLBA, uint32(emptySectors))
	}
	if parsed.Entries[0].SectorCount != partSize0 {
		t.Errorf("committed boot entry SectorCount: got %d, want %d", parsed.Entries[0].SectorCount, partSize0)
	}
}
