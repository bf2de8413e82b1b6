package cmd

import (
	"testing"

	"efpak/pkg/efpak"
)

func TestParsePartID(t *testing.T) {
	cases := map[string]efpak.PartID{"boot": efpak.PartBoot, "root": efpak.PartRoot, "app": efpak.PartApp}
	for in, want := range cases {
		got, err := parsePartID(in)
		if err != nil {
			t.Errorf("parsePartID(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("parsePartID(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := parsePartID("swap"); err == nil {
		t.Errorf("expected an error for an unknown partition name")
	}
}

func TestParseFsID(t *testing.T) {
	cases := map[string]efpak.FsID{"vfat": efpak.FsVFAT, "squash": efpak.FsSquashfs, "ext2": efpak.FsExt2, "ext3": efpak.FsExt3}
	for in, want := range cases {
		got, err := parseFsID(in)
		if err != nil {
			t.Errorf("parseFsID(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("parseFsID(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := parseFsID("ntfs"); err == nil {
		t.Errorf("expected an error for an unknown filesystem name")
	}
}

func TestAddPartDefaultsFilesystemByPartitionKind(t *testing.T) {
	cases := map[efpak.PartID]efpak.FsID{
		efpak.PartBoot: efpak.FsVFAT,
		efpak.PartRoot: efpak.FsSquashfs,
		efpak.PartApp:  efpak.FsExt3,
	}
	for part, want := range cases {
		if got := efpak.DefaultFsID(part); got != want {
			t.Errorf("DefaultFsID(%v) = %v, want %v", part, got, want)
		}
	}
}
