package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"efpak/pkg/efpak"
)

func TestListWalksEveryBlockWithoutError(t *testing.T) {
	dir := t.TempDir()
	pkgPath := filepath.Join(dir, "a.efpak")

	if err := createCmd.RunE(createCmd, []string{pkgPath}); err != nil {
		t.Fatalf("create: %v", err)
	}

	r, err := efpak.OpenFile(pkgPath)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	h, err := r.NextBlock()
	if err != nil {
		t.Fatalf("NextBlock: %v", err)
	}
	if h == nil || h.Type != efpak.TypeFormat {
		t.Fatalf("expected a FORMAT block from create, got %+v", h)
	}
	r.Close()

	if err := listCmd.RunE(listCmd, []string{pkgPath}); err != nil {
		t.Fatalf("list: %v", err)
	}
}

// TestListToleratesPathWithoutNulTerminator corrupts a FILE block's path
// terminator in place and checks that list still walks the whole package
// instead of aborting on the malformed block.
func TestListToleratesPathWithoutNulTerminator(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "payload.bin")
	if err := os.WriteFile(src, []byte("hello"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	pkgPath := filepath.Join(dir, "a.efpak")
	w, err := efpak.CreateFile(pkgPath)
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	if err := w.AddFile(src, "/corrupt/me"); err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	raw, err := os.ReadFile(pkgPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	needle := []byte("/corrupt/me\x00")
	idx := bytes.Index(raw, needle)
	if idx < 0 {
		t.Fatalf("did not find NUL-terminated path %q in package bytes", needle)
	}
	raw[idx+len(needle)-1] = 'X' // flip the terminating NUL to a non-zero byte
	if err := os.WriteFile(pkgPath, raw, 0644); err != nil {
		t.Fatalf("WriteFile (corrupted): %v", err)
	}

	if err := listCmd.RunE(listCmd, []string{pkgPath}); err != nil {
		t.Fatalf("list should tolerate a FILE block with no NUL in its declared path_len, got: %v", err)
	}
}
