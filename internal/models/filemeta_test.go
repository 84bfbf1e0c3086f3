package models

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestGenFileMeta(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	payload := []byte("hello localsend")
	if err := os.WriteFile(path, payload, 0o640); err != nil {
		t.Fatal(err)
	}

	meta, err := GenFileMeta(path)
	if err != nil {
		t.Fatalf("GenFileMeta: %v", err)
	}

	if meta.Id == "" {
		t.Error("descriptor must carry a generated id")
	}
	if meta.Filename != "notes.txt" {
		t.Errorf("Filename = %q; want notes.txt", meta.Filename)
	}
	if meta.Size != int64(len(payload)) {
		t.Errorf("Size = %d; want %d", meta.Size, len(payload))
	}
	if !strings.HasPrefix(meta.FileMIME, "text/plain") {
		t.Errorf("FileMIME = %q; want text/plain*", meta.FileMIME)
	}
	if len(meta.Checksum) != 64 {
		t.Errorf("Checksum length = %d; want 64", len(meta.Checksum))
	}
	if meta.Metadata == nil || meta.Metadata.Modified == "" {
		t.Error("descriptor must carry a modified timestamp")
	}
}

func TestGenFileMetaSniffsUnknownExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blob.xyzzy")
	if err := os.WriteFile(path, []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, 0o640); err != nil {
		t.Fatal(err)
	}

	meta, err := GenFileMeta(path)
	if err != nil {
		t.Fatalf("GenFileMeta: %v", err)
	}
	if meta.FileMIME == "" {
		t.Error("MIME must never be empty")
	}
}

func TestGenFileMetaMissingFile(t *testing.T) {
	if _, err := GenFileMeta(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("expected an error for a missing file")
	}
}
