package fileutil_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"teanga/internal/fileutil"
)

func TestHashFileMatchesHashReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audio.bin")
	payload := []byte("is maith liom ceol traidisiúnta")
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	fromFile, err := fileutil.HashFile(path)
	if err != nil {
		t.Fatalf("HashFile: %v", err)
	}
	fromReader, n, err := fileutil.HashReader(strings.NewReader(string(payload)))
	if err != nil {
		t.Fatalf("HashReader: %v", err)
	}
	if fromFile != fromReader {
		t.Fatalf("digest mismatch: %q vs %q", fromFile, fromReader)
	}
	if n != int64(len(payload)) {
		t.Fatalf("expected %d bytes hashed, got %d", len(payload), n)
	}
	if !strings.HasPrefix(fromFile, fileutil.ChecksumPrefix) {
		t.Fatalf("digest missing prefix: %q", fromFile)
	}
	if !fileutil.ValidChecksum(fromFile) {
		t.Fatalf("ValidChecksum rejected %q", fromFile)
	}
}

func TestValidChecksumRejectsMalformed(t *testing.T) {
	for _, value := range []string{
		"",
		"sha256:",
		"sha256:zzzz",
		"md5:d41d8cd98f00b204e9800998ecf8427e",
		strings.Repeat("a", 64),
	} {
		if fileutil.ValidChecksum(value) {
			t.Errorf("ValidChecksum(%q) should be false", value)
		}
	}
}

func TestWriteFileAtomicLeavesNoTempOnSuccess(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "metadata.json")
	if err := fileutil.WriteFileAtomic(path, []byte(`{"ok":true}`), 0o644); err != nil {
		t.Fatalf("WriteFileAtomic: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != `{"ok":true}` {
		t.Fatalf("unexpected contents %q", data)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the published file, got %d entries", len(entries))
	}
}

func TestCopyFileVerified(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "dst.bin")
	if err := os.WriteFile(src, []byte("payload"), 0o644); err != nil {
		t.Fatalf("write src: %v", err)
	}
	if err := fileutil.CopyFileVerified(src, dst); err != nil {
		t.Fatalf("CopyFileVerified: %v", err)
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("read dst: %v", err)
	}
	if string(got) != "payload" {
		t.Fatalf("unexpected dst contents %q", got)
	}
}
