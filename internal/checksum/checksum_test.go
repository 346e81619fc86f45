package checksum

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNew_UnsupportedAlgorithm(t *testing.T) {
	_, err := New("crc99", 0)
	if !errors.Is(err, ErrUnsupportedAlgorithm) {
		t.Fatalf("expected ErrUnsupportedAlgorithm, got %v", err)
	}
	if !strings.Contains(err.Error(), "sha256") {
		t.Errorf("error should enumerate supported algorithms: %v", err)
	}
}

func TestBytes_KnownVectors(t *testing.T) {
	tests := []struct {
		algorithm string
		input     string
		want      string
	}{
		{"md5", "abc", "900150983cd24fb0d6963f7d28e17f72"},
		{"sha1", "abc", "a9993e364706816aba3e25717850c26c9cd0d89d"},
		{"sha256", "abc", "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"},
		{"sha256", "", "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"},
		{"xxhash64", "", "ef46db3751d8e999"},
	}

	for _, tt := range tests {
		c, err := New(tt.algorithm, 0)
		if err != nil {
			t.Fatalf("New(%s): %v", tt.algorithm, err)
		}
		if got := c.Bytes([]byte(tt.input)); got != tt.want {
			t.Errorf("%s(%q) = %s, want %s", tt.algorithm, tt.input, got, tt.want)
		}
	}
}

func TestFile_MatchesBytes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")
	content := []byte(strings.Repeat("rotscan", 1000))
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	for _, name := range Supported() {
		c, err := New(name, 0)
		if err != nil {
			t.Fatalf("New(%s): %v", name, err)
		}
		fromFile, err := c.File(path)
		if err != nil {
			t.Fatalf("File(%s): %v", name, err)
		}
		if fromBytes := c.Bytes(content); fromFile != fromBytes {
			t.Errorf("%s: File=%s Bytes=%s", name, fromFile, fromBytes)
		}
	}
}

func TestFile_SmallBlockSize(t *testing.T) {
	// A block size smaller than the file forces multiple read iterations.
	dir := t.TempDir()
	path := filepath.Join(dir, "blocks.bin")
	content := []byte(strings.Repeat("x", 1000))
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	small, err := New("sha256", 64)
	if err != nil {
		t.Fatal(err)
	}
	big, err := New("sha256", 0)
	if err != nil {
		t.Fatal(err)
	}

	a, err := small.File(path)
	if err != nil {
		t.Fatal(err)
	}
	b, err := big.File(path)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("digest differs across block sizes: %s vs %s", a, b)
	}
}

func TestFile_Unreadable(t *testing.T) {
	c, err := New("sha256", 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.File(filepath.Join(t.TempDir(), "does-not-exist")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestSupported_IncludesRequiredSet(t *testing.T) {
	have := make(map[string]bool)
	for _, name := range Supported() {
		have[name] = true
		if _, ok := AlgorithmInfo(name); !ok {
			t.Errorf("no info for supported algorithm %s", name)
		}
	}
	for _, want := range []string{"md5", "sha1", "sha256", "sha512", "blake2b", "xxhash64"} {
		if !have[want] {
			t.Errorf("missing algorithm %s", want)
		}
	}
}
