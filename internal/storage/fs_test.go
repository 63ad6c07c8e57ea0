package storage

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFSStore(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFSStore(filepath.Join(dir, "blobs"), "https://lms.example/")
	if err != nil {
		t.Fatal(err)
	}

	key, err := s.Put("questions/../../escape.png", strings.NewReader("png"))
	if err != nil {
		t.Fatal(err)
	}
	if key != "escape.png" {
		t.Fatalf("key = %q", key)
	}
	if _, err := os.Stat(filepath.Join(dir, "escape.png")); !os.IsNotExist(err) {
		t.Fatal("blob written outside the base directory")
	}

	rc, err := s.Get("/escape.png")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := io.ReadAll(rc)
	rc.Close()
	if string(b) != "png" {
		t.Fatalf("content = %q", b)
	}

	u, err := s.SignedURL("questions/a b.png")
	if err != nil {
		t.Fatal(err)
	}
	if u != "https://lms.example/assets/questions/a%20b.png" {
		t.Errorf("url = %q", u)
	}

	if _, err := s.Put("..", strings.NewReader("")); !errors.Is(err, ErrBadKey) {
		t.Errorf("empty key: %v", err)
	}
}
