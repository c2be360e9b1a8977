package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/lorekeeper/internal/checksum"
)

func tempRoot(t *testing.T, opts ...Option) *FS {
	t.Helper()
	fs, err := NewFS(t.TempDir(), opts...)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func TestWriteReadNested(t *testing.T) {
	s := tempRoot(t)
	if err := s.Write("people/ada.md", []byte("# Ada\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("people/ada.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "# Ada\n" {
		t.Errorf("content = %q", got)
	}
}

func TestDeleteRemovesFile(t *testing.T) {
	s := tempRoot(t)
	_ = s.Write("gone.md", []byte("bye"))
	if err := s.Delete("gone.md"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Read("gone.md"); err == nil {
		t.Error("expected error reading deleted file")
	}
	if err := s.Delete("gone.md"); err == nil {
		t.Error("expected error deleting missing file")
	}
}

func TestList_FiltersByExtension(t *testing.T) {
	s := tempRoot(t)
	_ = s.Write("a.md", []byte("a"))
	_ = s.Write("sub/b.md", []byte("b"))
	_ = s.Write("readme.txt", []byte("not md"))
	_ = s.Write(".trash/old.md", []byte("hidden"))

	items, err := s.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len = %d, want 2 (%v)", len(items), items)
	}
	for _, it := range items {
		if it.Path == "a.md" && it.Checksum != checksum.Sum([]byte("a")) {
			t.Errorf("checksum(a.md) = %q", it.Checksum)
		}
	}
}

func TestList_CustomExtensions(t *testing.T) {
	s := tempRoot(t, WithExtensions(".yaml", ".yml"))
	_ = s.Write("writer.yaml", []byte("name: Writer"))
	_ = s.Write("coder.yml", []byte("name: Coder"))
	_ = s.Write("notes.md", []byte("# ignored"))

	items, err := s.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 2 {
		t.Errorf("len = %d, want 2", len(items))
	}
	if !s.Matches("x.yml") || s.Matches("x.md") {
		t.Error("Matches disagrees with configured extensions")
	}
}

func TestTraversalBlocked(t *testing.T) {
	s := tempRoot(t)
	for _, p := range []string{"../../etc/passwd", "../outside.md", "/etc/shadow"} {
		if _, err := s.Read(p); err == nil {
			t.Errorf("expected error reading %q", p)
		}
		if err := s.Write(p, []byte("x")); err == nil {
			t.Errorf("expected error writing %q", p)
		}
	}
}

func TestWrite_OverwriteLeavesNoTemp(t *testing.T) {
	s := tempRoot(t)
	_ = s.Write("atomic.md", []byte("original"))
	if err := s.Write("atomic.md", []byte("updated")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, _ := s.Read("atomic.md")
	if string(got) != "updated" {
		t.Errorf("content = %q, want updated", got)
	}
	matches, _ := filepath.Glob(filepath.Join(s.Root(), ".lorekeeper-tmp-*"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestNewFS_InvalidRoot(t *testing.T) {
	if _, err := NewFS(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for non-existent dir")
	}
	f, _ := os.CreateTemp(t.TempDir(), "not-a-dir-*")
	_ = f.Close()
	if _, err := NewFS(f.Name()); err == nil {
		t.Error("expected error when root is a file")
	}
}
