package capability

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"shelf/internal/shelf"
)

func newTestStore(t *testing.T) *OSStore {
	t.Helper()
	return NewOSStore(nil, shelf.NewNopLogger(), shelf.RealClock{})
}

// makeLibraryDir creates a directory with a known mix of entries.
func makeLibraryDir(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	for name, content := range map[string]string{
		"a.pdf":  "pdf a",
		"b.PDF":  "pdf b, uppercase extension",
		"c.txt":  "not a pdf",
		"no-ext": "no extension",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatalf("writing %s: %v", name, err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub.pdf"), 0755); err != nil {
		t.Fatalf("creating subdirectory: %v", err)
	}
	// A dangling symlink is listable but not a regular file; it must be
	// skipped without failing the whole scan.
	if err := os.Symlink(filepath.Join(dir, "gone"), filepath.Join(dir, "ghost.pdf")); err != nil {
		t.Fatalf("creating dangling symlink: %v", err)
	}
	return dir
}

func TestOSStore_Resolve(t *testing.T) {
	s := newTestStore(t)
	dir := t.TempDir()

	ref, err := s.Resolve(dir)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if ref.Identity() != dir {
		t.Errorf("Identity() = %q, want %q", ref.Identity(), dir)
	}
	if ref.Name() != filepath.Base(dir) {
		t.Errorf("Name() = %q, want %q", ref.Name(), filepath.Base(dir))
	}

	if _, err := s.Resolve(filepath.Join(dir, "missing")); err == nil {
		t.Error("Resolve(missing) = nil error, want error")
	}

	file := filepath.Join(dir, "f.pdf")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatalf("writing file: %v", err)
	}
	if _, err := s.Resolve(file); err == nil {
		t.Error("Resolve(regular file) = nil error, want error")
	}
}

func TestOSStore_Enumerate(t *testing.T) {
	s := newTestStore(t)
	dir := makeLibraryDir(t)

	ref, err := s.Resolve(dir)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	files, err := s.Enumerate(context.Background(), ref)
	if err != nil {
		t.Fatalf("Enumerate() error = %v", err)
	}

	// Extension matching is case-insensitive; non-matching entries and
	// directories are skipped even when their names match.
	names := make(map[string]bool)
	for _, f := range files {
		names[f.Entry.Name] = true
		if f.Entry.Size <= 0 {
			t.Errorf("entry %s has size %d, want the real size", f.Entry.Name, f.Entry.Size)
		}
		if f.Ref == nil {
			t.Errorf("entry %s has no file ref", f.Entry.Name)
		}
	}
	if len(files) != 2 || !names["a.pdf"] || !names["b.PDF"] {
		t.Errorf("Enumerate() = %v, want a.pdf and b.PDF", names)
	}
}

func TestOSStore_EnumerateCustomExtensions(t *testing.T) {
	s := NewOSStore([]string{".epub"}, shelf.NewNopLogger(), shelf.RealClock{})
	dir := t.TempDir()
	for _, name := range []string{"book.epub", "paper.pdf"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatalf("writing %s: %v", name, err)
		}
	}

	ref, err := s.Resolve(dir)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	files, err := s.Enumerate(context.Background(), ref)
	if err != nil {
		t.Fatalf("Enumerate() error = %v", err)
	}
	if len(files) != 1 || files[0].Entry.Name != "book.epub" {
		t.Errorf("Enumerate() = %v, want only book.epub", files)
	}
}

func TestOSStore_VerifyGranted(t *testing.T) {
	s := newTestStore(t)
	ref, err := s.Resolve(t.TempDir())
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	grant, err := s.Verify(context.Background(), ref, false)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if grant != shelf.GrantGranted {
		t.Errorf("Verify() = %v, want granted", grant)
	}
}

func TestOSStore_VerifyDeniedForMissingDirectory(t *testing.T) {
	s := newTestStore(t)
	dir := t.TempDir()
	ref, err := s.Resolve(dir)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if err := os.Remove(dir); err != nil {
		t.Fatalf("removing directory: %v", err)
	}

	grant, err := s.Verify(context.Background(), ref, false)
	if err != nil {
		t.Fatalf("Verify() error = %v, denial is an outcome not an error", err)
	}
	if grant != shelf.GrantDenied {
		t.Errorf("Verify() = %v, want denied", grant)
	}
}

func TestOSStore_VerifyCachesUntilElevatedOrCleared(t *testing.T) {
	s := newTestStore(t)
	dir := t.TempDir()
	ref, err := s.Resolve(dir)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	ctx := context.Background()

	if grant, _ := s.Verify(ctx, ref, false); grant != shelf.GrantGranted {
		t.Fatalf("initial Verify() = %v, want granted", grant)
	}

	// The directory disappears, but the passive result is cached.
	if err := os.Remove(dir); err != nil {
		t.Fatalf("removing directory: %v", err)
	}
	if grant, _ := s.Verify(ctx, ref, false); grant != shelf.GrantGranted {
		t.Errorf("cached Verify() = %v, want the stale granted result", grant)
	}

	// Elevation re-probes and sees the real state.
	if grant, _ := s.Verify(ctx, ref, true); grant != shelf.GrantDenied {
		t.Errorf("elevated Verify() = %v, want denied", grant)
	}

	// And the passive cache was invalidated along the way.
	if grant, _ := s.Verify(ctx, ref, false); grant != shelf.GrantDenied {
		t.Errorf("post-elevation Verify() = %v, want denied", grant)
	}
}

func TestOSStore_ClearCache(t *testing.T) {
	s := newTestStore(t)
	dir := t.TempDir()
	ref, err := s.Resolve(dir)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	ctx := context.Background()

	if grant, _ := s.Verify(ctx, ref, false); grant != shelf.GrantGranted {
		t.Fatalf("initial Verify() = %v, want granted", grant)
	}
	if err := os.Remove(dir); err != nil {
		t.Fatalf("removing directory: %v", err)
	}

	s.ClearCache()

	if grant, _ := s.Verify(ctx, ref, false); grant != shelf.GrantDenied {
		t.Errorf("Verify() after ClearCache = %v, want a fresh denied probe", grant)
	}
}

func TestOSStore_VerifyDeniedForUnreadableDirectory(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}

	s := newTestStore(t)
	dir := t.TempDir()
	ref, err := s.Resolve(dir)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if err := os.Chmod(dir, 0000); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	t.Cleanup(func() {
		os.Chmod(dir, 0755)
	})

	grant, err := s.Verify(context.Background(), ref, false)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if grant != shelf.GrantDenied {
		t.Errorf("Verify() = %v, want denied", grant)
	}
}

func TestTerminalPicker_Preset(t *testing.T) {
	s := newTestStore(t)
	dir := t.TempDir()

	p := NewTerminalPicker(s, dir)
	ref, err := p.PickDirectory(context.Background())
	if err != nil {
		t.Fatalf("PickDirectory() error = %v", err)
	}
	if ref.Identity() != dir {
		t.Errorf("Identity() = %q, want %q", ref.Identity(), dir)
	}
}

func TestTerminalPicker_PresetNotADirectory(t *testing.T) {
	s := newTestStore(t)
	dir := t.TempDir()
	file := filepath.Join(dir, "f.pdf")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatalf("writing file: %v", err)
	}

	p := NewTerminalPicker(s, file)
	if _, err := p.PickDirectory(context.Background()); err == nil {
		t.Error("PickDirectory(file preset) = nil error, want error")
	}
}

func TestTerminalPicker_NonInteractiveWithoutPreset(t *testing.T) {
	p := NewTerminalPicker(newTestStore(t), "")
	p.interactive = func() bool { return false }

	_, err := p.PickDirectory(context.Background())
	if !errors.Is(err, shelf.ErrCancelled) {
		t.Errorf("PickDirectory() error = %v, want ErrCancelled", err)
	}
}

func TestTerminalPicker_PromptedInput(t *testing.T) {
	s := newTestStore(t)
	dir := t.TempDir()

	p := NewTerminalPicker(s, "")
	p.interactive = func() bool { return true }
	p.in = strings.NewReader(dir + "\n")
	var out strings.Builder
	p.out = &out

	ref, err := p.PickDirectory(context.Background())
	if err != nil {
		t.Fatalf("PickDirectory() error = %v", err)
	}
	if ref.Identity() != dir {
		t.Errorf("Identity() = %q, want %q", ref.Identity(), dir)
	}
	if !strings.Contains(out.String(), "Directory:") {
		t.Errorf("prompt not written: %q", out.String())
	}
}

func TestTerminalPicker_EmptyInputCancels(t *testing.T) {
	p := NewTerminalPicker(newTestStore(t), "")
	p.interactive = func() bool { return true }
	p.in = strings.NewReader("\n")
	p.out = &strings.Builder{}

	_, err := p.PickDirectory(context.Background())
	if !errors.Is(err, shelf.ErrCancelled) {
		t.Errorf("PickDirectory() error = %v, want ErrCancelled", err)
	}
}
