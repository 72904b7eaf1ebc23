package archive

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestArchive(t *testing.T) (*Archive, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "archive.txt")
	a, err := Load(path, dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return a, dir
}

func TestAppendDuplicateFreeAndMonotone(t *testing.T) {
	a, _ := newTestArchive(t)

	if err := a.Append("A"); err != nil {
		t.Fatal(err)
	}
	if err := a.Append("B"); err != nil {
		t.Fatal(err)
	}
	if err := a.Append("A"); err != nil {
		t.Fatal(err)
	}

	entries := a.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 unique entries, got %v", entries)
	}
	if !a.Contains("A") || !a.Contains("B") {
		t.Fatal("expected both ids recorded")
	}
}

func TestAppendPersistsAcrossLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "archive.txt")

	a, err := Load(path, dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Append("X"); err != nil {
		t.Fatal(err)
	}

	reloaded, err := Load(path, dir)
	if err != nil {
		t.Fatal(err)
	}
	if !reloaded.Contains("X") {
		t.Fatal("expected entry to survive reload")
	}
}

func TestShouldDownloadFileOnDiskMatch(t *testing.T) {
	a, dir := newTestArchive(t)
	if err := os.WriteFile(filepath.Join(dir, "My Video [abc123xyz99].mp4"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	should, err := a.ShouldDownload("abc123xyz99", "My Video")
	if err != nil {
		t.Fatal(err)
	}
	if !should {
		t.Fatal("expected should-download true since id not yet archived")
	}
	if err := a.Append("abc123xyz99"); err != nil {
		t.Fatal(err)
	}
	should, err = a.ShouldDownload("abc123xyz99", "My Video")
	if err != nil {
		t.Fatal(err)
	}
	if should {
		t.Fatal("expected should-download false: archived and file present")
	}
}

func TestShouldDownloadMissingFile(t *testing.T) {
	a, _ := newTestArchive(t)
	if err := a.Append("missing01xyz"); err != nil {
		t.Fatal(err)
	}
	should, err := a.ShouldDownload("missing01xyz", "Some Title")
	if err != nil {
		t.Fatal(err)
	}
	if !should {
		t.Fatal("expected should-download true: archived but file absent and no rename candidate")
	}
}

// TestOldFormatRename seeds spec scenario S6: a pre-existing file without
// the [id] marker should be renamed via fuzzy title match, with no need to
// redownload.
func TestOldFormatRename(t *testing.T) {
	a, dir := newTestArchive(t)
	if err := os.WriteFile(filepath.Join(dir, "Zubaida.mp4"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := a.Append("dCWj-XGQcXs"); err != nil {
		t.Fatal(err)
	}

	should, err := a.ShouldDownload("dCWj-XGQcXs", "Zubaida")
	if err != nil {
		t.Fatal(err)
	}
	if should {
		t.Fatal("expected already-downloaded after rename reconciliation")
	}

	if _, err := os.Stat(filepath.Join(dir, "Zubaida [dCWj-XGQcXs].mp4")); err != nil {
		t.Fatalf("expected renamed file to exist: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "Zubaida.mp4")); !os.IsNotExist(err) {
		t.Fatal("expected old filename to no longer exist after rename")
	}
}

func TestScoreMatchThresholds(t *testing.T) {
	if got := scoreMatch("hello", "hello"); got != 100 {
		t.Fatalf("exact match want 100 got %d", got)
	}
	if got := scoreMatch("hello", "helloworld"); got < 90 {
		t.Fatalf("contains/prefix match want >=90 got %d", got)
	}
	if got := scoreMatch("helloworld", "hello"); got < 90 {
		t.Fatalf("contains/prefix match want >=90 got %d", got)
	}
	if got := scoreMatch("abcdefghij", "abcdefgzzz"); got < 70 {
		t.Fatalf("fuzzy prefix match want >=70 got %d", got)
	}
	if got := scoreMatch("abcdef", "zzzzzz"); got != 0 {
		t.Fatalf("no match want 0 got %d", got)
	}
}
