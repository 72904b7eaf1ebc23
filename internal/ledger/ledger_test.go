package ledger

import (
	"path/filepath"
	"testing"
	"time"
)

func inSet(set map[string]struct{}) func(string) bool {
	return func(id string) bool {
		_, ok := set[id]
		return ok
	}
}

func TestRefreshRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch_progress.json")
	l, err := Load(path, 200)
	if err != nil {
		t.Fatal(err)
	}

	remote := []string{"A", "B", "C", "D", "E"}
	archived := inSet(map[string]struct{}{"A": {}})
	excluded := inSet(map[string]struct{}{"B": {}})

	if err := l.Refresh(remote, archived, excluded); err != nil {
		t.Fatal(err)
	}

	pending := l.Pending()
	if len(pending) != 3 {
		t.Fatalf("expected 3 pending, got %v", pending)
	}
	total := len(pending) + 1 /*archived*/ + 1 /*excluded*/
	if total != l.TotalVideos {
		t.Fatalf("round-trip invariant violated: pending+archive+excluded=%d total=%d", total, l.TotalVideos)
	}
}

func TestAdvanceBatchCap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch_progress.json")
	l, err := Load(path, 2)
	if err != nil {
		t.Fatal(err)
	}
	remote := []string{"A", "B", "C", "D", "E"}
	none := func(string) bool { return false }
	if err := l.Refresh(remote, none, none); err != nil {
		t.Fatal(err)
	}

	batch := l.AdvanceBatch()
	if len(batch) != 2 {
		t.Fatalf("expected batch of 2, got %v", batch)
	}

	// Second AdvanceBatch call same day: cap already consumed.
	batch2 := l.AdvanceBatch()
	if len(batch2) != 0 {
		t.Fatalf("expected exhausted cap same day, got %v", batch2)
	}

	// Simulate a later calendar day (two days on).
	old := nowFunc
	nowFunc = func() time.Time { return old().Add(48 * time.Hour) }
	defer func() { nowFunc = old }()

	batch3 := l.AdvanceBatch()
	if len(batch3) != 2 {
		t.Fatalf("expected fresh cap allowance next day, got %v", batch3)
	}
}

func TestRecordDownloadedRemovesFromPending(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch_progress.json")
	l, err := Load(path, 10)
	if err != nil {
		t.Fatal(err)
	}
	none := func(string) bool { return false }
	if err := l.Refresh([]string{"A", "B"}, none, none); err != nil {
		t.Fatal(err)
	}
	if err := l.RecordDownloaded("A"); err != nil {
		t.Fatal(err)
	}
	pending := l.Pending()
	if len(pending) != 1 || pending[0] != "B" {
		t.Fatalf("expected only B pending, got %v", pending)
	}
	if l.DownloadedCount != 1 {
		t.Fatalf("expected downloaded_count=1, got %d", l.DownloadedCount)
	}
}

func TestMarkPermanentlyExcludedSurvivesRefresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch_progress.json")
	l, err := Load(path, 10)
	if err != nil {
		t.Fatal(err)
	}
	none := func(string) bool { return false }
	if err := l.Refresh([]string{"A", "B"}, none, none); err != nil {
		t.Fatal(err)
	}
	if err := l.MarkPermanentlyExcluded("B"); err != nil {
		t.Fatal(err)
	}
	if !l.IsPermanentlyExcluded("B") {
		t.Fatal("expected B to be permanently excluded")
	}

	// A later refresh must keep B out of pending via IsPermanentlyExcluded,
	// while a merely-displayed (transient) exclusion set must not suppress
	// anything it doesn't name.
	if err := l.Refresh([]string{"A", "B", "C"}, none, l.IsPermanentlyExcluded); err != nil {
		t.Fatal(err)
	}
	pending := l.Pending()
	for _, id := range pending {
		if id == "B" {
			t.Fatal("expected B to remain excluded from pending after refresh")
		}
	}
	if len(pending) != 2 {
		t.Fatalf("expected A and C pending, got %v", pending)
	}
}

func TestCompletedWhenPendingEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch_progress.json")
	l, err := Load(path, 10)
	if err != nil {
		t.Fatal(err)
	}
	none := func(string) bool { return false }
	if err := l.Refresh([]string{"A"}, none, none); err != nil {
		t.Fatal(err)
	}
	if l.IsCompleted() {
		t.Fatal("should not be completed yet")
	}
	if err := l.RecordDownloaded("A"); err != nil {
		t.Fatal(err)
	}
	if !l.IsCompleted() {
		t.Fatal("expected completed once pending drained")
	}
}
