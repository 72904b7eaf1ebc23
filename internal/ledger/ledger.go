// Package ledger implements the per-playlist persistent batch-download
// cap and pending-queue record (C3).
package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Ledger is the JSON-persisted BatchLedger.
type Ledger struct {
	mu   sync.Mutex
	path string

	TotalVideos      int      `json:"total_videos"`
	DownloadedCount  int      `json:"downloaded_count"`
	PendingVideoIDs  []string `json:"pending_video_ids"`
	LastBatchDate    string   `json:"last_batch_date"`
	BatchSizeLimit   int      `json:"batch_size_limit"`
	SentTodayCount   int      `json:"sent_today_count"`
	Completed        bool     `json:"completed"`

	// PermanentlyExcludedIDs tracks IDs the Download Engine has classified
	// Permanent in a past run, distinct from the Playlist Store's
	// excluded_ids (which also records Transient-but-displayed IDs). Only
	// membership here makes an ID non-retryable across runs.
	PermanentlyExcludedIDs []string `json:"permanently_excluded_ids"`
}

// nowFunc is overridable in tests so "today" can be controlled.
var nowFunc = time.Now

// Load reads the ledger from path, or returns a zero-value Ledger with
// batchSizeLimit set from config if the file doesn't yet exist.
func Load(path string, batchSizeLimit int) (*Ledger, error) {
	l := &Ledger{path: path, BatchSizeLimit: batchSizeLimit}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading ledger %s: %w", path, err)
	}
	if err := json.Unmarshal(data, l); err != nil {
		return nil, fmt.Errorf("parsing ledger %s: %w", path, err)
	}
	l.path = path
	l.BatchSizeLimit = batchSizeLimit
	return l, nil
}

func (l *Ledger) flush() error {
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling ledger: %w", err)
	}
	if err := os.WriteFile(l.path, data, 0644); err != nil {
		return fmt.Errorf("writing ledger %s: %w", l.path, err)
	}
	return nil
}

// Refresh recomputes total/pending against the current remote ID list,
// archive set and exclusion set, preserving remote order. The callbacks run
// before l.mu is taken, so l.IsPermanentlyExcluded can be passed as excluded.
func (l *Ledger) Refresh(remoteIDs []string, inArchive func(string) bool, excluded func(string) bool) error {
	pending := make([]string, 0, len(remoteIDs))
	for _, id := range remoteIDs {
		if inArchive(id) || excluded(id) {
			continue
		}
		pending = append(pending, id)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.TotalVideos = len(remoteIDs)
	l.PendingVideoIDs = pending
	l.Completed = len(pending) == 0
	return l.flush()
}

// AdvanceBatch returns up to BatchSizeLimit ids from the head of pending,
// respecting the remaining daily allowance if a batch already ran today.
func (l *Ledger) AdvanceBatch() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	today := nowFunc().Format("2006-01-02")
	if l.LastBatchDate != today {
		l.LastBatchDate = today
		l.SentTodayCount = 0
	}

	remaining := l.BatchSizeLimit - l.SentTodayCount
	if remaining <= 0 {
		return nil
	}
	n := remaining
	if n > len(l.PendingVideoIDs) {
		n = len(l.PendingVideoIDs)
	}

	batch := make([]string, n)
	copy(batch, l.PendingVideoIDs[:n])
	l.SentTodayCount += n
	_ = l.flush()
	return batch
}

// RecordDownloaded removes id from pending, increments downloaded_count,
// and flushes immediately.
func (l *Ledger) RecordDownloaded(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.removePendingLocked(id)
	l.DownloadedCount++
	l.Completed = len(l.PendingVideoIDs) == 0
	return l.flush()
}

// MarkPermanentlyExcluded removes id from pending without counting it
// downloaded (Permanent-classified failures never retry, but are not
// successes) and records it so future Refresh calls keep it out of
// pending even though the Playlist Store's excluded_ids also carries
// Transient-but-displayed IDs that must remain retryable.
func (l *Ledger) MarkPermanentlyExcluded(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, existing := range l.PermanentlyExcludedIDs {
		if existing == id {
			return nil
		}
	}
	l.PermanentlyExcludedIDs = append(l.PermanentlyExcludedIDs, id)
	l.removePendingLocked(id)
	l.Completed = len(l.PendingVideoIDs) == 0
	return l.flush()
}

// IsPermanentlyExcluded reports whether id was classified Permanent in a
// past run. Intended as the `excluded` argument to Refresh.
func (l *Ledger) IsPermanentlyExcluded(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, existing := range l.PermanentlyExcludedIDs {
		if existing == id {
			return true
		}
	}
	return false
}

func (l *Ledger) removePendingLocked(id string) {
	kept := l.PendingVideoIDs[:0:0]
	for _, existing := range l.PendingVideoIDs {
		if existing != id {
			kept = append(kept, existing)
		}
	}
	l.PendingVideoIDs = kept
}

// RemainingToday reports how many more IDs AdvanceBatch will release before
// the daily cap resets at local midnight.
func (l *Ledger) RemainingToday() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	today := nowFunc().Format("2006-01-02")
	sent := l.SentTodayCount
	if l.LastBatchDate != today {
		sent = 0
	}
	remaining := l.BatchSizeLimit - sent
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// Pending returns a snapshot of the pending ID list.
func (l *Ledger) Pending() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.PendingVideoIDs))
	copy(out, l.PendingVideoIDs)
	return out
}

// IsCompleted reports whether pending is empty.
func (l *Ledger) IsCompleted() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.Completed
}
