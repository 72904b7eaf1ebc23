// Package archive implements the per-playlist append-only record of video
// IDs known to have a verified local file (C2).
package archive

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// SourceTag is the fixed prefix written on every archive line, mirroring
// the external tool's own "<extractor> <id>" archive-file convention.
const SourceTag = "generic"

var videoExtensions = []string{"mp4", "mkv", "webm", "m4v"}

// Archive is the per-playlist duplicate-free set of completed video IDs,
// backed by an append-only text file and cross-checked against the files
// actually present in the playlist folder.
type Archive struct {
	mu          sync.Mutex
	path        string
	playlistDir string
	order       []string
	set         map[string]struct{}
}

// Load reads (or creates) the archive file at path, whose sibling video
// files live under playlistDir.
func Load(path, playlistDir string) (*Archive, error) {
	a := &Archive{
		path:        path,
		playlistDir: playlistDir,
		set:         make(map[string]struct{}),
	}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return a, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening archive %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		id := fields[len(fields)-1]
		if _, dup := a.set[id]; dup {
			continue
		}
		a.order = append(a.order, id)
		a.set[id] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading archive %s: %w", path, err)
	}
	return a, nil
}

// Contains reports whether id has a recorded archive entry.
func (a *Archive) Contains(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.set[id]
	return ok
}

// Entries returns a snapshot of the archived IDs in append order.
func (a *Archive) Entries() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.order))
	copy(out, a.order)
	return out
}

// Append records id, flushing to disk immediately. No-op if already present.
func (a *Archive) Append(id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.set[id]; ok {
		return nil
	}

	f, err := os.OpenFile(a.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("opening archive %s for append: %w", a.path, err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "%s %s\n", SourceTag, id); err != nil {
		return fmt.Errorf("writing archive entry: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("flushing archive: %w", err)
	}

	a.order = append(a.order, id)
	a.set[id] = struct{}{}
	return nil
}

// Remove rewrites the archive file without id. Used only by the store
// owner for migration, never by the engine during a normal run.
func (a *Archive) Remove(id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.set[id]; !ok {
		return nil
	}

	kept := make([]string, 0, len(a.order)-1)
	for _, existing := range a.order {
		if existing != id {
			kept = append(kept, existing)
		}
	}

	var b strings.Builder
	for _, existing := range kept {
		fmt.Fprintf(&b, "%s %s\n", SourceTag, existing)
	}
	if err := os.WriteFile(a.path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("rewriting archive %s: %w", a.path, err)
	}

	delete(a.set, id)
	a.order = kept
	return nil
}

// FileOnDisk reports whether a file matching *[id]*.<video-ext> exists in
// the playlist folder, returning its name when found.
func (a *Archive) FileOnDisk(id string) (string, bool) {
	entries, err := os.ReadDir(a.playlistDir)
	if err != nil {
		return "", false
	}
	marker := "[" + id + "]"
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.Contains(name, marker) {
			continue
		}
		if hasVideoExtension(name) {
			return name, true
		}
	}
	return "", false
}

// ShouldDownload applies the C2 decision rule: download iff the id has no
// archive entry, or the archive entry's file is missing from disk. When the
// file-by-id lookup misses, it attempts an old-format reconciliation rename
// before concluding the file is truly absent.
func (a *Archive) ShouldDownload(id, title string) (bool, error) {
	contains := a.Contains(id)

	if _, ok := a.FileOnDisk(id); ok {
		return !contains, nil
	}

	if renamed, err := a.reconcileOldFormat(id, title); err != nil {
		return true, err
	} else if renamed {
		return !contains, nil
	}

	return true, nil
}

// reconcileOldFormat looks for a pre-existing file that lacks the `[id]`
// marker but whose normalized title fuzzily matches, and renames it in
// place. Never deletes; a failed rename is treated as "not found".
func (a *Archive) reconcileOldFormat(id, title string) (bool, error) {
	entries, err := os.ReadDir(a.playlistDir)
	if err != nil {
		return false, nil
	}

	normTitle := normalize(title)
	if normTitle == "" {
		return false, nil
	}

	var bestName string
	var bestExt string
	bestScore := 0

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.Contains(name, "[") {
			continue
		}
		ext := strings.TrimPrefix(filepath.Ext(name), ".")
		if !isVideoExtension(ext) {
			continue
		}
		base := strings.TrimSuffix(name, filepath.Ext(name))
		score := scoreMatch(normTitle, normalize(base))
		if score > bestScore {
			bestScore = score
			bestName = name
			bestExt = ext
		}
	}

	if bestScore < 70 {
		return false, nil
	}

	oldPath := filepath.Join(a.playlistDir, bestName)
	newName := fmt.Sprintf("%s [%s].%s", title, id, bestExt)
	newPath := filepath.Join(a.playlistDir, newName)

	if err := os.Rename(oldPath, newPath); err != nil {
		return false, nil
	}
	return true, nil
}

func hasVideoExtension(name string) bool {
	return IsVideoFile(name)
}

// IsVideoFile reports whether name carries one of the recognized video
// extensions. Exported so the Extraction Engine's file enumeration (C8)
// shares this definition rather than duplicating the extension list.
func IsVideoFile(name string) bool {
	ext := strings.TrimPrefix(filepath.Ext(name), ".")
	return isVideoExtension(ext)
}

func isVideoExtension(ext string) bool {
	ext = strings.ToLower(ext)
	for _, v := range videoExtensions {
		if ext == v {
			return true
		}
	}
	return false
}

// normalize strips everything but letters and digits and lowercases, for
// title-match scoring robust to punctuation/whitespace differences.
func normalize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// scoreMatch grades a normalized candidate filename against a normalized
// title: exact 100, containment in either direction 95, fuzzy prefix 70,
// else 0. A prefix match is also a containment and so scores 95; the
// prefix-90 branch is never reached.
func scoreMatch(title, candidate string) int {
	if title == "" || candidate == "" {
		return 0
	}
	if title == candidate {
		return 100
	}
	if strings.Contains(candidate, title) || strings.Contains(title, candidate) {
		return 95
	}
	if strings.HasPrefix(candidate, title) || strings.HasPrefix(title, candidate) {
		return 90
	}

	shorter, longer := title, candidate
	if len(longer) < len(shorter) {
		shorter, longer = longer, shorter
	}
	common := 0
	for common < len(shorter) && common < len(longer) && shorter[common] == longer[common] {
		common++
	}
	if len(shorter) > 0 && float64(common)/float64(len(shorter)) >= 0.7 {
		return 70
	}
	return 0
}
