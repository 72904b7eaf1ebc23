package models

import "testing"

func TestStringSetAddHas(t *testing.T) {
	s := NewStringSet("a", "b")
	if !s.Has("a") || !s.Has("b") {
		t.Fatal("expected seeded ids present")
	}
	if s.Has("c") {
		t.Fatal("unexpected id present")
	}
	s.Add("c")
	if !s.Has("c") {
		t.Fatal("expected added id present")
	}
	if len(s.Slice()) != 3 {
		t.Fatalf("expected 3 ids, got %d", len(s.Slice()))
	}
}

func TestJobProgressAggregate(t *testing.T) {
	j := &Job{
		Download: PhaseProgress{Total: 3, Completed: 2},
		Extract:  PhaseProgress{Total: 1, Completed: 1},
	}
	if got := j.Progress(); got != 75 {
		t.Fatalf("expected 75, got %d", got)
	}
}

func TestJobProgressNoItems(t *testing.T) {
	j := &Job{}
	if got := j.Progress(); got != 0 {
		t.Fatalf("expected 0 with no items, got %d", got)
	}
}

func TestConfigNeedsSetupEmptyPath(t *testing.T) {
	c := &Config{}
	if !c.NeedsSetup() {
		t.Fatal("expected needs_setup with empty base_download_path")
	}
}

func TestConfigNeedsSetupMissingDir(t *testing.T) {
	c := &Config{}
	c.Acquisition.BaseDownloadPath = "/nonexistent/path/for/test"
	if !c.NeedsSetup() {
		t.Fatal("expected needs_setup with nonexistent directory")
	}
}

func TestConfigNeedsSetupExistingDir(t *testing.T) {
	c := &Config{}
	c.Acquisition.BaseDownloadPath = t.TempDir()
	if c.NeedsSetup() {
		t.Fatal("did not expect needs_setup with an existing directory")
	}
}
