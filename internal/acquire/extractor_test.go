package acquire

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"video-downloader/pkg/models"
)

func TestAudioExtensionByMode(t *testing.T) {
	cases := map[models.ExtractMode]string{
		models.ExtractCopy:    "m4a",
		models.ExtractMP3Best: "mp3",
		models.ExtractMP3High: "mp3",
		models.ExtractOpus:    "opus",
	}
	for mode, want := range cases {
		if got := AudioExtension(mode); got != want {
			t.Fatalf("mode %q: expected ext %q, got %q", mode, want, got)
		}
	}
}

func TestTranscodeArgsByMode(t *testing.T) {
	args, err := transcodeArgs(models.ExtractMP3Best, "in.mp4", "out.mp3")
	if err != nil {
		t.Fatal(err)
	}
	if args[len(args)-1] != "out.mp3" {
		t.Fatalf("expected target as last arg, got %v", args)
	}

	if _, err := transcodeArgs(models.ExtractMode("bogus"), "in.mp4", "out.mp3"); err == nil {
		t.Fatal("expected error for unrecognized mode")
	}
}

func TestExtractOneSkipsWhenTargetNonEmpty(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "out.mp3")
	if err := os.WriteFile(target, []byte("already extracted"), 0644); err != nil {
		t.Fatal(err)
	}

	e := NewExtractor("/bin/false", zerolog.Nop())
	if err := e.ExtractOne(context.Background(), "in.mp4", target, models.ExtractMP3Best); err != nil {
		t.Fatalf("expected idempotent skip, got error: %v", err)
	}
}

func TestExtractOneSurfacesFailure(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "out.mp3")

	e := NewExtractor("/bin/false", zerolog.Nop())
	err := e.ExtractOne(context.Background(), "in.mp4", target, models.ExtractMP3Best)
	if err == nil {
		t.Fatal("expected error when transcoder binary fails")
	}
}
