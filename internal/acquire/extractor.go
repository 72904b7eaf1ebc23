package acquire

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"

	"video-downloader/pkg/models"
)

// Extractor wraps an external audio transcoder (e.g. ffmpeg) behind the
// ExtractorAdapter contract.
type Extractor struct {
	bin    string
	logger zerolog.Logger
}

// NewExtractor constructs an Extractor bound to the given transcoder binary.
func NewExtractor(bin string, logger zerolog.Logger) *Extractor {
	return &Extractor{bin: bin, logger: logger}
}

// AudioExtension returns the output container extension for mode, matching
// the audio-ext enumeration used by the extraction engine's file walk.
func AudioExtension(mode models.ExtractMode) string {
	switch mode {
	case models.ExtractMP3Best, models.ExtractMP3High:
		return "mp3"
	case models.ExtractOpus:
		return "opus"
	default:
		return "m4a"
	}
}

func transcodeArgs(mode models.ExtractMode, source, target string) ([]string, error) {
	base := []string{"-y", "-i", source, "-vn"}
	switch mode {
	case models.ExtractCopy:
		return append(base, "-acodec", "copy", target), nil
	case models.ExtractMP3Best:
		return append(base, "-codec:a", "libmp3lame", "-qscale:a", "0", target), nil
	case models.ExtractMP3High:
		return append(base, "-codec:a", "libmp3lame", "-qscale:a", "2", target), nil
	case models.ExtractOpus:
		if strings.HasSuffix(strings.ToLower(source), ".opus") {
			return append(base, "-acodec", "copy", target), nil
		}
		return append(base, "-codec:a", "libopus", target), nil
	default:
		return nil, fmt.Errorf("unrecognized extraction mode: %q", mode)
	}
}

// ExtractOne transcodes sourceVideo to targetAudio per mode. Idempotent: a
// non-empty file already at targetAudio is treated as prior success.
func (e *Extractor) ExtractOne(ctx context.Context, sourceVideo, targetAudio string, mode models.ExtractMode) error {
	if info, err := os.Stat(targetAudio); err == nil && info.Size() > 0 {
		return nil
	}

	args, err := transcodeArgs(mode, sourceVideo, targetAudio)
	if err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, e.bin, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(lastLine(string(out)))
		if msg == "" {
			msg = err.Error()
		}
		e.logger.Debug().Str("source", sourceVideo).Str("output", string(out)).Msg("extraction failed")
		return fmt.Errorf("extracting audio: %w", errMessage(msg))
	}
	return nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	return lines[len(lines)-1]
}
