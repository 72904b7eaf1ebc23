// Package utils holds small formatting helpers shared by the CLI and the
// playlist folder layout. Carried forward from the teacher's HTTP client helper file after
// the HTTP client itself was dropped (see DESIGN.md).
package utils

import (
	"fmt"
	"strings"
	"time"
)

// SanitizeFilename strips characters that are invalid in filenames on
// common filesystems and caps the result to a sane length.
func SanitizeFilename(filename string) string {
	invalid := []string{"<", ">", ":", "\"", "/", "\\", "|", "?", "*"}
	result := filename
	for _, char := range invalid {
		result = strings.ReplaceAll(result, char, "_")
	}

	result = strings.TrimSpace(result)
	result = strings.Trim(result, ".")

	if len(result) > 200 {
		result = result[:200]
	}
	return result
}

// FormatDuration formats a duration as a human-readable string, scaling
// its precision to the magnitude of d. Used by the CLI to report how
// long a job ran.
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	case d < time.Minute:
		return d.Round(time.Second).String()
	case d < time.Hour:
		return fmt.Sprintf("%vm %vs", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%vh %vm %vs", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60)
	}
}
