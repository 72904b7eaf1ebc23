// Package classify maps a raw error message from the acquisition tooling
// into a retryable/terminal verdict (C1).
package classify

import (
	"regexp"
	"strings"

	"video-downloader/pkg/models"
)

var transientSubstrings = []string{
	"no such file",
	"errno 2",
	"connection reset",
	"connection refused",
	"timeout",
	"network",
	"fragment",
	"part-frag",
	".part",
}

var http5xx = regexp.MustCompile(`http error 5\d\d`)

var permanentSubstrings = []string{
	"video unavailable",
	"not available",
	"has been removed",
	"private video",
	"deleted video",
	"members-only",
	"join this channel",
	"age-restricted",
	"copyright",
}

var accountTerminated = regexp.MustCompile(`account.*terminated`)

// Classify returns Transient or Permanent for a free-form error message.
// Matching is case-insensitive substring search; Transient is evaluated
// first and always wins on overlap (a fragment error that also mentions
// "removed" is transient).
func Classify(message string) models.Classification {
	lower := strings.ToLower(message)

	for _, sub := range transientSubstrings {
		if strings.Contains(lower, sub) {
			return models.Transient
		}
	}
	if strings.Contains(lower, "http error 429") || http5xx.MatchString(lower) {
		return models.Transient
	}

	for _, sub := range permanentSubstrings {
		if strings.Contains(lower, sub) {
			return models.Permanent
		}
	}
	if accountTerminated.MatchString(lower) {
		return models.Permanent
	}

	return models.Transient
}
