package utils

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GenerateRequestID generates a unique request ID for tracking
func GenerateRequestID() string {
	return uuid.New().String()
}

// FormatDuration formats a duration to a human-readable string
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return d.String()
	}
	if d < time.Minute {
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%.1fm", d.Minutes())
	}
	return fmt.Sprintf("%.1fh", d.Hours())
}

// DecodeQuery normalizes a raw query parameter: '+' arrives either as a
// space (already decoded) or literally, both map to a single space.
func DecodeQuery(raw string) string {
	return strings.TrimSpace(strings.ReplaceAll(raw, "+", " "))
}

// FindRegexMatch returns the submatches of the first match of pattern in s,
// or nil if the pattern does not match or fails to compile.
func FindRegexMatch(s, pattern string) []string {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil
	}
	return re.FindStringSubmatch(s)
}
