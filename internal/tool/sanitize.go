package tool

import (
	"regexp"
	"strings"
)

const maxNameLength = 128

var (
	invalidNameChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)
	underscoreRuns   = regexp.MustCompile(`_{2,}`)
)

// SanitizeName maps any string onto ^[A-Za-z0-9_-]{1,128}$. It is
// idempotent and maps the empty string to "_".
func SanitizeName(name string) string {
	s := invalidNameChars.ReplaceAllString(name, "_")
	s = underscoreRuns.ReplaceAllString(s, "_")
	if len(s) > maxNameLength {
		s = s[:maxNameLength]
	}
	if s == "" {
		return "_"
	}
	return s
}

// IsValidName reports whether name already satisfies the tool name pattern.
func IsValidName(name string) bool {
	return name != "" && len(name) <= maxNameLength && !invalidNameChars.MatchString(name)
}

func describe(description, fallback string) string {
	if d := strings.TrimSpace(description); d != "" {
		return d
	}
	return fallback
}
