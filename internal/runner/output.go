package runner

import (
	"fmt"
	"regexp"
	"strings"
)

var ansiEscape = regexp.MustCompile(`\x1b\[[0-?]*[ -/]*[@-~]`)

// StripANSI removes terminal escape sequences from s.
func StripANSI(s string) string {
	return ansiEscape.ReplaceAllString(s, "")
}

// Truncate caps s at limit bytes, keeping the head and tail halves with a
// marker in between so both the banner and the error tail survive.
func Truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	head := s[:limit/2]
	tail := s[len(s)-limit/2:]
	return fmt.Sprintf("%s\n...<truncated %d bytes>...\n%s", head, len(s)-limit, tail)
}

// secretFlags are argument names whose values must never be persisted.
var secretFlags = map[string]bool{
	"-p":             true,
	"--password":     true,
	"--new-password": true,
	"--token":        true,
	"--api-key":      true,
}

// MaskArgs returns a copy of argv with secret flag values replaced by "***".
// Both separate ("--password s3cret") and joined ("--password=s3cret") forms
// are handled.
func MaskArgs(argv []string) []string {
	masked := make([]string, 0, len(argv))
	skipNext := false
	for _, tok := range argv {
		if skipNext {
			masked = append(masked, "***")
			skipNext = false
			continue
		}
		if secretFlags[tok] {
			masked = append(masked, tok)
			skipNext = true
			continue
		}
		if k, _, ok := strings.Cut(tok, "="); ok && secretFlags[k] {
			masked = append(masked, k+"=***")
			continue
		}
		masked = append(masked, tok)
	}
	return masked
}

// FormatCommand renders argv for logs and step records.
func FormatCommand(argv []string) string {
	return strings.Join(argv, " ")
}
