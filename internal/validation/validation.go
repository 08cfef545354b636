package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// unsafeFilenameChars matches everything that may not appear in an on-disk
// artifact name derived from a session name.
var unsafeFilenameChars = regexp.MustCompile(`[^\w.-]`)

// ValidateSessionName checks that a session name is usable as a registry key.
// Names are case- and content-sensitive; they are only sanitized for disk use.
func ValidateSessionName(name string) error {
	if name == "" {
		return fmt.Errorf("session name cannot be empty")
	}
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("session name cannot be blank")
	}
	return nil
}

// SanitizeFilename maps a session name to a safe artifact filename component.
// Unsafe characters are replaced with underscores; the mapping is lossy, so
// two distinct session names may collide on disk and callers must
// disambiguate the resulting path.
func SanitizeFilename(name string) string {
	return unsafeFilenameChars.ReplaceAllString(name, "_")
}
