package message

import (
	"fmt"
	"path"
	"strings"
	"unicode"
)

const globMeta = `*?[]\`

// ValidateChannel reports whether name may be published to. Channel names are
// literal: no glob metacharacters, whitespace, control characters or '/'.
func ValidateChannel(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty channel", ErrInvalidChannel)
	}
	if strings.ContainsAny(name, globMeta+"/") {
		return fmt.Errorf("%w: %q contains reserved characters", ErrInvalidChannel, name)
	}
	if strings.IndexFunc(name, badRune) >= 0 {
		return fmt.Errorf("%w: %q contains whitespace or control characters", ErrInvalidChannel, name)
	}
	return nil
}

// ValidatePattern reports whether pattern is a well-formed glob.
func ValidatePattern(pattern string) error {
	if pattern == "" {
		return fmt.Errorf("%w: empty pattern", ErrInvalidPattern)
	}
	if strings.ContainsRune(pattern, '/') || strings.IndexFunc(pattern, badRune) >= 0 {
		return fmt.Errorf("%w: %q contains reserved characters", ErrInvalidPattern, pattern)
	}
	if _, err := path.Match(pattern, ""); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidPattern, pattern, err)
	}
	return nil
}

// Match reports whether channel matches pattern. Malformed patterns match nothing.
func Match(pattern, channel string) bool {
	ok, err := path.Match(pattern, channel)
	return err == nil && ok
}

// IsLiteral reports whether pattern names exactly one channel.
func IsLiteral(pattern string) bool {
	return !strings.ContainsAny(pattern, globMeta)
}

func badRune(r rune) bool {
	return unicode.IsSpace(r) || unicode.IsControl(r)
}
