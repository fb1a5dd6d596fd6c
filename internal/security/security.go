// Package security enforces limits on job metadata before it reaches
// storage: name validation, size caps, and sanitization of error text
// that originated outside the process.
package security

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/edupipe/edupipe/internal/core"
)

const (
	MaxJobTypeNameLength = 255
	MaxQueueNameLength   = 255
	MaxUniqueKeyLength   = 255

	// MaxJobArgsSize caps serialized job arguments at 1MB.
	MaxJobArgsSize = 1 << 20

	// MaxErrorMessageLength caps stored error messages; provider bodies
	// can be arbitrarily large.
	MaxErrorMessageLength = 4096

	MaxAttempts    = 100
	MaxConcurrency = 100
)

// Names must start with a letter; dots separate namespaces
// ("transcode.check"), hyphens and underscores are allowed.
var validName = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_\-\.]*$`)

func ValidateJobTypeName(name string) error {
	switch {
	case name == "" || !validName.MatchString(name):
		return core.ErrInvalidJobTypeName
	case len(name) > MaxJobTypeNameLength:
		return core.ErrJobTypeNameTooLong
	}
	return nil
}

func ValidateQueueName(name string) error {
	switch {
	case name == "" || !validName.MatchString(name):
		return core.ErrInvalidQueueName
	case len(name) > MaxQueueNameLength:
		return core.ErrQueueNameTooLong
	}
	return nil
}

func ValidateUniqueKey(key string) error {
	if len(key) > MaxUniqueKeyLength {
		return core.ErrUniqueKeyTooLong
	}
	return nil
}

// SanitizeErrorMessage strips control characters (keeping whitespace)
// and truncates to MaxErrorMessageLength. Error text often embeds raw
// provider responses, which may carry null bytes or terminal escapes.
func SanitizeErrorMessage(msg string) string {
	if msg == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(msg))
	for _, r := range msg {
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != 127) {
			b.WriteRune(r)
		}
	}

	out := b.String()
	if utf8.RuneCountInString(out) > MaxErrorMessageLength {
		runes := []rune(out)
		out = string(runes[:MaxErrorMessageLength-3]) + "..."
	}
	return out
}

// ClampAttempts bounds an attempt budget to [1, MaxAttempts].
func ClampAttempts(n int) int {
	return clamp(n, MaxAttempts)
}

// ClampConcurrency bounds a pool size to [1, MaxConcurrency].
func ClampConcurrency(n int) int {
	return clamp(n, MaxConcurrency)
}

func clamp(n, hi int) int {
	if n < 1 {
		return 1
	}
	if n > hi {
		return hi
	}
	return n
}
