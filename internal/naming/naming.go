// Package naming produces collision-resistant staging names for uploaded files.
//
// A staging name is six uppercase hex characters drawn from crypto/rand, a dash,
// and the sanitized original filename, e.g. "3FA9C0-report.pdf". The prefix gives
// 2^24 variants per filename; collisions are possible and are not detected.
package naming

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"unicode"
)

// PrefixLen is the number of hex characters in front of the dash.
const PrefixLen = 6

const fallbackName = "file"

// Generate returns "<HEX6>-<sanitized original>". It never fails.
func Generate(original string) string {
	var b [PrefixLen / 2]byte
	// crypto/rand.Read only fails if the OS entropy source is broken.
	_, _ = rand.Read(b[:])
	return strings.ToUpper(hex.EncodeToString(b[:])) + "-" + Sanitize(original)
}

// Sanitize strips directory components and control characters from an untrusted
// filename so it is safe as a single path segment both on local disk and in the
// remote store. Empty, "." and ".." results become "file".
func Sanitize(original string) string {
	name := original
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}

	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || r == unicode.ReplacementChar {
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(name)

	switch name {
	case "", ".", "..":
		return fallbackName
	}
	return name
}

// Valid reports whether name is usable as a single staging path segment.
// It is used to reject request-supplied names on the read and delete paths.
func Valid(name string) bool {
	return name != "" && Sanitize(name) == name
}
