// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package session

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"regexp"

	"golang.org/x/text/unicode/norm"
)

var keyPattern = regexp.MustCompile(`^[0-9a-f]{32}$`)

// NormalizeSource returns the registry key form of a source path: NFC
// composed so that decomposed file names from some filesystems match, and
// lexically cleaned.
func NormalizeSource(src string) string {
	return filepath.Clean(norm.NFC.String(src))
}

// Key derives the session directory name for a normalized source path.
func Key(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])[:32]
}

// IsSessionKey reports whether name could be a session directory.
func IsSessionKey(name string) bool {
	return keyPattern.MatchString(name)
}
