// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package fs holds the filesystem primitives every path-handling component
// relies on: canonical resolution and segment-wise containment checks.
package fs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrEscapesRoot is returned when a resolved path lies outside its root.
var ErrEscapesRoot = errors.New("path escapes root")

// Resolve returns the canonical absolute path of p with every symlink
// followed. The target must exist; broken links and missing files fail.
func Resolve(p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", errors.New("empty path")
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("abs: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", err
	}
	return resolved, nil
}

// Within reports whether target equals root or is a descendant of it.
// Both arguments must already be canonical. Comparison is per path segment,
// so "/media/foo-evil" is not within "/media/foo".
func Within(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	if filepath.IsAbs(rel) {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// ConfineRelPath joins relTarget onto root and verifies that the result,
// after symlink resolution, is still underneath the resolved root. The
// target need not exist yet, but its parent must.
func ConfineRelPath(root, relTarget string) (string, error) {
	if strings.Contains(relTarget, "\\") {
		return "", fmt.Errorf("path contains backslash: %s", relTarget)
	}
	cleanRel := filepath.Clean(relTarget)
	if filepath.IsAbs(cleanRel) {
		return "", fmt.Errorf("target path must be relative: %s", relTarget)
	}
	if cleanRel == ".." || strings.HasPrefix(cleanRel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal attempt: %s", relTarget)
	}

	realRoot, err := Resolve(root)
	if err != nil {
		return "", fmt.Errorf("resolve root: %w", err)
	}
	full := filepath.Join(realRoot, cleanRel)

	var realPath string
	if _, err := os.Lstat(full); err == nil {
		// Existing entries (links included) are judged by their target.
		if realPath, err = filepath.EvalSymlinks(full); err != nil {
			return "", fmt.Errorf("resolve target: %w", err)
		}
	} else {
		parent, err := filepath.EvalSymlinks(filepath.Dir(full))
		if err != nil {
			return "", fmt.Errorf("resolve parent: %w", err)
		}
		realPath = filepath.Join(parent, filepath.Base(full))
	}

	if !Within(realRoot, realPath) {
		return "", fmt.Errorf("%w: %s", ErrEscapesRoot, relTarget)
	}
	return realPath, nil
}

// IsRegularFile returns an error unless path exists and is a regular file.
func IsRegularFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("not a regular file: %s", path)
	}
	return nil
}
