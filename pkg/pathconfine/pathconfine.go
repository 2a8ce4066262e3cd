// Package pathconfine resolves and validates every client-supplied path
// against the server's confinement root. It is adapted from
// pkg/security/path_validator.go's prefix-comparison technique,
// generalized to resolve symlinks (the original only cleaned paths
// lexically) since a symlink inside the tree must not be usable to
// escape it.
package pathconfine

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nyaaorick/Assigment-UDP-Localsend/pkg/apperrors"
)

// Root is a canonicalized confinement root established at server startup.
type Root struct {
	abs string
}

// NewRoot canonicalizes dir (resolving symlinks) and returns it as a Root,
// creating it if it does not yet exist.
func NewRoot(dir string) (Root, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return Root{}, fmt.Errorf("create root %s: %w", dir, err)
	}
	abs, err := canonical(dir)
	if err != nil {
		return Root{}, fmt.Errorf("canonicalize root %s: %w", dir, err)
	}
	return Root{abs: abs}, nil
}

// String returns the canonical absolute root path.
func (r Root) String() string { return r.abs }

func canonical(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		// Path may not exist yet (e.g. a CD target being validated before
		// creation); fall back to the lexically-cleaned absolute form so
		// callers can still compare it against the root.
		if os.IsNotExist(err) {
			return filepath.Clean(abs), nil
		}
		return "", err
	}
	return resolved, nil
}

// withinRoot reports whether candidate (already canonicalized) is root or
// a descendant of it.
func withinRoot(root Root, candidate string) bool {
	if candidate == root.abs {
		return true
	}
	prefix := root.abs
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(candidate, prefix)
}

// Resolve joins input to cwd (an ascent path such as ".." therefore names
// cwd's parent; absolute-looking input is joined to root instead),
// canonicalizes the result, and confirms it lies within root.
// cwd must itself already be a validated absolute path beneath root.
func Resolve(root Root, cwd, input string) (string, error) {
	if input == "" {
		return "", apperrors.Newf(apperrors.KindInvalidPath, "empty path")
	}

	var joined string
	if filepath.IsAbs(input) {
		// Absolute-looking client input is treated as relative to root,
		// never the host filesystem root.
		joined = filepath.Join(root.abs, strings.TrimPrefix(input, string(filepath.Separator)))
	} else {
		joined = filepath.Join(cwd, input)
	}

	candidate, err := canonical(joined)
	if err != nil {
		return "", apperrors.New(apperrors.KindFatalIO, err)
	}

	if !withinRoot(root, candidate) {
		return "", apperrors.Newf(apperrors.KindInvalidPath, "path escapes root: %s", input)
	}
	return candidate, nil
}

// ResolveForCD applies CD-specific tie-breaks: a nonexistent directory
// target is invalid-path (not not-found), and a target that resolves to
// a regular file is also invalid-path.
func ResolveForCD(root Root, cwd, input string) (string, error) {
	target, err := Resolve(root, cwd, input)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(target)
	if err != nil {
		return "", apperrors.Newf(apperrors.KindInvalidPath, "no such directory: %s", input)
	}
	if !info.IsDir() {
		return "", apperrors.Newf(apperrors.KindInvalidPath, "not a directory: %s", input)
	}
	return target, nil
}

// ResolveForDownload applies the download-specific tie-break: a target
// that resolves to a directory is not-a-file, distinct from not-found
// for a missing target.
func ResolveForDownload(root Root, cwd, input string) (string, error) {
	target, err := Resolve(root, cwd, input)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(target)
	if err != nil {
		return "", apperrors.Newf(apperrors.KindNotFound, "not found: %s", input)
	}
	if info.IsDir() {
		return "", apperrors.Newf(apperrors.KindInvalidPath, "not a file: %s", input)
	}
	return target, nil
}

// ValidateComponent checks a single bulk-upload path component's
// limits: no ".." after cleaning, length <= 255.
func ValidateComponent(component string) error {
	if component == "" {
		return apperrors.Newf(apperrors.KindInvalidPath, "empty path component")
	}
	if len(component) > 255 {
		return apperrors.Newf(apperrors.KindInvalidPath, "path component too long: %s", component)
	}
	if component == ".." || component == "." {
		return apperrors.Newf(apperrors.KindInvalidPath, "disallowed path component: %s", component)
	}
	return nil
}

// ValidateDepth checks the directory-depth limit of 10 for a
// POSIX-normalized relative path.
func ValidateDepth(relPath string) error {
	clean := strings.Trim(filepath.ToSlash(relPath), "/")
	if clean == "" {
		return nil
	}
	depth := len(strings.Split(clean, "/"))
	if depth > 10 {
		return apperrors.Newf(apperrors.KindInvalidPath, "path too deep (%d): %s", depth, relPath)
	}
	return nil
}
