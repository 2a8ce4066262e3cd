// Package manifest builds and diffs the content manifest used by the sync
// protocol: a map from POSIX-relative path to either the
// directory sentinel or a hex content digest.
//
// Grounded on pkg/sync/checksum.go (CalculateFileChecksum,
// CalculateDirectoryChecksum) and the walk shape of
// pkg/sync/directory_scanner.go, switched from SHA-256 to MD5 and from
// one combined digest to a per-file manifest map.
package manifest

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// DirSentinel is the manifest value recorded for directory entries.
const DirSentinel = "__DIR__"

// Manifest maps a POSIX-relative path to DirSentinel or a hex MD5 digest.
type Manifest map[string]string

// Build walks base recursively and returns its manifest. Unreadable
// entries are skipped and aggregated into a non-fatal combined error;
// the returned Manifest is always usable even when err is non-nil.
func Build(base string) (Manifest, error) {
	m := make(Manifest)
	var errs *multierror.Error

	err := filepath.Walk(base, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			errs = multierror.Append(errs, fmt.Errorf("walk %s: %w", path, walkErr))
			return nil
		}
		if path == base {
			return nil
		}
		rel, err := filepath.Rel(base, path)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("relativize %s: %w", path, err))
			return nil
		}
		rel = filepath.ToSlash(rel)

		if info.IsDir() {
			m[rel] = DirSentinel
			return nil
		}

		digest, err := fileDigest(path)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("digest %s: %w", path, err))
			return nil
		}
		m[rel] = digest
		return nil
	})
	if err != nil {
		errs = multierror.Append(errs, err)
	}

	if errs != nil {
		return m, errs.ErrorOrNil()
	}
	return m, nil
}

func fileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Diff compares a client manifest against the server's and returns the
// two action lists a sync round needs:
//
//   - toDelete: keys present only on the server.
//   - toFetch: keys where the client has a non-directory digest and
//     either the key is absent on the server, or both sides are
//     non-directory and the digests differ.
//
// Directories are never placed in toFetch. Results are sorted for
// deterministic output — no ordering is required, but a stable one
// makes responses reproducible for tests.
func Diff(client, server Manifest) (toDelete, toFetch []string) {
	for key := range server {
		if _, ok := client[key]; !ok {
			toDelete = append(toDelete, key)
		}
	}

	for key, clientDigest := range client {
		if clientDigest == DirSentinel {
			continue
		}
		serverDigest, ok := server[key]
		if !ok {
			toFetch = append(toFetch, key)
			continue
		}
		if serverDigest == DirSentinel {
			continue
		}
		if serverDigest != clientDigest {
			toFetch = append(toFetch, key)
		}
	}

	sort.Strings(toDelete)
	sort.Strings(toFetch)
	return toDelete, toFetch
}

// ApplyDeletions removes every path in toDelete from disk under base,
// deepest path first so files are removed before their parent
// directories, removing a directory only if it is empty afterward.
// Failures are collected and returned as one combined error;
// deletions that did succeed are not rolled back.
func ApplyDeletions(base string, toDelete []string) error {
	ordered := make([]string, len(toDelete))
	copy(ordered, toDelete)
	sort.Slice(ordered, func(i, j int) bool {
		return depth(ordered[i]) > depth(ordered[j])
	})

	var errs *multierror.Error
	for _, rel := range ordered {
		full := filepath.Join(base, filepath.FromSlash(rel))
		info, err := os.Lstat(full)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			errs = multierror.Append(errs, fmt.Errorf("stat %s: %w", rel, err))
			continue
		}
		if info.IsDir() {
			if err := os.Remove(full); err != nil {
				// Non-empty after file deletions: retained with a
				// diagnostic, not a fatal error.
				errs = multierror.Append(errs, fmt.Errorf("directory not empty, retained %s: %w", rel, err))
			}
			continue
		}
		if err := os.Remove(full); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("delete %s: %w", rel, err))
		}
	}
	if errs != nil {
		return errs.ErrorOrNil()
	}
	return nil
}

func depth(relPath string) int {
	return strings.Count(relPath, "/")
}
