// Package paths contains the path rules shared by every part of linksync.
//
// All paths are normalized to forward slashes before they're compared, and
// relative paths are always expressed relative to a root directory so that
// the same relative path can be used as a key across every root of a link.
package paths

import (
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// Slash is the separator used by all normalized paths.
const Slash = '/'

// MetaSuffix is appended to a path to get the path of its metadata
// companion. Excluding a path also excludes its companion.
const MetaSuffix = ".meta"

// NormalizeSlashes converts all back slashes to forward slashes.
func NormalizeSlashes(p string) string {
	return strings.ReplaceAll(p, `\`, string(Slash))
}

// RemoveTrailingSlashes strips any trailing slashes from `p`. The filesystem
// root is left as is.
func RemoveTrailingSlashes(p string) string {
	trimmed := strings.TrimRight(p, string(Slash))
	if trimmed == "" && p != "" {
		return string(Slash)
	}
	return trimmed
}

// Clean normalizes the slashes in `p` and removes any redundant elements.
// The empty path stays empty.
func Clean(p string) string {
	if p == "" {
		return ""
	}
	return path.Clean(NormalizeSlashes(p))
}

// Join joins a root and a relative path into a normalized path.
func Join(root, rel string) string {
	return path.Join(NormalizeSlashes(root), NormalizeSlashes(rel))
}

// IsAbs returns whether `p` is an absolute path on this platform.
func IsAbs(p string) bool {
	return filepath.IsAbs(filepath.FromSlash(p)) || strings.HasPrefix(NormalizeSlashes(p), "/")
}

// IsExcluded returns whether the relative path is excluded by any of the
// exclusions. An exclusion matches its exact path, its metadata companion,
// and everything inside it if it's a directory.
func IsExcluded(rel string, exclusions []string) bool {
	if rel == "" {
		return false
	}

	rel = NormalizeSlashes(rel)
	for _, exclusion := range exclusions {
		exclusion = RemoveTrailingSlashes(NormalizeSlashes(exclusion))
		if exclusion == "" {
			continue
		}

		switch {
		case rel == exclusion:
			return true
		case rel == exclusion+MetaSuffix:
			return true
		case strings.HasPrefix(rel, exclusion+string(Slash)):
			return true
		}
	}
	return false
}

// IsInside returns whether `p` is `root` or is contained by it. Both paths
// must be absolute.
func IsInside(p, root string) bool {
	p = Clean(p)
	root = Clean(root)
	if p == "" || root == "" {
		return false
	}

	if p == root {
		return true
	}

	prefix := root
	if !strings.HasSuffix(prefix, string(Slash)) {
		prefix += string(Slash)
	}
	return strings.HasPrefix(p, prefix)
}

// RelativeTo returns the path of `p` relative to `root`. The second return
// value is false if `p` isn't strictly inside `root`.
func RelativeTo(root, p string) (string, bool) {
	root = Clean(root)
	p = Clean(p)
	if p == root || !IsInside(p, root) {
		return "", false
	}
	return strings.TrimPrefix(strings.TrimPrefix(p, root), string(Slash)), true
}

// SortLongestFirst orders paths so that children come before their parents.
// Only the lengths matter, since a directory can only be removed once
// everything inside it is gone.
func SortLongestFirst(paths []string) {
	sort.SliceStable(paths, func(i, j int) bool {
		return len(paths[i]) > len(paths[j])
	})
}
