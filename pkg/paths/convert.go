package paths

import (
	"path/filepath"
)

// Converter converts paths between their absolute form and their form
// relative to a base directory, usually the project directory.
type Converter struct {
	Base string
}

// NewConverter creates a Converter for the given base directory.
func NewConverter(base string) Converter {
	return Converter{Base: Clean(base)}
}

// ToAbsolute returns the normalized absolute form of `p`. Absolute paths are
// only normalized.
func (c Converter) ToAbsolute(p string) string {
	if p == "" {
		return ""
	}

	p = NormalizeSlashes(p)
	if IsAbs(p) || c.Base == "" {
		return Clean(p)
	}
	return Join(c.Base, p)
}

// ToRelative returns `p` relative to the base directory. Relative paths are
// only normalized, and paths that can't be expressed relative to the base
// (e.g. on a different volume) are returned in their absolute form.
func (c Converter) ToRelative(p string) string {
	if p == "" {
		return ""
	}

	p = Clean(p)
	if !IsAbs(p) || c.Base == "" {
		return p
	}

	rel, err := filepath.Rel(filepath.FromSlash(c.Base), filepath.FromSlash(p))
	if err != nil {
		return p
	}
	return NormalizeSlashes(filepath.ToSlash(rel))
}
