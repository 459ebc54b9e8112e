package domain

import (
	"slices"

	"github.com/bmatcuk/doublestar/v4"
)

// IsEmpty reports whether f matches every chunk.
func (f Filter) IsEmpty() bool {
	return len(f.CollectionIDs) == 0 && f.RepoID == "" && len(f.PathGlobs) == 0
}

// Matches reports whether m passes every non-empty field of f. PathGlobs are
// doublestar patterns; a chunk matches when any pattern matches its path.
func (f Filter) Matches(m ChunkMetadata) bool {
	if len(f.CollectionIDs) > 0 && !slices.Contains(f.CollectionIDs, m.CollectionID) {
		return false
	}
	if f.RepoID != "" && f.RepoID != m.RepoID {
		return false
	}
	if len(f.PathGlobs) == 0 {
		return true
	}
	for _, pattern := range f.PathGlobs {
		if ok, err := doublestar.Match(pattern, m.FilePath); err == nil && ok {
			return true
		}
	}
	return false
}

// Validate checks that every path glob is well formed.
func (f Filter) Validate() error {
	for _, pattern := range f.PathGlobs {
		if !doublestar.ValidatePattern(pattern) {
			return &InvalidPatternError{Pattern: pattern}
		}
	}
	return nil
}

// InvalidPatternError reports a malformed path glob.
type InvalidPatternError struct {
	Pattern string
}

func (e *InvalidPatternError) Error() string {
	return "invalid path glob: " + e.Pattern
}
