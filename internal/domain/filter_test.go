package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterMatches(t *testing.T) {
	meta := ChunkMetadata{CollectionID: "docs", RepoID: "api", FilePath: "services/auth/README.md"}

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty matches all", Filter{}, true},
		{"collection hit", Filter{CollectionIDs: []string{"code", "docs"}}, true},
		{"collection miss", Filter{CollectionIDs: []string{"code"}}, false},
		{"repo miss", Filter{RepoID: "web"}, false},
		{"glob hit", Filter{PathGlobs: []string{"services/**/*.md"}}, true},
		{"glob miss", Filter{PathGlobs: []string{"*.go"}}, false},
		{"any glob", Filter{PathGlobs: []string{"*.go", "**/README.md"}}, true},
		{"all fields", Filter{CollectionIDs: []string{"docs"}, RepoID: "api", PathGlobs: []string{"services/**"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(meta))
		})
	}
}

func TestFilterValidate(t *testing.T) {
	assert.NoError(t, Filter{PathGlobs: []string{"**/*.md"}}.Validate())
	assert.Error(t, Filter{PathGlobs: []string{"[a-"}}.Validate())
	assert.True(t, Filter{}.IsEmpty())
	assert.False(t, Filter{RepoID: "x"}.IsEmpty())
}

func TestSortByScoreTieBreak(t *testing.T) {
	chunks := []ScoredChunk{
		{Chunk: Chunk{ID: "b"}, Score: 0.5},
		{Chunk: Chunk{ID: "c"}, Score: 0.9},
		{Chunk: Chunk{ID: "a"}, Score: 0.5},
	}
	SortByScore(chunks)
	assert.Equal(t, []string{"c", "a", "b"}, ChunkIDs(chunks))
}
