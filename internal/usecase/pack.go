package usecase

import (
	"fmt"
	"sort"
	"strings"

	"ragcore/internal/adapter/analyzer"
	"ragcore/internal/domain"
)

// Snippet is one citation-ready passage of a packed context.
type Snippet struct {
	ChunkIDs []string `json:"chunk_ids"`
	Source   string   `json:"source"`
	Heading  string   `json:"heading,omitempty"`
	Why      string   `json:"why"`
	Text     string   `json:"text"`
}

// PackedContext is the token-budgeted context handed to a generator.
type PackedContext struct {
	Query        string    `json:"query"`
	BudgetTokens int       `json:"budget_tokens"`
	UsedTokens   int       `json:"used_tokens"`
	Snippets     []Snippet `json:"snippets"`
}

// PackUseCase handles context packing operations.
type PackUseCase struct {
	tokenizer *analyzer.Tokenizer
}

// NewPackUseCase creates a new pack use case.
func NewPackUseCase(tokenizer *analyzer.Tokenizer) *PackUseCase {
	if tokenizer == nil {
		tokenizer = analyzer.NewTokenizer(false)
	}
	return &PackUseCase{tokenizer: tokenizer}
}

// Pack packs scored chunks into a context that fits the token budget.
func (u *PackUseCase) Pack(query string, chunks []domain.ScoredChunk, budget int) PackedContext {
	packed := PackedContext{Query: query, BudgetTokens: budget, Snippets: []Snippet{}}
	if len(chunks) == 0 || budget <= 0 {
		return packed
	}

	// Calculate utility for each chunk: score / tokens
	type rankedChunk struct {
		chunk   domain.ScoredChunk
		utility float64
		tokens  int
	}

	ranked := make([]rankedChunk, 0, len(chunks))
	for _, c := range chunks {
		tokens := max(1, u.tokenizer.CountTokens(c.Chunk.Content))
		ranked = append(ranked, rankedChunk{
			chunk:   c,
			utility: c.Score / float64(tokens),
			tokens:  tokens,
		})
	}

	// Sort by utility (best value first)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].utility != ranked[j].utility {
			return ranked[i].utility > ranked[j].utility
		}
		return ranked[i].chunk.Chunk.ID < ranked[j].chunk.Chunk.ID
	})

	// Greedy selection until budget is exhausted
	selected := make([]domain.ScoredChunk, 0, len(ranked))
	usedTokens := 0
	for _, rc := range ranked {
		if usedTokens+rc.tokens > budget {
			continue
		}
		selected = append(selected, rc.chunk)
		usedTokens += rc.tokens
	}

	for _, group := range mergeAdjacentChunks(selected) {
		packed.Snippets = append(packed.Snippets, toSnippet(group))
	}

	packed.UsedTokens = usedTokens
	return packed
}

// mergeAdjacentChunks groups chunks that share a parent and have consecutive
// chunk indexes. Groups keep the order of their best-scoring member.
func mergeAdjacentChunks(chunks []domain.ScoredChunk) [][]domain.ScoredChunk {
	byParent := make(map[string][]domain.ScoredChunk)
	order := make([]string, 0)
	var groups [][]domain.ScoredChunk

	for _, c := range chunks {
		p := c.Chunk.Metadata.ParentChunkID
		if p == "" {
			groups = append(groups, []domain.ScoredChunk{c})
			continue
		}
		if _, ok := byParent[p]; !ok {
			order = append(order, p)
		}
		byParent[p] = append(byParent[p], c)
	}

	for _, p := range order {
		siblings := byParent[p]
		sort.SliceStable(siblings, func(i, j int) bool {
			return siblings[i].Chunk.Metadata.ChunkIndex < siblings[j].Chunk.Metadata.ChunkIndex
		})

		i := 0
		for i < len(siblings) {
			j := i + 1
			for j < len(siblings) && siblings[j].Chunk.Metadata.ChunkIndex == siblings[j-1].Chunk.Metadata.ChunkIndex+1 {
				j++
			}
			groups = append(groups, siblings[i:j])
			i = j
		}
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return bestScore(groups[i]) > bestScore(groups[j])
	})
	return groups
}

func bestScore(group []domain.ScoredChunk) float64 {
	best := group[0].Score
	for _, c := range group[1:] {
		best = max(best, c.Score)
	}
	return best
}

func toSnippet(group []domain.ScoredChunk) Snippet {
	first := group[0].Chunk
	ids := make([]string, len(group))
	texts := make([]string, len(group))
	for i, c := range group {
		ids[i] = c.Chunk.ID
		texts[i] = c.Chunk.Content
	}

	source := first.Metadata.FilePath
	if source == "" {
		source = first.Metadata.CollectionID
	}
	if first.Metadata.PageIndex > 0 {
		source = fmt.Sprintf("%s#page=%d", source, first.Metadata.PageIndex)
	}

	return Snippet{
		ChunkIDs: ids,
		Source:   source,
		Heading:  strings.Join(first.Metadata.HeadingPath, " > "),
		Why:      fmt.Sprintf("score %.2f", bestScore(group)),
		Text:     strings.Join(texts, "\n"),
	}
}
