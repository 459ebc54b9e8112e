package usecase

import (
	"context"
	"fmt"

	"ragcore/internal/domain"
	"ragcore/internal/port"
)

// ContextExpander adds the hierarchical neighbours of search results: their
// parent chunks and the siblings sharing a parent.
type ContextExpander struct {
	store port.VectorStore
}

// NewContextExpander creates a new context expander.
func NewContextExpander(store port.VectorStore) *ContextExpander {
	return &ContextExpander{store: store}
}

type expandOptions struct {
	parents      bool
	siblings     bool
	parentScore  float64
	siblingScore float64
	deadline     domain.DeadlineCheck
}

// Expand appends parents, then siblings, after results. Every added chunk
// carries a fixed discounted Score and chunk ids stay unique.
func (e *ContextExpander) Expand(ctx context.Context, results []domain.ScoredChunk, opts expandOptions) ([]domain.ScoredChunk, error) {
	if len(results) == 0 {
		return results, nil
	}

	included := make(map[string]bool, len(results))
	for _, r := range results {
		included[r.Chunk.ID] = true
	}

	// parent ids in first-seen order
	parentIDs := make([]string, 0)
	seenParent := make(map[string]bool)
	for _, r := range results {
		p := r.Chunk.Metadata.ParentChunkID
		if p == "" || seenParent[p] {
			continue
		}
		seenParent[p] = true
		parentIDs = append(parentIDs, p)
	}
	if len(parentIDs) == 0 {
		return results, nil
	}

	expanded := make([]domain.ScoredChunk, 0, len(results)+len(parentIDs))
	expanded = append(expanded, results...)

	if opts.parents {
		missing := make([]string, 0, len(parentIDs))
		for _, id := range parentIDs {
			if !included[id] {
				missing = append(missing, id)
			}
		}
		if len(missing) > 0 {
			if err := checkDeadline(ctx, opts.deadline); err != nil {
				return nil, err
			}
			parents, err := e.store.GetChunksByID(ctx, missing)
			if err != nil {
				return nil, fmt.Errorf("%w: fetch parents: %w", domain.ErrVectorStoreFailure, err)
			}
			for _, c := range parents {
				if included[c.ID] {
					continue
				}
				expanded = append(expanded, discounted(c, opts.parentScore))
				included[c.ID] = true
			}
		}
	}

	if opts.siblings {
		for _, parentID := range parentIDs {
			if err := checkDeadline(ctx, opts.deadline); err != nil {
				return nil, err
			}
			siblings, err := e.store.GetChunksByParentID(ctx, parentID)
			if err != nil {
				return nil, fmt.Errorf("%w: fetch siblings of %s: %w", domain.ErrVectorStoreFailure, parentID, err)
			}
			for _, c := range siblings {
				if included[c.ID] {
					continue
				}
				expanded = append(expanded, discounted(c, opts.siblingScore))
				included[c.ID] = true
			}
		}
	}

	return expanded, nil
}

func discounted(c domain.Chunk, score float64) domain.ScoredChunk {
	return domain.ScoredChunk{Chunk: c, Score: score}
}
