package domain

import "sort"

// SortByScore orders chunks by Score descending with ties broken by chunk
// id ascending, giving a deterministic total order.
func SortByScore(chunks []ScoredChunk) {
	sort.SliceStable(chunks, func(i, j int) bool {
		if chunks[i].Score != chunks[j].Score {
			return chunks[i].Score > chunks[j].Score
		}
		return chunks[i].Chunk.ID < chunks[j].Chunk.ID
	})
}

// ChunkIDs returns the ids of chunks in order.
func ChunkIDs(chunks []ScoredChunk) []string {
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.Chunk.ID
	}
	return ids
}
