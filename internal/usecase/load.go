package usecase

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"ragcore/internal/domain"
	"ragcore/internal/port"
)

// chunkNamespace seeds deterministic ids for chunks loaded without one.
var chunkNamespace = uuid.MustParse("8f1c3c0e-5b7a-4e43-9d1e-2a6f0b9c4d21")

// ChunkID derives a stable id from a chunk's provenance so that reloading
// the same file replaces rather than duplicates its chunks.
func ChunkID(md domain.ChunkMetadata) string {
	key := strings.Join([]string{md.CollectionID, md.RepoID, md.FilePath,
		strconv.Itoa(md.PageIndex), strconv.Itoa(md.ChunkIndex)}, "\x00")
	return uuid.NewSHA1(chunkNamespace, []byte(key)).String()
}

// ReadChunksJSONL decodes one chunk per line. Blank lines are skipped.
// Chunks without a collection get defaultCollection; chunks without an id
// get ChunkID of their metadata.
func ReadChunksJSONL(r io.Reader, defaultCollection string) ([]domain.Chunk, error) {
	var chunks []domain.Chunk
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var c domain.Chunk
		if err := json.Unmarshal([]byte(text), &c); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if strings.TrimSpace(c.Content) == "" {
			return nil, fmt.Errorf("line %d: chunk has no content", line)
		}
		if c.Metadata.CollectionID == "" {
			c.Metadata.CollectionID = defaultCollection
		}
		if c.ID == "" {
			c.ID = ChunkID(c.Metadata)
		}
		chunks = append(chunks, c)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read chunks: %w", err)
	}
	return chunks, nil
}

// LoadResult summarizes one load.
type LoadResult struct {
	ChunksLoaded int           `json:"chunks_loaded"`
	Batches      int           `json:"batches"`
	TotalStored  int           `json:"total_stored"`
	Duration     time.Duration `json:"duration"`
}

// ProgressFunc is called after every stored batch.
type ProgressFunc func(done, total int)

// LoadUseCase embeds chunks and writes them to a vector store.
type LoadUseCase struct {
	embedder  port.Embedder
	writer    port.VectorWriter
	batchSize int
	log       *slog.Logger
}

// NewLoadUseCase creates a load use case. batchSize <= 0 means 100.
func NewLoadUseCase(embedder port.Embedder, writer port.VectorWriter, batchSize int, logger *slog.Logger) *LoadUseCase {
	if batchSize <= 0 {
		batchSize = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LoadUseCase{embedder: embedder, writer: writer, batchSize: batchSize, log: logger}
}

// Load embeds and stores chunks batch by batch. Batches already stored
// stay stored when a later batch fails.
func (u *LoadUseCase) Load(ctx context.Context, chunks []domain.Chunk, progress ProgressFunc) (LoadResult, error) {
	start := time.Now()
	var result LoadResult

	for i := 0; i < len(chunks); i += u.batchSize {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		batch := chunks[i:min(i+u.batchSize, len(chunks))]

		texts := make([]string, len(batch))
		for j, c := range batch {
			texts[j] = c.Content
		}
		vectors, err := u.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return result, fmt.Errorf("%w: batch %d: %w", domain.ErrEmbeddingFailure, result.Batches, err)
		}
		if len(vectors) != len(batch) {
			return result, fmt.Errorf("%w: batch %d: got %d vectors for %d texts",
				domain.ErrEmbeddingFailure, result.Batches, len(vectors), len(batch))
		}

		items := make([]port.VectorItem, len(batch))
		for j, c := range batch {
			items[j] = port.VectorItem{Chunk: c, Vector: vectors[j]}
		}
		if err := u.writer.Upsert(ctx, items); err != nil {
			return result, fmt.Errorf("store batch %d: %w", result.Batches, err)
		}

		result.Batches++
		result.ChunksLoaded += len(batch)
		if progress != nil {
			progress(result.ChunksLoaded, len(chunks))
		}
	}

	total, err := u.writer.Count()
	if err != nil {
		return result, err
	}
	result.TotalStored = total
	result.Duration = time.Since(start)

	u.log.Info("load complete",
		slog.Int("chunks", result.ChunksLoaded),
		slog.Int("batches", result.Batches),
		slog.Int("stored", result.TotalStored),
		slog.Duration("duration", result.Duration))
	return result, nil
}

// sourceKey identifies the file a chunk was cut from.
type sourceKey struct {
	collection, repo, path string
}

func sourceOf(md domain.ChunkMetadata) sourceKey {
	return sourceKey{md.CollectionID, md.RepoID, md.FilePath}
}

// Sync deletes stored chunks that come from the same files as chunks but
// are no longer among them, so a reloaded file does not keep stale chunks.
// Chunks without a file path are never removed. It returns the number of
// chunks deleted.
func (u *LoadUseCase) Sync(ctx context.Context, chunks []domain.Chunk) (int, error) {
	remover, ok := u.writer.(port.ChunkRemover)
	if !ok {
		return 0, fmt.Errorf("store does not support removing chunks")
	}

	sources := make(map[sourceKey]bool)
	keep := make(map[string]bool, len(chunks))
	for _, c := range chunks {
		keep[c.ID] = true
		if c.Metadata.FilePath != "" {
			sources[sourceOf(c.Metadata)] = true
		}
	}
	if len(sources) == 0 {
		return 0, nil
	}

	candidates, err := remover.ChunkIDs(ctx, func(md domain.ChunkMetadata) bool {
		return md.FilePath != "" && sources[sourceOf(md)]
	})
	if err != nil {
		return 0, err
	}

	var stale []string
	for _, id := range candidates {
		if !keep[id] {
			stale = append(stale, id)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	if err := remover.Delete(ctx, stale); err != nil {
		return 0, fmt.Errorf("remove stale chunks: %w", err)
	}

	u.log.Info("removed stale chunks", slog.Int("count", len(stale)), slog.Int("files", len(sources)))
	return len(stale), nil
}
