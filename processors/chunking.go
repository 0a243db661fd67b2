package processors

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"lectureRAG/core"
)

// ExtractOrdinal returns the part of title before the first underscore when
// it is made only of ASCII digits, otherwise core.NumberNA.
func ExtractOrdinal(title string) string {
	head, _, _ := strings.Cut(title, "_")
	if head == "" {
		return core.NumberNA
	}
	for _, r := range head {
		if r < '0' || r > '9' {
			return core.NumberNA
		}
	}
	return head
}

// ResolveNumber prefers an explicit lecture sequence number over the title prefix.
func ResolveNumber(title string, seq *int) (string, error) {
	if seq == nil {
		return ExtractOrdinal(title), nil
	}
	if *seq < 0 {
		return "", fmt.Errorf("%w: sequence number must not be negative, got %d", core.ErrInvalidInput, *seq)
	}
	return strconv.Itoa(*seq), nil
}

// BuildChunks attaches title and number to each segment, preserving order.
func BuildChunks(title, number string, segments []core.Segment) []core.TranscriptChunk {
	chunks := make([]core.TranscriptChunk, 0, len(segments))
	for _, s := range segments {
		chunks = append(chunks, core.TranscriptChunk{
			Number: number,
			Title:  title,
			Start:  s.Start,
			End:    s.End,
			Text:   s.Text,
		})
	}
	return chunks
}

// SaveChunkFile writes the chunk file atomically.
func SaveChunkFile(path string, chunks []core.TranscriptChunk) error {
	if chunks == nil {
		chunks = []core.TranscriptChunk{}
	}
	data, err := json.MarshalIndent(core.ChunkFile{Chunks: chunks}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode chunk file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create transcript directory: %w", err)
	}
	tmp := path + ".tmp-" + uuid.NewString()
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write chunk file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename chunk file: %w", err)
	}
	return nil
}

// LoadChunkFile reads a chunk file. A missing file matches core.ErrTranscriptNotFound.
func LoadChunkFile(path string) ([]core.TranscriptChunk, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", core.ErrTranscriptNotFound, path)
		}
		return nil, fmt.Errorf("read chunk file: %w", err)
	}
	var f core.ChunkFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode chunk file %s: %w", path, err)
	}
	return f.Chunks, nil
}

// NonEmptyChunks drops chunks whose text is empty or whitespace only.
func NonEmptyChunks(chunks []core.TranscriptChunk) []core.TranscriptChunk {
	out := make([]core.TranscriptChunk, 0, len(chunks))
	for _, c := range chunks {
		if strings.TrimSpace(c.Text) != "" {
			out = append(out, c)
		}
	}
	return out
}

// ChunkID is "{title}__{number}__{start in whole milliseconds}".
func ChunkID(c core.TranscriptChunk) string {
	return fmt.Sprintf("%s__%s__%d", c.Title, c.Number, int64(c.Start*1000))
}

// BuildVectors pairs chunks with their embeddings positionally.
func BuildVectors(chunks []core.TranscriptChunk, embeddings [][]float32) ([]core.IndexedVector, error) {
	if len(chunks) != len(embeddings) {
		return nil, fmt.Errorf("got %d embeddings for %d chunks", len(embeddings), len(chunks))
	}
	seen := make(map[string]struct{}, len(chunks))
	out := make([]core.IndexedVector, 0, len(chunks))
	for i, c := range chunks {
		id := ChunkID(c)
		if _, ok := seen[id]; ok {
			return nil, fmt.Errorf("%w: %s", core.ErrDuplicateID, id)
		}
		seen[id] = struct{}{}
		out = append(out, core.IndexedVector{
			ID:        id,
			Text:      c.Text,
			Embedding: embeddings[i],
			Metadata: core.VectorMetadata{
				Title:   c.Title,
				ChunkID: c.Number,
				Start:   c.Start,
				End:     c.End,
				Number:  c.Number,
			},
		})
	}
	return out, nil
}

// chunkTexts collects the text of each chunk.
func chunkTexts(chunks []core.TranscriptChunk) []string {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	return texts
}
