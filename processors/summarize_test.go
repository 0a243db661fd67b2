package processors

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lectureRAG/core"
	"lectureRAG/storage"
)

func TestSortVectors(t *testing.T) {
	rec := func(id, number string, start float64) core.IndexedVector {
		return core.IndexedVector{ID: id, Metadata: core.VectorMetadata{Number: number, Start: start}}
	}
	records := []core.IndexedVector{
		rec("na-b", core.NumberNA, 0),
		rec("10-a", "10", 5),
		rec("2-b", "2", 30),
		rec("abc", "abc", 0),
		rec("2-a", "2", 0),
		rec("10-b", "10", 5),
		rec("na-a", core.NumberNA, 0),
		rec("9", "9", 100),
	}
	SortVectors(records)

	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	// numeric before non-numeric; 9 before 10 by value; ties by start then id
	assert.Equal(t, []string{"2-a", "2-b", "9", "10-a", "10-b", "na-a", "na-b", "abc"}, ids)
}

func summaryStore(t *testing.T) storage.VectorStore {
	t.Helper()
	store := storage.NewMemoryVectorStore()
	md := core.VectorMetadata{Title: "3_graphs", ChunkID: "3", Number: "3"}
	second, first := md, md
	second.Start, second.End = 10, 20
	first.Start, first.End = 0, 10
	require.NoError(t, store.Insert(context.Background(), []core.IndexedVector{
		{ID: "3_graphs__3__10000", Text: " then edges.", Embedding: []float32{1, 0}, Metadata: second},
		{ID: "3_graphs__3__0", Text: "Graphs have vertices ", Embedding: []float32{0, 1}, Metadata: first},
		{ID: "4_other__4__0", Text: "unrelated", Embedding: []float32{1, 1}, Metadata: core.VectorMetadata{Title: "4_other", Number: "4"}},
	}))
	return store
}

func TestSummarizeBothParts(t *testing.T) {
	llm := &scriptedLLM{fn: func(system, _ string) (string, error) {
		if system == quickSummaryPrompt {
			return "- quick", nil
		}
		return "# Lecture Title", nil
	}}
	s := NewSummarizer(summaryStore(t), llm, nil, nil)

	sum, err := s.Summarize(context.Background(), "3_graphs")
	require.NoError(t, err)
	assert.Equal(t, "3_graphs", sum.Title)
	assert.Equal(t, 2, sum.Chunks)
	assert.Equal(t, core.SummaryPart{Available: true, Text: "- quick"}, sum.Quick)
	assert.Equal(t, core.SummaryPart{Available: true, Text: "# Lecture Title"}, sum.Full)

	require.Equal(t, 2, llm.callCount())
	for _, c := range llm.calls {
		assert.Contains(t, c.prompt, "Graphs have vertices\nthen edges.")
		assert.NotContains(t, c.prompt, "unrelated")
	}
}

func TestSummarizePartialFailure(t *testing.T) {
	llm := &scriptedLLM{fn: func(system, _ string) (string, error) {
		if system == fullSummaryPrompt {
			return "", errors.New("context length exceeded")
		}
		return "- quick", nil
	}}
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	sum, err := NewSummarizer(summaryStore(t), llm, nil, logger).Summarize(context.Background(), "3_graphs")
	require.NoError(t, err)
	assert.True(t, sum.Quick.Available)
	assert.False(t, sum.Full.Available)
	assert.Contains(t, sum.Full.Error, "full summary: context length exceeded")
	assert.Empty(t, sum.Full.Text)

	out := logs.String()
	assert.Contains(t, out, "Lecture summary incomplete")
	assert.Contains(t, out, "quick=true")
	assert.Contains(t, out, "full=false")
}

func TestSummarizeBothFail(t *testing.T) {
	llm := &scriptedLLM{fn: func(_, _ string) (string, error) { return "", errors.New("down") }}
	sum, err := NewSummarizer(summaryStore(t), llm, nil, nil).Summarize(context.Background(), "3_graphs")
	require.NoError(t, err)
	assert.False(t, sum.Quick.Available)
	assert.False(t, sum.Full.Available)
}

func TestSummarizeUnknownLecture(t *testing.T) {
	llm := &scriptedLLM{}
	s := NewSummarizer(summaryStore(t), llm, nil, nil)

	_, err := s.Summarize(context.Background(), "9_missing")
	assert.ErrorIs(t, err, core.ErrNoResults)

	_, err = s.Summarize(context.Background(), "  ")
	assert.ErrorIs(t, err, core.ErrInvalidInput)
	assert.Zero(t, llm.callCount())
}
