package processors

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lectureRAG/core"
	"lectureRAG/storage"
)

// fixedEmbedder returns the same vector for every text and counts calls.
type fixedEmbedder struct {
	mu    sync.Mutex
	vec   []float32
	err   error
	calls int
}

func (f *fixedEmbedder) Dimension() int { return len(f.vec) }

func (f *fixedEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = append([]float32(nil), f.vec...)
	}
	return out, nil
}

func seedStore(t *testing.T) storage.VectorStore {
	t.Helper()
	store := storage.NewMemoryVectorStore()
	vec := func(id, title, number, text string, start, end float64, e ...float32) core.IndexedVector {
		return core.IndexedVector{
			ID: id, Text: text, Embedding: e,
			Metadata: core.VectorMetadata{Title: title, ChunkID: number, Number: number, Start: start, End: end},
		}
	}
	require.NoError(t, store.Insert(context.Background(), []core.IndexedVector{
		vec("1_intro__1__0", "1_intro", "1", "Welcome to the course.", 0, 9, 1, 0),
		vec("1_intro__1__9000", "1_intro", "1", "Gradient descent minimizes the loss.", 9, 20, 0.8, 0.6),
		vec("2_trees__2__0", "2_trees", "2", "Decision trees split on features.", 0, 12, 0, 1),
	}))
	return store
}

func newTestAnswerer(t *testing.T, store storage.VectorStore, emb storage.Embedder, llm LLMClient) *Answerer {
	t.Helper()
	a, err := NewAnswerer(store, emb, llm, AnswererConfig{CacheSize: 8})
	require.NoError(t, err)
	return a
}

func TestAskGroundsAnswerInBestHit(t *testing.T) {
	llm := &scriptedLLM{fn: func(_, _ string) (string, error) {
		return "- **Welcome** (00:00 - 00:09)", nil
	}}
	a := newTestAnswerer(t, seedStore(t), &fixedEmbedder{vec: []float32{1, 0}}, llm)

	ans, err := a.Ask(context.Background(), "  what is this course?  ", "")
	require.NoError(t, err)
	assert.Equal(t, "what is this course?", ans.Question)
	assert.Equal(t, "- **Welcome** (00:00 - 00:09)", ans.Text)
	assert.Equal(t, core.Location{Title: "1_intro", Start: 0, End: 9}, ans.Best)
	require.Len(t, ans.Sources, 3)
	assert.Equal(t, "1_intro__1__0", ans.Sources[0].ID)
	assert.Equal(t, "2_trees__2__0", ans.Sources[2].ID)

	require.Equal(t, 1, llm.callCount())
	call := llm.calls[0]
	assert.Equal(t, answerSystemPrompt, call.system)
	assert.Contains(t, call.prompt, `"title": "1_intro"`)
	assert.Contains(t, call.prompt, `"timestamp": "00:09 - 00:20"`)
	assert.Contains(t, call.prompt, "Question: what is this course?")
}

func TestAskFiltersByLecture(t *testing.T) {
	a := newTestAnswerer(t, seedStore(t), &fixedEmbedder{vec: []float32{1, 0}}, &scriptedLLM{})

	ans, err := a.Ask(context.Background(), "what splits?", "2_trees")
	require.NoError(t, err)
	assert.Equal(t, "2_trees", ans.Lecture)
	assert.Equal(t, "2_trees", ans.Best.Title)
	for _, h := range ans.Sources {
		assert.Equal(t, "2_trees", h.Metadata.Title)
	}
}

func TestAskErrors(t *testing.T) {
	ctx := context.Background()
	emb := &fixedEmbedder{vec: []float32{1, 0}}

	t.Run("empty question", func(t *testing.T) {
		_, err := newTestAnswerer(t, seedStore(t), emb, &scriptedLLM{}).Ask(ctx, " \n ", "")
		assert.ErrorIs(t, err, core.ErrInvalidInput)
	})

	t.Run("empty knowledge base", func(t *testing.T) {
		llm := &scriptedLLM{}
		_, err := newTestAnswerer(t, storage.NewMemoryVectorStore(), emb, llm).Ask(ctx, "anything?", "")
		assert.ErrorIs(t, err, core.ErrEmptyKnowledgeBase)
		assert.Zero(t, llm.callCount())
	})

	t.Run("unknown lecture", func(t *testing.T) {
		llm := &scriptedLLM{}
		_, err := newTestAnswerer(t, seedStore(t), emb, llm).Ask(ctx, "anything?", "9_missing")
		assert.ErrorIs(t, err, core.ErrNoResults)
		assert.Zero(t, llm.callCount())
	})

	t.Run("embedding failure", func(t *testing.T) {
		cause := errors.New("connection reset")
		_, err := newTestAnswerer(t, seedStore(t), &fixedEmbedder{err: cause}, &scriptedLLM{}).Ask(ctx, "anything?", "")
		assert.ErrorIs(t, err, core.ErrEmbedding)
		assert.ErrorIs(t, err, cause)
	})

	t.Run("completion failure", func(t *testing.T) {
		llm := &scriptedLLM{fn: func(_, _ string) (string, error) {
			return "", context.DeadlineExceeded
		}}
		_, err := newTestAnswerer(t, seedStore(t), emb, llm).Ask(ctx, "anything?", "")
		assert.ErrorIs(t, err, core.ErrCompletion)
		assert.ErrorIs(t, err, core.ErrUpstreamTimeout)
	})

	t.Run("embedding dimension changed", func(t *testing.T) {
		llm := &scriptedLLM{}
		wide := &fixedEmbedder{vec: []float32{1, 0, 0}}
		_, err := newTestAnswerer(t, seedStore(t), wide, llm).Ask(ctx, "anything?", "")
		assert.ErrorIs(t, err, core.ErrVectorStore)
		assert.ErrorIs(t, err, storage.ErrDimensionMismatch)
		assert.Zero(t, llm.callCount())
	})
}

// gatedEmbedder blocks until released and fails if its own context ends first.
type gatedEmbedder struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedEmbedder) Dimension() int { return 2 }

func (g *gatedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	g.once.Do(func() { close(g.started) })
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func TestAskSharedEmbeddingSurvivesCallerCancel(t *testing.T) {
	emb := &gatedEmbedder{started: make(chan struct{}), release: make(chan struct{})}
	a := newTestAnswerer(t, seedStore(t), emb, &scriptedLLM{})

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := a.Ask(ctx, "what is gradient descent?", "")
		first <- err
	}()
	<-emb.started

	second := make(chan error, 1)
	go func() {
		_, err := a.Ask(context.Background(), "what is gradient descent?", "")
		second <- err
	}()

	cancel()
	err := <-first
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, core.ErrEmbedding)

	close(emb.release)
	require.NoError(t, <-second)
}

func TestAskCachesQueryEmbeddings(t *testing.T) {
	emb := &fixedEmbedder{vec: []float32{1, 0}}
	a := newTestAnswerer(t, seedStore(t), emb, &scriptedLLM{})

	for i := 0; i < 3; i++ {
		_, err := a.Ask(context.Background(), "what is gradient descent?", "")
		require.NoError(t, err)
	}
	_, err := a.Ask(context.Background(), "what is a tree?", "")
	require.NoError(t, err)
	assert.Equal(t, 2, emb.calls)
}

func TestAskRecordsQueryMetrics(t *testing.T) {
	m := core.NewMetrics()
	a, err := NewAnswerer(seedStore(t), &fixedEmbedder{vec: []float32{1, 0}}, &scriptedLLM{}, AnswererConfig{Metrics: m})
	require.NoError(t, err)

	_, err = a.Ask(context.Background(), "q?", "")
	require.NoError(t, err)
	_, err = a.Ask(context.Background(), "", "")
	require.Error(t, err)

	body := scrapeMetrics(t, m)
	assert.Contains(t, body, `lecturerag_queries_total{outcome="success"} 1`)
	assert.Contains(t, body, `lecturerag_queries_total{outcome="failure"} 1`)
}

func TestBuildAnswerPrompt(t *testing.T) {
	prompt, err := buildAnswerPrompt("why?", []core.Hit{{
		ID:       "5_x__5__61000",
		Text:     `quote " and newline` + "\n",
		Metadata: core.VectorMetadata{Title: "5_x", Number: "5", Start: 61, End: 75.5},
	}})
	require.NoError(t, err)
	assert.Contains(t, prompt, `"timestamp": "01:01 - 01:15"`)
	assert.Contains(t, prompt, `"text": "quote \" and newline\n"`)
	assert.True(t, strings.HasSuffix(prompt, "citing lecture titles and timestamp ranges."))
}

func scrapeMetrics(t *testing.T, m *core.Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}
