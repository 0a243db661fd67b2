package processors

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"lectureRAG/core"
	"lectureRAG/storage"
)

const answerSystemPrompt = `You are an expert AI Teaching Assistant specialized in explaining lecture videos with timestamp grounding.
You answer ONLY from the lecture transcript chunks supplied by the user.

Response requirements:
1. Identify the concept being asked about.
2. Mention the lecture title(s) where it is covered.
3. Give precise timestamp ranges (mm:ss - mm:ss) for every point you make.
4. Be concise but technical.
5. Use bullet points, with sub-bullets for details.
6. Format the answer as clean Markdown.
7. Answer in English only.
8. Put each bullet on its own line.
9. Do not add facts that are not in the chunks.
10. If the answer is only partially present, say clearly what is missing.

Formatting: **bold** key terms, use ` + "`code`" + ` for formulas, keep points short and exam-ready.`

// DefaultTopK is the number of chunks retrieved per question.
const DefaultTopK = 5

type AnswererConfig struct {
	TopK      int
	CacheSize int // query embeddings kept; 0 disables the cache
	Metrics   *core.Metrics
	Logger    *slog.Logger
}

// Answerer 基于检索结果生成带时间戳的回答
type Answerer struct {
	store    storage.VectorStore
	embedder storage.Embedder
	llm      LLMClient
	topK     int
	cache    *lru.Cache[string, []float32]
	sf       singleflight.Group
	metrics  *core.Metrics
	log      *slog.Logger
}

func NewAnswerer(store storage.VectorStore, embedder storage.Embedder, llm LLMClient, cfg AnswererConfig) (*Answerer, error) {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	a := &Answerer{
		store:    store,
		embedder: embedder,
		llm:      llm,
		topK:     cfg.TopK,
		metrics:  cfg.Metrics,
		log:      cfg.Logger,
	}
	if a.log == nil {
		a.log = slog.Default()
	}
	if cfg.CacheSize > 0 {
		c, err := lru.New[string, []float32](cfg.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("create query embedding cache: %w", err)
		}
		a.cache = c
	}
	return a, nil
}

// Ask retrieves the closest chunks, optionally within one lecture, and asks
// the LLM for an answer grounded in them.
func (a *Answerer) Ask(ctx context.Context, question, title string) (answer *core.Answer, err error) {
	defer func() { a.metrics.RecordQuery(err) }()

	q := strings.TrimSpace(question)
	if q == "" {
		return nil, fmt.Errorf("%w: question is empty", core.ErrInvalidInput)
	}
	title = strings.TrimSpace(title)

	total, err := a.store.Count(ctx, storage.Filter{})
	if err != nil {
		return nil, core.NewStageError(core.ErrVectorStore, title, err)
	}
	if total == 0 {
		return nil, core.ErrEmptyKnowledgeBase
	}

	start := time.Now()
	vec, err := a.embedQuery(ctx, q)
	if err != nil {
		return nil, core.NewStageError(core.ErrEmbedding, title, err)
	}

	hits, err := a.store.Query(ctx, vec, a.topK, storage.Filter{Title: title})
	if err != nil {
		return nil, core.NewStageError(core.ErrVectorStore, title, err)
	}
	a.metrics.ObserveStage("retrieve", time.Since(start))
	if len(hits) == 0 {
		return nil, core.NewStageError(core.ErrNoResults, title, nil)
	}

	prompt, err := buildAnswerPrompt(q, hits)
	if err != nil {
		return nil, err
	}

	start = time.Now()
	text, err := a.llm.Complete(ctx, answerSystemPrompt, prompt)
	if err != nil {
		a.log.Error("Answer generation failed", "lecture", title, "error", err)
		return nil, core.NewStageError(core.ErrCompletion, title, err)
	}
	a.metrics.ObserveStage("complete", time.Since(start))

	best := hits[0].Metadata
	a.log.Info("Question answered", "lecture", title, "hits", len(hits),
		"best", best.Title, "at", core.FormatTimestamp(best.Start))

	return &core.Answer{
		Question: q,
		Lecture:  title,
		Text:     text,
		Best:     core.Location{Title: best.Title, Start: best.Start, End: best.End},
		Sources:  hits,
	}, nil
}

// embedQuery caches question embeddings and collapses concurrent requests
// for the same question into one call.
func (a *Answerer) embedQuery(ctx context.Context, q string) ([]float32, error) {
	if a.cache != nil {
		if v, ok := a.cache.Get(q); ok {
			return slices.Clone(v), nil
		}
	}
	// 共享请求不随单个调用方取消；每个调用方各自等待
	ch := a.sf.DoChan(q, func() (any, error) {
		vecs, err := a.embedder.Embed(context.WithoutCancel(ctx), []string{q})
		if err != nil {
			return nil, err
		}
		if len(vecs) != 1 {
			return nil, fmt.Errorf("got %d embeddings for one question", len(vecs))
		}
		if a.cache != nil {
			a.cache.Add(q, vecs[0])
		}
		return vecs[0], nil
	})
	var v any
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		v = res.Val
	}
	return slices.Clone(v.([]float32)), nil
}

type promptChunk struct {
	Title     string  `json:"title"`
	Number    string  `json:"number"`
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
	Timestamp string  `json:"timestamp"`
	Text      string  `json:"text"`
}

func buildAnswerPrompt(question string, hits []core.Hit) (string, error) {
	chunks := make([]promptChunk, 0, len(hits))
	for _, h := range hits {
		chunks = append(chunks, promptChunk{
			Title:     h.Metadata.Title,
			Number:    h.Metadata.Number,
			Start:     h.Metadata.Start,
			End:       h.Metadata.End,
			Timestamp: core.FormatTimestamp(h.Metadata.Start) + " - " + core.FormatTimestamp(h.Metadata.End),
			Text:      h.Text,
		})
	}
	data, err := json.MarshalIndent(chunks, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode context chunks: %w", err)
	}

	var b strings.Builder
	b.WriteString("Lecture transcript chunks (JSON):\n")
	b.Write(data)
	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)
	b.WriteString("\n\nAnswer using only the chunks above, citing lecture titles and timestamp ranges.")
	return b.String(), nil
}
