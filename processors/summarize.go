package processors

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"lectureRAG/core"
	"lectureRAG/storage"
)

const quickSummaryPrompt = `You are a senior university professor preparing executive revision notes.

Task: write a 1-2 minute executive summary of the lecture transcript supplied by the user.

Rules:
- 120-180 words, strictly.
- Bullet points only.
- Only the most important concepts.
- No derivations, no examples, no storytelling.
- Use precise academic terminology.
- Every bullet must stand on its own.
- Do not repeat yourself.
- Do not add anything that is absent from the transcript.

Style: concise, exam-focused, clear hierarchy, professional academic tone.`

const fullSummaryPrompt = `You are a senior AI Teaching Assistant preparing complete, exam-ready lecture notes.

Produce Markdown notes for the lecture transcript supplied by the user, using exactly these headings:

# Lecture Title
## Executive Overview
(5-8 bullets)
## Key Concepts Explained
## Step-by-Step Topic Flow
## Important Definitions
## Illustrative Examples
(only examples present in the transcript; omit the section otherwise)
## Final 10-Line Revision Notes

Strict rules:
- Use only information from the transcript.
- Do not hallucinate.
- Academic tone.
- Markdown formatting.
- No filler.`

// Summarizer builds the quick and full summaries of one indexed lecture.
type Summarizer struct {
	store   storage.VectorStore
	llm     LLMClient
	metrics *core.Metrics
	log     *slog.Logger
}

func NewSummarizer(store storage.VectorStore, llm LLMClient, metrics *core.Metrics, logger *slog.Logger) *Summarizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Summarizer{store: store, llm: llm, metrics: metrics, log: logger}
}

// Summarize 读取讲座全部分块，按顺序拼接后分别生成快速摘要与完整笔记。
// 任一摘要失败只标记为不可用，不影响另一个。
func (s *Summarizer) Summarize(ctx context.Context, title string) (*core.LectureSummary, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: lecture title is empty", core.ErrInvalidInput)
	}

	records, err := s.store.Get(ctx, storage.Filter{Title: title})
	if err != nil {
		return nil, core.NewStageError(core.ErrVectorStore, title, err)
	}
	if len(records) == 0 {
		return nil, core.NewStageError(core.ErrNoResults, title, nil)
	}

	SortVectors(records)
	chunks := make([]core.TranscriptChunk, len(records))
	for i, r := range records {
		chunks[i] = r.Chunk()
	}
	transcript := joinTranscript(chunks)
	s.log.Info("Summarizing lecture", "title", title, "chunks", len(chunks), "chars", len(transcript),
		"until", core.FormatTimestamp(chunks[len(chunks)-1].End))

	prompt := fmt.Sprintf("Lecture: %s\n\nTranscript:\n%s", title, transcript)
	summary := &core.LectureSummary{Title: title, Chunks: len(records)}

	// 两个请求互不影响，错误记录在各自结果中
	var g errgroup.Group
	g.Go(func() (err error) {
		summary.Quick, err = s.part(ctx, "quick", title, quickSummaryPrompt, prompt)
		return err
	})
	g.Go(func() (err error) {
		summary.Full, err = s.part(ctx, "full", title, fullSummaryPrompt, prompt)
		return err
	})
	if err := g.Wait(); err != nil {
		s.log.Warn("Lecture summary incomplete", "title", title,
			"quick", summary.Quick.Available, "full", summary.Full.Available, "error", err)
	}

	return summary, nil
}

// part requests one summary. A failure is returned alongside the part that
// records it, so the caller can keep the other summary.
func (s *Summarizer) part(ctx context.Context, kind, title, system, prompt string) (core.SummaryPart, error) {
	start := time.Now()
	text, err := s.llm.Complete(ctx, system, prompt)
	s.metrics.ObserveStage("summary_"+kind, time.Since(start))
	if err != nil {
		err = core.NewStageError(core.ErrCompletion, title, fmt.Errorf("%s summary: %w", kind, err))
		return core.SummaryPart{Error: err.Error()}, err
	}
	return core.SummaryPart{Available: true, Text: text}, nil
}

// SortVectors orders records by lecture number (numeric ascending, then
// non-numeric values lexically), then start time, then id.
func SortVectors(records []core.IndexedVector) {
	slices.SortStableFunc(records, func(a, b core.IndexedVector) int {
		if c := compareNumbers(a.Metadata.Number, b.Metadata.Number); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Metadata.Start, b.Metadata.Start); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

func compareNumbers(a, b string) int {
	na, errA := strconv.ParseUint(a, 10, 64)
	nb, errB := strconv.ParseUint(b, 10, 64)
	switch {
	case errA == nil && errB == nil:
		return cmp.Compare(na, nb)
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	default:
		return strings.Compare(a, b)
	}
}

// joinTranscript 拼接片段文本
func joinTranscript(chunks []core.TranscriptChunk) string {
	texts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		texts = append(texts, strings.TrimSpace(c.Text))
	}
	return strings.Join(texts, "\n")
}
