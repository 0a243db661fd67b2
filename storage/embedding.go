package storage

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Embedder turns texts into vectors, one per input, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// EmbeddingAPI is the subset of the go-openai client used for embeddings.
type EmbeddingAPI interface {
	CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// NewOpenAIClient builds a go-openai client for the configured endpoint.
func NewOpenAIClient(apiKey, baseURL string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(cfg)
}

type BatchEmbedderConfig struct {
	Model       string
	Dimensions  int
	BatchSize   int
	Concurrency int
	RPS         float64 // 0 = unlimited
	Timeout     time.Duration
	Logger      *slog.Logger
}

// BatchEmbedder splits input into fixed-size batches and reassembles the
// results in input order. Any failed batch fails the whole call.
type BatchEmbedder struct {
	api     EmbeddingAPI
	cfg     BatchEmbedderConfig
	limiter *rate.Limiter
	log     *slog.Logger
}

func NewBatchEmbedder(api EmbeddingAPI, cfg BatchEmbedderConfig) *BatchEmbedder {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Model == "" {
		cfg.Model = string(openai.LargeEmbedding3)
	}
	e := &BatchEmbedder{api: api, cfg: cfg, log: cfg.Logger}
	if e.log == nil {
		e.log = slog.Default()
	}
	if cfg.RPS > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(cfg.RPS), 1)
	}
	return e
}

func (e *BatchEmbedder) Dimension() int { return e.cfg.Dimensions }

func (e *BatchEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := checkTexts(texts); err != nil {
		return nil, err
	}

	out := make([][]float32, len(texts))
	batches := (len(texts) + e.cfg.BatchSize - 1) / e.cfg.BatchSize
	e.log.Debug("Embedding texts", "texts", len(texts), "batches", batches, "concurrency", e.cfg.Concurrency)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)
	for b := 0; b < batches; b++ {
		b := b
		start := b * e.cfg.BatchSize
		end := min(start+e.cfg.BatchSize, len(texts))
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := e.embedBatch(gctx, texts[start:end], out[start:end]); err != nil {
				return fmt.Errorf("embedding batch %d/%d: %w", b+1, batches, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// embedBatch fills dst from one request, slotting by the response index.
func (e *BatchEmbedder) embedBatch(ctx context.Context, batch []string, dst [][]float32) error {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	reqCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	req := openai.EmbeddingRequest{
		Input: batch,
		Model: openai.EmbeddingModel(e.cfg.Model),
	}
	if strings.HasPrefix(e.cfg.Model, "text-embedding-3") && e.cfg.Dimensions > 0 {
		req.Dimensions = e.cfg.Dimensions
	}
	resp, err := e.api.CreateEmbeddings(reqCtx, req)
	if err != nil {
		return err
	}
	if len(resp.Data) != len(batch) {
		return fmt.Errorf("unexpected number of embeddings returned: got %d, expected %d", len(resp.Data), len(batch))
	}
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(batch) || dst[d.Index] != nil {
			return fmt.Errorf("invalid or repeated embedding index %d", d.Index)
		}
		if e.cfg.Dimensions > 0 && len(d.Embedding) != e.cfg.Dimensions {
			return fmt.Errorf("embedding has dimension %d, expected %d", len(d.Embedding), e.cfg.Dimensions)
		}
		dst[d.Index] = d.Embedding
	}
	return nil
}

// MockEmbedder generates deterministic unit vectors from the text hash.
type MockEmbedder struct {
	dimensions int
}

func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 1536
	}
	return &MockEmbedder{dimensions: dimensions}
}

func (m *MockEmbedder) Dimension() int { return m.dimensions }

func (m *MockEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if err := checkTexts(texts); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = m.vector(t)
	}
	return out, nil
}

func (m *MockEmbedder) vector(text string) []float32 {
	v := make([]float32, m.dimensions)
	var block [sha256.Size]byte
	for i := range v {
		// A fresh hash block every 32 values keeps long vectors from repeating.
		if i%sha256.Size == 0 {
			var ctr [8]byte
			binary.LittleEndian.PutUint64(ctr[:], uint64(i/sha256.Size))
			block = sha256.Sum256(append([]byte(text), ctr[:]...))
		}
		v[i] = (float32(block[i%sha256.Size]) / 127.5) - 1.0
	}
	return normalize(v)
}

// normalize scales v to unit length.
func normalize(v []float32) []float32 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}
	magnitude := float32(math.Sqrt(sum))
	if magnitude == 0 {
		return v
	}
	for i := range v {
		v[i] /= magnitude
	}
	return v
}

func checkTexts(texts []string) error {
	if len(texts) == 0 {
		return fmt.Errorf("texts cannot be empty")
	}
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return fmt.Errorf("text at index %d cannot be empty", i)
		}
	}
	return nil
}

var (
	_ Embedder = (*BatchEmbedder)(nil)
	_ Embedder = (*MockEmbedder)(nil)
)
