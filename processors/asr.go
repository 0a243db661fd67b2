package processors

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"lectureRAG/core"
	"lectureRAG/utils"
)

// whisperMaxUpload is the upload limit of the hosted speech-to-text endpoint.
const whisperMaxUpload = 25 << 20

// ASRProvider turns an audio file into time-aligned segments, in order.
type ASRProvider interface {
	Transcribe(ctx context.Context, audioPath string) ([]core.Segment, error)
	Name() string
}

// AudioAPI is the subset of the go-openai client used for speech to text.
type AudioAPI interface {
	CreateTranscription(ctx context.Context, request openai.AudioRequest) (openai.AudioResponse, error)
	CreateTranslation(ctx context.Context, request openai.AudioRequest) (openai.AudioResponse, error)
}

// ASR modes.
const (
	ASRTranslate  = "translate"  // any spoken language to English text
	ASRTranscribe = "transcribe" // text in the spoken language
)

type ASRConfig struct {
	Provider string // "openai", "mock"
	Mode     string
	Model    string
	Timeout  time.Duration
	Logger   *slog.Logger
}

// PickASRProvider builds the configured provider. An unknown provider is an
// error rather than a silent fallback.
func PickASRProvider(cfg ASRConfig, api AudioAPI) (ASRProvider, error) {
	switch cfg.Provider {
	case "openai":
		if api == nil {
			return nil, fmt.Errorf("openai ASR requires an API client")
		}
		return NewWhisperASR(api, cfg), nil
	case "mock":
		return &MockASR{}, nil
	default:
		return nil, fmt.Errorf("unknown ASR provider %q", cfg.Provider)
	}
}

// WhisperASR sends the whole file to the hosted Whisper model in one request.
type WhisperASR struct {
	api AudioAPI
	cfg ASRConfig
	log *slog.Logger
}

func NewWhisperASR(api AudioAPI, cfg ASRConfig) *WhisperASR {
	if cfg.Mode == "" {
		cfg.Mode = ASRTranslate
	}
	if cfg.Model == "" {
		cfg.Model = openai.Whisper1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Minute
	}
	w := &WhisperASR{api: api, cfg: cfg, log: cfg.Logger}
	if w.log == nil {
		w.log = slog.Default()
	}
	return w
}

func (w *WhisperASR) Name() string { return "openai-" + w.cfg.Mode }

func (w *WhisperASR) Transcribe(ctx context.Context, audioPath string) ([]core.Segment, error) {
	title := core.TitleFromPath(audioPath)
	info, err := os.Stat(audioPath)
	if err != nil {
		return nil, core.NewStageError(core.ErrTranscription, title, err)
	}
	if info.Size() > whisperMaxUpload {
		w.log.Warn("Audio exceeds the upload limit, the request will likely be rejected",
			"title", title, "bytes", info.Size(), "limit", whisperMaxUpload)
	}

	ctx, cancel := context.WithTimeout(ctx, w.cfg.Timeout)
	defer cancel()

	req := openai.AudioRequest{
		Model:    w.cfg.Model,
		FilePath: audioPath,
		Format:   openai.AudioResponseFormatVerboseJSON,
	}
	start := time.Now()
	w.log.Info("Starting transcription", "title", title, "mode", w.cfg.Mode, "model", w.cfg.Model)

	var resp openai.AudioResponse
	if w.cfg.Mode == ASRTranscribe {
		resp, err = w.api.CreateTranscription(ctx, req)
	} else {
		resp, err = w.api.CreateTranslation(ctx, req)
	}
	if err != nil {
		return nil, core.NewStageError(core.ErrTranscription, title, err)
	}

	segs := make([]core.Segment, 0, len(resp.Segments))
	for _, s := range resp.Segments {
		segs = append(segs, core.Segment{Start: s.Start, End: s.End, Text: s.Text})
	}
	w.log.Info("Transcription completed", "title", title, "segments", len(segs), "elapsed", time.Since(start))
	return segs, nil
}

// MockASR produces fixed-length placeholder segments so the pipeline can run
// without the hosted service.
type MockASR struct {
	// Duration overrides probing the file with ffprobe.
	Duration float64
	// SegmentSeconds defaults to 30.
	SegmentSeconds float64
}

func (m *MockASR) Name() string { return "mock" }

func (m *MockASR) Transcribe(ctx context.Context, audioPath string) ([]core.Segment, error) {
	title := core.TitleFromPath(audioPath)
	duration := m.Duration
	if duration <= 0 {
		d, err := utils.ProbeDuration(ctx, audioPath)
		if err != nil {
			return nil, core.NewStageError(core.ErrTranscription, title, err)
		}
		duration = d
	}
	step := m.SegmentSeconds
	if step <= 0 {
		step = 30
	}

	var segs []core.Segment
	for start, i := 0.0, 1; start < duration; start, i = start+step, i+1 {
		end := min(start+step, duration)
		segs = append(segs, core.Segment{
			Start: start,
			End:   end,
			Text:  fmt.Sprintf("Placeholder transcript segment %d of %s.", i, strings.ReplaceAll(title, "_", " ")),
		})
	}
	return segs, nil
}
