package processors

import (
	"context"
	"log/slog"
	"os"
	"time"

	"lectureRAG/core"
	"lectureRAG/utils"
)

// Transcoder extracts the audio track of a video file.
type Transcoder interface {
	// Transcode writes the audio for videoPath and returns its path.
	Transcode(ctx context.Context, videoPath string) (string, error)
}

type TranscoderConfig struct {
	Layout          core.Layout
	GPUAcceleration bool
	GPUType         string // "nvidia", "amd", "intel", "auto"
	Timeout         time.Duration
	Logger          *slog.Logger
}

// FFmpegTranscoder runs ffmpeg once per video, writing mono 16 kHz mp3 into
// the audios directory under the video's title.
type FFmpegTranscoder struct {
	cfg    TranscoderConfig
	run    func(ctx context.Context, name string, args ...string) (string, error)
	detect func(ctx context.Context) string
	log    *slog.Logger
}

func NewFFmpegTranscoder(cfg TranscoderConfig) *FFmpegTranscoder {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Minute
	}
	t := &FFmpegTranscoder{cfg: cfg, run: utils.RunCommand, detect: utils.DetectGPUType, log: cfg.Logger}
	if t.log == nil {
		t.log = slog.Default()
	}
	return t
}

func (t *FFmpegTranscoder) Transcode(ctx context.Context, videoPath string) (string, error) {
	title := core.TitleFromPath(videoPath)
	if _, err := os.Stat(videoPath); err != nil {
		return "", core.NewStageError(core.ErrTranscode, title, err)
	}
	if err := os.MkdirAll(t.cfg.Layout.Audios, 0755); err != nil {
		return "", core.NewStageError(core.ErrTranscode, title, err)
	}

	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	audioPath := t.cfg.Layout.AudioPath(title)
	args := t.buildArgs(ctx, videoPath, audioPath)

	start := time.Now()
	t.log.Info("Extracting audio", "title", title, "video", videoPath)
	if _, err := t.run(ctx, "ffmpeg", args...); err != nil {
		// ffmpeg may leave a truncated file behind
		os.Remove(audioPath)
		t.log.Error("Audio extraction failed", "title", title, "error", err)
		return "", core.NewStageError(core.ErrTranscode, title, err)
	}
	t.log.Info("Audio extracted", "title", title, "audio", audioPath, "elapsed", time.Since(start))
	return audioPath, nil
}

func (t *FFmpegTranscoder) buildArgs(ctx context.Context, in, out string) []string {
	args := []string{"-y"}
	if t.cfg.GPUAcceleration {
		gpuType := t.cfg.GPUType
		if gpuType == "" || gpuType == "auto" {
			gpuType = t.detect(ctx)
		}
		args = append(args, utils.GetHardwareAccelArgs(gpuType)...)
	}
	return append(args, "-i", in, "-vn", "-ac", "1", "-ar", "16000", out)
}
