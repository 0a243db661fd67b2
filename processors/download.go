package processors

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"lectureRAG/core"
	"lectureRAG/utils"
)

// Downloader fetches a remote video into the videos directory.
type Downloader interface {
	Download(ctx context.Context, rawURL string) (string, error)
}

// YTDLPDownloader shells out to yt-dlp, merging the best streams into mp4
// named after the video id.
type YTDLPDownloader struct {
	layout  core.Layout
	timeout time.Duration
	run     func(ctx context.Context, name string, args ...string) (string, error)
	log     *slog.Logger
}

func NewYTDLPDownloader(layout core.Layout, timeout time.Duration, logger *slog.Logger) *YTDLPDownloader {
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &YTDLPDownloader{layout: layout, timeout: timeout, run: utils.RunCommand, log: logger}
}

func (d *YTDLPDownloader) Download(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: %q is not an http(s) URL", core.ErrInvalidInput, rawURL)
	}
	if err := os.MkdirAll(d.layout.Videos, 0755); err != nil {
		return "", core.NewStageError(core.ErrDownload, "", err)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	d.log.Info("Downloading video", "url", u.String())
	out, err := d.run(ctx, "yt-dlp", downloadArgs(d.layout.Videos, u.String())...)
	if err != nil {
		return "", core.NewStageError(core.ErrDownload, "", err)
	}
	path := lastLine(out)
	if path == "" {
		return "", core.NewStageError(core.ErrDownload, "", fmt.Errorf("yt-dlp did not report an output file"))
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(d.layout.Videos, filepath.Base(path))
	}
	d.log.Info("Video downloaded", "path", path, "elapsed", time.Since(start))
	return path, nil
}

func downloadArgs(dir, u string) []string {
	return []string{
		"-f", "bestvideo+bestaudio/best",
		"--merge-output-format", "mp4",
		"-o", filepath.Join(dir, "%(id)s.%(ext)s"),
		"--no-playlist",
		"--no-simulate",
		"--print", "after_move:filepath",
		u,
	}
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
