package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ========== 数据目录布局 ==========

// Layout is the on-disk directory structure under the data root.
type Layout struct {
	Root   string
	Videos string
	Audios string
	JSONs  string
}

// NewLayout derives the media and transcript directories from root.
func NewLayout(root string) Layout {
	return Layout{
		Root:   root,
		Videos: filepath.Join(root, "videos"),
		Audios: filepath.Join(root, "audios"),
		JSONs:  filepath.Join(root, "jsons"),
	}
}

// Ensure creates every directory of the layout.
func (l Layout) Ensure() error {
	for _, dir := range []string{l.Root, l.Videos, l.Audios, l.JSONs} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create data directory %s: %w", dir, err)
		}
	}
	return nil
}

// JSONPath is where the intermediate chunk file of a lecture lives.
func (l Layout) JSONPath(title string) string {
	return filepath.Join(l.JSONs, title+".json")
}

// AudioPath is the transcoded audio track of a lecture.
func (l Layout) AudioPath(title string) string {
	return l.AudioFilePath(title, ".mp3")
}

// AudioFilePath is the stored copy of an uploaded audio file; ext includes the dot.
func (l Layout) AudioFilePath(title, ext string) string {
	if ext == "" {
		ext = ".mp3"
	}
	return filepath.Join(l.Audios, title+ext)
}

// VideoPath is the stored copy of a lecture video; ext includes the dot.
func (l Layout) VideoPath(title, ext string) string {
	if ext == "" {
		ext = ".mp4"
	}
	return filepath.Join(l.Videos, title+ext)
}

// MediaFiles lists the files in dir whose base name without extension is title.
func MediaFiles(dir, title string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if TitleFromPath(e.Name()) == title {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	return out, nil
}

// MediaKind reports which media is stored for a lecture.
func (l Layout) MediaKind(title string) string {
	if files, _ := MediaFiles(l.Videos, title); len(files) > 0 {
		return MediaVideo
	}
	if files, _ := MediaFiles(l.Audios, title); len(files) > 0 {
		return MediaAudio
	}
	return MediaNone
}

// TitleFromPath is the base name of path without its extension.
func TitleFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// FormatTimestamp renders seconds as mm:ss, or h:mm:ss past the hour.
func FormatTimestamp(sec float64) string {
	if sec < 0 {
		sec = 0
	}
	total := int(sec)
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
