package processors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"lectureRAG/core"
	"lectureRAG/storage"
	"lectureRAG/utils"
)

// Step status values.
const (
	StepCompleted = "completed"
	StepFailed    = "failed"
	StepSkipped   = "skipped"
)

// IngestOptions tunes a single ingestion.
type IngestOptions struct {
	// Sequence overrides the lecture number taken from the title prefix.
	Sequence *int
}

type ManagerConfig struct {
	Layout     core.Layout
	Store      storage.VectorStore
	Embedder   storage.Embedder
	ASR        ASRProvider
	Transcoder Transcoder
	Downloader Downloader
	Metrics    *core.Metrics
	Logger     *slog.Logger
}

// LectureManager 负责讲座的导入、删除、重建索引与列举
type LectureManager struct {
	layout     core.Layout
	store      storage.VectorStore
	embedder   storage.Embedder
	asr        ASRProvider
	transcoder Transcoder
	downloader Downloader
	metrics    *core.Metrics
	log        *slog.Logger
	locks      *titleLocks
}

func NewLectureManager(cfg ManagerConfig) *LectureManager {
	m := &LectureManager{
		layout:     cfg.Layout,
		store:      cfg.Store,
		embedder:   cfg.Embedder,
		asr:        cfg.ASR,
		transcoder: cfg.Transcoder,
		downloader: cfg.Downloader,
		metrics:    cfg.Metrics,
		log:        cfg.Logger,
		locks:      newTitleLocks(),
	}
	if m.log == nil {
		m.log = slog.Default()
	}
	return m
}

// ========== 导入 ==========

// IngestVideo copies a video into the data directory, extracts its audio and
// indexes the transcript. The title is the file name without extension.
func (m *LectureManager) IngestVideo(ctx context.Context, path string, opts IngestOptions) (*core.IngestResult, error) {
	return m.ingest(ctx, path, true, opts)
}

// IngestAudio is IngestVideo without the transcode stage.
func (m *LectureManager) IngestAudio(ctx context.Context, path string, opts IngestOptions) (*core.IngestResult, error) {
	return m.ingest(ctx, path, false, opts)
}

// IngestURL downloads a video and ingests it.
func (m *LectureManager) IngestURL(ctx context.Context, rawURL string, opts IngestOptions) (*core.IngestResult, error) {
	if m.downloader == nil {
		return nil, fmt.Errorf("%w: no downloader configured", core.ErrInvalidInput)
	}
	start := time.Now()
	path, err := m.downloader.Download(ctx, rawURL)
	elapsed := time.Since(start)
	m.metrics.ObserveStage("download", elapsed)
	if err != nil {
		m.metrics.RecordOperation("ingest", err)
		return nil, err
	}
	res, err := m.ingest(ctx, path, true, opts)
	if res != nil {
		res.Steps = append([]core.Step{{Name: "download", Status: StepCompleted, Duration: elapsed}}, res.Steps...)
	}
	return res, err
}

func (m *LectureManager) ingest(ctx context.Context, src string, video bool, opts IngestOptions) (res *core.IngestResult, err error) {
	defer func() { m.metrics.RecordOperation("ingest", err) }()

	title := core.TitleFromPath(src)
	if err := checkTitle(title); err != nil {
		return nil, err
	}
	number, err := ResolveNumber(title, opts.Sequence)
	if err != nil {
		return nil, err
	}
	if !utils.FileExists(src) {
		return nil, fmt.Errorf("%w: media file %s not found", core.ErrInvalidInput, src)
	}

	unlock := m.locks.lock(title)
	defer unlock()

	begin := time.Now()
	res = &core.IngestResult{Title: title, Number: number, JSONPath: m.layout.JSONPath(title)}
	log := m.log.With("title", title)
	log.Info("Starting lecture ingestion", "source", src, "number", number, "video", video)

	// 重复检查：已存在的讲座不做任何修改
	existing, err := m.store.Count(ctx, storage.Filter{Title: title})
	if err != nil {
		return nil, core.NewStageError(core.ErrVectorStore, title, err)
	}
	if existing > 0 {
		log.Warn("Lecture already indexed", "chunks", existing)
		return nil, core.NewStageError(core.ErrDuplicateLecture, title, nil)
	}

	// Step 1: 保存媒体文件
	mediaPath := m.layout.AudioFilePath(title, filepath.Ext(src))
	if video {
		mediaPath = m.layout.VideoPath(title, filepath.Ext(src))
	}
	err = m.step(res, "store_media", func() error {
		if utils.SameFile(src, mediaPath) {
			return nil
		}
		return utils.CopyFile(src, mediaPath)
	})
	if err != nil {
		return res, fmt.Errorf("store media for %q: %w", title, err)
	}

	// Step 2: 提取音频
	audioPath := mediaPath
	if video {
		err = m.step(res, "transcode", func() error {
			var terr error
			audioPath, terr = m.transcoder.Transcode(ctx, mediaPath)
			return terr
		})
		if err != nil {
			return res, err
		}
	} else {
		res.Steps = append(res.Steps, core.Step{Name: "transcode", Status: StepSkipped})
	}

	// Step 3: 语音识别
	var segments []core.Segment
	err = m.step(res, "transcribe", func() error {
		var terr error
		segments, terr = m.asr.Transcribe(ctx, audioPath)
		if terr != nil && !errors.Is(terr, core.ErrTranscription) {
			terr = core.NewStageError(core.ErrTranscription, title, terr)
		}
		return terr
	})
	if err != nil {
		return res, err
	}

	// Step 4: 写入中间转录文件
	chunks := BuildChunks(title, number, segments)
	res.Chunks = len(chunks)
	err = m.step(res, "save_transcript", func() error {
		return SaveChunkFile(res.JSONPath, chunks)
	})
	if err != nil {
		return res, fmt.Errorf("save transcript for %q: %w", title, err)
	}

	indexable := NonEmptyChunks(chunks)
	if len(indexable) == 0 {
		err = core.NewStageError(core.ErrTranscription, title, errors.New("transcript contains no speech"))
		res.Steps = append(res.Steps, core.Step{Name: "embed", Status: StepFailed, Error: err.Error()})
		return res, err
	}

	// Step 5-6: 向量化并一次性写入
	if err := m.index(ctx, res, title, indexable, false); err != nil {
		return res, err
	}

	res.Duration = time.Since(begin)
	log.Info("Lecture ingested", "chunks", res.Chunks, "indexed", res.Indexed, "elapsed", res.Duration)
	return res, nil
}

// index embeds chunks and writes them in one insert. With replace set the
// lecture's existing vectors are deleted between embedding and insert.
func (m *LectureManager) index(ctx context.Context, res *core.IngestResult, title string, chunks []core.TranscriptChunk, replace bool) error {
	var vectors []core.IndexedVector
	err := m.step(res, "embed", func() error {
		var embeddings [][]float32
		if len(chunks) > 0 {
			var eerr error
			embeddings, eerr = m.embedder.Embed(ctx, chunkTexts(chunks))
			if eerr != nil {
				return core.NewStageError(core.ErrEmbedding, title, eerr)
			}
		}
		var verr error
		vectors, verr = BuildVectors(chunks, embeddings)
		if verr != nil {
			return core.NewStageError(core.ErrEmbedding, title, verr)
		}
		return nil
	})
	if err != nil {
		return err
	}

	return m.step(res, "index", func() error {
		if replace {
			removed, derr := m.store.Delete(ctx, storage.Filter{Title: title})
			if derr != nil {
				return core.NewStageError(core.ErrVectorStore, title, derr)
			}
			m.log.Debug("Removed previous vectors", "title", title, "vectors", removed)
		}
		if len(vectors) == 0 {
			return nil
		}
		if ierr := m.store.Insert(ctx, vectors); ierr != nil {
			return core.NewStageError(core.ErrVectorStore, title, ierr)
		}
		res.Indexed = len(vectors)
		return nil
	})
}

// ========== 删除与重建 ==========

// Delete removes a lecture's vectors and every stored file named after it.
// Deleting an absent lecture succeeds.
func (m *LectureManager) Delete(ctx context.Context, title string) (res *core.DeleteResult, err error) {
	defer func() { m.metrics.RecordOperation("delete", err) }()

	title = strings.TrimSpace(title)
	if err := checkTitle(title); err != nil {
		return nil, err
	}
	unlock := m.locks.lock(title)
	defer unlock()

	removed, err := m.store.Delete(ctx, storage.Filter{Title: title})
	if err != nil {
		return nil, core.NewStageError(core.ErrVectorStore, title, err)
	}
	res = &core.DeleteResult{Title: title, Vectors: removed, Files: []string{}}

	for _, dir := range []string{m.layout.Videos, m.layout.Audios, m.layout.JSONs} {
		files, err := core.MediaFiles(dir, title)
		if err != nil {
			return res, fmt.Errorf("list %s: %w", dir, err)
		}
		for _, f := range files {
			if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
				return res, fmt.Errorf("remove %s: %w", f, err)
			}
			res.Files = append(res.Files, f)
		}
	}
	m.log.Info("Lecture deleted", "title", title, "vectors", removed, "files", len(res.Files))
	return res, nil
}

// Reindex rebuilds a lecture's vectors from its saved transcript without
// transcribing again.
func (m *LectureManager) Reindex(ctx context.Context, title string) (res *core.IngestResult, err error) {
	defer func() { m.metrics.RecordOperation("reindex", err) }()

	title = strings.TrimSpace(title)
	if err := checkTitle(title); err != nil {
		return nil, err
	}
	unlock := m.locks.lock(title)
	defer unlock()

	begin := time.Now()
	path := m.layout.JSONPath(title)
	chunks, err := LoadChunkFile(path)
	if err != nil {
		// the store is left untouched
		return nil, fmt.Errorf("reindex %q: %w", title, err)
	}

	res = &core.IngestResult{Title: title, Number: ExtractOrdinal(title), Chunks: len(chunks), JSONPath: path}
	if len(chunks) > 0 {
		res.Number = chunks[0].Number
	}
	if err := m.index(ctx, res, title, NonEmptyChunks(chunks), true); err != nil {
		return res, err
	}
	res.Duration = time.Since(begin)
	m.log.Info("Lecture reindexed", "title", title, "indexed", res.Indexed, "elapsed", res.Duration)
	return res, nil
}

// List returns every indexed lecture sorted by title.
func (m *LectureManager) List(ctx context.Context) ([]core.LectureInfo, error) {
	records, err := m.store.Get(ctx, storage.Filter{})
	if err != nil {
		return nil, core.NewStageError(core.ErrVectorStore, "", err)
	}
	byTitle := make(map[string]*core.LectureInfo)
	for _, r := range records {
		info, ok := byTitle[r.Metadata.Title]
		if !ok {
			info = &core.LectureInfo{Title: r.Metadata.Title, Number: r.Metadata.Number}
			byTitle[r.Metadata.Title] = info
		}
		info.Chunks++
	}

	out := make([]core.LectureInfo, 0, len(byTitle))
	for _, info := range byTitle {
		info.Media = m.layout.MediaKind(info.Title)
		out = append(out, *info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}

// step runs fn and records it in res.Steps.
func (m *LectureManager) step(res *core.IngestResult, name string, fn func() error) error {
	start := time.Now()
	err := fn()
	d := time.Since(start)
	m.metrics.ObserveStage(name, d)

	s := core.Step{Name: name, Status: StepCompleted, Duration: d}
	if err != nil {
		s.Status = StepFailed
		s.Error = err.Error()
		m.log.Error("Stage failed", "title", res.Title, "stage", name, "error", err, "elapsed", d)
	} else {
		m.log.Info("Stage completed", "title", res.Title, "stage", name, "elapsed", d)
	}
	res.Steps = append(res.Steps, s)
	return err
}

// checkTitle rejects titles that cannot name files inside the data directory.
func checkTitle(title string) error {
	if title == "" || title == "." || title == ".." {
		return fmt.Errorf("%w: lecture title is empty", core.ErrInvalidInput)
	}
	if strings.ContainsAny(title, `/\`) || strings.ContainsRune(title, 0) {
		return fmt.Errorf("%w: lecture title %q contains a path separator", core.ErrInvalidInput, title)
	}
	// delete, reindex and queries trim the title they are given
	if strings.TrimSpace(title) != title {
		return fmt.Errorf("%w: lecture title %q has leading or trailing whitespace", core.ErrInvalidInput, title)
	}
	return nil
}

// ========== 按讲座加锁 ==========

// titleLocks serializes lifecycle operations on the same title. Entries are
// dropped once no caller holds or waits for them.
type titleLocks struct {
	mu    sync.Mutex
	locks map[string]*titleLock
}

type titleLock struct {
	mu   sync.Mutex
	refs int
}

func newTitleLocks() *titleLocks {
	return &titleLocks{locks: make(map[string]*titleLock)}
}

func (l *titleLocks) lock(title string) (unlock func()) {
	l.mu.Lock()
	e, ok := l.locks[title]
	if !ok {
		e = &titleLock{}
		l.locks[title] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.locks, title)
		}
		l.mu.Unlock()
	}
}
