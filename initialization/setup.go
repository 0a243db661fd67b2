package initialization

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"

	"lectureRAG/config"
	"lectureRAG/core"
	"lectureRAG/processors"
	"lectureRAG/storage"
	"lectureRAG/utils"
)

// App 持有运行期所需的全部组件，启动时构建一次并显式传递
type App struct {
	Config     *config.Config
	Layout     core.Layout
	Store      storage.VectorStore
	Embedder   storage.Embedder
	LLM        processors.LLMClient
	ASR        processors.ASRProvider
	Transcoder processors.Transcoder
	Downloader processors.Downloader
	Manager    *processors.LectureManager
	Answerer   *processors.Answerer
	Summarizer *processors.Summarizer
	Metrics    *core.Metrics
	Logger     *slog.Logger
}

// New wires every component from cfg. The caller owns the returned App and
// must Close it.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{Config: cfg, Logger: logger, Metrics: core.NewMetrics()}

	// 1. 数据目录
	logger.Debug("Creating data directories", "root", cfg.DataRoot)
	app.Layout = core.NewLayout(cfg.DataRoot)
	if err := app.Layout.Ensure(); err != nil {
		return nil, err
	}

	// 2. 服务客户端
	var client *openai.Client
	if cfg.NeedsAPI() {
		client = storage.NewOpenAIClient(cfg.APIKey, cfg.BaseURL)
	}

	// 3. 向量化
	embedder, err := newEmbedder(cfg, client, logger)
	if err != nil {
		return nil, err
	}
	app.Embedder = embedder

	// 4. 向量存储
	logger.Debug("Initializing vector store", "store", cfg.Store)
	store, err := storage.NewVectorStore(ctx, storage.Options{
		Kind:           cfg.Store,
		Collection:     cfg.Collection,
		Dimension:      embedder.Dimension(),
		DataRoot:       cfg.DataRoot,
		PostgresURL:    cfg.PostgresURL,
		MilvusAddr:     cfg.MilvusAddr,
		MilvusUsername: cfg.MilvusUsername,
		MilvusPassword: cfg.MilvusPassword,
		MilvusAPIKey:   cfg.MilvusAPIKey,
		Logger:         logger,
	})
	if err != nil {
		return nil, core.NewStageError(core.ErrVectorStore, "", err)
	}
	app.Store = store

	// 5. 大模型与语音识别
	if app.LLM, err = newLLM(cfg, client, logger); err != nil {
		store.Close()
		return nil, err
	}
	var audio processors.AudioAPI
	if client != nil {
		audio = client
	}
	app.ASR, err = processors.PickASRProvider(processors.ASRConfig{
		Provider: cfg.ASR,
		Mode:     cfg.ASRMode,
		Model:    cfg.ASRModel,
		Timeout:  cfg.TranscribeTimeout,
		Logger:   logger,
	}, audio)
	if err != nil {
		store.Close()
		return nil, err
	}

	// 6. GPU 加速
	gpuType := cfg.GPUType
	if cfg.GPUAcceleration && (gpuType == "" || gpuType == "auto") {
		gpuType = utils.DetectGPUType(ctx)
		if gpuType == "cpu" {
			logger.Warn("GPU acceleration requested but no supported GPU encoder found, using CPU")
		} else {
			logger.Info("Detected GPU", "type", gpuType)
		}
	}

	app.Transcoder = processors.NewFFmpegTranscoder(processors.TranscoderConfig{
		Layout:          app.Layout,
		GPUAcceleration: cfg.GPUAcceleration && gpuType != "cpu",
		GPUType:         gpuType,
		Timeout:         cfg.TranscodeTimeout,
		Logger:          logger,
	})
	app.Downloader = processors.NewYTDLPDownloader(app.Layout, cfg.DownloadTimeout, logger)

	// 7. 业务组件
	app.Manager = processors.NewLectureManager(processors.ManagerConfig{
		Layout:     app.Layout,
		Store:      store,
		Embedder:   embedder,
		ASR:        app.ASR,
		Transcoder: app.Transcoder,
		Downloader: app.Downloader,
		Metrics:    app.Metrics,
		Logger:     logger,
	})
	app.Answerer, err = processors.NewAnswerer(store, embedder, app.LLM, processors.AnswererConfig{
		TopK:      cfg.TopK,
		CacheSize: cfg.QueryCacheSize,
		Metrics:   app.Metrics,
		Logger:    logger,
	})
	if err != nil {
		store.Close()
		return nil, err
	}
	app.Summarizer = processors.NewSummarizer(store, app.LLM, app.Metrics, logger)

	logger.Info("Application initialized",
		"data_root", cfg.DataRoot, "store", cfg.Store, "embedding", cfg.EmbeddingProvider,
		"llm", app.LLM.GetProvider(), "asr", app.ASR.Name())
	return app, nil
}

func newEmbedder(cfg *config.Config, client *openai.Client, logger *slog.Logger) (storage.Embedder, error) {
	switch cfg.EmbeddingProvider {
	case "openai":
		if client == nil {
			return nil, errors.New("openai embeddings require an API client")
		}
		return storage.NewBatchEmbedder(client, storage.BatchEmbedderConfig{
			Model:       cfg.EmbeddingModel,
			Dimensions:  cfg.EmbeddingDimensions,
			BatchSize:   cfg.EmbeddingBatchSize,
			Concurrency: cfg.EmbeddingConcurrency,
			RPS:         cfg.EmbeddingRPS,
			Timeout:     cfg.EmbeddingTimeout,
			Logger:      logger,
		}), nil
	case "mock":
		return storage.NewMockEmbedder(cfg.EmbeddingDimensions), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.EmbeddingProvider)
	}
}

func newLLM(cfg *config.Config, client *openai.Client, logger *slog.Logger) (processors.LLMClient, error) {
	switch cfg.LLM {
	case "openai":
		if client == nil {
			return nil, errors.New("openai completions require an API client")
		}
		return processors.NewOpenAIChatClient(client, processors.ChatConfig{
			Model:   cfg.ChatModel,
			Timeout: cfg.CompletionTimeout,
			Logger:  logger,
		}), nil
	case "mock":
		return processors.MockLLMClient{}, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM)
	}
}

// Close releases the vector store.
func (a *App) Close() error {
	if a == nil || a.Store == nil {
		return nil
	}
	return a.Store.Close()
}
