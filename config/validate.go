package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// collectionPattern keeps the collection name usable as a SQL table name and
// a Milvus collection name.
var collectionPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// pgvectorMaxIndexDims is the largest dimension pgvector can build an HNSW index for.
const pgvectorMaxIndexDims = 2000

// ValidationReport 配置验证结果
type ValidationReport struct {
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Valid reports whether no errors were found.
func (r *ValidationReport) Valid() bool { return len(r.Errors) == 0 }

func (r *ValidationReport) errorf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *ValidationReport) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Check runs every rule and returns the aggregated report.
func (c *Config) Check() *ValidationReport {
	r := &ValidationReport{}

	oneOf(r, "embedding_provider", c.EmbeddingProvider, "openai", "mock")
	oneOf(r, "llm", c.LLM, "openai", "mock")
	oneOf(r, "asr", c.ASR, "openai", "mock")
	oneOf(r, "asr_mode", c.ASRMode, "translate", "transcribe")
	oneOf(r, "store", c.Store, "sqlite", "memory", "pgvector", "milvus")
	oneOf(r, "gpu_type", c.GPUType, "nvidia", "amd", "intel", "auto")
	oneOf(r, "log_format", c.LogFormat, "text", "json")
	oneOf(r, "log_level", strings.ToLower(c.LogLevel), "debug", "info", "warn", "warning", "error")

	if c.NeedsAPI() {
		if !c.HasValidAPI() {
			r.errorf("api_key and base_url are required when an openai provider is configured")
		}
		if strings.TrimSpace(c.BaseURL) != "" {
			if u, err := url.Parse(c.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
				r.errorf("base_url %q is not an absolute URL", c.BaseURL)
			}
		}
	}
	if c.EmbeddingProvider == "openai" && strings.TrimSpace(c.EmbeddingModel) == "" {
		r.errorf("embedding_model is required")
	}
	if c.LLM == "openai" && strings.TrimSpace(c.ChatModel) == "" {
		r.errorf("chat_model is required")
	}

	positive(r, "embedding_dimensions", c.EmbeddingDimensions)
	positive(r, "embedding_concurrency", c.EmbeddingConcurrency)
	positive(r, "top_k", c.TopK)
	if c.EmbeddingBatchSize < 1 || c.EmbeddingBatchSize > 2048 {
		r.errorf("embedding_batch_size must be between 1 and 2048, got %d", c.EmbeddingBatchSize)
	}
	if c.EmbeddingRPS < 0 {
		r.errorf("embedding_rps must not be negative")
	}
	if c.QueryCacheSize < 0 {
		r.errorf("query_cache_size must not be negative")
	}

	for name, d := range map[string]time.Duration{
		"transcode_timeout":  c.TranscodeTimeout,
		"transcribe_timeout": c.TranscribeTimeout,
		"embedding_timeout":  c.EmbeddingTimeout,
		"completion_timeout": c.CompletionTimeout,
		"download_timeout":   c.DownloadTimeout,
	} {
		if d <= 0 {
			r.errorf("%s must be positive", name)
		}
	}

	if !collectionPattern.MatchString(c.Collection) {
		r.errorf("collection %q must be a letter or underscore followed by letters, digits or underscores", c.Collection)
	}
	if strings.TrimSpace(c.DataRoot) == "" {
		r.errorf("data_root is required")
	}
	switch c.Store {
	case "pgvector":
		if strings.TrimSpace(c.PostgresURL) == "" {
			r.errorf("postgres_url is required for the pgvector store")
		}
		if c.EmbeddingDimensions > pgvectorMaxIndexDims {
			r.warnf("embedding_dimensions %d exceeds %d; pgvector queries will scan without an HNSW index", c.EmbeddingDimensions, pgvectorMaxIndexDims)
		}
	case "milvus":
		if strings.TrimSpace(c.MilvusAddr) == "" {
			r.errorf("milvus_addr is required for the milvus store")
		}
	case "memory":
		r.warnf("memory store keeps vectors only for the lifetime of the process")
	}

	if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
		r.errorf("port %q must be between 1 and 65535", c.Port)
	}
	if c.ASR == "mock" || c.EmbeddingProvider == "mock" || c.LLM == "mock" {
		r.warnf("mock providers produce placeholder transcripts, vectors or answers")
	}
	return r
}

// Validate returns ErrInvalidConfig describing every failed rule.
func (c *Config) Validate() error {
	r := c.Check()
	if r.Valid() {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(r.Errors, "; "))
}

func oneOf(r *ValidationReport, field, value string, allowed ...string) {
	for _, a := range allowed {
		if value == a {
			return
		}
	}
	r.errorf("%s must be one of %s, got %q", field, strings.Join(allowed, ", "), value)
}

func positive(r *ValidationReport, field string, v int) {
	if v < 1 {
		r.errorf("%s must be positive, got %d", field, v)
	}
}
