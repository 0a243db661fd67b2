package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lectureRAG/config"
	"lectureRAG/core"
	"lectureRAG/server"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, ExitSuccess},
		{errors.New("boom"), ExitError},
		{fmt.Errorf("%w: store", config.ErrInvalidConfig), ExitConfig},
		{core.ErrEmptyKnowledgeBase, ExitNotFound},
		{core.NewStageError(core.ErrNoResults, "x", nil), ExitNotFound},
		{fmt.Errorf("reindex %q: %w", "x", core.ErrTranscriptNotFound), ExitNotFound},
		{core.NewStageError(core.ErrDuplicateLecture, "x", nil), ExitDuplicate},
		{core.ErrDuplicateID, ExitDuplicate},
		{core.NewStageError(core.ErrEmbedding, "x", errors.New("500")), ExitError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, exitCode(tt.err), "%v", tt.err)
	}
}

// offlineEnv points the CLI at a temporary data root with mock providers.
func offlineEnv(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	root := t.TempDir()
	t.Setenv("DATA_ROOT", root)
	t.Setenv("STORE", "sqlite")
	t.Setenv("ASR", "mock")
	t.Setenv("LLM", "mock")
	t.Setenv("EMBEDDING_PROVIDER", "mock")
	t.Setenv("EMBEDDING_DIMENSIONS", "16")
	t.Setenv("LOG_LEVEL", "error")
	return root
}

func runCLI(t *testing.T, args ...string) (int, *bytes.Buffer) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	t.Logf("stderr: %s", stderr.String())
	return code, &stdout
}

func writeTranscript(t *testing.T, root, title string, chunks []core.TranscriptChunk) {
	t.Helper()
	layout := core.NewLayout(root)
	require.NoError(t, layout.Ensure())
	data, err := json.Marshal(core.ChunkFile{Chunks: chunks})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(layout.JSONPath(title), data, 0o644))
}

func TestEmptyKnowledgeBase(t *testing.T) {
	offlineEnv(t)

	code, out := runCLI(t, "list")
	require.Equal(t, ExitSuccess, code)
	var lectures []core.LectureInfo
	require.NoError(t, json.Unmarshal(out.Bytes(), &lectures))
	assert.Empty(t, lectures)

	code, out = runCLI(t, "ask", "what is a tree?")
	assert.Equal(t, ExitNotFound, code)
	var e server.ErrorResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &e))
	assert.Equal(t, "empty_knowledge_base", e.Error)

	code, out = runCLI(t, "reindex", "1_intro")
	assert.Equal(t, ExitNotFound, code)
	require.NoError(t, json.Unmarshal(out.Bytes(), &e))
	assert.Equal(t, "transcript_not_found", e.Error)

	code, _ = runCLI(t, "delete", "1_intro")
	assert.Equal(t, ExitSuccess, code)
}

func TestReindexAskSummarize(t *testing.T) {
	root := offlineEnv(t)
	writeTranscript(t, root, "1_intro", []core.TranscriptChunk{
		{Number: "1", Title: "1_intro", Start: 0, End: 30, Text: "Welcome to data structures."},
		{Number: "1", Title: "1_intro", Start: 30, End: 60, Text: "   "},
		{Number: "1", Title: "1_intro", Start: 60, End: 90, Text: "A tree is a connected acyclic graph."},
	})

	code, out := runCLI(t, "reindex", "1_intro")
	require.Equal(t, ExitSuccess, code, out.String())
	var res core.IngestResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.Equal(t, 2, res.Indexed)
	assert.Equal(t, "1", res.Number)

	code, out = runCLI(t, "list")
	require.Equal(t, ExitSuccess, code)
	var lectures []core.LectureInfo
	require.NoError(t, json.Unmarshal(out.Bytes(), &lectures))
	require.Len(t, lectures, 1)
	assert.Equal(t, core.LectureInfo{Title: "1_intro", Number: "1", Chunks: 2, Media: core.MediaNone}, lectures[0])

	code, out = runCLI(t, "ask", "what", "is", "a", "tree?", "--lecture", "1_intro")
	require.Equal(t, ExitSuccess, code, out.String())
	var ans core.Answer
	require.NoError(t, json.Unmarshal(out.Bytes(), &ans))
	assert.Equal(t, "what is a tree?", ans.Question)
	assert.Equal(t, "1_intro", ans.Best.Title)
	assert.NotEmpty(t, ans.Text)

	code, _ = runCLI(t, "ask", "anything", "--lecture", "2_trees")
	assert.Equal(t, ExitNotFound, code)

	code, out = runCLI(t, "summarize", "1_intro", "--human")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, out.String(), "## Quick summary")
	assert.Contains(t, out.String(), "## Full summary")

	code, out = runCLI(t, "delete", "1_intro")
	require.Equal(t, ExitSuccess, code)
	var del core.DeleteResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &del))
	assert.Equal(t, 2, del.Vectors)
	assert.Equal(t, []string{filepath.Join(root, "jsons", "1_intro.json")}, del.Files)
}

func TestInvalidConfig(t *testing.T) {
	offlineEnv(t)
	t.Setenv("STORE", "bogus")

	code, out := runCLI(t, "list")
	assert.Equal(t, ExitConfig, code)
	var e server.ErrorResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &e))
	assert.Equal(t, "invalid_config", e.Error)
}

func TestUsageErrors(t *testing.T) {
	offlineEnv(t)
	code, _ := runCLI(t, "summarize")
	assert.Equal(t, ExitError, code)

	code, _ = runCLI(t, "ingest", "missing.mp4", "--human")
	assert.Equal(t, ExitError, code)
}
