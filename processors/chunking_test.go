package processors

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lectureRAG/core"
)

func TestExtractOrdinal(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"1_intro", "1"},
		{"12_Linear_Regression", "12"},
		{"007_bond", "007"},
		{"42", "42"},
		{"intro", core.NumberNA},
		{"intro_1", core.NumberNA},
		{"1a_intro", core.NumberNA},
		{"_intro", core.NumberNA},
		{"", core.NumberNA},
		{"١_arabic_digit", core.NumberNA},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractOrdinal(tt.title))
		})
	}
}

func TestResolveNumber(t *testing.T) {
	n, err := ResolveNumber("3_trees", nil)
	require.NoError(t, err)
	assert.Equal(t, "3", n)

	seq := 7
	n, err = ResolveNumber("3_trees", &seq)
	require.NoError(t, err)
	assert.Equal(t, "7", n)

	neg := -1
	_, err = ResolveNumber("trees", &neg)
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestChunkFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jsons", "1_intro.json")
	chunks := BuildChunks("1_intro", "1", []core.Segment{
		{Start: 0, End: 9.48, Text: " Welcome to the course."},
		{Start: 9.48, End: 20.125, Text: " Today: gradient descent, \"step size\" and η."},
		{Start: 20.125, End: 21, Text: "   "},
	})

	require.NoError(t, SaveChunkFile(path, chunks))
	got, err := LoadChunkFile(path)
	require.NoError(t, err)
	assert.Equal(t, chunks, got)

	// no temp files are left behind
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSaveChunkFileEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.json")
	require.NoError(t, SaveChunkFile(path, nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"chunks": []}`, string(data))
}

func TestLoadChunkFileMissing(t *testing.T) {
	_, err := LoadChunkFile(filepath.Join(t.TempDir(), "nope.json"))
	assert.ErrorIs(t, err, core.ErrTranscriptNotFound)
}

func TestLoadChunkFileCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := LoadChunkFile(path)
	require.Error(t, err)
	assert.NotErrorIs(t, err, core.ErrTranscriptNotFound)
}

func TestNonEmptyChunks(t *testing.T) {
	chunks := []core.TranscriptChunk{
		{Text: "a"}, {Text: ""}, {Text: " \t\n"}, {Text: " b "},
	}
	got := NonEmptyChunks(chunks)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Text)
	assert.Equal(t, " b ", got[1].Text)
}

func TestBuildVectors(t *testing.T) {
	chunks := BuildChunks("1_intro", "1", []core.Segment{
		{Start: 0, End: 9, Text: "Welcome"},
		{Start: 9, End: 20, Text: "Gradient descent"},
	})
	vecs, err := BuildVectors(chunks, [][]float32{{1, 0}, {0, 1}})
	require.NoError(t, err)
	require.Len(t, vecs, 2)

	assert.Equal(t, "1_intro__1__0", vecs[0].ID)
	assert.Equal(t, "1_intro__1__9000", vecs[1].ID)
	assert.Equal(t, core.VectorMetadata{Title: "1_intro", ChunkID: "1", Start: 9, End: 20, Number: "1"}, vecs[1].Metadata)
	assert.Equal(t, chunks[1], vecs[1].Chunk())
}

func TestBuildVectorsErrors(t *testing.T) {
	chunks := BuildChunks("x", core.NumberNA, []core.Segment{
		{Start: 1.0001, End: 2, Text: "a"},
		{Start: 1.0004, End: 3, Text: "b"},
	})

	_, err := BuildVectors(chunks, [][]float32{{1}})
	require.Error(t, err)

	// both starts truncate to 1000 ms
	_, err = BuildVectors(chunks, [][]float32{{1}, {2}})
	assert.ErrorIs(t, err, core.ErrDuplicateID)
}

func TestChunkIDTruncatesMilliseconds(t *testing.T) {
	c := core.TranscriptChunk{Title: "lec", Number: core.NumberNA, Start: 12.3456}
	assert.Equal(t, "lec__NA__12345", ChunkID(c))
}
