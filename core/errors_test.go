package core

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageError_MatchesKindAndCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("ingest: %w", NewStageError(ErrEmbedding, "1_intro", cause))

	assert.ErrorIs(t, err, ErrEmbedding)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrUpstreamTimeout)
	assert.NotErrorIs(t, err, ErrTranscription)
	assert.Contains(t, err.Error(), `"1_intro"`)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestStageError_DeadlineMatchesUpstreamTimeout(t *testing.T) {
	err := NewStageError(ErrTranscode, "lec", fmt.Errorf("ffmpeg: %w", context.DeadlineExceeded))

	assert.ErrorIs(t, err, ErrTranscode)
	assert.ErrorIs(t, err, ErrUpstreamTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStageError_NilCause(t *testing.T) {
	err := NewStageError(ErrDuplicateLecture, "lec", nil)
	assert.Equal(t, `lecture already exists (lecture "lec")`, err.Error())
	assert.ErrorIs(t, err, ErrDuplicateLecture)
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"nil", nil, nil},
		{"plain", errors.New("boom"), nil},
		{"stage", NewStageError(ErrVectorStore, "", errors.New("disk full")), ErrVectorStore},
		{"wrapped sentinel", fmt.Errorf("ask: %w", ErrNoResults), ErrNoResults},
		{"duplicate id inside store failure", NewStageError(ErrVectorStore, "x", ErrDuplicateID), ErrDuplicateID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}
