package core

import (
	"context"
	"errors"
	"fmt"
)

// Error kinds. Every failure surfaced by the pipeline matches exactly one of the
// stage kinds below via errors.Is; upstream deadlines additionally match
// ErrUpstreamTimeout.
var (
	ErrTranscode          = errors.New("transcode failure")
	ErrTranscription      = errors.New("transcription failure")
	ErrEmbedding          = errors.New("embedding failure")
	ErrVectorStore        = errors.New("vector store failure")
	ErrDuplicateLecture   = errors.New("lecture already exists")
	ErrEmptyKnowledgeBase = errors.New("knowledge base is empty")
	ErrNoResults          = errors.New("no matching transcript chunks")

	ErrUpstreamTimeout    = errors.New("upstream service timeout")
	ErrCompletion         = errors.New("completion failure")
	ErrDownload           = errors.New("download failure")
	ErrDuplicateID        = errors.New("duplicate vector id")
	ErrTranscriptNotFound = errors.New("transcript file not found")
	ErrInvalidInput       = errors.New("invalid input")
)

// StageError ties a failure to its kind and the lecture it happened on.
type StageError struct {
	Kind  error
	Title string
	Err   error
}

// NewStageError wraps err with the given kind. A nil err yields a bare kind error.
func NewStageError(kind error, title string, err error) *StageError {
	return &StageError{Kind: kind, Title: title, Err: err}
}

func (e *StageError) Error() string {
	msg := e.Kind.Error()
	if e.Title != "" {
		msg = fmt.Sprintf("%s (lecture %q)", msg, e.Title)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the kind, the cause and, for deadline causes, ErrUpstreamTimeout.
func (e *StageError) Unwrap() []error {
	errs := []error{e.Kind}
	if e.Err != nil {
		errs = append(errs, e.Err)
		if errors.Is(e.Err, context.DeadlineExceeded) {
			errs = append(errs, ErrUpstreamTimeout)
		}
	}
	return errs
}

// KindOf returns the first stage kind err matches, or nil.
func KindOf(err error) error {
	for _, kind := range []error{
		ErrInvalidInput,
		ErrDuplicateLecture,
		ErrEmptyKnowledgeBase,
		ErrNoResults,
		ErrTranscriptNotFound,
		ErrDuplicateID,
		ErrTranscode,
		ErrTranscription,
		ErrEmbedding,
		ErrVectorStore,
		ErrCompletion,
		ErrDownload,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
