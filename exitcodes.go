package main

import (
	"errors"

	"lectureRAG/config"
	"lectureRAG/core"
)

// Exit codes for lecturerag commands.
const (
	ExitSuccess   = 0 // Operation completed successfully
	ExitError     = 1 // General error
	ExitConfig    = 2 // Missing or invalid configuration
	ExitNotFound  = 3 // Empty knowledge base, no matching chunks or missing transcript
	ExitDuplicate = 4 // Lecture or chunk id already indexed
)

// exitCode maps an error returned by a command to the process exit code.
func exitCode(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, config.ErrInvalidConfig):
		return ExitConfig
	case errors.Is(err, core.ErrEmptyKnowledgeBase),
		errors.Is(err, core.ErrNoResults),
		errors.Is(err, core.ErrTranscriptNotFound):
		return ExitNotFound
	case errors.Is(err, core.ErrDuplicateLecture),
		errors.Is(err, core.ErrDuplicateID):
		return ExitDuplicate
	default:
		return ExitError
	}
}
