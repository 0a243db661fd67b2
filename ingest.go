package main

import (
	"github.com/spf13/cobra"

	"lectureRAG/initialization"
	"lectureRAG/processors"
)

// ingestOptions turns the --seq flag into IngestOptions; an unset flag
// leaves numbering to the title's numeric prefix.
func ingestOptions(cmd *cobra.Command, seq int) processors.IngestOptions {
	var opts processors.IngestOptions
	if cmd.Flags().Changed("seq") {
		opts.Sequence = &seq
	}
	return opts
}

func (c *cli) ingestCmd() *cobra.Command {
	var (
		audio bool
		seq   int
	)
	cmd := &cobra.Command{
		Use:   "ingest <path>",
		Short: "Transcribe and index a lecture recording",
		Long: `Transcribe and index a local lecture recording.

The lecture title is the file name without its extension. Videos are
transcoded to audio first; pass --audio to skip that step for audio files.
Ingesting a title that is already indexed fails with exit code 4.

Examples:
  lecturerag ingest ~/lectures/1_intro.mp4
  lecturerag ingest recording.m4a --audio --seq 3
  lecturerag ingest 2_trees.mp4 --human`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := ingestOptions(cmd, seq)
			return c.withApp(cmd.Context(), func(app *initialization.App) error {
				ingest := app.Manager.IngestVideo
				if audio {
					ingest = app.Manager.IngestAudio
				}
				res, err := ingest(cmd.Context(), args[0], opts)
				if err != nil {
					return err
				}
				return c.emit(res, func() { c.printIngest(res) })
			})
		},
	}
	cmd.Flags().BoolVar(&audio, "audio", false, "Treat the input as audio (no transcoding)")
	cmd.Flags().IntVar(&seq, "seq", 0, "Lecture sequence number (overrides the title prefix)")
	return cmd
}

func (c *cli) ingestURLCmd() *cobra.Command {
	var seq int
	cmd := &cobra.Command{
		Use:   "ingest-url <url>",
		Short: "Download a video with yt-dlp and index it",
		Long: `Download a video with yt-dlp into the videos directory, then ingest it.

Examples:
  lecturerag ingest-url https://www.youtube.com/watch?v=abc123
  lecturerag ingest-url https://example.com/lecture.mp4 --seq 7`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := ingestOptions(cmd, seq)
			return c.withApp(cmd.Context(), func(app *initialization.App) error {
				res, err := app.Manager.IngestURL(cmd.Context(), args[0], opts)
				if err != nil {
					return err
				}
				return c.emit(res, func() { c.printIngest(res) })
			})
		},
	}
	cmd.Flags().IntVar(&seq, "seq", 0, "Lecture sequence number (overrides the title prefix)")
	return cmd
}

func (c *cli) reindexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reindex <title>",
		Short: "Rebuild a lecture's vectors from its saved transcript",
		Long: `Re-embed a lecture from its transcript JSON without transcribing again.

Existing vectors for the title are replaced only after embedding succeeds.
A missing transcript fails with exit code 3 and leaves the index untouched.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(app *initialization.App) error {
				res, err := app.Manager.Reindex(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return c.emit(res, func() { c.printIngest(res) })
			})
		},
	}
}

func (c *cli) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <title>",
		Short: "Remove a lecture's vectors, media and transcript",
		Long: `Remove every stored vector for a lecture along with its video, audio and
transcript files. Deleting a lecture that does not exist succeeds and
reports nothing removed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(app *initialization.App) error {
				res, err := app.Manager.Delete(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return c.emit(res, func() {
					c.outputHuman("Deleted %s: %d vectors, %d files\n", res.Title, res.Vectors, len(res.Files))
					for _, f := range res.Files {
						c.outputHuman("  %s\n", f)
					}
				})
			})
		},
	}
}
