package main

import (
	"strings"

	"github.com/spf13/cobra"

	"lectureRAG/core"
	"lectureRAG/initialization"
)

func (c *cli) askCmd() *cobra.Command {
	var lecture string
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question from the indexed lectures",
		Long: `Answer a question using only the retrieved transcript chunks.

The answer cites lecture titles and timestamp ranges. --lecture restricts
retrieval to one lecture. Exit code 3 means the knowledge base is empty or
nothing matched the filter.

Examples:
  lecturerag ask "What is a binary search tree?"
  lecturerag ask "How is rotation explained?" --lecture 2_trees --human`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")
			return c.withApp(cmd.Context(), func(app *initialization.App) error {
				ans, err := app.Answerer.Ask(cmd.Context(), question, lecture)
				if err != nil {
					return err
				}
				return c.emit(ans, func() { c.printAnswer(ans) })
			})
		},
	}
	cmd.Flags().StringVar(&lecture, "lecture", "", "Only search this lecture title")
	return cmd
}

func (c *cli) summarizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summarize <title>",
		Short: "Produce the quick and full summaries of a lecture",
		Long: `Summarize a lecture from its stored transcript chunks.

Both summaries are requested concurrently. If one fails the other is still
returned and the failed part is marked unavailable.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(app *initialization.App) error {
				sum, err := app.Summarizer.Summarize(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return c.emit(sum, func() { c.printSummary(sum) })
			})
		},
	}
}

func (c *cli) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List indexed lectures",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd.Context(), func(app *initialization.App) error {
				lectures, err := app.Manager.List(cmd.Context())
				if err != nil {
					return err
				}
				if lectures == nil {
					lectures = []core.LectureInfo{}
				}
				return c.emit(lectures, func() { c.printLectures(lectures) })
			})
		},
	}
}
