// Command lecturerag ingests lecture recordings into a vector index and
// answers questions grounded in their transcripts.
package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// cli holds the persistent flags and output streams shared by every command.
type cli struct {
	stdout     io.Writer
	stderr     io.Writer
	human      bool
	configPath string
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:   "lecturerag",
		Short: "Question answering over lecture recordings",
		Long: `lecturerag turns lecture videos and audio into a searchable knowledge base.

Recordings are transcribed, split into timestamped chunks, embedded and stored
in a vector index. Questions are answered from the retrieved chunks only, with
citations pointing back to the lecture and time range.

Output is JSON by default; pass --human for readable text.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(c.stdout)
	root.SetErr(c.stderr)
	root.PersistentFlags().BoolVar(&c.human, "human", false, "Output in human-readable format")
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "Path to config.yaml or config.json")

	root.AddCommand(
		c.serveCmd(),
		c.ingestCmd(),
		c.ingestURLCmd(),
		c.askCmd(),
		c.summarizeCmd(),
		c.deleteCmd(),
		c.reindexCmd(),
		c.listCmd(),
	)
	return root
}

// run executes the command line and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	c := &cli{stdout: stdout, stderr: stderr}
	root := newRootCmd(c)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		return c.fail(err)
	}
	return ExitSuccess
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
