package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"lectureRAG/core"
	"lectureRAG/server"
)

// outputJSON writes a value as indented JSON to stdout.
func (c *cli) outputJSON(v any) error {
	enc := json.NewEncoder(c.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputHuman writes a human-readable line to stdout.
func (c *cli) outputHuman(format string, args ...any) {
	fmt.Fprintf(c.stdout, format, args...)
}

// emit writes v as JSON, or calls human when --human is set.
func (c *cli) emit(v any, human func()) error {
	if c.human {
		human()
		return nil
	}
	return c.outputJSON(v)
}

// fail reports err in the selected format and returns its exit code.
func (c *cli) fail(err error) int {
	code := exitCode(err)
	if c.human {
		fmt.Fprintf(c.stderr, "error: %v\n", err)
		return code
	}
	_, kind := server.Classify(err)
	if code == ExitConfig {
		kind = "invalid_config"
	}
	enc := json.NewEncoder(c.stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(server.ErrorResponse{Error: kind, Message: err.Error()})
	return code
}

func (c *cli) printIngest(res *core.IngestResult) {
	c.outputHuman("Indexed %d of %d chunks for %s (lecture %s) in %s\n",
		res.Indexed, res.Chunks, res.Title, res.Number, res.Duration.Round(time.Millisecond))
	for _, s := range res.Steps {
		line := fmt.Sprintf("  %-16s %-10s %s", s.Name, s.Status, s.Duration.Round(time.Millisecond))
		if s.Error != "" {
			line += "  " + s.Error
		}
		c.outputHuman("%s\n", line)
	}
	if res.JSONPath != "" {
		c.outputHuman("Transcript: %s\n", res.JSONPath)
	}
}

func (c *cli) printAnswer(ans *core.Answer) {
	c.outputHuman("%s\n\n", strings.TrimSpace(ans.Text))
	c.outputHuman("Best match: %s %s-%s\n", ans.Best.Title,
		core.FormatTimestamp(ans.Best.Start), core.FormatTimestamp(ans.Best.End))
	if len(ans.Sources) == 0 {
		return
	}
	c.outputHuman("\nSources:\n")
	for _, h := range ans.Sources {
		c.outputHuman("  %.3f  %s %s-%s\n", h.Score, h.Metadata.Title,
			core.FormatTimestamp(h.Metadata.Start), core.FormatTimestamp(h.Metadata.End))
	}
}

func (c *cli) printSummary(sum *core.LectureSummary) {
	c.outputHuman("# %s (%d chunks)\n", sum.Title, sum.Chunks)
	for _, part := range []struct {
		heading string
		part    core.SummaryPart
	}{
		{"Quick summary", sum.Quick},
		{"Full summary", sum.Full},
	} {
		c.outputHuman("\n## %s\n\n", part.heading)
		if !part.part.Available {
			c.outputHuman("(unavailable: %s)\n", part.part.Error)
			continue
		}
		c.outputHuman("%s\n", strings.TrimSpace(part.part.Text))
	}
}

func (c *cli) printLectures(lectures []core.LectureInfo) {
	if len(lectures) == 0 {
		c.outputHuman("No lectures indexed\n")
		return
	}
	c.outputHuman("%-40s %-6s %-7s %s\n", "TITLE", "NUMBER", "CHUNKS", "MEDIA")
	for _, l := range lectures {
		c.outputHuman("%-40s %-6s %-7d %s\n", l.Title, l.Number, l.Chunks, l.Media)
	}
}
