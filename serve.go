package main

import (
	"github.com/spf13/cobra"

	"lectureRAG/initialization"
	"lectureRAG/server"
)

func (c *cli) serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the HTTP API until interrupted.

Routes:
  GET    /health
  GET    /metrics
  GET    /lectures
  POST   /lectures                  {"path": "...", "kind": "video|audio"} or {"url": "..."}
  DELETE /lectures/{title}
  POST   /lectures/{title}/reindex
  POST   /lectures/{title}/summary
  POST   /query                     {"question": "...", "lecture": "..."}

The listen address defaults to ":" + the configured port.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd.Context(), func(app *initialization.App) error {
				listen := addr
				if listen == "" {
					listen = ":" + app.Config.Port
				}
				srv := server.New(server.Deps{
					Lectures:   app.Manager,
					Answerer:   app.Answerer,
					Summarizer: app.Summarizer,
					Store:      app.Store,
					Metrics:    app.Metrics,
					Logger:     app.Logger,
				})
				return srv.ListenAndServe(cmd.Context(), listen)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides the configured port)")
	return cmd
}
