package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nstogner/forge/pkg/generate"
	"github.com/nstogner/forge/pkg/stream"
)

func generateCmd(opts *rootOptions) *cobra.Command {
	var (
		req         generate.Request
		drawingPath string
		out         string
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a single-page app from a request",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts.cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()

			if drawingPath != "" {
				data, err := os.ReadFile(drawingPath)
				if err != nil {
					return err
				}
				req.DrawingData = string(data)
			}

			var html, signature string
			if req.Stream {
				// Chunks go to stderr as they arrive so stdout stays the artifact.
				sink := stream.SinkFunc(func(_ context.Context, e stream.Event) error {
					switch e.Type {
					case stream.TypeChunk:
						fmt.Fprint(cmd.ErrOrStderr(), e.Text)
					case stream.TypeComplete:
						fmt.Fprintln(cmd.ErrOrStderr())
						html, signature = e.HTML, e.Signature
					}
					return nil
				})
				if err := a.generator.GenerateStream(ctx, req, sink); err != nil {
					return err
				}
			} else {
				resp, err := a.generator.Generate(ctx, req)
				if err != nil {
					return err
				}
				html, signature = resp.HTML, resp.Signature
			}

			if out != "" {
				if err := os.WriteFile(out, []byte(html), 0o644); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (signature %s)\n", out, signature)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), html)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&req.Query, "query", "q", "", "What to build")
	f.StringVar(&req.CurrentHTML, "current", "", "Current page HTML to refine")
	f.StringVar(&req.Feedback, "feedback", "", "Feedback to apply to the current page")
	f.StringVar(&req.Theme, "theme", "", "Visual theme")
	f.StringVarP(&req.Model, "model", "m", "", "Model id (default from config)")
	f.BoolVar(&req.Stream, "stream", false, "Stream the response")
	f.StringVar(&drawingPath, "drawing", "", "File holding a data URL or base64 PNG of a UI sketch")
	f.StringVarP(&out, "out", "o", "", "Write the HTML to this file instead of stdout")
	return cmd
}
