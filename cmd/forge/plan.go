package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nstogner/forge/pkg/domain"
)

func planCmd(opts *rootOptions) *cobra.Command {
	var (
		file    string
		modelID string
		out     string
	)
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Execute an implementation plan step by step",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			var plan domain.Plan
			if err := json.Unmarshal(data, &plan); err != nil {
				return fmt.Errorf("parsing plan %s: %w", file, err)
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, opts.cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()

			progress := newProgressPrinter(func(line string) { fmt.Fprintln(cmd.ErrOrStderr(), line) })
			res := a.orchestrator.Execute(ctx, &plan, modelID, progress.observe)

			fmt.Fprint(cmd.OutOrStdout(), renderSteps("Plan", res.Steps))
			for _, f := range res.Files {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s (%s)\n", f.Path, f.Language)
			}
			for _, c := range res.Commands {
				fmt.Fprintf(cmd.OutOrStdout(), "  $ %s\n", c)
			}

			if out != "" {
				// Later versions of a path win.
				files := make(map[string]string, len(res.Files))
				for _, f := range res.Files {
					files[f.Path] = f.Content
				}
				if err := writeFiles(out, files); err != nil {
					return err
				}
			}
			if n := len(res.Steps); n > 0 && res.Steps[n-1].Status == domain.StepFailed {
				return fmt.Errorf("plan stopped at step %d: %s", n, res.Steps[n-1].Error)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Plan JSON file")
	cmd.Flags().StringVarP(&modelID, "model", "m", "", "Model id (default from config)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Directory to write generated files to")
	cmd.MarkFlagRequired("file")
	return cmd
}
