package main

import (
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nstogner/forge/pkg/action"
)

func actionsCmd(opts *rootOptions) *cobra.Command {
	var (
		file string
		run  bool
		out  string
	)
	cmd := &cobra.Command{
		Use:   "actions",
		Short: "Parse (and optionally run) the action tags in model output",
		Long:  "Reads model output from --file (or stdin with -) and lists the <action> tags it contains.",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}
			actions := action.Parse(text)

			if !run {
				if b, ok := action.ParseBundle(text); ok {
					fmt.Fprintln(cmd.OutOrStdout(), titleStyle.Render(fmt.Sprintf("%s (%s)", b.Title, b.ID)))
				}
				for i, a := range actions {
					fmt.Fprintf(cmd.OutOrStdout(), "%d. %s\n", i+1, action.Title(a))
				}
				return nil
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, opts.cfg, true)
			if err != nil {
				return err
			}
			defer a.Close()

			progress := newProgressPrinter(func(line string) { fmt.Fprintln(cmd.ErrOrStderr(), line) })
			exec := &action.Executor{
				Runner:      a.runner(),
				WorkspaceID: uuid.New().String(),
				Observer:    progress.observe,
			}
			if a.sandbox != nil {
				defer a.sandbox.Release(ctx, exec.WorkspaceID)
			}
			res := exec.Execute(ctx, actions)

			fmt.Fprint(cmd.OutOrStdout(), renderSteps("Actions", res.Steps))
			if out != "" {
				if err := writeFiles(out, exec.Files.ReadAll()); err != nil {
					return err
				}
			}
			return res.Err
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "File with model output, - for stdin")
	cmd.Flags().BoolVar(&run, "run", false, "Execute the actions (shell actions need sandbox.enabled)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Directory to write the resulting files to (with --run)")
	return cmd
}

func readInput(stdin io.Reader, file string) (string, error) {
	if file == "-" {
		data, err := io.ReadAll(stdin)
		return string(data), err
	}
	data, err := os.ReadFile(file)
	return string(data), err
}
