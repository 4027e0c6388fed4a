package main

import (
	"github.com/spf13/cobra"

	"github.com/nstogner/forge/pkg/mcpserver"
)

func mcpCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve forge tools over MCP (stdio)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts.cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()
			return mcpserver.New(a.generator, a.orchestrator, version).ServeStdio()
		},
	}
}
