package main

import (
	"github.com/dhamidi/jcheck/lsp"
	"github.com/spf13/cobra"
)

func newLSPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lsp",
		Short: "Start the Language Server Protocol server",
		RunE: func(cmd *cobra.Command, args []string) error {
			server := lsp.NewServer(version, cfg.ParserOptions()...)
			return server.RunStdio()
		},
	}
}
