package main

import (
	"fmt"
	"io"

	"github.com/dhamidi/jcheck/classfile"
	"github.com/dhamidi/jcheck/format"
	"github.com/dhamidi/jcheck/verifier"
	"github.com/spf13/cobra"
)

func newParseCmd() *cobra.Command {
	var (
		outputFormat string
		verify       bool
	)

	cmd := &cobra.Command{
		Use:   "parse <file>...",
		Short: "Parse class files and print a summary of each",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("format") {
				outputFormat = cfg.Output.Format
			}
			if !cmd.Flags().Changed("verify") {
				verify = cfg.Verify.Enabled
			}
			return runParse(cmd.OutOrStdout(), args, outputFormat, verify, cfg.ParserOptions())
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "format", "f", "line", "output format (json, line, cbor)")
	cmd.Flags().BoolVar(&verify, "verify", true, "verify every method and report failures in the summary")

	return cmd
}

func runParse(w io.Writer, files []string, outputFormat string, verify bool, opts []classfile.Option) error {
	enc, err := format.NewEncoder(outputFormat, w)
	if err != nil {
		return err
	}
	parser := classfile.NewParser(classfile.NewSymbolTable(), classfile.NewStringTable())
	for _, filename := range files {
		cf, err := parser.ParseFile(filename, opts...)
		if err != nil {
			return fmt.Errorf("parse %s: %w", filename, err)
		}
		summary := format.Summarize(cf)
		if verify {
			for i := range cf.Methods {
				if err := verifier.VerifyMethod(cf, &cf.Methods[i]); err != nil {
					summary.Methods[i].VerifyError = err.Error()
				}
			}
		}
		if err := enc.Encode(summary); err != nil {
			return fmt.Errorf("encode %s: %w", outputFormat, err)
		}
	}
	return nil
}
