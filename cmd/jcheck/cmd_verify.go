package main

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/dhamidi/jcheck/classfile"
	"github.com/dhamidi/jcheck/classpath"
	"github.com/dhamidi/jcheck/verifier"
	"github.com/fatih/color"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	colorOK   = color.New(color.FgGreen).SprintFunc()
	colorFail = color.New(color.Bold, color.FgRed).SprintFunc()
)

func newVerifyCmd() *cobra.Command {
	var (
		jobs    int
		noColor bool
	)

	cmd := &cobra.Command{
		Use:   "verify <path>...",
		Short: "Parse and verify every class in directories, jars, zips or class files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("jobs") {
				jobs = cfg.Verify.Jobs
			}
			if noColor || !cfg.Output.Color {
				color.NoColor = true
			}
			return runVerify(cmd.Context(), cmd.OutOrStdout(), args, jobs, cfg.ParserOptions())
		},
	}

	cmd.Flags().IntVarP(&jobs, "jobs", "j", 1, "number of classes verified concurrently")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "disable colored output")

	return cmd
}

// verifyJob is one class file found while walking the arguments.
type verifyJob struct {
	entry string
	data  []byte
}

// runVerify checks every class under paths and prints one status line per
// class. It returns all failures together.
func runVerify(ctx context.Context, w io.Writer, paths []string, jobs int, opts []classfile.Option) error {
	if jobs < 1 {
		jobs = 1
	}
	parser := classfile.NewParser(classfile.NewSymbolTable(), classfile.NewStringTable())

	var (
		mu       sync.Mutex
		failures *multierror.Error
		checked  int
		failed   int
	)
	report := func(entry string, err error) {
		mu.Lock()
		defer mu.Unlock()
		checked++
		if err != nil {
			fmt.Fprintf(w, "%s %s: %v\n", colorFail("[FAIL]"), entry, err)
			failures = multierror.Append(failures, fmt.Errorf("%s: %w", entry, err))
			failed++
			return
		}
		fmt.Fprintf(w, "%s %s\n", colorOK("[OK]"), entry)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for _, p := range paths {
		src, err := classpath.Open(p)
		if err != nil {
			report(p, err)
			continue
		}
		err = src.Walk(func(entry string, data []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			job := verifyJob{entry: entry, data: data}
			g.Go(func() error {
				report(job.entry, checkClass(parser, job.data, opts))
				return nil
			})
			return nil
		})
		src.Close()
		if err != nil {
			report(p, err)
		}
	}
	if err := g.Wait(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\n%d classes checked, %d failed\n", checked, failed)
	return failures.ErrorOrNil()
}

func checkClass(parser *classfile.Parser, data []byte, opts []classfile.Option) error {
	cf, err := parser.Parse(data, opts...)
	if err != nil {
		return err
	}
	return verifier.VerifyClass(cf)
}
