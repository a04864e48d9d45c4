package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/dhamidi/jcheck/classfile"
	"github.com/dhamidi/jcheck/classpath"
	"github.com/dhamidi/jcheck/config"
	"github.com/spf13/cobra"
)

func newResolveCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "resolve <class>",
		Short: "Load a class from the class path and resolve its constant pool",
		Long: `Load a class by internal name (java/util/List) from the class path and
resolve every resolvable constant pool entry against it, printing the
resolved form or the linkage error of each entry.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries := filepath.SplitList(path)
			entries = append(entries, cfg.ClassPathEntries()...)
			if len(entries) == 0 {
				return fmt.Errorf("resolve: empty class path, use --classpath or the [classpath] section of %s", config.FileName)
			}
			return runResolve(cmd.OutOrStdout(), entries, args[0], cfg.ParserOptions())
		},
	}

	cmd.Flags().StringVar(&path, "classpath", "", "class path entries separated by "+string(filepath.ListSeparator))

	return cmd
}

// runResolve prints one line per resolvable entry. Linkage errors are part
// of the output; only failing to load the class itself is an error.
func runResolve(w io.Writer, entries []string, name string, opts []classfile.Option) error {
	parser := classfile.NewParser(classfile.NewSymbolTable(), classfile.NewStringTable())
	cp, err := classpath.OpenPath(parser, entries, opts...)
	if err != nil {
		return err
	}
	defer cp.Close()

	class, err := cp.Load(classfile.SourceToInternalName(name))
	if err != nil {
		return fmt.Errorf("resolve: %w", err)
	}
	if class.File == nil {
		return fmt.Errorf("resolve: %s is not backed by a class file", class.Name())
	}
	fmt.Fprintf(w, "%s from %s\n", class.Name(), class.Source)

	pool := class.File.ConstantPool
	resolved, failed := 0, 0
	for i := 1; i < pool.Size(); i++ {
		index := uint16(i)
		entry, err := pool.Entry(index)
		if err != nil || !classfile.IsResolvable(entry) {
			continue
		}
		if _, err := pool.Resolve(index, class, cp); err != nil {
			failed++
			fmt.Fprintf(w, "#%d\t%s\t%v\n", index, pool.Describe(index), err)
			continue
		}
		resolved++
		fmt.Fprintf(w, "#%d\t%s\n", index, pool.Describe(index))
	}
	fmt.Fprintf(w, "\n%d entries resolved, %d failed\n", resolved, failed)
	return nil
}
