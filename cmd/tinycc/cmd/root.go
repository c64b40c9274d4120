// Package cmd implements the tinycc command line driver, grounded on the
// teacher's cmd/cue/cmd.Command wrapper around *cobra.Command (construct
// once in New, run once via Execute/Main) — simplified to the one
// command this tool needs rather than a command tree.
package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/shlex"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	tcerrors "github.com/tinyc-lang/tinyc/errors"
	"github.com/tinyc-lang/tinyc/internal/core/check"
	"github.com/tinyc-lang/tinyc/internal/core/codegen"
	"github.com/tinyc-lang/tinyc/internal/core/symtab"
	"github.com/tinyc-lang/tinyc/internal/tm"
	"github.com/tinyc-lang/tinyc/parser"
)

// ErrPrintedError is returned by Run when compilation failed and
// diagnostics were already written to the command's output streams, so
// Main must not print the error a second time — mirrors the teacher's
// cmd/cue/cmd.ErrPrintedError.
var ErrPrintedError = errors.New("tinycc: compilation failed")

// Command wraps the root *cobra.Command.
type Command struct {
	*cobra.Command
}

// New constructs the root command with args already attached, ready for
// Execute.
func New(args []string) (*Command, error) {
	root := &cobra.Command{
		Use:           "tinycc [flags] file",
		Short:         "tinycc compiles a tiny C-like source file to TM assembly",
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.ExactArgs(1),
	}

	root.PersistentFlags().Bool("trace-analyze", false, "dump the symbol table after semantic analysis")
	root.PersistentFlags().Bool("trace-code", false, "echo generated TM assembly to stderr as it is produced")
	root.PersistentFlags().String("trace-format", "text", `trace output format: "text" or "yaml"`)
	root.PersistentFlags().String("out", "", "write TM assembly to this file instead of stdout")

	c := &Command{Command: root}
	root.RunE = func(cmd *cobra.Command, cmdArgs []string) error {
		return c.run(cmd, cmdArgs[0])
	}

	root.SetArgs(append(envArgs(), args...))
	return c, nil
}

// envArgs splits the TINYCCFLAGS environment variable shell-style and
// prepends its words to the command line, so CI and wrapper scripts can
// inject flags without editing an invocation (SPEC_FULL.md §4.6).
func envArgs() []string {
	raw := os.Getenv("TINYCCFLAGS")
	if raw == "" {
		return nil
	}
	parts, err := shlex.Split(raw)
	if err != nil {
		return nil
	}
	return parts
}

func (c *Command) run(cmd *cobra.Command, filename string) error {
	var src []byte
	var err error
	if filename == "-" {
		src, err = io.ReadAll(cmd.InOrStdin())
	} else {
		src, err = os.ReadFile(filename)
	}
	if err != nil {
		return fmt.Errorf("tinycc: %w", err)
	}

	traceAnalyze, _ := cmd.Flags().GetBool("trace-analyze")
	traceCode, _ := cmd.Flags().GetBool("trace-code")
	traceFormat, _ := cmd.Flags().GetString("trace-format")
	outPath, _ := cmd.Flags().GetString("out")

	root, parseErrs := parser.Parse(filename, src)

	an := check.NewAnalyzer()
	an.TraceAnalyze = traceAnalyze && traceFormat != "yaml"
	an.Trace = cmd.ErrOrStderr()
	table, checkErrs := an.Analyze(root)

	var all tcerrors.List
	all = append(all, parseErrs...)
	all = append(all, checkErrs...)
	all = tcerrors.Sanitize(all)

	hasError := len(parseErrs) > 0 || an.Error

	if traceAnalyze && traceFormat == "yaml" {
		if err := writeTraceYAML(cmd.ErrOrStderr(), table); err != nil {
			return err
		}
	}

	if len(all) > 0 {
		tcerrors.Print(cmd.OutOrStdout(), all)
	}

	if hasError {
		return ErrPrintedError
	}

	em := tm.NewEmitter()
	gen := codegen.NewGenerator(em, table, an.GlobalSize)
	gen.Generate(an.Decls)

	if traceCode {
		for _, line := range em.Lines() {
			fmt.Fprintln(cmd.ErrOrStderr(), line)
		}
	}

	out := cmd.OutOrStdout()
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("tinycc: %w", err)
		}
		defer f.Close()
		out = f
	}
	_, err = em.WriteTo(out)
	return err
}

// writeTraceYAML renders the symbol table as YAML, the --trace-format=yaml
// alternative to the plain-text dump Analyzer.Trace already writes during
// Analyze (SPEC_FULL.md §4.6).
func writeTraceYAML(w io.Writer, table *symtab.Table) error {
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(table.ToDump())
}

// Main runs the tinycc tool and returns the code to pass to os.Exit.
func Main() int {
	c, _ := New(os.Args[1:])
	if err := c.Execute(); err != nil {
		if err != ErrPrintedError {
			fmt.Fprintln(os.Stderr, err)
		}
		return 1
	}
	return 0
}
