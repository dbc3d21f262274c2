// Command kstruct is the thin CLI wrapper around the library: load a
// schema, interpret a binary file against it, and render the result tree
// as JSON or YAML.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/kaitai-rt/kstruct"
	"github.com/kaitai-rt/kstruct/pkg/ksvalue"
)

const version = "0.1.0"

// exit codes per §6.2.
const (
	exitOK      = 0
	exitGeneral = 1
	exitUsage   = 2
	exitSchema  = 3
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("kstruct", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var (
		output     = fs.String("o", "", "output path (default stdout)")
		pretty     = fs.Bool("pretty", false, "pretty-print output (default on when writing to stdout)")
		noPretty   = fs.Bool("no-pretty", false, "disable pretty-printing")
		format     = fs.String("f", "json", "output format: json|yaml")
		field      = fs.String("field", "", "extract a single subtree by dot.path")
		noValidate = fs.Bool("no-validate", false, "skip schema structural validation")
		strict     = fs.Bool("strict", false, "escalate validator warnings to errors")
		quiet      = fs.Bool("q", false, "suppress progress output on stderr")
		showHelp   = fs.Bool("h", false, "show usage")
		showVer    = fs.Bool("v", false, "show version")
	)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: kstruct <schema-file> <binary-file> [flags]\n\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *showHelp {
		fs.Usage()
		return exitOK
	}
	if *showVer {
		fmt.Fprintln(os.Stdout, "kstruct", version)
		return exitOK
	}
	if *format != "json" && *format != "yaml" {
		fmt.Fprintf(os.Stderr, "kstruct: unknown format %q (want json or yaml)\n", *format)
		return exitUsage
	}
	if fs.NArg() != 2 {
		fmt.Fprintf(os.Stderr, "kstruct: expected exactly 2 positional arguments, got %d\n", fs.NArg())
		fs.Usage()
		return exitUsage
	}

	schemaPath, binPath := fs.Arg(0), fs.Arg(1)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: levelFor(*quiet),
	}))

	schemaSrc, err := os.ReadFile(schemaPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "kstruct: reading schema %s: %v\n", schemaPath, err)
		return exitGeneral
	}
	data, err := os.ReadFile(binPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "kstruct: reading input %s: %v\n", binPath, err)
		return exitGeneral
	}

	if !*quiet {
		logger.Info("parsing", "schema", schemaPath, "input", binPath)
	}

	tree, err := kstruct.Parse(schemaSrc, data,
		kstruct.WithLogger(logger),
		kstruct.WithValidate(!*noValidate),
		kstruct.WithStrict(*strict),
	)
	if err != nil {
		var schemaErr *kstruct.SchemaError
		if errors.As(err, &schemaErr) {
			for _, f := range schemaErr.Result.Errors {
				fmt.Fprintln(os.Stderr, f.String())
			}
			return exitSchema
		}
		fmt.Fprintf(os.Stderr, "kstruct: %v\n", err)
		return exitGeneral
	}

	var out ksvalue.Value = tree
	if *field != "" {
		out, err = kstruct.ExtractField(tree, *field)
		if err != nil {
			fmt.Fprintf(os.Stderr, "kstruct: %v\n", err)
			return exitGeneral
		}
	}

	w := os.Stdout
	var closeErr error
	if *output != "" {
		f, ferr := os.Create(*output)
		if ferr != nil {
			fmt.Fprintf(os.Stderr, "kstruct: creating output %s: %v\n", *output, ferr)
			return exitGeneral
		}
		defer func() { closeErr = f.Close() }()
		w = f
	}

	usePretty := (*output == "" && !*noPretty) || (*pretty && !*noPretty)
	rendered, err := render(out, *format, usePretty)
	if err != nil {
		fmt.Fprintf(os.Stderr, "kstruct: rendering output: %v\n", err)
		return exitGeneral
	}
	if _, err := w.Write(rendered); err != nil {
		fmt.Fprintf(os.Stderr, "kstruct: writing output: %v\n", err)
		return exitGeneral
	}
	if closeErr != nil {
		fmt.Fprintf(os.Stderr, "kstruct: closing output: %v\n", closeErr)
		return exitGeneral
	}
	return exitOK
}

func render(v ksvalue.Value, format string, pretty bool) ([]byte, error) {
	if format == "yaml" {
		return kstruct.ToYAML(v)
	}
	b, err := kstruct.ToJSON(v, pretty)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

func levelFor(quiet bool) slog.Level {
	if quiet {
		return slog.LevelError
	}
	return slog.LevelInfo
}
