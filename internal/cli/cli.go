package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/vk/dataflow/internal/app"
)

var (
	logFormats = []string{"text", "json"}
	logLevels  = []string{"debug", "info", "warn", "error"}
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

func usageError(format string, args ...any) *ExitError {
	return &ExitError{Code: 2, Message: fmt.Sprintf(format, args...)}
}

// options mirrors the flag set before it is turned into an app.Config.
type options struct {
	pipeline, p    string
	logFormat      string
	logLevel       string
	introspectPort int
	epochs         int
	optimize       bool
	printTree      bool
}

func newFlagSet(output io.Writer, o *options) *flag.FlagSet {
	fs := flag.NewFlagSet("dataflow", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.Usage = func() {
		fmt.Fprint(output, `
dataflow - runs an HCL-defined operator tree and prints its rows as JSON lines.

Usage:
  dataflow [options] [PIPELINE_PATH]

Arguments:
  PIPELINE_PATH
    A .hcl file, or a directory searched recursively for .hcl files. Every
    op "<kind>" "<name>" block becomes one node; the op nobody reads is the
    root whose rows are printed.

Examples:
  dataflow pipelines/people.hcl
  dataflow -epochs 3 -print-tree pipelines/
  dataflow -introspect-port 9090 -log-level debug -p pipelines/

Options:
`)
		fs.PrintDefaults()
	}

	fs.StringVar(&o.pipeline, "pipeline", "", "Path to the pipeline file or directory.")
	fs.StringVar(&o.p, "p", "", "Path to the pipeline file or directory (shorthand).")
	fs.StringVar(&o.logFormat, "log-format", "text", "Log output format: "+strings.Join(logFormats, ", ")+".")
	fs.StringVar(&o.logLevel, "log-level", "info", "Logging level: "+strings.Join(logLevels, ", ")+".")
	fs.IntVar(&o.introspectPort, "introspect-port", 0, "Port serving /health, /tree and /metrics while the tree runs. 0 is disabled.")
	fs.IntVar(&o.epochs, "epochs", 1, "Number of passes over the whole tree; each pass ends with its own epoch marker.")
	fs.BoolVar(&o.optimize, "optimize", true, "Remove operators that do nothing before preparing the tree.")
	fs.BoolVar(&o.printTree, "print-tree", false, "Print the prepared tree to the output before its rows.")
	return fs
}

// pipelinePath picks -pipeline over -p over the first positional argument.
func (o *options) pipelinePath(fs *flag.FlagSet) string {
	switch {
	case o.pipeline != "":
		return o.pipeline
	case o.p != "":
		return o.p
	}
	return fs.Arg(0)
}

// Parse processes command-line arguments. It returns a populated app.Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	var o options
	fs := newFlagSet(output, &o)
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, usageError("%s", err)
	}

	path := o.pipelinePath(fs)
	slog.Debug("Pipeline path determined.", "path", path)
	if path == "" {
		fs.Usage()
		return nil, true, nil
	}
	if fs.NArg() > 1 {
		return nil, false, usageError("expected one pipeline path, got %d: %v", fs.NArg(), fs.Args())
	}

	logFormat := strings.ToLower(o.logFormat)
	if !slices.Contains(logFormats, logFormat) {
		return nil, false, usageError("invalid log-format %q: must be one of %s", o.logFormat, strings.Join(logFormats, ", "))
	}
	logLevel := strings.ToLower(o.logLevel)
	if !slices.Contains(logLevels, logLevel) {
		return nil, false, usageError("invalid log-level %q: must be one of %s", o.logLevel, strings.Join(logLevels, ", "))
	}
	if o.epochs < 1 {
		return nil, false, usageError("invalid epochs %d: a tree runs at least one epoch", o.epochs)
	}
	if o.introspectPort < 0 || o.introspectPort > 65535 {
		return nil, false, usageError("invalid introspect-port %d: must be 0 or a TCP port", o.introspectPort)
	}

	config, err := app.NewConfig(app.Config{
		PipelinePath:   path,
		LogFormat:      logFormat,
		LogLevel:       logLevel,
		IntrospectPort: o.introspectPort,
		Epochs:         o.epochs,
		Optimize:       o.optimize,
		PrintTree:      o.printTree,
	})
	if err != nil {
		return nil, false, usageError("%s", err)
	}

	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, false, nil
}
