package main

import (
	"io"

	flag "github.com/spf13/pflag"
)

// commonFlags holds flags shared across commands.
type commonFlags struct {
	config    string
	vault     string
	quiet     bool
	verbose   bool
	logLevel  string
	logFormat string
}

// settingsFlags override values of the loaded settings.
type settingsFlags struct {
	style      string
	assetPath  string
	keywordMap string
	height     float64
}

// batchFlags holds flags of the render and export commands.
type batchFlags struct {
	common   commonFlags
	settings settingsFlags
	output   string
	workers  int
	width    float64
	timeout  string
	pageSize string // export only
}

// serveFlags holds flags of the serve command.
type serveFlags struct {
	common   commonFlags
	settings settingsFlags
	addr     string
	width    float64
	pageSize string
	timeout  string
}

// addCommonFlags adds common flags to a FlagSet.
func addCommonFlags(fs *flag.FlagSet, f *commonFlags) {
	fs.StringVarP(&f.config, "config", "c", "", "config file name or path")
	fs.StringVarP(&f.vault, "vault", "d", "", "vault directory (default: current directory)")
	fs.BoolVarP(&f.quiet, "quiet", "q", false, "only show errors")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "debug logging and timings")
	fs.StringVar(&f.logLevel, "log-level", "", "log level: none, normal, debug")
	fs.StringVar(&f.logFormat, "log-format", "", "log format: console, json")
}

// addSettingsFlags adds settings overrides to a FlagSet.
func addSettingsFlags(fs *flag.FlagSet, f *settingsFlags) {
	fs.StringVar(&f.style, "style", "", "banner style name, CSS file path, or inline CSS")
	fs.StringVar(&f.assetPath, "asset-path", "", "custom style directory")
	fs.StringVar(&f.keywordMap, "keyword-map", "", "YAML file mapping keywords to image URLs")
	fs.Float64Var(&f.height, "height", 0, "default banner height in px")
}

// parseBatchFlags parses render or export flags and returns positional args.
func parseBatchFlags(name string, args []string, stderr io.Writer) (*batchFlags, []string, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	f := &batchFlags{}

	fs.StringVarP(&f.output, "output", "o", "", "output directory (default: next to each note)")
	fs.IntVarP(&f.workers, "workers", "w", 0, "parallel workers (0 = auto)")
	fs.Float64Var(&f.width, "width", 0, "view width in px (0 = unknown)")
	fs.StringVarP(&f.timeout, "timeout", "t", "", "per-note timeout (e.g., 30s, 2m)")
	if name == "export" {
		fs.StringVarP(&f.pageSize, "page-size", "p", "", "page size: letter, a4, legal")
	}

	addCommonFlags(fs, &f.common)
	addSettingsFlags(fs, &f.settings)

	fs.Usage = func() { printCommandUsage(stderr, name) }

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	return f, fs.Args(), nil
}

// parseServeFlags parses serve flags.
func parseServeFlags(args []string, stderr io.Writer) (*serveFlags, error) {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	f := &serveFlags{}

	fs.StringVarP(&f.addr, "addr", "a", "", "listen address (default 127.0.0.1:8080)")
	fs.Float64Var(&f.width, "width", 0, "view width in px (0 = unknown)")
	fs.StringVarP(&f.pageSize, "page-size", "p", "", "page size for /pdf: letter, a4, legal")
	fs.StringVarP(&f.timeout, "timeout", "t", "", "per-request timeout (e.g., 30s, 2m)")

	addCommonFlags(fs, &f.common)
	addSettingsFlags(fs, &f.settings)

	fs.Usage = func() { printCommandUsage(stderr, "serve") }

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return f, nil
}
