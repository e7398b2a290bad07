package main

import (
	"fmt"
	"io"
)

// printUsage prints the main usage message.
func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: mdbanner <command> [flags] [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  render     Render notes to self-contained HTML")
	fmt.Fprintln(w, "  export     Export notes to PDF")
	fmt.Fprintln(w, "  serve      Preview a vault over HTTP")
	fmt.Fprintln(w, "  version    Show version information")
	fmt.Fprintln(w, "  help       Show help for a command")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run 'mdbanner help <command>' for details on a specific command.")
}

func printCommonUsage(w io.Writer) {
	fmt.Fprintln(w, "Vault and settings:")
	fmt.Fprintln(w, "  -d, --vault <dir>         Vault directory (default: current directory)")
	fmt.Fprintln(w, "  -c, --config <name>       Config file name or path")
	fmt.Fprintln(w, "      --style <s>           Style name, CSS file path, or inline CSS")
	fmt.Fprintln(w, "      --asset-path <dir>    Custom style directory")
	fmt.Fprintln(w, "      --keyword-map <file>  YAML table of keyword -> image URLs")
	fmt.Fprintln(w, "      --height <px>         Default banner height")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Output Control:")
	fmt.Fprintln(w, "  -q, --quiet               Only show errors")
	fmt.Fprintln(w, "  -v, --verbose             Debug logging and timings")
	fmt.Fprintln(w, "      --log-level <s>       none, normal, debug")
	fmt.Fprintln(w, "      --log-format <s>      console, json")
}

// printCommandUsage prints usage for one command.
func printCommandUsage(w io.Writer, name string) {
	switch name {
	case "render", "export":
		what, ext := "self-contained HTML", ".html"
		if name == "export" {
			what, ext = "PDF (requires Chrome)", ".pdf"
		}
		fmt.Fprintf(w, "Usage: mdbanner %s [notes or folders...] [flags]\n", name)
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Render vault notes with their banners to %s.\n", what)
		fmt.Fprintln(w, "Notes and folders are vault-relative; none selects every note.")
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Output:")
		fmt.Fprintf(w, "  -o, --output <dir>        Output directory (default: next to each note, %s)\n", ext)
		fmt.Fprintln(w, "  -w, --workers <n>         Parallel workers (0 = auto)")
		fmt.Fprintln(w, "      --width <px>          View width (0 = unknown)")
		fmt.Fprintln(w, "  -t, --timeout <d>         Per-note timeout (e.g., 30s, 2m)")
		if name == "export" {
			fmt.Fprintln(w, "  -p, --page-size <s>       Page size: letter, a4, legal")
		}
		fmt.Fprintln(w)
		printCommonUsage(w)
	case "serve":
		fmt.Fprintln(w, "Usage: mdbanner serve [flags]")
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Preview a vault over HTTP. Edits on disk show on reload.")
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Routes:")
		fmt.Fprintln(w, "  GET  /notes/<note>         Note with its banner")
		fmt.Fprintln(w, "  GET  /pdf/<note>           Note as PDF")
		fmt.Fprintln(w, "  POST /banner/<note>        Choose a banner (form: source, persist)")
		fmt.Fprintln(w, "  POST /refresh/<note>       Retry the banner")
		fmt.Fprintln(w, "  GET  /api/views            Open views as JSON")
		fmt.Fprintln(w, "  GET  /metrics              Prometheus metrics")
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Server:")
		fmt.Fprintln(w, "  -a, --addr <host:port>    Listen address (default 127.0.0.1:8080)")
		fmt.Fprintln(w, "      --width <px>          View width (0 = unknown)")
		fmt.Fprintln(w, "  -p, --page-size <s>       Page size for /pdf")
		fmt.Fprintln(w, "  -t, --timeout <d>         Per-request timeout")
		fmt.Fprintln(w)
		printCommonUsage(w)
	case "version":
		fmt.Fprintln(w, "Usage: mdbanner version")
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Show version information.")
	case "help":
		fmt.Fprintln(w, "Usage: mdbanner help [command]")
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Show help for a command.")
	}
}

// runHelp prints help for a specific command.
func runHelp(args []string, env *Environment) {
	if len(args) == 0 {
		printUsage(env.Stdout)
		return
	}

	switch args[0] {
	case "render", "export", "serve", "version", "help":
		printCommandUsage(env.Stdout, args[0])
	default:
		fmt.Fprintf(env.Stderr, "Unknown command: %s\n", args[0])
		printUsage(env.Stderr)
	}
}
