// Command scp-log is a tool for viewing and analyzing SCP protocol log files.
//
// Log files are written by scp-device when started with the -protocol-log
// flag.
//
// Usage:
//
//	scp-log <command> [flags] <file.slog>
//
// Commands:
//
//	view     View log file in human-readable format
//	export   Export log file to JSON or CSV format
//	filter   Filter log file and write to new file
//	stats    Show statistics about the log file
//
// Examples:
//
//	# View only protocol-layer events
//	scp-log view --layer protocol device.slog
//
//	# Follow a single request
//	scp-log view --request-id 3f2a9c1e-... device.slog
//
//	# Keep only measure commands
//	scp-log filter --type measure -o measure.slog device.slog
//
//	# Keep only rejected requests
//	scp-log filter --result malformed -o rejected.slog device.slog
//
//	# Export to CSV
//	scp-log export --format csv -o device.csv device.slog
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/scp-protocol/scp-go/cmd/scp-log/commands"
)

const usage = `scp-log - SCP Protocol Log Analyzer

Usage:
  scp-log <command> [flags] <file.slog>

Commands:
  view     View log file in human-readable format
  export   Export log file to JSON or CSV format
  filter   Filter log file and write to new file
  stats    Show statistics about the log file

Use "scp-log <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "view":
		runView(args)
	case "export":
		runExport(args)
	case "filter":
		runFilter(args)
	case "stats":
		runStats(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// requirePath returns the single positional log file argument.
func requirePath(fs *flag.FlagSet) string {
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: log file path required")
		fs.Usage()
		os.Exit(1)
	}
	return fs.Arg(0)
}

func runView(args []string) {
	fs := flag.NewFlagSet("view", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "scp-log view - View log file in human-readable format\n\nUsage:\n  scp-log view [flags] <file.slog>\n\nFlags:\n")
		fs.PrintDefaults()
	}

	layer := fs.String("layer", "", "Filter by layer (transport, protocol, service)")
	direction := fs.String("direction", "", "Filter by direction (in, out)")
	category := fs.String("category", "", "Filter by category (message, state, error)")
	requestID := fs.String("request-id", "", "Filter by request ID")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	path := requirePath(fs)

	filter := commands.ViewFilter{RequestID: *requestID}
	if *layer != "" {
		l, err := commands.ParseLayerFlag(*layer)
		if err != nil {
			fail(err)
		}
		filter.Layer = &l
	}
	if *direction != "" {
		d, err := commands.ParseDirectionFlag(*direction)
		if err != nil {
			fail(err)
		}
		filter.Direction = &d
	}
	if *category != "" {
		c, err := commands.ParseCategoryFlag(*category)
		if err != nil {
			fail(err)
		}
		filter.Category = &c
	}

	if err := commands.RunView(path, filter, os.Stdout); err != nil {
		fail(err)
	}
}

func runExport(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "scp-log export - Export log file to JSON or CSV format\n\nUsage:\n  scp-log export [flags] <file.slog>\n\nFlags:\n")
		fs.PrintDefaults()
	}

	format := fs.String("format", "jsonl", "Output format (jsonl, csv)")
	output := fs.String("o", "", "Output file (default: stdout)")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	path := requirePath(fs)

	if err := commands.RunExport(path, *format, *output); err != nil {
		fail(err)
	}
}

func runFilter(args []string) {
	fs := flag.NewFlagSet("filter", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "scp-log filter - Filter log file and write to new file\n\nUsage:\n  scp-log filter [flags] <file.slog>\n\nFlags:\n")
		fs.PrintDefaults()
	}

	var opts commands.FilterOptions
	fs.StringVar(&opts.Output, "o", "", "Output file (required)")
	fs.StringVar(&opts.RequestID, "request-id", "", "Filter by request ID")
	fs.StringVar(&opts.DeviceID, "device-id", "", "Filter by device ID")
	fs.StringVar(&opts.MessageType, "type", "", "Filter by message type (e.g. control)")
	fs.StringVar(&opts.Action, "action", "", "Filter by control or measure action")
	fs.StringVar(&opts.Result, "result", "", "Filter by response result (done, success, error, malformed)")
	fs.StringVar(&opts.TimeStart, "time-start", "", "Filter by start time (RFC3339)")
	fs.StringVar(&opts.TimeEnd, "time-end", "", "Filter by end time (RFC3339)")
	fs.StringVar(&opts.Layer, "layer", "", "Filter by layer (transport, protocol, service)")
	fs.StringVar(&opts.Direction, "direction", "", "Filter by direction (in, out)")
	fs.StringVar(&opts.Category, "category", "", "Filter by category (message, state, error)")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	path := requirePath(fs)
	if opts.Output == "" {
		fmt.Fprintln(os.Stderr, "Error: output file (-o) required")
		fs.Usage()
		os.Exit(1)
	}

	count, err := commands.RunFilter(path, opts)
	if err != nil {
		fail(err)
	}
	fmt.Printf("Filtered %d events to %s\n", count, opts.Output)
}

func runStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "scp-log stats - Show statistics about the log file\n\nUsage:\n  scp-log stats <file.slog>\n")
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	path := requirePath(fs)

	if err := commands.RunStats(path, os.Stdout); err != nil {
		fail(err)
	}
}
