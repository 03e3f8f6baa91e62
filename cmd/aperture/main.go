package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dvloznov/aperture/internal/config"
	"github.com/dvloznov/aperture/internal/logger"
	"github.com/dvloznov/aperture/internal/pipeline"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout))
}

// run executes one command and returns the process exit code. genOpts are
// passed to the insight generator.
func run(args []string, stdin io.Reader, stdout io.Writer, genOpts ...pipeline.GeneratorOption) int {
	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	log := logger.New(logger.Options{Level: cfg.App.LogLevel, JSON: cfg.App.LogJSON})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx, log)

	a := &app{cfg: cfg, out: stdout, genOpts: genOpts}
	defer a.close()

	command := "menu"
	if len(args) > 0 {
		command = args[0]
		args = args[1:]
	}

	switch command {
	case "menu":
		err = runMenu(ctx, a, stdin)
	case "analyze-mock":
		_, err = a.analyzeMock(ctx)
	case "analyze-plaid":
		_, err = a.analyzePlaid(ctx)
	case "fetch":
		err = runFetch(ctx, a, args)
	case "transform":
		err = runTransform(ctx, a, args)
	case "insights":
		err = runInsights(ctx, a, args)
	case "migrate":
		err = runMigrate(ctx, a, args)
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage(stdout)
		return 1
	}

	if err != nil {
		reportFailure(ctx, err)
		return 1
	}
	return 0
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Aperture: family office insights")
	fmt.Fprintln(w, "\nUsage:")
	fmt.Fprintln(w, "  aperture [command] [options]")
	fmt.Fprintln(w, "\nCommands:")
	fmt.Fprintln(w, "  menu           Choose a data source interactively (default)")
	fmt.Fprintln(w, "  analyze-mock   Analyze the bundled mock dataset")
	fmt.Fprintln(w, "  analyze-plaid  Fetch Plaid sandbox data and analyze it")
	fmt.Fprintln(w, "  fetch          Fetch a raw Plaid record and save it")
	fmt.Fprintln(w, "  transform      Transform a saved raw record")
	fmt.Fprintln(w, "  insights       Generate insights from a transformed artifact")
	fmt.Fprintln(w, "  migrate        Create or update the BigQuery artifact tables")
	fmt.Fprintln(w, "  help           Show this help message")
	fmt.Fprintln(w, "\nRun 'aperture <command> -h' for more information on a command.")
}

// Menu choices.
const (
	choiceMock  = "1"
	choicePlaid = "2"
	choiceBoth  = "3"
)

func runMenu(ctx context.Context, a *app, stdin io.Reader) error {
	fmt.Fprintln(a.out, "Select a data source:")
	fmt.Fprintln(a.out, "  1) Mock data (test dataset)")
	fmt.Fprintln(a.out, "  2) Plaid sandbox (live API)")
	fmt.Fprintln(a.out, "  3) Both")
	fmt.Fprint(a.out, "Enter choice [1-3]: ")

	choice, err := readChoice(stdin)
	if err != nil {
		return err
	}

	switch choice {
	case choiceMock:
		_, err = a.analyzeMock(ctx)
		return err
	case choicePlaid:
		_, err = a.analyzePlaid(ctx)
		return err
	default:
		mock, err := a.analyzeMock(ctx)
		if err != nil {
			return err
		}
		live, err := a.analyzePlaid(ctx)
		if err != nil {
			return err
		}
		printComparison(a.out, mock, live)
		return nil
	}
}

func readChoice(stdin io.Reader) (string, error) {
	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("read menu choice: %w", err)
	}
	choice := strings.TrimSpace(line)
	switch choice {
	case choiceMock, choicePlaid, choiceBoth:
		return choice, nil
	default:
		return "", fmt.Errorf("invalid menu choice %q, want 1, 2 or 3", choice)
	}
}

func runFetch(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("fetch", flag.ContinueOnError)
	out := fs.String("out", "", "Path of the raw record file (default: raw_plaid_<run id>.json in OUTPUT_DIR)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return a.fetch(ctx, *out)
}

func runTransform(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("transform", flag.ContinueOnError)
	in := fs.String("in", "", "Path of a raw record saved by fetch")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		return fmt.Errorf("transform: -in is required")
	}
	return a.transform(ctx, *in)
}

func runInsights(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("insights", flag.ContinueOnError)
	artifact := fs.String("artifact", "", "Name or gs:// URI of a transformed_* artifact")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *artifact == "" {
		return fmt.Errorf("insights: -artifact is required")
	}
	return a.insights(ctx, *artifact)
}

func runMigrate(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	appliedBy := fs.String("applied-by", "aperture-migrate", "Name recorded with each applied migration")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return a.migrate(ctx, *appliedBy)
}
