package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/kirillkom/content-analyzer/internal/core/domain"
	"github.com/kirillkom/content-analyzer/internal/infrastructure/events/nats"
	"github.com/kirillkom/content-analyzer/internal/observability/logging"
	"github.com/kirillkom/content-analyzer/internal/pollclient"
)

const usage = `usage: analyzectl <command> [flags]

commands:
  upload FILE     upload a PDF or image and follow the job until it settles
  watch JOB_ID    follow an existing job
  events          print job lifecycle events from NATS
`

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "analyzectl:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return errors.New("missing command")
	}

	switch args[0] {
	case "upload", "watch":
		return runJob(ctx, args[0], args[1:], stdout, stderr)
	case "events":
		return runEvents(ctx, args[1:], stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return nil
	default:
		fmt.Fprint(stderr, usage)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func runJob(ctx context.Context, command string, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	fs.SetOutput(stderr)
	server := fs.String("server", envOr("ANALYZER_URL", "http://localhost:8080"), "analyzer base URL")
	apiKey := fs.String("api-key", os.Getenv("API_KEY"), "bearer token for the analyzer")
	interval := fs.Duration("interval", pollclient.DefaultPollInterval, "poll interval")
	maxErrors := fs.Int("max-errors", 10, "consecutive failed polls before giving up (0 retries forever)")
	asJSON := fs.Bool("json", false, "print the final job as JSON")
	logLevel := fs.String("log-level", envOr("LOG_LEVEL", "warn"), "log level")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%s expects exactly one argument", command)
	}
	logger := logging.New(stderr, "analyzectl", *logLevel, "text")

	client := pollclient.New(*server, pollclient.WithAPIKey(*apiKey))
	jobID := fs.Arg(0)
	if command == "upload" {
		id, err := client.Upload(ctx, fs.Arg(0))
		if err != nil {
			return fmt.Errorf("upload: %w", err)
		}
		jobID = id
		fmt.Fprintf(stdout, "job %s submitted\n", jobID)
	}

	watcher := pollclient.NewWatcher(client)
	watcher.Interval = *interval
	watcher.MaxConsecutiveErrors = *maxErrors
	watcher.OnError = func(err error) {
		logger.Warn("poll_failed", "job_id", jobID, "error", err)
	}
	watcher.OnSignal = func(signal pollclient.Signal, view pollclient.JobView) {
		fmt.Fprintf(stdout, "[%3d%%] %s\n", pollclient.Progress(view), describeSignal(signal, view))
	}

	lastProgress := -1
	final, err := watcher.Watch(ctx, jobID, func(view pollclient.JobView) {
		if p := pollclient.Progress(view); p != lastProgress {
			lastProgress = p
			logger.Debug("job_progress", "job_id", jobID, "status", view.Status, "progress", p)
		}
	})
	if err != nil {
		return fmt.Errorf("watch %s: %w", jobID, err)
	}

	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(final)
	}
	printSummary(stdout, final)
	if final.Status == pollclient.StatusError {
		return fmt.Errorf("job %s failed: %s", final.JobID, final.Error)
	}
	return nil
}

func runEvents(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("events", flag.ContinueOnError)
	fs.SetOutput(stderr)
	url := fs.String("nats", envOr("NATS_URL", "nats://localhost:4222"), "NATS server URL")
	prefix := fs.String("prefix", envOr("NATS_SUBJECT_PREFIX", nats.DefaultSubjectPrefix), "subject prefix")
	if err := fs.Parse(args); err != nil {
		return err
	}

	logger := logging.New(stderr, "analyzectl", envOr("LOG_LEVEL", "warn"), "text")
	subscriber, err := nats.New(*url, *prefix, nats.Options{
		Name:           "analyzectl",
		ConnectTimeout: 5 * time.Second,
		Logger:         logger,
	})
	if err != nil {
		return err
	}
	defer subscriber.Close()

	enc := json.NewEncoder(stdout)
	return subscriber.SubscribeJobEvents(ctx, func(_ context.Context, event domain.JobEvent) error {
		return enc.Encode(event)
	})
}

func describeSignal(signal pollclient.Signal, view pollclient.JobView) string {
	switch signal {
	case pollclient.SignalTextExtracted:
		return fmt.Sprintf("text extracted (%d chars)", len([]rune(view.Result.Text)))
	case pollclient.SignalSuggestionsReady:
		return fmt.Sprintf("%d suggestions ready", len(view.Result.Suggestions))
	case pollclient.SignalSuggestionsFailed:
		return "suggestions failed: " + view.Result.SuggestionsError
	case pollclient.SignalJobFailed:
		return "job failed: " + view.Error
	default:
		return string(signal)
	}
}

func printSummary(w io.Writer, view pollclient.JobView) {
	if view.Result == nil {
		return
	}
	text := strings.TrimSpace(view.Result.Text)
	if text == "" {
		text = "(no text found)"
	}
	fmt.Fprintf(w, "\n--- extracted text ---\n%s\n", text)
	if len(view.Result.Suggestions) > 0 {
		fmt.Fprintln(w, "\n--- suggestions ---")
		for i, s := range view.Result.Suggestions {
			fmt.Fprintf(w, "%d. %s\n", i+1, s)
		}
	}
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

