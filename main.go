package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sealor/ai-extractor/pkg/conversation"
	"github.com/sealor/ai-extractor/pkg/driver"
	"github.com/sealor/ai-extractor/pkg/events"
	"github.com/sealor/ai-extractor/pkg/interrogation"
	"github.com/sealor/ai-extractor/pkg/logging"
	"github.com/sealor/ai-extractor/pkg/openaiclient"
	"github.com/sealor/ai-extractor/pkg/orchestrator"
	"github.com/sealor/ai-extractor/pkg/persistence"
	"github.com/sealor/ai-extractor/pkg/persistence/postgres"
	"github.com/sealor/ai-extractor/pkg/tooling"
	"golang.org/x/term"
)

func GetEnv(name, fallback string) string {
	value, ok := os.LookupEnv(name)
	if ok {
		return value
	} else {
		return fallback
	}
}

func main() {
	apiURL := flag.String("api", GetEnv("OPENAI_URL", "http://127.0.0.1:11434/v1"), "URL for the OpenAI API endpoint")
	model := flag.String("model", GetEnv("EXTRACTOR_MODEL", "qwen3:1.7b"), "Technical name of the LLM")
	temperature := flag.Float64("temperature", 0, "Sampling temperature (default: server default)")
	retries := flag.Int("retries", openaiclient.DefaultMaxRetries, "Retries per request on transient API errors")
	timeout := flag.Duration("timeout", time.Minute, "Timeout per request attempt")
	systemMessage := flag.String("system", "", "System message template, {places} and {date} are filled in")
	systemFile := flag.String("system-file", "", "Read the system message template from this file")
	places := flag.String("places", "Hoboken, Jersey City", "Comma separated places for the system message")
	eventsFile := flag.String("events-file", "", "File with raw events separated by $$$")
	functionsFile := flag.String("functions", "", "YAML file with the functions offered to the model")
	eventType := flag.String("type", "CityEvent", "Built-in event type ("+strings.Join(events.TypeNames(), ", ")+") or empty for none")
	interrogate := flag.String("interrogate", "none", "Interrogation after each reply: none, retry or interactive")
	maxRetriesPerEvent := flag.Int("max-retries-per-event", 2, "How often the model may fix a failed function call per event")
	outFile := flag.String("out", "", "Append processed events to this YAML file")
	databaseURL := flag.String("database-url", GetEnv("DATABASE_URL", ""), "Store processed events in this PostgreSQL database")
	filename := flag.String("filename", "", "File name stored with the events (default: base name of -events-file)")
	version := flag.String("version", "1", "Version stored with the events")
	keepGoing := flag.Bool("keep-going", false, "Continue with the next event when the API fails")
	activeLog := flag.Bool("log", false, "Activate API request logging")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	logJSON := flag.Bool("log-json", false, "Log as JSON")

	flag.Parse()
	if !flagSet(flag.CommandLine, "temperature") {
		temperature = nil
	}

	logger, err := logging.New(os.Stderr, *logLevel, *logJSON)
	if err != nil {
		log.Fatalln("ERROR:", err)
	}
	logging.SetLogger(logger)

	if *eventsFile == "" {
		log.Fatalln("ERROR: -events-file is required")
	}
	rawEvents, err := events.ReadFile(*eventsFile)
	if err != nil {
		log.Fatalln("ERROR:", err)
	}
	if *filename == "" {
		*filename = filepath.Base(*eventsFile)
	}

	manager, err := newManager(*functionsFile, *eventType, logger)
	if err != nil {
		log.Fatalln("ERROR:", err)
	}

	template := events.DefaultSystemPrompt
	if *systemMessage != "" {
		template = *systemMessage
	}
	if *systemFile != "" {
		data, err := os.ReadFile(*systemFile)
		if err != nil {
			log.Fatalln("ERROR:", err)
		}
		template = string(data)
	}
	system := conversation.SystemMessage(events.SystemPrompt(template, splitList(*places), time.Now()))

	client := openaiclient.New(openaiclient.Config{
		BaseURL:        *apiURL,
		APIKey:         GetEnv("OPENAI_API_KEY", ""),
		Model:          *model,
		Temperature:    temperature,
		MaxRetries:     *retries,
		RequestTimeout: *timeout,
		Debug:          *activeLog,
		Logger:         logger,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := openStore(ctx, *databaseURL, *outFile)
	if err != nil {
		log.Fatalln("ERROR:", err)
	}
	defer closeStore()

	if store != nil {
		n, err := store.CountEvents(ctx, *version, *filename)
		if err != nil {
			log.Fatalln("ERROR:", err)
		}
		if n > 0 {
			logger.Warn("events of this file and version are already stored, new ones are added", "count", n, "filename", *filename, "version", *version)
		}
	}

	opts := []orchestrator.Option{orchestrator.WithLogger(logger)}
	protocol, err := newInterrogation(*interrogate, *maxRetriesPerEvent, logger)
	if err != nil {
		log.Fatalln("ERROR:", err)
	}
	if protocol != nil {
		opts = append(opts, orchestrator.WithInterrogation(protocol))
	}

	prompt := events.PromptTemplate(events.DefaultEventPrompt)
	d := driver.New(rawEvents, client, manager, driver.WithLogger(logger))
	o := orchestrator.New(d, system, manager, func(event *conversation.EventNode) string {
		return prompt(event.RawEventStr())
	}, opts...)

	logger.Info("processing events", "count", len(rawEvents), "filename", *filename)
	parsed := 0
	for {
		res, err := o.Next(ctx)
		if errors.Is(err, orchestrator.ErrDone) {
			break
		}
		if res.Event != nil {
			if res.Failure == nil && res.Event.EventObj != nil {
				parsed++
			}
			if err := report(ctx, os.Stdout, store, res, *filename, *version); err != nil {
				log.Fatalln("ERROR:", err)
			}
		}
		if err != nil {
			if !*keepGoing || ctx.Err() != nil || errors.Is(err, conversation.ErrStructural) {
				log.Fatalln("ERROR:", err)
			}
			logger.Error("event failed, continuing", "error", err)
		}
	}
	logger.Info("done", "events", len(rawEvents), "parsed", parsed)
}

func newManager(functionsFile, eventType string, logger *slog.Logger) (*events.Manager, error) {
	if functionsFile != "" {
		spec, err := tooling.LoadSpec(functionsFile)
		if err != nil {
			return nil, err
		}
		return events.NewManager(spec, events.Creators(spec), events.WithLogger(logger))
	}
	if eventType == "" {
		return events.NewManager(nil, nil, events.WithLogger(logger))
	}
	typ, err := events.LoadType(eventType)
	if err != nil {
		return nil, err
	}
	return typ.NewManager(events.WithLogger(logger))
}

func newInterrogation(mode string, maxRetries int, logger *slog.Logger) (conversation.InterrogationProtocol, error) {
	switch mode {
	case "", "none":
		return nil, nil
	case "retry":
		return interrogation.NewRetryOnDispatchError(maxRetries), nil
	case "interactive":
		opts := []interrogation.Option{interrogation.WithLogger(logger)}
		if fd := int(os.Stdin.Fd()); term.IsTerminal(fd) {
			opts = append(opts, interrogation.WithRawMode(fd))
		}
		rw := struct {
			io.Reader
			io.Writer
		}{os.Stdin, os.Stdout}
		return interrogation.Chain{
			interrogation.NewRetryOnDispatchError(maxRetries),
			interrogation.NewInteractive(rw, opts...),
		}, nil
	}
	return nil, fmt.Errorf("unknown interrogation mode %q", mode)
}

// openStore prefers the database over the YAML file. The store is nil when neither is set.
func openStore(ctx context.Context, databaseURL, outFile string) (persistence.Store, func(), error) {
	if databaseURL != "" {
		pool, err := pgxpool.New(ctx, databaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect: %w", err)
		}
		store := postgres.New(pool)
		if err := store.CreateSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("create schema: %w", err)
		}
		return store, pool.Close, nil
	}
	if outFile != "" {
		return persistence.NewFileStore(outFile), func() {}, nil
	}
	return nil, func() {}, nil
}

func report(ctx context.Context, w io.Writer, store persistence.Store, res orchestrator.Result, filename, version string) error {
	if res.Failure != nil {
		fmt.Fprintln(w, "FAILED:", res.Failure)
	} else if res.Event.EventObj != nil {
		data, err := json.Marshal(res.Event.EventObj)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(data))
	} else if last := res.Event.Last(); last != nil {
		fmt.Fprintln(w, "NO EVENT:", last.MessageContent)
	}

	if store == nil {
		return nil
	}
	rec, err := persistence.NewRecordFromEvent(res.Event.Clone(), res.Failure, filename, version)
	if err != nil {
		return err
	}
	_, err = store.AddEvent(ctx, rec)
	return err
}

// flagSet reports whether name was given on the command line.
func flagSet(fs *flag.FlagSet, name string) bool {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
