package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sealor/ai-extractor/pkg/api"
	"github.com/sealor/ai-extractor/pkg/logging"
	"github.com/sealor/ai-extractor/pkg/persistence"
	"github.com/sealor/ai-extractor/pkg/persistence/postgres"
)

func main() {
	listen := flag.String("listen", ":3000", "Address to listen on")
	eventsFile := flag.String("file", "", "Serve the YAML event file written by the extractor instead of DATABASE_URL")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	logJSON := flag.Bool("log-json", false, "Log as JSON")
	flag.Parse()

	logger, err := logging.New(os.Stderr, *logLevel, *logJSON)
	if err != nil {
		log.Fatalln("ERROR:", err)
	}
	logging.SetLogger(logger)

	var store persistence.Store
	if *eventsFile != "" {
		store = persistence.NewFileStore(*eventsFile)
	} else {
		dbURL := os.Getenv("DATABASE_URL")
		if dbURL == "" {
			log.Fatal("DATABASE_URL is not set")
		}

		pool, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			log.Fatalf("connect: %v", err)
		}
		defer pool.Close()

		pg := postgres.New(pool)
		if err := pg.CreateSchema(context.Background()); err != nil {
			log.Fatalf("schema: %v", err)
		}
		store = pg
	}

	app := api.New(store, logger)
	logger.Info("serving events", "listen", *listen)
	log.Fatal(app.Listen(*listen))
}
