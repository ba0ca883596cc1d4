package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/easydollars/easydollars-api/internal/config"
	"github.com/easydollars/easydollars-api/internal/pkg/database"
	"github.com/easydollars/easydollars-api/internal/pkg/logger"
)

const usage = `Usage: migrate [flags] <command> [args]

Commands:
  up                 apply all pending migrations
  up-by-one          apply the next migration
  up-to VERSION      migrate up to VERSION
  down               roll back one migration
  down-to VERSION    roll back to VERSION
  redo               roll back and reapply the latest migration
  reset              roll back everything
  status             print migration status
  version            print the current version
`

func main() {
	dsn := flag.String("database-url", "", "postgres connection string (default: DATABASE_URL)")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.Load()
	logger.Init(logger.Config{Level: cfg.LogLevel, Environment: cfg.Env})

	url := cfg.DatabaseURL
	if *dsn != "" {
		url = *dsn
	}

	command, args := flag.Arg(0), flag.Args()[1:]
	if err := database.Migrate(context.Background(), url, command, args...); err != nil {
		log.Fatal().Err(err).Str("command", command).Msg("Migration failed")
	}
	log.Info().Str("command", command).Msg("Migration finished")
}
