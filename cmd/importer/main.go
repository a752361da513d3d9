// Command importer backdates customer history into the ledger:
//
//	importer -account loja-1 -file dados.json [-dry-run]
//
// It uses the same DATABASE_URL / SQLITE_PATH settings as the server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"fiado/backend/internal/config"
	"fiado/backend/internal/importer"
	"fiado/backend/internal/logger"
	"fiado/backend/internal/store"
	pgstore "fiado/backend/internal/store/postgres"
	sqlitestore "fiado/backend/internal/store/sqlite"
)

func main() {
	accountID := flag.String("account", "", "account that owns the imported customers")
	path := flag.String("file", "", "JSON file with the customer history")
	dryRun := flag.Bool("dry-run", false, "validate and report without writing")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.Load()
	log := logger.New(logger.Config{Env: cfg.AppEnv, Level: cfg.LogLevel})

	if err := run(context.Background(), cfg, log, *accountID, *path, *dryRun); err != nil {
		log.Error().Err(err).Msg("import failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log zerolog.Logger, accountID string, path string, dryRun bool) error {
	if accountID == "" || path == "" {
		return errors.New("-account and -file are required")
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	records, err := importer.Decode(f)
	if err != nil {
		return err
	}

	repo, closeRepo, err := openRepository(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closeRepo() }()

	im := importer.New(repo,
		importer.WithLocation(cfg.Location()),
		importer.WithDryRun(dryRun),
		importer.WithLogger(log),
	)
	result, err := im.Import(ctx, accountID, records)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(result)
	return err
}

// openRepository refuses the in-memory store: an import that vanishes on
// exit is never what the operator wants.
func openRepository(ctx context.Context, cfg config.Config) (store.Repository, func() error, error) {
	switch {
	case cfg.DatabaseURL != "":
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		pg, err := pgstore.New(connectCtx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		if err := pg.Migrate(connectCtx); err != nil {
			_ = pg.Close()
			return nil, nil, err
		}
		return pg, pg.Close, nil
	case cfg.SQLitePath != "":
		lite, err := sqlitestore.New(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("sqlite: %w", err)
		}
		return lite, lite.Close, nil
	}
	return nil, nil, errors.New("set DATABASE_URL or SQLITE_PATH")
}
