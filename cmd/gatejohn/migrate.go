package main

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/gatejohn/internal/config"
	"github.com/dropDatabas3/gatejohn/internal/observability/logger"
	migrations "github.com/dropDatabas3/gatejohn/migrations/postgres"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate [up|down] [steps]",
		Short: "Apply embedded postgres migrations",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			action := "up"
			steps := 0
			if len(args) >= 1 {
				action = strings.ToLower(args[0])
			}
			if len(args) >= 2 {
				if n, err := strconv.Atoi(args[1]); err == nil && n > 0 {
					steps = n
				}
			}
			return runMigrate(cmd.Context(), action, steps)
		},
	}
}

func runMigrate(ctx context.Context, action string, steps int) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Storage.Driver != "postgres" {
		return fmt.Errorf("migrate: storage driver is %q, nothing to migrate", cfg.Storage.Driver)
	}
	logger.Init(logger.Config{Env: cfg.App.Env, ServiceName: "gatejohn-migrate"})
	log := logger.L()

	pool, err := pgxpool.New(ctx, cfg.Storage.DSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	var suffix string
	switch action {
	case "up":
		suffix = "_up.sql"
	case "down":
		suffix = "_down.sql"
	default:
		return fmt.Errorf("unknown action %q, use: up | down [steps]", action)
	}

	files, err := listSQL(suffix)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		log.Info("no migrations to apply")
		return nil
	}
	sort.Strings(files)
	if action == "down" {
		// downs corren en orden inverso
		for i, j := 0, len(files)-1; i < j; i, j = i+1, j-1 {
			files[i], files[j] = files[j], files[i]
		}
	}
	if steps > 0 && steps < len(files) {
		files = files[:steps]
	}

	log.Info("applying migrations", logger.Count(len(files)), logger.String("action", action))
	for _, f := range files {
		b, err := migrations.FS.ReadFile(f)
		if err != nil {
			return err
		}
		start := time.Now()
		if _, err := pool.Exec(ctx, string(b)); err != nil {
			return fmt.Errorf("exec %s: %w", f, err)
		}
		log.Info("migration applied", logger.String("file", f), logger.Duration(time.Since(start)))
	}
	return nil
}

func listSQL(suffix string) ([]string, error) {
	entries, err := migrations.FS.ReadDir(".")
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), suffix) {
			out = append(out, e.Name())
		}
	}
	return out, nil
}
