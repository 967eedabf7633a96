// Command migrate applies, inspects and rolls back the inbox schema.
//
//	go run ./cmd/migrate up
//	go run ./cmd/migrate auto
//	go run ./cmd/migrate status
//	go run ./cmd/migrate verify
//	go run ./cmd/migrate down <version>
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"ridehail/internal/config"
	"ridehail/internal/database"
	"ridehail/internal/middleware"

	"gorm.io/gorm"
)

type command func(ctx context.Context, db *gorm.DB, cfg *config.Config, args []string) error

var commands = map[string]command{
	"up":     migrateUp,
	"auto":   migrateAuto,
	"status": migrateStatus,
	"verify": migrateVerify,
	"down":   migrateDown,
}

func main() {
	timeout := flag.Duration("timeout", 2*time.Minute, "Abort if the command takes longer")
	flag.Parse()

	if err := run(*timeout); err != nil {
		slog.Error("migrate failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func usage() error {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Errorf("usage: go run ./cmd/migrate <%s> [version]", strings.Join(names, "|"))
}

func run(timeout time.Duration) error {
	if flag.NArg() < 1 {
		return usage()
	}
	cmd, ok := commands[strings.ToLower(strings.TrimSpace(flag.Arg(0)))]
	if !ok {
		return usage()
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	middleware.InitLogger(cfg.Env)

	db, err := database.ConnectWithOptions(cfg, database.ConnectOptions{ApplySchema: false})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer func() { _ = database.Close(db) }()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return cmd(ctx, db, cfg, flag.Args()[1:])
}

func migrateUp(ctx context.Context, db *gorm.DB, _ *config.Config, _ []string) error {
	if err := database.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("sql migrations failed: %w", err)
	}
	middleware.Logger.InfoContext(ctx, "sql migrations applied")
	return nil
}

func migrateAuto(ctx context.Context, db *gorm.DB, cfg *config.Config, _ []string) error {
	cfg.DBSchemaMode = database.SchemaModeAuto
	if err := database.ApplySchema(ctx, db, cfg); err != nil {
		return fmt.Errorf("auto schema apply failed: %w", err)
	}
	middleware.Logger.InfoContext(ctx, "automigrations applied")
	return nil
}

func migrateStatus(ctx context.Context, db *gorm.DB, cfg *config.Config, _ []string) error {
	status, err := database.GetSchemaStatus(ctx, db, cfg)
	if err != nil {
		return fmt.Errorf("schema status failed: %w", err)
	}
	middleware.Logger.InfoContext(ctx, "schema status",
		slog.String("mode", status.Mode),
		slog.String("env", status.Environment),
		slog.Bool("run_sql", status.WillRunSQL),
		slog.Bool("run_auto", status.WillRunAutoMigrate),
		slog.Int("applied", len(status.AppliedVersions)),
		slog.Int("pending", len(status.PendingMigrations)))
	for _, m := range status.PendingMigrations {
		middleware.Logger.InfoContext(ctx, "pending migration", slog.String("migration", m.String()))
	}
	return nil
}

func migrateVerify(ctx context.Context, db *gorm.DB, _ *config.Config, _ []string) error {
	missing, err := database.MissingTables(ctx, db)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return fmt.Errorf("inbox schema incomplete, missing tables: %s", strings.Join(missing, ", "))
	}
	middleware.Logger.InfoContext(ctx, "inbox schema complete")
	return nil
}

func migrateDown(ctx context.Context, db *gorm.DB, _ *config.Config, args []string) error {
	if len(args) < 1 {
		return errors.New("usage: go run ./cmd/migrate down <version>")
	}
	version, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid version %q: %w", args[0], err)
	}
	if err := database.RollbackMigration(ctx, db, version); err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}
	middleware.Logger.InfoContext(ctx, "rolled back migration", slog.Int("version", version))
	return nil
}
