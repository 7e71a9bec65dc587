package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"

	"github.com/canopyhq/canopy-backend/pkg/config"
	"github.com/canopyhq/canopy-backend/pkg/db"
	"github.com/canopyhq/canopy-backend/pkg/logger"
	"github.com/canopyhq/canopy-backend/pkg/migrate"
)

type flags struct {
	cmd     string
	dir     string
	name    string
	version string
}

// offline commands only touch the migrations directory.
var offline = map[string]func(f flags) error{
	"create": func(f flags) error {
		if f.name == "" {
			return errors.New("missing -name for create")
		}
		path, err := migrate.CreateSQLMigration(f.dir, f.name)
		if err != nil {
			return fmt.Errorf("create migration: %w", err)
		}
		fmt.Println("created migration:", path)
		return nil
	},
	"validate": func(f flags) error {
		count, err := migrate.ValidateDir(f.dir)
		if err != nil {
			return fmt.Errorf("migration validation failed: %w", err)
		}
		fmt.Printf("migration validation passed (%d files)\n", count)
		return nil
	},
}

// online commands run against the configured database.
var online = map[string]func(ctx context.Context, client *db.Client, sqlDB *sql.DB, f flags) error{
	"up":     gooseCommand("up"),
	"down":   gooseCommand("down"),
	"status": gooseCommand("status"),
	"version": func(ctx context.Context, _ *db.Client, sqlDB *sql.DB, f flags) error {
		if f.version == "" {
			return errors.New("missing -version for version command")
		}
		return migrate.MigrateToVersion(ctx, sqlDB, f.dir, f.version)
	},
	"automigrate": func(ctx context.Context, client *db.Client, _ *sql.DB, _ flags) error {
		return client.DB().WithContext(ctx).AutoMigrate(migrate.Models()...)
	},
}

func gooseCommand(name string) func(context.Context, *db.Client, *sql.DB, flags) error {
	return func(ctx context.Context, _ *db.Client, sqlDB *sql.DB, f flags) error {
		if err := migrate.Run(ctx, sqlDB, f.dir, name); err != nil {
			return fmt.Errorf("goose %s: %w", name, err)
		}
		return nil
	}
}

func commandNames() string {
	var names []string
	for n := range offline {
		names = append(names, n)
	}
	for n := range online {
		names = append(names, n)
	}
	sort.Strings(names)
	return strings.Join(names, "|")
}

func main() {
	_ = godotenv.Load()

	var f flags
	flag.StringVar(&f.cmd, "cmd", "up", "migration command: "+commandNames())
	flag.StringVar(&f.dir, "dir", migrate.DefaultDir, "goose migrations directory")
	flag.StringVar(&f.name, "name", "", "migration name (for create)")
	flag.StringVar(&f.version, "version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	if err := run(f); err != nil {
		fmt.Fprintf(os.Stderr, "migrate %s: %v\n", f.cmd, err)
		os.Exit(1)
	}
}

func run(f flags) error {
	if fn, ok := offline[f.cmd]; ok {
		return fn(f)
	}
	fn, ok := online[f.cmd]
	if !ok {
		return fmt.Errorf("unknown -cmd value %q (want %s)", f.cmd, commandNames())
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env": cfg.App.Env,
		"cmd": f.cmd,
		"dir": f.dir,
	})

	client, err := db.New(ctx, cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer client.Close()

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("sql handle: %w", err)
	}

	logg.Info(ctx, "running migration command")
	if err := fn(ctx, client, sqlDB, f); err != nil {
		logg.Error(ctx, "migration command failed", err)
		return err
	}
	logg.Info(ctx, "migration command complete")
	return nil
}
