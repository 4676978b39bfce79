package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/driveline/auto-auction-backend/internal/infrastructure/config"
)

func main() {
	var (
		action     = flag.String("action", "up", "Migration action: up, down, version, force")
		steps      = flag.Int("steps", 0, "Number of migrations to run (0 = all)")
		forceV     = flag.Int("version", 0, "Version to force (for force action)")
		source     = flag.String("source", "file://migrations", "Migration source URL")
		configPath = flag.String("config", "", "Path to config file")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	m, err := migrate.New(*source, pgxURL(cfg.Database.URL))
	if err != nil {
		slog.Error("failed to initialize migrator", "error", err)
		os.Exit(1)
	}
	defer m.Close()

	switch *action {
	case "up":
		if *steps > 0 {
			err = m.Steps(*steps)
		} else {
			err = m.Up()
		}
	case "down":
		if *steps > 0 {
			err = m.Steps(-*steps)
		} else {
			err = m.Down()
		}
	case "version":
		var (
			v     uint
			dirty bool
		)
		if v, dirty, err = m.Version(); err == nil {
			fmt.Printf("version: %d dirty: %v\n", v, dirty)
		}
	case "force":
		err = m.Force(*forceV)
	default:
		slog.Error("unknown action", "action", *action)
		os.Exit(1)
	}

	if err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			slog.Info("no schema changes to apply")
			return
		}
		slog.Error("migration failed", "action", *action, "error", err)
		os.Exit(1)
	}

	slog.Info("migration completed", "action", *action)
}

// pgxURL rewrites a postgres:// URL to the scheme the pgx migrate driver
// registers under.
func pgxURL(url string) string {
	if strings.HasPrefix(url, "postgres://") {
		return "pgx5://" + strings.TrimPrefix(url, "postgres://")
	}
	if strings.HasPrefix(url, "postgresql://") {
		return "pgx5://" + strings.TrimPrefix(url, "postgresql://")
	}
	return url
}
