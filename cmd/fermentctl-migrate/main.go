// Package main — cmd/fermentctl-migrate/main.go
//
// Standalone goose migration runner for fermentctl's Postgres schema.
// Useful for running migrations out-of-band from CI/CD or an operator
// shell, without starting the orchestrator loop.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"

	"fermentctl/internal/config"
	"fermentctl/internal/store/postgres"
)

func main() {
	configPath := flag.String("config", "/etc/fermentctl/config.yaml", "Path to config.yaml")
	dsnFlag := flag.String("dsn", "", "Postgres DSN, overrides the config file's store.dsn")
	flag.Parse()

	dsn := *dsnFlag
	if dsn == "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: config load failed: %v\n", err)
			os.Exit(1)
		}
		dsn = cfg.Store.DSN
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: open: %v\n", err)
		os.Exit(1)
	}
	defer db.Close() //nolint:errcheck

	if err := postgres.Migrate(db); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: migrate: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("migrations applied")
}
