package main

import (
	"context"
	"flag"
	"log"
	"os"
	"strconv"

	"github.com/pressly/goose/v3"

	"github.com/driveline/lessons-api/pkg/config"
	"github.com/driveline/lessons-api/pkg/database"
)

func main() {
	dir := flag.String("dir", "migrations", "directory with migration files")
	flag.Parse()

	command := flag.Arg(0)
	if command == "" {
		command = "up"
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer db.Close() //nolint:errcheck

	if err := goose.SetDialect("postgres"); err != nil {
		log.Fatalf("failed to set goose dialect: %v", err)
	}

	ctx := context.Background()
	switch command {
	case "up":
		err = goose.UpContext(ctx, db.DB, *dir)
	case "down":
		err = goose.DownContext(ctx, db.DB, *dir)
	case "status":
		err = goose.StatusContext(ctx, db.DB, *dir)
	case "version":
		var version int64
		if version, err = goose.GetDBVersionContext(ctx, db.DB); err == nil {
			log.Printf("database is at version %s", strconv.FormatInt(version, 10))
		}
	default:
		log.Printf("unknown command %q (expected up, down, status or version)", command)
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("migration %s failed: %v", command, err)
	}
}
