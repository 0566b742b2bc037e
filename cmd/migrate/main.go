package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/namtang/stopmap/internal/adapters/postgres"
	"github.com/namtang/stopmap/internal/pkg/config"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: migrate <up|down>")
	}

	cfg, err := config.Load("stopmap-migrate")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()
	db, err := postgres.New(ctx, cfg.Database.DSN(), 2)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	switch os.Args[1] {
	case "up":
		if err := postgres.Migrate(ctx, db, cfg.Data.Table); err != nil {
			log.Fatalf("migrate: %v", err)
		}
	case "down":
		if err := postgres.Drop(ctx, db, cfg.Data.Table); err != nil {
			log.Fatalf("drop: %v", err)
		}
	default:
		log.Fatalf("unknown command: %s", os.Args[1])
	}

	fmt.Printf("OK  %s %s\n", os.Args[1], cfg.Data.Table)
}
