package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"

	"go.uber.org/zap"

	"github.com/tullo/guardian/config"
	"github.com/tullo/guardian/internal/database"
	"github.com/tullo/guardian/internal/logger"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run cmd/migrate/main.go [up|down|status]")
		os.Exit(1)
	}

	command := os.Args[1]

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logg, err := logger.New(logger.Config{Environment: cfg.Server.Env, LogLevel: cfg.Log.Level, ServiceName: "guardian-migrate"})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logg.Sync()

	// Connect to database
	db, err := database.NewPostgresDB(cfg.GetDSN())
	if err != nil {
		logg.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	switch command {
	case "up":
		if err := database.RunMigrations(db.DB, logg); err != nil {
			logg.Fatal("Migration failed", zap.Error(err))
		}
		logg.Info("Migrations completed successfully")

	case "down":
		version, err := database.RollbackLast(db.DB, logg)
		if err != nil {
			logg.Fatal("Rollback failed", zap.Error(err))
		}
		if version == 0 {
			logg.Info("Nothing to roll back")
			return
		}
		logg.Info("Rolled back migration", zap.Int("version", version))

	case "status":
		showMigrationStatus(db.DB)

	default:
		fmt.Printf("Unknown command: %s\n", command)
		fmt.Println("Available commands: up, down, status")
		os.Exit(1)
	}
}

func showMigrationStatus(db *sql.DB) {
	applied, err := database.Status(context.Background(), db)
	if err != nil {
		fmt.Printf("No migrations found or table doesn't exist: %v\n", err)
		return
	}

	fmt.Println("\nApplied Migrations:")
	fmt.Println("-------------------")
	for _, m := range applied {
		fmt.Printf("Version %d - Applied at: %s\n", m.Version, m.AppliedAt)
	}
}
