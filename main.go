package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/osiprototype/backend/repository"
	"github.com/osiprototype/backend/services"
)

func main() {
	// Setup structured logging with JSON format
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	config := services.LoadConfig()
	ctx := context.Background()

	db, err := repository.Open(ctx, repository.OpenOptions{
		Driver:       config.Database.Driver,
		URL:          config.Database.URL,
		LogLevel:     config.Database.LogLevel,
		MaxIdleConns: config.Database.MaxIdleConns,
		MaxOpenConns: config.Database.MaxOpenConns,
	})
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	users := repository.NewGORMRepository(db.DB)
	if err := users.AutoMigrate(); err != nil {
		slog.Error("Failed to migrate database", "error", err)
		os.Exit(1)
	}
	slog.Info("Database migrated")

	if config.Database.Seed {
		seeder := services.NewDatabaseSeeder(users, repository.NewConversationRepository(db.DB))
		if err := seeder.SeedDatabase(ctx); err != nil {
			slog.Error("Failed to seed database", "error", err)
		}
	}

	flashes, err := services.NewFlashStore(ctx, config.Redis.URL)
	if err != nil {
		slog.Error("Failed to set up flash store", "error", err)
		os.Exit(1)
	}

	server, err := services.NewServer(config, db, flashes)
	if err != nil {
		slog.Error("Failed to initialize server", "error", err)
		os.Exit(1)
	}

	server.Start()
}
