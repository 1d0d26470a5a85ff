package main

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"example.com/timeclock/internal/config"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	cfg := config.Load()

	pool, err := pgxpool.New(context.Background(), cfg.PostgresURL)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer pool.Close()

	dir := "db/postgres/migrations"
	if override := os.Getenv("MIGRATIONS_DIR"); override != "" {
		dir = override
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.up.sql"))
	if err != nil {
		log.Fatalf("Error listing migrations: %v", err)
	}
	sort.Strings(files)

	for _, file := range files {
		migration, err := os.ReadFile(file)
		if err != nil {
			log.Fatalf("Error reading migration file %s: %v", file, err)
		}
		if _, err := pool.Exec(context.Background(), string(migration)); err != nil {
			log.Fatalf("Error executing migration %s: %v", file, err)
		}
		log.Printf("Applied %s", file)
	}

	log.Println("Migration completed successfully")
}
