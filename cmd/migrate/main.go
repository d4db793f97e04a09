package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"

	"ballot-engine/internal/audit"
	pgstore "ballot-engine/pkg/docstore/postgres"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	// Get database URL
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is not set")
	}

	// Get command
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run ./cmd/migrate [up|drop|reset]")
		os.Exit(1)
	}

	command := os.Args[1]

	// Connect to database
	ctx := context.Background()
	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer conn.Close(ctx)

	switch command {
	case "up":
		if err := exec(ctx, conn, pgstore.Schema, audit.Schema); err != nil {
			log.Fatalf("Failed to create tables: %v", err)
		}
		fmt.Println("All tables created successfully")

	case "drop":
		if err := exec(ctx, conn, audit.DropSchema, pgstore.DropSchema); err != nil {
			log.Fatalf("Failed to drop tables: %v", err)
		}
		fmt.Println("All tables dropped successfully")

	case "reset":
		if err := exec(ctx, conn, audit.DropSchema, pgstore.DropSchema, pgstore.Schema, audit.Schema); err != nil {
			log.Fatalf("Failed to reset tables: %v", err)
		}
		fmt.Println("All tables recreated successfully")

	default:
		fmt.Printf("Unknown command: %s\n", command)
		fmt.Println("Usage: go run ./cmd/migrate [up|drop|reset]")
		os.Exit(1)
	}
}

func exec(ctx context.Context, conn *pgx.Conn, statements ...string) error {
	for _, stmt := range statements {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute statement: %w\nStatement: %s", err, summarize(stmt))
		}
		fmt.Printf("  Executed: %s\n", summarize(stmt))
	}
	return nil
}

func summarize(stmt string) string {
	if len(stmt) > 60 {
		return stmt[:60] + "..."
	}
	return stmt
}
