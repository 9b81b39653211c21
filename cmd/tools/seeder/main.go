package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"

	"github.com/noah-isme/storefront-checkout/internal/catalog"
	"github.com/noah-isme/storefront-checkout/internal/db"
)

func main() {
	migrateFirst := flag.Bool("migrate", true, "apply schema migrations before seeding")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	if *migrateFirst {
		if err := db.Up(dbURL); err != nil {
			log.Fatalf("Failed to migrate: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		log.Fatalf("Failed to connect DB: %v", err)
	}
	defer func() { _ = conn.Close(context.Background()) }()

	n, err := seedProducts(ctx, conn, catalog.DemoProducts())
	if err != nil {
		log.Fatalf("Failed to seed products: %v", err)
	}
	log.Printf("Seeded %d products", n)
}

func seedProducts(ctx context.Context, conn *pgx.Conn, products []catalog.Product) (int, error) {
	batch := &pgx.Batch{}
	for _, p := range products {
		batch.Queue(`
			INSERT INTO products (id, name, description, image_url, price, created_at)
			VALUES ($1, $2, $3, $4, $5::numeric, $6)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				description = EXCLUDED.description,
				image_url = EXCLUDED.image_url,
				price = EXCLUDED.price,
				updated_at = now()`,
			p.ID, p.Title, p.Description, p.ImageURL, p.Price.StringFixed(2), p.CreatedAt)
	}
	results := conn.SendBatch(ctx, batch)
	defer func() { _ = results.Close() }()
	for range products {
		if _, err := results.Exec(); err != nil {
			return 0, err
		}
	}
	return len(products), nil
}
