package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"shopchat/internal/models"
)

// DemoProducts is the catalog loaded by SeedProducts.
var DemoProducts = []models.Product{
	{
		Name:        "Smartphone X",
		Description: "Latest smartphone with advanced features",
		Price:       699.99,
		Category:    "Electronics",
		ImageURL:    "https://via.placeholder.com/300",
		Stock:       50,
		Features:    []string{`6.5" Display`, "128GB Storage", "5G Capable"},
	},
	{
		Name:        "Laptop Pro",
		Description: "High-performance laptop for professionals",
		Price:       1299.99,
		Category:    "Electronics",
		ImageURL:    "https://via.placeholder.com/300",
		Stock:       30,
		Features:    []string{`15" Display`, "16GB RAM", "512GB SSD"},
	},
	{
		Name:        "Wireless Headphones",
		Description: "Noise-cancelling wireless headphones",
		Price:       199.99,
		Category:    "Electronics",
		ImageURL:    "https://via.placeholder.com/300",
		Stock:       100,
		Features:    []string{"Active Noise Cancellation", "30h Battery Life", "Bluetooth 5.0"},
	},
	{
		Name:        "Smart Watch",
		Description: "Fitness and health tracking smartwatch",
		Price:       249.99,
		Category:    "Electronics",
		ImageURL:    "https://via.placeholder.com/300",
		Stock:       75,
		Features:    []string{"Heart Rate Monitor", "GPS", "Water Resistant"},
	},
	{
		Name:        "Gaming Console",
		Description: "Next-gen gaming console",
		Price:       499.99,
		Category:    "Electronics",
		ImageURL:    "https://via.placeholder.com/300",
		Stock:       25,
		Features:    []string{"4K Gaming", "1TB Storage", "Backward Compatible"},
	},
}

// SeedProducts replaces the product table with products.
func SeedProducts(ctx context.Context, db *sql.DB, products []models.Product) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM products`); err != nil {
		return fmt.Errorf("clear products: %w", err)
	}
	now := time.Now().UTC()
	for i := range products {
		p := products[i]
		if err := InsertProduct(ctx, tx, &p, now); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit seed: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// InsertProduct stores p and fills in its id and creation time.
func InsertProduct(ctx context.Context, db execer, p *models.Product, now time.Time) error {
	features := p.Features
	if features == nil {
		features = []string{}
	}
	raw, err := json.Marshal(features)
	if err != nil {
		return fmt.Errorf("encode features: %w", err)
	}
	res, err := db.ExecContext(ctx,
		`INSERT INTO products (name, description, price, category, image_url, stock, features, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Name, p.Description, p.Price, p.Category, p.ImageURL, p.Stock, string(raw), now,
	)
	if err != nil {
		return fmt.Errorf("insert product %q: %w", p.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("product id: %w", err)
	}
	p.ID = id
	p.CreatedAt = now
	return nil
}
