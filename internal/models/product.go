package models

import "time"

// Product is a catalog entry.
type Product struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       float64   `json:"price"`
	Category    string    `json:"category"`
	ImageURL    string    `json:"image_url"`
	Stock       int       `json:"stock"`
	Features    []string  `json:"features"`
	CreatedAt   time.Time `json:"created_at"`
}

// ProductSummary is the slice of a product the bot renders in replies.
type ProductSummary struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

func (p *Product) Summary() ProductSummary {
	return ProductSummary{Name: p.Name, Price: p.Price}
}
