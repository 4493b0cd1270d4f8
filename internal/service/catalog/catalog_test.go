package catalog

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"shopchat/internal/config"
	"shopchat/internal/models"
	"shopchat/internal/storage"
)

func TestSearchByTextRanksAndCaps(t *testing.T) {
	svc, _ := newSeededCatalog(t, 5)
	ctx := context.Background()

	hits, err := svc.SearchByText(ctx, "Laptop")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 || hits[0].Name != "Laptop Pro" {
		t.Fatalf("unexpected hits: %+v", hits)
	}

	hits, err = svc.SearchByText(ctx, "wireless headphones")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) == 0 || hits[0].Name != "Wireless Headphones" {
		t.Fatalf("best match should rank first: %+v", hits)
	}

	// every demo product is in Electronics
	hits, err = svc.SearchByText(ctx, "electronics")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 5 {
		t.Fatalf("expected 5 category hits, got %d", len(hits))
	}

	capped, _ := newSeededCatalog(t, 2)
	hits, err = capped.SearchByText(ctx, "electronics")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("limit ignored: %d", len(hits))
	}

	hits, err = svc.SearchByText(ctx, "toaster")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("expected no hits, got %+v", hits)
	}
}

func TestSearchByPriceRangeIsInclusive(t *testing.T) {
	svc, db := newSeededCatalog(t, 5)
	ctx := context.Background()
	p := &models.Product{Name: "Cable", Description: "USB cable", Price: 200, Category: "Accessories"}
	if err := storage.InsertProduct(ctx, db, p, p.CreatedAt); err != nil {
		t.Fatalf("insert: %v", err)
	}

	hits, err := svc.SearchByPriceRange(ctx, 199, 200)
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(hits) != 2 || hits[0].Name != "Wireless Headphones" || hits[1].Name != "Cable" {
		t.Fatalf("unexpected range hits: %+v", hits)
	}

	hits, err = svc.SearchByPriceRange(ctx, 500, 100)
	if err != nil {
		t.Fatalf("inverted range: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("inverted range should be empty: %+v", hits)
	}
}

func TestListDistinctCategories(t *testing.T) {
	svc, db := newSeededCatalog(t, 5)
	ctx := context.Background()
	for _, p := range []*models.Product{
		{Name: "Desk", Category: "Furniture", Price: 120},
		{Name: "Mug", Category: "Accessories", Price: 8},
	} {
		if err := storage.InsertProduct(ctx, db, p, p.CreatedAt); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	got, err := svc.ListDistinctCategories(ctx)
	if err != nil {
		t.Fatalf("categories: %v", err)
	}
	want := []string{"Accessories", "Electronics", "Furniture"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestGetProductAndListByCategory(t *testing.T) {
	svc, _ := newSeededCatalog(t, 5)
	ctx := context.Background()

	all, err := svc.ListProducts(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != len(storage.DemoProducts) {
		t.Fatalf("expected %d products, got %d", len(storage.DemoProducts), len(all))
	}
	p, err := svc.GetProduct(ctx, all[0].ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p.Name != "Smartphone X" || len(p.Features) != 3 || p.Price != 699.99 {
		t.Fatalf("unexpected product: %+v", p)
	}
	if _, err := svc.GetProduct(ctx, 9999); !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}

	electronics, err := svc.ListByCategory(ctx, "Electronics")
	if err != nil {
		t.Fatalf("by category: %v", err)
	}
	if len(electronics) != 5 {
		t.Fatalf("expected 5 electronics, got %d", len(electronics))
	}
	none, err := svc.ListByCategory(ctx, "electronics")
	if err != nil {
		t.Fatalf("by category: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("category match should be exact, got %d", len(none))
	}
}

func TestSearchFilters(t *testing.T) {
	svc, _ := newSeededCatalog(t, 1)
	ctx := context.Background()
	min, max := 200.0, 600.0

	got, err := svc.Search(ctx, Filter{MinPrice: &min, MaxPrice: &max})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected Smart Watch and Gaming Console, got %d", len(got))
	}

	// query searches are not capped by the bot limit
	got, err = svc.Search(ctx, Filter{Query: "display", Category: "Electronics"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("features are not searched, got %d", len(got))
	}
	got, err = svc.Search(ctx, Filter{Query: "smart", MaxPrice: &max})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 1 || got[0].Name != "Smart Watch" {
		t.Fatalf("unexpected result: %+v", got)
	}
	got, err = svc.Search(ctx, Filter{Category: "Toys"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty result, got %d", len(got))
	}
}

func newSeededCatalog(t *testing.T, limit int) (*Service, *sql.DB) {
	t.Helper()
	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {DSN: ":memory:"},
		},
	}
	db, err := storage.Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := storage.SeedProducts(context.Background(), db, storage.DemoProducts); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return NewService(db, nil, limit), db
}
