package storage

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"shopchat/internal/config"
	"shopchat/internal/models"
)

func openMemory(t *testing.T) *sql.DB {
	t.Helper()
	cfg := &config.Config{Databases: map[string]config.DatabaseConfig{"sqlite3": {DSN: ":memory:"}}}
	db, err := Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	cfg := &config.Config{Databases: map[string]config.DatabaseConfig{"postgres": {DSN: "x"}}}
	if _, err := Open("postgres", cfg); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
	if _, err := Open("sqlite3", &config.Config{}); err == nil {
		t.Fatalf("expected missing config error")
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := openMemory(t)
	if err := Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestSeedProductsReplacesCatalog(t *testing.T) {
	db := openMemory(t)
	ctx := context.Background()

	extra := []models.Product{{Name: "Old Lamp", Price: 15, Category: "Home"}}
	if err := SeedProducts(ctx, db, extra); err != nil {
		t.Fatalf("seed extra: %v", err)
	}
	if err := SeedProducts(ctx, db, DemoProducts); err != nil {
		t.Fatalf("seed demo: %v", err)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM products`).Scan(&count); err != nil {
		t.Fatalf("count products: %v", err)
	}
	if count != len(DemoProducts) {
		t.Fatalf("expected %d products, got %d", len(DemoProducts), count)
	}
	var features string
	if err := db.QueryRow(`SELECT features FROM products WHERE name = ?`, "Smart Watch").Scan(&features); err != nil {
		t.Fatalf("load features: %v", err)
	}
	if features != `["Heart Rate Monitor","GPS","Water Resistant"]` {
		t.Fatalf("unexpected features encoding: %s", features)
	}
	if DemoProducts[0].ID != 0 {
		t.Fatalf("seeding must not mutate the shared demo list")
	}
}

func TestInsertProductFillsID(t *testing.T) {
	db := openMemory(t)
	p := &models.Product{Name: "Desk", Price: 120, Category: "Office"}
	if err := InsertProduct(context.Background(), db, p, time.Now().UTC()); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if p.ID == 0 || p.CreatedAt.IsZero() {
		t.Fatalf("id or created_at not set: %+v", p)
	}
}

func TestSqliteDSNEnablesForeignKeys(t *testing.T) {
	cases := map[string]string{
		"shop.db":                           "shop.db?_foreign_keys=on",
		":memory:":                          ":memory:?_foreign_keys=on",
		"file:shop.db?cache=shared":         "file:shop.db?cache=shared&_foreign_keys=on",
		"shop.db?_fk=1":                     "shop.db?_fk=1",
		"shop.db?_foreign_keys=off&mode=rw": "shop.db?_foreign_keys=off&mode=rw",
	}
	for in, want := range cases {
		if got := sqliteDSN(in); got != want {
			t.Fatalf("sqliteDSN(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestForeignKeysOnEveryFileConnection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shop.db")
	cfg := &config.Config{Databases: map[string]config.DatabaseConfig{"sqlite3": {DSN: path}}}
	db, err := Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	first, err := db.Conn(ctx)
	if err != nil {
		t.Fatalf("first conn: %v", err)
	}
	defer first.Close()
	second, err := db.Conn(ctx)
	if err != nil {
		t.Fatalf("second conn: %v", err)
	}
	defer second.Close()

	for i, conn := range []*sql.Conn{first, second} {
		var enabled int
		if err := conn.QueryRowContext(ctx, `PRAGMA foreign_keys`).Scan(&enabled); err != nil {
			t.Fatalf("conn %d pragma: %v", i, err)
		}
		if enabled != 1 {
			t.Fatalf("foreign keys off on connection %d", i)
		}
	}
}
