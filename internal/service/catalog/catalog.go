package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"shopchat/internal/config"
	"shopchat/internal/models"
	"shopchat/internal/redis"
)

const (
	categoriesCacheKey = "catalog:categories"
	categoriesCacheTTL = 5 * time.Minute
)

var ErrProductNotFound = errors.New("product not found")

// Service answers product lookups against the products table.
type Service struct {
	db    *sql.DB
	cache *redis.Client
	limit int
}

// NewService builds a catalog. cache may be nil; limit caps bot lookups.
func NewService(db *sql.DB, cache *redis.Client, limit int) *Service {
	if limit <= 0 {
		limit = config.DefaultResultLimit
	}
	return &Service{db: db, cache: cache, limit: limit}
}

// Filter narrows Search. Zero fields are ignored.
type Filter struct {
	Query    string
	Category string
	MinPrice *float64
	MaxPrice *float64
}

type scoredProduct struct {
	product *models.Product
	score   int
}

// SearchByText runs a case-insensitive keyword search over name, description
// and category. Products matching more distinct terms rank first.
func (s *Service) SearchByText(ctx context.Context, term string) ([]models.ProductSummary, error) {
	products, err := s.textSearch(ctx, term, "", nil, nil)
	if err != nil {
		return nil, err
	}
	return s.summaries(products), nil
}

// SearchByPriceRange returns products priced within [min, max].
func (s *Service) SearchByPriceRange(ctx context.Context, min, max int) ([]models.ProductSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, price FROM products WHERE price >= ? AND price <= ? ORDER BY id ASC LIMIT ?`,
		min, max, s.limit,
	)
	if err != nil {
		return nil, fmt.Errorf("price range query: %w", err)
	}
	defer rows.Close()

	var out []models.ProductSummary
	for rows.Next() {
		var (
			id int64
			ps models.ProductSummary
		)
		if err := rows.Scan(&id, &ps.Name, &ps.Price); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, ps)
	}
	return out, rows.Err()
}

// ListDistinctCategories returns the sorted set of category names.
func (s *Service) ListDistinctCategories(ctx context.Context) ([]string, error) {
	var cached []string
	if err := s.cache.GetJSON(ctx, categoriesCacheKey, &cached); err == nil {
		return cached, nil
	} else if !errors.Is(err, redis.ErrCacheMiss) {
		logrus.WithError(err).Warn("read cached categories")
	}

	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT category FROM products ORDER BY category ASC`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	categories := make([]string, 0)
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if s.cache.Enabled() {
		if err := s.cache.SetJSON(ctx, categoriesCacheKey, categories, categoriesCacheTTL); err != nil {
			logrus.WithError(err).Warn("cache categories")
		}
	}
	return categories, nil
}

// InvalidateCategories drops the cached category list after catalog writes.
func (s *Service) InvalidateCategories(ctx context.Context) {
	if err := s.cache.Del(ctx, categoriesCacheKey); err != nil {
		logrus.WithError(err).Warn("invalidate cached categories")
	}
}

// ListProducts returns every product in insertion order.
func (s *Service) ListProducts(ctx context.Context) ([]*models.Product, error) {
	return s.queryProducts(ctx, `SELECT `+productColumns+` FROM products ORDER BY id ASC`)
}

// ListByCategory returns products whose category equals category exactly.
func (s *Service) ListByCategory(ctx context.Context, category string) ([]*models.Product, error) {
	return s.queryProducts(ctx, `SELECT `+productColumns+` FROM products WHERE category = ? ORDER BY id ASC`, category)
}

// GetProduct loads one product by id.
func (s *Service) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	if id <= 0 {
		return nil, ErrProductNotFound
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ?`, id)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

// Search applies every non-empty field of f. A query term is matched the same
// way SearchByText matches, without the result cap.
func (s *Service) Search(ctx context.Context, f Filter) ([]*models.Product, error) {
	if strings.TrimSpace(f.Query) != "" {
		scored, err := s.textSearch(ctx, f.Query, f.Category, f.MinPrice, f.MaxPrice)
		if err != nil {
			return nil, err
		}
		out := make([]*models.Product, 0, len(scored))
		for _, sp := range scored {
			out = append(out, sp.product)
		}
		return out, nil
	}
	where, args := filterClause(f.Category, f.MinPrice, f.MaxPrice)
	return s.queryProducts(ctx, `SELECT `+productColumns+` FROM products`+where+` ORDER BY id ASC`, args...)
}

func (s *Service) textSearch(ctx context.Context, query, category string, minPrice, maxPrice *float64) ([]scoredProduct, error) {
	terms := searchTerms(query)
	if len(terms) == 0 {
		return nil, nil
	}
	var (
		conds []string
		args  []any
	)
	for _, t := range terms {
		conds = append(conds, `(INSTR(LOWER(name), ?) > 0 OR INSTR(LOWER(description), ?) > 0 OR INSTR(LOWER(category), ?) > 0)`)
		args = append(args, t, t, t)
	}
	where, filterArgs := filterClause(category, minPrice, maxPrice)
	stmt := `SELECT ` + productColumns + ` FROM products`
	if where == "" {
		stmt += ` WHERE (` + strings.Join(conds, " OR ") + `)`
	} else {
		stmt += where + ` AND (` + strings.Join(conds, " OR ") + `)`
	}
	stmt += ` ORDER BY id ASC`
	products, err := s.queryProducts(ctx, stmt, append(filterArgs, args...)...)
	if err != nil {
		return nil, fmt.Errorf("text search: %w", err)
	}

	scored := make([]scoredProduct, 0, len(products))
	for _, p := range products {
		haystack := strings.ToLower(p.Name + " " + p.Description + " " + p.Category)
		score := 0
		for _, t := range terms {
			if strings.Contains(haystack, t) {
				score++
			}
		}
		scored = append(scored, scoredProduct{product: p, score: score})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})
	return scored, nil
}

func (s *Service) summaries(scored []scoredProduct) []models.ProductSummary {
	n := len(scored)
	if n > s.limit {
		n = s.limit
	}
	out := make([]models.ProductSummary, 0, n)
	for _, sp := range scored[:n] {
		out = append(out, sp.product.Summary())
	}
	return out
}

func searchTerms(query string) []string {
	seen := make(map[string]struct{})
	var terms []string
	for _, f := range strings.Fields(strings.ToLower(query)) {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		terms = append(terms, f)
	}
	return terms
}

func filterClause(category string, minPrice, maxPrice *float64) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if category = strings.TrimSpace(category); category != "" {
		conds = append(conds, `category = ?`)
		args = append(args, category)
	}
	if minPrice != nil {
		conds = append(conds, `price >= ?`)
		args = append(args, *minPrice)
	}
	if maxPrice != nil {
		conds = append(conds, `price <= ?`)
		args = append(args, *maxPrice)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return ` WHERE ` + strings.Join(conds, " AND "), args
}

const productColumns = `id, name, description, price, category, image_url, stock, features, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*models.Product, error) {
	var (
		p        models.Product
		features string
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Category, &p.ImageURL, &p.Stock, &features, &p.CreatedAt); err != nil {
		return nil, err
	}
	if features != "" {
		if err := json.Unmarshal([]byte(features), &p.Features); err != nil {
			return nil, fmt.Errorf("decode features of product %d: %w", p.ID, err)
		}
	}
	if p.Features == nil {
		p.Features = []string{}
	}
	return &p, nil
}

func (s *Service) queryProducts(ctx context.Context, query string, args ...any) ([]*models.Product, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	products := make([]*models.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}
