// Package bot implements the rule-based support bot. A turn is classified from
// the raw user text and the single intent remembered from the previous bot
// turn; the result carries the reply and the intent to remember next.
package bot

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"shopchat/internal/config"
	"shopchat/internal/models"
)

// Catalog is the product lookup the bot answers from.
type Catalog interface {
	SearchByText(ctx context.Context, term string) ([]models.ProductSummary, error)
	SearchByPriceRange(ctx context.Context, min, max int) ([]models.ProductSummary, error)
	ListDistinctCategories(ctx context.Context) ([]string, error)
}

// Rule names the branch of the cascade that produced a reply.
type Rule string

const (
	RuleConfirmPriceFilter Rule = "confirm_price_filter"
	RulePriceRange         Rule = "price_range"
	RulePriceOffer         Rule = "price_offer"
	RuleSearch             Rule = "search"
	RuleCategories         Rule = "categories"
	RuleHelp               Rule = "help"
)

// Reply is the outcome of one classification.
type Reply struct {
	Text string
	Next models.Intent
	Rule Rule
}

// turn is the normalized input every rule sees.
type turn struct {
	raw   string
	lower string
	prior models.Intent
}

// rule handles a turn when it applies. Returning ok=false passes the turn to
// the next rule.
type rule struct {
	name   Rule
	handle func(ctx context.Context, t turn) (reply Reply, ok bool, err error)
}

// Classifier maps (message, prior intent) to a reply. It keeps no state
// between calls; the caller threads the intent through.
type Classifier struct {
	catalog   Catalog
	priceLow  int
	priceHigh int
	limit     int
	rules     []rule
}

type Option func(*Classifier)

// WithPriceBand sets the range quoted when the bot offers price filtering.
func WithPriceBand(low, high int) Option {
	return func(c *Classifier) {
		if low >= 0 && high > low {
			c.priceLow, c.priceHigh = low, high
		}
	}
}

// WithResultLimit caps how many products a reply lists.
func WithResultLimit(n int) Option {
	return func(c *Classifier) {
		if n > 0 {
			c.limit = n
		}
	}
}

func NewClassifier(catalog Catalog, opts ...Option) *Classifier {
	c := &Classifier{
		catalog:   catalog,
		priceLow:  config.DefaultPriceLow,
		priceHigh: config.DefaultPriceHigh,
		limit:     config.DefaultResultLimit,
	}
	for _, opt := range opts {
		opt(c)
	}
	// First match wins. Price must be checked before search so that
	// "find something at this price" is handled as a price question.
	c.rules = []rule{
		{RuleConfirmPriceFilter, c.confirmPriceFilter},
		{RulePriceRange, c.priceRange},
		{RulePriceOffer, c.priceOffer},
		{RuleSearch, c.search},
		{RuleCategories, c.categories},
		{RuleHelp, c.help},
	}
	return c
}

// Classify runs the cascade. Errors only come from the catalog.
func (c *Classifier) Classify(ctx context.Context, message string, prior models.Intent) (Reply, error) {
	t := turn{
		raw:   message,
		lower: strings.ToLower(message),
		prior: prior,
	}
	for _, r := range c.rules {
		reply, ok, err := r.handle(ctx, t)
		if err != nil {
			return Reply{}, fmt.Errorf("%s: %w", r.name, err)
		}
		if ok {
			reply.Rule = r.name
			return reply, nil
		}
	}
	// unreachable: help always matches
	return c.helpReply(), nil
}

const (
	askRangeText  = `Sure! Please tell me your price range, for example: "price from 100 to 500".`
	noSearchText  = "I couldn't find any products matching your search. Could you try different keywords?"
	helpText      = "I can help you search for products, browse categories, or check prices. What would you like to do?"
	noCategories  = "We don't have any product categories available right now."
	categoriesFmt = "We have the following categories available:\n%s"
)

var priceRangePattern = regexp.MustCompile(`price from (\d+) to (\d+)`)

func (c *Classifier) confirmPriceFilter(_ context.Context, t turn) (Reply, bool, error) {
	if t.prior != models.IntentPriceInquiry || strings.TrimSpace(t.lower) != "yes" {
		return Reply{}, false, nil
	}
	return Reply{Text: askRangeText, Next: models.IntentAwaitingPriceRange}, true, nil
}

func (c *Classifier) priceRange(ctx context.Context, t turn) (Reply, bool, error) {
	if t.prior != models.IntentAwaitingPriceRange {
		return Reply{}, false, nil
	}
	if !strings.Contains(t.lower, "price from") || !strings.Contains(t.lower, "to") {
		return Reply{}, false, nil
	}
	min, max, ok := extractPriceRange(t.lower)
	if !ok {
		return Reply{}, false, nil
	}
	products, err := c.catalog.SearchByPriceRange(ctx, min, max)
	if err != nil {
		return Reply{}, false, err
	}
	products = c.capped(products)
	if len(products) == 0 {
		return Reply{
			Text: fmt.Sprintf("I couldn't find any products between $%d and $%d. Would you like to try a different range?", min, max),
		}, true, nil
	}
	header := fmt.Sprintf("I found %d products between $%d and $%d:", len(products), min, max)
	return Reply{Text: formatProducts(header, products)}, true, nil
}

func (c *Classifier) priceOffer(_ context.Context, t turn) (Reply, bool, error) {
	if !strings.Contains(t.lower, "price") && !strings.Contains(t.lower, "cost") {
		return Reply{}, false, nil
	}
	return Reply{
		Text: fmt.Sprintf("Our products range from $%d to $%d. Would you like to see products in a specific price range?", c.priceLow, c.priceHigh),
		Next: models.IntentPriceInquiry,
	}, true, nil
}

func (c *Classifier) search(ctx context.Context, t turn) (Reply, bool, error) {
	if !strings.Contains(t.lower, "search") && !strings.Contains(t.lower, "find") {
		return Reply{}, false, nil
	}
	term := searchTerm(t.raw)
	var products []models.ProductSummary
	if term != "" {
		var err error
		products, err = c.catalog.SearchByText(ctx, term)
		if err != nil {
			return Reply{}, false, err
		}
		products = c.capped(products)
	}
	if len(products) == 0 {
		return Reply{Text: noSearchText}, true, nil
	}
	header := fmt.Sprintf("I found %d products matching your search:", len(products))
	return Reply{Text: formatProducts(header, products)}, true, nil
}

func (c *Classifier) categories(ctx context.Context, t turn) (Reply, bool, error) {
	if !strings.Contains(t.lower, "category") && !strings.Contains(t.lower, "categories") {
		return Reply{}, false, nil
	}
	names, err := c.catalog.ListDistinctCategories(ctx)
	if err != nil {
		return Reply{}, false, err
	}
	if len(names) == 0 {
		return Reply{Text: noCategories}, true, nil
	}
	return Reply{Text: fmt.Sprintf(categoriesFmt, strings.Join(names, ", "))}, true, nil
}

func (c *Classifier) help(_ context.Context, _ turn) (Reply, bool, error) {
	return c.helpReply(), true, nil
}

func (c *Classifier) helpReply() Reply {
	return Reply{Text: helpText, Rule: RuleHelp}
}

func (c *Classifier) capped(products []models.ProductSummary) []models.ProductSummary {
	if len(products) > c.limit {
		return products[:c.limit]
	}
	return products
}

// extractPriceRange reads the bounds of "price from <min> to <max>".
func extractPriceRange(lower string) (int, int, bool) {
	m := priceRangePattern.FindStringSubmatch(lower)
	if m == nil {
		return 0, 0, false
	}
	min, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, 0, false
	}
	max, err := strconv.Atoi(m[2])
	if err != nil {
		return 0, 0, false
	}
	return min, max, true
}

// searchTerm drops the first word of the message, keeping the user's casing.
func searchTerm(raw string) string {
	fields := strings.Fields(raw)
	if len(fields) < 2 {
		return ""
	}
	return strings.Join(fields[1:], " ")
}

func formatProducts(header string, products []models.ProductSummary) string {
	var b strings.Builder
	b.WriteString(header)
	for _, p := range products {
		b.WriteString("\n- ")
		b.WriteString(p.Name)
		b.WriteString(" ($")
		b.WriteString(FormatPrice(p.Price))
		b.WriteString(")")
	}
	return b.String()
}

// FormatPrice renders a price with no trailing zeros, e.g. 100 or 699.99.
func FormatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}
