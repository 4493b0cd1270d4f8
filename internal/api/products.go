package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"shopchat/internal/logging"
	"shopchat/internal/service/catalog"
)

func (h *Handler) listProducts(c *gin.Context) {
	products, err := h.catalog.ListProducts(c.Request.Context())
	if err != nil {
		logging.FromContext(c).WithError(err).Error("list products")
		c.JSON(http.StatusInternalServerError, gin.H{"error": genericTurnError})
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

func (h *Handler) searchProducts(c *gin.Context) {
	filter := catalog.Filter{
		Query:    strings.TrimSpace(c.Query("query")),
		Category: strings.TrimSpace(c.Query("category")),
	}
	var ok bool
	if filter.MinPrice, ok = priceQuery(c, "min_price"); !ok {
		return
	}
	if filter.MaxPrice, ok = priceQuery(c, "max_price"); !ok {
		return
	}
	products, err := h.catalog.Search(c.Request.Context(), filter)
	if err != nil {
		logging.FromContext(c).WithError(err).Error("search products")
		c.JSON(http.StatusInternalServerError, gin.H{"error": genericTurnError})
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

func (h *Handler) getProduct(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("product_id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product id"})
		return
	}
	product, err := h.catalog.GetProduct(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
			return
		}
		logging.FromContext(c).WithError(err).Error("get product")
		c.JSON(http.StatusInternalServerError, gin.H{"error": genericTurnError})
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) listCategoryProducts(c *gin.Context) {
	products, err := h.catalog.ListByCategory(c.Request.Context(), c.Param("category"))
	if err != nil {
		logging.FromContext(c).WithError(err).Error("list category products")
		c.JSON(http.StatusInternalServerError, gin.H{"error": genericTurnError})
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

// priceQuery parses an optional non-negative price parameter.
func priceQuery(c *gin.Context, name string) (*float64, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, true
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return nil, false
	}
	return &v, true
}
