package system

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/marcus-tan/askleads/internal/config"
	"github.com/marcus-tan/askleads/internal/search"
	"github.com/marcus-tan/askleads/internal/service"
)

// SearchFactory builds a search client from resolved credentials
type SearchFactory func(apiKey, baseURL string) service.SearchClient

// Handler serves the environment probe and the scrape passthrough
type Handler struct {
	cfg       *config.Config
	logger    *zap.Logger
	newSearch SearchFactory
}

// NewHandler creates a new system handler
func NewHandler(cfg *config.Config, logger *zap.Logger) *Handler {
	return &Handler{
		cfg:    cfg,
		logger: logger,
		newSearch: func(apiKey, baseURL string) service.SearchClient {
			return search.NewClient(apiKey, baseURL)
		},
	}
}

// WithSearchFactory overrides the search client constructor
func (h *Handler) WithSearchFactory(f SearchFactory) *Handler {
	h.newSearch = f
	return h
}

// CheckEnv reports which provider credentials are configured, without
// revealing any of the values.
func (h *Handler) CheckEnv(c *gin.Context) {
	fc := h.cfg.ResolveFirecrawl("", "")

	c.JSON(http.StatusOK, gin.H{
		"environmentStatus": gin.H{
			"OPENAI_API_KEY":             h.cfg.LLM.APIKey != "",
			"FIRECRAWL_API_KEY":          h.cfg.Firecrawl.APIKey != "",
			"FIRECRAWL_API_URL":          fc.BaseURL,
			"FIRECRAWL_MODE":             fc.Mode,
			"FIRECRAWL_REQUIRES_API_KEY": fc.RequiresAPIKey,
		},
	})
}

type scrapeRequest struct {
	URL string `json:"url" binding:"required"`
}

// Scrape is a single-URL scrape passthrough for the enrichment UI
func (h *Handler) Scrape(c *gin.Context) {
	var req scrapeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid request format. Please check your input and try again.",
		})
		return
	}

	fc := h.cfg.ResolveFirecrawl(
		c.GetHeader("X-Firecrawl-API-Key"),
		c.GetHeader("X-Firecrawl-API-Url"),
	)
	if fc.RequiresAPIKey && fc.APIKey == "" {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "API configuration error. Please provide a Firecrawl API key.",
		})
		return
	}

	page, err := h.newSearch(fc.APIKey, fc.BaseURL).ScrapeURL(c.Request.Context(), req.URL)
	if err != nil {
		h.logger.Error("scrape failed", zap.String("url", req.URL), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "An error occurred while processing your request. Please try again later.",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"url":      page.URL,
			"markdown": page.Markdown,
		},
	})
}
