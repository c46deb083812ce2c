package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/marcus-tan/askleads/internal/config"
	"github.com/marcus-tan/askleads/internal/domain"
	"github.com/marcus-tan/askleads/internal/llm"
	"github.com/marcus-tan/askleads/internal/search"
	"github.com/marcus-tan/askleads/internal/service"
)

// SynthFactory builds a synthesis client from resolved credentials.
// Swappable so tests can run the full stream against fakes.
type SynthFactory func(apiKey, baseURL, model string) service.SynthesisClient

// SearchFactory builds a search client from resolved credentials
type SearchFactory func(apiKey, baseURL string) service.SearchClient

// Handler handles the streaming answer endpoint and its cancellation
// counterpart.
type Handler struct {
	cfg       *config.Config
	chat      *service.ChatService
	logger    *zap.Logger
	newSynth  SynthFactory
	newSearch SearchFactory
}

// NewHandler creates a new chat handler backed by the real provider
// clients.
func NewHandler(cfg *config.Config, chatService *service.ChatService, logger *zap.Logger) *Handler {
	return &Handler{
		cfg:    cfg,
		chat:   chatService,
		logger: logger,
		newSynth: func(apiKey, baseURL, model string) service.SynthesisClient {
			return llm.NewClient(apiKey, baseURL, model)
		},
		newSearch: func(apiKey, baseURL string) service.SearchClient {
			return search.NewClient(apiKey, baseURL)
		},
	}
}

// WithFactories overrides the provider client constructors
func (h *Handler) WithFactories(synthFactory SynthFactory, searchFactory SearchFactory) *Handler {
	h.newSynth = synthFactory
	h.newSearch = searchFactory
	return h
}

// RegisterRoutes registers chat routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("", h.Stream)
	r.DELETE("", h.Cancel)
	r.GET("/history/:session_id", h.History)
}

// Stream answers a question as a server-sent event stream
func (h *Handler) Stream(c *gin.Context) {
	var req domain.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Question is required"})
		return
	}

	// Environment first, header fallback. Base URLs may be overridden
	// per request.
	llmCreds := h.cfg.ResolveLLM(
		c.GetHeader("X-OpenAI-API-Key"),
		c.GetHeader("X-OpenAI-Base-URL"),
	)
	fcCreds := h.cfg.ResolveFirecrawl(
		c.GetHeader("X-Firecrawl-API-Key"),
		c.GetHeader("X-Firecrawl-API-Url"),
	)
	if llmCreds.APIKey == "" || (fcCreds.RequiresAPIKey && fcCreds.APIKey == "") {
		c.JSON(http.StatusInternalServerError, gin.H{"error": domain.ErrMissingCredentials.Error()})
		return
	}

	events, sessionID, err := h.chat.Stream(
		c.Request.Context(),
		&req,
		h.newSynth(llmCreds.APIKey, llmCreds.BaseURL, llmCreds.Model),
		h.newSearch(fcCreds.APIKey, fcCreds.BaseURL),
	)
	if err != nil {
		if errors.Is(err, domain.ErrQuestionRequired) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Question is required"})
			return
		}
		h.logger.Error("failed to start answer stream", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process request"})
		return
	}

	// Set SSE headers
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Session-Id", sessionID)
	c.Writer.Flush()

	clientGone := c.Request.Context().Done()
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			// Each event is flushed immediately so the client observes
			// stage transitions as they happen.
			data, err := json.Marshal(event)
			if err != nil {
				h.logger.Error("failed to marshal event", zap.Error(err))
				continue
			}
			fmt.Fprintf(c.Writer, "data: %s\n\n", data)
			c.Writer.Flush()
		case <-clientGone:
			return
		}
	}
}

// Cancel stops an in-flight answer stream by session identifier
func (h *Handler) Cancel(c *gin.Context) {
	sessionID := c.Query("sessionId")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Session ID required"})
		return
	}

	if h.chat.Cancel(sessionID) {
		c.JSON(http.StatusOK, gin.H{"success": true})
		return
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "Query not found"})
}

// History returns the stored messages for a session
func (h *Handler) History(c *gin.Context) {
	messages, err := h.chat.History(c.Param("session_id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}
