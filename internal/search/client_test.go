package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/search", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "acme corp", body["query"])
		assert.Equal(t, float64(5), body["limit"])

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data": []map[string]any{
				{"url": "https://acme.example.com", "title": "Acme", "description": "Anvil maker"},
				{"url": "", "title": "no url, dropped"},
				{"url": "https://example.com/b", "title": "B"},
			},
		})
	}))
	defer srv.Close()

	client := NewClient("test-key", srv.URL)
	results, err := client.Search(context.Background(), "acme corp", 5)
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, "https://acme.example.com", results[0].URL)
	assert.Equal(t, "Acme", results[0].Title)
	assert.Equal(t, "Anvil maker", results[0].Snippet)
}

func TestSearchEmptyIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"success": true, "data": []any{}})
	}))
	defer srv.Close()

	client := NewClient("test-key", srv.URL)
	results, err := client.Search(context.Background(), "nothing", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"success":false,"error":"boom"}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient("test-key", srv.URL)
	_, err := client.Search(context.Background(), "acme", 5)
	assert.Error(t, err)
}

func TestScrapeURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/scrape", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "https://acme.example.com", body["url"])

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data":    map[string]any{"markdown": "# Acme\nAnvils."},
		})
	}))
	defer srv.Close()

	client := NewClient("test-key", srv.URL)
	page, err := client.ScrapeURL(context.Background(), "https://acme.example.com")
	require.NoError(t, err)
	assert.Equal(t, "https://acme.example.com", page.URL)
	assert.Equal(t, "# Acme\nAnvils.", page.Markdown)
}

func TestScrapeURLMissingContentIsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"success": true, "data": map[string]any{}})
	}))
	defer srv.Close()

	client := NewClient("test-key", srv.URL)
	page, err := client.ScrapeURL(context.Background(), "https://unscrapable.example.com")
	require.NoError(t, err)
	assert.Empty(t, page.Markdown)
}
