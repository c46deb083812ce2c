package config

import (
	"net/url"
	"regexp"
	"strings"
)

// DefaultFirecrawlURL is the managed Firecrawl cloud endpoint.
const DefaultFirecrawlURL = "https://api.firecrawl.dev"

// FirecrawlMode distinguishes the managed service from self-hosted
// deployments, which do not require an API key.
type FirecrawlMode string

const (
	ModeSaaS       FirecrawlMode = "saas"
	ModeSelfHosted FirecrawlMode = "self_hosted"
)

// ResolvedFirecrawl is the effective search provider configuration for
// one request.
type ResolvedFirecrawl struct {
	APIKey         string
	BaseURL        string
	Mode           FirecrawlMode
	RequiresAPIKey bool
}

var schemeRe = regexp.MustCompile(`(?i)^https?://`)

// NormalizeBaseURL trims the URL, prepends https:// when no scheme is
// given, and strips trailing slashes. Empty input stays empty.
func NormalizeBaseURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	if !schemeRe.MatchString(trimmed) {
		trimmed = "https://" + trimmed
	}
	return strings.TrimRight(trimmed, "/")
}

func isCloudURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return parsed.Hostname() == "api.firecrawl.dev"
}

// ResolveFirecrawl resolves the search provider credentials for one
// request. Configured values win; header overrides fill the gaps
// (environment first, header fallback). Only the managed cloud service
// requires an API key.
func (c *Config) ResolveFirecrawl(headerKey, headerURL string) ResolvedFirecrawl {
	baseURL := NormalizeBaseURL(c.Firecrawl.BaseURL)
	if baseURL == "" {
		baseURL = NormalizeBaseURL(headerURL)
	}
	if baseURL == "" {
		baseURL = DefaultFirecrawlURL
	}

	mode := ModeSelfHosted
	if isCloudURL(baseURL) {
		mode = ModeSaaS
	}

	apiKey := strings.TrimSpace(c.Firecrawl.APIKey)
	if apiKey == "" {
		apiKey = strings.TrimSpace(headerKey)
	}

	return ResolvedFirecrawl{
		APIKey:         apiKey,
		BaseURL:        baseURL,
		Mode:           mode,
		RequiresAPIKey: mode == ModeSaaS,
	}
}

// ResolvedLLM is the effective LLM provider configuration for one
// request.
type ResolvedLLM struct {
	APIKey  string
	BaseURL string
	Model   string
}

// ResolveLLM resolves LLM credentials for one request, environment
// first with per-request header fallback.
func (c *Config) ResolveLLM(headerKey, headerURL string) ResolvedLLM {
	apiKey := strings.TrimSpace(c.LLM.APIKey)
	if apiKey == "" {
		apiKey = strings.TrimSpace(headerKey)
	}
	baseURL := strings.TrimSpace(c.LLM.BaseURL)
	if baseURL == "" {
		baseURL = strings.TrimSpace(headerURL)
	}
	return ResolvedLLM{
		APIKey:  apiKey,
		BaseURL: baseURL,
		Model:   c.LLM.Model,
	}
}
