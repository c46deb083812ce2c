package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/marcus-tan/askleads/internal/domain"
)

const (
	maxHistoryTurns = 10
	maxTableChars   = 24000
	maxContentChars = 16000
)

// Client is the answer-synthesis client backed by an OpenAI-compatible
// chat completions API. It is cheap to construct per request, since
// credentials may arrive in request headers.
type Client struct {
	client openai.Client
	model  string
}

// NewClient creates a new synthesis client
func NewClient(apiKey, baseURL, model string) *Client {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Client{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

func (c *Client) complete(ctx context.Context, system, user string) (string, error) {
	completion, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Model:       c.model,
		Temperature: openai.Float(0),
	})
	if err != nil {
		return "", err
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("llm returned no choices")
	}
	return completion.Choices[0].Message.Content, nil
}

// AnswerFromTableData tries to answer the question purely from the
// enriched table text. A miss is reported as Found=false, not an error.
func (c *Client) AnswerFromTableData(ctx context.Context, question, tableData string, history []domain.Turn) (domain.TableAnswer, error) {
	raw, err := c.complete(ctx, tableAnswerSystemPrompt, tableAnswerPrompt(question, tableData, history))
	if err != nil {
		return domain.TableAnswer{}, err
	}
	return parseTableAnswer(raw), nil
}

// GenerateSearchQuery produces a retrieval-optimized search query for
// the question, using the conversation and table context.
func (c *Client) GenerateSearchQuery(ctx context.Context, question string, chatCtx domain.ChatContext) (string, error) {
	raw, err := c.complete(ctx, searchQuerySystemPrompt, searchQueryPrompt(question, chatCtx))
	if err != nil {
		return "", err
	}
	query := strings.Trim(strings.TrimSpace(raw), `"'`)
	if query == "" {
		// A blank reply would break the search stage; fall back to the
		// question itself.
		query = question
	}
	return query, nil
}

// SelectBestSource picks exactly one result from the candidate set.
// The returned result is always an element of the input.
func (c *Client) SelectBestSource(ctx context.Context, results []domain.SearchResult, question string) (domain.SearchResult, error) {
	if len(results) == 0 {
		return domain.SearchResult{}, fmt.Errorf("no search results to select from")
	}
	if len(results) == 1 {
		return results[0], nil
	}
	raw, err := c.complete(ctx, selectSourceSystemPrompt, selectSourcePrompt(results, question))
	if err != nil {
		return domain.SearchResult{}, err
	}
	return results[parseSourceIndex(raw, len(results))], nil
}

// GenerateConversationalResponse synthesizes the final answer from the
// scraped page content and conversation context.
func (c *Client) GenerateConversationalResponse(ctx context.Context, question, content string, chatCtx domain.ChatContext, sourceURL string) (string, error) {
	raw, err := c.complete(ctx, conversationalSystemPrompt, conversationalPrompt(question, content, chatCtx, sourceURL))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(raw), nil
}

// parseTableAnswer reads the {"found":...,"answer":...} contract.
// Unparseable output is treated as a miss so the pipeline falls through
// to web search instead of failing the run.
func parseTableAnswer(raw string) domain.TableAnswer {
	var answer domain.TableAnswer
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &answer); err != nil {
		return domain.TableAnswer{}
	}
	return answer
}

// parseSourceIndex extracts a 1-based choice from the model reply and
// clamps it to the candidate set, defaulting to the first result.
func parseSourceIndex(raw string, n int) int {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r < '0' || r > '9'
	})
	for _, f := range fields {
		if idx, err := strconv.Atoi(f); err == nil && idx >= 1 && idx <= n {
			return idx - 1
		}
	}
	return 0
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
