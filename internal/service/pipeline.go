package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/marcus-tan/askleads/internal/domain"
)

// searchLimit caps how many candidate sources one run considers.
const searchLimit = 5

const noResultsMessage = "I couldn't find any relevant information. Could you rephrase your question?"

// SynthesisClient is the answer-synthesis contract consumed by the
// pipeline. Implementations may be slow (seconds) and fallible.
type SynthesisClient interface {
	AnswerFromTableData(ctx context.Context, question, tableData string, history []domain.Turn) (domain.TableAnswer, error)
	GenerateSearchQuery(ctx context.Context, question string, chatCtx domain.ChatContext) (string, error)
	SelectBestSource(ctx context.Context, results []domain.SearchResult, question string) (domain.SearchResult, error)
	GenerateConversationalResponse(ctx context.Context, question, content string, chatCtx domain.ChatContext, sourceURL string) (string, error)
}

// SearchClient is the web search/scrape contract consumed by the
// pipeline. Empty search results and empty page content are valid
// outcomes, not errors.
type SearchClient interface {
	Search(ctx context.Context, query string, limit int) ([]domain.SearchResult, error)
	ScrapeURL(ctx context.Context, url string) (domain.ScrapedPage, error)
}

// Pipeline is the answer orchestration pipeline: table-first lookup,
// web search fallback, source ranking, scrape, and synthesis, streamed
// as ordered progress events with cooperative cancellation between
// stages.
type Pipeline struct {
	synth    SynthesisClient
	search   SearchClient
	registry *QueryRegistry
	logger   *zap.Logger
}

// NewPipeline creates a pipeline over the given clients. Clients are
// per-request (credentials may come from headers); the registry is
// process-wide.
func NewPipeline(synth SynthesisClient, search SearchClient, registry *QueryRegistry, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		synth:    synth,
		search:   search,
		registry: registry,
		logger:   logger,
	}
}

// Run executes the pipeline for one question and returns its event
// stream. The channel is closed after exactly one terminal outcome:
// response+complete, a no-result response without complete, or a single
// error event. A cancelled run closes silently with no error event.
// The run's registry handle is released on every terminal path.
func (p *Pipeline) Run(parent context.Context, queryID, question string, chatCtx domain.ChatContext) <-chan domain.ProgressEvent {
	ctx, release := p.registry.Register(parent, queryID)
	ch := make(chan domain.ProgressEvent)

	go func() {
		defer close(ch)
		defer release()

		if err := p.run(ctx, ch, question, chatCtx); err != nil {
			if errors.Is(err, context.Canceled) {
				// The user asked to stop; surfacing an error here would
				// only confuse them.
				p.logger.Info("pipeline cancelled", zap.String("query_id", queryID))
				return
			}
			p.logger.Error("pipeline failed", zap.String("query_id", queryID), zap.Error(err))
			p.send(ctx, ch, domain.ProgressEvent{
				Type:    domain.EventError,
				Message: errorMessage(err),
			})
		}
	}()

	return ch
}

func (p *Pipeline) run(ctx context.Context, ch chan<- domain.ProgressEvent, question string, chatCtx domain.ChatContext) error {
	// Stage 1: table-first lookup. Avoids a costly web search when the
	// answer is already in the enriched data.
	if err := p.status(ctx, ch, "Checking enriched table data...", domain.StepTableCheck); err != nil {
		return err
	}

	if strings.TrimSpace(chatCtx.TableData) != "" {
		p.logger.Debug("checking table data", zap.Int("table_len", len(chatCtx.TableData)))

		tableAnswer, err := p.synth.AnswerFromTableData(ctx, question, chatCtx.TableData, chatCtx.History)
		if err != nil {
			return err
		}
		if tableAnswer.Found {
			p.logger.Info("answer found in table data")
			if err := p.status(ctx, ch, "✓ Found answer in enriched data", domain.StepTableFound); err != nil {
				return err
			}
			if err := p.send(ctx, ch, domain.ProgressEvent{
				Type:    domain.EventResponse,
				Message: tableAnswer.Answer,
				Source:  &domain.SourceRef{Type: domain.SourceTypeTable, Title: "Enriched Data Table"},
			}); err != nil {
				return err
			}
			return p.send(ctx, ch, domain.ProgressEvent{Type: domain.EventComplete})
		}
		p.logger.Debug("answer not found in table, searching web")
	} else {
		p.logger.Debug("no table data available, searching web")
	}

	// Stage 2: query formulation
	if err := p.status(ctx, ch, "Searching the web for more information...", domain.StepWebSearch); err != nil {
		return err
	}

	searchQuery, err := p.synth.GenerateSearchQuery(ctx, question, chatCtx)
	if err != nil {
		return err
	}
	p.logger.Debug("generated search query", zap.String("query", searchQuery))

	if err := p.status(ctx, ch, fmt.Sprintf("Searching for: %q", searchQuery), domain.StepSearch); err != nil {
		return err
	}

	// Stage 3: search execution
	if err := p.status(ctx, ch, "Executing web search...", domain.StepSearching); err != nil {
		return err
	}

	results, err := p.search.Search(ctx, searchQuery, searchLimit)
	if err != nil {
		return err
	}

	if len(results) == 0 {
		// Soft failure: the stream closes after this response with no
		// complete event.
		p.logger.Info("search returned no results", zap.String("query", searchQuery))
		return p.send(ctx, ch, domain.ProgressEvent{
			Type:    domain.EventResponse,
			Message: noResultsMessage,
		})
	}

	refs := make([]domain.SourceRef, len(results))
	for i, r := range results {
		refs[i] = domain.SourceRef{URL: r.URL, Title: r.Title}
	}
	if err := p.send(ctx, ch, domain.ProgressEvent{
		Type:    domain.EventStatus,
		Message: fmt.Sprintf("Found %d sources", len(results)),
		Step:    domain.StepSelect,
		Sources: refs,
	}); err != nil {
		return err
	}

	// Stage 4: source selection
	if err := p.status(ctx, ch, "Evaluating source relevance...", domain.StepEvaluating); err != nil {
		return err
	}

	bestSource, err := p.synth.SelectBestSource(ctx, results, question)
	if err != nil {
		return err
	}
	p.logger.Debug("selected source", zap.String("url", bestSource.URL))

	selectedName := bestSource.Title
	if selectedName == "" {
		selectedName = hostname(bestSource.URL)
	}
	if err := p.send(ctx, ch, domain.ProgressEvent{
		Type:    domain.EventStatus,
		Message: fmt.Sprintf("Selected: %s", selectedName),
		Step:    domain.StepSelected,
		Source:  &domain.SourceRef{URL: bestSource.URL, Title: bestSource.Title},
	}); err != nil {
		return err
	}

	// Stage 5: content retrieval
	if err := p.send(ctx, ch, domain.ProgressEvent{
		Type:    domain.EventStatus,
		Message: fmt.Sprintf("Reading content from %s...", hostname(bestSource.URL)),
		Step:    domain.StepScrape,
		Source:  &domain.SourceRef{URL: bestSource.URL, Title: bestSource.Title},
	}); err != nil {
		return err
	}

	page, err := p.search.ScrapeURL(ctx, bestSource.URL)
	if err != nil {
		return err
	}

	if err := p.status(ctx, ch, "Extracting relevant information...", domain.StepExtracting); err != nil {
		return err
	}

	// Stage 6: synthesis
	if err := p.status(ctx, ch, "Synthesizing answer...", domain.StepAnalyze); err != nil {
		return err
	}

	response, err := p.synth.GenerateConversationalResponse(ctx, question, page.Markdown, chatCtx, bestSource.URL)
	if err != nil {
		return err
	}

	if err := p.send(ctx, ch, domain.ProgressEvent{
		Type:    domain.EventResponse,
		Message: response,
		Source:  &domain.SourceRef{URL: bestSource.URL, Title: bestSource.Title},
	}); err != nil {
		return err
	}
	return p.send(ctx, ch, domain.ProgressEvent{Type: domain.EventComplete})
}

// send delivers one event unless the run has been cancelled. Events are
// sent on an unbuffered channel so the transport observes them in
// emission order, one at a time.
func (p *Pipeline) send(ctx context.Context, ch chan<- domain.ProgressEvent, event domain.ProgressEvent) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case ch <- event:
		return nil
	}
}

func (p *Pipeline) status(ctx context.Context, ch chan<- domain.ProgressEvent, message, step string) error {
	return p.send(ctx, ch, domain.ProgressEvent{
		Type:    domain.EventStatus,
		Message: message,
		Step:    step,
	})
}

func errorMessage(err error) string {
	if err == nil || err.Error() == "" {
		return "An error occurred"
	}
	return err.Error()
}

func hostname(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Hostname() == "" {
		return raw
	}
	return parsed.Hostname()
}
