package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/marcus-tan/askleads/internal/domain"
)

type fakeSynth struct {
	answerFn  func(ctx context.Context, question, tableData string, history []domain.Turn) (domain.TableAnswer, error)
	queryFn   func(ctx context.Context, question string, chatCtx domain.ChatContext) (string, error)
	selectFn  func(ctx context.Context, results []domain.SearchResult, question string) (domain.SearchResult, error)
	respondFn func(ctx context.Context, question, content string, chatCtx domain.ChatContext, sourceURL string) (string, error)

	selectCalls  atomic.Int32
	respondCalls atomic.Int32
}

func (f *fakeSynth) AnswerFromTableData(ctx context.Context, question, tableData string, history []domain.Turn) (domain.TableAnswer, error) {
	if f.answerFn == nil {
		return domain.TableAnswer{}, nil
	}
	return f.answerFn(ctx, question, tableData, history)
}

func (f *fakeSynth) GenerateSearchQuery(ctx context.Context, question string, chatCtx domain.ChatContext) (string, error) {
	if f.queryFn == nil {
		return question, nil
	}
	return f.queryFn(ctx, question, chatCtx)
}

func (f *fakeSynth) SelectBestSource(ctx context.Context, results []domain.SearchResult, question string) (domain.SearchResult, error) {
	f.selectCalls.Add(1)
	if f.selectFn == nil {
		return results[0], nil
	}
	return f.selectFn(ctx, results, question)
}

func (f *fakeSynth) GenerateConversationalResponse(ctx context.Context, question, content string, chatCtx domain.ChatContext, sourceURL string) (string, error) {
	f.respondCalls.Add(1)
	if f.respondFn == nil {
		return "synthesized answer", nil
	}
	return f.respondFn(ctx, question, content, chatCtx, sourceURL)
}

type fakeSearch struct {
	searchFn func(ctx context.Context, query string, limit int) ([]domain.SearchResult, error)
	scrapeFn func(ctx context.Context, url string) (domain.ScrapedPage, error)

	searchCalls atomic.Int32
	scrapeCalls atomic.Int32
}

func (f *fakeSearch) Search(ctx context.Context, query string, limit int) ([]domain.SearchResult, error) {
	f.searchCalls.Add(1)
	if f.searchFn == nil {
		return nil, nil
	}
	return f.searchFn(ctx, query, limit)
}

func (f *fakeSearch) ScrapeURL(ctx context.Context, url string) (domain.ScrapedPage, error) {
	f.scrapeCalls.Add(1)
	if f.scrapeFn == nil {
		return domain.ScrapedPage{URL: url}, nil
	}
	return f.scrapeFn(ctx, url)
}

func collect(t *testing.T, ch <-chan domain.ProgressEvent) []domain.ProgressEvent {
	t.Helper()
	var events []domain.ProgressEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case event, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, event)
		case <-timeout:
			t.Fatalf("timed out waiting for events, got %d so far", len(events))
		}
	}
}

func steps(events []domain.ProgressEvent) []string {
	var out []string
	for _, e := range events {
		if e.Type == domain.EventStatus {
			out = append(out, e.Step)
		} else {
			out = append(out, e.Type)
		}
	}
	return out
}

func TestPipelineTableHit(t *testing.T) {
	synth := &fakeSynth{
		answerFn: func(ctx context.Context, question, tableData string, history []domain.Turn) (domain.TableAnswer, error) {
			return domain.TableAnswer{Found: true, Answer: "$5M"}, nil
		},
	}
	searcher := &fakeSearch{}
	registry := NewQueryRegistry()
	p := NewPipeline(synth, searcher, registry, zap.NewNop())

	events := collect(t, p.Run(context.Background(), "q1", "What is X's revenue?", domain.ChatContext{
		TableData: "company,revenue\nX,$5M",
	}))

	assert.Equal(t, []string{
		domain.StepTableCheck,
		domain.StepTableFound,
		domain.EventResponse,
		domain.EventComplete,
	}, steps(events))

	response := events[2]
	assert.Equal(t, "$5M", response.Message)
	require.NotNil(t, response.Source)
	assert.Equal(t, domain.SourceTypeTable, response.Source.Type)

	// Zero calls to the search client when the table resolves the question
	assert.Zero(t, searcher.searchCalls.Load())
	assert.Zero(t, searcher.scrapeCalls.Load())
	assert.Zero(t, synth.selectCalls.Load())
	assert.Equal(t, 0, registry.Len())
}

func TestPipelineWebPath(t *testing.T) {
	results := []domain.SearchResult{
		{URL: "https://example.com/a", Title: "Page A"},
		{URL: "https://acme.example.com/about", Title: "About Acme"},
	}

	synth := &fakeSynth{
		queryFn: func(ctx context.Context, question string, chatCtx domain.ChatContext) (string, error) {
			return "acme corp company overview", nil
		},
		selectFn: func(ctx context.Context, candidates []domain.SearchResult, question string) (domain.SearchResult, error) {
			return candidates[1], nil
		},
		respondFn: func(ctx context.Context, question, content string, chatCtx domain.ChatContext, sourceURL string) (string, error) {
			assert.Equal(t, "scraped markdown", content)
			assert.Equal(t, "https://acme.example.com/about", sourceURL)
			return "Acme Corp makes anvils.", nil
		},
	}
	searcher := &fakeSearch{
		searchFn: func(ctx context.Context, query string, limit int) ([]domain.SearchResult, error) {
			assert.Equal(t, searchLimit, limit)
			return results, nil
		},
		scrapeFn: func(ctx context.Context, url string) (domain.ScrapedPage, error) {
			// Scrape must target exactly the selected source
			assert.Equal(t, "https://acme.example.com/about", url)
			return domain.ScrapedPage{URL: url, Markdown: "scraped markdown"}, nil
		},
	}
	registry := NewQueryRegistry()
	p := NewPipeline(synth, searcher, registry, zap.NewNop())

	events := collect(t, p.Run(context.Background(), "q1", "What does Acme Corp do?", domain.ChatContext{}))

	assert.Equal(t, []string{
		domain.StepTableCheck,
		domain.StepWebSearch,
		domain.StepSearch,
		domain.StepSearching,
		domain.StepSelect,
		domain.StepEvaluating,
		domain.StepSelected,
		domain.StepScrape,
		domain.StepExtracting,
		domain.StepAnalyze,
		domain.EventResponse,
		domain.EventComplete,
	}, steps(events))

	// The select status lists every discovered source
	var selectEvent domain.ProgressEvent
	for _, e := range events {
		if e.Step == domain.StepSelect {
			selectEvent = e
		}
	}
	require.Len(t, selectEvent.Sources, 2)

	response := events[len(events)-2]
	assert.Equal(t, "Acme Corp makes anvils.", response.Message)
	require.NotNil(t, response.Source)
	assert.Equal(t, "https://acme.example.com/about", response.Source.URL)
	assert.Equal(t, "About Acme", response.Source.Title)
	assert.Equal(t, 0, registry.Len())
}

func TestPipelineEmptyTableSkipsLookup(t *testing.T) {
	answered := false
	synth := &fakeSynth{
		answerFn: func(ctx context.Context, question, tableData string, history []domain.Turn) (domain.TableAnswer, error) {
			answered = true
			return domain.TableAnswer{}, nil
		},
	}
	searcher := &fakeSearch{
		searchFn: func(ctx context.Context, query string, limit int) ([]domain.SearchResult, error) {
			return []domain.SearchResult{{URL: "https://example.com", Title: "Example"}}, nil
		},
		scrapeFn: func(ctx context.Context, url string) (domain.ScrapedPage, error) {
			return domain.ScrapedPage{URL: url, Markdown: "content"}, nil
		},
	}
	p := NewPipeline(synth, searcher, NewQueryRegistry(), zap.NewNop())

	events := collect(t, p.Run(context.Background(), "q1", "What does Acme Corp do?", domain.ChatContext{
		TableData: "   ",
	}))

	assert.False(t, answered, "table lookup must be skipped for blank table data")
	assert.Equal(t, domain.EventComplete, events[len(events)-1].Type)
}

func TestPipelineNoSearchResults(t *testing.T) {
	synth := &fakeSynth{}
	searcher := &fakeSearch{
		searchFn: func(ctx context.Context, query string, limit int) ([]domain.SearchResult, error) {
			return []domain.SearchResult{}, nil
		},
	}
	registry := NewQueryRegistry()
	p := NewPipeline(synth, searcher, registry, zap.NewNop())

	events := collect(t, p.Run(context.Background(), "q1", "Who?", domain.ChatContext{}))

	assert.Equal(t, []string{
		domain.StepTableCheck,
		domain.StepWebSearch,
		domain.StepSearch,
		domain.StepSearching,
		domain.EventResponse,
	}, steps(events))

	// Soft failure: fallback response, stream closed without complete
	last := events[len(events)-1]
	assert.Equal(t, noResultsMessage, last.Message)
	assert.Zero(t, synth.selectCalls.Load())
	assert.Zero(t, searcher.scrapeCalls.Load())
	assert.Zero(t, synth.respondCalls.Load())
	assert.Equal(t, 0, registry.Len())
}

func TestPipelineClientErrorEmitsSingleError(t *testing.T) {
	synth := &fakeSynth{
		queryFn: func(ctx context.Context, question string, chatCtx domain.ChatContext) (string, error) {
			return "", errors.New("provider unavailable")
		},
	}
	registry := NewQueryRegistry()
	p := NewPipeline(synth, &fakeSearch{}, registry, zap.NewNop())

	events := collect(t, p.Run(context.Background(), "q1", "Who?", domain.ChatContext{}))

	last := events[len(events)-1]
	assert.Equal(t, domain.EventError, last.Type)
	assert.Equal(t, "provider unavailable", last.Message)

	// Exactly one terminal signal: no complete alongside the error
	for _, e := range events[:len(events)-1] {
		assert.NotEqual(t, domain.EventError, e.Type)
		assert.NotEqual(t, domain.EventComplete, e.Type)
	}
	assert.Equal(t, 0, registry.Len())
}

func TestPipelineFollowUpOnSameIDSurvivesPriorWinddown(t *testing.T) {
	var calls atomic.Int32
	firstSearching := make(chan struct{})
	firstDone := make(chan struct{})
	searcher := &fakeSearch{
		searchFn: func(ctx context.Context, query string, limit int) ([]domain.SearchResult, error) {
			if calls.Add(1) == 1 {
				close(firstSearching)
				<-ctx.Done()
				return nil, ctx.Err()
			}
			// Let the displaced run finish winding down, stale release
			// included, before the follow-up proceeds
			<-firstDone
			return []domain.SearchResult{{URL: "https://example.com", Title: "Example"}}, nil
		},
	}
	registry := NewQueryRegistry()
	p := NewPipeline(&fakeSynth{}, searcher, registry, zap.NewNop())

	first := p.Run(context.Background(), "q1", "Who?", domain.ChatContext{})

	var firstEvents []domain.ProgressEvent
	go func() {
		for event := range first {
			firstEvents = append(firstEvents, event)
		}
		close(firstDone)
	}()

	select {
	case <-firstSearching:
	case <-time.After(5 * time.Second):
		t.Fatal("first run never reached the search stage")
	}

	// Re-registering the id displaces the first run
	events := collect(t, p.Run(context.Background(), "q1", "Who now?", domain.ChatContext{}))

	// The follow-up runs to a proper terminal event despite the first
	// run's release firing mid-flight
	assert.Equal(t, domain.EventComplete, events[len(events)-1].Type)
	for _, e := range firstEvents {
		assert.NotEqual(t, domain.EventError, e.Type)
		assert.NotEqual(t, domain.EventResponse, e.Type)
		assert.NotEqual(t, domain.EventComplete, e.Type)
	}
	assert.Equal(t, 0, registry.Len())
}

func TestPipelineCancelClosesSilently(t *testing.T) {
	searching := make(chan struct{})
	searcher := &fakeSearch{
		searchFn: func(ctx context.Context, query string, limit int) ([]domain.SearchResult, error) {
			close(searching)
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	registry := NewQueryRegistry()
	p := NewPipeline(&fakeSynth{}, searcher, registry, zap.NewNop())

	ch := p.Run(context.Background(), "q1", "Who?", domain.ChatContext{})

	done := make(chan []domain.ProgressEvent)
	go func() {
		var events []domain.ProgressEvent
		for event := range ch {
			events = append(events, event)
		}
		done <- events
	}()

	select {
	case <-searching:
	case <-time.After(5 * time.Second):
		t.Fatal("search stage never started")
	}

	assert.True(t, registry.Cancel("q1"))

	var events []domain.ProgressEvent
	select {
	case events = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not close after cancellation")
	}

	// A cancelled run ends with neither an error nor a response
	for _, e := range events {
		assert.NotEqual(t, domain.EventError, e.Type)
		assert.NotEqual(t, domain.EventResponse, e.Type)
		assert.NotEqual(t, domain.EventComplete, e.Type)
	}
	assert.Equal(t, 0, registry.Len())
}
