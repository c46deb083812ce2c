package domain

// Progress event types emitted by the answer pipeline.
const (
	EventStatus   = "status"
	EventResponse = "response"
	EventError    = "error"
	EventComplete = "complete"
)

// Pipeline step tags carried by status events.
const (
	StepTableCheck = "table_check"
	StepTableFound = "table_found"
	StepWebSearch  = "web_search"
	StepSearch     = "search"
	StepSearching  = "searching"
	StepSelect     = "select"
	StepEvaluating = "evaluating"
	StepSelected   = "selected"
	StepScrape     = "scrape"
	StepExtracting = "extracting"
	StepAnalyze    = "analyze"
)

// SourceTypeTable marks answers that came from the enriched table
// rather than a scraped web page.
const SourceTypeTable = "table"

// Turn is one prior exchange in the conversation
type Turn struct {
	Role    string `json:"role"` // user, assistant
	Content string `json:"content"`
}

// ChatContext carries the caller-supplied context for one question.
// TableData is the enriched table rendered as raw text; it is read-only
// input to the pipeline and never mutated.
type ChatContext struct {
	TableData string `json:"tableData,omitempty"`
	History   []Turn `json:"-"`
}

// ChatRequest is the request to the streaming answer endpoint
type ChatRequest struct {
	Question            string      `json:"question" binding:"required"`
	Context             ChatContext `json:"context"`
	ConversationHistory []Turn      `json:"conversationHistory"`
	SessionID           string      `json:"sessionId,omitempty"`
}

// SourceRef identifies where an answer or candidate came from
type SourceRef struct {
	Type  string `json:"type,omitempty"`
	URL   string `json:"url,omitempty"`
	Title string `json:"title,omitempty"`
}

// ProgressEvent is one unit of the streamed pipeline output.
// Type discriminates the payload: status events carry Message and Step
// plus optional structured payload, response events carry the answer
// text and its attribution, error events carry a message, complete
// carries nothing and signals stream end.
type ProgressEvent struct {
	Type    string      `json:"type"`
	Message string      `json:"message,omitempty"`
	Step    string      `json:"step,omitempty"`
	Sources []SourceRef `json:"sources,omitempty"`
	Source  *SourceRef  `json:"source,omitempty"`
}

// SearchResult is one candidate web page returned by the search client
type SearchResult struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet,omitempty"`
}

// ScrapedPage is the scraped content of one web page
type ScrapedPage struct {
	URL      string `json:"url"`
	Markdown string `json:"markdown"`
}

// TableAnswer is the outcome of trying to answer purely from the
// enriched table. Found=false is a normal outcome, not an error.
type TableAnswer struct {
	Found  bool   `json:"found"`
	Answer string `json:"answer,omitempty"`
}
