package llm

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/marcus-tan/askleads/internal/domain"
)

const tableAnswerSystemPrompt = `You answer questions using ONLY the enriched lead table provided.
The table is the output of a data-enrichment run: one row per lead, one column per enriched field.

Rules:
- If the table contains the information needed to answer, answer concisely from it.
- If it does not, do NOT guess or use outside knowledge.
- Respond with a single JSON object: {"found": true, "answer": "..."} or {"found": false}.
- No text outside the JSON object.`

const searchQuerySystemPrompt = `You turn a conversational question into a short web search query.
Focus on the entities involved (company names, people, products), not filler words.
Reply with the query only: no quotes, no explanation, under 10 words.`

const selectSourceSystemPrompt = `You pick the single most relevant source for answering a question.
Prefer official or primary sources over aggregators, and recent pages over stale ones.
Reply with the number of your choice only.`

const conversationalSystemPrompt = `You are a research assistant for a lead-enrichment tool.
Answer the user's question using the provided page content. Be conversational but precise.
If the content does not contain the answer, say what you could and could not find.
Keep the answer under 150 words.`

func formatHistory(history []domain.Turn) string {
	if len(history) == 0 {
		return "(no prior conversation)"
	}
	// Only the most recent turns matter for context
	if len(history) > maxHistoryTurns {
		history = history[len(history)-maxHistoryTurns:]
	}
	var b strings.Builder
	for _, turn := range history {
		fmt.Fprintf(&b, "%s: %s\n", turn.Role, turn.Content)
	}
	return b.String()
}

func tableAnswerPrompt(question, tableData string, history []domain.Turn) string {
	return fmt.Sprintf("Conversation so far:\n%s\nEnriched table:\n%s\n\nQuestion: %s",
		formatHistory(history), truncate(tableData, maxTableChars), question)
}

func searchQueryPrompt(question string, chatCtx domain.ChatContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Conversation so far:\n%s\n", formatHistory(chatCtx.History))
	if strings.TrimSpace(chatCtx.TableData) != "" {
		fmt.Fprintf(&b, "The user is looking at an enriched lead table (first lines):\n%s\n",
			truncate(chatCtx.TableData, 600))
	}
	fmt.Fprintf(&b, "\nQuestion: %s", question)
	return b.String()
}

func selectSourcePrompt(results []domain.SearchResult, question string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\nCandidate sources:\n", question)
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s\n   %s\n", i+1, r.Title, r.URL)
		if r.Snippet != "" {
			fmt.Fprintf(&b, "   %s\n", truncate(r.Snippet, 300))
		}
	}
	return b.String()
}

func conversationalPrompt(question, content string, chatCtx domain.ChatContext, sourceURL string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Conversation so far:\n%s\n", formatHistory(chatCtx.History))
	if content == "" {
		fmt.Fprintf(&b, "The page at %s could not be read; say so and answer as best you can.\n", sourceURL)
	} else {
		fmt.Fprintf(&b, "Content from %s:\n%s\n", sourceURL, truncate(content, maxContentChars))
	}
	fmt.Fprintf(&b, "\nQuestion: %s", question)
	return b.String()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	// Back up to a rune boundary so the cut never leaves a partial
	// UTF-8 sequence at the end
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
