package domain

import "time"

// Session represents a chat session over an enriched lead table
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message represents a chat message
type Message struct {
	ID        string     `json:"id"`
	SessionID string     `json:"session_id"`
	Role      string     `json:"role"` // user, assistant
	Content   string     `json:"content"`
	Source    *SourceRef `json:"source,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// TableSnapshot is the last enriched table text posted for a session.
// Later turns may omit the table and the server falls back to this.
type TableSnapshot struct {
	SessionID string    `json:"session_id"`
	TableData string    `json:"table_data"`
	UpdatedAt time.Time `json:"updated_at"`
}
