// Package models defines the data structures shared between the API
// client, the local cache, and the chat session.
package models

import "time"

// Page represents a persisted conversation thread on the orchestrator.
// An empty ID means a new, not-yet-saved conversation.
type Page struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is a single chat message within a page.
// IDs are client-generated UUIDs for optimistic sends; messages loaded
// from the server carry the server's IDs.
type Message struct {
	ID        string    `json:"id"`
	PageID    string    `json:"page_id,omitempty"`
	Content   string    `json:"content"`
	Reasoning string    `json:"reasoning,omitempty"`
	IsUser    bool      `json:"is_user"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}

// JobData is a captured job posting, the terminal analog of what the
// browser extension extracts from a listing page.
type JobData struct {
	Title       string    `json:"title"`
	Company     string    `json:"company"`
	Location    string    `json:"location,omitempty"`
	URL         string    `json:"url,omitempty"`
	Description string    `json:"description,omitempty"`
	CapturedAt  time.Time `json:"captured_at,omitzero"`
}

// User is an account as seen through the admin API.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Subscription string    `json:"subscription"`
	CreatedAt    time.Time `json:"created_at"`
}
