// Package session manages chat sessions, each persisted as a single
// JSON document on disk.
package session

import (
	"strings"
)

// Message types within a session history.
const (
	TypeHuman  = "human"
	TypeSystem = "system"
)

// Message is one turn in a session's history.
type Message struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// Session is a chat session: an identifier, a display title and the
// ordered message history.
type Session struct {
	ID      string    `json:"id"`
	Title   string    `json:"title"`
	History []Message `json:"history"`
}

// Summary is the listing view of a session (no history).
type Summary struct {
	ID    string `json:"session_id"`
	Title string `json:"title"`
}

// placeholderPrefix marks titles that have not been generated yet.
// New sessions get "Session N" and keep it until the first exchange
// produces a real title.
const placeholderPrefix = "Session"

// HasPlaceholderTitle reports whether the session still carries its
// initial auto-assigned title.
func (s *Session) HasPlaceholderTitle() bool {
	return strings.HasPrefix(s.Title, placeholderPrefix)
}

// Append adds a human/system message pair for one completed exchange.
func (s *Session) Append(query, answer string) {
	s.History = append(s.History,
		Message{Type: TypeHuman, Content: query},
		Message{Type: TypeSystem, Content: answer},
	)
}
