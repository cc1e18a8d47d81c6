package models

import (
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ConversationTurn is one message of a session's chat history. Turns are never
// edited after they are appended.
type ConversationTurn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// TokenUsage mirrors the usage block returned by the chat service.
type TokenUsage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// GeneratedText is the outcome of one successful generation turn.
type GeneratedText struct {
	Content       string     `json:"content"`
	Usage         TokenUsage `json:"usage"`
	ContextTokens int        `json:"contextTokens,omitempty"`
}

// Session is the explicit per-user state passed to every operation.
type Session struct {
	ID           string             `json:"id"`
	CreatedAt    time.Time          `json:"createdAt"`
	UpdatedAt    time.Time          `json:"updatedAt"`
	History      []ConversationTurn `json:"history"`
	LastResponse string             `json:"lastResponse,omitempty"`
	Operation    string             `json:"operation,omitempty"`
	Runs         int                `json:"runs"`
}

// NewSession returns an empty session.
func NewSession(id string, now time.Time) *Session {
	return &Session{
		ID:        id,
		CreatedAt: now,
		UpdatedAt: now,
		History:   make([]ConversationTurn, 0),
	}
}

// AppendExchange appends a user turn and the assistant reply to it.
func (s *Session) AppendExchange(query, reply string, now time.Time) {
	s.History = append(s.History,
		ConversationTurn{Role: RoleUser, Content: query, CreatedAt: now},
		ConversationTurn{Role: RoleAssistant, Content: reply, CreatedAt: now},
	)
	s.LastResponse = reply
	s.UpdatedAt = now
}

// Clone returns a deep copy so stores never hand out shared history slices.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.History = make([]ConversationTurn, len(s.History))
	copy(c.History, s.History)
	return &c
}
