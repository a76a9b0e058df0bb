// Package models defines navigation state structures for AtendeBot conversations.
package models

import "time"

// ConversationLevel identifies where a member is in the menu hierarchy.
type ConversationLevel string

const (
	// LevelRoot means the member is looking at the main menu.
	LevelRoot ConversationLevel = "at_root"
	// LevelSubmenu means the member is browsing a submenu listing.
	LevelSubmenu ConversationLevel = "browsing_submenu"
	// LevelContent means the member is viewing terminal content.
	LevelContent ConversationLevel = "viewing_content"
)

// ConversationState is the navigation cursor for one member's dialogue.
// ActiveNodeID is set whenever Level is not LevelRoot: at LevelSubmenu it
// is the parent whose children are listed, at LevelContent the node being
// shown.
type ConversationState struct {
	Phone        string            `json:"phone"`
	Level        ConversationLevel `json:"level"`
	ActiveNodeID string            `json:"active_node_id,omitempty"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// Interaction is one navigation event appended to a session's history.
type Interaction struct {
	NodeID    string    `json:"node_id,omitempty"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
}

// MaxSessionInteractions bounds the per-session navigation history.
const MaxSessionInteractions = 10

// Session is the durable record of one member's visit, independent of the
// in-memory conversation state.
type Session struct {
	ID           string        `json:"id"`
	Phone        string        `json:"phone"`
	StartedAt    time.Time     `json:"started_at"`
	LastActiveAt time.Time     `json:"last_active_at"`
	Interactions []Interaction `json:"interactions,omitempty"`
}

// AppendInteraction adds an event to the session history, retaining only
// the MaxSessionInteractions most recent entries.
func (s *Session) AppendInteraction(in Interaction) {
	s.Interactions = append(s.Interactions, in)
	if len(s.Interactions) > MaxSessionInteractions {
		s.Interactions = s.Interactions[len(s.Interactions)-MaxSessionInteractions:]
	}
}

// DailyStats aggregates one calendar day of bot usage.
type DailyStats struct {
	Date         string         `json:"date"` // YYYY-MM-DD
	MessageCount int            `json:"message_count"`
	SessionCount int            `json:"session_count"`
	NodeAccess   map[string]int `json:"node_access,omitempty"` // node id -> access count
	HourlyCounts [24]int        `json:"hourly_counts"`
	UniquePhones []string       `json:"unique_phones,omitempty"`
}
