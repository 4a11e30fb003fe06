package models

import "time"

type ConversationRole string

const (
	RoleUser      ConversationRole = "user"
	RoleAssistant ConversationRole = "assistant"
)

// ConversationTurn is one message of a table session's chat. Turns are
// append-only and only ever read as detection context.
type ConversationTurn struct {
	Role      ConversationRole `json:"role"`
	Text      string           `json:"text"`
	Timestamp time.Time        `json:"timestamp"`
}
