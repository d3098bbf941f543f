package models

import "time"

// TimelineEventType names a change visible in a thread's timeline.
type TimelineEventType string

const (
	EventPlaceholderCreated  TimelineEventType = "placeholder.created"
	EventPlaceholderReplaced TimelineEventType = "placeholder.replaced"
	EventPlaceholderExpired  TimelineEventType = "placeholder.expired"
	EventMessageInserted     TimelineEventType = "message.inserted"
)

// TimelineEvent is published after a change has been committed.
type TimelineEvent struct {
	Type      TimelineEventType `json:"type"`
	ThreadID  string            `json:"threadId"`
	EntryID   string            `json:"entryId"`
	EntryKind EntryKind         `json:"entryKind"`
	At        time.Time         `json:"at"`
}
