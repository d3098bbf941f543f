package models

import (
	"time"
)

// MessageKind distinguishes ordinary messages from non-recoverable markers.
type MessageKind string

const (
	MessageKindText MessageKind = "text"
	// MessageKindUndecryptable is inserted when a failed envelope could not
	// produce a placeholder; it never becomes replaceable.
	MessageKindUndecryptable MessageKind = "undecryptable"
)

// Message is a timeline entry whose content is known at insertion time.
type Message struct {
	ID                string      `json:"id"`
	ThreadID          string      `json:"threadId"`
	Sender            string      `json:"sender"`
	GroupID           string      `json:"groupId,omitempty"`
	OriginalTimestamp int64       `json:"originalTimestamp"`
	Body              string      `json:"body,omitempty"`
	Kind              MessageKind `json:"kind"`
	ReceivedAt        time.Time   `json:"receivedAt"`
	ReadAt            *time.Time  `json:"readAt,omitempty"`
}

func (m *Message) MarkRead(at time.Time) {
	if m.ReadAt != nil {
		return
	}
	m.ReadAt = &at
}

func (m *Message) IsRead() bool { return m.ReadAt != nil }

func (m *Message) EntryID() string            { return m.ID }
func (m *Message) EntryKind() EntryKind       { return EntryKindMessage }
func (m *Message) EntryThreadID() string      { return m.ThreadID }
func (m *Message) DisplayTimestamp() int64    { return m.OriginalTimestamp }
func (m *Message) LocalReceivedAt() time.Time { return m.ReceivedAt }
