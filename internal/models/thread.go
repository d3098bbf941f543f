package models

import "time"

// Thread is a conversation. Placeholders and messages refer to it by ID only.
type Thread struct {
	ID        string    `json:"id"`
	Peer      string    `json:"peer,omitempty"`    // service address for one-to-one threads
	GroupID   string    `json:"groupId,omitempty"` // empty for one-to-one threads
	CreatedAt time.Time `json:"createdAt"`
}

// IsGroup reports whether the thread is a group conversation.
func (t *Thread) IsGroup() bool {
	return t.GroupID != ""
}
