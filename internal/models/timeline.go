package models

import (
	"sort"
	"time"
)

// EntryKind tags the variants of the timeline entry union.
type EntryKind string

const (
	EntryKindMessage     EntryKind = "message"
	EntryKindPlaceholder EntryKind = "placeholder"
)

// ReadTrackable is the read/unread capability every timeline entry has.
type ReadTrackable interface {
	MarkRead(at time.Time)
	IsRead() bool
}

// TimelineEntry is implemented by *Message and *Placeholder.
type TimelineEntry interface {
	ReadTrackable
	EntryID() string
	EntryKind() EntryKind
	EntryThreadID() string
	// DisplayTimestamp is the sender-asserted time used for ordering.
	DisplayTimestamp() int64
	LocalReceivedAt() time.Time
}

// SortTimeline orders entries by sender timestamp, then local receipt time,
// then id so the order is stable across reads.
func SortTimeline(entries []TimelineEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.DisplayTimestamp() != b.DisplayTimestamp() {
			return a.DisplayTimestamp() < b.DisplayTimestamp()
		}
		if !a.LocalReceivedAt().Equal(b.LocalReceivedAt()) {
			return a.LocalReceivedAt().Before(b.LocalReceivedAt())
		}
		return a.EntryID() < b.EntryID()
	})
}

// UnreadCount counts unread entries without looking at their concrete kind.
func UnreadCount(entries []TimelineEntry) int {
	count := 0
	for _, e := range entries {
		if !e.IsRead() {
			count++
		}
	}
	return count
}

// MarkAllRead marks every unread entry and returns the ones that changed.
func MarkAllRead(entries []TimelineEntry, at time.Time) []TimelineEntry {
	var changed []TimelineEntry
	for _, e := range entries {
		if e.IsRead() {
			continue
		}
		e.MarkRead(at)
		changed = append(changed, e)
	}
	return changed
}
