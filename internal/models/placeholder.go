package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
)

// Eligibility is the replacement state of a placeholder.
type Eligibility string

const (
	EligibilityPending  Eligibility = "pending"
	EligibilityReplaced Eligibility = "replaced"
	EligibilityExpired  Eligibility = "expired"
)

// Valid reports whether e is one of the known states.
func (e Eligibility) Valid() bool {
	switch e {
	case EligibilityPending, EligibilityReplaced, EligibilityExpired:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition may leave e.
func (e Eligibility) IsTerminal() bool {
	return e == EligibilityReplaced || e == EligibilityExpired
}

// CanTransitionTo reports whether e -> next is an edge of the state machine.
func (e Eligibility) CanTransitionTo(next Eligibility) bool {
	return e == EligibilityPending && next.IsTerminal()
}

// DisplayStatus selects the copy shown for a placeholder in the timeline.
type DisplayStatus string

const (
	// DisplayRecoverable: the original may still arrive.
	DisplayRecoverable DisplayStatus = "recoverable"
	// DisplayUndecryptable: the message is permanently lost.
	DisplayUndecryptable DisplayStatus = "undecryptable"
	// DisplayRecovered: the placeholder now carries the original content.
	DisplayRecovered DisplayStatus = "recovered"
)

// Text returns the user-facing string for the status.
func (s DisplayStatus) Text() string {
	switch s {
	case DisplayRecoverable:
		return "This message may still be recovered"
	case DisplayRecovered:
		return ""
	default:
		return "This message could not be decrypted"
	}
}

// MatchKey correlates a later plaintext with an earlier decryption failure.
type MatchKey struct {
	Sender            string `json:"sender"`
	GroupID           string `json:"groupId,omitempty"`
	OriginalTimestamp int64  `json:"originalTimestamp"`
}

func (k MatchKey) String() string {
	group := k.GroupID
	if group == "" {
		group = "-"
	}
	return fmt.Sprintf("%s/%s/%d", k.Sender, group, k.OriginalTimestamp)
}

// NewPlaceholderParams carries the identity of a failed envelope.
type NewPlaceholderParams struct {
	ThreadID          string
	Sender            string
	GroupID           string
	OriginalTimestamp int64
	FailureReason     string
}

// Placeholder stands in for a message whose plaintext is not yet known.
//
// Identity fields are immutable. There is no setter for eligibility: a
// committed transition produces a new record through Transitioned.
type Placeholder struct {
	id                string
	threadID          string
	sender            string
	groupID           string
	originalTimestamp int64
	createdAt         time.Time
	expiresAt         time.Time
	eligibility       Eligibility
	version           int64
	failureReason     string
	replacementBody   *string
	replacedAt        *time.Time
	expiredAt         *time.Time
	readAt            *time.Time
}

// NewPlaceholder builds a pending placeholder whose deadline is
// createdAt + window. The deadline is never recomputed afterwards.
func NewPlaceholder(params NewPlaceholderParams, createdAt time.Time, window time.Duration) (*Placeholder, error) {
	if window <= 0 {
		return nil, fmt.Errorf("recovery window must be positive, got %s", window)
	}
	if params.ThreadID == "" {
		return nil, fmt.Errorf("placeholder requires a thread")
	}
	if params.Sender == "" {
		return nil, fmt.Errorf("placeholder requires a sender")
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("failed to generate placeholder id: %w", err)
	}

	return &Placeholder{
		id:                id.String(),
		threadID:          params.ThreadID,
		sender:            params.Sender,
		groupID:           params.GroupID,
		originalTimestamp: params.OriginalTimestamp,
		createdAt:         createdAt,
		expiresAt:         createdAt.Add(window),
		eligibility:       EligibilityPending,
		failureReason:     params.FailureReason,
	}, nil
}

func (p *Placeholder) ID() string                { return p.id }
func (p *Placeholder) ThreadID() string          { return p.threadID }
func (p *Placeholder) Sender() string            { return p.sender }
func (p *Placeholder) GroupID() string           { return p.groupID }
func (p *Placeholder) OriginalTimestamp() int64  { return p.originalTimestamp }
func (p *Placeholder) CreatedAt() time.Time      { return p.createdAt }
func (p *Placeholder) ExpiresAt() time.Time      { return p.expiresAt }
func (p *Placeholder) Eligibility() Eligibility  { return p.eligibility }
func (p *Placeholder) Version() int64            { return p.version }
func (p *Placeholder) FailureReason() string     { return p.failureReason }
func (p *Placeholder) ReplacedAt() *time.Time    { return copyTime(p.replacedAt) }
func (p *Placeholder) ExpiredAt() *time.Time     { return copyTime(p.expiredAt) }
func (p *Placeholder) ReadAt() *time.Time        { return copyTime(p.readAt) }
func (p *Placeholder) IsGroup() bool             { return p.groupID != "" }
func (p *Placeholder) Key() MatchKey {
	return MatchKey{Sender: p.sender, GroupID: p.groupID, OriginalTimestamp: p.originalTimestamp}
}

// ReplacementBody returns the spliced plaintext, if any.
func (p *Placeholder) ReplacementBody() (string, bool) {
	if p.replacementBody == nil {
		return "", false
	}
	return *p.replacementBody, true
}

// IsReplaceable reports whether a matching plaintext arriving at now may
// still replace this placeholder.
func (p *Placeholder) IsReplaceable(now time.Time) bool {
	return p.eligibility == EligibilityPending && now.Before(p.expiresAt)
}

// SupportsReplacement is the read-only view of IsReplaceable used by the
// timeline. It is evaluated on every call.
func (p *Placeholder) SupportsReplacement(now time.Time) bool {
	return p.IsReplaceable(now)
}

// IsExpirable reports whether a sweep at now should move the record to expired.
func (p *Placeholder) IsExpirable(now time.Time) bool {
	return p.eligibility == EligibilityPending && !now.Before(p.expiresAt)
}

// DisplayStatus picks the timeline copy for the placeholder at now. A pending
// record past its deadline is already shown as lost, before any sweep.
func (p *Placeholder) DisplayStatus(now time.Time) DisplayStatus {
	switch {
	case p.eligibility == EligibilityReplaced:
		return DisplayRecovered
	case p.IsReplaceable(now):
		return DisplayRecoverable
	default:
		return DisplayUndecryptable
	}
}

// MarkRead records the first time the entry was read; later calls are no-ops.
func (p *Placeholder) MarkRead(at time.Time) {
	if p.readAt != nil {
		return
	}
	p.readAt = &at
}

func (p *Placeholder) IsRead() bool { return p.readAt != nil }

func (p *Placeholder) EntryID() string            { return p.id }
func (p *Placeholder) EntryKind() EntryKind       { return EntryKindPlaceholder }
func (p *Placeholder) EntryThreadID() string      { return p.threadID }
func (p *Placeholder) DisplayTimestamp() int64    { return p.originalTimestamp }
func (p *Placeholder) LocalReceivedAt() time.Time { return p.createdAt }

// PlaceholderState is the serialization hook for storage and transport.
type PlaceholderState struct {
	ID                string      `json:"id"`
	ThreadID          string      `json:"threadId"`
	Sender            string      `json:"sender"`
	GroupID           string      `json:"groupId,omitempty"`
	OriginalTimestamp int64       `json:"originalTimestamp"`
	CreatedAt         time.Time   `json:"createdAt"`
	ExpiresAt         time.Time   `json:"expiresAt"`
	Eligibility       Eligibility `json:"eligibility"`
	Version           int64       `json:"version"`
	FailureReason     string      `json:"failureReason,omitempty"`
	ReplacementBody   *string     `json:"replacementBody,omitempty"`
	ReplacedAt        *time.Time  `json:"replacedAt,omitempty"`
	ExpiredAt         *time.Time  `json:"expiredAt,omitempty"`
	ReadAt            *time.Time  `json:"readAt,omitempty"`
}

// Snapshot copies the record into its serializable form.
func (p *Placeholder) Snapshot() PlaceholderState {
	var body *string
	if p.replacementBody != nil {
		b := *p.replacementBody
		body = &b
	}
	return PlaceholderState{
		ID:                p.id,
		ThreadID:          p.threadID,
		Sender:            p.sender,
		GroupID:           p.groupID,
		OriginalTimestamp: p.originalTimestamp,
		CreatedAt:         p.createdAt,
		ExpiresAt:         p.expiresAt,
		Eligibility:       p.eligibility,
		Version:           p.version,
		FailureReason:     p.failureReason,
		ReplacementBody:   body,
		ReplacedAt:        copyTime(p.replacedAt),
		ExpiredAt:         copyTime(p.expiredAt),
		ReadAt:            copyTime(p.readAt),
	}
}

// RestorePlaceholder rebuilds a record from persisted state, rejecting states
// that break the eligibility invariants.
func RestorePlaceholder(s PlaceholderState) (*Placeholder, error) {
	if s.ID == "" {
		return nil, fmt.Errorf("placeholder state has no id")
	}
	if !s.Eligibility.Valid() {
		return nil, fmt.Errorf("placeholder %s has unknown eligibility %q", s.ID, s.Eligibility)
	}
	if !s.ExpiresAt.After(s.CreatedAt) {
		return nil, fmt.Errorf("placeholder %s expires at or before creation", s.ID)
	}
	switch s.Eligibility {
	case EligibilityPending:
		if s.ReplacementBody != nil || s.ReplacedAt != nil || s.ExpiredAt != nil {
			return nil, fmt.Errorf("pending placeholder %s carries terminal data", s.ID)
		}
	case EligibilityReplaced:
		if s.ReplacementBody == nil || s.ReplacedAt == nil {
			return nil, fmt.Errorf("replaced placeholder %s has no replacement payload", s.ID)
		}
	case EligibilityExpired:
		if s.ReplacementBody != nil {
			return nil, fmt.Errorf("expired placeholder %s carries a replacement payload", s.ID)
		}
	}

	p := &Placeholder{
		id:                s.ID,
		threadID:          s.ThreadID,
		sender:            s.Sender,
		groupID:           s.GroupID,
		originalTimestamp: s.OriginalTimestamp,
		createdAt:         s.CreatedAt,
		expiresAt:         s.ExpiresAt,
		eligibility:       s.Eligibility,
		version:           s.Version,
		failureReason:     s.FailureReason,
		replacedAt:        copyTime(s.ReplacedAt),
		expiredAt:         copyTime(s.ExpiredAt),
		readAt:            copyTime(s.ReadAt),
	}
	if s.ReplacementBody != nil {
		b := *s.ReplacementBody
		p.replacementBody = &b
	}
	return p, nil
}

// Transitioned returns a copy of p moved to next at the given time, with the
// version bumped the same way the store bumps it. body is only used for
// replaced. p itself is left untouched.
func (p *Placeholder) Transitioned(next Eligibility, body string, at time.Time) (*Placeholder, error) {
	if !p.eligibility.CanTransitionTo(next) {
		return nil, fmt.Errorf("placeholder %s cannot move from %s to %s", p.id, p.eligibility, next)
	}
	s := p.Snapshot()
	s.Eligibility = next
	s.Version++
	switch next {
	case EligibilityReplaced:
		s.ReplacementBody = &body
		s.ReplacedAt = &at
	case EligibilityExpired:
		s.ExpiredAt = &at
	}
	return RestorePlaceholder(s)
}

// MarshalJSON encodes the placeholder through its snapshot.
func (p *Placeholder) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Snapshot())
}

// UnmarshalJSON decodes and validates a snapshot.
func (p *Placeholder) UnmarshalJSON(data []byte) error {
	var s PlaceholderState
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	restored, err := RestorePlaceholder(s)
	if err != nil {
		return err
	}
	*p = *restored
	return nil
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
