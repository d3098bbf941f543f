package placeholder

import (
	"context"
	"time"

	"decryptrecovery/internal/models"
)

// Store persists placeholders. Transitions are compare-and-set operations
// that report whether this call won.
type Store interface {
	InsertPlaceholder(ctx context.Context, p *models.Placeholder) error
	GetPlaceholder(ctx context.Context, id string) (*models.Placeholder, error)
	FindPlaceholdersByKey(ctx context.Context, key models.MatchKey) ([]*models.Placeholder, error)
	CompareAndReplace(ctx context.Context, id string, version int64, body string, at time.Time) (bool, error)
	CompareAndExpire(ctx context.Context, id string, version int64, at time.Time) (bool, error)
	ListExpirablePlaceholders(ctx context.Context, now time.Time, limit int) ([]*models.Placeholder, error)
}

// ThreadResolver maps a sender and optional group to the id of the thread
// the entry belongs to.
type ThreadResolver interface {
	ResolveThread(ctx context.Context, sender, groupID string) (string, error)
}

// Notifier receives committed timeline changes. Notify must not block.
type Notifier interface {
	Notify(event models.TimelineEvent)
}

// FailedEnvelope is the part of an undecryptable envelope the manager needs.
type FailedEnvelope interface {
	SourceAddress() string
	// SenderTimestamp is the sender-asserted time in milliseconds.
	SenderTimestamp() int64
}

// failureReasoner is optionally implemented by envelopes that know why
// decryption failed.
type failureReasoner interface {
	FailureReason() string
}

// Candidate is a successfully decrypted message looking for its placeholder.
type Candidate struct {
	Body              string
	Sender            string
	GroupID           string
	OriginalTimestamp int64
}

// Outcome is the result kind of TryReplace.
type Outcome int

const (
	OutcomeNoMatch Outcome = iota
	OutcomeMatched
)

func (o Outcome) String() string {
	if o == OutcomeMatched {
		return "matched"
	}
	return "no_match"
}

// NoMatch reasons.
const (
	ReasonInvalidSender    = "invalid_sender"
	ReasonInvalidKey       = "invalid_key"
	ReasonInvalidBody      = "invalid_body"
	ReasonNoPlaceholder    = "no_placeholder"
	ReasonNotReplaceable   = "not_replaceable"
	ReasonStaleTransition  = "stale_transition"
	ReasonStoreUnavailable = "store_unavailable"
)

// ReplaceResult reports what TryReplace did.
type ReplaceResult struct {
	Outcome Outcome
	// Placeholder is the replaced record when Outcome is OutcomeMatched.
	Placeholder *models.Placeholder
	// Reason explains a NoMatch.
	Reason string
	// DuplicateIDs lists other pending placeholders that shared the match
	// key. They are left pending and expire on their own.
	DuplicateIDs []string
}

// Matched reports whether the candidate replaced a placeholder.
func (r ReplaceResult) Matched() bool {
	return r.Outcome == OutcomeMatched
}

func noMatch(reason string) ReplaceResult {
	return ReplaceResult{Outcome: OutcomeNoMatch, Reason: reason}
}
