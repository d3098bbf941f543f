package service

import (
	"context"
	"time"

	"decryptrecovery/internal/clock"
	"decryptrecovery/internal/errors"
	"decryptrecovery/internal/models"
	"decryptrecovery/internal/validation"

	"github.com/sirupsen/logrus"
)

// TimelineStore reads the entries of a thread and persists read marks.
type TimelineStore interface {
	GetThread(ctx context.Context, id string) (*models.Thread, error)
	ListThreadPlaceholders(ctx context.Context, threadID string) ([]*models.Placeholder, error)
	ListThreadMessages(ctx context.Context, threadID string) ([]*models.Message, error)
	PersistReadMarks(ctx context.Context, entries []models.TimelineEntry, at time.Time) error
}

// TimelineEntryView is the display form of one entry at a point in time.
type TimelineEntryView struct {
	Kind              models.EntryKind     `json:"kind"`
	ID                string               `json:"id"`
	Sender            string               `json:"sender,omitempty"`
	OriginalTimestamp int64                `json:"originalTimestamp"`
	Read              bool                 `json:"read"`
	Body              string               `json:"body,omitempty"`
	Status            models.DisplayStatus `json:"status,omitempty"`
	StatusText        string               `json:"statusText,omitempty"`
	ExpiresAt         *time.Time           `json:"expiresAt,omitempty"`
}

// TimelineService merges placeholders and messages into one ordered view.
type TimelineService struct {
	store  TimelineStore
	clock  clock.Clock
	logger *logrus.Logger
}

func NewTimelineService(store TimelineStore, clk clock.Clock, logger *logrus.Logger) *TimelineService {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &TimelineService{store: store, clock: clk, logger: logger}
}

// Timeline returns every entry of the thread ordered for display.
func (s *TimelineService) Timeline(ctx context.Context, threadID string) ([]models.TimelineEntry, error) {
	if err := validation.ValidateThreadID(threadID); err != nil {
		return nil, err
	}
	thread, err := s.store.GetThread(ctx, threadID)
	if err != nil {
		return nil, errors.NewDatabaseError("get thread", err)
	}
	if thread == nil {
		return nil, errors.NewNotFoundError("thread", threadID)
	}

	placeholders, err := s.store.ListThreadPlaceholders(ctx, threadID)
	if err != nil {
		return nil, errors.NewDatabaseError("list placeholders", err)
	}
	messages, err := s.store.ListThreadMessages(ctx, threadID)
	if err != nil {
		return nil, errors.NewDatabaseError("list messages", err)
	}

	entries := make([]models.TimelineEntry, 0, len(placeholders)+len(messages))
	for _, p := range placeholders {
		entries = append(entries, p)
	}
	for _, m := range messages {
		entries = append(entries, m)
	}
	models.SortTimeline(entries)
	return entries, nil
}

// UnreadCount counts unread entries of any kind.
func (s *TimelineService) UnreadCount(ctx context.Context, threadID string) (int, error) {
	entries, err := s.Timeline(ctx, threadID)
	if err != nil {
		return 0, err
	}
	return models.UnreadCount(entries), nil
}

// MarkThreadRead marks every unread entry read at the current time and
// returns how many changed.
func (s *TimelineService) MarkThreadRead(ctx context.Context, threadID string) (int, error) {
	entries, err := s.Timeline(ctx, threadID)
	if err != nil {
		return 0, err
	}

	now := s.clock.Now()
	changed := models.MarkAllRead(entries, now)
	if err := s.store.PersistReadMarks(ctx, changed, now); err != nil {
		return 0, errors.NewDatabaseError("persist read marks", err)
	}

	if len(changed) > 0 {
		s.logger.WithFields(logrus.Fields{
			LogFieldThread: threadID,
			LogFieldCount:  len(changed),
		}).Debug("Marked thread read")
	}
	return len(changed), nil
}

// View renders entries for display. Placeholder status is evaluated at the
// current time, so a pending record past its deadline already reads as lost.
func (s *TimelineService) View(entries []models.TimelineEntry) []TimelineEntryView {
	now := s.clock.Now()
	views := make([]TimelineEntryView, 0, len(entries))
	for _, e := range entries {
		v := TimelineEntryView{
			Kind:              e.EntryKind(),
			ID:                e.EntryID(),
			OriginalTimestamp: e.DisplayTimestamp(),
			Read:              e.IsRead(),
		}
		switch entry := e.(type) {
		case *models.Placeholder:
			v.Sender = entry.Sender()
			v.Status = entry.DisplayStatus(now)
			v.StatusText = v.Status.Text()
			if body, ok := entry.ReplacementBody(); ok {
				v.Body = body
			}
			if v.Status == models.DisplayRecoverable {
				expiresAt := entry.ExpiresAt()
				v.ExpiresAt = &expiresAt
			}
		case *models.Message:
			v.Sender = entry.Sender
			v.Body = entry.Body
			if entry.Kind == models.MessageKindUndecryptable {
				v.Status = models.DisplayUndecryptable
				v.StatusText = v.Status.Text()
			}
		}
		views = append(views, v)
	}
	return views
}
