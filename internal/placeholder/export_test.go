package placeholder

import (
	"testing"
	"time"

	"decryptrecovery/internal/models"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
)

// newFakePlaceholder builds a record directly in the requested state,
// bypassing the failure path. Only reachable from this package's tests.
func newFakePlaceholder(t *testing.T, threadID string, key models.MatchKey, createdAt time.Time, window time.Duration, state models.Eligibility) *models.Placeholder {
	t.Helper()

	s := models.PlaceholderState{
		ID:                uuid.Must(uuid.NewV4()).String(),
		ThreadID:          threadID,
		Sender:            key.Sender,
		GroupID:           key.GroupID,
		OriginalTimestamp: key.OriginalTimestamp,
		CreatedAt:         createdAt,
		ExpiresAt:         createdAt.Add(window),
		Eligibility:       state,
	}
	switch state {
	case models.EligibilityReplaced:
		body := "recovered"
		at := createdAt.Add(time.Second)
		s.ReplacementBody, s.ReplacedAt, s.Version = &body, &at, 1
	case models.EligibilityExpired:
		at := createdAt.Add(window)
		s.ExpiredAt, s.Version = &at, 1
	}

	p, err := models.RestorePlaceholder(s)
	require.NoError(t, err)
	return p
}

func (m *Manager) lockCount() int {
	return m.locks.size()
}
