package service

import (
	"context"
	"fmt"

	"decryptrecovery/internal/models"
)

// ThreadStore is the part of storage that owns conversation threads.
type ThreadStore interface {
	EnsureThread(ctx context.Context, peer, groupID string) (*models.Thread, error)
	GetThread(ctx context.Context, id string) (*models.Thread, error)
}

// ThreadDirectory maps senders and groups to thread ids. Group messages
// belong to the group's thread regardless of sender.
type ThreadDirectory struct {
	store ThreadStore
}

func NewThreadDirectory(store ThreadStore) *ThreadDirectory {
	return &ThreadDirectory{store: store}
}

// ResolveThread returns the id of the thread for sender or groupID, creating
// the thread on first use.
func (d *ThreadDirectory) ResolveThread(ctx context.Context, sender, groupID string) (string, error) {
	thread, err := d.store.EnsureThread(ctx, sender, groupID)
	if err != nil {
		return "", fmt.Errorf("failed to resolve thread: %w", err)
	}
	return thread.ID, nil
}
