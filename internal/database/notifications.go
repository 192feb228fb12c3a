package database

import (
	"context"
	"fmt"
	"time"

	"booking-settlement-go/internal/models"

	"github.com/google/uuid"
)

func (s *Service) InsertNotification(ctx context.Context, n *models.Notification) error {
	if n.Id == "" {
		n.Id = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, queryInsertNotification,
		n.Id, n.UserId, n.Type, n.Title, n.Message, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

func (s *Service) MarkNotificationRead(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, queryMarkNotificationRead, id); err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	return nil
}

// PurgeReadNotifications deletes read notifications older than cutoff and
// reports how many rows were removed.
func (s *Service) PurgeReadNotifications(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, queryPurgeReadNotifications, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge notifications: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return rows, nil
}
