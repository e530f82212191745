package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dealstream/api/internal/domain"
)

const notificationColumns = `
	id, recipient_id, type, content, read,
	related_user_id, related_user_username,
	related_deal_id, related_deal_title,
	related_comment_id,
	created_at
`

// NotificationRepository is the postgres-backed notification store.
type NotificationRepository struct {
	db *DB
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	query := `
		INSERT INTO notifications (
			id, recipient_id, type, content, read,
			related_user_id, related_user_username,
			related_deal_id, related_deal_title,
			related_comment_id,
			created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	var (
		relatedUserID       *uuid.UUID
		relatedUserUsername *string
		relatedDealID       *uuid.UUID
		relatedDealTitle    *string
		relatedCommentID    *uuid.UUID
	)
	if n.RelatedUser != nil {
		relatedUserID = &n.RelatedUser.ID
		relatedUserUsername = &n.RelatedUser.Username
	}
	if n.RelatedDeal != nil {
		relatedDealID = &n.RelatedDeal.ID
		relatedDealTitle = &n.RelatedDeal.Title
	}
	if n.RelatedComment != nil {
		relatedCommentID = &n.RelatedComment.ID
	}

	_, err := r.db.Pool.Exec(ctx, query,
		n.ID,
		n.RecipientID,
		n.Type,
		n.Content,
		n.Read,
		relatedUserID,
		relatedUserUsername,
		relatedDealID,
		relatedDealTitle,
		relatedCommentID,
		n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

func (r *NotificationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1`

	n, err := scanNotification(r.db.Pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	return n, nil
}

// ListUnread returns the recipient's unread notifications, newest first.
func (r *NotificationRepository) ListUnread(ctx context.Context, recipientID uuid.UUID) ([]domain.Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE recipient_id = $1 AND read = false
		ORDER BY created_at DESC
	`
	rows, err := r.db.Pool.Query(ctx, query, recipientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	return collectNotifications(rows)
}

func (r *NotificationRepository) MarkRead(ctx context.Context, id uuid.UUID) (*domain.Notification, error) {
	query := `
		UPDATE notifications SET read = true
		WHERE id = $1
		RETURNING ` + notificationColumns

	n, err := scanNotification(r.db.Pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to mark notification read: %w", err)
	}
	return n, nil
}

// MarkAllRead flips every unread notification of the recipient to read and
// returns the affected rows.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, recipientID uuid.UUID) ([]domain.Notification, error) {
	query := `
		UPDATE notifications SET read = true
		WHERE recipient_id = $1 AND read = false
		RETURNING ` + notificationColumns

	rows, err := r.db.Pool.Query(ctx, query, recipientID)
	if err != nil {
		return nil, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	defer rows.Close()

	return collectNotifications(rows)
}

func (r *NotificationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM notifications WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete notification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNotification(row rowScanner) (*domain.Notification, error) {
	var (
		n                   domain.Notification
		relatedUserID       *uuid.UUID
		relatedUserUsername *string
		relatedDealID       *uuid.UUID
		relatedDealTitle    *string
		relatedCommentID    *uuid.UUID
	)

	err := row.Scan(
		&n.ID,
		&n.RecipientID,
		&n.Type,
		&n.Content,
		&n.Read,
		&relatedUserID,
		&relatedUserUsername,
		&relatedDealID,
		&relatedDealTitle,
		&relatedCommentID,
		&n.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if relatedUserID != nil {
		n.RelatedUser = &domain.RelatedUser{ID: *relatedUserID}
		if relatedUserUsername != nil {
			n.RelatedUser.Username = *relatedUserUsername
		}
	}
	if relatedDealID != nil {
		n.RelatedDeal = &domain.RelatedDeal{ID: *relatedDealID}
		if relatedDealTitle != nil {
			n.RelatedDeal.Title = *relatedDealTitle
		}
	}
	if relatedCommentID != nil {
		n.RelatedComment = &domain.RelatedComment{ID: *relatedCommentID}
	}

	return &n, nil
}

func collectNotifications(rows pgx.Rows) ([]domain.Notification, error) {
	var notifications []domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read notifications: %w", err)
	}
	return notifications, nil
}
