package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dealstream/api/internal/domain"
	"github.com/dealstream/api/internal/realtime"
)

// NotificationStore persists per-recipient notification records. Implemented
// by the postgres and mongo repositories.
type NotificationStore interface {
	Create(ctx context.Context, n *domain.Notification) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Notification, error)
	ListUnread(ctx context.Context, recipientID uuid.UUID) ([]domain.Notification, error)
	MarkRead(ctx context.Context, id uuid.UUID) (*domain.Notification, error)
	MarkAllRead(ctx context.Context, recipientID uuid.UUID) ([]domain.Notification, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// NotificationService orchestrates notification creation, persistence, fanout
// and read-state transitions. It is the only writer of the notification store.
type NotificationService struct {
	store    NotificationStore
	users    UserStore
	registry realtime.RoomRegistry
}

// NewNotificationService creates a new notification service
func NewNotificationService(store NotificationStore, users UserStore, registry realtime.RoomRegistry) *NotificationService {
	return &NotificationService{store: store, users: users, registry: registry}
}

// Create persists an unread notification, then pushes it to the recipient's
// open connections. Persistence happens first: a client that misses the live
// push still discovers the row via GetUnread. Push failures (including zero
// open connections) never fail or roll back the write.
func (s *NotificationService) Create(
	ctx context.Context,
	recipientID uuid.UUID,
	notificationType domain.NotificationType,
	content string,
	refs domain.RelatedRefs,
) (*domain.Notification, error) {
	n := &domain.Notification{
		ID:             uuid.New(),
		RecipientID:    recipientID,
		Type:           notificationType,
		Content:        content,
		Read:           false,
		RelatedUser:    refs.User,
		RelatedDeal:    refs.Deal,
		RelatedComment: refs.Comment,
		CreatedAt:      time.Now(),
	}

	if err := s.store.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("failed to persist notification: %w", err)
	}

	delivered := s.registry.SendToUser(recipientID, realtime.EventNewNotification, n)
	if delivered == 0 {
		log.Debug().
			Str("recipient_id", recipientID.String()).
			Str("type", string(notificationType)).
			Msg("no open connections for notification push")
	}

	return n, nil
}

// GetUnread returns the recipient's unread notifications, newest first.
func (s *NotificationService) GetUnread(ctx context.Context, recipientID uuid.UUID) ([]domain.Notification, error) {
	return s.store.ListUnread(ctx, recipientID)
}

// MarkAsRead transitions a notification to read. It is idempotent: marking an
// already-read row is a no-op returning the same state.
func (s *NotificationService) MarkAsRead(ctx context.Context, id, recipientID uuid.UUID) (*domain.Notification, error) {
	n, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if n.RecipientID != recipientID {
		return nil, domain.ErrForbidden
	}
	if n.Read {
		return n, nil
	}
	return s.store.MarkRead(ctx, id)
}

// MarkAllAsRead transitions every unread notification of the recipient and
// pushes one update event per affected row, so all open connections converge
// without a full re-fetch.
func (s *NotificationService) MarkAllAsRead(ctx context.Context, recipientID uuid.UUID) ([]domain.Notification, error) {
	updated, err := s.store.MarkAllRead(ctx, recipientID)
	if err != nil {
		return nil, fmt.Errorf("failed to mark all read: %w", err)
	}

	for i := range updated {
		s.registry.SendToUser(recipientID, realtime.EventUpdateNotification, &updated[i])
	}

	return updated, nil
}

// Delete removes a notification. Only the owning recipient may delete it.
func (s *NotificationService) Delete(ctx context.Context, id, recipientID uuid.UUID) error {
	n, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if n.RecipientID != recipientID {
		return domain.ErrForbidden
	}
	return s.store.Delete(ctx, id)
}

// PushFollowerCount notifies all of a user's open connections of their new
// follower count. Transport-only; nothing is persisted.
func (s *NotificationService) PushFollowerCount(userID uuid.UUID, count int) {
	s.registry.SendToUser(userID, realtime.EventFollowerCountUpdate, map[string]any{
		"user_id": userID,
		"count":   count,
	})
}

// NotifyNewComment notifies a deal owner about a fresh comment on their deal.
// The owner commenting on their own deal produces nothing.
func (s *NotificationService) NotifyNewComment(
	ctx context.Context,
	actor *domain.User,
	dealOwnerID uuid.UUID,
	deal domain.RelatedDeal,
	comment domain.RelatedComment,
) (*domain.Notification, error) {
	if actor.ID == dealOwnerID {
		return nil, nil
	}

	content := fmt.Sprintf("%s commented on your deal %q", actor.Username, deal.Title)
	return s.Create(ctx, dealOwnerID, domain.NotificationNewComment, content, domain.RelatedRefs{
		User:    &domain.RelatedUser{ID: actor.ID, Username: actor.Username},
		Deal:    &deal,
		Comment: &comment,
	})
}

// NotifyMentions parses @mentions out of a comment body and notifies each
// distinct mentioned user once. Self-mentions and unknown usernames are
// skipped.
func (s *NotificationService) NotifyMentions(
	ctx context.Context,
	actor *domain.User,
	body string,
	deal domain.RelatedDeal,
	comment domain.RelatedComment,
) ([]domain.Notification, error) {
	var created []domain.Notification

	for _, username := range ParseMentions(body) {
		if username == actor.Username {
			continue
		}

		mentioned, err := s.users.GetByUsername(ctx, username)
		if err != nil {
			return created, fmt.Errorf("failed to resolve mention %q: %w", username, err)
		}
		if mentioned == nil {
			continue
		}

		content := fmt.Sprintf("%s mentioned you in a comment on %q", actor.Username, deal.Title)
		n, err := s.Create(ctx, mentioned.ID, domain.NotificationMention, content, domain.RelatedRefs{
			User:    &domain.RelatedUser{ID: actor.ID, Username: actor.Username},
			Deal:    &deal,
			Comment: &comment,
		})
		if err != nil {
			return created, err
		}
		created = append(created, *n)
	}

	return created, nil
}

// NotifyNewFollower notifies a user that someone started following them.
func (s *NotificationService) NotifyNewFollower(ctx context.Context, follower *domain.User, followedID uuid.UUID) (*domain.Notification, error) {
	content := fmt.Sprintf("%s started following you", follower.Username)
	return s.Create(ctx, followedID, domain.NotificationUserFollow, content, domain.RelatedRefs{
		User: &domain.RelatedUser{ID: follower.ID, Username: follower.Username},
	})
}

// NotifyDealApproved notifies a poster that moderation approved their deal.
func (s *NotificationService) NotifyDealApproved(ctx context.Context, posterID uuid.UUID, deal domain.RelatedDeal) (*domain.Notification, error) {
	content := fmt.Sprintf("your deal %q was approved", deal.Title)
	return s.Create(ctx, posterID, domain.NotificationDealApproved, content, domain.RelatedRefs{
		Deal: &deal,
	})
}
