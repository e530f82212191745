package domain

import (
	"time"

	"github.com/google/uuid"
)

// NotificationType enumerates the domain events that produce notifications.
type NotificationType string

const (
	NotificationNewComment   NotificationType = "NEW_COMMENT"
	NotificationMention      NotificationType = "MENTION"
	NotificationUserFollow   NotificationType = "USER_FOLLOW"
	NotificationDealFollow   NotificationType = "DEAL_FOLLOW"
	NotificationDealApproved NotificationType = "DEAL_APPROVED"
	NotificationSystem       NotificationType = "SYSTEM"
)

// RelatedUser is a compact projection of a user referenced by a notification.
type RelatedUser struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
}

// RelatedDeal is a compact projection of a deal referenced by a notification.
type RelatedDeal struct {
	ID    uuid.UUID `json:"id"`
	Title string    `json:"title"`
}

// RelatedComment is a compact projection of a comment referenced by a notification.
type RelatedComment struct {
	ID uuid.UUID `json:"id"`
}

// Notification is a persisted per-recipient event record. The recipient never
// changes after creation; only the read flag transitions, and only from unread
// to read.
type Notification struct {
	ID             uuid.UUID        `json:"id" bson:"_id"`
	RecipientID    uuid.UUID        `json:"recipient_id" bson:"recipient_id"`
	Type           NotificationType `json:"type" bson:"type"`
	Content        string           `json:"content" bson:"content"`
	Read           bool             `json:"read" bson:"read"`
	RelatedUser    *RelatedUser     `json:"related_user,omitempty" bson:"related_user,omitempty"`
	RelatedDeal    *RelatedDeal     `json:"related_deal,omitempty" bson:"related_deal,omitempty"`
	RelatedComment *RelatedComment  `json:"related_comment,omitempty" bson:"related_comment,omitempty"`
	CreatedAt      time.Time        `json:"created_at" bson:"created_at"`
}

// RelatedRefs carries the optional entity references attached to a new
// notification.
type RelatedRefs struct {
	User    *RelatedUser
	Deal    *RelatedDeal
	Comment *RelatedComment
}
