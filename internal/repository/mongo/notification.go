package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/dealstream/api/internal/config"
	"github.com/dealstream/api/internal/domain"
)

// Store is the mongo-backed notification store. Each notification is a single
// document owned by one recipient, so no multi-document transactions are
// needed.
type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// document is the persisted shape. UUIDs are stored as strings so the
// collection stays readable without a custom codec registry.
type document struct {
	ID                  string    `bson:"_id"`
	RecipientID         string    `bson:"recipient_id"`
	Type                string    `bson:"type"`
	Content             string    `bson:"content"`
	Read                bool      `bson:"read"`
	RelatedUserID       *string   `bson:"related_user_id,omitempty"`
	RelatedUserUsername *string   `bson:"related_user_username,omitempty"`
	RelatedDealID       *string   `bson:"related_deal_id,omitempty"`
	RelatedDealTitle    *string   `bson:"related_deal_title,omitempty"`
	RelatedCommentID    *string   `bson:"related_comment_id,omitempty"`
	CreatedAt           time.Time `bson:"created_at"`
}

// NewStore connects to mongo and returns a notification store.
func NewStore(ctx context.Context, cfg config.MongoConfig) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to create mongo client: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	return &Store{
		client: client,
		coll:   client.Database(cfg.Database).Collection("notifications"),
	}, nil
}

// Close disconnects the underlying client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) Create(ctx context.Context, n *domain.Notification) error {
	if _, err := s.coll.InsertOne(ctx, toDocument(n)); err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*domain.Notification, error) {
	var doc document
	err := s.coll.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	return fromDocument(&doc)
}

func (s *Store) ListUnread(ctx context.Context, recipientID uuid.UUID) ([]domain.Notification, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := s.coll.Find(ctx, bson.M{"recipient_id": recipientID.String(), "read": false}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer cursor.Close(ctx)

	return collect(ctx, cursor)
}

func (s *Store) MarkRead(ctx context.Context, id uuid.UUID) (*domain.Notification, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc document
	err := s.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": id.String()},
		bson.M{"$set": bson.M{"read": true}},
		opts,
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to mark notification read: %w", err)
	}
	return fromDocument(&doc)
}

func (s *Store) MarkAllRead(ctx context.Context, recipientID uuid.UUID) ([]domain.Notification, error) {
	filter := bson.M{"recipient_id": recipientID.String(), "read": false}

	// Snapshot the affected ids first: after UpdateMany the unread filter no
	// longer matches them.
	cursor, err := s.coll.Find(ctx, filter, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, fmt.Errorf("failed to find unread notifications: %w", err)
	}
	var idDocs []struct {
		ID string `bson:"_id"`
	}
	if err := cursor.All(ctx, &idDocs); err != nil {
		return nil, fmt.Errorf("failed to read unread ids: %w", err)
	}
	if len(idDocs) == 0 {
		return nil, nil
	}

	ids := make([]string, len(idDocs))
	for i, d := range idDocs {
		ids[i] = d.ID
	}

	if _, err := s.coll.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": ids}},
		bson.M{"$set": bson.M{"read": true}},
	); err != nil {
		return nil, fmt.Errorf("failed to mark notifications read: %w", err)
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	readCursor, err := s.coll.Find(ctx, bson.M{"_id": bson.M{"$in": ids}}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to re-read notifications: %w", err)
	}
	defer readCursor.Close(ctx)

	return collect(ctx, readCursor)
}

func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": id.String()})
	if err != nil {
		return fmt.Errorf("failed to delete notification: %w", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func collect(ctx context.Context, cursor *mongo.Cursor) ([]domain.Notification, error) {
	var notifications []domain.Notification
	for cursor.Next(ctx) {
		var doc document
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode notification: %w", err)
		}
		n, err := fromDocument(&doc)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, *n)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to read notifications: %w", err)
	}
	return notifications, nil
}

func toDocument(n *domain.Notification) *document {
	doc := &document{
		ID:          n.ID.String(),
		RecipientID: n.RecipientID.String(),
		Type:        string(n.Type),
		Content:     n.Content,
		Read:        n.Read,
		CreatedAt:   n.CreatedAt,
	}
	if n.RelatedUser != nil {
		id := n.RelatedUser.ID.String()
		doc.RelatedUserID = &id
		doc.RelatedUserUsername = &n.RelatedUser.Username
	}
	if n.RelatedDeal != nil {
		id := n.RelatedDeal.ID.String()
		doc.RelatedDealID = &id
		doc.RelatedDealTitle = &n.RelatedDeal.Title
	}
	if n.RelatedComment != nil {
		id := n.RelatedComment.ID.String()
		doc.RelatedCommentID = &id
	}
	return doc
}

func fromDocument(doc *document) (*domain.Notification, error) {
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid notification id %q: %w", doc.ID, err)
	}
	recipientID, err := uuid.Parse(doc.RecipientID)
	if err != nil {
		return nil, fmt.Errorf("invalid recipient id %q: %w", doc.RecipientID, err)
	}

	n := &domain.Notification{
		ID:          id,
		RecipientID: recipientID,
		Type:        domain.NotificationType(doc.Type),
		Content:     doc.Content,
		Read:        doc.Read,
		CreatedAt:   doc.CreatedAt,
	}

	if doc.RelatedUserID != nil {
		relatedID, err := uuid.Parse(*doc.RelatedUserID)
		if err != nil {
			return nil, fmt.Errorf("invalid related user id: %w", err)
		}
		n.RelatedUser = &domain.RelatedUser{ID: relatedID}
		if doc.RelatedUserUsername != nil {
			n.RelatedUser.Username = *doc.RelatedUserUsername
		}
	}
	if doc.RelatedDealID != nil {
		relatedID, err := uuid.Parse(*doc.RelatedDealID)
		if err != nil {
			return nil, fmt.Errorf("invalid related deal id: %w", err)
		}
		n.RelatedDeal = &domain.RelatedDeal{ID: relatedID}
		if doc.RelatedDealTitle != nil {
			n.RelatedDeal.Title = *doc.RelatedDealTitle
		}
	}
	if doc.RelatedCommentID != nil {
		relatedID, err := uuid.Parse(*doc.RelatedCommentID)
		if err != nil {
			return nil, fmt.Errorf("invalid related comment id: %w", err)
		}
		n.RelatedComment = &domain.RelatedComment{ID: relatedID}
	}

	return n, nil
}
