package repository

import (
	"context"
	"time"

	"roomchat/internal/model"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	auditCollection = "audit_events"
	// Audit entries outlive the monthly wipe by a little.
	auditRetention = 40 * 24 * time.Hour
	maxAuditLimit  = 500
)

type AuditRepo interface {
	Insert(ctx context.Context, event *model.AuditEvent) error
	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, limit int64) ([]model.AuditEvent, error)
	EnsureIndexes(ctx context.Context) error
}

type auditRepo struct {
	collection *mongo.Collection
}

func NewAuditRepo(db *mongo.Database) AuditRepo {
	return &auditRepo{
		collection: db.Collection(auditCollection),
	}
}

func (r *auditRepo) Insert(ctx context.Context, event *model.AuditEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	_, err := r.collection.InsertOne(ctx, event)
	return err
}

func (r *auditRepo) Recent(ctx context.Context, limit int64) ([]model.AuditEvent, error) {
	if limit <= 0 || limit > maxAuditLimit {
		limit = maxAuditLimit
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetLimit(limit)

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	events := []model.AuditEvent{}
	if err := cursor.All(ctx, &events); err != nil {
		return nil, err
	}
	return events, nil
}

func (r *auditRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "createdAt", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(auditRetention / time.Second)),
		},
		{
			Keys: bson.D{{Key: "sessionId", Value: 1}, {Key: "createdAt", Value: -1}},
		},
	})
	return err
}
