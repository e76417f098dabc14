package mongo

import (
	"context"
	"time"

	"github.com/yoockh/yoscreen/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const PaymentEventsCollection = "payment_events"

type PaymentEventRepository interface {
	Insert(ctx context.Context, e *models.PaymentEvent) error
	// ListBySubject returns events for a session id or a test id, newest first.
	ListBySubject(ctx context.Context, sessionID, testID string, limit int64) ([]models.PaymentEvent, error)
}

type paymentEventRepo struct {
	col *mongo.Collection
}

func NewPaymentEventRepo(db *mongo.Database) PaymentEventRepository {
	return &paymentEventRepo{col: db.Collection(PaymentEventsCollection)}
}

func (r *paymentEventRepo) Insert(ctx context.Context, e *models.PaymentEvent) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := r.col.InsertOne(ctx, e)
	return err
}

func (r *paymentEventRepo) ListBySubject(ctx context.Context, sessionID, testID string, limit int64) ([]models.PaymentEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	filter := bson.M{}
	if sessionID != "" {
		filter["session_id"] = sessionID
	}
	if testID != "" {
		filter["test_id"] = testID
	}

	cur, err := r.col.Find(ctx, filter,
		options.Find().
			SetSort(bson.D{{Key: "created_at", Value: -1}}).
			SetLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.PaymentEvent
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
