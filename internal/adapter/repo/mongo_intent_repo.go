package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/aq2208/orders-service/internal/apperr"
	domain "github.com/aq2208/orders-service/internal/entity"
)

const intentsCollection = "saga_intents"

// MongoIntentRepo records saga intents ahead of their first external side
// effect. The reconciliation sweep reads back intents stuck in STOCK_REDUCED
// after a crash.
type MongoIntentRepo struct {
	col *mongo.Collection
}

func NewMongoIntentRepo(db *mongo.Database) *MongoIntentRepo {
	return &MongoIntentRepo{col: db.Collection(intentsCollection)}
}

type intentDoc struct {
	ID          string                   `bson:"_id"`
	OrderID     string                   `bson:"orderId"`
	Adjustments []domain.StockAdjustment `bson:"adjustments"`
	State       string                   `bson:"state"`
	CreatedAt   time.Time                `bson:"createdAt"`
	UpdatedAt   time.Time                `bson:"updatedAt"`
}

func (r *MongoIntentRepo) Create(ctx context.Context, orderID string, adjustments []domain.StockAdjustment) (*domain.SagaIntent, error) {
	now := time.Now().UTC()
	intent := &domain.SagaIntent{
		ID:          uuid.NewString(),
		OrderID:     orderID,
		Adjustments: adjustments,
		State:       domain.IntentPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	doc := intentDoc{
		ID:          intent.ID,
		OrderID:     intent.OrderID,
		Adjustments: intent.Adjustments,
		State:       string(intent.State),
		CreatedAt:   intent.CreatedAt,
		UpdatedAt:   intent.UpdatedAt,
	}
	if _, err := r.col.InsertOne(ctx, doc); err != nil {
		return nil, apperr.Wrap(apperr.KindPersistenceFailed, "saga intent insert failed", err)
	}
	return intent, nil
}

func (r *MongoIntentRepo) MarkState(ctx context.Context, intentID string, state domain.SagaIntentState) error {
	_, err := r.col.UpdateOne(ctx, bson.M{"_id": intentID},
		bson.M{"$set": bson.M{"state": string(state), "updatedAt": time.Now().UTC()}})
	if err != nil {
		return apperr.Wrap(apperr.KindPersistenceFailed, "saga intent update failed", err)
	}
	return nil
}

// Complete removes the intent; a completed saga leaves nothing to reconcile.
func (r *MongoIntentRepo) Complete(ctx context.Context, intentID string) error {
	if _, err := r.col.DeleteOne(ctx, bson.M{"_id": intentID}); err != nil {
		return apperr.Wrap(apperr.KindPersistenceFailed, "saga intent delete failed", err)
	}
	return nil
}

// ListStuck returns intents whose stock was reduced but whose saga never
// finished, older than the cutoff.
func (r *MongoIntentRepo) ListStuck(ctx context.Context, olderThan time.Time) ([]domain.SagaIntent, error) {
	cur, err := r.col.Find(ctx, bson.M{
		"state":     string(domain.IntentStockReduced),
		"updatedAt": bson.M{"$lt": olderThan.UTC()},
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistenceFailed, "saga intent query failed", err)
	}
	defer cur.Close(ctx)

	var out []domain.SagaIntent
	for cur.Next(ctx) {
		var doc intentDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, apperr.Wrap(apperr.KindPersistenceFailed, "saga intent decode failed", err)
		}
		out = append(out, domain.SagaIntent{
			ID:          doc.ID,
			OrderID:     doc.OrderID,
			Adjustments: doc.Adjustments,
			State:       domain.SagaIntentState(doc.State),
			CreatedAt:   doc.CreatedAt,
			UpdatedAt:   doc.UpdatedAt,
		})
	}
	if err := cur.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindPersistenceFailed, "saga intent query failed", err)
	}
	return out, nil
}
