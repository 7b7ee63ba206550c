package repo

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/aq2208/orders-service/internal/apperr"
	domain "github.com/aq2208/orders-service/internal/entity"
)

const productsCollection = "products"

// MongoProjectionRepo holds the local product projection the catalog event
// consumer maintains. All writes are idempotent: applying the same event
// twice leaves the projection unchanged.
type MongoProjectionRepo struct {
	col *mongo.Collection
}

func NewMongoProjectionRepo(db *mongo.Database) *MongoProjectionRepo {
	return &MongoProjectionRepo{col: db.Collection(productsCollection)}
}

type projectionDoc struct {
	ProductID       string               `bson:"_id"`
	Name            string               `bson:"name"`
	Category        string               `bson:"category"`
	UnitPrice       primitive.Decimal128 `bson:"unitPrice"`
	QuantityInStock int                  `bson:"quantityInStock"`
}

func (r *MongoProjectionRepo) Upsert(ctx context.Context, p domain.ProductProjection) error {
	price, err := primitive.ParseDecimal128(p.UnitPrice.String())
	if err != nil {
		return apperr.Wrap(apperr.KindPersistenceFailed, "projection encode failed", err)
	}
	doc := projectionDoc{
		ProductID:       p.ProductID,
		Name:            p.Name,
		Category:        p.Category,
		UnitPrice:       price,
		QuantityInStock: p.QuantityInStock,
	}
	_, err = r.col.ReplaceOne(ctx, bson.M{"_id": p.ProductID}, doc,
		options.Replace().SetUpsert(true))
	if err != nil {
		return apperr.Wrap(apperr.KindPersistenceFailed, "projection upsert failed", err)
	}
	return nil
}

// Delete is a no-op for an unknown id so duplicate deletion events are safe.
func (r *MongoProjectionRepo) Delete(ctx context.Context, productID string) error {
	if _, err := r.col.DeleteOne(ctx, bson.M{"_id": productID}); err != nil {
		return apperr.Wrap(apperr.KindPersistenceFailed, "projection delete failed", err)
	}
	return nil
}

// UpdateStock rewrites only the stock field. An unknown id is a no-op; the
// full create/update event carries the rest of the document.
func (r *MongoProjectionRepo) UpdateStock(ctx context.Context, productID string, quantityInStock int) error {
	_, err := r.col.UpdateOne(ctx, bson.M{"_id": productID},
		bson.M{"$set": bson.M{"quantityInStock": quantityInStock}})
	if err != nil {
		return apperr.Wrap(apperr.KindPersistenceFailed, "projection stock update failed", err)
	}
	return nil
}
