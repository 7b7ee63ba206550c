package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/aq2208/orders-service/internal/apperr"
	domain "github.com/aq2208/orders-service/internal/entity"
)

const ordersCollection = "orders"

// MongoOrderRepo persists orders as single documents. Every operation is one
// call against one document; atomicity across the store and remote stock is
// the orchestrator's job, not this layer's.
type MongoOrderRepo struct {
	col *mongo.Collection
}

func NewMongoOrderRepo(db *mongo.Database) *MongoOrderRepo {
	return &MongoOrderRepo{col: db.Collection(ordersCollection)}
}

type orderDoc struct {
	OrderID   string               `bson:"_id"`
	UserID    string               `bson:"userId"`
	OrderDate time.Time            `bson:"orderDate"`
	Lines     []orderLineDoc       `bson:"lines"`
	Total     primitive.Decimal128 `bson:"total"`
	Version   int64                `bson:"version"`
}

type orderLineDoc struct {
	ProductID string               `bson:"productId"`
	UnitPrice primitive.Decimal128 `bson:"unitPrice"`
	Quantity  int                  `bson:"quantity"`
}

func toOrderDoc(o *domain.Order) (orderDoc, error) {
	total, err := primitive.ParseDecimal128(o.Total.String())
	if err != nil {
		return orderDoc{}, err
	}
	doc := orderDoc{
		OrderID:   o.OrderID,
		UserID:    o.UserID,
		OrderDate: o.OrderDate.UTC(),
		Total:     total,
		Version:   o.Version,
		Lines:     make([]orderLineDoc, 0, len(o.Lines)),
	}
	for _, l := range o.Lines {
		price, err := primitive.ParseDecimal128(l.UnitPrice.String())
		if err != nil {
			return orderDoc{}, err
		}
		doc.Lines = append(doc.Lines, orderLineDoc{
			ProductID: l.ProductID,
			UnitPrice: price,
			Quantity:  l.Quantity,
		})
	}
	return doc, nil
}

func fromOrderDoc(doc orderDoc) (*domain.Order, error) {
	total, err := decimal.NewFromString(doc.Total.String())
	if err != nil {
		return nil, err
	}
	o := &domain.Order{
		OrderID:   doc.OrderID,
		UserID:    doc.UserID,
		OrderDate: doc.OrderDate,
		Total:     total,
		Version:   doc.Version,
		Lines:     make([]domain.OrderLine, 0, len(doc.Lines)),
	}
	for _, l := range doc.Lines {
		price, err := decimal.NewFromString(l.UnitPrice.String())
		if err != nil {
			return nil, err
		}
		o.Lines = append(o.Lines, domain.OrderLine{
			ProductID: l.ProductID,
			UnitPrice: price,
			Quantity:  l.Quantity,
		})
	}
	return o, nil
}

func (r *MongoOrderRepo) GetByID(ctx context.Context, orderID string) (*domain.Order, error) {
	var doc orderDoc
	err := r.col.FindOne(ctx, bson.M{"_id": orderID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.Newf(apperr.KindNotFound, "there is no order with id %s", orderID)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistenceFailed, "order lookup failed", err)
	}
	return fromOrderDoc(doc)
}

// Find returns orders matching the filter, newest order date first, paged.
func (r *MongoOrderRepo) Find(ctx context.Context, f domain.OrderFilter) ([]*domain.Order, error) {
	filter, err := buildOrderFilter(f)
	if err != nil {
		return nil, err
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "orderDate", Value: -1}}).
		SetSkip(int64(f.Page-1) * int64(f.PageSize)).
		SetLimit(int64(f.PageSize))

	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistenceFailed, "order query failed", err)
	}
	defer cur.Close(ctx)

	var out []*domain.Order
	for cur.Next(ctx) {
		var doc orderDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, apperr.Wrap(apperr.KindPersistenceFailed, "order decode failed", err)
		}
		o, err := fromOrderDoc(doc)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindPersistenceFailed, "order decode failed", err)
		}
		out = append(out, o)
	}
	if err := cur.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindPersistenceFailed, "order query failed", err)
	}
	return out, nil
}

func buildOrderFilter(f domain.OrderFilter) (bson.M, error) {
	filter := bson.M{}
	if f.OrderID != nil {
		filter["_id"] = *f.OrderID
	}
	if f.UserID != nil {
		filter["userId"] = *f.UserID
	}
	if f.FromDate != nil || f.ToDate != nil {
		rng := bson.M{}
		if f.FromDate != nil {
			rng["$gte"] = f.FromDate.UTC()
		}
		if f.ToDate != nil {
			rng["$lte"] = f.ToDate.UTC()
		}
		filter["orderDate"] = rng
	}
	if f.MinTotal != nil || f.MaxTotal != nil {
		rng := bson.M{}
		if f.MinTotal != nil {
			min, err := primitive.ParseDecimal128(f.MinTotal.String())
			if err != nil {
				return nil, err
			}
			rng["$gte"] = min
		}
		if f.MaxTotal != nil {
			max, err := primitive.ParseDecimal128(f.MaxTotal.String())
			if err != nil {
				return nil, err
			}
			rng["$lte"] = max
		}
		filter["total"] = rng
	}
	return filter, nil
}

// Create assigns the order identity and inserts the document.
func (r *MongoOrderRepo) Create(ctx context.Context, o *domain.Order) (*domain.Order, error) {
	if o.OrderID == "" {
		o.OrderID = uuid.NewString()
	}
	o.Version = 0
	doc, err := toOrderDoc(o)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistenceFailed, "order encode failed", err)
	}
	if _, err := r.col.InsertOne(ctx, doc); err != nil {
		return nil, apperr.Wrap(apperr.KindPersistenceFailed, "order insert failed", err)
	}
	return o, nil
}

// Replace overwrites the whole document, conditioned on the version the
// caller last read. A concurrent writer surfaces as Conflict, a missing
// document as NotFound; the two are never conflated.
func (r *MongoOrderRepo) Replace(ctx context.Context, o *domain.Order) (*domain.Order, error) {
	next := *o
	next.Version = o.Version + 1
	doc, err := toOrderDoc(&next)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistenceFailed, "order encode failed", err)
	}

	res, err := r.col.ReplaceOne(ctx, bson.M{"_id": o.OrderID, "version": o.Version}, doc)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistenceFailed, "order replace failed", err)
	}
	if res.MatchedCount == 0 {
		n, err := r.col.CountDocuments(ctx, bson.M{"_id": o.OrderID})
		if err != nil {
			return nil, apperr.Wrap(apperr.KindPersistenceFailed, "order replace failed", err)
		}
		if n == 0 {
			return nil, apperr.Newf(apperr.KindNotFound, "there is no order with id %s", o.OrderID)
		}
		return nil, apperr.Newf(apperr.KindConflict,
			"order %s was modified concurrently, reload and retry", o.OrderID)
	}
	return &next, nil
}

// Delete reports whether a document existed; it deliberately does not return
// the deleted entity.
func (r *MongoOrderRepo) Delete(ctx context.Context, orderID string) (bool, error) {
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": orderID})
	if err != nil {
		return false, apperr.Wrap(apperr.KindPersistenceFailed, "order delete failed", err)
	}
	return res.DeletedCount > 0, nil
}
