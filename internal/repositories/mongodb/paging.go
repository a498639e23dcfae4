package mongodb

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domain "github.com/pawpal/api/internal/domain"
	pmongo "github.com/pawpal/api/internal/platform/mongodb"
	"github.com/pawpal/api/internal/platform/pagination"
)

// createdDocument is implemented by documents listed newest first.
type createdDocument interface {
	cursorKey() (time.Time, string)
}

// findPage runs filter sorted by createdAt then _id descending and decodes one page.
func findPage[D createdDocument, T any](ctx context.Context, coll *mongo.Collection, op string, filter bson.M, pager domain.Pagination, decode func(D) T) (domain.CursorPage[T], error) {
	size := pagination.Clamp(pager.PageSize)

	if pager.PageToken != "" {
		cursor, err := pagination.DecodeCursor(pager.PageToken)
		if err != nil {
			return domain.CursorPage[T]{}, err
		}
		filter = afterCursor(filter, cursor)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(size + 1))
	cursor, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return domain.CursorPage[T]{}, pmongo.WrapError(op, err)
	}
	var docs []D
	if err := cursor.All(ctx, &docs); err != nil {
		return domain.CursorPage[T]{}, pmongo.WrapError(op, err)
	}

	page := domain.CursorPage[T]{Items: make([]T, 0, min(len(docs), size))}
	if len(docs) > size {
		createdAt, id := docs[size-1].cursorKey()
		token, err := pagination.EncodeCursor(pagination.Cursor{CreatedAt: createdAt, ID: id})
		if err != nil {
			return domain.CursorPage[T]{}, err
		}
		page.NextPageToken = token
		docs = docs[:size]
	}
	for _, doc := range docs {
		page.Items = append(page.Items, decode(doc))
	}
	return page, nil
}

// afterCursor narrows filter to documents strictly older than cursor in (createdAt, _id) order.
func afterCursor(filter bson.M, cursor pagination.Cursor) bson.M {
	createdAt := cursor.CreatedAt.UTC()
	return bson.M{"$and": bson.A{filter, bson.M{"$or": bson.A{
		bson.M{"createdAt": bson.M{"$lt": createdAt}},
		bson.M{"createdAt": createdAt, "_id": bson.M{"$lt": cursor.ID}},
	}}}}
}

func statusFilter(filter bson.M, statuses []string) {
	switch len(statuses) {
	case 0:
	case 1:
		filter["status"] = statuses[0]
	default:
		filter["status"] = bson.M{"$in": statuses}
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	v := t.UTC()
	return &v
}
