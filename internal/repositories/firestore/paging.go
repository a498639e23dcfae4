package firestore

import (
	"time"

	"cloud.google.com/go/firestore"

	"github.com/pawpal/api/internal/platform/pagination"
)

const maxInValues = 10

// pageWindow converts a requested page size into the fetch limit used to detect a next page.
func pageWindow(size int) (limit, fetch int) {
	limit = pagination.Clamp(size)
	return limit, limit + 1
}

// encodeCreatedCursor produces a page token positioned after (createdAt, id).
func encodeCreatedCursor(createdAt time.Time, id string) (string, error) {
	return pagination.EncodeCursor(pagination.Cursor{CreatedAt: createdAt, ID: id})
}

// applyCreatedCursor decodes token and positions q after it. q must order by createdAt then ID.
func applyCreatedCursor(q firestore.Query, token string) (firestore.Query, error) {
	if token == "" {
		return q, nil
	}
	cursor, err := pagination.DecodeCursor(token)
	if err != nil {
		return q, err
	}
	return q.StartAfter(cursor.CreatedAt, cursor.ID), nil
}

func truncateIn(values []string) []string {
	if len(values) > maxInValues {
		return values[:maxInValues]
	}
	return values
}
