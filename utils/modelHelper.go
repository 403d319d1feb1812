package utils

import (
	"context"

	"gorm.io/gorm"
)

// Owned is implemented by rows that belong to a single advocate.
type Owned interface {
	OwnerId() string
}

/* DB fetching */

// FetchOwnedModel loads a row by primary key and checks it belongs to the calling advocate.
// Missing rows give NotFoundError, rows of another advocate give UnauthorizedError.
func FetchOwnedModel[T any, PT interface {
	*T
	Owned
}](ctx context.Context, db *gorm.DB, id int, what string, associations ...string) (*T, error) {
	advocateId, err := RequireAdvocate(ctx)
	if err != nil {
		return nil, err
	}
	result, err := FetchModel[T](ctx, db, id, associations...)
	if err != nil {
		return nil, NotFoundOr(err, what, id)
	}
	if PT(result).OwnerId() != advocateId {
		return nil, NewUnauthorizedError("%s %d belongs to another advocate", what, id)
	}
	return result, nil
}

// FetchModel loads a row by primary key (may return gorm.ErrRecordNotFound).
func FetchModel[T any](ctx context.Context, db *gorm.DB, id int, associations ...string) (*T, error) {
	dbCtx := db.WithContext(ctx)
	for _, field := range associations {
		dbCtx = dbCtx.Preload(field)
	}
	var result T
	if err := dbCtx.First(&result, id).Error; err != nil {
		return nil, err
	}
	return &result, nil
}
