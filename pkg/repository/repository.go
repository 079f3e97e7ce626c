package repository

import (
	"context"
	"errors"

	"medvive-settlement/pkg/db/option"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository is the durable store contract shared by every service. FindOne
// returns (nil, nil) when nothing matches.
type Repository[T any] interface {
	WithTrx(tx *gorm.DB) Repository[T]
	Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error)
	FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error)
	Create(ctx context.Context, resource *T) error
	Update(ctx context.Context, id string, resource any) error
	// UpdateIf applies updates to the row identified by id only while every
	// column in expect still holds the given value, and reports how many rows
	// changed. Zero rows means the expectation no longer holds.
	UpdateIf(ctx context.Context, id string, expect map[string]any, updates map[string]any) (int64, error)
	Delete(ctx context.Context, id string) error
	BatchCreate(ctx context.Context, resources []*T) error
	BatchUpdate(ctx context.Context, resources []*T) error
	Count(ctx context.Context, query *T) (int64, error)
}

type store[T any] struct {
	db *gorm.DB
}

func ProvideStore[T any](db *gorm.DB) Repository[T] {
	return &store[T]{db: db}
}

func (s *store[T]) WithTrx(tx *gorm.DB) Repository[T] {
	if tx == nil {
		return s
	}
	return &store[T]{db: tx}
}

func (s *store[T]) query(ctx context.Context, query *T, opts []option.QueryOption) *gorm.DB {
	db := s.db.WithContext(ctx).Model(new(T))
	if query != nil {
		db = db.Where(query)
	}
	for _, opt := range opts {
		db = opt(db)
	}
	return db
}

func (s *store[T]) Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error) {
	var out []*T
	if err := s.query(ctx, query, opts).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *store[T]) FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error) {
	var out T
	err := s.query(ctx, query, opts).Take(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *store[T]) Create(ctx context.Context, resource *T) error {
	return s.db.WithContext(ctx).Create(resource).Error
}

func (s *store[T]) Update(ctx context.Context, id string, resource any) error {
	return s.db.WithContext(ctx).Model(new(T)).
		Where(clause.Eq{Column: clause.PrimaryColumn, Value: id}).
		Updates(resource).Error
}

func (s *store[T]) UpdateIf(ctx context.Context, id string, expect map[string]any, updates map[string]any) (int64, error) {
	db := s.db.WithContext(ctx).Model(new(T)).
		Where(clause.Eq{Column: clause.PrimaryColumn, Value: id})
	for column, value := range expect {
		switch v := value.(type) {
		case []string:
			db = db.Where(clause.IN{Column: clause.Column{Name: column}, Values: toAny(v)})
		default:
			db = db.Where(clause.Eq{Column: clause.Column{Name: column}, Value: v})
		}
	}
	res := db.Updates(updates)
	return res.RowsAffected, res.Error
}

func (s *store[T]) Delete(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).
		Where(clause.Eq{Column: clause.PrimaryColumn, Value: id}).
		Delete(new(T)).Error
}

func (s *store[T]) BatchCreate(ctx context.Context, resources []*T) error {
	if len(resources) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).CreateInBatches(resources, 100).Error
}

func (s *store[T]) BatchUpdate(ctx context.Context, resources []*T) error {
	if len(resources) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, r := range resources {
			if err := tx.Save(r).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *store[T]) Count(ctx context.Context, query *T) (int64, error) {
	var n int64
	err := s.query(ctx, query, nil).Count(&n).Error
	return n, err
}

func toAny[V any](in []V) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}
