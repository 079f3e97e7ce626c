package option

import (
	"fmt"
	"regexp"
	"strings"

	"medvive-settlement/pkg/db/pagination"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// QueryOption decorates a query built by the repository.
type QueryOption func(*gorm.DB) *gorm.DB

type Operator string

const (
	EQ  Operator = "="
	NEQ Operator = "<>"
	GT  Operator = ">"
	GTE Operator = ">="
	LT  Operator = "<"
	LTE Operator = "<="
	IN  Operator = "IN"
)

type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

type QuerySortBy struct {
	SortBy  string
	OrderBy string
	Allow   map[string]bool
}

var identifier = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// LockingUpdate is a gorm scope that adds SELECT ... FOR UPDATE to every
// read in the session. Dialects without row locking ignore it.
func LockingUpdate(db *gorm.DB) *gorm.DB {
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}

func WithLockingUpdate() QueryOption {
	return LockingUpdate
}

func WithLimit(limit int) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		if limit <= 0 {
			return db
		}
		return db.Limit(limit)
	}
}

func WithSortBy(s QuerySortBy) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		field := s.SortBy
		if field == "" {
			field = "created_at"
		}
		if !identifier.MatchString(field) || (len(s.Allow) > 0 && !s.Allow[field]) {
			_ = db.AddError(fmt.Errorf("sort by %q is not allowed", field))
			return db
		}
		return db.Order(clause.OrderByColumn{
			Column: clause.Column{Name: field},
			Desc:   strings.EqualFold(s.OrderBy, "desc"),
		})
	}
}

func ApplyOperator(conds ...Condition) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		for _, c := range conds {
			if !identifier.MatchString(c.Field) {
				_ = db.AddError(fmt.Errorf("invalid field %q", c.Field))
				return db
			}
			switch c.Operator {
			case EQ, NEQ, GT, GTE, LT, LTE:
				db = db.Where(fmt.Sprintf("%s %s ?", c.Field, c.Operator), c.Value)
			case IN:
				db = db.Where(fmt.Sprintf("%s IN ?", c.Field), c.Value)
			default:
				_ = db.AddError(fmt.Errorf("unsupported operator %q", c.Operator))
				return db
			}
		}
		return db
	}
}

// ApplyPagination limits the result to one row more than requested so the
// caller can tell whether another page exists, and resumes after the cursor
// when one is set. Results are ordered newest first.
func ApplyPagination(p pagination.Pagination) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		if p.Cursor != "" {
			cursor, err := pagination.DecodeCursor(p.Cursor)
			if err != nil {
				_ = db.AddError(fmt.Errorf("invalid cursor: %w", err))
				return db
			}
			db = db.Where("created_at < ? OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
		}
		return db.Order("created_at DESC").Order("id DESC").Limit(p.Size() + 1)
	}
}
