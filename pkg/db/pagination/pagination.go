package pagination

import (
	"encoding/base64"
	"encoding/json"
	"time"
)

const (
	DefaultLimit = 10
	MaxLimit     = 250
)

type Pagination struct {
	Cursor string `form:"cursor"`
	Limit  int    `form:"limit,default=10" binding:"omitempty,gte=1,lte=250"`
}

// Size is the effective page size.
func (p Pagination) Size() int {
	switch {
	case p.Limit <= 0:
		return DefaultLimit
	case p.Limit > MaxLimit:
		return MaxLimit
	default:
		return p.Limit
	}
}

// Cursor points just past the last row of a page in created_at, id order.
type Cursor struct {
	CreatedAt time.Time `json:"t"`
	ID        string    `json:"id"`
}

type PageInfo struct {
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}

func (c Cursor) Encode() string {
	b, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(b)
}

func DecodeCursor(s string) (*Cursor, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	var c Cursor
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// Page trims rows fetched with Size()+1 and returns the cursor for the next
// page when more rows exist.
func Page[T any](rows []*T, p Pagination, cursorOf func(*T) Cursor) ([]*T, *PageInfo) {
	size := p.Size()
	if len(rows) <= size {
		return rows, &PageInfo{}
	}
	rows = rows[:size]
	return rows, &PageInfo{HasMore: true, NextCursor: cursorOf(rows[size-1]).Encode()}
}
