package pagination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type row struct {
	id string
	at time.Time
}

func TestPage(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := []*row{{"3", at}, {"2", at}, {"1", at}}
	cursorOf := func(r *row) Cursor { return Cursor{CreatedAt: r.at, ID: r.id} }

	page, info := Page(rows, Pagination{Limit: 2}, cursorOf)
	require.Len(t, page, 2)
	require.True(t, info.HasMore)

	c, err := DecodeCursor(info.NextCursor)
	require.NoError(t, err)
	require.Equal(t, "2", c.ID)
	require.True(t, at.Equal(c.CreatedAt))

	page, info = Page(rows, Pagination{Limit: 5}, cursorOf)
	require.Len(t, page, 3)
	require.False(t, info.HasMore)
	require.Empty(t, info.NextCursor)

	_, err = DecodeCursor("%%%")
	require.Error(t, err)
}

func TestSize(t *testing.T) {
	require.Equal(t, DefaultLimit, Pagination{}.Size())
	require.Equal(t, MaxLimit, Pagination{Limit: 1000}.Size())
	require.Equal(t, 7, Pagination{Limit: 7}.Size())
}
