package pagination

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestNormalizeLimit(t *testing.T) {
	require.Equal(t, DefaultLimit, NormalizeLimit(0))
	require.Equal(t, DefaultLimit, NormalizeLimit(-3))
	require.Equal(t, 7, NormalizeLimit(7))
	require.Equal(t, MaxLimit, NormalizeLimit(MaxLimit+1))
}

func TestCursorRoundTrip(t *testing.T) {
	in := Cursor{CreatedAt: time.Date(2026, 2, 3, 4, 5, 6, 7, time.UTC), ID: uuid.New()}
	out, err := ParseCursor(EncodeCursor(in))
	require.NoError(t, err)
	require.True(t, in.CreatedAt.Equal(out.CreatedAt))
	require.Equal(t, in.ID, out.ID)

	empty, err := ParseCursor("  ")
	require.NoError(t, err)
	require.Nil(t, empty)

	_, err = ParseCursor("not-a-cursor!")
	require.Error(t, err)
}

func TestFinish(t *testing.T) {
	type row struct {
		at time.Time
		id uuid.UUID
	}
	key := func(r row) Cursor { return Cursor{CreatedAt: r.at, ID: r.id} }
	rows := []row{{time.Unix(3, 0), uuid.New()}, {time.Unix(2, 0), uuid.New()}, {time.Unix(1, 0), uuid.New()}}

	page := Finish(rows, 2, key)
	require.Len(t, page.Items, 2)
	require.NotEmpty(t, page.NextCursor)
	next, err := ParseCursor(page.NextCursor)
	require.NoError(t, err)
	require.Equal(t, rows[1].id, next.ID)

	last := Finish(rows[2:], 2, key)
	require.Len(t, last.Items, 1)
	require.Empty(t, last.NextCursor)

	none := Finish[row](nil, 2, key)
	require.NotNil(t, none.Items)
}
