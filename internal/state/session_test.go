package state

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/fractal/pkg/models"
)

func TestCreateAndGetSession(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	created := time.Now()
	require.NoError(t, db.CreateSession(ctx, &models.Session{ID: "sess-001", Goal: "poetry", CreatedAt: created}))

	got, err := db.GetSession(ctx, "sess-001")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "poetry", got.Goal)
	assert.True(t, created.Equal(got.CreatedAt))
}

func TestGetSession_NotFound(t *testing.T) {
	db := setupTestDB(t)

	got, err := db.GetSession(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCreateSession_Duplicate(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	s := &models.Session{ID: "dup", Goal: "g", CreatedAt: time.Now()}
	require.NoError(t, db.CreateSession(ctx, s))
	assert.Error(t, db.CreateSession(ctx, s))
}

func TestListSessions(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	base := time.Now()
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, db.CreateSession(ctx, &models.Session{
			ID: id, Goal: "g", CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	all, err := db.ListSessions(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].ID, "newest first")

	two, err := db.ListSessions(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, two, 2)
}
