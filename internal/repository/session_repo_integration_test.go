//go:build integration

package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"tgforward-web/internal/database"
	"tgforward-web/internal/model"
)

func newIntegrationRepo(t *testing.T) *SessionRepository {
	t.Helper()

	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := database.New(ctx, url, 4, 0)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.EnsureSchema(ctx))

	return NewSessionRepository(db.Pool)
}

func TestSessionRepositoryUpsertAndExpiry(t *testing.T) {
	repo := newIntegrationRepo(t)
	ctx := context.Background()

	id := uuid.NewString()
	t.Cleanup(func() { _ = repo.Delete(context.Background(), id) })

	require.NoError(t, repo.Save(ctx, model.SessionRecord{ID: id, Data: []byte("v1"), ExpiresAt: time.Now().Add(time.Hour)}))
	require.NoError(t, repo.Save(ctx, model.SessionRecord{ID: id, Data: []byte("v2"), ExpiresAt: time.Now().Add(time.Hour)}))

	rec, err := repo.Load(ctx, id)
	require.NoError(t, err)
	require.Equal(t, []byte("v2"), rec.Data)

	expired := uuid.NewString()
	require.NoError(t, repo.Save(ctx, model.SessionRecord{ID: expired, Data: []byte("x"), ExpiresAt: time.Now().Add(-time.Minute)}))
	_, err = repo.Load(ctx, expired)
	require.ErrorIs(t, err, model.ErrSessionNotFound)

	n, err := repo.DeleteExpired(ctx)
	require.NoError(t, err)
	require.GreaterOrEqual(t, n, int64(1))

	require.NoError(t, repo.Delete(ctx, id))
	_, err = repo.Load(ctx, id)
	require.ErrorIs(t, err, model.ErrSessionNotFound)
}
