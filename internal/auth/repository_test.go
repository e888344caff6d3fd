// AngelaMos | 2026
// repository_test.go

package auth

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/judge/session-backend/internal/core"
)

func newMockRepository(t *testing.T) (Repository, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})

	return NewRepository(sqlx.NewDb(db, "pgx")), mock
}

var refreshColumns = []string{
	"id", "subject_id", "bound_access_token_id", "used", "used_at",
	"expires_at", "created_at", "user_agent", "ip_address",
}

func TestRepositoryCreate(t *testing.T) {
	repo, mock := newMockRepository(t)

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	token := &RefreshToken{
		ID:                 "hash-1",
		SubjectID:          alice.principal.ID,
		BoundAccessTokenID: "jti-1",
		ExpiresAt:          created.Add(24 * time.Hour),
		UserAgent:          "curl/8",
		IPAddress:          "10.0.0.1",
	}

	mock.ExpectQuery(`(?s)^\s*INSERT\s+INTO\s+refresh_tokens.*RETURNING\s+created_at\s*$`).
		WithArgs("hash-1", alice.principal.ID, "jti-1", token.ExpiresAt, "curl/8", "10.0.0.1").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(created))

	require.NoError(t, repo.Create(context.Background(), token))
	assert.Equal(t, created, token.CreatedAt)
}

func TestRepositoryFindByID(t *testing.T) {
	repo, mock := newMockRepository(t)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`(?s)^\s*SELECT.+FROM\s+refresh_tokens\s+WHERE\s+id\s*=\s*\$1\s*$`).
		WithArgs("hash-1").
		WillReturnRows(sqlmock.NewRows(refreshColumns).AddRow(
			"hash-1", alice.principal.ID, "jti-1", false, nil,
			now.Add(time.Hour), now, "curl/8", "10.0.0.1",
		))

	got, err := repo.FindByID(context.Background(), "hash-1")
	require.NoError(t, err)
	assert.Equal(t, "jti-1", got.BoundAccessTokenID)
	assert.False(t, got.Used)
	assert.Nil(t, got.UsedAt)
	assert.Equal(t, now.Add(time.Hour), got.ExpiresAt)
}

func TestRepositoryFindByIDNotFound(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(`FROM\s+refresh_tokens`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestRepositoryTryMarkUsed(t *testing.T) {
	const query = `(?s)^\s*UPDATE\s+refresh_tokens\s+SET\s+used\s*=\s*true,\s*used_at\s*=\s*NOW\(\)\s+WHERE\s+id\s*=\s*\$1\s+AND\s+used\s*=\s*false\s*$`

	tests := []struct {
		name     string
		affected int64
		want     bool
	}{
		{name: "flipped", affected: 1, want: true},
		{name: "already used", affected: 0, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newMockRepository(t)

			mock.ExpectExec(query).
				WithArgs("hash-1").
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			got, err := repo.TryMarkUsed(context.Background(), "hash-1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRepositoryTryMarkUsedError(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectExec(`UPDATE\s+refresh_tokens`).
		WithArgs("hash-1").
		WillReturnError(errors.New("conn refused"))

	_, err := repo.TryMarkUsed(context.Background(), "hash-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "conn refused")
}

func TestRepositoryMarkAllUsedForSubject(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectExec(`(?s)UPDATE\s+refresh_tokens.+WHERE\s+subject_id\s*=\s*\$1\s+AND\s+used\s*=\s*false`).
		WithArgs(alice.principal.ID).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.MarkAllUsedForSubject(context.Background(), alice.principal.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestRepositoryDeleteExpired(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectExec(`(?s)DELETE\s+FROM\s+refresh_tokens\s+WHERE\s+expires_at\s*<\s*\$1`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 7))

	n, err := repo.DeleteExpired(context.Background(), 72*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
}
