// AngelaMos | 2026
// repository.go

package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/carterperez-dev/judge/session-backend/internal/core"
)

// Repository is the refresh token store. TryMarkUsed must be a single atomic
// conditional write in every implementation; callers rely on it being the
// only point where two redemptions of the same record are serialized.
type Repository interface {
	Create(ctx context.Context, token *RefreshToken) error
	FindByID(ctx context.Context, id string) (*RefreshToken, error)
	// TryMarkUsed flips used from false to true and reports whether this call
	// performed the flip. A missing record reports false.
	TryMarkUsed(ctx context.Context, id string) (bool, error)
	// MarkAllUsedForSubject consumes every unused record of subjectID and
	// returns how many were affected.
	MarkAllUsedForSubject(ctx context.Context, subjectID string) (int64, error)
	// DeleteExpired removes records that expired before now-retention.
	DeleteExpired(ctx context.Context, retention time.Duration) (int64, error)
}

type repository struct {
	db core.DBTX
}

func NewRepository(db core.DBTX) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, token *RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens (
			id, subject_id, bound_access_token_id, expires_at,
			user_agent, ip_address
		) VALUES (
			$1, $2, $3, $4, $5, $6
		)
		RETURNING created_at`

	err := r.db.GetContext(ctx, &token.CreatedAt, query,
		token.ID,
		token.SubjectID,
		token.BoundAccessTokenID,
		token.ExpiresAt,
		token.UserAgent,
		token.IPAddress,
	)
	if err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}

	return nil
}

func (r *repository) FindByID(
	ctx context.Context,
	id string,
) (*RefreshToken, error) {
	query := `
		SELECT
			id, subject_id, bound_access_token_id, used, used_at,
			expires_at, created_at, user_agent, ip_address
		FROM refresh_tokens
		WHERE id = $1`

	var token RefreshToken
	err := r.db.GetContext(ctx, &token, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find refresh token: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find refresh token: %w", err)
	}

	return &token, nil
}

func (r *repository) TryMarkUsed(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE refresh_tokens
		SET used = true, used_at = NOW()
		WHERE id = $1 AND used = false`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("mark refresh token used: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark refresh token used: %w", err)
	}

	return rows == 1, nil
}

func (r *repository) MarkAllUsedForSubject(
	ctx context.Context,
	subjectID string,
) (int64, error) {
	query := `
		UPDATE refresh_tokens
		SET used = true, used_at = NOW()
		WHERE subject_id = $1 AND used = false`

	result, err := r.db.ExecContext(ctx, query, subjectID)
	if err != nil {
		return 0, fmt.Errorf("mark subject tokens used: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark subject tokens used: %w", err)
	}

	return rows, nil
}

func (r *repository) DeleteExpired(
	ctx context.Context,
	retention time.Duration,
) (int64, error) {
	query := `
		DELETE FROM refresh_tokens
		WHERE expires_at < $1`

	cutoff := time.Now().Add(-retention)

	result, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired tokens: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired tokens: %w", err)
	}

	return rows, nil
}
