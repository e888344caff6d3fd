// AngelaMos | 2026
// redis_repository.go

package auth

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/carterperez-dev/judge/session-backend/internal/core"
)

const (
	fieldSubjectID = "subject_id"
	fieldJTI       = "jti"
	fieldUsed      = "used"
	fieldUsedAt    = "used_at"
	fieldExpiresAt = "expires_at"
	fieldCreatedAt = "created_at"
	fieldUserAgent = "user_agent"
	fieldIPAddress = "ip_address"
)

const tryMarkUsedScript = `
local used = redis.call("HGET", KEYS[1], "used")
if used == "0" then
  redis.call("HSET", KEYS[1], "used", "1", "used_at", ARGV[1])
  return 1
end
return 0
`

// Subject sets may reference hashes Redis has already expired; those members
// are pruned as they are found. Token keys are derived inside the script
// rather than passed in KEYS, so this requires a single Redis node.
const markSubjectUsedScript = `
local ids = redis.call("SMEMBERS", KEYS[1])
local n = 0
for _, id in ipairs(ids) do
  local key = ARGV[1] .. id
  local used = redis.call("HGET", key, "used")
  if used == "0" then
    redis.call("HSET", key, "used", "1", "used_at", ARGV[2])
    n = n + 1
  elseif not used then
    redis.call("SREM", KEYS[1], id)
  end
end
return n
`

var (
	tryMarkUsedLua     = redis.NewScript(tryMarkUsedScript)
	markSubjectUsedLua = redis.NewScript(markSubjectUsedScript)
)

type redisRepository struct {
	client    *redis.Client
	prefix    string
	retention time.Duration
}

// NewRedisRepository stores refresh tokens as Redis hashes. Redis drops a
// record retention after it expires, which is this backend's form of
// DeleteExpired. The client must address a single node or a primary with
// replicas; Redis Cluster is not supported.
func NewRedisRepository(client *redis.Client, retention time.Duration) Repository {
	return &redisRepository{
		client:    client,
		prefix:    "rt:",
		retention: retention,
	}
}

func (r *redisRepository) tokenKey(id string) string {
	return r.prefix + id
}

func (r *redisRepository) subjectKey(subjectID string) string {
	return r.prefix + "subject:" + subjectID
}

func (r *redisRepository) Create(ctx context.Context, token *RefreshToken) error {
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now()
	}

	key := r.tokenKey(token.ID)
	subjectKey := r.subjectKey(token.SubjectID)
	evictAt := token.ExpiresAt.Add(r.retention)

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, map[string]any{
			fieldSubjectID: token.SubjectID,
			fieldJTI:       token.BoundAccessTokenID,
			fieldUsed:      "0",
			fieldExpiresAt: token.ExpiresAt.UnixMilli(),
			fieldCreatedAt: token.CreatedAt.UnixMilli(),
			fieldUserAgent: token.UserAgent,
			fieldIPAddress: token.IPAddress,
		})
		pipe.PExpireAt(ctx, key, evictAt)
		pipe.SAdd(ctx, subjectKey, token.ID)
		pipe.PExpireAt(ctx, subjectKey, evictAt)
		return nil
	})
	if err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}

	return nil
}

func (r *redisRepository) FindByID(ctx context.Context, id string) (*RefreshToken, error) {
	fields, err := r.client.HGetAll(ctx, r.tokenKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("find refresh token: %w", core.ErrNotFound)
	}

	token := &RefreshToken{
		ID:                 id,
		SubjectID:          fields[fieldSubjectID],
		BoundAccessTokenID: fields[fieldJTI],
		Used:               fields[fieldUsed] == "1",
		UserAgent:          fields[fieldUserAgent],
		IPAddress:          fields[fieldIPAddress],
	}

	if token.ExpiresAt, err = parseMillis(fields[fieldExpiresAt]); err != nil {
		return nil, fmt.Errorf("find refresh token: expires_at: %w", err)
	}
	if token.CreatedAt, err = parseMillis(fields[fieldCreatedAt]); err != nil {
		return nil, fmt.Errorf("find refresh token: created_at: %w", err)
	}
	if raw, ok := fields[fieldUsedAt]; ok && raw != "" {
		usedAt, parseErr := parseMillis(raw)
		if parseErr != nil {
			return nil, fmt.Errorf("find refresh token: used_at: %w", parseErr)
		}
		token.UsedAt = &usedAt
	}

	return token, nil
}

func (r *redisRepository) TryMarkUsed(ctx context.Context, id string) (bool, error) {
	flipped, err := tryMarkUsedLua.Run(
		ctx,
		r.client,
		[]string{r.tokenKey(id)},
		time.Now().UnixMilli(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("mark refresh token used: %w", err)
	}

	return flipped == 1, nil
}

func (r *redisRepository) MarkAllUsedForSubject(
	ctx context.Context,
	subjectID string,
) (int64, error) {
	n, err := markSubjectUsedLua.Run(
		ctx,
		r.client,
		[]string{r.subjectKey(subjectID)},
		r.prefix,
		time.Now().UnixMilli(),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("mark subject tokens used: %w", err)
	}

	return n, nil
}

func (r *redisRepository) DeleteExpired(context.Context, time.Duration) (int64, error) {
	return 0, nil
}

func parseMillis(raw string) (time.Time, error) {
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}
