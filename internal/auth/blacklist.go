// AngelaMos | 2026
// blacklist.go

package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Denylist remembers access token ids that were revoked before their natural
// expiry. Entries live exactly as long as the token they shadow.
type Denylist struct {
	redis *redis.Client
}

func NewDenylist(client *redis.Client) *Denylist {
	return &Denylist{redis: client}
}

func denylistKey(jti string) string {
	return "blacklist:" + jti
}

func (d *Denylist) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}

	if err := d.redis.Set(ctx, denylistKey(jti), "1", ttl).Err(); err != nil {
		return fmt.Errorf("blacklist token: %w", err)
	}

	return nil
}

func (d *Denylist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	exists, err := d.redis.Exists(ctx, denylistKey(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("check blacklist: %w", err)
	}

	return exists > 0, nil
}
