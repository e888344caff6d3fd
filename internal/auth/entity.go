// AngelaMos | 2026
// entity.go

package auth

import (
	"time"
)

// Principal is the claim set a session authenticates. It is owned by the
// user store; this package only reads it.
type Principal struct {
	ID          string
	Username    string
	DisplayName string
	Role        string
	Rating      int
}

// RefreshToken is the persisted half of a token pair. ID is the SHA-256 of
// the opaque value held by the client.
type RefreshToken struct {
	ID                 string     `db:"id"`
	SubjectID          string     `db:"subject_id"`
	BoundAccessTokenID string     `db:"bound_access_token_id"`
	Used               bool       `db:"used"`
	UsedAt             *time.Time `db:"used_at"`
	ExpiresAt          time.Time  `db:"expires_at"`
	CreatedAt          time.Time  `db:"created_at"`
	UserAgent          string     `db:"user_agent"`
	IPAddress          string     `db:"ip_address"`
}

type TokenState int

const (
	TokenActive TokenState = iota
	TokenExpired
	TokenConsumed
)

func (s TokenState) String() string {
	switch s {
	case TokenActive:
		return "active"
	case TokenExpired:
		return "expired"
	case TokenConsumed:
		return "consumed"
	default:
		return "unknown"
	}
}

// Classify reports the state of t at now. Expiry wins over consumption so an
// expired record is never reported as a replay.
func (t *RefreshToken) Classify(now time.Time) TokenState {
	switch {
	case now.After(t.ExpiresAt):
		return TokenExpired
	case t.Used:
		return TokenConsumed
	default:
		return TokenActive
	}
}

// TokenPair is what a successful login or refresh hands back to the HTTP
// layer. RefreshTokenID is the raw opaque value destined for the cookie.
type TokenPair struct {
	AccessToken     string
	AccessTokenID   string
	AccessExpiresAt time.Time
	RefreshTokenID  string
	RefreshExpires  time.Time
	Principal       Principal
}
