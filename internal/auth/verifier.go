// AngelaMos | 2026
// verifier.go

package auth

import (
	"context"
	"fmt"

	"github.com/carterperez-dev/judge/session-backend/internal/core"
	"github.com/carterperez-dev/judge/session-backend/internal/middleware"
)

// AccessVerifier authenticates bearer tokens on protected routes: signature
// and lifetime via the signer, then the logout denylist.
type AccessVerifier struct {
	signer   *JWTSigner
	denylist *Denylist
}

func NewAccessVerifier(signer *JWTSigner, denylist *Denylist) *AccessVerifier {
	return &AccessVerifier{signer: signer, denylist: denylist}
}

func (v *AccessVerifier) Verify(
	ctx context.Context,
	token string,
) (*middleware.AccessTokenClaims, error) {
	claims, err := v.signer.Verify(ctx, token)
	if err != nil {
		return nil, err
	}

	if v.denylist == nil {
		return claims, nil
	}

	revoked, err := v.denylist.IsRevoked(ctx, claims.TokenID)
	if err != nil {
		// Fail closed.
		return nil, fmt.Errorf("verify token: %w: %w", core.ErrTokenRevoked, err)
	}
	if revoked {
		return nil, fmt.Errorf("verify token: %w", core.ErrTokenRevoked)
	}

	return claims, nil
}

var _ middleware.TokenVerifier = (*AccessVerifier)(nil)
