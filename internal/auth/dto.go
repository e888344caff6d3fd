// AngelaMos | 2026
// dto.go

package auth

import (
	"time"
)

type LoginRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int       `json:"expires_in"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type UserResponse struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	Rating      int    `json:"rating"`
}

type AuthResponse struct {
	User   UserResponse  `json:"user"`
	Tokens TokenResponse `json:"tokens"`
}

func toAuthResponse(pair *TokenPair, now time.Time) AuthResponse {
	return AuthResponse{
		User: UserResponse{
			ID:          pair.Principal.ID,
			Username:    pair.Principal.Username,
			DisplayName: pair.Principal.DisplayName,
			Role:        pair.Principal.Role,
			Rating:      pair.Principal.Rating,
		},
		Tokens: TokenResponse{
			AccessToken: pair.AccessToken,
			TokenType:   "Bearer",
			ExpiresIn:   int(pair.AccessExpiresAt.Sub(now).Seconds()),
			ExpiresAt:   pair.AccessExpiresAt,
		},
	}
}
