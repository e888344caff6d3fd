// AngelaMos | 2026
// dto.go

package user

import (
	"time"
)

type CreateUserRequest struct {
	Username    string `json:"username"     validate:"required,min=3,max=64,alphanum"`
	DisplayName string `json:"display_name" validate:"omitempty,max=100"`
	Password    string `json:"password"     validate:"required,min=8,max=128"`
	Role        string `json:"role"         validate:"omitempty,oneof=user admin"`
	Rating      int    `json:"rating"       validate:"gte=0,lte=5000"`
}

type ProfileResponse struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
	Rating      int       `json:"rating"`
	CreatedAt   time.Time `json:"created_at"`
}

func ToProfileResponse(u *User) ProfileResponse {
	return ProfileResponse{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		Role:        u.Role,
		Rating:      u.Rating,
		CreatedAt:   u.CreatedAt,
	}
}
