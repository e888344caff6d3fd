// AngelaMos | 2026
// handler.go

package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/carterperez-dev/judge/session-backend/internal/config"
	"github.com/carterperez-dev/judge/session-backend/internal/core"
	"github.com/carterperez-dev/judge/session-backend/internal/middleware"
)

const sessionEndedMessage = "session is no longer valid, please sign in again"

// RefreshClaimsParser extracts claims from a bearer token whose signature is
// valid but which may already be past its expiry.
type RefreshClaimsParser interface {
	VerifyIgnoringExpiry(token string) (*middleware.AccessTokenClaims, error)
}

type Handler struct {
	service   *Service
	claims    RefreshClaimsParser
	cookie    config.CookieConfig
	validator *validator.Validate
}

func NewHandler(
	service *Service,
	claims RefreshClaimsParser,
	cookie config.CookieConfig,
) *Handler {
	return &Handler{
		service:   service,
		claims:    claims,
		cookie:    cookie,
		validator: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator func(http.Handler) http.Handler,
	limiter func(http.Handler) http.Handler,
) {
	r.Route("/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if limiter != nil {
				r.Use(limiter)
			}
			r.Post("/login", h.Login)
			r.Post("/refresh", h.Refresh)
		})

		r.Group(func(r chi.Router) {
			r.Use(authenticator)
			r.Get("/me", h.GetMe)
			r.Post("/logout", h.Logout)
			r.Post("/logout-all", h.LogoutAll)
		})
	})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	pair, err := h.service.Login(
		r.Context(),
		req.Username,
		req.Password,
		clientInfo(r),
	)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			core.JSONError(w, core.NewAppError(
				ErrInvalidCredentials,
				"invalid username or password",
				http.StatusUnauthorized,
				"INVALID_CREDENTIALS",
			))
			return
		}
		core.InternalServerError(w, err)
		return
	}

	h.setRefreshCookie(w, pair.RefreshTokenID)
	core.OK(w, toAuthResponse(pair, time.Now()))
}

// Refresh takes the refresh token id from the cookie and the jti from the
// bearer access token. All rejections look identical to the client.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(h.cookie.Name)
	if err != nil || cookie.Value == "" {
		h.sessionEnded(w)
		return
	}

	bearer := middleware.ExtractToken(r)
	if bearer == "" {
		h.sessionEnded(w)
		return
	}

	claims, err := h.claims.VerifyIgnoringExpiry(bearer)
	if err != nil {
		h.sessionEnded(w)
		return
	}

	pair, err := h.service.Refresh(
		r.Context(),
		cookie.Value,
		claims.TokenID,
		clientInfo(r),
	)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			h.sessionEnded(w)
			return
		}
		core.InternalServerError(w, err)
		return
	}

	h.setRefreshCookie(w, pair.RefreshTokenID)
	core.OK(w, toAuthResponse(pair, time.Now()))
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r.Context())
	if claims == nil {
		core.Unauthorized(w, "")
		return
	}

	var refreshTokenID string
	if cookie, err := r.Cookie(h.cookie.Name); err == nil {
		refreshTokenID = cookie.Value
	}

	if err := h.service.Logout(r.Context(), refreshTokenID, claims); err != nil {
		if errors.Is(err, core.ErrForbidden) {
			core.Forbidden(w, "cannot revoke another user's session")
			return
		}
		core.InternalServerError(w, err)
		return
	}

	h.clearRefreshCookie(w)
	core.NoContent(w)
}

func (h *Handler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r.Context())
	if claims == nil {
		core.Unauthorized(w, "")
		return
	}

	if _, err := h.service.LogoutAll(r.Context(), claims.UserID); err != nil {
		core.InternalServerError(w, err)
		return
	}

	if err := h.service.Logout(r.Context(), "", claims); err != nil {
		core.InternalServerError(w, err)
		return
	}

	h.clearRefreshCookie(w)
	core.NoContent(w)
}

func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r.Context())
	if claims == nil {
		core.Unauthorized(w, "")
		return
	}

	core.OK(w, UserResponse{
		ID:          claims.UserID,
		Username:    claims.Username,
		DisplayName: claims.DisplayName,
		Role:        claims.Role,
		Rating:      claims.Rating,
	})
}

func (h *Handler) sessionEnded(w http.ResponseWriter) {
	h.clearRefreshCookie(w)
	core.JSONError(w, core.UnauthorizedError(sessionEndedMessage))
}

func (h *Handler) setRefreshCookie(w http.ResponseWriter, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    value,
		Path:     h.cookie.Path,
		Domain:   h.cookie.Domain,
		MaxAge:   int(h.service.RefreshTokenTTL().Seconds()),
		Secure:   h.cookie.Secure,
		HttpOnly: true,
		SameSite: h.cookie.SameSiteMode(),
	})
}

func (h *Handler) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    "",
		Path:     h.cookie.Path,
		Domain:   h.cookie.Domain,
		MaxAge:   -1,
		Secure:   h.cookie.Secure,
		HttpOnly: true,
		SameSite: h.cookie.SameSiteMode(),
	})
}

func clientInfo(r *http.Request) ClientInfo {
	return ClientInfo{
		UserAgent: r.UserAgent(),
		IPAddress: middleware.ClientIP(r),
	}
}
