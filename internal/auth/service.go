// AngelaMos | 2026
// service.go

package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/carterperez-dev/judge/session-backend/internal/core"
	"github.com/carterperez-dev/judge/session-backend/internal/middleware"
)

// CredentialVerifier checks a username/password pair. It must return
// ErrInvalidCredentials for both unknown users and wrong passwords.
type CredentialVerifier interface {
	VerifyCredentials(ctx context.Context, username, password string) (*Principal, error)
}

// PrincipalLoader re-reads a principal so refreshed tokens carry current
// role and rating. Unknown ids yield core.ErrNotFound.
type PrincipalLoader interface {
	PrincipalByID(ctx context.Context, id string) (*Principal, error)
}

type UserProvider interface {
	CredentialVerifier
	PrincipalLoader
}

// ClientInfo is request metadata stored next to a refresh token for audit.
type ClientInfo struct {
	UserAgent string
	IPAddress string
}

type ServiceConfig struct {
	Repository            Repository
	Signer                TokenSigner
	Users                 UserProvider
	Denylist              *Denylist
	AccessTokenTTL        time.Duration
	RefreshTokenTTL       time.Duration
	RevokeSubjectOnReplay bool
	Logger                *slog.Logger
	Clock                 func() time.Time
}

// Service is the session manager. It keeps no mutable state of its own;
// every concurrent-use guarantee comes from Repository.TryMarkUsed.
type Service struct {
	repo                  Repository
	signer                TokenSigner
	users                 UserProvider
	denylist              *Denylist
	accessTTL             time.Duration
	refreshTTL            time.Duration
	revokeSubjectOnReplay bool
	logger                *slog.Logger
	now                   func() time.Time
}

func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Service{
		repo:                  cfg.Repository,
		signer:                cfg.Signer,
		users:                 cfg.Users,
		denylist:              cfg.Denylist,
		accessTTL:             cfg.AccessTokenTTL,
		refreshTTL:            cfg.RefreshTokenTTL,
		revokeSubjectOnReplay: cfg.RevokeSubjectOnReplay,
		logger:                logger.With("component", "session"),
		now:                   clock,
	}
}

func (s *Service) AccessTokenTTL() time.Duration {
	return s.accessTTL
}

func (s *Service) RefreshTokenTTL() time.Duration {
	return s.refreshTTL
}

func (s *Service) Login(
	ctx context.Context,
	username, password string,
	client ClientInfo,
) (*TokenPair, error) {
	principal, err := s.users.VerifyCredentials(ctx, username, password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			s.logger.InfoContext(ctx, "login rejected", "username", username)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("verify credentials: %w", err)
	}

	return s.IssuePair(ctx, *principal, client)
}

// IssuePair signs a new access token and persists the refresh record bound
// to its jti.
func (s *Service) IssuePair(
	ctx context.Context,
	principal Principal,
	client ClientInfo,
) (*TokenPair, error) {
	access, err := s.signer.Sign(principal, s.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("create access token: %w", err)
	}

	rawID, err := core.GenerateOpaqueID()
	if err != nil {
		return nil, fmt.Errorf("create refresh token: %w", err)
	}

	record := &RefreshToken{
		ID:                 core.HashToken(rawID),
		SubjectID:          principal.ID,
		BoundAccessTokenID: access.JTI,
		ExpiresAt:          s.now().Add(s.refreshTTL),
		UserAgent:          client.UserAgent,
		IPAddress:          client.IPAddress,
	}

	if err := s.repo.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	core.AddSpanEvent(ctx, "session.issued",
		attribute.String("subject_id", principal.ID),
	)

	return &TokenPair{
		AccessToken:     access.Token,
		AccessTokenID:   access.JTI,
		AccessExpiresAt: access.ExpiresAt,
		RefreshTokenID:  rawID,
		RefreshExpires:  record.ExpiresAt,
		Principal:       principal,
	}, nil
}

// Refresh redeems refreshTokenID, which must have been issued together with
// the access token identified by presentedJTI. Every rejection is an
// *RejectError wrapping ErrUnauthorized; any other error is an
// infrastructure failure. A failed call must never be retried with the same
// refresh token.
func (s *Service) Refresh(
	ctx context.Context,
	refreshTokenID, presentedJTI string,
	client ClientInfo,
) (*TokenPair, error) {
	ctx, span := core.Tracer().Start(ctx, "session.refresh")
	defer span.End()

	id := core.HashToken(refreshTokenID)

	record, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, s.rejected(ctx, ReasonNotFound, id, "")
		}
		span.SetStatus(codes.Error, "find refresh token")
		return nil, fmt.Errorf("find refresh token: %w", err)
	}

	if subtle.ConstantTimeCompare(
		[]byte(record.BoundAccessTokenID),
		[]byte(presentedJTI),
	) != 1 {
		return nil, s.rejected(ctx, ReasonUnbound, id, record.SubjectID)
	}

	switch record.Classify(s.now()) {
	case TokenExpired:
		return nil, s.rejected(ctx, ReasonExpired, id, record.SubjectID)
	case TokenConsumed:
		return nil, s.replayed(ctx, record)
	case TokenActive:
	}

	flipped, err := s.repo.TryMarkUsed(ctx, id)
	if err != nil {
		span.SetStatus(codes.Error, "mark refresh token used")
		return nil, fmt.Errorf("consume refresh token: %w", err)
	}
	if !flipped {
		// Lost the race to a concurrent redemption of the same record.
		return nil, s.replayed(ctx, record)
	}

	principal, err := s.users.PrincipalByID(ctx, record.SubjectID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, s.rejected(ctx, ReasonSubjectMissing, id, record.SubjectID)
		}
		return nil, fmt.Errorf("load principal: %w", err)
	}

	return s.IssuePair(ctx, *principal, client)
}

func (s *Service) rejected(
	ctx context.Context,
	reason RejectReason,
	id, subjectID string,
) error {
	s.logger.WarnContext(ctx, "refresh rejected",
		"reason", reason,
		"subject_id", subjectID,
		"token", shortID(id),
	)
	core.AddSpanEvent(ctx, "session.refresh_rejected",
		attribute.String("reason", string(reason)),
	)
	return reject(reason)
}

// replayed handles redemption of an already consumed record. The record's
// subject is treated as compromised: every live refresh token it holds is
// consumed so a second stolen copy cannot be redeemed either.
func (s *Service) replayed(ctx context.Context, record *RefreshToken) error {
	s.logger.ErrorContext(ctx, "refresh token replay detected",
		"event", "refresh_token_replay",
		"subject_id", record.SubjectID,
		"token", shortID(record.ID),
	)
	core.AddSpanEvent(ctx, "session.refresh_rejected",
		attribute.String("reason", string(ReasonReplayed)),
	)

	if !s.revokeSubjectOnReplay {
		return reject(ReasonReplayed)
	}

	n, err := s.repo.MarkAllUsedForSubject(ctx, record.SubjectID)
	if err != nil {
		s.logger.ErrorContext(ctx, "replay containment failed",
			"subject_id", record.SubjectID,
			"error", err,
		)
		return reject(ReasonReplayed)
	}

	s.logger.WarnContext(ctx, "subject sessions revoked after replay",
		"subject_id", record.SubjectID,
		"revoked", n,
	)
	core.AddSpanEvent(ctx, "session.replay_contained",
		attribute.String("subject_id", record.SubjectID),
		attribute.Int64("revoked", n),
	)

	return reject(ReasonReplayed)
}

// Logout consumes the caller's refresh token and denylists the access token
// it was presented with. An unknown refresh token is not an error.
func (s *Service) Logout(
	ctx context.Context,
	refreshTokenID string,
	claims *middleware.AccessTokenClaims,
) error {
	if refreshTokenID != "" {
		id := core.HashToken(refreshTokenID)

		record, err := s.repo.FindByID(ctx, id)
		switch {
		case errors.Is(err, core.ErrNotFound):
		case err != nil:
			return fmt.Errorf("find refresh token: %w", err)
		case record.SubjectID != claims.UserID:
			return fmt.Errorf("logout: %w", core.ErrForbidden)
		default:
			if _, err := s.repo.TryMarkUsed(ctx, id); err != nil {
				return fmt.Errorf("consume refresh token: %w", err)
			}
		}
	}

	if s.denylist != nil {
		if err := s.denylist.Revoke(ctx, claims.TokenID, claims.ExpiresAt); err != nil {
			return fmt.Errorf("revoke access token: %w", err)
		}
	}

	return nil
}

// LogoutAll consumes every refresh token of subjectID.
func (s *Service) LogoutAll(ctx context.Context, subjectID string) (int64, error) {
	n, err := s.repo.MarkAllUsedForSubject(ctx, subjectID)
	if err != nil {
		return 0, fmt.Errorf("revoke all sessions: %w", err)
	}
	return n, nil
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
