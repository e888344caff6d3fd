// AngelaMos | 2026
// jwt.go

package auth

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jwt"

	"github.com/carterperez-dev/judge/session-backend/internal/config"
	"github.com/carterperez-dev/judge/session-backend/internal/core"
	"github.com/carterperez-dev/judge/session-backend/internal/middleware"
)

const (
	claimType        = "type"
	claimRole        = "role"
	claimUsername    = "preferred_username"
	claimDisplayName = "name"
	claimRating      = "rating"

	tokenTypeAccess = "access"
)

// SignedToken is a compact access token together with the jti embedded in it.
type SignedToken struct {
	Token     string
	JTI       string
	ExpiresAt time.Time
}

// TokenSigner issues access tokens.
type TokenSigner interface {
	Sign(claims Principal, ttl time.Duration) (*SignedToken, error)
}

// JWTSigner holds the ES256 keypair. It is immutable after construction and
// safe for concurrent use.
type JWTSigner struct {
	privateKey jwk.Key
	publicKey  jwk.Key
	publicJWKS jwk.Set
	keyID      string
	config     config.JWTConfig
}

func NewJWTSigner(cfg config.JWTConfig) (*JWTSigner, error) {
	privateKeyPEM, err := os.ReadFile(cfg.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}

	return NewJWTSignerFromPEM(privateKeyPEM, cfg)
}

func NewJWTSignerFromPEM(privateKeyPEM []byte, cfg config.JWTConfig) (*JWTSigner, error) {
	privateKey, err := jwk.ParseKey(privateKeyPEM, jwk.WithPEM(true))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	if setErr := privateKey.Set(jwk.AlgorithmKey, jwa.ES256()); setErr != nil {
		return nil, fmt.Errorf("set algorithm: %w", setErr)
	}

	keyID, err := thumbprintKeyID(privateKey)
	if err != nil {
		return nil, err
	}
	if setErr := privateKey.Set(jwk.KeyIDKey, keyID); setErr != nil {
		return nil, fmt.Errorf("set key id: %w", setErr)
	}

	publicKey, err := privateKey.PublicKey()
	if err != nil {
		return nil, fmt.Errorf("derive public key: %w", err)
	}

	if setErr := publicKey.Set(jwk.KeyUsageKey, "sig"); setErr != nil {
		return nil, fmt.Errorf("set key usage: %w", setErr)
	}

	publicJWKS := jwk.NewSet()
	if addErr := publicJWKS.AddKey(publicKey); addErr != nil {
		return nil, fmt.Errorf("add key to set: %w", addErr)
	}

	return &JWTSigner{
		privateKey: privateKey,
		publicKey:  publicKey,
		publicJWKS: publicJWKS,
		keyID:      keyID,
		config:     cfg,
	}, nil
}

// thumbprintKeyID returns the RFC 7638 SHA-256 thumbprint of key.
func thumbprintKeyID(key jwk.Key) (string, error) {
	sum, err := key.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", fmt.Errorf("thumbprint key: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(sum)[:16], nil
}

func GenerateKeyPair(privateKeyPath, publicKeyPath string) error {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}

	jwkPrivate, err := jwk.Import(privateKey)
	if err != nil {
		return fmt.Errorf("import private key: %w", err)
	}

	privatePEM, err := jwk.Pem(jwkPrivate)
	if err != nil {
		return fmt.Errorf("encode private key: %w", err)
	}

	if writeErr := os.WriteFile(privateKeyPath, privatePEM, 0o600); writeErr != nil {
		return fmt.Errorf("write private key: %w", writeErr)
	}

	if publicKeyPath == "" {
		return nil
	}

	jwkPublic, err := jwkPrivate.PublicKey()
	if err != nil {
		return fmt.Errorf("derive public key: %w", err)
	}

	publicPEM, err := jwk.Pem(jwkPublic)
	if err != nil {
		return fmt.Errorf("encode public key: %w", err)
	}

	//nolint:gosec // G306: public key is intentionally world-readable
	if writeErr := os.WriteFile(publicKeyPath, publicPEM, 0o644); writeErr != nil {
		return fmt.Errorf("write public key: %w", writeErr)
	}

	return nil
}

// Sign builds and signs an access token for claims, valid for ttl from now.
// A fresh jti is generated for every call.
func (m *JWTSigner) Sign(claims Principal, ttl time.Duration) (*SignedToken, error) {
	now := time.Now()
	jti := uuid.New().String()
	expiresAt := now.Add(ttl)

	token, err := jwt.NewBuilder().
		JwtID(jti).
		Issuer(m.config.Issuer).
		Audience([]string{m.config.Audience}).
		Subject(claims.ID).
		IssuedAt(now).
		Expiration(expiresAt).
		NotBefore(now).
		Claim(claimRole, claims.Role).
		Claim(claimUsername, claims.Username).
		Claim(claimDisplayName, claims.DisplayName).
		Claim(claimRating, claims.Rating).
		Claim(claimType, tokenTypeAccess).
		Build()
	if err != nil {
		return nil, fmt.Errorf("build token: %w", err)
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.ES256(), m.privateKey))
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	return &SignedToken{
		Token:     string(signed),
		JTI:       jti,
		ExpiresAt: expiresAt.Truncate(time.Second),
	}, nil
}

// Verify checks signature, issuer, audience and lifetime.
func (m *JWTSigner) Verify(
	_ context.Context,
	tokenString string,
) (*middleware.AccessTokenClaims, error) {
	token, err := jwt.Parse(
		[]byte(tokenString),
		jwt.WithKey(jwa.ES256(), m.publicKey),
		jwt.WithValidate(true),
		jwt.WithIssuer(m.config.Issuer),
		jwt.WithAudience(m.config.Audience),
	)
	if err != nil {
		if errors.Is(err, jwt.TokenExpiredError()) {
			return nil, fmt.Errorf("verify token: %w", core.ErrTokenExpired)
		}
		return nil, fmt.Errorf("verify token: %w", ErrSignatureInvalid)
	}

	return accessClaims(token)
}

// VerifyIgnoringExpiry checks the signature, issuer and audience but accepts
// an expired token. It exists for the refresh endpoint, where the presented
// access token has usually already lapsed and only its jti matters.
func (m *JWTSigner) VerifyIgnoringExpiry(
	tokenString string,
) (*middleware.AccessTokenClaims, error) {
	token, err := jwt.Parse(
		[]byte(tokenString),
		jwt.WithKey(jwa.ES256(), m.publicKey),
		jwt.WithValidate(false),
	)
	if err != nil {
		return nil, fmt.Errorf("verify token: %w", ErrSignatureInvalid)
	}

	if iss, ok := token.Issuer(); !ok || iss != m.config.Issuer {
		return nil, fmt.Errorf("verify token: issuer mismatch: %w", ErrSignatureInvalid)
	}

	aud, _ := token.Audience()
	if !slices.Contains(aud, m.config.Audience) {
		return nil, fmt.Errorf("verify token: audience mismatch: %w", ErrSignatureInvalid)
	}

	return accessClaims(token)
}

func accessClaims(token jwt.Token) (*middleware.AccessTokenClaims, error) {
	var tokenType string
	if err := token.Get(claimType, &tokenType); err != nil ||
		tokenType != tokenTypeAccess {
		return nil, fmt.Errorf(
			"verify token: invalid token type: %w",
			ErrSignatureInvalid,
		)
	}

	subject, ok := token.Subject()
	if !ok || subject == "" {
		return nil, fmt.Errorf(
			"verify token: missing subject: %w",
			ErrSignatureInvalid,
		)
	}

	jti, ok := token.JwtID()
	if !ok || jti == "" {
		return nil, fmt.Errorf(
			"verify token: missing jti: %w",
			ErrSignatureInvalid,
		)
	}

	var role string
	if err := token.Get(claimRole, &role); err != nil {
		return nil, fmt.Errorf(
			"verify token: missing role claim: %w",
			ErrSignatureInvalid,
		)
	}

	// Display attributes are informational; absence is not a verification
	// failure.
	var username, displayName string
	_ = token.Get(claimUsername, &username)       //nolint:errcheck // optional claim
	_ = token.Get(claimDisplayName, &displayName) //nolint:errcheck // optional claim

	var rating float64
	_ = token.Get(claimRating, &rating) //nolint:errcheck // optional claim

	expiresAt, _ := token.Expiration()

	return &middleware.AccessTokenClaims{
		UserID:      subject,
		Username:    username,
		DisplayName: displayName,
		Role:        role,
		Rating:      int(rating),
		TokenID:     jti,
		ExpiresAt:   expiresAt,
	}, nil
}

func (m *JWTSigner) GetJWKSHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "public, max-age=3600")

		if err := json.NewEncoder(w).Encode(m.publicJWKS); err != nil {
			http.Error(
				w,
				"Internal Server Error",
				http.StatusInternalServerError,
			)
			return
		}
	}
}

func (m *JWTSigner) KeyID() string {
	return m.keyID
}

var _ TokenSigner = (*JWTSigner)(nil)
