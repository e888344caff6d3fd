// AngelaMos | 2026
// helpers_test.go

package auth

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/judge/session-backend/internal/config"
	"github.com/carterperez-dev/judge/session-backend/internal/core"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		AccessTokenExpire:  15 * time.Minute,
		RefreshTokenExpire: 24 * time.Hour,
		Issuer:             "judge",
		Audience:           "judge-api",
	}
}

func testPrivateKeyPEM(t *testing.T) []byte {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	jwkKey, err := jwk.Import(key)
	require.NoError(t, err)

	pem, err := jwk.Pem(jwkKey)
	require.NoError(t, err)

	return pem
}

func newTestSigner(t *testing.T) *JWTSigner {
	t.Helper()

	signer, err := NewJWTSignerFromPEM(testPrivateKeyPEM(t), testJWTConfig())
	require.NoError(t, err)

	return signer
}

// memRepository serializes every call behind one mutex, which makes
// TryMarkUsed a compare-and-set the same way the SQL and Lua variants are.
type memRepository struct {
	mu      sync.Mutex
	records map[string]RefreshToken

	findErr error
}

func newMemRepository() *memRepository {
	return &memRepository{records: make(map[string]RefreshToken)}
}

func (m *memRepository) Create(_ context.Context, token *RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.records[token.ID]; exists {
		return fmt.Errorf("create refresh token: %w", core.ErrDuplicateKey)
	}
	token.CreatedAt = time.Now()
	m.records[token.ID] = *token
	return nil
}

func (m *memRepository) FindByID(_ context.Context, id string) (*RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.findErr != nil {
		return nil, m.findErr
	}
	rec, ok := m.records[id]
	if !ok {
		return nil, fmt.Errorf("find refresh token: %w", core.ErrNotFound)
	}
	return &rec, nil
}

func (m *memRepository) TryMarkUsed(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok || rec.Used {
		return false, nil
	}
	now := time.Now()
	rec.Used = true
	rec.UsedAt = &now
	m.records[id] = rec
	return true, nil
}

func (m *memRepository) MarkAllUsedForSubject(_ context.Context, subjectID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	now := time.Now()
	for id, rec := range m.records {
		if rec.SubjectID == subjectID && !rec.Used {
			rec.Used = true
			rec.UsedAt = &now
			m.records[id] = rec
			n++
		}
	}
	return n, nil
}

func (m *memRepository) DeleteExpired(_ context.Context, retention time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	cutoff := time.Now().Add(-retention)
	for id, rec := range m.records {
		if rec.ExpiresAt.Before(cutoff) {
			delete(m.records, id)
			n++
		}
	}
	return n, nil
}

// put stores rec keyed by the hash of rawID, bypassing the service.
func (m *memRepository) put(rawID string, rec RefreshToken) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec.ID = core.HashToken(rawID)
	m.records[rec.ID] = rec
}

func (m *memRepository) get(rawID string) (RefreshToken, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[core.HashToken(rawID)]
	return rec, ok
}

type testUser struct {
	principal Principal
	password  string
}

type fakeUsers struct {
	mu    sync.Mutex
	users map[string]testUser
}

func newFakeUsers(users ...testUser) *fakeUsers {
	f := &fakeUsers{users: make(map[string]testUser)}
	for _, u := range users {
		f.users[u.principal.Username] = u
	}
	return f
}

func (f *fakeUsers) VerifyCredentials(_ context.Context, username, password string) (*Principal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.users[username]
	if !ok || u.password != password {
		return nil, ErrInvalidCredentials
	}
	p := u.principal
	return &p, nil
}

func (f *fakeUsers) PrincipalByID(_ context.Context, id string) (*Principal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, u := range f.users {
		if u.principal.ID == id {
			p := u.principal
			return &p, nil
		}
	}
	return nil, fmt.Errorf("get user: %w", core.ErrNotFound)
}

func (f *fakeUsers) remove(username string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.users, username)
}

func (f *fakeUsers) setRating(username string, rating int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.users[username]
	u.principal.Rating = rating
	f.users[username] = u
}

var alice = testUser{
	principal: Principal{
		ID:          "6f1c2a9e-0d7b-4d43-9a57-3f1e2b8c4d01",
		Username:    "alice",
		DisplayName: "Alice",
		Role:        "user",
		Rating:      1500,
	},
	password: "correct-pw",
}

var bob = testUser{
	principal: Principal{
		ID:          "0b9e4f8a-51c2-4e6a-8d1f-7c3b2a9e6f10",
		Username:    "bob",
		DisplayName: "Bob",
		Role:        "admin",
		Rating:      2100,
	},
	password: "bob-password",
}
