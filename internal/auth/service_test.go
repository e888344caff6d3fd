// AngelaMos | 2026
// service_test.go

package auth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/judge/session-backend/internal/core"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Now()}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type serviceFixture struct {
	svc   *Service
	repo  Repository
	users *fakeUsers
	clock *testClock
}

func newServiceFixture(t *testing.T, repo Repository, revokeOnReplay bool) *serviceFixture {
	t.Helper()

	users := newFakeUsers(alice, bob)
	clock := newTestClock()
	cfg := testJWTConfig()

	svc := NewService(ServiceConfig{
		Repository:            repo,
		Signer:                newTestSigner(t),
		Users:                 users,
		AccessTokenTTL:        cfg.AccessTokenExpire,
		RefreshTokenTTL:       cfg.RefreshTokenExpire,
		RevokeSubjectOnReplay: revokeOnReplay,
		Clock:                 clock.Now,
	})

	return &serviceFixture{svc: svc, repo: repo, users: users, clock: clock}
}

func (f *serviceFixture) login(t *testing.T, u testUser) *TokenPair {
	t.Helper()

	pair, err := f.svc.Login(context.Background(), u.principal.Username, u.password, ClientInfo{})
	require.NoError(t, err)
	return pair
}

func requireRejected(t *testing.T, err error, want RejectReason) {
	t.Helper()

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnauthorized)

	reason, ok := ReasonOf(err)
	require.True(t, ok, "expected a rejection, got %v", err)
	assert.Equal(t, want, reason)
}

func TestLoginIssuesBoundPair(t *testing.T) {
	repo := newMemRepository()
	f := newServiceFixture(t, repo, true)

	pair := f.login(t, alice)

	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.AccessTokenID)
	assert.NotEmpty(t, pair.RefreshTokenID)
	assert.Equal(t, alice.principal, pair.Principal)

	rec, ok := repo.get(pair.RefreshTokenID)
	require.True(t, ok, "refresh record not stored under its hash")
	assert.Equal(t, alice.principal.ID, rec.SubjectID)
	assert.Equal(t, pair.AccessTokenID, rec.BoundAccessTokenID)
	assert.False(t, rec.Used)
	assert.WithinDuration(t, f.clock.Now().Add(24*time.Hour), rec.ExpiresAt, time.Second)

	_, rawStored := repo.records[pair.RefreshTokenID]
	assert.False(t, rawStored, "raw refresh id must not be a store key")
}

func TestLoginInvalidCredentials(t *testing.T) {
	f := newServiceFixture(t, newMemRepository(), true)
	ctx := context.Background()

	_, wrongPassword := f.svc.Login(ctx, "alice", "wrong-pw", ClientInfo{})
	_, unknownUser := f.svc.Login(ctx, "mallory", "correct-pw", ClientInfo{})

	assert.ErrorIs(t, wrongPassword, ErrInvalidCredentials)
	assert.ErrorIs(t, unknownUser, ErrInvalidCredentials)
	assert.Equal(t, wrongPassword.Error(), unknownUser.Error())
}

func TestRefreshRotates(t *testing.T) {
	repo := newMemRepository()
	f := newServiceFixture(t, repo, true)
	ctx := context.Background()

	p1 := f.login(t, alice)

	p2, err := f.svc.Refresh(ctx, p1.RefreshTokenID, p1.AccessTokenID, ClientInfo{})
	require.NoError(t, err)

	assert.NotEqual(t, p1.RefreshTokenID, p2.RefreshTokenID)
	assert.NotEqual(t, p1.AccessTokenID, p2.AccessTokenID)
	assert.Equal(t, alice.principal.ID, p2.Principal.ID)

	old, _ := repo.get(p1.RefreshTokenID)
	assert.True(t, old.Used)
	require.NotNil(t, old.UsedAt)

	fresh, _ := repo.get(p2.RefreshTokenID)
	assert.False(t, fresh.Used)
	assert.Equal(t, p2.AccessTokenID, fresh.BoundAccessTokenID)
}

func TestRefreshRederivesPrincipal(t *testing.T) {
	f := newServiceFixture(t, newMemRepository(), true)

	p1 := f.login(t, alice)
	f.users.setRating("alice", 1732)

	p2, err := f.svc.Refresh(context.Background(), p1.RefreshTokenID, p1.AccessTokenID, ClientInfo{})
	require.NoError(t, err)
	assert.Equal(t, 1732, p2.Principal.Rating)
}

func TestRefreshReplayRevokesFamily(t *testing.T) {
	repo := newMemRepository()
	f := newServiceFixture(t, repo, true)
	ctx := context.Background()

	p1 := f.login(t, alice)
	other := f.login(t, bob)

	p2, err := f.svc.Refresh(ctx, p1.RefreshTokenID, p1.AccessTokenID, ClientInfo{})
	require.NoError(t, err)

	_, err = f.svc.Refresh(ctx, p1.RefreshTokenID, p1.AccessTokenID, ClientInfo{})
	requireRejected(t, err, ReasonReplayed)

	_, err = f.svc.Refresh(ctx, p2.RefreshTokenID, p2.AccessTokenID, ClientInfo{})
	requireRejected(t, err, ReasonReplayed)

	_, err = f.svc.Refresh(ctx, other.RefreshTokenID, other.AccessTokenID, ClientInfo{})
	assert.NoError(t, err, "containment must not touch other subjects")
}

func TestRefreshReplayWithoutContainment(t *testing.T) {
	f := newServiceFixture(t, newMemRepository(), false)
	ctx := context.Background()

	p1 := f.login(t, alice)

	p2, err := f.svc.Refresh(ctx, p1.RefreshTokenID, p1.AccessTokenID, ClientInfo{})
	require.NoError(t, err)

	_, err = f.svc.Refresh(ctx, p1.RefreshTokenID, p1.AccessTokenID, ClientInfo{})
	requireRejected(t, err, ReasonReplayed)

	_, err = f.svc.Refresh(ctx, p2.RefreshTokenID, p2.AccessTokenID, ClientInfo{})
	assert.NoError(t, err)
}

func TestRefreshBinding(t *testing.T) {
	repo := newMemRepository()
	f := newServiceFixture(t, repo, true)
	ctx := context.Background()

	p1 := f.login(t, alice)
	p2 := f.login(t, alice)

	_, err := f.svc.Refresh(ctx, p1.RefreshTokenID, p2.AccessTokenID, ClientInfo{})
	requireRejected(t, err, ReasonUnbound)

	_, err = f.svc.Refresh(ctx, p1.RefreshTokenID, "", ClientInfo{})
	requireRejected(t, err, ReasonUnbound)

	rec, _ := repo.get(p1.RefreshTokenID)
	assert.False(t, rec.Used, "a binding failure must not consume the record")

	_, err = f.svc.Refresh(ctx, p1.RefreshTokenID, p1.AccessTokenID, ClientInfo{})
	assert.NoError(t, err)
}

func TestRefreshExpired(t *testing.T) {
	repo := newMemRepository()
	f := newServiceFixture(t, repo, true)
	ctx := context.Background()

	t.Run("past expiry", func(t *testing.T) {
		repo.put("expired-raw", RefreshToken{
			SubjectID:          alice.principal.ID,
			BoundAccessTokenID: "jti-expired",
			ExpiresAt:          f.clock.Now().Add(-time.Second),
		})

		_, err := f.svc.Refresh(ctx, "expired-raw", "jti-expired", ClientInfo{})
		requireRejected(t, err, ReasonExpired)

		rec, _ := repo.get("expired-raw")
		assert.False(t, rec.Used)
	})

	t.Run("expired and used is still expired", func(t *testing.T) {
		repo.put("expired-used", RefreshToken{
			SubjectID:          alice.principal.ID,
			BoundAccessTokenID: "jti-used",
			Used:               true,
			ExpiresAt:          f.clock.Now().Add(-time.Minute),
		})

		_, err := f.svc.Refresh(ctx, "expired-used", "jti-used", ClientInfo{})
		requireRejected(t, err, ReasonExpired)
	})

	t.Run("clock passes ttl", func(t *testing.T) {
		pair := f.login(t, bob)
		f.clock.Advance(24*time.Hour + time.Second)

		_, err := f.svc.Refresh(ctx, pair.RefreshTokenID, pair.AccessTokenID, ClientInfo{})
		requireRejected(t, err, ReasonExpired)
	})
}

func TestRefreshUnknownToken(t *testing.T) {
	f := newServiceFixture(t, newMemRepository(), true)

	_, err := f.svc.Refresh(context.Background(), "does-not-exist", "jti", ClientInfo{})
	requireRejected(t, err, ReasonNotFound)
}

func TestRefreshSubjectMissing(t *testing.T) {
	f := newServiceFixture(t, newMemRepository(), true)

	pair := f.login(t, alice)
	f.users.remove("alice")

	_, err := f.svc.Refresh(context.Background(), pair.RefreshTokenID, pair.AccessTokenID, ClientInfo{})
	requireRejected(t, err, ReasonSubjectMissing)
}

func TestRefreshStoreFailureIsNotUnauthorized(t *testing.T) {
	repo := newMemRepository()
	f := newServiceFixture(t, repo, true)

	pair := f.login(t, alice)
	repo.findErr = errors.New("connection reset")

	_, err := f.svc.Refresh(context.Background(), pair.RefreshTokenID, pair.AccessTokenID, ClientInfo{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnauthorized)

	_, isReject := ReasonOf(err)
	assert.False(t, isReject)
}

func TestRefreshConcurrentSingleWinner(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	stores := map[string]func() Repository{
		"memory": func() Repository { return newMemRepository() },
		"redis":  func() Repository { return NewRedisRepository(client, time.Hour) },
	}

	for name, newRepo := range stores {
		t.Run(name, func(t *testing.T) {
			f := newServiceFixture(t, newRepo(), true)
			pair := f.login(t, alice)

			const workers = 16
			var (
				wg        sync.WaitGroup
				successes atomic.Int32
				rejected  atomic.Int32
				start     = make(chan struct{})
			)

			for range workers {
				wg.Add(1)
				go func() {
					defer wg.Done()
					<-start
					_, err := f.svc.Refresh(
						context.Background(),
						pair.RefreshTokenID,
						pair.AccessTokenID,
						ClientInfo{},
					)
					switch {
					case err == nil:
						successes.Add(1)
					case errors.Is(err, ErrUnauthorized):
						rejected.Add(1)
					}
				}()
			}

			close(start)
			wg.Wait()

			assert.Equal(t, int32(1), successes.Load())
			assert.Equal(t, int32(workers-1), rejected.Load())
		})
	}
}

func TestLogout(t *testing.T) {
	repo := newMemRepository()
	f := newServiceFixture(t, repo, true)
	ctx := context.Background()
	signer := newTestSigner(t)

	pair := f.login(t, alice)
	claims := accessClaimsFor(t, signer, alice.principal)

	require.NoError(t, f.svc.Logout(ctx, pair.RefreshTokenID, claims))

	rec, _ := repo.get(pair.RefreshTokenID)
	assert.True(t, rec.Used)

	_, err := f.svc.Refresh(ctx, pair.RefreshTokenID, pair.AccessTokenID, ClientInfo{})
	assert.ErrorIs(t, err, ErrUnauthorized)

	assert.NoError(t, f.svc.Logout(ctx, "unknown", claims))
}

func TestLogoutOtherSubjectForbidden(t *testing.T) {
	f := newServiceFixture(t, newMemRepository(), true)
	signer := newTestSigner(t)

	pair := f.login(t, alice)
	claims := accessClaimsFor(t, signer, bob.principal)

	err := f.svc.Logout(context.Background(), pair.RefreshTokenID, claims)
	assert.ErrorIs(t, err, core.ErrForbidden)
}

func TestLogoutAll(t *testing.T) {
	f := newServiceFixture(t, newMemRepository(), true)
	ctx := context.Background()

	a1 := f.login(t, alice)
	a2 := f.login(t, alice)
	b1 := f.login(t, bob)

	n, err := f.svc.LogoutAll(ctx, alice.principal.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	for _, p := range []*TokenPair{a1, a2} {
		_, err := f.svc.Refresh(ctx, p.RefreshTokenID, p.AccessTokenID, ClientInfo{})
		assert.ErrorIs(t, err, ErrUnauthorized)
	}

	_, err = f.svc.Refresh(ctx, b1.RefreshTokenID, b1.AccessTokenID, ClientInfo{})
	assert.NoError(t, err)
}
