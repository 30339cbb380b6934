package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/desertthunder/dird/internal/shared"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingVerifier struct {
	next  Verifier
	calls int
}

func (v *countingVerifier) Verify(ctx context.Context, token string) (*TokenInfo, error) {
	v.calls++
	return v.next.Verify(ctx, token)
}

type brokenVerifier struct{}

func (brokenVerifier) Verify(context.Context, string) (*TokenInfo, error) {
	return nil, errors.New("auth server unreachable")
}

var staticTokens = []shared.TokenConfig{
	{Token: "t-alice", UserUUID: "alice", TenantUUID: "tenant-a", External: map[string]string{"microsoft": "ms-token"}},
	{Token: "", UserUUID: "nobody"},
}

func TestStaticVerifier(t *testing.T) {
	ctx := context.Background()
	v := NewStaticVerifier(staticTokens)

	t.Run("known token", func(t *testing.T) {
		info, err := v.Verify(ctx, "t-alice")
		require.NoError(t, err)
		assert.Equal(t, "alice", info.UserUUID)
		assert.Equal(t, "tenant-a", info.TenantUUID)
		assert.Equal(t, "ms-token", info.External["microsoft"])
	})

	t.Run("unknown and empty tokens", func(t *testing.T) {
		_, err := v.Verify(ctx, "t-bob")
		assert.ErrorIs(t, err, shared.ErrUnauthorized)

		_, err = v.Verify(ctx, "")
		assert.ErrorIs(t, err, shared.ErrUnauthorized)
	})
}

func TestJWTVerifier(t *testing.T) {
	ctx := context.Background()
	v := NewJWTVerifier("s3cret")

	t.Run("Issue & Verify", func(t *testing.T) {
		token, err := v.Issue(TokenInfo{UserUUID: "alice", TenantUUID: "tenant-a"}, time.Minute)
		require.NoError(t, err)

		info, err := v.Verify(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, "alice", info.UserUUID)
		assert.Equal(t, "tenant-a", info.TenantUUID)
		assert.Equal(t, token, info.Token)
	})

	t.Run("wrong secret", func(t *testing.T) {
		token, err := NewJWTVerifier("other").Issue(TokenInfo{UserUUID: "alice"}, 0)
		require.NoError(t, err)

		_, err = v.Verify(ctx, token)
		assert.ErrorIs(t, err, shared.ErrUnauthorized)
	})

	t.Run("expired", func(t *testing.T) {
		claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "alice",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		}}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("s3cret"))
		require.NoError(t, err)

		_, err = v.Verify(ctx, token)
		assert.ErrorIs(t, err, shared.ErrUnauthorized)
	})

	t.Run("unsigned algorithm", func(t *testing.T) {
		claims := Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "alice"}}
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = v.Verify(ctx, token)
		assert.ErrorIs(t, err, shared.ErrUnauthorized)
	})

	t.Run("missing subject", func(t *testing.T) {
		token, err := v.Issue(TokenInfo{TenantUUID: "tenant-a"}, 0)
		require.NoError(t, err)

		_, err = v.Verify(ctx, token)
		assert.ErrorIs(t, err, shared.ErrUnauthorized)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := v.Verify(ctx, "not-a-jwt")
		assert.ErrorIs(t, err, shared.ErrUnauthorized)
	})
}

func TestChain(t *testing.T) {
	ctx := context.Background()
	jwtVerifier := NewJWTVerifier("s3cret")
	chain := Chain{NewStaticVerifier(staticTokens), jwtVerifier}

	t.Run("first accepting verifier wins", func(t *testing.T) {
		info, err := chain.Verify(ctx, "t-alice")
		require.NoError(t, err)
		assert.Equal(t, "alice", info.UserUUID)

		token, err := jwtVerifier.Issue(TokenInfo{UserUUID: "bob"}, time.Minute)
		require.NoError(t, err)
		info, err = chain.Verify(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, "bob", info.UserUUID)
	})

	t.Run("rejected everywhere", func(t *testing.T) {
		_, err := chain.Verify(ctx, "nope")
		assert.ErrorIs(t, err, shared.ErrUnauthorized)
	})

	t.Run("verifier failure is reported", func(t *testing.T) {
		_, err := Chain{brokenVerifier{}, NewStaticVerifier(nil)}.Verify(ctx, "nope")
		require.Error(t, err)
		assert.NotErrorIs(t, err, shared.ErrUnauthorized)
	})
}

func TestCachedVerifier(t *testing.T) {
	ctx := context.Background()

	t.Run("accepted tokens are cached", func(t *testing.T) {
		counting := &countingVerifier{next: NewStaticVerifier(staticTokens)}
		v := NewCachedVerifier(counting, 8, time.Minute)

		for range 3 {
			info, err := v.Verify(ctx, "t-alice")
			require.NoError(t, err)
			assert.Equal(t, "alice", info.UserUUID)
		}
		assert.Equal(t, 1, counting.calls)
		assert.Equal(t, 1, v.Len())
	})

	t.Run("rejections are not cached", func(t *testing.T) {
		counting := &countingVerifier{next: NewStaticVerifier(staticTokens)}
		v := NewCachedVerifier(counting, 8, time.Minute)

		for range 2 {
			_, err := v.Verify(ctx, "nope")
			assert.ErrorIs(t, err, shared.ErrUnauthorized)
		}
		assert.Equal(t, 2, counting.calls)
		assert.Zero(t, v.Len())
	})

	t.Run("entries expire", func(t *testing.T) {
		counting := &countingVerifier{next: NewStaticVerifier(staticTokens)}
		v := NewCachedVerifier(counting, 8, 20*time.Millisecond)

		_, err := v.Verify(ctx, "t-alice")
		require.NoError(t, err)
		time.Sleep(60 * time.Millisecond)
		_, err = v.Verify(ctx, "t-alice")
		require.NoError(t, err)
		assert.Equal(t, 2, counting.calls)
	})
}

func TestFromConfig(t *testing.T) {
	ctx := context.Background()

	t.Run("static only", func(t *testing.T) {
		v := FromConfig(shared.AuthConfig{Tokens: staticTokens})
		_, err := v.Verify(ctx, "t-alice")
		assert.NoError(t, err)
		assert.IsType(t, Chain{}, v)
	})

	t.Run("jwt behind cache", func(t *testing.T) {
		v := FromConfig(shared.AuthConfig{JWTSecret: "s3cret", CacheSize: 4, CacheTTL: time.Minute})
		require.IsType(t, &CachedVerifier{}, v)

		token, err := NewJWTVerifier("s3cret").Issue(TokenInfo{UserUUID: "carol"}, time.Minute)
		require.NoError(t, err)
		info, err := v.Verify(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, "carol", info.UserUUID)
	})
}
