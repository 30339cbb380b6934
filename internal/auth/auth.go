// Package auth resolves caller tokens into the identity lookups run with.
//
// Verifiers:
//   - [StaticVerifier] : tokens provisioned in the configuration file
//   - [JWTVerifier] : HMAC signed JWTs carrying the identity in their claims
//   - [Chain] : first verifier accepting the token wins
//   - [CachedVerifier] : expiring LRU in front of another verifier
//
// A rejected token yields [shared.ErrUnauthorized].
package auth

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/desertthunder/dird/internal/shared"
	"github.com/golang-jwt/jwt/v5"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// TokenInfo is the identity behind a token.
type TokenInfo struct {
	Token      string            `json:"token"`
	UserUUID   string            `json:"user_uuid"`
	TenantUUID string            `json:"tenant_uuid"`
	External   map[string]string `json:"external,omitempty"`
}

// Verifier resolves a token.
type Verifier interface {
	Verify(ctx context.Context, token string) (*TokenInfo, error)
}

// StaticVerifier accepts a fixed set of tokens.
type StaticVerifier struct {
	tokens map[string]TokenInfo
}

// NewStaticVerifier indexes tokens. Entries without a token are ignored.
func NewStaticVerifier(tokens []shared.TokenConfig) *StaticVerifier {
	v := &StaticVerifier{tokens: make(map[string]TokenInfo, len(tokens))}
	for _, t := range tokens {
		if t.Token == "" {
			continue
		}
		v.tokens[t.Token] = TokenInfo{
			Token:      t.Token,
			UserUUID:   t.UserUUID,
			TenantUUID: t.TenantUUID,
			External:   maps.Clone(t.External),
		}
	}
	return v
}

func (v *StaticVerifier) Verify(_ context.Context, token string) (*TokenInfo, error) {
	info, ok := v.tokens[token]
	if !ok {
		return nil, shared.ErrUnauthorized
	}
	return &info, nil
}

// Claims are the JWT claims understood by [JWTVerifier]. The subject is the user uuid.
type Claims struct {
	TenantUUID string            `json:"tenant_uuid"`
	External   map[string]string `json:"external,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier accepts JWTs signed with a shared HMAC secret.
type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

// Verify checks the signature, expiry and subject of token.
func (v *JWTVerifier) Verify(_ context.Context, token string) (*TokenInfo, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrUnauthorized, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: token has no subject", shared.ErrUnauthorized)
	}

	return &TokenInfo{
		Token:      token,
		UserUUID:   claims.Subject,
		TenantUUID: claims.TenantUUID,
		External:   claims.External,
	}, nil
}

// Issue signs a token for info valid for ttl, or forever when ttl is zero.
func (v *JWTVerifier) Issue(info TokenInfo, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		TenantUUID: info.TenantUUID,
		External:   info.External,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  info.UserUUID,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Chain tries each verifier in order.
//
// A token rejected by every verifier yields [shared.ErrUnauthorized]; when a verifier failed for
// another reason, that error is returned instead.
type Chain []Verifier

func (c Chain) Verify(ctx context.Context, token string) (*TokenInfo, error) {
	var failure error
	for _, v := range c {
		info, err := v.Verify(ctx, token)
		if err == nil {
			return info, nil
		}
		if !errors.Is(err, shared.ErrUnauthorized) {
			failure = err
		}
	}
	if failure != nil {
		return nil, failure
	}
	return nil, shared.ErrUnauthorized
}

// CachedVerifier remembers accepted tokens for a while. Rejections are not cached.
type CachedVerifier struct {
	next  Verifier
	cache *expirable.LRU[string, TokenInfo]
}

func NewCachedVerifier(next Verifier, size int, ttl time.Duration) *CachedVerifier {
	return &CachedVerifier{next: next, cache: expirable.NewLRU[string, TokenInfo](size, nil, ttl)}
}

func (v *CachedVerifier) Verify(ctx context.Context, token string) (*TokenInfo, error) {
	if info, ok := v.cache.Get(token); ok {
		return &info, nil
	}
	info, err := v.next.Verify(ctx, token)
	if err != nil {
		return nil, err
	}
	v.cache.Add(token, *info)
	return info, nil
}

// Len returns the number of cached tokens.
func (v *CachedVerifier) Len() int { return v.cache.Len() }

// FromConfig assembles the verifier described by cfg: static tokens, then JWTs when a secret is
// set, behind a cache when cfg.CacheSize is positive.
func FromConfig(cfg shared.AuthConfig) Verifier {
	chain := Chain{NewStaticVerifier(cfg.Tokens)}
	if cfg.JWTSecret != "" {
		chain = append(chain, NewJWTVerifier(cfg.JWTSecret))
	}

	var v Verifier = chain
	if cfg.CacheSize > 0 {
		v = NewCachedVerifier(v, cfg.CacheSize, cfg.CacheTTL)
	}
	return v
}
