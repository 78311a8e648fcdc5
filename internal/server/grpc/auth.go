package grpcserver

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"

	"github.com/and161185/garage-keeper/internal/errs"
	"github.com/and161185/garage-keeper/internal/limiter"
)

// CronSecretHeader carries the shared secret of the sweep trigger.
const CronSecretHeader = "x-cron-secret"

// limiterScope keys sweep trigger failures in the limiter.
const limiterScope = "cron"

// Authenticator verifies user bearer tokens and the cron shared secret.
type Authenticator struct {
	signKey    []byte
	cronSecret []byte
	limiter    limiter.Limiter
}

// NewAuthenticator builds an Authenticator. An empty cronSecret rejects every sweep call.
func NewAuthenticator(signKey []byte, cronSecret string) *Authenticator {
	return &Authenticator{signKey: signKey, cronSecret: []byte(cronSecret)}
}

// WithLimiter locks out clients that keep sending a wrong cron secret.
func (a *Authenticator) WithLimiter(l limiter.Limiter) *Authenticator {
	a.limiter = l
	return a
}

// UserID extracts "authorization: Bearer <JWT>", verifies HS256 and returns sub as UUID.
func (a *Authenticator) UserID(ctx context.Context) (uuid.UUID, error) {
	tok, err := bearerTokenFromMD(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", errs.ErrUnauthorized, err)
	}
	return a.VerifyToken(tok)
}

// VerifyToken validates a raw JWT and returns its subject.
func (a *Authenticator) VerifyToken(tok string) (uuid.UUID, error) {
	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(tok, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return a.signKey, nil
	}, jwt.WithLeeway(30*time.Second))
	if err != nil || !parsed.Valid {
		return uuid.Nil, fmt.Errorf("%w: invalid token", errs.ErrUnauthorized)
	}

	id, err := uuid.FromString(claims.Subject)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%w: bad subject", errs.ErrUnauthorized)
	}
	return id, nil
}

// CheckCronSecret compares the x-cron-secret metadata in constant time.
// "authorization: Bearer <secret>" is accepted too.
func (a *Authenticator) CheckCronSecret(ctx context.Context) error {
	md, _ := metadata.FromIncomingContext(ctx)
	candidates := md.Get(CronSecretHeader)
	if tok, err := bearerTokenFromMD(ctx); err == nil {
		candidates = append(candidates, tok)
	}
	var client string
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		client = p.Addr.String()
	}
	return a.CheckSecret(ctx, client, candidates...)
}

// CheckSecret accepts the call when any candidate equals the cron secret.
// With a limiter set, a locked client gets ErrLocked without the candidates
// being compared.
func (a *Authenticator) CheckSecret(ctx context.Context, client string, candidates ...string) error {
	var key []byte
	if a.limiter != nil {
		key = limiter.ClientKey(client)
		ok, left, err := a.limiter.Allow(ctx, limiterScope, key)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: retry in %s", errs.ErrLocked, left.Round(time.Second))
		}
	}

	for _, c := range candidates {
		if a.SecretMatches(strings.TrimSpace(c)) {
			if a.limiter != nil {
				return a.limiter.Success(ctx, limiterScope, key)
			}
			return nil
		}
	}

	if a.limiter != nil {
		if _, _, err := a.limiter.Failure(ctx, limiterScope, key); err != nil {
			return errors.Join(fmt.Errorf("%w: bad cron secret", errs.ErrUnauthorized), err)
		}
	}
	return fmt.Errorf("%w: bad cron secret", errs.ErrUnauthorized)
}

// SecretMatches reports whether got equals the configured cron secret.
func (a *Authenticator) SecretMatches(got string) bool {
	if len(a.cronSecret) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), a.cronSecret) == 1
}

func bearerTokenFromMD(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", errors.New("no metadata")
	}
	for _, v := range md.Get("authorization") {
		if t, ok := BearerToken(v); ok {
			return t, nil
		}
	}
	return "", errors.New("no bearer token")
}

// BearerToken extracts the token of an "Authorization: Bearer <token>" value.
func BearerToken(header string) (string, bool) {
	v := strings.TrimSpace(header)
	if len(v) < 7 || !strings.EqualFold(v[:7], "bearer ") {
		return "", false
	}
	t := strings.TrimSpace(v[7:])
	return t, t != ""
}
