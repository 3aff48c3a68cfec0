package credential

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// WithExpiryCheck wraps p so that a JWT whose exp claim has passed (allowing leeway) is reported
// as unavailable instead of being sent to the server. Tokens that are not JWTs pass through.
// The signature is not verified; that is the server's job.
func WithExpiryCheck(p Provider, leeway time.Duration) Provider {
	return expiryChecker{p: p, leeway: leeway, now: time.Now}
}

type expiryChecker struct {
	p      Provider
	leeway time.Duration
	now    func() time.Time
}

func (c expiryChecker) Credential(ctx context.Context) (string, error) {
	token, err := c.p.Credential(ctx)
	if err != nil || token == "" {
		return token, err
	}
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return token, nil
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil {
		return "", errors.Wrapf(ErrUnavailable, "unreadable exp claim: %v", err)
	}
	if exp != nil && c.now().After(exp.Time.Add(c.leeway)) {
		return "", errors.Wrapf(ErrUnavailable, "token expired at %s", exp.Time.UTC().Format(time.RFC3339))
	}
	return token, nil
}
