// Package credential supplies the bearer token presented when the real-time channel is opened.
// A token is requested for every connection attempt and never cached here, since the session
// behind it may rotate between attempts.
package credential

import (
	"context"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// ErrUnavailable means no usable token exists right now.
var ErrUnavailable = errors.New("credential unavailable")

type Provider interface {
	Credential(ctx context.Context) (string, error)
}

type ProviderFunc func(ctx context.Context) (string, error)

func (f ProviderFunc) Credential(ctx context.Context) (string, error) {
	return f(ctx)
}

// Fetch asks p for a token and folds every failure mode (nil provider, provider error, empty
// token) into an error wrapping ErrUnavailable.
func Fetch(ctx context.Context, p Provider) (string, error) {
	if p == nil {
		return "", errors.Wrap(ErrUnavailable, "no provider")
	}
	token, err := p.Credential(ctx)
	if err != nil {
		if errors.Is(err, ErrUnavailable) {
			return "", err
		}
		return "", errors.Wrapf(ErrUnavailable, "%v", err)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errors.Wrap(ErrUnavailable, "empty token")
	}
	return token, nil
}

func Static(token string) Provider {
	return ProviderFunc(func(context.Context) (string, error) {
		if token == "" {
			return "", ErrUnavailable
		}
		return token, nil
	})
}

// Env reads the named environment variable on every call.
func Env(name string) Provider {
	return ProviderFunc(func(context.Context) (string, error) {
		token, ok := os.LookupEnv(name)
		if !ok || token == "" {
			return "", errors.Wrapf(ErrUnavailable, "%s is not set", name)
		}
		return token, nil
	})
}
