package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// SecretProvider resolves the shared secret a webhook caller signs with.
type SecretProvider interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// SecretProviderFunc adapts a function to SecretProvider.
type SecretProviderFunc func(context.Context, string) (string, error)

// GetSecret implements SecretProvider.
func (f SecretProviderFunc) GetSecret(ctx context.Context, name string) (string, error) {
	if f == nil {
		return "", errors.New("auth: secret provider not configured")
	}
	return f(ctx, name)
}

// StaticSecrets maps lowercase caller names to their shared secrets.
type StaticSecrets map[string]string

// GetSecret implements SecretProvider. Lookups ignore case and surrounding space.
func (s StaticSecrets) GetSecret(_ context.Context, name string) (string, error) {
	if secret := s[normalizeCaller(name)]; secret != "" {
		return secret, nil
	}
	return "", fmt.Errorf("auth: no secret configured for %q", name)
}

// CallerResolver names the caller a request claims to come from.
type CallerResolver func(*http.Request) (string, bool)

// CallerFromHeader reads the caller name from header and accepts it only when known has a secret for it.
func CallerFromHeader(header string, known StaticSecrets) CallerResolver {
	return func(r *http.Request) (string, bool) {
		caller := normalizeCaller(r.Header.Get(header))
		if caller == "" || known[caller] == "" {
			return "", false
		}
		return caller, true
	}
}

func normalizeCaller(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
