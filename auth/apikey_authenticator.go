package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"strings"
)

type apiKey struct {
	subject string
	digest  [sha256.Size]byte
}

// APIKeyAuthenticator implements authentication using static API keys.
// A key may be configured as "name:secret" to give it a subject name;
// otherwise the subject is "key-<n>" by position.
type APIKeyAuthenticator struct {
	keys []apiKey
}

// NewAPIKeyAuthenticator creates a new API key authenticator
func NewAPIKeyAuthenticator(keys []string) *APIKeyAuthenticator {
	a := &APIKeyAuthenticator{}
	for i, key := range keys {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}

		subject := fmt.Sprintf("key-%d", i+1)
		if name, secret, ok := strings.Cut(key, ":"); ok && name != "" && secret != "" {
			subject, key = name, secret
		}
		a.keys = append(a.keys, apiKey{subject: subject, digest: sha256.Sum256([]byte(key))})
	}
	return a
}

// Authenticate validates a token and returns the subject of the matching key
func (a *APIKeyAuthenticator) Authenticate(ctx context.Context, token string) (string, error) {
	// Remove "Bearer " prefix if present
	token = strings.TrimPrefix(token, "Bearer ")
	token = strings.TrimSpace(token)

	if token == "" {
		return "", ErrAuthenticationFailed
	}

	// Every key is compared so timing does not reveal which one matched
	digest := sha256.Sum256([]byte(token))
	subject := ""
	for _, k := range a.keys {
		if subtle.ConstantTimeCompare(digest[:], k.digest[:]) == 1 {
			subject = k.subject
		}
	}

	if subject == "" {
		return "", ErrAuthenticationFailed
	}
	return subject, nil
}
