// Package token fetches transport access tokens. A token is scoped to
// one session and one local identity and is fetched fresh for every
// join attempt; tokens are never cached across sessions.
package token

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/voxlink/voxlink/pkg/errors"
)

// Provider fetches a transport token for one join attempt
type Provider interface {
	// FetchToken returns a token granting localID access to sessionID.
	// A failure here is fatal to session setup.
	FetchToken(ctx context.Context, sessionID string, localID uint32) (string, error)
}

// HMACProvider mints short-lived HS256 tokens locally from an API key
// pair, the shape a provider-hosted token endpoint would return
type HMACProvider struct {
	apiKey    string
	apiSecret []byte
	ttl       time.Duration
}

// NewHMACProvider creates a local token provider
func NewHMACProvider(apiKey, apiSecret string, ttl time.Duration) *HMACProvider {
	if ttl <= 0 {
		ttl = time.Minute
	}

	return &HMACProvider{
		apiKey:    apiKey,
		apiSecret: []byte(apiSecret),
		ttl:       ttl,
	}
}

// FetchToken mints a fresh token for one join attempt
func (p *HMACProvider) FetchToken(ctx context.Context, sessionID string, localID uint32) (string, error) {
	if len(p.apiSecret) == 0 {
		return "", errors.New(errors.ErrCodeMissingSecret, "token provider has no API secret")
	}
	if err := ctx.Err(); err != nil {
		return "", errors.NewTokenFetchError(err)
	}

	now := time.Now()

	header := map[string]string{
		"alg": "HS256",
		"typ": "JWT",
	}
	headerJSON, err := json.Marshal(header)
	if err != nil {
		return "", errors.NewTokenFetchError(err)
	}

	claims := map[string]interface{}{
		"iss":        p.apiKey,
		"session_id": sessionID,
		"uid":        localID,
		"iat":        now.Unix(),
		"exp":        now.Add(p.ttl).Unix(),
	}
	claimsJSON, err := json.Marshal(claims)
	if err != nil {
		return "", errors.NewTokenFetchError(err)
	}

	message := base64.RawURLEncoding.EncodeToString(headerJSON) +
		"." + base64.RawURLEncoding.EncodeToString(claimsJSON)

	mac := hmac.New(sha256.New, p.apiSecret)
	mac.Write([]byte(message))
	signature := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))

	return message + "." + signature, nil
}
