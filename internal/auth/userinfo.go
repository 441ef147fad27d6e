package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// DefaultUserInfoURL is Google's OpenID Connect user-info endpoint.
const DefaultUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"

var (
	// ErrInvalidToken is returned when the identity provider rejects a token.
	ErrInvalidToken = errors.New("invalid or expired token")

	// ErrMissingToken is returned for an empty token.
	ErrMissingToken = errors.New("missing token")
)

// User is the identity behind a bearer token.
type User struct {
	Subject string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// ID returns a stable key for the user, used for rate limiting.
func (u *User) ID() string {
	if u.Subject != "" {
		return u.Subject
	}
	return u.Email
}

// Validator resolves a bearer token to a user.
type Validator interface {
	Validate(ctx context.Context, token string) (*User, error)
}

// UserInfoValidator asks the identity provider's user-info endpoint who a
// token belongs to and caches positive answers by token hash.
type UserInfoValidator struct {
	client *http.Client
	url    string
	cache  *ttlcache.Cache[string, *User]
}

// NewUserInfoValidator creates a validator. A zero cacheTTL disables caching.
func NewUserInfoValidator(client *http.Client, url string, cacheTTL time.Duration) *UserInfoValidator {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if url == "" {
		url = DefaultUserInfoURL
	}

	v := &UserInfoValidator{client: client, url: url}
	if cacheTTL > 0 {
		v.cache = ttlcache.New(
			ttlcache.WithTTL[string, *User](cacheTTL),
			ttlcache.WithDisableTouchOnHit[string, *User](),
		)
		go v.cache.Start()
	}
	return v
}

// Validate implements Validator.
func (v *UserInfoValidator) Validate(ctx context.Context, token string) (*User, error) {
	if token == "" {
		return nil, ErrMissingToken
	}

	key := HashKey(token)
	if v.cache != nil {
		if item := v.cache.Get(key); item != nil {
			return item.Value(), nil
		}
	}

	user, err := v.fetch(ctx, token)
	if err != nil {
		return nil, err
	}

	if v.cache != nil {
		v.cache.Set(key, user, ttlcache.DefaultTTL)
	}
	return user, nil
}

func (v *UserInfoValidator) fetch(ctx context.Context, token string) (*User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build user-info request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: user-info request failed: %w", ErrInvalidToken, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: user-info returned %d: %s", ErrInvalidToken, resp.StatusCode, body)
	}

	var user User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("%w: failed to decode user-info: %w", ErrInvalidToken, err)
	}
	if user.ID() == "" {
		return nil, fmt.Errorf("%w: user-info response has no subject", ErrInvalidToken)
	}
	return &user, nil
}

// Close stops the cache janitor.
func (v *UserInfoValidator) Close() {
	if v.cache != nil {
		v.cache.Stop()
	}
}
