package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// ErrInvalidState is returned when a callback carries an unknown or reused state.
var ErrInvalidState = errors.New("invalid oauth state")

const stateTTL = 10 * time.Minute

// OAuthConfig holds the client registration with the identity provider.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// Endpoint defaults to Google.
	Endpoint oauth2.Endpoint
}

// Session is the result of a completed login.
type Session struct {
	User        *User
	AccessToken string
	Expiry      time.Time
}

// OAuth runs the authorization-code flow. Issued states are single use.
type OAuth struct {
	config    *oauth2.Config
	validator Validator
	states    *ttlcache.Cache[string, struct{}]
}

// NewOAuth creates the login flow. validator resolves the exchanged token
// to a user.
func NewOAuth(cfg OAuthConfig, validator Validator) *OAuth {
	endpoint := cfg.Endpoint
	if endpoint.AuthURL == "" {
		endpoint = google.Endpoint
	}

	return &OAuth{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       []string{"openid", "email", "profile"},
		},
		validator: validator,
		states:    ttlcache.New(ttlcache.WithTTL[string, struct{}](stateTTL)),
	}
}

// LoginURL returns the provider URL the user is redirected to.
func (o *OAuth) LoginURL() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	state := base64.RawURLEncoding.EncodeToString(buf)
	o.states.DeleteExpired()
	o.states.Set(state, struct{}{}, ttlcache.DefaultTTL)

	return o.config.AuthCodeURL(state, oauth2.AccessTypeOnline), nil
}

// Callback exchanges code for a token and resolves the user.
func (o *OAuth) Callback(ctx context.Context, state, code string) (*Session, error) {
	if state == "" {
		return nil, ErrInvalidState
	}
	// States are single use. Concurrent callbacks race on the removal and
	// only the one that takes the entry may continue.
	if _, ok := o.states.GetAndDelete(state); !ok {
		return nil, ErrInvalidState
	}

	if code == "" {
		return nil, errors.New("missing authorization code")
	}

	token, err := o.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}

	user, err := o.validator.Validate(ctx, token.AccessToken)
	if err != nil {
		return nil, err
	}

	return &Session{
		User:        user,
		AccessToken: token.AccessToken,
		Expiry:      token.Expiry,
	}, nil
}
