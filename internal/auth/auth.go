// Package auth resolves bearer tokens to users through an external service.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidToken means the service rejected the token.
	ErrInvalidToken = errors.New("auth: invalid token")

	// ErrUnavailable means the service could not give an answer.
	ErrUnavailable = errors.New("auth: unavailable")
)

// Identity is the user a token belongs to.
type Identity struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}

// Validator resolves tokens to identities.
type Validator interface {
	Validate(ctx context.Context, token string) (*Identity, error)
}

// HTTPValidator posts tokens to an external endpoint.
//
//	POST <url> {"token": "..."}
//	200 {"valid": true, "user_id": "u-1", "name": "alice"}
type HTTPValidator struct {
	url         string
	client      *http.Client
	adminSecret string
	timeout     time.Duration
}

// NewHTTPValidator creates a validator calling url. A non-empty adminSecret
// is sent as X-Admin-Secret.
func NewHTTPValidator(url string, adminSecret string) *HTTPValidator {
	return &HTTPValidator{
		url:         url,
		adminSecret: adminSecret,
		timeout:     500 * time.Millisecond,
		client:      &http.Client{},
	}
}

type validateRequest struct {
	Token string `json:"token"`
}

type validateResponse struct {
	Valid  bool   `json:"valid"`
	UserID string `json:"user_id,omitempty"`
	Name   string `json:"name,omitempty"`
	Error  string `json:"error,omitempty"`
}

func unavailable(format string, args ...any) error {
	return errors.Wrapf(ErrUnavailable, format, args...)
}

func (v *HTTPValidator) Validate(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	body, err := json.Marshal(validateRequest{Token: token})
	if err != nil {
		return nil, errors.Wrap(err, "marshal request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	if v.adminSecret != "" {
		req.Header.Set("X-Admin-Secret", v.adminSecret)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, unavailable("%v", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, ErrInvalidToken
	default:
		return nil, unavailable("status %d", resp.StatusCode)
	}

	var out validateResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return nil, unavailable("decode: %v", err)
	}
	if !out.Valid {
		return nil, ErrInvalidToken
	}
	if out.UserID == "" {
		return nil, unavailable("response without user_id")
	}
	if out.Name == "" {
		out.Name = out.UserID
	}
	return &Identity{UserID: out.UserID, Name: out.Name}, nil
}

// StaticValidator accepts a fixed set of tokens. It is meant for
// development and tests.
type StaticValidator map[string]Identity

func (v StaticValidator) Validate(_ context.Context, token string) (*Identity, error) {
	id, ok := v[token]
	if !ok {
		return nil, ErrInvalidToken
	}
	return &id, nil
}
