package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPValidatorValidToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req validateRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Token == "valid-token" {
			_ = json.NewEncoder(w).Encode(validateResponse{Valid: true, UserID: "u-123", Name: "alice"})
			return
		}
		_ = json.NewEncoder(w).Encode(validateResponse{Valid: false})
	}))
	defer server.Close()

	v := NewHTTPValidator(server.URL, "")
	id, err := v.Validate(context.Background(), "valid-token")
	require.NoError(t, err)
	assert.Equal(t, &Identity{UserID: "u-123", Name: "alice"}, id)

	_, err = v.Validate(context.Background(), "other")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestHTTPValidatorNameDefaultsToUserID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(validateResponse{Valid: true, UserID: "u-9"})
	}))
	defer server.Close()

	id, err := NewHTTPValidator(server.URL, "").Validate(context.Background(), "t")
	require.NoError(t, err)
	assert.Equal(t, "u-9", id.Name)
}

func TestHTTPValidatorEmptyToken(t *testing.T) {
	_, err := NewHTTPValidator("http://localhost:9999", "").Validate(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestHTTPValidatorStatusCodes(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		wantErr    error
	}{
		{"unauthorized", http.StatusUnauthorized, ErrInvalidToken},
		{"forbidden", http.StatusForbidden, ErrInvalidToken},
		{"rate limited", http.StatusTooManyRequests, ErrUnavailable},
		{"server error", http.StatusInternalServerError, ErrUnavailable},
		{"bad gateway", http.StatusBadGateway, ErrUnavailable},
		{"unexpected", http.StatusTeapot, ErrUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
			}))
			defer server.Close()

			_, err := NewHTTPValidator(server.URL, "").Validate(context.Background(), "token")
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestHTTPValidatorTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	v := NewHTTPValidator(server.URL, "")
	v.timeout = 50 * time.Millisecond
	_, err := v.Validate(context.Background(), "token")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestHTTPValidatorAdminSecret(t *testing.T) {
	for _, secret := range []string{"my-secret", ""} {
		var received string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			received = r.Header.Get("X-Admin-Secret")
			_ = json.NewEncoder(w).Encode(validateResponse{Valid: true, UserID: "u"})
		}))

		_, err := NewHTTPValidator(server.URL, secret).Validate(context.Background(), "token")
		server.Close()
		require.NoError(t, err)
		assert.Equal(t, secret, received)
	}
}

func TestHTTPValidatorUnusableResponses(t *testing.T) {
	for name, body := range map[string]string{
		"malformed":  "not json",
		"no user id": `{"valid": true}`,
	} {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			}))
			defer server.Close()

			_, err := NewHTTPValidator(server.URL, "").Validate(context.Background(), "token")
			assert.ErrorIs(t, err, ErrUnavailable)
		})
	}
}

func TestHTTPValidatorNetworkError(t *testing.T) {
	_, err := NewHTTPValidator("http://localhost:1", "").Validate(context.Background(), "token")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestStaticValidator(t *testing.T) {
	v := StaticValidator{"tok": {UserID: "alice", Name: "Alice"}}
	id, err := v.Validate(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "Alice", id.Name)

	_, err = v.Validate(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
