package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invofox/internal/domain"
)

type fakeTokens map[string]*domain.APIToken

func (f fakeTokens) FindTokenByPlainToken(_ context.Context, plain string) (*domain.APIToken, error) {
	if t, ok := f[plain]; ok {
		return t, nil
	}
	return nil, domain.ErrNotFound
}

func protected(a *Authenticator) http.Handler {
	return a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := GetPrincipal(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(p.Name))
	}))
}

func TestMiddleware(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	tokens := fakeTokens{
		"1|good":    {ID: 1, Name: "frontend"},
		"2|expired": {ID: 2, Name: "old", ExpiresAt: &past},
	}
	h := protected(NewAuthenticator(tokens, []string{"dev-token"}, zerolog.Nop()))

	tests := []struct {
		name   string
		header string
		query  string
		status int
		body   string
	}{
		{name: "bearer header", header: "Bearer 1|good", status: http.StatusOK, body: "frontend"},
		{name: "query token", query: "?token=1%7Cgood", status: http.StatusOK, body: "frontend"},
		{name: "static token", header: "Bearer dev-token", status: http.StatusOK, body: "static"},
		{name: "missing", status: http.StatusUnauthorized},
		{name: "unknown", header: "Bearer nope", status: http.StatusUnauthorized},
		{name: "expired", header: "Bearer 2|expired", status: http.StatusUnauthorized},
		{name: "not bearer", header: "Basic abc", status: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/invoices"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			require.Equal(t, tt.status, rec.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, rec.Body.String())
			}
		})
	}
}

func TestAuthenticate_NoRepository(t *testing.T) {
	a := NewAuthenticator(nil, nil, zerolog.Nop())
	_, err := a.Authenticate(context.Background(), "anything")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
