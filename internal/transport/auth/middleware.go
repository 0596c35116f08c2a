package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"invofox/internal/domain"
	"invofox/internal/repository"
)

type ctxKey string

const PrincipalKey ctxKey = "principal"

// Principal identifies the caller behind an authenticated request.
type Principal struct {
	TokenID   int64
	Name      string
	Abilities string
}

type Authenticator struct {
	tokens repository.TokenRepository
	static []string
	log    zerolog.Logger
	now    func() time.Time
}

// NewAuthenticator checks bearer tokens against tokens (may be nil) and a
// list of static tokens from configuration.
func NewAuthenticator(tokens repository.TokenRepository, static []string, log zerolog.Logger) *Authenticator {
	return &Authenticator{
		tokens: tokens,
		static: static,
		log:    log.With().Str("component", "auth").Logger(),
		now:    time.Now,
	}
}

func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// websocket clients cannot set headers, so ?token= is accepted too
		token := bearerToken(r)
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if token == "" {
			a.log.Debug().Str("path", r.URL.Path).Msg("no token")
			unauthorized(w, "Unauthorized")
			return
		}

		p, err := a.Authenticate(r.Context(), token)
		if err != nil {
			a.log.Debug().Err(err).Str("path", r.URL.Path).Msg("token rejected")
			unauthorized(w, err.Error())
			return
		}

		ctx := context.WithValue(r.Context(), PrincipalKey, p)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

func (a *Authenticator) Authenticate(ctx context.Context, token string) (*Principal, error) {
	for i, s := range a.static {
		if subtle.ConstantTimeCompare([]byte(s), []byte(token)) == 1 {
			return &Principal{TokenID: -int64(i + 1), Name: "static", Abilities: "*"}, nil
		}
	}
	if a.tokens == nil {
		return nil, ErrInvalidToken
	}

	t, err := a.tokens.FindTokenByPlainToken(ctx, token)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		a.log.Error().Err(err).Msg("token lookup failed")
		return nil, ErrInvalidToken
	}
	if t.Expired(a.now()) {
		return nil, ErrTokenExpired
	}
	return &Principal{TokenID: t.ID, Name: t.Name, Abilities: t.Abilities}, nil
}

func GetPrincipal(ctx context.Context) (*Principal, error) {
	p, ok := ctx.Value(PrincipalKey).(*Principal)
	if !ok {
		return nil, errors.New("principal not found in context")
	}
	return p, nil
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error_code":"unauthorized","status":"error","message":"` + message + `","data":null}`))
}
