package postgres

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"invofox/internal/domain"
	"invofox/internal/repository"
)

type TokenRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

var _ repository.TokenRepository = (*TokenRepository)(nil)

func NewTokenRepository(db *sql.DB, log zerolog.Logger) *TokenRepository {
	return &TokenRepository{db: db, log: log}
}

// HashToken returns the hex sha256 stored for a plain token.
func HashToken(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return fmt.Sprintf("%x", sum)
}

// SplitToken splits "{id}|{secret}" tokens; plain secrets have no id.
func SplitToken(plainToken string) (*int64, string) {
	idx := strings.Index(plainToken, "|")
	if idx <= 0 {
		return nil, plainToken
	}
	id, err := strconv.ParseInt(plainToken[:idx], 10, 64)
	if err != nil {
		return nil, plainToken
	}
	return &id, plainToken[idx+1:]
}

func (r *TokenRepository) FindTokenByPlainToken(ctx context.Context, plainToken string) (*domain.APIToken, error) {
	plainToken = strings.TrimSpace(plainToken)
	if plainToken == "" {
		return nil, errors.New("empty token")
	}

	tokenID, secret := SplitToken(plainToken)
	hash := HashToken(secret)

	var tok domain.APIToken

	if tokenID != nil {
		err := r.db.QueryRowContext(ctx, `
			SELECT id, name, token, abilities, expires_at
			FROM api_tokens
			WHERE id = $1
			  AND (expires_at IS NULL OR expires_at > $2)
		`, *tokenID, time.Now()).Scan(
			&tok.ID,
			&tok.Name,
			&tok.TokenHash,
			&tok.Abilities,
			&tok.ExpiresAt,
		)
		if err == nil && tok.TokenHash == hash {
			return &tok, nil
		}
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			r.log.Warn().Err(err).Int64("token_id", *tokenID).Msg("token lookup by id failed")
		}
	}

	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, token, abilities, expires_at
		FROM api_tokens
		WHERE token = $1
		  AND (expires_at IS NULL OR expires_at > $2)
		LIMIT 1
	`, hash, time.Now()).Scan(
		&tok.ID,
		&tok.Name,
		&tok.TokenHash,
		&tok.Abilities,
		&tok.ExpiresAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("token: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("token lookup: %w", err)
	}
	return &tok, nil
}
