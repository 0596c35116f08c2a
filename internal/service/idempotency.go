package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"invofox/internal/clients"
	"invofox/internal/domain"
)

const (
	idempotencyInProgress = "in_progress"
	idempotencyCompleted  = "completed"
)

type idempotencyRecord struct {
	State       string          `json:"state"`
	RequestHash string          `json:"request_hash"`
	Result      json.RawMessage `json:"result,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Idempotency remembers the outcome of keyed requests in Redis. A nil
// *Idempotency or one without a client runs every request.
type Idempotency struct {
	redis *clients.RedisClient
	ttl   time.Duration
	log   zerolog.Logger
	now   func() time.Time
}

func NewIdempotency(redis *clients.RedisClient, ttl time.Duration, log zerolog.Logger) *Idempotency {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Idempotency{
		redis: redis,
		ttl:   ttl,
		log:   log.With().Str("component", "idempotency").Logger(),
		now:   time.Now,
	}
}

func (i *Idempotency) enabled() bool {
	return i != nil && i.redis != nil
}

func idempotencyKey(scope, key string) string {
	return "idempotency:" + scope + ":" + key
}

// canonicalizer is implemented by requests that know their own
// normalized form. Two requests that settle the same way must produce
// equal canonical values.
type canonicalizer interface {
	canonical() any
}

// hashRequest fingerprints the normalized request. String values are
// trimmed at every depth after the request's own canonical form is taken.
func hashRequest(request any) (string, error) {
	if c, ok := request.(canonicalizer); ok {
		request = c.canonical()
	}
	data, err := json.Marshal(request)
	if err != nil {
		return "", err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return "", err
	}
	data, err = json.Marshal(trimStrings(tree))
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func trimStrings(v any) any {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case []any:
		for i := range t {
			t[i] = trimStrings(t[i])
		}
	case map[string]any:
		for k, e := range t {
			t[k] = trimStrings(e)
		}
	}
	return v
}

func fixedAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func (in SingleSettlementInput) canonical() any {
	return struct {
		InvoiceNumber string    `json:"invoice_number"`
		CustomerID    string    `json:"customer_id"`
		Amount        string    `json:"amount"`
		PaymentMethod string    `json:"payment_method"`
		Date          time.Time `json:"date"`
	}{
		InvoiceNumber: canonicalNumber(in.InvoiceNumber),
		CustomerID:    strings.TrimSpace(in.CustomerID),
		Amount:        fixedAmount(in.Amount),
		PaymentMethod: strings.ToLower(strings.TrimSpace(in.PaymentMethod)),
		Date:          in.Date.UTC(),
	}
}

func (in MultiSettlementInput) canonical() any {
	return struct {
		InvoiceNumbers []string  `json:"invoice_numbers"`
		CustomerID     string    `json:"customer_id"`
		PaymentMethod  string    `json:"payment_method"`
		Date           time.Time `json:"date"`
	}{
		InvoiceNumbers: normalizeSelection(in.InvoiceNumbers),
		CustomerID:     strings.TrimSpace(in.CustomerID),
		PaymentMethod:  strings.ToLower(strings.TrimSpace(in.PaymentMethod)),
		Date:           in.Date.UTC(),
	}
}

func (in InvoiceInput) canonical() any {
	out := in
	out.Currency = domain.NormalizeCurrency(in.Currency)
	out.Date = in.Date.UTC()
	return struct {
		InvoiceInput
		TotalAmount string `json:"total_amount"`
	}{out, fixedAmount(in.TotalAmount)}
}

func (in PaidInFullInput) canonical() any {
	out := in
	out.Currency = domain.NormalizeCurrency(in.Currency)
	out.PaymentMethod = strings.ToLower(strings.TrimSpace(in.PaymentMethod))
	out.Date = in.Date.UTC()
	return struct {
		PaidInFullInput
		Amount string `json:"amount"`
	}{out, fixedAmount(in.Amount)}
}

// RunIdempotent runs fn at most once per (scope, key) while the record
// lives. A repeat with the same request replays the stored result and
// reports replayed=true. A failed fn releases the key so the caller may
// try again.
func RunIdempotent[T any](
	ctx context.Context,
	idem *Idempotency,
	scope, key string,
	request any,
	fn func(ctx context.Context) (T, error),
) (T, bool, error) {
	var zero T
	key = strings.TrimSpace(key)
	if key == "" || !idem.enabled() {
		res, err := fn(ctx)
		return res, false, err
	}

	hash, err := hashRequest(request)
	if err != nil {
		return zero, false, fmt.Errorf("hash request: %w", err)
	}
	redisKey := idempotencyKey(scope, key)

	reserved, err := idem.redis.SetNX(ctx, redisKey, idem.encode(idempotencyRecord{
		State:       idempotencyInProgress,
		RequestHash: hash,
		CreatedAt:   idem.now(),
	}), idem.ttl)
	if err != nil {
		return zero, false, fmt.Errorf("reserve idempotency key: %w", err)
	}

	if !reserved {
		prev, err := idem.load(ctx, redisKey)
		if err != nil {
			return zero, false, err
		}
		if prev.RequestHash != hash {
			return zero, false, fmt.Errorf("key %q: %w", key, domain.ErrIdempotencyMismatch)
		}
		if prev.State != idempotencyCompleted {
			return zero, false, fmt.Errorf("key %q: %w", key, domain.ErrRequestInProgress)
		}
		var res T
		if err := json.Unmarshal(prev.Result, &res); err != nil {
			return zero, false, fmt.Errorf("decode stored result: %w", err)
		}
		return res, true, nil
	}

	res, err := fn(ctx)
	if err != nil {
		if delErr := idem.redis.Del(context.WithoutCancel(ctx), redisKey); delErr != nil {
			idem.log.Warn().Err(delErr).Str("key", key).Msg("failed to release idempotency key")
		}
		return zero, false, err
	}

	data, err := json.Marshal(res)
	if err != nil {
		return res, false, nil
	}
	done := idempotencyRecord{
		State:       idempotencyCompleted,
		RequestHash: hash,
		Result:      data,
		CreatedAt:   idem.now(),
	}
	if err := idem.redis.Set(context.WithoutCancel(ctx), redisKey, idem.encode(done), idem.ttl); err != nil {
		idem.log.Warn().Err(err).Str("key", key).Msg("failed to store idempotent result")
	}
	return res, false, nil
}

func (i *Idempotency) encode(rec idempotencyRecord) string {
	data, _ := json.Marshal(rec)
	return string(data)
}

func (i *Idempotency) load(ctx context.Context, redisKey string) (idempotencyRecord, error) {
	raw, err := i.redis.Get(ctx, redisKey)
	if clients.IsCacheMiss(err) {
		// released between SETNX and GET; the first request failed
		return idempotencyRecord{}, fmt.Errorf("idempotency key released: %w", domain.ErrRequestInProgress)
	}
	if err != nil {
		return idempotencyRecord{}, fmt.Errorf("load idempotency key: %w", err)
	}
	var rec idempotencyRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return idempotencyRecord{}, fmt.Errorf("decode idempotency record: %w", err)
	}
	return rec, nil
}
