package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"invofox/internal/domain"
	"invofox/internal/repository"
)

// Options are shared by the ledger services.
type Options struct {
	Retry     RetryPolicy
	TxTimeout time.Duration
	Location  *time.Location
	Now       func() time.Time
	Logger    zerolog.Logger
}

func (o Options) withDefaults() Options {
	if o.Retry.MaxAttempts == 0 {
		o.Retry = DefaultRetryPolicy
	}
	if o.TxTimeout <= 0 {
		o.TxTimeout = 10 * time.Second
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// runTx executes fn in one store transaction. The transaction is detached
// from the caller's cancellation and bounded by the configured timeout, so
// a commit is never interrupted halfway.
func runTx(ctx context.Context, store repository.Store, timeout time.Duration, fn func(ctx context.Context, tx repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return timeoutError(err)
	}
	txCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	return timeoutError(store.RunInTx(txCtx, fn))
}

type CounterService struct {
	store repository.Store
	opts  Options
	log   zerolog.Logger
}

func NewCounterService(store repository.Store, opts Options) *CounterService {
	opts = opts.withDefaults()
	return &CounterService{
		store: store,
		opts:  opts,
		log:   opts.Logger.With().Str("component", "counter").Logger(),
	}
}

// YearOf is the numbering year of t in the configured time zone.
func (s *CounterService) YearOf(t time.Time) int {
	if t.IsZero() {
		t = s.opts.Now()
	}
	return t.In(s.opts.Location).Year()
}

// Allocate draws the next number for (customerID, year, docType) inside tx
// and returns it formatted.
func (s *CounterService) Allocate(ctx context.Context, tx repository.Tx, customerID string, year int, docType domain.DocumentType) (string, error) {
	if strings.TrimSpace(customerID) == "" {
		return "", &domain.ValidationError{Field: "customer_id", Message: "is required"}
	}
	if !docType.Valid() {
		return "", fmt.Errorf("%w: unknown document type %q", domain.ErrInvalidInput, docType)
	}
	if year < 1 {
		return "", &domain.ValidationError{Field: "year", Message: "must be positive"}
	}

	seq, err := tx.NextCounter(ctx, customerID, year, docType)
	if err != nil {
		return "", fmt.Errorf("allocate %s number: %w", docType, err)
	}
	return domain.FormatDocumentNumber(docType, year, seq), nil
}

// Peek reads the last allocated value. It is racy and must not drive
// numbering.
func (s *CounterService) Peek(ctx context.Context, customerID string, year int, docType domain.DocumentType) (int64, error) {
	if !docType.Valid() {
		return 0, fmt.Errorf("%w: unknown document type %q", domain.ErrInvalidInput, docType)
	}
	v, err := s.store.PeekCounter(ctx, customerID, year, docType)
	return v, timeoutError(err)
}

// AllocateDocumentNumber allocates a number in its own transaction. A nil
// year means the current year.
func (s *CounterService) AllocateDocumentNumber(ctx context.Context, customerID string, docType domain.DocumentType, year *int) (string, error) {
	y := s.YearOf(time.Time{})
	if year != nil {
		y = *year
	}

	var number string
	err := s.opts.Retry.Do(ctx, func(ctx context.Context, attempt int) error {
		return runTx(ctx, s.store, s.opts.TxTimeout, func(ctx context.Context, tx repository.Tx) error {
			n, err := s.Allocate(ctx, tx, customerID, y, docType)
			if err != nil {
				return err
			}
			number = n
			return nil
		})
	})
	if err != nil {
		s.log.Warn().Err(err).Str("customer_id", customerID).Str("type", string(docType)).Msg("number allocation failed")
		return "", err
	}

	s.log.Debug().Str("customer_id", customerID).Str("number", number).Msg("number allocated")
	return number, nil
}
