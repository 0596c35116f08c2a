package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound             = errors.New("document not found")
	ErrOwnershipMismatch    = errors.New("document belongs to another customer")
	ErrWrongDocumentType    = errors.New("document is not an invoice")
	ErrAmbiguousDocument    = errors.New("document number exists for several customers")
	ErrInvalidAmount        = errors.New("invalid payment amount")
	ErrAmountExceedsBalance = errors.New("payment amount exceeds remaining balance")
	ErrAlreadySettled       = errors.New("invoice is already settled")

	// ErrRaceLost is returned when the in-transaction re-validation fails
	// after the pre-check passed. Nothing was written; the whole operation
	// may be retried.
	ErrRaceLost = errors.New("lost race to a concurrent settlement")

	ErrTooFew        = errors.New("too few invoices selected")
	ErrTooMany       = errors.New("too many invoices selected")
	ErrCrossCustomer = errors.New("invoices belong to different customers")
	ErrCrossCurrency = errors.New("invoices use different currencies")
	ErrInvalidInput  = errors.New("invalid input")
	ErrAlreadyExists = errors.New("document already exists")
	ErrInvariant     = errors.New("ledger invariant violated")

	// ErrStorageConflict marks a transient transaction conflict reported by
	// the store. Always retryable.
	ErrStorageConflict = errors.New("storage conflict")

	ErrTimeout = errors.New("deadline exceeded")

	ErrRequestInProgress   = errors.New("a request with this idempotency key is in progress")
	ErrIdempotencyMismatch = errors.New("idempotency key was used for a different request")
)

// SettlementError attributes a failure to an operation and the document
// numbers that caused it.
type SettlementError struct {
	Op              string
	Err             error
	Cause           error
	DocumentNumbers []string
}

func (e *SettlementError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	if len(e.DocumentNumbers) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(e.DocumentNumbers, ", "))
		b.WriteString(")")
	}
	if e.Cause != nil && e.Cause != e.Err {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind and its cause, so a lost race on a settled
// invoice matches ErrRaceLost and ErrAlreadySettled.
func (e *SettlementError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

func NewSettlementError(op string, err error, numbers ...string) *SettlementError {
	return &SettlementError{Op: op, Err: err, DocumentNumbers: numbers}
}

// RaceLost wraps the re-evaluated validation failure observed inside the
// transaction.
func RaceLost(op string, cause error, numbers ...string) *SettlementError {
	return &SettlementError{Op: op, Err: ErrRaceLost, Cause: cause, DocumentNumbers: numbers}
}

// DocumentNumbersOf returns the numbers attached to err, if any.
func DocumentNumbersOf(err error) []string {
	var se *SettlementError
	if errors.As(err, &se) {
		return se.DocumentNumbers
	}
	return nil
}

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// Retryable reports whether the whole operation may be re-run from scratch.
func Retryable(err error) bool {
	return errors.Is(err, ErrStorageConflict) || errors.Is(err, ErrRaceLost)
}

// ErrorCode is the stable machine-readable code for err.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrRaceLost):
		return "race_lost"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrOwnershipMismatch):
		return "ownership_mismatch"
	case errors.Is(err, ErrWrongDocumentType):
		return "wrong_document_type"
	case errors.Is(err, ErrAmbiguousDocument):
		return "ambiguous_document"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrAmountExceedsBalance):
		return "amount_exceeds_balance"
	case errors.Is(err, ErrAlreadySettled):
		return "already_settled"
	case errors.Is(err, ErrTooFew):
		return "too_few"
	case errors.Is(err, ErrTooMany):
		return "too_many"
	case errors.Is(err, ErrCrossCustomer):
		return "cross_customer"
	case errors.Is(err, ErrCrossCurrency):
		return "cross_currency"
	case errors.Is(err, ErrStorageConflict):
		return "storage_conflict"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrRequestInProgress):
		return "request_in_progress"
	case errors.Is(err, ErrIdempotencyMismatch):
		return "idempotency_key_reused"
	case errors.Is(err, ErrAlreadyExists):
		return "already_exists"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrInvariant):
		return "invariant_violated"
	}
	return "internal"
}
