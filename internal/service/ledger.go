package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"invofox/internal/domain"
)

const (
	scopeSettleSingle   = "settle_single"
	scopeSettleMulti    = "settle_multi"
	scopeInvoice        = "invoice"
	scopeInvoiceReceipt = "invoice_receipt"
)

// Ledger is what the transports talk to. It adds idempotent replay and
// document rendering around the settlement engine. Documents and
// Idempotency may be nil.
type Ledger struct {
	Settlement  *SettlementService
	Counters    *CounterService
	Documents   *DocumentPipeline
	Idempotency *Idempotency
	Log         zerolog.Logger
}

func (l *Ledger) enqueue(ctx context.Context, documentID string) {
	if l.Documents == nil || documentID == "" {
		return
	}
	if _, err := l.Documents.Enqueue(ctx, documentID); err != nil {
		l.Log.Warn().Err(err).Str("document_id", documentID).Msg("failed to enqueue document")
	}
}

func (l *Ledger) AllocateDocumentNumber(ctx context.Context, customerID string, docType domain.DocumentType, year *int) (string, error) {
	return l.Counters.AllocateDocumentNumber(ctx, customerID, docType, year)
}

func (l *Ledger) PeekCounter(ctx context.Context, customerID string, year int, docType domain.DocumentType) (int64, error) {
	return l.Counters.Peek(ctx, customerID, year, docType)
}

// SettleSingle reports replayed=true when the result came from an earlier
// request with the same idempotency key.
func (l *Ledger) SettleSingle(ctx context.Context, key string, in SingleSettlementInput) (SingleSettlementResult, bool, error) {
	res, replayed, err := RunIdempotent(ctx, l.Idempotency, scopeSettleSingle, key, in, func(ctx context.Context) (SingleSettlementResult, error) {
		return l.Settlement.SettleSingle(ctx, in)
	})
	if err == nil && !replayed {
		l.enqueue(ctx, res.ReceiptID)
	}
	return res, replayed, err
}

func (l *Ledger) SettleMulti(ctx context.Context, key string, in MultiSettlementInput) (MultiSettlementResult, bool, error) {
	res, replayed, err := RunIdempotent(ctx, l.Idempotency, scopeSettleMulti, key, in, func(ctx context.Context) (MultiSettlementResult, error) {
		return l.Settlement.SettleMulti(ctx, in)
	})
	if err == nil && !replayed {
		l.enqueue(ctx, res.ReceiptID)
	}
	return res, replayed, err
}

func (l *Ledger) IssueInvoice(ctx context.Context, key string, in InvoiceInput) (IssuedDocument, bool, error) {
	res, replayed, err := RunIdempotent(ctx, l.Idempotency, scopeInvoice, key, in, func(ctx context.Context) (IssuedDocument, error) {
		return l.Settlement.IssueInvoice(ctx, in)
	})
	if err == nil && !replayed {
		l.enqueue(ctx, res.DocumentID)
	}
	return res, replayed, err
}

func (l *Ledger) IssuePaidInFull(ctx context.Context, key string, in PaidInFullInput) (IssuedDocument, bool, error) {
	res, replayed, err := RunIdempotent(ctx, l.Idempotency, scopeInvoiceReceipt, key, in, func(ctx context.Context) (IssuedDocument, error) {
		return l.Settlement.IssuePaidInFull(ctx, in)
	})
	if err == nil && !replayed {
		l.enqueue(ctx, res.DocumentID)
	}
	return res, replayed, err
}

func (l *Ledger) GetInvoiceByNumber(ctx context.Context, number, customerID string) (*domain.Invoice, error) {
	return l.Settlement.GetInvoiceByNumber(ctx, number, customerID)
}

func (l *Ledger) ListInvoices(ctx context.Context, customerID string, status domain.PaymentStatus, limit int) ([]*domain.Invoice, error) {
	return l.Settlement.ListInvoices(ctx, customerID, status, limit)
}

func (l *Ledger) DocumentStatus(ctx context.Context, documentID string) (DocumentStatus, error) {
	if l.Documents == nil {
		return DocumentStatus{}, fmt.Errorf("document rendering is disabled: %w", domain.ErrNotFound)
	}
	return l.Documents.Status(ctx, documentID)
}

// RetryDocument re-enqueues rendering of an existing document.
func (l *Ledger) RetryDocument(ctx context.Context, documentID string) (DocumentStatus, error) {
	if l.Documents == nil {
		return DocumentStatus{}, fmt.Errorf("document rendering is disabled: %w", domain.ErrNotFound)
	}
	if _, err := l.Settlement.GetDocument(ctx, documentID); err != nil {
		return DocumentStatus{}, err
	}
	return l.Documents.Enqueue(ctx, documentID)
}
