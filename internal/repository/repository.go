package repository

import (
	"context"

	"invofox/internal/domain"
)

// DefaultQueryLimit caps FindDocuments when the query sets no limit.
const DefaultQueryLimit = 100

// DocumentQuery filters documents; zero fields do not constrain the result.
type DocumentQuery struct {
	DocumentNumber string
	CustomerID     string
	Type           domain.DocumentType
	Status         domain.PaymentStatus
	Limit          int
}

func (q DocumentQuery) EffectiveLimit() int {
	if q.Limit <= 0 {
		return DefaultQueryLimit
	}
	return q.Limit
}

// Store is the ledger storage backend. Documents of all kinds share one
// keyspace, keyed by domain.DocumentKey.
type Store interface {
	// GetDocument returns domain.ErrNotFound for unknown ids.
	GetDocument(ctx context.Context, id string) (domain.Document, error)
	FindDocuments(ctx context.Context, q DocumentQuery) ([]domain.Document, error)

	// PeekCounter reads the last allocated value outside any transaction.
	// Diagnostics only.
	PeekCounter(ctx context.Context, customerID string, year int, docType domain.DocumentType) (int64, error)

	// SetDocumentURL is the only mutation allowed outside RunInTx.
	SetDocumentURL(ctx context.Context, id, url string) error

	// RunInTx runs fn in one serializable transaction. fn's writes commit
	// together or not at all. A conflict with a concurrent transaction
	// surfaces as domain.ErrStorageConflict and fn is not re-run.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the transactional view of a Store. All reads must happen before
// the first write.
type Tx interface {
	GetDocument(ctx context.Context, id string) (domain.Document, error)
	NextCounter(ctx context.Context, customerID string, year int, docType domain.DocumentType) (int64, error)
	// CreateDocument fails with domain.ErrAlreadyExists if the key is taken.
	CreateDocument(ctx context.Context, doc domain.Document) error
	UpdateInvoice(ctx context.Context, inv *domain.Invoice) error
}

type TokenRepository interface {
	FindTokenByPlainToken(ctx context.Context, plainToken string) (*domain.APIToken, error)
}

// Matches reports whether doc satisfies q's predicates.
func (q DocumentQuery) Matches(doc domain.Document) bool {
	h := domain.HeaderOf(doc)
	if q.DocumentNumber != "" && h.DocumentNumber != q.DocumentNumber {
		return false
	}
	if q.CustomerID != "" && h.CustomerID != q.CustomerID {
		return false
	}
	if q.Type != "" && doc.Type() != q.Type {
		return false
	}
	if q.Status != "" {
		status, ok := domain.StatusOf(doc)
		if !ok || status != q.Status {
			return false
		}
	}
	return true
}
