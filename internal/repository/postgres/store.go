package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"invofox/internal/domain"
	"invofox/internal/repository"
)

const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeUniqueViolation      = "23505"
)

// counterColumns whitelists the sequence columns of the counters table.
var counterColumns = map[domain.DocumentType]string{
	domain.DocumentTypeInvoice:        "invoice",
	domain.DocumentTypeReceipt:        "receipt",
	domain.DocumentTypeInvoiceReceipt: "invoice_receipt",
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

var _ repository.Store = (*Store)(nil)

func NewStore(db *sql.DB, log zerolog.Logger) *Store {
	return &Store{db: db, log: log}
}

// classify maps driver errors onto the ledger's error kinds.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerializationFailure, codeDeadlockDetected:
			return fmt.Errorf("%s: %w: %s", op, domain.ErrStorageConflict, pgErr.Message)
		case codeUniqueViolation:
			return fmt.Errorf("%s: %w: %s", op, domain.ErrAlreadyExists, pgErr.Detail)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func getDocument(ctx context.Context, q querier, id string, forUpdate bool) (domain.Document, error) {
	query := `SELECT` + documentColumns + ` FROM documents WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	row, err := scanDocumentRow(q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get document %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, classify("get document", err)
	}
	return row.toDocument()
}

func (s *Store) GetDocument(ctx context.Context, id string) (domain.Document, error) {
	return getDocument(ctx, s.db, id, false)
}

func (s *Store) FindDocuments(ctx context.Context, f repository.DocumentQuery) ([]domain.Document, error) {
	where := []string{"1=1"}
	args := []any{}
	i := 1

	if f.DocumentNumber != "" {
		where = append(where, fmt.Sprintf("document_number = $%d", i))
		args = append(args, f.DocumentNumber)
		i++
	}
	if f.CustomerID != "" {
		where = append(where, fmt.Sprintf("customer_id = $%d", i))
		args = append(args, f.CustomerID)
		i++
	}
	if f.Type != "" {
		where = append(where, fmt.Sprintf("document_type = $%d", i))
		args = append(args, string(f.Type))
		i++
	}
	if f.Status != "" {
		where = append(where, fmt.Sprintf("payment_status = $%d", i))
		args = append(args, string(f.Status))
		i++
	}

	query := `SELECT` + documentColumns + ` FROM documents WHERE ` + strings.Join(where, " AND ") +
		fmt.Sprintf(` ORDER BY created_at, id LIMIT $%d`, i)
	args = append(args, f.EffectiveLimit())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("find documents", err)
	}
	defer rows.Close()

	var result []domain.Document
	for rows.Next() {
		row, err := scanDocumentRow(rows)
		if err != nil {
			return nil, classify("find documents", err)
		}
		doc, err := row.toDocument()
		if err != nil {
			return nil, err
		}
		result = append(result, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("find documents", err)
	}
	return result, nil
}

func (s *Store) PeekCounter(ctx context.Context, customerID string, year int, docType domain.DocumentType) (int64, error) {
	col, ok := counterColumns[docType]
	if !ok {
		return 0, fmt.Errorf("peek counter: %w: document type %q", domain.ErrInvalidInput, docType)
	}

	var value int64
	err := s.db.QueryRowContext(ctx,
		`SELECT `+col+` FROM counters WHERE id = $1`,
		domain.CounterKey(customerID, year),
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, classify("peek counter", err)
	}
	return value, nil
}

func (s *Store) SetDocumentURL(ctx context.Context, id, url string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET document_url = $2, updated_at = now() WHERE id = $1`,
		id, url,
	)
	if err != nil {
		return classify("set document url", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("set document url %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return classify("begin tx", err)
	}

	if err := fn(ctx, &pgTx{tx: sqlTx}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.log.Warn().Err(rbErr).Msg("rollback failed")
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return classify("commit", err)
	}
	return nil
}

type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) GetDocument(ctx context.Context, id string) (domain.Document, error) {
	return getDocument(ctx, t.tx, id, true)
}

func (t *pgTx) NextCounter(ctx context.Context, customerID string, year int, docType domain.DocumentType) (int64, error) {
	col, ok := counterColumns[docType]
	if !ok {
		return 0, fmt.Errorf("next counter: %w: document type %q", domain.ErrInvalidInput, docType)
	}

	query := fmt.Sprintf(`
		INSERT INTO counters (id, customer_id, year, %[1]s)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (id) DO UPDATE
		SET %[1]s = counters.%[1]s + 1, updated_at = now()
		RETURNING %[1]s
	`, col)

	var next int64
	if err := t.tx.QueryRowContext(ctx, query, domain.CounterKey(customerID, year), customerID, year).Scan(&next); err != nil {
		return 0, classify("next counter", err)
	}
	return next, nil
}

func (t *pgTx) CreateDocument(ctx context.Context, doc domain.Document) error {
	if err := doc.Validate(); err != nil {
		return fmt.Errorf("create document: %w", err)
	}

	h := domain.HeaderOf(doc)
	now := time.Now().UTC()
	if h.CreatedAt.IsZero() {
		h.CreatedAt = now
	}
	h.UpdatedAt = now

	row, err := rowFromDocument(doc)
	if err != nil {
		return fmt.Errorf("create document: %w", err)
	}

	placeholders := make([]string, 0, 22)
	for i := 1; i <= 22; i++ {
		placeholders = append(placeholders, fmt.Sprintf("$%d", i))
	}
	query := `INSERT INTO documents (` + documentColumns + `) VALUES (` + strings.Join(placeholders, ", ") + `)`

	if _, err := t.tx.ExecContext(ctx, query, row.args()...); err != nil {
		return classify("create document "+row.ID, err)
	}
	return nil
}

func (t *pgTx) UpdateInvoice(ctx context.Context, inv *domain.Invoice) error {
	if err := inv.Validate(); err != nil {
		return fmt.Errorf("update invoice: %w", err)
	}

	row, err := rowFromDocument(inv)
	if err != nil {
		return fmt.Errorf("update invoice: %w", err)
	}

	res, err := t.tx.ExecContext(ctx, `
		UPDATE documents
		SET paid_amount = $2,
		    remaining_balance = $3,
		    payment_status = $4,
		    payment_method = $5,
		    related_receipt_ids = $6,
		    updated_at = now()
		WHERE id = $1 AND document_type = 'invoice'
	`,
		row.ID,
		row.PaidAmount,
		row.RemainingBalance,
		row.PaymentStatus,
		row.PaymentMethod,
		row.RelatedReceiptIDs,
	)
	if err != nil {
		return classify("update invoice "+row.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update invoice %s: %w", row.ID, domain.ErrNotFound)
	}
	return nil
}
