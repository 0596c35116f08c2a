package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"invofox/internal/domain"
)

const documentColumns = `
	id, document_type, customer_id, customer_name, customer_tax_id,
	document_number, description, currency, issue_date,
	total_amount, paid_amount, remaining_balance, amount_paid,
	payment_method, payment_status, is_multi_invoice,
	related_receipt_ids, related_invoice_numbers, related_invoice_ids,
	document_url, created_at, updated_at`

// documentRow is the flat shape shared by all document kinds in the
// documents table.
type documentRow struct {
	ID             string
	DocumentType   string
	CustomerID     string
	CustomerName   string
	CustomerTaxID  sql.NullString
	DocumentNumber string
	Description    string
	Currency       string
	IssueDate      time.Time

	TotalAmount      decimal.NullDecimal
	PaidAmount       decimal.NullDecimal
	RemainingBalance decimal.NullDecimal
	AmountPaid       decimal.NullDecimal

	PaymentMethod  sql.NullString
	PaymentStatus  sql.NullString
	IsMultiInvoice bool

	RelatedReceiptIDs     []byte
	RelatedInvoiceNumbers []byte
	RelatedInvoiceIDs     []byte

	DocumentURL sql.NullString
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocumentRow(s rowScanner) (documentRow, error) {
	var r documentRow
	err := s.Scan(
		&r.ID,
		&r.DocumentType,
		&r.CustomerID,
		&r.CustomerName,
		&r.CustomerTaxID,
		&r.DocumentNumber,
		&r.Description,
		&r.Currency,
		&r.IssueDate,
		&r.TotalAmount,
		&r.PaidAmount,
		&r.RemainingBalance,
		&r.AmountPaid,
		&r.PaymentMethod,
		&r.PaymentStatus,
		&r.IsMultiInvoice,
		&r.RelatedReceiptIDs,
		&r.RelatedInvoiceNumbers,
		&r.RelatedInvoiceIDs,
		&r.DocumentURL,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	return r, err
}

func (r documentRow) args() []any {
	return []any{
		r.ID,
		r.DocumentType,
		r.CustomerID,
		r.CustomerName,
		r.CustomerTaxID,
		r.DocumentNumber,
		r.Description,
		r.Currency,
		r.IssueDate,
		r.TotalAmount,
		r.PaidAmount,
		r.RemainingBalance,
		r.AmountPaid,
		r.PaymentMethod,
		r.PaymentStatus,
		r.IsMultiInvoice,
		r.RelatedReceiptIDs,
		r.RelatedInvoiceNumbers,
		r.RelatedInvoiceIDs,
		r.DocumentURL,
		r.CreatedAt,
		r.UpdatedAt,
	}
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func stringPtr(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	s := n.String
	return &s
}

func nullDecimal(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

func marshalList(list []string) ([]byte, error) {
	if list == nil {
		list = []string{}
	}
	return json.Marshal(list)
}

func unmarshalList(data []byte) ([]string, error) {
	list := []string{}
	if len(data) == 0 {
		return list, nil
	}
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func rowFromDocument(doc domain.Document) (documentRow, error) {
	h := domain.HeaderOf(doc)
	r := documentRow{
		ID:             doc.ID(),
		DocumentType:   string(doc.Type()),
		CustomerID:     h.CustomerID,
		CustomerName:   h.CustomerName,
		DocumentNumber: h.DocumentNumber,
		Description:    h.Description,
		Currency:       h.Currency,
		IssueDate:      h.IssueDate,
		DocumentURL:    nullString(h.DocumentURL),
		CreatedAt:      h.CreatedAt,
		UpdatedAt:      h.UpdatedAt,
	}

	var err error
	switch d := doc.(type) {
	case *domain.Invoice:
		r.CustomerTaxID = nullString(d.CustomerTaxID)
		r.TotalAmount = nullDecimal(d.TotalAmount)
		r.PaidAmount = nullDecimal(d.PaidAmount)
		r.RemainingBalance = nullDecimal(d.RemainingBalance)
		r.PaymentMethod = nullString(d.PaymentMethod)
		r.PaymentStatus = sql.NullString{String: string(d.PaymentStatus), Valid: true}
		r.RelatedReceiptIDs, err = marshalList(d.RelatedReceiptIDs)
	case *domain.Receipt:
		r.AmountPaid = nullDecimal(d.AmountPaid)
		r.PaymentMethod = sql.NullString{String: d.PaymentMethod, Valid: true}
		r.IsMultiInvoice = d.IsMultiInvoice
		if r.RelatedInvoiceNumbers, err = marshalList(d.RelatedInvoiceNumbers); err == nil {
			r.RelatedInvoiceIDs, err = marshalList(d.RelatedInvoiceIDs)
		}
	case *domain.InvoiceReceipt:
		r.CustomerTaxID = nullString(d.CustomerTaxID)
		r.TotalAmount = nullDecimal(d.TotalAmount)
		r.PaidAmount = nullDecimal(d.PaidAmount)
		r.RemainingBalance = nullDecimal(d.RemainingBalance)
		r.PaymentMethod = sql.NullString{String: d.PaymentMethod, Valid: true}
		r.PaymentStatus = sql.NullString{String: string(d.PaymentStatus), Valid: true}
	default:
		return documentRow{}, fmt.Errorf("unsupported document %T", doc)
	}
	if err != nil {
		return documentRow{}, err
	}

	if r.RelatedReceiptIDs == nil {
		r.RelatedReceiptIDs = []byte("[]")
	}
	if r.RelatedInvoiceNumbers == nil {
		r.RelatedInvoiceNumbers = []byte("[]")
	}
	if r.RelatedInvoiceIDs == nil {
		r.RelatedInvoiceIDs = []byte("[]")
	}
	return r, nil
}

func (r documentRow) toDocument() (domain.Document, error) {
	header := domain.Header{
		CustomerID:     r.CustomerID,
		CustomerName:   r.CustomerName,
		DocumentNumber: r.DocumentNumber,
		Currency:       r.Currency,
		IssueDate:      r.IssueDate,
		Description:    r.Description,
		DocumentURL:    stringPtr(r.DocumentURL),
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}

	switch domain.DocumentType(r.DocumentType) {
	case domain.DocumentTypeInvoice:
		receipts, err := unmarshalList(r.RelatedReceiptIDs)
		if err != nil {
			return nil, fmt.Errorf("document %s related_receipt_ids: %w", r.ID, err)
		}
		return &domain.Invoice{
			Header:            header,
			CustomerTaxID:     stringPtr(r.CustomerTaxID),
			TotalAmount:       r.TotalAmount.Decimal,
			PaidAmount:        r.PaidAmount.Decimal,
			RemainingBalance:  r.RemainingBalance.Decimal,
			PaymentMethod:     stringPtr(r.PaymentMethod),
			PaymentStatus:     domain.PaymentStatus(r.PaymentStatus.String),
			RelatedReceiptIDs: receipts,
		}, nil
	case domain.DocumentTypeReceipt:
		numbers, err := unmarshalList(r.RelatedInvoiceNumbers)
		if err != nil {
			return nil, fmt.Errorf("document %s related_invoice_numbers: %w", r.ID, err)
		}
		ids, err := unmarshalList(r.RelatedInvoiceIDs)
		if err != nil {
			return nil, fmt.Errorf("document %s related_invoice_ids: %w", r.ID, err)
		}
		return &domain.Receipt{
			Header:                header,
			AmountPaid:            r.AmountPaid.Decimal,
			PaymentMethod:         r.PaymentMethod.String,
			IsMultiInvoice:        r.IsMultiInvoice,
			RelatedInvoiceNumbers: numbers,
			RelatedInvoiceIDs:     ids,
		}, nil
	case domain.DocumentTypeInvoiceReceipt:
		return &domain.InvoiceReceipt{
			Header:           header,
			CustomerTaxID:    stringPtr(r.CustomerTaxID),
			TotalAmount:      r.TotalAmount.Decimal,
			PaidAmount:       r.PaidAmount.Decimal,
			RemainingBalance: r.RemainingBalance.Decimal,
			PaymentMethod:    r.PaymentMethod.String,
			PaymentStatus:    domain.PaymentStatus(r.PaymentStatus.String),
		}, nil
	}
	return nil, fmt.Errorf("document %s: unknown document type %q", r.ID, r.DocumentType)
}
