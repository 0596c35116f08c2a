package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// MaxReceiptInvoices bounds how many invoices one receipt may settle.
const MaxReceiptInvoices = 10

type Receipt struct {
	Header

	AmountPaid     decimal.Decimal
	PaymentMethod  string
	IsMultiInvoice bool

	RelatedInvoiceNumbers []string
	RelatedInvoiceIDs     []string
}

type ReceiptParams struct {
	CustomerID     string
	CustomerName   string
	DocumentNumber string
	Description    string
	AmountPaid     decimal.Decimal
	Currency       string
	PaymentMethod  string
	IssueDate      time.Time
	Invoices       []*Invoice
}

// NewReceipt builds a receipt covering p.Invoices. The invoices must already
// share customer and currency with the receipt.
func NewReceipt(p ReceiptParams) (*Receipt, error) {
	r := &Receipt{
		Header: Header{
			CustomerID:     p.CustomerID,
			CustomerName:   p.CustomerName,
			DocumentNumber: p.DocumentNumber,
			Currency:       NormalizeCurrency(p.Currency),
			IssueDate:      p.IssueDate,
			Description:    p.Description,
		},
		AmountPaid:            p.AmountPaid,
		PaymentMethod:         p.PaymentMethod,
		IsMultiInvoice:        len(p.Invoices) > 1,
		RelatedInvoiceNumbers: make([]string, 0, len(p.Invoices)),
		RelatedInvoiceIDs:     make([]string, 0, len(p.Invoices)),
	}
	for _, inv := range p.Invoices {
		if inv.CustomerID != r.CustomerID {
			return nil, NewSettlementError("new receipt", ErrCrossCustomer, inv.DocumentNumber)
		}
		if inv.Currency != r.Currency {
			return nil, NewSettlementError("new receipt", ErrCrossCurrency, inv.DocumentNumber)
		}
		r.RelatedInvoiceNumbers = append(r.RelatedInvoiceNumbers, inv.DocumentNumber)
		r.RelatedInvoiceIDs = append(r.RelatedInvoiceIDs, inv.ID())
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Receipt) Type() DocumentType { return DocumentTypeReceipt }

func (r *Receipt) Validate() error {
	if err := r.Header.validate(); err != nil {
		return err
	}
	if !ValidAmount(r.AmountPaid) {
		return &ValidationError{Field: "amount_paid", Message: "must be a positive amount with at most 2 decimal places"}
	}
	if r.PaymentMethod == "" {
		return &ValidationError{Field: "payment_method", Message: "is required"}
	}
	n := len(r.RelatedInvoiceNumbers)
	if n < 1 || n > MaxReceiptInvoices {
		return fmt.Errorf("%w: receipt %s relates to %d invoices", ErrInvariant, r.DocumentNumber, n)
	}
	if len(r.RelatedInvoiceIDs) != n {
		return fmt.Errorf("%w: receipt %s has %d invoice ids for %d numbers",
			ErrInvariant, r.DocumentNumber, len(r.RelatedInvoiceIDs), n)
	}
	if r.IsMultiInvoice != (n > 1) {
		return fmt.Errorf("%w: receipt %s multi-invoice flag does not match relations", ErrInvariant, r.DocumentNumber)
	}
	return nil
}
