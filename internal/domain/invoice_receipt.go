package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceReceipt is an invoice issued already paid in full.
type InvoiceReceipt struct {
	Header

	CustomerTaxID *string

	TotalAmount      decimal.Decimal
	PaidAmount       decimal.Decimal
	RemainingBalance decimal.Decimal

	PaymentMethod string
	PaymentStatus PaymentStatus
}

type InvoiceReceiptParams struct {
	CustomerID     string
	CustomerName   string
	CustomerTaxID  *string
	DocumentNumber string
	Description    string
	Amount         decimal.Decimal
	Currency       string
	PaymentMethod  string
	IssueDate      time.Time
}

func NewInvoiceReceipt(p InvoiceReceiptParams) (*InvoiceReceipt, error) {
	ir := &InvoiceReceipt{
		Header: Header{
			CustomerID:     p.CustomerID,
			CustomerName:   p.CustomerName,
			DocumentNumber: p.DocumentNumber,
			Currency:       NormalizeCurrency(p.Currency),
			IssueDate:      p.IssueDate,
			Description:    p.Description,
		},
		CustomerTaxID:    p.CustomerTaxID,
		TotalAmount:      p.Amount,
		PaidAmount:       p.Amount,
		RemainingBalance: decimal.Zero,
		PaymentMethod:    p.PaymentMethod,
		PaymentStatus:    PaymentStatusPaid,
	}
	if err := ir.Validate(); err != nil {
		return nil, err
	}
	return ir, nil
}

func (ir *InvoiceReceipt) Type() DocumentType { return DocumentTypeInvoiceReceipt }

func (ir *InvoiceReceipt) Validate() error {
	if err := ir.Header.validate(); err != nil {
		return err
	}
	if !ValidAmount(ir.TotalAmount) {
		return &ValidationError{Field: "amount", Message: "must be a positive amount with at most 2 decimal places"}
	}
	if ir.PaymentMethod == "" {
		return &ValidationError{Field: "payment_method", Message: "is required"}
	}
	if !ir.RemainingBalance.IsZero() || !ir.PaidAmount.Equal(ir.TotalAmount) || ir.PaymentStatus != PaymentStatusPaid {
		return fmt.Errorf("%w: invoice-receipt %s is not paid in full", ErrInvariant, ir.DocumentNumber)
	}
	return nil
}
