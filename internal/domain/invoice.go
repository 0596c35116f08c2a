package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Invoice struct {
	Header

	CustomerTaxID *string

	TotalAmount      decimal.Decimal
	PaidAmount       decimal.Decimal
	RemainingBalance decimal.Decimal

	// PaymentMethod stays nil until the first receipt is applied.
	PaymentMethod *string
	PaymentStatus PaymentStatus

	RelatedReceiptIDs []string
}

type InvoiceParams struct {
	CustomerID     string
	CustomerName   string
	CustomerTaxID  *string
	DocumentNumber string
	Description    string
	TotalAmount    decimal.Decimal
	Currency       string
	IssueDate      time.Time
}

// NewInvoice creates an unpaid invoice.
func NewInvoice(p InvoiceParams) (*Invoice, error) {
	inv := &Invoice{
		Header: Header{
			CustomerID:     p.CustomerID,
			CustomerName:   p.CustomerName,
			DocumentNumber: p.DocumentNumber,
			Currency:       NormalizeCurrency(p.Currency),
			IssueDate:      p.IssueDate,
			Description:    p.Description,
		},
		CustomerTaxID:     p.CustomerTaxID,
		TotalAmount:       p.TotalAmount,
		PaidAmount:        decimal.Zero,
		RemainingBalance:  p.TotalAmount,
		PaymentStatus:     PaymentStatusUnpaid,
		RelatedReceiptIDs: []string{},
	}
	if err := inv.Validate(); err != nil {
		return nil, err
	}
	return inv, nil
}

func (i *Invoice) Type() DocumentType { return DocumentTypeInvoice }

// StatusFor derives the payment status from the balances.
func StatusFor(paid, remaining decimal.Decimal) PaymentStatus {
	switch {
	case remaining.IsZero():
		return PaymentStatusPaid
	case paid.IsPositive():
		return PaymentStatusPartial
	default:
		return PaymentStatusUnpaid
	}
}

func (i *Invoice) Validate() error {
	if err := i.Header.validate(); err != nil {
		return err
	}
	if !ValidAmount(i.TotalAmount) {
		return &ValidationError{Field: "total_amount", Message: "must be a positive amount with at most 2 decimal places"}
	}
	if i.PaidAmount.IsNegative() || i.RemainingBalance.IsNegative() {
		return fmt.Errorf("%w: negative balance on %s", ErrInvariant, i.DocumentNumber)
	}
	if !i.PaidAmount.Add(i.RemainingBalance).Equal(i.TotalAmount) {
		return fmt.Errorf("%w: paid %s + remaining %s != total %s on %s",
			ErrInvariant, i.PaidAmount, i.RemainingBalance, i.TotalAmount, i.DocumentNumber)
	}
	if i.PaymentStatus != StatusFor(i.PaidAmount, i.RemainingBalance) {
		return fmt.Errorf("%w: status %q does not match balances on %s", ErrInvariant, i.PaymentStatus, i.DocumentNumber)
	}
	return nil
}

// CheckPayment validates amount against the current balance without
// mutating the invoice.
func (i *Invoice) CheckPayment(amount decimal.Decimal) error {
	if !i.RemainingBalance.IsPositive() {
		return ErrAlreadySettled
	}
	if !ValidAmount(amount) {
		return ErrInvalidAmount
	}
	if amount.GreaterThan(i.RemainingBalance) {
		return ErrAmountExceedsBalance
	}
	return nil
}

// ApplyPayment books amount against the invoice on behalf of receiptID.
func (i *Invoice) ApplyPayment(amount decimal.Decimal, receiptID, method string) error {
	if err := i.CheckPayment(amount); err != nil {
		return err
	}
	i.PaidAmount = i.PaidAmount.Add(amount)
	i.RemainingBalance = i.RemainingBalance.Sub(amount)
	i.PaymentStatus = StatusFor(i.PaidAmount, i.RemainingBalance)
	i.RelatedReceiptIDs = append(i.RelatedReceiptIDs, receiptID)
	if method != "" {
		m := method
		i.PaymentMethod = &m
	}
	return nil
}

// CheckTransition verifies that next is a legal successor of prev: same
// identity and total, balances only move towards paid, receipts only
// appended.
func CheckTransition(prev, next *Invoice) error {
	if prev.ID() != next.ID() || !prev.TotalAmount.Equal(next.TotalAmount) || prev.Currency != next.Currency {
		return fmt.Errorf("%w: identity of %s changed", ErrInvariant, prev.DocumentNumber)
	}
	if next.PaidAmount.LessThan(prev.PaidAmount) {
		return fmt.Errorf("%w: paid amount of %s decreased", ErrInvariant, prev.DocumentNumber)
	}
	if len(next.RelatedReceiptIDs) < len(prev.RelatedReceiptIDs) {
		return fmt.Errorf("%w: receipts removed from %s", ErrInvariant, prev.DocumentNumber)
	}
	for i, id := range prev.RelatedReceiptIDs {
		if next.RelatedReceiptIDs[i] != id {
			return fmt.Errorf("%w: receipts of %s rewritten", ErrInvariant, prev.DocumentNumber)
		}
	}
	return next.Validate()
}
