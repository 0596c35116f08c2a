package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestInvoice(t *testing.T, total string) *Invoice {
	t.Helper()
	inv, err := NewInvoice(InvoiceParams{
		CustomerID:     "c1",
		CustomerName:   "Acme Ltd",
		DocumentNumber: "I-2026-1",
		Description:    "consulting",
		TotalAmount:    d(total),
		Currency:       "ils",
		IssueDate:      time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return inv
}

func TestNewInvoice(t *testing.T) {
	inv := newTestInvoice(t, "1000")

	assert.Equal(t, "ILS", inv.Currency)
	assert.Equal(t, PaymentStatusUnpaid, inv.PaymentStatus)
	assert.True(t, inv.RemainingBalance.Equal(d("1000")))
	assert.True(t, inv.PaidAmount.IsZero())
	assert.Nil(t, inv.PaymentMethod)
	assert.Empty(t, inv.RelatedReceiptIDs)
	assert.Equal(t, "customer_c1_I-2026-1", inv.ID())
}

func TestNewInvoice_Rejects(t *testing.T) {
	base := InvoiceParams{
		CustomerID:     "c1",
		CustomerName:   "Acme",
		DocumentNumber: "I-2026-1",
		TotalAmount:    d("10"),
		Currency:       "ILS",
		IssueDate:      time.Now(),
	}

	tests := map[string]func(p *InvoiceParams){
		"no customer":    func(p *InvoiceParams) { p.CustomerID = "" },
		"no name":        func(p *InvoiceParams) { p.CustomerName = "" },
		"no number":      func(p *InvoiceParams) { p.DocumentNumber = "" },
		"bad currency":   func(p *InvoiceParams) { p.Currency = "shekel" },
		"zero total":     func(p *InvoiceParams) { p.TotalAmount = decimal.Zero },
		"three decimals": func(p *InvoiceParams) { p.TotalAmount = d("1.005") },
		"no date":        func(p *InvoiceParams) { p.IssueDate = time.Time{} },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			p := base
			mutate(&p)
			_, err := NewInvoice(p)
			var ve *ValidationError
			require.True(t, errors.As(err, &ve), "got %v", err)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, PaymentStatusUnpaid, StatusFor(decimal.Zero, d("10")))
	assert.Equal(t, PaymentStatusPartial, StatusFor(d("4"), d("6")))
	assert.Equal(t, PaymentStatusPaid, StatusFor(d("10"), decimal.Zero))
}

func TestInvoice_ApplyPayment(t *testing.T) {
	inv := newTestInvoice(t, "1000")

	require.NoError(t, inv.ApplyPayment(d("400"), "customer_c1_R-2026-1", "cash"))
	assert.True(t, inv.PaidAmount.Equal(d("400")))
	assert.True(t, inv.RemainingBalance.Equal(d("600")))
	assert.Equal(t, PaymentStatusPartial, inv.PaymentStatus)
	require.NotNil(t, inv.PaymentMethod)
	assert.Equal(t, "cash", *inv.PaymentMethod)
	require.NoError(t, inv.Validate())

	assert.ErrorIs(t, inv.CheckPayment(d("700")), ErrAmountExceedsBalance)
	assert.ErrorIs(t, inv.CheckPayment(decimal.Zero), ErrInvalidAmount)
	assert.ErrorIs(t, inv.CheckPayment(d("-5")), ErrInvalidAmount)
	assert.ErrorIs(t, inv.CheckPayment(d("0.001")), ErrInvalidAmount)

	require.NoError(t, inv.ApplyPayment(d("600"), "customer_c1_R-2026-2", "bank_transfer"))
	assert.Equal(t, PaymentStatusPaid, inv.PaymentStatus)
	assert.True(t, inv.RemainingBalance.IsZero())
	assert.Equal(t, []string{"customer_c1_R-2026-1", "customer_c1_R-2026-2"}, inv.RelatedReceiptIDs)

	assert.ErrorIs(t, inv.ApplyPayment(d("1"), "customer_c1_R-2026-3", "cash"), ErrAlreadySettled)
	assert.Len(t, inv.RelatedReceiptIDs, 2)
}

func TestInvoice_ValidateInvariants(t *testing.T) {
	inv := newTestInvoice(t, "100")

	broken := *inv
	broken.PaidAmount = d("10")
	assert.ErrorIs(t, broken.Validate(), ErrInvariant)

	broken = *inv
	broken.PaymentStatus = PaymentStatusPaid
	assert.ErrorIs(t, broken.Validate(), ErrInvariant)

	broken = *inv
	broken.PaidAmount = d("110")
	broken.RemainingBalance = d("-10")
	assert.ErrorIs(t, broken.Validate(), ErrInvariant)
}

func TestNewReceipt(t *testing.T) {
	a := newTestInvoice(t, "100")
	b := newTestInvoice(t, "50")
	b.DocumentNumber = "I-2026-2"

	r, err := NewReceipt(ReceiptParams{
		CustomerID:     "c1",
		CustomerName:   "Acme Ltd",
		DocumentNumber: "R-2026-1",
		AmountPaid:     d("150"),
		Currency:       "ILS",
		PaymentMethod:  "cash",
		IssueDate:      time.Now(),
		Invoices:       []*Invoice{a, b},
	})
	require.NoError(t, err)
	assert.True(t, r.IsMultiInvoice)
	assert.Equal(t, []string{"I-2026-1", "I-2026-2"}, r.RelatedInvoiceNumbers)
	assert.Equal(t, []string{"customer_c1_I-2026-1", "customer_c1_I-2026-2"}, r.RelatedInvoiceIDs)

	b.Currency = "USD"
	_, err = NewReceipt(ReceiptParams{
		CustomerID: "c1", CustomerName: "Acme Ltd", DocumentNumber: "R-2026-2",
		AmountPaid: d("150"), Currency: "ILS", PaymentMethod: "cash", IssueDate: time.Now(),
		Invoices: []*Invoice{a, b},
	})
	assert.ErrorIs(t, err, ErrCrossCurrency)
	assert.Equal(t, []string{"I-2026-2"}, DocumentNumbersOf(err))

	_, err = NewReceipt(ReceiptParams{
		CustomerID: "c1", CustomerName: "Acme Ltd", DocumentNumber: "R-2026-3",
		AmountPaid: d("150"), Currency: "ILS", PaymentMethod: "cash", IssueDate: time.Now(),
	})
	assert.ErrorIs(t, err, ErrInvariant)
}

func TestNewInvoiceReceipt(t *testing.T) {
	ir, err := NewInvoiceReceipt(InvoiceReceiptParams{
		CustomerID:     "c1",
		CustomerName:   "Acme Ltd",
		DocumentNumber: "IR-2026-1",
		Amount:         d("250.75"),
		Currency:       "USD",
		PaymentMethod:  "credit_card",
		IssueDate:      time.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, PaymentStatusPaid, ir.PaymentStatus)
	assert.True(t, ir.RemainingBalance.IsZero())
	assert.True(t, ir.PaidAmount.Equal(ir.TotalAmount))

	_, err = NewInvoiceReceipt(InvoiceReceiptParams{
		CustomerID: "c1", CustomerName: "Acme Ltd", DocumentNumber: "IR-2026-2",
		Amount: d("10"), Currency: "USD", IssueDate: time.Now(),
	})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCloneDocument_DoesNotShare(t *testing.T) {
	inv := newTestInvoice(t, "100")
	require.NoError(t, inv.ApplyPayment(d("10"), "r1", "cash"))

	c := CloneDocument(inv).(*Invoice)
	c.RelatedReceiptIDs[0] = "changed"
	*c.PaymentMethod = "cheque"

	assert.Equal(t, "r1", inv.RelatedReceiptIDs[0])
	assert.Equal(t, "cash", *inv.PaymentMethod)
}

func TestSettlementError(t *testing.T) {
	err := RaceLost("settle multi", ErrAlreadySettled, "I-2026-2")

	assert.ErrorIs(t, err, ErrRaceLost)
	assert.ErrorIs(t, err, ErrAlreadySettled)
	assert.True(t, Retryable(err))
	assert.Equal(t, "race_lost", ErrorCode(err))
	assert.Equal(t, "settle multi: lost race to a concurrent settlement (I-2026-2): invoice is already settled", err.Error())

	assert.Equal(t, "already_settled", ErrorCode(NewSettlementError("settle", ErrAlreadySettled)))
	assert.False(t, Retryable(ErrAlreadySettled))
	assert.True(t, Retryable(ErrStorageConflict))
	assert.Equal(t, "internal", ErrorCode(errors.New("boom")))
	assert.Equal(t, "invalid_input", ErrorCode(&ValidationError{Field: "x", Message: "bad"}))
}
