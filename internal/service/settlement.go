package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"invofox/internal/domain"
	"invofox/internal/repository"
)

type EventPublisher interface {
	Publish(ctx context.Context, event domain.LedgerEvent) error
}

type SingleSettlementInput struct {
	InvoiceNumber string          `json:"invoice_number"`
	CustomerID    string          `json:"customer_id,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"payment_method"`
	Date          time.Time       `json:"date"`
}

type InvoiceUpdate struct {
	InvoiceID           string               `json:"invoice_id"`
	InvoiceNumber       string               `json:"invoice_number"`
	NewPaidAmount       decimal.Decimal      `json:"new_paid_amount"`
	NewRemainingBalance decimal.Decimal      `json:"new_remaining_balance"`
	NewPaymentStatus    domain.PaymentStatus `json:"new_payment_status"`
}

type SingleSettlementResult struct {
	ReceiptNumber string          `json:"receipt_number"`
	ReceiptID     string          `json:"receipt_id"`
	AmountPaid    decimal.Decimal `json:"amount_paid"`
	Invoice       InvoiceUpdate   `json:"invoice"`
}

type MultiSettlementInput struct {
	InvoiceNumbers []string  `json:"invoice_numbers"`
	CustomerID     string    `json:"customer_id,omitempty"`
	PaymentMethod  string    `json:"payment_method"`
	Date           time.Time `json:"date"`
}

type MultiSettlementResult struct {
	ReceiptNumber string          `json:"receipt_number"`
	ReceiptID     string          `json:"receipt_id"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Invoices      []InvoiceUpdate `json:"invoices"`
}

type PaidInFullInput struct {
	CustomerID    string          `json:"customer_id"`
	CustomerName  string          `json:"customer_name"`
	CustomerTaxID *string         `json:"customer_tax_id,omitempty"`
	Description   string          `json:"description"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	PaymentMethod string          `json:"payment_method"`
	Date          time.Time       `json:"date"`
}

type InvoiceInput struct {
	CustomerID    string          `json:"customer_id"`
	CustomerName  string          `json:"customer_name"`
	CustomerTaxID *string         `json:"customer_tax_id,omitempty"`
	Description   string          `json:"description"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Currency      string          `json:"currency"`
	Date          time.Time       `json:"date"`
}

type IssuedDocument struct {
	Type           domain.DocumentType `json:"document_type"`
	CustomerID     string              `json:"customer_id"`
	DocumentNumber string              `json:"document_number"`
	DocumentID     string              `json:"document_id"`
}

// SettlementService is the only writer of invoice balances. Every
// operation validates outside a transaction first and then re-validates
// against a fresh read inside it.
type SettlementService struct {
	store    repository.Store
	counters *CounterService
	events   EventPublisher
	opts     Options
	log      zerolog.Logger
}

// NewSettlementService wires the engine; events may be nil.
func NewSettlementService(store repository.Store, counters *CounterService, events EventPublisher, opts Options) *SettlementService {
	opts = opts.withDefaults()
	return &SettlementService{
		store:    store,
		counters: counters,
		events:   events,
		opts:     opts,
		log:      opts.Logger.With().Str("component", "settlement").Logger(),
	}
}

func normalizePaymentMethod(method string) (string, error) {
	m := strings.ToLower(strings.TrimSpace(method))
	if m == "" {
		return "", &domain.ValidationError{Field: "payment_method", Message: "is required"}
	}
	return m, nil
}

// canonicalNumber upper-cases numbers in the I/R/IR format and leaves
// anything else as typed.
func canonicalNumber(s string) string {
	s = strings.TrimSpace(s)
	if t, year, seq, err := domain.ParseDocumentNumber(s); err == nil {
		return domain.FormatDocumentNumber(t, year, seq)
	}
	return s
}

// normalizeSelection trims, drops blanks and removes repeats keeping the
// first occurrence.
func normalizeSelection(numbers []string) []string {
	seen := make(map[string]bool, len(numbers))
	out := make([]string, 0, len(numbers))
	for _, n := range numbers {
		n = canonicalNumber(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

func (s *SettlementService) issueDate(d time.Time) time.Time {
	if d.IsZero() {
		d = s.opts.Now()
	}
	return d.In(s.opts.Location)
}

func (s *SettlementService) lookupDocument(ctx context.Context, op, number, customerID string) (domain.Document, error) {
	if number == "" {
		return nil, &domain.ValidationError{Field: "invoice_number", Message: "is required"}
	}

	if customerID != "" {
		doc, err := s.store.GetDocument(ctx, domain.DocumentKey(customerID, number))
		if err == nil {
			return doc, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		others, err := s.store.FindDocuments(ctx, repository.DocumentQuery{DocumentNumber: number, Limit: 1})
		if err != nil {
			return nil, err
		}
		if len(others) > 0 {
			return nil, domain.NewSettlementError(op, domain.ErrOwnershipMismatch, number)
		}
		return nil, domain.NewSettlementError(op, domain.ErrNotFound, number)
	}

	docs, err := s.store.FindDocuments(ctx, repository.DocumentQuery{DocumentNumber: number, Limit: 2})
	if err != nil {
		return nil, err
	}
	switch len(docs) {
	case 0:
		return nil, domain.NewSettlementError(op, domain.ErrNotFound, number)
	case 1:
		return docs[0], nil
	}
	return nil, domain.NewSettlementError(op, domain.ErrAmbiguousDocument, number)
}

func (s *SettlementService) lookupInvoice(ctx context.Context, op, number, customerID string) (*domain.Invoice, error) {
	doc, err := s.lookupDocument(ctx, op, number, customerID)
	if err != nil {
		return nil, err
	}
	inv, ok := doc.(*domain.Invoice)
	if !ok {
		return nil, domain.NewSettlementError(op, domain.ErrWrongDocumentType, number)
	}
	return inv, nil
}

// rereadInvoice loads the authoritative copy inside tx. Anything other
// than an invoice at the key means the lookup is stale.
func rereadInvoice(ctx context.Context, tx repository.Tx, op string, inv *domain.Invoice) (*domain.Invoice, error) {
	doc, err := tx.GetDocument(ctx, inv.ID())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.RaceLost(op, domain.ErrNotFound, inv.DocumentNumber)
		}
		return nil, err
	}
	fresh, ok := doc.(*domain.Invoice)
	if !ok {
		return nil, domain.RaceLost(op, domain.ErrWrongDocumentType, inv.DocumentNumber)
	}
	return fresh, nil
}

func updateOf(inv *domain.Invoice) InvoiceUpdate {
	return InvoiceUpdate{
		InvoiceID:           inv.ID(),
		InvoiceNumber:       inv.DocumentNumber,
		NewPaidAmount:       inv.PaidAmount,
		NewRemainingBalance: inv.RemainingBalance,
		NewPaymentStatus:    inv.PaymentStatus,
	}
}

// SettleSingle applies a (possibly partial) payment to one invoice.
func (s *SettlementService) SettleSingle(ctx context.Context, in SingleSettlementInput) (SingleSettlementResult, error) {
	const op = "settle invoice"

	method, err := normalizePaymentMethod(in.PaymentMethod)
	if err != nil {
		return SingleSettlementResult{}, err
	}
	number := canonicalNumber(in.InvoiceNumber)
	customerID := strings.TrimSpace(in.CustomerID)
	issueDate := s.issueDate(in.Date)
	year := s.counters.YearOf(issueDate)

	var res SingleSettlementResult
	var receipt *domain.Receipt
	err = s.opts.Retry.Do(ctx, func(ctx context.Context, attempt int) error {
		inv, err := s.lookupInvoice(ctx, op, number, customerID)
		if err != nil {
			return err
		}
		if err := inv.CheckPayment(in.Amount); err != nil {
			return domain.NewSettlementError(op, err, inv.DocumentNumber)
		}

		err = runTx(ctx, s.store, s.opts.TxTimeout, func(ctx context.Context, tx repository.Tx) error {
			fresh, err := rereadInvoice(ctx, tx, op, inv)
			if err != nil {
				return err
			}
			if err := fresh.CheckPayment(in.Amount); err != nil {
				return domain.RaceLost(op, err, fresh.DocumentNumber)
			}

			receiptNumber, err := s.counters.Allocate(ctx, tx, fresh.CustomerID, year, domain.DocumentTypeReceipt)
			if err != nil {
				return err
			}
			r, err := domain.NewReceipt(domain.ReceiptParams{
				CustomerID:     fresh.CustomerID,
				CustomerName:   fresh.CustomerName,
				DocumentNumber: receiptNumber,
				Description:    fmt.Sprintf("Payment for invoice %s", fresh.DocumentNumber),
				AmountPaid:     in.Amount,
				Currency:       fresh.Currency,
				PaymentMethod:  method,
				IssueDate:      issueDate,
				Invoices:       []*domain.Invoice{fresh},
			})
			if err != nil {
				return err
			}
			if err := fresh.ApplyPayment(in.Amount, r.ID(), method); err != nil {
				return domain.RaceLost(op, err, fresh.DocumentNumber)
			}

			if err := tx.CreateDocument(ctx, r); err != nil {
				return err
			}
			if err := tx.UpdateInvoice(ctx, fresh); err != nil {
				return err
			}

			receipt = r
			res = SingleSettlementResult{
				ReceiptNumber: r.DocumentNumber,
				ReceiptID:     r.ID(),
				AmountPaid:    r.AmountPaid,
				Invoice:       updateOf(fresh),
			}
			return nil
		})
		if domain.Retryable(err) {
			s.log.Debug().Err(err).Int("attempt", attempt).Str("invoice", number).Msg("settlement attempt lost, retrying")
		}
		return err
	})
	if err != nil {
		s.log.Warn().Err(err).
			Str("invoice", number).
			Str("customer_id", customerID).
			Str("error_code", domain.ErrorCode(err)).
			Msg("settlement rejected")
		return SingleSettlementResult{}, err
	}

	s.log.Info().
		Str("customer_id", receipt.CustomerID).
		Str("receipt", res.ReceiptNumber).
		Str("invoice", res.Invoice.InvoiceNumber).
		Str("amount", res.AmountPaid.StringFixed(domain.MoneyPlaces)).
		Str("status", string(res.Invoice.NewPaymentStatus)).
		Msg("invoice settled")
	s.publish(ctx, domain.EventReceiptIssued, receipt, receipt.AmountPaid, receipt.RelatedInvoiceNumbers)
	return res, nil
}

// SettleMulti pays every selected invoice in full with one receipt. A
// selection of exactly one invoice is settled as a single-invoice payment
// of its whole remaining balance.
func (s *SettlementService) SettleMulti(ctx context.Context, in MultiSettlementInput) (MultiSettlementResult, error) {
	const op = "settle invoices"

	numbers := normalizeSelection(in.InvoiceNumbers)
	switch {
	case len(numbers) == 0:
		return MultiSettlementResult{}, domain.NewSettlementError(op, domain.ErrTooFew)
	case len(numbers) > domain.MaxReceiptInvoices:
		return MultiSettlementResult{}, domain.NewSettlementError(op, domain.ErrTooMany, numbers...)
	}
	method, err := normalizePaymentMethod(in.PaymentMethod)
	if err != nil {
		return MultiSettlementResult{}, err
	}
	customerID := strings.TrimSpace(in.CustomerID)
	issueDate := s.issueDate(in.Date)
	year := s.counters.YearOf(issueDate)

	var res MultiSettlementResult
	var receipt *domain.Receipt
	err = s.opts.Retry.Do(ctx, func(ctx context.Context, attempt int) error {
		invoices, err := s.precheckSelection(ctx, op, numbers, customerID)
		if err != nil {
			return err
		}

		err = runTx(ctx, s.store, s.opts.TxTimeout, func(ctx context.Context, tx repository.Tx) error {
			fresh := make([]*domain.Invoice, 0, len(invoices))
			for _, inv := range invoices {
				f, err := rereadInvoice(ctx, tx, op, inv)
				if err != nil {
					return err
				}
				if !f.RemainingBalance.IsPositive() {
					return domain.RaceLost(op, domain.ErrAlreadySettled, f.DocumentNumber)
				}
				fresh = append(fresh, f)
			}

			total := decimal.Zero
			for _, f := range fresh {
				total = total.Add(f.RemainingBalance)
			}

			receiptNumber, err := s.counters.Allocate(ctx, tx, fresh[0].CustomerID, year, domain.DocumentTypeReceipt)
			if err != nil {
				return err
			}
			r, err := domain.NewReceipt(domain.ReceiptParams{
				CustomerID:     fresh[0].CustomerID,
				CustomerName:   fresh[0].CustomerName,
				DocumentNumber: receiptNumber,
				Description:    receiptDescription(fresh),
				AmountPaid:     total,
				Currency:       fresh[0].Currency,
				PaymentMethod:  method,
				IssueDate:      issueDate,
				Invoices:       fresh,
			})
			if err != nil {
				return err
			}
			if err := tx.CreateDocument(ctx, r); err != nil {
				return err
			}

			updates := make([]InvoiceUpdate, 0, len(fresh))
			for _, f := range fresh {
				if err := f.ApplyPayment(f.RemainingBalance, r.ID(), method); err != nil {
					return domain.RaceLost(op, err, f.DocumentNumber)
				}
				if err := tx.UpdateInvoice(ctx, f); err != nil {
					return err
				}
				updates = append(updates, updateOf(f))
			}

			receipt = r
			res = MultiSettlementResult{
				ReceiptNumber: r.DocumentNumber,
				ReceiptID:     r.ID(),
				TotalAmount:   total,
				Invoices:      updates,
			}
			return nil
		})
		if domain.Retryable(err) {
			s.log.Debug().Err(err).Int("attempt", attempt).Strs("invoices", numbers).Msg("settlement attempt lost, retrying")
		}
		return err
	})
	if err != nil {
		s.log.Warn().Err(err).
			Strs("invoices", numbers).
			Str("customer_id", customerID).
			Str("error_code", domain.ErrorCode(err)).
			Msg("settlement rejected")
		return MultiSettlementResult{}, err
	}

	s.log.Info().
		Str("customer_id", receipt.CustomerID).
		Str("receipt", res.ReceiptNumber).
		Strs("invoices", receipt.RelatedInvoiceNumbers).
		Str("total", res.TotalAmount.StringFixed(domain.MoneyPlaces)).
		Msg("invoices settled")
	s.publish(ctx, domain.EventReceiptIssued, receipt, receipt.AmountPaid, receipt.RelatedInvoiceNumbers)
	return res, nil
}

// precheckSelection runs the lookup phase for a batch and reports every
// offending number per failure kind.
func (s *SettlementService) precheckSelection(ctx context.Context, op string, numbers []string, customerID string) ([]*domain.Invoice, error) {
	invoices := make([]*domain.Invoice, 0, len(numbers))
	var missing []string
	for _, n := range numbers {
		inv, err := s.lookupInvoice(ctx, op, n, customerID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				missing = append(missing, n)
				continue
			}
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	if len(missing) > 0 {
		return nil, domain.NewSettlementError(op, domain.ErrNotFound, missing...)
	}

	first := invoices[0]
	var crossCustomer, crossCurrency, settled []string
	for _, inv := range invoices {
		switch {
		case inv.CustomerID != first.CustomerID:
			crossCustomer = append(crossCustomer, inv.DocumentNumber)
		case inv.Currency != first.Currency:
			crossCurrency = append(crossCurrency, inv.DocumentNumber)
		case !inv.RemainingBalance.IsPositive():
			settled = append(settled, inv.DocumentNumber)
		}
	}
	if len(crossCustomer) > 0 {
		return nil, domain.NewSettlementError(op, domain.ErrCrossCustomer, crossCustomer...)
	}
	if len(crossCurrency) > 0 {
		return nil, domain.NewSettlementError(op, domain.ErrCrossCurrency, crossCurrency...)
	}
	if len(settled) > 0 {
		return nil, domain.NewSettlementError(op, domain.ErrAlreadySettled, settled...)
	}
	return invoices, nil
}

func receiptDescription(invoices []*domain.Invoice) string {
	if len(invoices) == 1 {
		return fmt.Sprintf("Payment for invoice %s", invoices[0].DocumentNumber)
	}
	numbers := make([]string, len(invoices))
	for i, inv := range invoices {
		numbers[i] = inv.DocumentNumber
	}
	return fmt.Sprintf("Payment for invoices %s", strings.Join(numbers, ", "))
}

// IssuePaidInFull creates an invoice-receipt: an invoice paid at issuance.
func (s *SettlementService) IssuePaidInFull(ctx context.Context, in PaidInFullInput) (IssuedDocument, error) {
	method, err := normalizePaymentMethod(in.PaymentMethod)
	if err != nil {
		return IssuedDocument{}, err
	}
	if !domain.ValidAmount(in.Amount) {
		return IssuedDocument{}, domain.NewSettlementError("issue invoice-receipt", domain.ErrInvalidAmount)
	}

	return s.issue(ctx, domain.DocumentTypeInvoiceReceipt, in.CustomerID, in.Date, func(number string, issueDate time.Time) (domain.Document, error) {
		return domain.NewInvoiceReceipt(domain.InvoiceReceiptParams{
			CustomerID:     strings.TrimSpace(in.CustomerID),
			CustomerName:   strings.TrimSpace(in.CustomerName),
			CustomerTaxID:  in.CustomerTaxID,
			DocumentNumber: number,
			Description:    in.Description,
			Amount:         in.Amount,
			Currency:       in.Currency,
			PaymentMethod:  method,
			IssueDate:      issueDate,
		})
	})
}

// IssueInvoice creates a new unpaid invoice under the next invoice number.
func (s *SettlementService) IssueInvoice(ctx context.Context, in InvoiceInput) (IssuedDocument, error) {
	if !domain.ValidAmount(in.TotalAmount) {
		return IssuedDocument{}, &domain.ValidationError{Field: "total_amount", Message: "must be a positive amount with at most 2 decimal places"}
	}

	return s.issue(ctx, domain.DocumentTypeInvoice, in.CustomerID, in.Date, func(number string, issueDate time.Time) (domain.Document, error) {
		return domain.NewInvoice(domain.InvoiceParams{
			CustomerID:     strings.TrimSpace(in.CustomerID),
			CustomerName:   strings.TrimSpace(in.CustomerName),
			CustomerTaxID:  in.CustomerTaxID,
			DocumentNumber: number,
			Description:    in.Description,
			TotalAmount:    in.TotalAmount,
			Currency:       in.Currency,
			IssueDate:      issueDate,
		})
	})
}

func (s *SettlementService) issue(
	ctx context.Context,
	docType domain.DocumentType,
	customerID string,
	date time.Time,
	build func(number string, issueDate time.Time) (domain.Document, error),
) (IssuedDocument, error) {
	customerID = strings.TrimSpace(customerID)
	issueDate := s.issueDate(date)
	year := s.counters.YearOf(issueDate)

	var doc domain.Document
	err := s.opts.Retry.Do(ctx, func(ctx context.Context, attempt int) error {
		return runTx(ctx, s.store, s.opts.TxTimeout, func(ctx context.Context, tx repository.Tx) error {
			number, err := s.counters.Allocate(ctx, tx, customerID, year, docType)
			if err != nil {
				return err
			}
			d, err := build(number, issueDate)
			if err != nil {
				return err
			}
			if err := tx.CreateDocument(ctx, d); err != nil {
				return err
			}
			doc = d
			return nil
		})
	})
	if err != nil {
		s.log.Warn().Err(err).Str("customer_id", customerID).Str("type", string(docType)).Msg("issuance failed")
		return IssuedDocument{}, err
	}

	h := domain.HeaderOf(doc)
	s.log.Info().Str("customer_id", h.CustomerID).Str("number", h.DocumentNumber).Msg("document issued")

	switch d := doc.(type) {
	case *domain.Invoice:
		s.publish(ctx, domain.EventInvoiceIssued, d, d.TotalAmount, nil)
	case *domain.InvoiceReceipt:
		s.publish(ctx, domain.EventInvoiceReceiptIssued, d, d.TotalAmount, nil)
	}
	return IssuedDocument{
		Type:           docType,
		CustomerID:     h.CustomerID,
		DocumentNumber: h.DocumentNumber,
		DocumentID:     doc.ID(),
	}, nil
}

// GetInvoiceByNumber returns nil without error when no such invoice exists.
func (s *SettlementService) GetInvoiceByNumber(ctx context.Context, number, customerID string) (*domain.Invoice, error) {
	inv, err := s.lookupInvoice(ctx, "get invoice", canonicalNumber(number), strings.TrimSpace(customerID))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, timeoutError(err)
	}
	return inv, nil
}

// ListInvoices returns a customer's invoices, optionally filtered by status.
func (s *SettlementService) ListInvoices(ctx context.Context, customerID string, status domain.PaymentStatus, limit int) ([]*domain.Invoice, error) {
	if strings.TrimSpace(customerID) == "" {
		return nil, &domain.ValidationError{Field: "customer_id", Message: "is required"}
	}
	if status != "" && !status.Valid() {
		return nil, &domain.ValidationError{Field: "status", Message: fmt.Sprintf("unknown payment status %q", status)}
	}

	docs, err := s.store.FindDocuments(ctx, repository.DocumentQuery{
		CustomerID: strings.TrimSpace(customerID),
		Type:       domain.DocumentTypeInvoice,
		Status:     status,
		Limit:      limit,
	})
	if err != nil {
		return nil, timeoutError(err)
	}
	out := make([]*domain.Invoice, 0, len(docs))
	for _, d := range docs {
		if inv, ok := d.(*domain.Invoice); ok {
			out = append(out, inv)
		}
	}
	return out, nil
}

// GetDocument loads any ledger document by its repository key.
func (s *SettlementService) GetDocument(ctx context.Context, id string) (domain.Document, error) {
	doc, err := s.store.GetDocument(ctx, id)
	return doc, timeoutError(err)
}

func (s *SettlementService) publish(ctx context.Context, eventType string, doc domain.Document, amount decimal.Decimal, invoices []string) {
	if s.events == nil {
		return
	}
	h := domain.HeaderOf(doc)
	ev := domain.LedgerEvent{
		ID:             uuid.NewString(),
		Type:           eventType,
		CustomerID:     h.CustomerID,
		DocumentID:     doc.ID(),
		DocumentNumber: h.DocumentNumber,
		Amount:         amount.StringFixed(domain.MoneyPlaces),
		Currency:       h.Currency,
		InvoiceNumbers: invoices,
		OccurredAt:     s.opts.Now().UTC(),
	}
	if err := s.events.Publish(context.WithoutCancel(ctx), ev); err != nil {
		s.log.Error().Err(err).Str("event", eventType).Str("document_id", ev.DocumentID).Msg("failed to publish ledger event")
	}
}
