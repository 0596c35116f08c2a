package domain

import (
	"fmt"
	"time"
)

type DocumentType string

const (
	DocumentTypeInvoice        DocumentType = "invoice"
	DocumentTypeReceipt        DocumentType = "receipt"
	DocumentTypeInvoiceReceipt DocumentType = "invoice_receipt"
)

var DocumentTypes = []DocumentType{DocumentTypeInvoice, DocumentTypeReceipt, DocumentTypeInvoiceReceipt}

func (t DocumentType) Valid() bool {
	switch t {
	case DocumentTypeInvoice, DocumentTypeReceipt, DocumentTypeInvoiceReceipt:
		return true
	}
	return false
}

func ParseDocumentType(s string) (DocumentType, error) {
	t := DocumentType(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: unknown document type %q", ErrInvalidInput, s)
	}
	return t, nil
}

type PaymentStatus string

const (
	PaymentStatusUnpaid  PaymentStatus = "unpaid"
	PaymentStatusPartial PaymentStatus = "partial"
	PaymentStatusPaid    PaymentStatus = "paid"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusUnpaid, PaymentStatusPartial, PaymentStatusPaid:
		return true
	}
	return false
}

// Header holds the fields every ledger document carries.
type Header struct {
	CustomerID     string
	CustomerName   string
	DocumentNumber string
	Currency       string
	IssueDate      time.Time
	Description    string

	// DocumentURL is attached after the rendered file is uploaded.
	DocumentURL *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ID is the repository key of the document.
func (h *Header) ID() string {
	return DocumentKey(h.CustomerID, h.DocumentNumber)
}

func (h *Header) header() *Header { return h }

func (h *Header) validate() error {
	if h.CustomerID == "" {
		return &ValidationError{Field: "customer_id", Message: "is required"}
	}
	if h.CustomerName == "" {
		return &ValidationError{Field: "customer_name", Message: "is required"}
	}
	if h.DocumentNumber == "" {
		return &ValidationError{Field: "document_number", Message: "is required"}
	}
	if !ValidCurrency(h.Currency) {
		return &ValidationError{Field: "currency", Message: fmt.Sprintf("%q is not an ISO 4217 code", h.Currency)}
	}
	if h.IssueDate.IsZero() {
		return &ValidationError{Field: "issue_date", Message: "is required"}
	}
	return nil
}

// Document is the closed set of ledger documents: *Invoice, *Receipt and
// *InvoiceReceipt. Callers switch on the concrete type.
type Document interface {
	Type() DocumentType
	ID() string
	Validate() error
	header() *Header
}

// HeaderOf exposes the shared fields of any document.
func HeaderOf(d Document) *Header {
	return d.header()
}

// DocumentKey builds the storage key shared with the other writers of the
// documents collection.
func DocumentKey(customerID, documentNumber string) string {
	return fmt.Sprintf("customer_%s_%s", customerID, documentNumber)
}

func CounterKey(customerID string, year int) string {
	return fmt.Sprintf("customer_%s_%d", customerID, year)
}

// CloneDocument returns a deep copy so stores never share slices with callers.
func CloneDocument(d Document) Document {
	switch v := d.(type) {
	case *Invoice:
		c := *v
		c.RelatedReceiptIDs = append([]string(nil), v.RelatedReceiptIDs...)
		c.CustomerTaxID = cloneString(v.CustomerTaxID)
		c.PaymentMethod = cloneString(v.PaymentMethod)
		c.DocumentURL = cloneString(v.DocumentURL)
		return &c
	case *Receipt:
		c := *v
		c.RelatedInvoiceNumbers = append([]string(nil), v.RelatedInvoiceNumbers...)
		c.RelatedInvoiceIDs = append([]string(nil), v.RelatedInvoiceIDs...)
		c.DocumentURL = cloneString(v.DocumentURL)
		return &c
	case *InvoiceReceipt:
		c := *v
		c.CustomerTaxID = cloneString(v.CustomerTaxID)
		c.DocumentURL = cloneString(v.DocumentURL)
		return &c
	}
	return d
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	s := *p
	return &s
}

// StatusOf returns the payment status of documents that carry one.
func StatusOf(d Document) (PaymentStatus, bool) {
	switch v := d.(type) {
	case *Invoice:
		return v.PaymentStatus, true
	case *InvoiceReceipt:
		return v.PaymentStatus, true
	}
	return "", false
}
