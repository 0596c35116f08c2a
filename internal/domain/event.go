package domain

import "time"

const (
	EventInvoiceIssued        = "ledger.invoice.issued"
	EventReceiptIssued        = "ledger.receipt.issued"
	EventInvoiceReceiptIssued = "ledger.invoice_receipt.issued"
)

// LedgerEvent announces a committed document to downstream consumers.
type LedgerEvent struct {
	ID             string    `json:"event_id"`
	Type           string    `json:"event_type"`
	CustomerID     string    `json:"customer_id"`
	DocumentID     string    `json:"document_id"`
	DocumentNumber string    `json:"document_number"`
	Amount         string    `json:"amount"`
	Currency       string    `json:"currency"`
	InvoiceNumbers []string  `json:"invoice_numbers,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}
