package firestore

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"invofox/internal/domain"
)

// documentRecord is the Firestore layout of the documents collection.
// Field names are shared with the other writers of the collection.
type documentRecord struct {
	DocumentType   string    `firestore:"documentType"`
	CustomerID     string    `firestore:"customerId"`
	CustomerName   string    `firestore:"customerName"`
	CustomerTaxID  *string   `firestore:"customerTaxId"`
	DocumentNumber string    `firestore:"documentNumber"`
	Description    string    `firestore:"description"`
	Currency       string    `firestore:"currency"`
	IssueDate      time.Time `firestore:"issueDate"`

	TotalAmount      *float64 `firestore:"totalAmount,omitempty"`
	PaidAmount       *float64 `firestore:"paidAmount,omitempty"`
	RemainingBalance *float64 `firestore:"remainingBalance,omitempty"`
	AmountPaid       *float64 `firestore:"amountPaid,omitempty"`

	PaymentMethod  *string `firestore:"paymentMethod"`
	PaymentStatus  string  `firestore:"paymentStatus,omitempty"`
	IsMultiInvoice bool    `firestore:"isMultiInvoice"`

	RelatedReceiptIDs     []string `firestore:"relatedReceiptIds"`
	RelatedInvoiceNumbers []string `firestore:"relatedInvoiceNumbers"`
	RelatedInvoiceIDs     []string `firestore:"relatedInvoiceIds"`

	DocumentURL *string   `firestore:"documentUrl"`
	CreatedAt   time.Time `firestore:"createdAt"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

func amount(d decimal.Decimal) *float64 {
	f := d.Round(domain.MoneyPlaces).InexactFloat64()
	return &f
}

func fromAmount(f *float64) decimal.Decimal {
	if f == nil {
		return decimal.Zero
	}
	return decimal.NewFromFloat(*f).Round(domain.MoneyPlaces)
}

func stringList(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}

func recordFromDocument(doc domain.Document) (documentRecord, error) {
	h := domain.HeaderOf(doc)
	r := documentRecord{
		DocumentType:   string(doc.Type()),
		CustomerID:     h.CustomerID,
		CustomerName:   h.CustomerName,
		DocumentNumber: h.DocumentNumber,
		Description:    h.Description,
		Currency:       h.Currency,
		IssueDate:      h.IssueDate,
		DocumentURL:    h.DocumentURL,
		CreatedAt:      h.CreatedAt,
		UpdatedAt:      h.UpdatedAt,
	}

	switch d := doc.(type) {
	case *domain.Invoice:
		r.CustomerTaxID = d.CustomerTaxID
		r.TotalAmount = amount(d.TotalAmount)
		r.PaidAmount = amount(d.PaidAmount)
		r.RemainingBalance = amount(d.RemainingBalance)
		r.PaymentMethod = d.PaymentMethod
		r.PaymentStatus = string(d.PaymentStatus)
		r.RelatedReceiptIDs = stringList(d.RelatedReceiptIDs)
	case *domain.Receipt:
		method := d.PaymentMethod
		r.AmountPaid = amount(d.AmountPaid)
		r.PaymentMethod = &method
		r.IsMultiInvoice = d.IsMultiInvoice
		r.RelatedInvoiceNumbers = stringList(d.RelatedInvoiceNumbers)
		r.RelatedInvoiceIDs = stringList(d.RelatedInvoiceIDs)
	case *domain.InvoiceReceipt:
		method := d.PaymentMethod
		r.CustomerTaxID = d.CustomerTaxID
		r.TotalAmount = amount(d.TotalAmount)
		r.PaidAmount = amount(d.PaidAmount)
		r.RemainingBalance = amount(d.RemainingBalance)
		r.PaymentMethod = &method
		r.PaymentStatus = string(d.PaymentStatus)
	default:
		return documentRecord{}, fmt.Errorf("unsupported document %T", doc)
	}
	return r, nil
}

func (r documentRecord) toDocument(id string) (domain.Document, error) {
	header := domain.Header{
		CustomerID:     r.CustomerID,
		CustomerName:   r.CustomerName,
		DocumentNumber: r.DocumentNumber,
		Currency:       r.Currency,
		IssueDate:      r.IssueDate,
		Description:    r.Description,
		DocumentURL:    r.DocumentURL,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}

	method := ""
	if r.PaymentMethod != nil {
		method = *r.PaymentMethod
	}

	switch domain.DocumentType(r.DocumentType) {
	case domain.DocumentTypeInvoice:
		return &domain.Invoice{
			Header:            header,
			CustomerTaxID:     r.CustomerTaxID,
			TotalAmount:       fromAmount(r.TotalAmount),
			PaidAmount:        fromAmount(r.PaidAmount),
			RemainingBalance:  fromAmount(r.RemainingBalance),
			PaymentMethod:     r.PaymentMethod,
			PaymentStatus:     domain.PaymentStatus(r.PaymentStatus),
			RelatedReceiptIDs: stringList(r.RelatedReceiptIDs),
		}, nil
	case domain.DocumentTypeReceipt:
		return &domain.Receipt{
			Header:                header,
			AmountPaid:            fromAmount(r.AmountPaid),
			PaymentMethod:         method,
			IsMultiInvoice:        r.IsMultiInvoice,
			RelatedInvoiceNumbers: stringList(r.RelatedInvoiceNumbers),
			RelatedInvoiceIDs:     stringList(r.RelatedInvoiceIDs),
		}, nil
	case domain.DocumentTypeInvoiceReceipt:
		return &domain.InvoiceReceipt{
			Header:           header,
			CustomerTaxID:    r.CustomerTaxID,
			TotalAmount:      fromAmount(r.TotalAmount),
			PaidAmount:       fromAmount(r.PaidAmount),
			RemainingBalance: fromAmount(r.RemainingBalance),
			PaymentMethod:    method,
			PaymentStatus:    domain.PaymentStatus(r.PaymentStatus),
		}, nil
	}
	return nil, fmt.Errorf("document %s: unknown document type %q", id, r.DocumentType)
}
