package rest

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"invofox/internal/domain"
)

type invoiceView struct {
	ID                string               `json:"id"`
	DocumentNumber    string               `json:"document_number"`
	CustomerID        string               `json:"customer_id"`
	CustomerName      string               `json:"customer_name"`
	CustomerTaxID     *string              `json:"customer_tax_id,omitempty"`
	Description       string               `json:"description"`
	Currency          string               `json:"currency"`
	IssueDate         string               `json:"issue_date"`
	TotalAmount       string               `json:"total_amount"`
	PaidAmount        string               `json:"paid_amount"`
	RemainingBalance  string               `json:"remaining_balance"`
	PaymentStatus     domain.PaymentStatus `json:"payment_status"`
	PaymentMethod     *string              `json:"payment_method"`
	RelatedReceiptIDs []string             `json:"related_receipt_ids"`
	DocumentURL       *string              `json:"document_url"`
	UpdatedAt         time.Time            `json:"updated_at"`
}

func toInvoiceView(inv *domain.Invoice) invoiceView {
	return invoiceView{
		ID:                inv.ID(),
		DocumentNumber:    inv.DocumentNumber,
		CustomerID:        inv.CustomerID,
		CustomerName:      inv.CustomerName,
		CustomerTaxID:     inv.CustomerTaxID,
		Description:       inv.Description,
		Currency:          inv.Currency,
		IssueDate:         inv.IssueDate.Format("2006-01-02"),
		TotalAmount:       inv.TotalAmount.StringFixed(domain.MoneyPlaces),
		PaidAmount:        inv.PaidAmount.StringFixed(domain.MoneyPlaces),
		RemainingBalance:  inv.RemainingBalance.StringFixed(domain.MoneyPlaces),
		PaymentStatus:     inv.PaymentStatus,
		PaymentMethod:     inv.PaymentMethod,
		RelatedReceiptIDs: inv.RelatedReceiptIDs,
		DocumentURL:       inv.DocumentURL,
		UpdatedAt:         inv.UpdatedAt,
	}
}

func idempotencyKey(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(IdempotencyHeader))
}

func (h *Handler) created(w http.ResponseWriter, replayed bool, message string, data interface{}) {
	if replayed {
		w.Header().Set("Idempotent-Replayed", "true")
		Success(w, message, data)
		return
	}
	SuccessCreated(w, message, data)
}

func (h *Handler) allocateNumber(w http.ResponseWriter, r *http.Request) {
	req, docType, err := ValidateAllocateRequest(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	number, err := h.ledger.AllocateDocumentNumber(r.Context(), req.CustomerID, docType, req.Year)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	SuccessCreated(w, "document number allocated", map[string]string{"document_number": number})
}

func (h *Handler) peekCounter(w http.ResponseWriter, r *http.Request) {
	year, err := parseYear(chi.URLParam(r, "year"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	docType, err := domain.ParseDocumentType(chi.URLParam(r, "type"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	value, err := h.ledger.PeekCounter(r.Context(), chi.URLParam(r, "customerId"), year, docType)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	Success(w, "counter value", map[string]int64{"value": value})
}

func (h *Handler) issueInvoice(w http.ResponseWriter, r *http.Request) {
	in, err := ValidateInvoiceRequest(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	doc, replayed, err := h.ledger.IssueInvoice(r.Context(), idempotencyKey(r), *in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.created(w, replayed, "invoice issued", doc)
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")
	inv, err := h.ledger.GetInvoiceByNumber(r.Context(), number, r.URL.Query().Get("customer_id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if inv == nil {
		ErrorNotFound(w, "invoice "+number+" not found")
		return
	}
	Success(w, "invoice", toInvoiceView(inv))
}

func (h *Handler) listInvoices(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	status := domain.PaymentStatus(r.URL.Query().Get("status"))

	invoices, err := h.ledger.ListInvoices(r.Context(), chi.URLParam(r, "customerId"), status, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	views := make([]invoiceView, 0, len(invoices))
	for _, inv := range invoices {
		views = append(views, toInvoiceView(inv))
	}
	Success(w, "invoices", views)
}

func (h *Handler) settleSingle(w http.ResponseWriter, r *http.Request) {
	in, err := ValidateSingleSettlementRequest(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	res, replayed, err := h.ledger.SettleSingle(r.Context(), idempotencyKey(r), *in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.created(w, replayed, "receipt issued", res)
}

func (h *Handler) settleMulti(w http.ResponseWriter, r *http.Request) {
	in, err := ValidateMultiSettlementRequest(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	res, replayed, err := h.ledger.SettleMulti(r.Context(), idempotencyKey(r), *in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.created(w, replayed, "receipt issued", res)
}

func (h *Handler) issueInvoiceReceipt(w http.ResponseWriter, r *http.Request) {
	in, err := ValidatePaidInFullRequest(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	doc, replayed, err := h.ledger.IssuePaidInFull(r.Context(), idempotencyKey(r), *in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.created(w, replayed, "invoice receipt issued", doc)
}

func (h *Handler) documentStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.ledger.DocumentStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	Success(w, "document status", st)
}

func (h *Handler) retryDocument(w http.ResponseWriter, r *http.Request) {
	st, err := h.ledger.RetryDocument(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	SuccessAccepted(w, "document queued", st)
}
