package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"invofox/internal/domain"
	"invofox/internal/service"
)

const maxBodyBytes = 1 << 20

type AllocateRequest struct {
	CustomerID   string `json:"customer_id"`
	DocumentType string `json:"document_type"`
	Year         *int   `json:"year,omitempty"`
}

type rawInvoiceRequest struct {
	CustomerID    string      `json:"customer_id"`
	CustomerName  string      `json:"customer_name"`
	CustomerTaxID *string     `json:"customer_tax_id"`
	Description   string      `json:"description"`
	TotalAmount   interface{} `json:"total_amount"`
	Amount        interface{} `json:"amount"`
	Currency      string      `json:"currency"`
	PaymentMethod string      `json:"payment_method"`
	Date          interface{} `json:"date"`
}

type rawSingleSettlementRequest struct {
	InvoiceNumber string      `json:"invoice_number"`
	CustomerID    string      `json:"customer_id"`
	Amount        interface{} `json:"amount"`
	PaymentMethod string      `json:"payment_method"`
	Date          interface{} `json:"date"`
}

type rawMultiSettlementRequest struct {
	InvoiceNumbers []string    `json:"invoice_numbers"`
	CustomerID     string      `json:"customer_id"`
	PaymentMethod  string      `json:"payment_method"`
	Date           interface{} `json:"date"`
}

func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return &domain.ValidationError{Field: "body", Message: "is required"}
		}
		return &domain.ValidationError{Field: "body", Message: "must be valid JSON"}
	}
	return nil
}

func ValidateAllocateRequest(r *http.Request) (*AllocateRequest, domain.DocumentType, error) {
	var req AllocateRequest
	if err := decodeJSON(r, &req); err != nil {
		return nil, "", err
	}
	if strings.TrimSpace(req.CustomerID) == "" {
		return nil, "", &domain.ValidationError{Field: "customer_id", Message: "is required"}
	}
	docType, err := domain.ParseDocumentType(req.DocumentType)
	if err != nil {
		return nil, "", &domain.ValidationError{Field: "document_type", Message: "must be invoice, receipt or invoice_receipt"}
	}
	if req.Year != nil && (*req.Year < 1 || *req.Year > 9999) {
		return nil, "", &domain.ValidationError{Field: "year", Message: "must be between 1 and 9999"}
	}
	return &req, docType, nil
}

func ValidateInvoiceRequest(r *http.Request) (*service.InvoiceInput, error) {
	var raw rawInvoiceRequest
	if err := decodeJSON(r, &raw); err != nil {
		return nil, err
	}
	total, err := toDecimal("total_amount", raw.TotalAmount)
	if err != nil {
		return nil, err
	}
	date, err := toDate("date", raw.Date)
	if err != nil {
		return nil, err
	}
	return &service.InvoiceInput{
		CustomerID:    raw.CustomerID,
		CustomerName:  raw.CustomerName,
		CustomerTaxID: raw.CustomerTaxID,
		Description:   raw.Description,
		TotalAmount:   total,
		Currency:      raw.Currency,
		Date:          date,
	}, nil
}

func ValidatePaidInFullRequest(r *http.Request) (*service.PaidInFullInput, error) {
	var raw rawInvoiceRequest
	if err := decodeJSON(r, &raw); err != nil {
		return nil, err
	}
	amountRaw := raw.Amount
	if amountRaw == nil {
		amountRaw = raw.TotalAmount
	}
	amount, err := toDecimal("amount", amountRaw)
	if err != nil {
		return nil, err
	}
	date, err := toDate("date", raw.Date)
	if err != nil {
		return nil, err
	}
	return &service.PaidInFullInput{
		CustomerID:    raw.CustomerID,
		CustomerName:  raw.CustomerName,
		CustomerTaxID: raw.CustomerTaxID,
		Description:   raw.Description,
		Amount:        amount,
		Currency:      raw.Currency,
		PaymentMethod: raw.PaymentMethod,
		Date:          date,
	}, nil
}

func ValidateSingleSettlementRequest(r *http.Request) (*service.SingleSettlementInput, error) {
	var raw rawSingleSettlementRequest
	if err := decodeJSON(r, &raw); err != nil {
		return nil, err
	}
	if strings.TrimSpace(raw.InvoiceNumber) == "" {
		return nil, &domain.ValidationError{Field: "invoice_number", Message: "is required"}
	}
	amount, err := toDecimal("amount", raw.Amount)
	if err != nil {
		return nil, err
	}
	date, err := toDate("date", raw.Date)
	if err != nil {
		return nil, err
	}
	return &service.SingleSettlementInput{
		InvoiceNumber: raw.InvoiceNumber,
		CustomerID:    raw.CustomerID,
		Amount:        amount,
		PaymentMethod: raw.PaymentMethod,
		Date:          date,
	}, nil
}

func ValidateMultiSettlementRequest(r *http.Request) (*service.MultiSettlementInput, error) {
	var raw rawMultiSettlementRequest
	if err := decodeJSON(r, &raw); err != nil {
		return nil, err
	}
	date, err := toDate("date", raw.Date)
	if err != nil {
		return nil, err
	}
	return &service.MultiSettlementInput{
		InvoiceNumbers: raw.InvoiceNumbers,
		CustomerID:     raw.CustomerID,
		PaymentMethod:  raw.PaymentMethod,
		Date:           date,
	}, nil
}

// toDecimal accepts JSON numbers and numeric strings.
func toDecimal(field string, v interface{}) (decimal.Decimal, error) {
	switch t := v.(type) {
	case nil:
		return decimal.Zero, &domain.ValidationError{Field: field, Message: "is required"}
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		if err != nil {
			return decimal.Zero, &domain.ValidationError{Field: field, Message: "must be a decimal number"}
		}
		return d, nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(t))
		if err != nil {
			return decimal.Zero, &domain.ValidationError{Field: field, Message: "must be a decimal number"}
		}
		return d, nil
	default:
		return decimal.Zero, &domain.ValidationError{Field: field, Message: "must be a number or numeric string"}
	}
}

// toDate accepts YYYY-MM-DD or RFC 3339; empty means today.
func toDate(field string, v interface{}) (time.Time, error) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, nil
	case string:
		t = strings.TrimSpace(t)
		if t == "" {
			return time.Time{}, nil
		}
		if parsed, err := time.Parse("2006-01-02", t); err == nil {
			return parsed, nil
		}
		parsed, err := time.Parse(time.RFC3339, t)
		if err != nil {
			return time.Time{}, &domain.ValidationError{Field: field, Message: "must be YYYY-MM-DD or RFC 3339"}
		}
		return parsed, nil
	default:
		return time.Time{}, &domain.ValidationError{Field: field, Message: "must be a string"}
	}
}

func parseYear(s string) (int, error) {
	year, err := strconv.Atoi(s)
	if err != nil || year < 1 || year > 9999 {
		return 0, &domain.ValidationError{Field: "year", Message: fmt.Sprintf("%q is not a valid year", s)}
	}
	return year, nil
}

func parseLimit(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(s)
	if err != nil || limit < 0 {
		return 0, &domain.ValidationError{Field: "limit", Message: "must be a non-negative integer"}
	}
	return limit, nil
}
