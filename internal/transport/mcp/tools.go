package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/shopspring/decimal"

	"invofox/internal/domain"
	"invofox/internal/service"
)

func registerTools(s *server.MCPServer, ledger Ledger) {
	s.AddTool(
		mcplib.NewTool("allocate_document_number",
			mcplib.WithDescription("Allocates the next document number for a customer, e.g. I-2026-4"),
			mcplib.WithString("customer_id", mcplib.Required(), mcplib.Description("Customer identifier")),
			mcplib.WithString("document_type", mcplib.Required(),
				mcplib.Enum(string(domain.DocumentTypeInvoice), string(domain.DocumentTypeReceipt), string(domain.DocumentTypeInvoiceReceipt)),
				mcplib.Description("invoice, receipt or invoice_receipt")),
			mcplib.WithNumber("year", mcplib.Description("Document year; defaults to the current year")),
		),
		handleAllocate(ledger),
	)

	s.AddTool(
		mcplib.NewTool("issue_invoice",
			mcplib.WithDescription("Issues an unpaid invoice"),
			mcplib.WithString("customer_id", mcplib.Required(), mcplib.Description("Customer identifier")),
			mcplib.WithString("customer_name", mcplib.Required(), mcplib.Description("Customer display name")),
			mcplib.WithString("description", mcplib.Description("What is being invoiced")),
			mcplib.WithString("total_amount", mcplib.Required(), mcplib.Description("Invoice total, e.g. 1250.00")),
			mcplib.WithString("currency", mcplib.Required(), mcplib.Description("ISO 4217 code, e.g. ILS")),
			mcplib.WithString("date", mcplib.Description("Issue date YYYY-MM-DD; defaults to today")),
			mcplib.WithString("idempotency_key", mcplib.Description("Repeat-safe request key")),
		),
		handleIssueInvoice(ledger),
	)

	s.AddTool(
		mcplib.NewTool("get_invoice",
			mcplib.WithDescription("Returns an invoice with its current balance"),
			mcplib.WithString("invoice_number", mcplib.Required(), mcplib.Description("Invoice number, e.g. I-2026-1")),
			mcplib.WithString("customer_id", mcplib.Description("Customer the invoice must belong to")),
		),
		handleGetInvoice(ledger),
	)

	s.AddTool(
		mcplib.NewTool("settle_invoice",
			mcplib.WithDescription("Records a full or partial payment of one invoice and issues a receipt"),
			mcplib.WithString("invoice_number", mcplib.Required(), mcplib.Description("Invoice number, e.g. I-2026-1")),
			mcplib.WithString("customer_id", mcplib.Description("Customer the invoice must belong to")),
			mcplib.WithString("amount", mcplib.Required(), mcplib.Description("Amount paid")),
			mcplib.WithString("payment_method", mcplib.Required(), mcplib.Description("cash, card, bank_transfer, ...")),
			mcplib.WithString("date", mcplib.Description("Payment date YYYY-MM-DD; defaults to today")),
			mcplib.WithString("idempotency_key", mcplib.Description("Repeat-safe request key")),
		),
		handleSettleInvoice(ledger),
	)

	s.AddTool(
		mcplib.NewTool("settle_invoices",
			mcplib.WithDescription("Pays up to 10 invoices of one customer in full with a single receipt"),
			mcplib.WithArray("invoice_numbers", mcplib.Required(),
				mcplib.Description("Invoice numbers to settle"),
				mcplib.Items(map[string]any{"type": "string"})),
			mcplib.WithString("customer_id", mcplib.Description("Customer the invoices must belong to")),
			mcplib.WithString("payment_method", mcplib.Required(), mcplib.Description("cash, card, bank_transfer, ...")),
			mcplib.WithString("date", mcplib.Description("Payment date YYYY-MM-DD; defaults to today")),
			mcplib.WithString("idempotency_key", mcplib.Description("Repeat-safe request key")),
		),
		handleSettleInvoices(ledger),
	)

	s.AddTool(
		mcplib.NewTool("issue_invoice_receipt",
			mcplib.WithDescription("Issues a paid-in-full invoice-receipt"),
			mcplib.WithString("customer_id", mcplib.Required(), mcplib.Description("Customer identifier")),
			mcplib.WithString("customer_name", mcplib.Required(), mcplib.Description("Customer display name")),
			mcplib.WithString("description", mcplib.Description("What was sold")),
			mcplib.WithString("amount", mcplib.Required(), mcplib.Description("Amount paid")),
			mcplib.WithString("currency", mcplib.Required(), mcplib.Description("ISO 4217 code")),
			mcplib.WithString("payment_method", mcplib.Required(), mcplib.Description("cash, card, bank_transfer, ...")),
			mcplib.WithString("date", mcplib.Description("Issue date YYYY-MM-DD; defaults to today")),
			mcplib.WithString("idempotency_key", mcplib.Description("Repeat-safe request key")),
		),
		handleIssueInvoiceReceipt(ledger),
	)

	s.AddTool(
		mcplib.NewTool("document_status",
			mcplib.WithDescription("Reports whether the rendered file of a document is ready and where"),
			mcplib.WithString("document_id", mcplib.Required(), mcplib.Description("Document id, e.g. customer_c1_R-2026-3")),
		),
		handleDocumentStatus(ledger),
	)
}

func handleAllocate(ledger Ledger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		customerID, err := request.RequireString("customer_id")
		if err != nil {
			return errorResult(err.Error()), nil
		}
		rawType, err := request.RequireString("document_type")
		if err != nil {
			return errorResult(err.Error()), nil
		}
		docType, err := domain.ParseDocumentType(rawType)
		if err != nil {
			return ledgerError(err), nil
		}

		var year *int
		if v, ok := request.GetArguments()["year"].(float64); ok {
			y := int(v)
			year = &y
		}

		number, err := ledger.AllocateDocumentNumber(ctx, customerID, docType, year)
		if err != nil {
			return ledgerError(err), nil
		}
		return jsonResult(map[string]string{"document_number": number})
	}
}

func handleIssueInvoice(ledger Ledger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		args := request.GetArguments()
		total, err := argDecimal(args, "total_amount")
		if err != nil {
			return ledgerError(err), nil
		}
		date, err := argDate(args, "date")
		if err != nil {
			return ledgerError(err), nil
		}

		doc, _, err := ledger.IssueInvoice(ctx, argString(args, "idempotency_key"), service.InvoiceInput{
			CustomerID:   argString(args, "customer_id"),
			CustomerName: argString(args, "customer_name"),
			Description:  argString(args, "description"),
			TotalAmount:  total,
			Currency:     argString(args, "currency"),
			Date:         date,
		})
		if err != nil {
			return ledgerError(err), nil
		}
		return jsonResult(doc)
	}
}

type invoiceSummary struct {
	DocumentID       string               `json:"document_id"`
	DocumentNumber   string               `json:"document_number"`
	CustomerID       string               `json:"customer_id"`
	CustomerName     string               `json:"customer_name"`
	Total            string               `json:"total"`
	Paid             string               `json:"paid"`
	Remaining        string               `json:"remaining"`
	PaymentStatus    domain.PaymentStatus `json:"payment_status"`
	RelatedReceipts  []string             `json:"related_receipts"`
	DocumentURL      *string              `json:"document_url,omitempty"`
	RemainingDisplay string               `json:"remaining_display"`
}

func handleGetInvoice(ledger Ledger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		number, err := request.RequireString("invoice_number")
		if err != nil {
			return errorResult(err.Error()), nil
		}
		inv, err := ledger.GetInvoiceByNumber(ctx, number, argString(request.GetArguments(), "customer_id"))
		if err != nil {
			return ledgerError(err), nil
		}
		if inv == nil {
			return ledgerError(fmt.Errorf("invoice %s: %w", number, domain.ErrNotFound)), nil
		}
		return jsonResult(invoiceSummary{
			DocumentID:       inv.ID(),
			DocumentNumber:   inv.DocumentNumber,
			CustomerID:       inv.CustomerID,
			CustomerName:     inv.CustomerName,
			Total:            inv.TotalAmount.StringFixed(domain.MoneyPlaces),
			Paid:             inv.PaidAmount.StringFixed(domain.MoneyPlaces),
			Remaining:        inv.RemainingBalance.StringFixed(domain.MoneyPlaces),
			PaymentStatus:    inv.PaymentStatus,
			RelatedReceipts:  inv.RelatedReceiptIDs,
			DocumentURL:      inv.DocumentURL,
			RemainingDisplay: domain.FormatMoney(inv.RemainingBalance, inv.Currency),
		})
	}
}

func handleSettleInvoice(ledger Ledger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		args := request.GetArguments()
		number, err := request.RequireString("invoice_number")
		if err != nil {
			return errorResult(err.Error()), nil
		}
		amount, err := argDecimal(args, "amount")
		if err != nil {
			return ledgerError(err), nil
		}
		date, err := argDate(args, "date")
		if err != nil {
			return ledgerError(err), nil
		}

		res, _, err := ledger.SettleSingle(ctx, argString(args, "idempotency_key"), service.SingleSettlementInput{
			InvoiceNumber: number,
			CustomerID:    argString(args, "customer_id"),
			Amount:        amount,
			PaymentMethod: argString(args, "payment_method"),
			Date:          date,
		})
		if err != nil {
			return ledgerError(err), nil
		}
		return jsonResult(res)
	}
}

func handleSettleInvoices(ledger Ledger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		args := request.GetArguments()
		numbers, err := argStrings(args, "invoice_numbers")
		if err != nil {
			return ledgerError(err), nil
		}
		date, err := argDate(args, "date")
		if err != nil {
			return ledgerError(err), nil
		}

		res, _, err := ledger.SettleMulti(ctx, argString(args, "idempotency_key"), service.MultiSettlementInput{
			InvoiceNumbers: numbers,
			CustomerID:     argString(args, "customer_id"),
			PaymentMethod:  argString(args, "payment_method"),
			Date:           date,
		})
		if err != nil {
			return ledgerError(err), nil
		}
		return jsonResult(res)
	}
}

func handleIssueInvoiceReceipt(ledger Ledger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		args := request.GetArguments()
		amount, err := argDecimal(args, "amount")
		if err != nil {
			return ledgerError(err), nil
		}
		date, err := argDate(args, "date")
		if err != nil {
			return ledgerError(err), nil
		}

		doc, _, err := ledger.IssuePaidInFull(ctx, argString(args, "idempotency_key"), service.PaidInFullInput{
			CustomerID:    argString(args, "customer_id"),
			CustomerName:  argString(args, "customer_name"),
			Description:   argString(args, "description"),
			Amount:        amount,
			Currency:      argString(args, "currency"),
			PaymentMethod: argString(args, "payment_method"),
			Date:          date,
		})
		if err != nil {
			return ledgerError(err), nil
		}
		return jsonResult(doc)
	}
}

func handleDocumentStatus(ledger Ledger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		id, err := request.RequireString("document_id")
		if err != nil {
			return errorResult(err.Error()), nil
		}
		st, err := ledger.DocumentStatus(ctx, id)
		if err != nil {
			return ledgerError(err), nil
		}
		return jsonResult(st)
	}
}

func argString(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return strings.TrimSpace(s)
}

// argDecimal accepts "12.50" as well as a bare JSON number.
func argDecimal(args map[string]any, key string) (decimal.Decimal, error) {
	switch v := args[key].(type) {
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil {
			return decimal.Zero, &domain.ValidationError{Field: key, Message: "must be a decimal number"}
		}
		return d, nil
	case float64:
		return decimal.NewFromFloat(v), nil
	case nil:
		return decimal.Zero, &domain.ValidationError{Field: key, Message: "is required"}
	}
	return decimal.Zero, &domain.ValidationError{Field: key, Message: "must be a decimal number"}
}

func argDate(args map[string]any, key string) (time.Time, error) {
	s := argString(args, key)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, &domain.ValidationError{Field: key, Message: "must be YYYY-MM-DD"}
	}
	return t, nil
}

// argStrings accepts a JSON array or a comma separated string.
func argStrings(args map[string]any, key string) ([]string, error) {
	switch v := args[key].(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, &domain.ValidationError{Field: key, Message: "must contain strings"}
			}
			out = append(out, s)
		}
		return out, nil
	case []string:
		return v, nil
	case string:
		return strings.Split(v, ","), nil
	case nil:
		return nil, nil
	}
	return nil, &domain.ValidationError{Field: key, Message: "must be an array of strings"}
}

func jsonResult(v interface{}) (*mcplib.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling result: %w", err)
	}
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{mcplib.NewTextContent(string(data))},
	}, nil
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{mcplib.NewTextContent(msg)},
		IsError: true,
	}
}

// ledgerError prefixes the message with the stable error code so the chat
// front end can branch on it.
func ledgerError(err error) *mcplib.CallToolResult {
	return errorResult(fmt.Sprintf("[%s] %s", domain.ErrorCode(err), err.Error()))
}
