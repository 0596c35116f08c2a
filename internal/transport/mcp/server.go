package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/server"

	"invofox/internal/domain"
	"invofox/internal/service"
)

// Ledger is the part of service.Ledger the chat tools use.
type Ledger interface {
	AllocateDocumentNumber(ctx context.Context, customerID string, docType domain.DocumentType, year *int) (string, error)
	IssueInvoice(ctx context.Context, key string, in service.InvoiceInput) (service.IssuedDocument, bool, error)
	IssuePaidInFull(ctx context.Context, key string, in service.PaidInFullInput) (service.IssuedDocument, bool, error)
	SettleSingle(ctx context.Context, key string, in service.SingleSettlementInput) (service.SingleSettlementResult, bool, error)
	SettleMulti(ctx context.Context, key string, in service.MultiSettlementInput) (service.MultiSettlementResult, bool, error)
	GetInvoiceByNumber(ctx context.Context, number, customerID string) (*domain.Invoice, error)
	DocumentStatus(ctx context.Context, documentID string) (service.DocumentStatus, error)
}

// NewLedgerMCPServer exposes the ledger operations as MCP tools for the
// chat front end.
func NewLedgerMCPServer(ledger Ledger, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"invofox",
		version,
		server.WithToolCapabilities(true),
	)

	registerTools(s, ledger)

	return s
}
