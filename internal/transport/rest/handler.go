package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"invofox/internal/domain"
	"invofox/internal/service"
)

// IdempotencyHeader names the request header carrying the client's key.
const IdempotencyHeader = "Idempotency-Key"

// Ledger is the application surface the HTTP API exposes; service.Ledger
// implements it.
type Ledger interface {
	AllocateDocumentNumber(ctx context.Context, customerID string, docType domain.DocumentType, year *int) (string, error)
	PeekCounter(ctx context.Context, customerID string, year int, docType domain.DocumentType) (int64, error)

	IssueInvoice(ctx context.Context, key string, in service.InvoiceInput) (service.IssuedDocument, bool, error)
	IssuePaidInFull(ctx context.Context, key string, in service.PaidInFullInput) (service.IssuedDocument, bool, error)
	SettleSingle(ctx context.Context, key string, in service.SingleSettlementInput) (service.SingleSettlementResult, bool, error)
	SettleMulti(ctx context.Context, key string, in service.MultiSettlementInput) (service.MultiSettlementResult, bool, error)

	GetInvoiceByNumber(ctx context.Context, number, customerID string) (*domain.Invoice, error)
	ListInvoices(ctx context.Context, customerID string, status domain.PaymentStatus, limit int) ([]*domain.Invoice, error)

	DocumentStatus(ctx context.Context, documentID string) (service.DocumentStatus, error)
	RetryDocument(ctx context.Context, documentID string) (service.DocumentStatus, error)
}

type Handler struct {
	ledger Ledger
	log    zerolog.Logger
}

func NewHandler(ledger Ledger, log zerolog.Logger) *Handler {
	return &Handler{
		ledger: ledger,
		log:    log.With().Str("component", "http").Logger(),
	}
}

func (h *Handler) InitRouter() *chi.Mux {
	return h.InitRouterWithAuth(nil)
}

func (h *Handler) InitRouterWithAuth(authMiddleware func(http.Handler) http.Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		h.requestLogger,
		middleware.Recoverer,
		middleware.Timeout(60*time.Second),
	)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		Success(w, "ok", map[string]string{"status": "up"})
	})

	r.Group(func(r chi.Router) {
		if authMiddleware != nil {
			r.Use(authMiddleware)
		}

		r.Route("/counters", func(r chi.Router) {
			r.Post("/allocate", h.allocateNumber)
			r.Get("/{customerId}/{year}/{type}", h.peekCounter)
		})

		r.Route("/invoices", func(r chi.Router) {
			r.Post("/", h.issueInvoice)
			r.Get("/{number}", h.getInvoice)
		})
		r.Get("/customers/{customerId}/invoices", h.listInvoices)

		r.Route("/settlements", func(r chi.Router) {
			r.Post("/single", h.settleSingle)
			r.Post("/multi", h.settleMulti)
		})
		r.Post("/invoice-receipts", h.issueInvoiceReceipt)

		r.Route("/documents/{id}", func(r chi.Router) {
			r.Get("/status", h.documentStatus)
			r.Post("/retry", h.retryDocument)
		})
	})

	return r
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.log.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	ErrorFrom(w, h.log.With().Str("request_id", middleware.GetReqID(r.Context())).Logger(), err)
}
