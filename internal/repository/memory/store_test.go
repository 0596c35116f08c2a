package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invofox/internal/domain"
	"invofox/internal/repository"
)

func newInvoice(t *testing.T, customerID, number, total string) *domain.Invoice {
	t.Helper()
	inv, err := domain.NewInvoice(domain.InvoiceParams{
		CustomerID:     customerID,
		CustomerName:   "Customer " + customerID,
		DocumentNumber: number,
		TotalAmount:    decimal.RequireFromString(total),
		Currency:       "ILS",
		IssueDate:      time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return inv
}

func seed(t *testing.T, s *Store, docs ...domain.Document) {
	t.Helper()
	err := s.RunInTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		for _, d := range docs {
			if err := tx.CreateDocument(ctx, d); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func TestStore_CreateAndGet(t *testing.T) {
	s := New()
	ctx := context.Background()
	inv := newInvoice(t, "c1", "I-2026-1", "100")
	seed(t, s, inv)

	got, err := s.GetDocument(ctx, "customer_c1_I-2026-1")
	require.NoError(t, err)
	gotInv, ok := got.(*domain.Invoice)
	require.True(t, ok)
	assert.True(t, gotInv.TotalAmount.Equal(decimal.NewFromInt(100)))
	assert.False(t, gotInv.CreatedAt.IsZero())

	_, err = s.GetDocument(ctx, "customer_c1_I-2026-9")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// mutating the returned copy must not leak into the store
	gotInv.RemainingBalance = decimal.Zero
	again, _ := s.GetDocument(ctx, inv.ID())
	assert.True(t, again.(*domain.Invoice).RemainingBalance.Equal(decimal.NewFromInt(100)))
}

func TestStore_CreateDuplicate(t *testing.T) {
	s := New()
	seed(t, s, newInvoice(t, "c1", "I-2026-1", "100"))

	err := s.RunInTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		return tx.CreateDocument(ctx, newInvoice(t, "c1", "I-2026-1", "5"))
	})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
}

func TestStore_FindDocuments(t *testing.T) {
	s := New()
	a := newInvoice(t, "c1", "I-2026-1", "100")
	b := newInvoice(t, "c2", "I-2026-1", "200")
	c := newInvoice(t, "c1", "I-2026-2", "300")
	require.NoError(t, c.ApplyPayment(decimal.NewFromInt(300), "r", "cash"))
	seed(t, s, a, b, c)
	ctx := context.Background()

	docs, err := s.FindDocuments(ctx, repository.DocumentQuery{DocumentNumber: "I-2026-1"})
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	docs, err = s.FindDocuments(ctx, repository.DocumentQuery{CustomerID: "c1"})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "I-2026-1", domain.HeaderOf(docs[0]).DocumentNumber)

	docs, err = s.FindDocuments(ctx, repository.DocumentQuery{CustomerID: "c1", Status: domain.PaymentStatusPaid})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "I-2026-2", domain.HeaderOf(docs[0]).DocumentNumber)

	docs, err = s.FindDocuments(ctx, repository.DocumentQuery{Type: domain.DocumentTypeReceipt})
	require.NoError(t, err)
	assert.Empty(t, docs)

	docs, err = s.FindDocuments(ctx, repository.DocumentQuery{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestStore_NextCounter(t *testing.T) {
	s := New()
	ctx := context.Background()

	var got []int64
	for i := 0; i < 3; i++ {
		err := s.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			n, err := tx.NextCounter(ctx, "c1", 2026, domain.DocumentTypeReceipt)
			got = append(got, n)
			return err
		})
		require.NoError(t, err)
	}
	assert.Equal(t, []int64{1, 2, 3}, got)

	peek, err := s.PeekCounter(ctx, "c1", 2026, domain.DocumentTypeReceipt)
	require.NoError(t, err)
	assert.Equal(t, int64(3), peek)

	// sequences are independent per type and per year
	peek, _ = s.PeekCounter(ctx, "c1", 2026, domain.DocumentTypeInvoice)
	assert.Zero(t, peek)
	peek, _ = s.PeekCounter(ctx, "c1", 2027, domain.DocumentTypeReceipt)
	assert.Zero(t, peek)
}

func TestStore_AbortedTxDiscardsWrites(t *testing.T) {
	s := New()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if _, err := tx.NextCounter(ctx, "c1", 2026, domain.DocumentTypeInvoice); err != nil {
			return err
		}
		if err := tx.CreateDocument(ctx, newInvoice(t, "c1", "I-2026-1", "10")); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	peek, _ := s.PeekCounter(ctx, "c1", 2026, domain.DocumentTypeInvoice)
	assert.Zero(t, peek)
	_, err = s.GetDocument(ctx, "customer_c1_I-2026-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_ConflictingTransactions(t *testing.T) {
	s := New()
	ctx := context.Background()
	inv := newInvoice(t, "c1", "I-2026-1", "100")
	seed(t, s, inv)

	err := s.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		doc, err := tx.GetDocument(ctx, inv.ID())
		if err != nil {
			return err
		}

		// a concurrent writer commits between our read and our commit
		inner := s.RunInTx(ctx, func(ctx context.Context, tx2 repository.Tx) error {
			d2, err := tx2.GetDocument(ctx, inv.ID())
			if err != nil {
				return err
			}
			i2 := d2.(*domain.Invoice)
			if err := i2.ApplyPayment(decimal.NewFromInt(100), "r-other", "cash"); err != nil {
				return err
			}
			return tx2.UpdateInvoice(ctx, i2)
		})
		require.NoError(t, inner)

		mine := doc.(*domain.Invoice)
		if err := mine.ApplyPayment(decimal.NewFromInt(100), "r-mine", "cash"); err != nil {
			return err
		}
		return tx.UpdateInvoice(ctx, mine)
	})
	assert.ErrorIs(t, err, domain.ErrStorageConflict)

	doc, _ := s.GetDocument(ctx, inv.ID())
	assert.Equal(t, []string{"r-other"}, doc.(*domain.Invoice).RelatedReceiptIDs)
}

func TestStore_ReadYourWrites(t *testing.T) {
	s := New()
	ctx := context.Background()
	inv := newInvoice(t, "c1", "I-2026-1", "100")

	err := s.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := tx.CreateDocument(ctx, inv); err != nil {
			return err
		}
		doc, err := tx.GetDocument(ctx, inv.ID())
		if err != nil {
			return err
		}
		assert.Equal(t, inv.DocumentNumber, domain.HeaderOf(doc).DocumentNumber)
		return nil
	})
	require.NoError(t, err)
}

func TestStore_UpdateInvoiceRejectsIllegalTransition(t *testing.T) {
	s := New()
	ctx := context.Background()
	inv := newInvoice(t, "c1", "I-2026-1", "100")
	require.NoError(t, inv.ApplyPayment(decimal.NewFromInt(40), "r1", "cash"))
	seed(t, s, inv)

	err := s.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		doc, err := tx.GetDocument(ctx, inv.ID())
		if err != nil {
			return err
		}
		i := doc.(*domain.Invoice)
		i.RelatedReceiptIDs = nil
		return tx.UpdateInvoice(ctx, i)
	})
	assert.ErrorIs(t, err, domain.ErrInvariant)
}

func TestStore_SetDocumentURL(t *testing.T) {
	s := New()
	ctx := context.Background()
	inv := newInvoice(t, "c1", "I-2026-1", "100")
	seed(t, s, inv)

	require.NoError(t, s.SetDocumentURL(ctx, inv.ID(), "https://files/x.xlsx"))
	doc, err := s.GetDocument(ctx, inv.ID())
	require.NoError(t, err)
	require.NotNil(t, domain.HeaderOf(doc).DocumentURL)
	assert.Equal(t, "https://files/x.xlsx", *domain.HeaderOf(doc).DocumentURL)

	assert.ErrorIs(t, s.SetDocumentURL(ctx, "customer_c1_nope", "x"), domain.ErrNotFound)
}

func TestStore_FindDocumentsDuringWrites(t *testing.T) {
	s := New()
	ctx := context.Background()
	inv := newInvoice(t, "c1", "I-2026-1", "100")
	seed(t, s, inv)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_ = s.SetDocumentURL(ctx, inv.ID(), fmt.Sprintf("https://files/%d.xlsx", i))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			_ = s.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
				doc, err := tx.GetDocument(ctx, inv.ID())
				if err != nil {
					return err
				}
				cur := doc.(*domain.Invoice)
				if err := cur.ApplyPayment(decimal.NewFromInt(1), fmt.Sprintf("r%d", i), "cash"); err != nil {
					return err
				}
				return tx.UpdateInvoice(ctx, cur)
			})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			docs, err := s.FindDocuments(ctx, repository.DocumentQuery{DocumentNumber: "I-2026-1"})
			if !assert.NoError(t, err) || !assert.Len(t, docs, 1) {
				return
			}
			got := docs[0].(*domain.Invoice)
			assert.True(t, got.PaidAmount.Add(got.RemainingBalance).Equal(got.TotalAmount))
		}
	}()
	wg.Wait()
}
