package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invofox/internal/clients"
	"invofox/internal/domain"
	"invofox/internal/logger"
	"invofox/internal/render"
)

type fakeUploader struct {
	mu       sync.Mutex
	failures int
	paths    []string
}

func (u *fakeUploader) Upload(_ context.Context, data []byte, objectPath, contentType string) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.failures > 0 {
		u.failures--
		return "", errors.New("bucket unavailable")
	}
	if len(data) == 0 || contentType != render.ContentTypeXLSX {
		return "", errors.New("unexpected payload")
	}
	u.paths = append(u.paths, objectPath)
	return "https://files.example.com/" + objectPath, nil
}

type notification struct {
	kind, customerID, documentID string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (n *recordingNotifier) add(kind, customerID, documentID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{kind, customerID, documentID})
}

func (n *recordingNotifier) NotifyDocumentProgress(_ context.Context, customerID, documentID, stage string) error {
	n.add("progress:"+stage, customerID, documentID)
	return nil
}

func (n *recordingNotifier) NotifyDocumentReady(_ context.Context, customerID, documentID, _, _ string) error {
	n.add("ready", customerID, documentID)
	return nil
}

func (n *recordingNotifier) NotifyDocumentFailed(_ context.Context, customerID, documentID, _, _ string) error {
	n.add("failed", customerID, documentID)
	return nil
}

func (n *recordingNotifier) kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, s := range n.sent {
		out = append(out, s.kind)
	}
	return out
}

func newRedis(t *testing.T) *clients.RedisClient {
	t.Helper()
	mr := miniredis.RunT(t)
	rc, err := clients.NewRedisClient(clients.RedisConfig{Addr: mr.Addr(), Timeout: time.Second, Prefix: "test_"})
	require.NoError(t, err)
	t.Cleanup(rc.Close)
	return rc
}

func TestDocumentPipeline_ProcessAttachesURL(t *testing.T) {
	f := newFixture(t, fastRetry)
	doc := f.issueInvoice(t, "c1", "250")

	uploader := &fakeUploader{}
	notifier := &recordingNotifier{}
	p := NewDocumentPipeline(f.store, render.NewXLSXRenderer("invofox"), uploader, newRedis(t), notifier, time.Hour, logger.Nop())

	_, err := p.Enqueue(context.Background(), doc.DocumentID)
	require.NoError(t, err)
	p.Wait()

	st, err := p.Status(context.Background(), doc.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, DocumentReady, st.State)
	require.NotNil(t, st.URL)
	assert.Equal(t, "https://files.example.com/c1/I-2026-1.xlsx", *st.URL)
	assert.Equal(t, 1, st.Attempts)
	assert.Equal(t, "I-2026-1", st.DocumentNumber)

	inv := f.invoice(t, "c1", "I-2026-1")
	require.NotNil(t, inv.DocumentURL)
	assert.Equal(t, *st.URL, *inv.DocumentURL)
	assert.True(t, inv.RemainingBalance.Equal(d("250")), "rendering must not touch balances")

	assert.Equal(t, []string{"progress:rendering", "progress:uploading", "ready"}, notifier.kinds())
}

func TestDocumentPipeline_StatusWriteFailuresAreLogged(t *testing.T) {
	f := newFixture(t, fastRetry)
	doc := f.issueInvoice(t, "c1", "250")

	mr := miniredis.RunT(t)
	rc, err := clients.NewRedisClient(clients.RedisConfig{Addr: mr.Addr(), Timeout: time.Second, Prefix: "test_"})
	require.NoError(t, err)
	t.Cleanup(rc.Close)

	var buf bytes.Buffer
	uploader := &fakeUploader{}
	p := NewDocumentPipeline(f.store, render.NewXLSXRenderer("invofox"), uploader, rc, nil, time.Hour, zerolog.New(&buf))
	mr.Close()

	require.NoError(t, p.Process(context.Background(), doc.DocumentID))

	inv := f.invoice(t, "c1", "I-2026-1")
	require.NotNil(t, inv.DocumentURL)
	assert.Equal(t, "https://files.example.com/c1/I-2026-1.xlsx", *inv.DocumentURL)

	out := buf.String()
	assert.Equal(t, 3, strings.Count(out, "failed to save document status"), out)
	assert.Contains(t, out, `"state":"rendering"`)
	assert.Contains(t, out, `"state":"uploading"`)
	assert.Contains(t, out, `"state":"ready"`)
	assert.Contains(t, out, `"document_id":"`+doc.DocumentID+`"`)
}

func TestDocumentPipeline_FailureStaysPendingUntilRetried(t *testing.T) {
	f := newFixture(t, fastRetry)
	doc := f.issueInvoice(t, "c1", "100")

	uploader := &fakeUploader{failures: 1}
	notifier := &recordingNotifier{}
	p := NewDocumentPipeline(f.store, render.NewXLSXRenderer("invofox"), uploader, newRedis(t), notifier, time.Hour, logger.Nop())
	ctx := context.Background()

	err := p.Process(ctx, doc.DocumentID)
	require.Error(t, err)

	st, err := p.Status(ctx, doc.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, DocumentFailed, st.State)
	assert.Contains(t, st.Error, "bucket unavailable")
	assert.Nil(t, st.URL)
	assert.Nil(t, f.invoice(t, "c1", "I-2026-1").DocumentURL)

	n, err := p.RetryPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	st, err = p.Status(ctx, doc.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, DocumentReady, st.State)
	assert.Equal(t, 2, st.Attempts)

	n, err = p.RetryPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Contains(t, notifier.kinds(), "failed")
}

func TestDocumentPipeline_AlreadyRenderedIsNotUploadedAgain(t *testing.T) {
	f := newFixture(t, fastRetry)
	doc := f.issueInvoice(t, "c1", "100")
	require.NoError(t, f.store.SetDocumentURL(context.Background(), doc.DocumentID, "https://existing/doc.xlsx"))

	uploader := &fakeUploader{}
	p := NewDocumentPipeline(f.store, render.NewXLSXRenderer("invofox"), uploader, nil, nil, time.Hour, logger.Nop())

	require.NoError(t, p.Process(context.Background(), doc.DocumentID))
	assert.Empty(t, uploader.paths)

	st, err := p.Status(context.Background(), doc.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, DocumentReady, st.State)
	assert.Equal(t, "https://existing/doc.xlsx", *st.URL)
}

func TestDocumentPipeline_UnknownDocument(t *testing.T) {
	f := newFixture(t, fastRetry)
	p := NewDocumentPipeline(f.store, render.NewXLSXRenderer("invofox"), &fakeUploader{}, nil, nil, time.Hour, logger.Nop())

	_, err := p.Status(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	err = p.Process(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	st, err := p.Status(context.Background(), "nope")
	require.NoError(t, err)
	assert.Equal(t, DocumentFailed, st.State)
}

func TestDocumentPipeline_SettlementReceipt(t *testing.T) {
	f := newFixture(t, fastRetry)
	f.putInvoice(t, "c1", "I-2026-7", "80", "ILS")

	res, err := f.svc.SettleSingle(context.Background(), SingleSettlementInput{
		InvoiceNumber: "I-2026-7",
		CustomerID:    "c1",
		Amount:        d("30"),
		PaymentMethod: "cash",
	})
	require.NoError(t, err)

	uploader := &fakeUploader{}
	p := NewDocumentPipeline(f.store, render.NewXLSXRenderer("invofox"), uploader, newRedis(t), nil, time.Hour, logger.Nop())
	require.NoError(t, p.Process(context.Background(), res.ReceiptID))

	assert.Equal(t, []string{"c1/" + res.ReceiptNumber + ".xlsx"}, uploader.paths)
	r := f.receipt(t, res.ReceiptID)
	require.NotNil(t, r.DocumentURL)
}
