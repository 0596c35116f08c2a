package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"invofox/internal/clients"
	"invofox/internal/domain"
	"invofox/internal/render"
	"invofox/internal/repository"
)

type Uploader interface {
	Upload(ctx context.Context, data []byte, objectPath, contentType string) (string, error)
}

type DocumentNotifier interface {
	NotifyDocumentProgress(ctx context.Context, customerID, documentID, stage string) error
	NotifyDocumentReady(ctx context.Context, customerID, documentID, number, url string) error
	NotifyDocumentFailed(ctx context.Context, customerID, documentID, number, errMsg string) error
}

type DocumentState string

const (
	DocumentPending   DocumentState = "pending"
	DocumentRendering DocumentState = "rendering"
	DocumentUploading DocumentState = "uploading"
	DocumentReady     DocumentState = "ready"
	DocumentFailed    DocumentState = "failed"
)

type DocumentStatus struct {
	DocumentID     string        `json:"document_id"`
	CustomerID     string        `json:"customer_id,omitempty"`
	DocumentNumber string        `json:"document_number,omitempty"`
	State          DocumentState `json:"state"`
	URL            *string       `json:"url"`
	Error          string        `json:"error,omitempty"`
	Attempts       int           `json:"attempts"`
	Created        time.Time     `json:"created_at"`
	Updated        time.Time     `json:"updated_at"`
}

const (
	documentKeyPrefix  = "documents:"
	documentPendingSet = "documents:pending"
)

// DocumentPipeline renders committed documents, uploads them and attaches
// the URL. It never touches balances; a failed job stays in the pending
// set until RetryPending succeeds.
type DocumentPipeline struct {
	store    repository.Store
	renderer render.Renderer
	uploader Uploader
	redis    *clients.RedisClient
	notifier DocumentNotifier
	ttl      time.Duration
	log      zerolog.Logger
	now      func() time.Time

	// used when no redis is configured
	mu    sync.Mutex
	local map[string]DocumentStatus

	wg sync.WaitGroup
}

func NewDocumentPipeline(
	store repository.Store,
	renderer render.Renderer,
	uploader Uploader,
	redis *clients.RedisClient,
	notifier DocumentNotifier,
	ttl time.Duration,
	log zerolog.Logger,
) *DocumentPipeline {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &DocumentPipeline{
		store:    store,
		renderer: renderer,
		uploader: uploader,
		redis:    redis,
		notifier: notifier,
		ttl:      ttl,
		log:      log.With().Str("component", "documents").Logger(),
		now:      time.Now,
		local:    make(map[string]DocumentStatus),
	}
}

func (p *DocumentPipeline) saveStatus(ctx context.Context, st *DocumentStatus) error {
	st.Updated = p.now()
	if p.redis == nil {
		p.mu.Lock()
		p.local[st.DocumentID] = *st
		p.mu.Unlock()
		return nil
	}

	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return p.redis.SetTracked(ctx, documentKeyPrefix+st.DocumentID, string(data), p.ttl,
		documentPendingSet, st.DocumentID, st.State != DocumentReady)
}

// Status returns the job state of documentID, or domain.ErrNotFound when
// no job was ever enqueued.
func (p *DocumentPipeline) Status(ctx context.Context, documentID string) (DocumentStatus, error) {
	if p.redis == nil {
		p.mu.Lock()
		defer p.mu.Unlock()
		st, ok := p.local[documentID]
		if !ok {
			return DocumentStatus{}, fmt.Errorf("document job %s: %w", documentID, domain.ErrNotFound)
		}
		return st, nil
	}

	data, err := p.redis.Get(ctx, documentKeyPrefix+documentID)
	if clients.IsCacheMiss(err) {
		return DocumentStatus{}, fmt.Errorf("document job %s: %w", documentID, domain.ErrNotFound)
	}
	if err != nil {
		return DocumentStatus{}, fmt.Errorf("failed to get document status: %w", err)
	}

	var st DocumentStatus
	if err := json.Unmarshal([]byte(data), &st); err != nil {
		return DocumentStatus{}, fmt.Errorf("failed to parse document status: %w", err)
	}
	return st, nil
}

func (p *DocumentPipeline) pendingIDs(ctx context.Context) ([]string, error) {
	if p.redis == nil {
		p.mu.Lock()
		defer p.mu.Unlock()
		ids := make([]string, 0, len(p.local))
		for id, st := range p.local {
			if st.State != DocumentReady {
				ids = append(ids, id)
			}
		}
		sort.Strings(ids)
		return ids, nil
	}
	ids, err := p.redis.SMembers(ctx, documentPendingSet)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending documents: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// Enqueue records a pending job and processes it in the background.
func (p *DocumentPipeline) Enqueue(ctx context.Context, documentID string) (DocumentStatus, error) {
	now := p.now()
	st := DocumentStatus{DocumentID: documentID, State: DocumentPending, Created: now}
	if prev, err := p.Status(ctx, documentID); err == nil {
		if prev.State == DocumentReady {
			return prev, nil
		}
		st = prev
		st.State = DocumentPending
	}
	if err := p.saveStatus(ctx, &st); err != nil {
		return DocumentStatus{}, fmt.Errorf("failed to save document status: %w", err)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		_ = p.Process(context.WithoutCancel(ctx), documentID)
	}()
	return st, nil
}

// Wait blocks until background jobs started by Enqueue have finished.
func (p *DocumentPipeline) Wait() {
	p.wg.Wait()
}

// Process runs one render/upload attempt for documentID synchronously.
func (p *DocumentPipeline) Process(ctx context.Context, documentID string) error {
	st, err := p.Status(ctx, documentID)
	if err != nil {
		st = DocumentStatus{DocumentID: documentID, Created: p.now()}
	}
	st.Attempts++
	st.Error = ""
	st.State = DocumentRendering
	p.recordStatus(ctx, &st)

	doc, err := p.store.GetDocument(ctx, documentID)
	if err != nil {
		return p.fail(ctx, &st, fmt.Errorf("load document: %w", err))
	}
	h := domain.HeaderOf(doc)
	st.CustomerID = h.CustomerID
	st.DocumentNumber = h.DocumentNumber

	if h.DocumentURL != nil && *h.DocumentURL != "" {
		return p.ready(ctx, &st, *h.DocumentURL)
	}
	p.progress(ctx, &st)

	out, err := p.renderer.Render(ctx, doc)
	if err != nil {
		return p.fail(ctx, &st, fmt.Errorf("render: %w", err))
	}

	st.State = DocumentUploading
	p.recordStatus(ctx, &st)
	p.progress(ctx, &st)

	if p.uploader == nil {
		return p.fail(ctx, &st, errors.New("no uploader configured"))
	}
	url, err := p.uploader.Upload(ctx, out.Data, path.Join(h.CustomerID, out.FileName), out.ContentType)
	if err != nil {
		return p.fail(ctx, &st, fmt.Errorf("upload: %w", err))
	}

	if err := p.store.SetDocumentURL(ctx, documentID, url); err != nil {
		return p.fail(ctx, &st, fmt.Errorf("attach url: %w", err))
	}
	return p.ready(ctx, &st, url)
}

func (p *DocumentPipeline) progress(ctx context.Context, st *DocumentStatus) {
	if p.notifier != nil {
		_ = p.notifier.NotifyDocumentProgress(ctx, st.CustomerID, st.DocumentID, string(st.State))
	}
}

// recordStatus saves an intermediate or final state. A lost write only
// delays what Status reports, so the job keeps going.
func (p *DocumentPipeline) recordStatus(ctx context.Context, st *DocumentStatus) {
	if err := p.saveStatus(ctx, st); err != nil {
		p.log.Warn().Err(err).
			Str("document_id", st.DocumentID).
			Str("state", string(st.State)).
			Msg("failed to save document status")
	}
}

func (p *DocumentPipeline) ready(ctx context.Context, st *DocumentStatus, url string) error {
	st.State = DocumentReady
	st.URL = &url
	p.recordStatus(ctx, st)
	if p.notifier != nil {
		_ = p.notifier.NotifyDocumentReady(ctx, st.CustomerID, st.DocumentID, st.DocumentNumber, url)
	}
	p.log.Info().Str("document_id", st.DocumentID).Int("attempts", st.Attempts).Msg("document ready")
	return nil
}

func (p *DocumentPipeline) fail(ctx context.Context, st *DocumentStatus, cause error) error {
	st.State = DocumentFailed
	st.Error = cause.Error()
	p.recordStatus(ctx, st)
	if p.notifier != nil && st.CustomerID != "" {
		_ = p.notifier.NotifyDocumentFailed(ctx, st.CustomerID, st.DocumentID, st.DocumentNumber, st.Error)
	}
	p.log.Error().Err(cause).Str("document_id", st.DocumentID).Int("attempts", st.Attempts).Msg("document job failed")
	return cause
}

// RetryPending re-runs every job that is not ready yet and returns how
// many of them succeeded.
func (p *DocumentPipeline) RetryPending(ctx context.Context) (int, error) {
	ids, err := p.pendingIDs(ctx)
	if err != nil {
		return 0, err
	}

	done := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		st, err := p.Status(ctx, id)
		if err == nil && (st.State == DocumentRendering || st.State == DocumentUploading) && p.now().Sub(st.Updated) < time.Minute {
			continue
		}
		if err := p.Process(ctx, id); err == nil {
			done++
		}
	}
	return done, nil
}

// Run retries pending jobs every interval until ctx is cancelled.
func (p *DocumentPipeline) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.RetryPending(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				p.log.Warn().Err(err).Msg("document retry sweep failed")
				continue
			}
			if n > 0 {
				p.log.Info().Int("documents", n).Msg("pending documents completed")
			}
		}
	}
}
