// Package memory is an in-process ledger store with optimistic
// transactions. It backs tests and the "memory" storage backend.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"invofox/internal/domain"
	"invofox/internal/repository"
)

type docEntry struct {
	doc     domain.Document
	version int64
	seq     int64
}

type counterEntry struct {
	values  map[domain.DocumentType]int64
	version int64
}

type Store struct {
	mu       sync.RWMutex
	docs     map[string]*docEntry
	counters map[string]*counterEntry
	clock    int64
	seq      int64

	now func() time.Time
}

var _ repository.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		docs:     make(map[string]*docEntry),
		counters: make(map[string]*counterEntry),
		now:      time.Now,
	}
}

func (s *Store) GetDocument(ctx context.Context, id string) (domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("get document %s: %w", id, domain.ErrNotFound)
	}
	return domain.CloneDocument(e.doc), nil
}

func (s *Store) FindDocuments(ctx context.Context, q repository.DocumentQuery) ([]domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	type match struct {
		doc domain.Document
		seq int64
	}

	s.mu.RLock()
	matches := make([]match, 0)
	for _, e := range s.docs {
		if q.Matches(e.doc) {
			matches = append(matches, match{doc: domain.CloneDocument(e.doc), seq: e.seq})
		}
	}
	s.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool { return matches[i].seq < matches[j].seq })
	if limit := q.EffectiveLimit(); len(matches) > limit {
		matches = matches[:limit]
	}

	out := make([]domain.Document, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.doc)
	}
	return out, nil
}

func (s *Store) PeekCounter(ctx context.Context, customerID string, year int, docType domain.DocumentType) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if c, ok := s.counters[domain.CounterKey(customerID, year)]; ok {
		return c.values[docType], nil
	}
	return 0, nil
}

func (s *Store) SetDocumentURL(ctx context.Context, id, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.docs[id]
	if !ok {
		return fmt.Errorf("set document url %s: %w", id, domain.ErrNotFound)
	}
	doc := domain.CloneDocument(e.doc)
	h := domain.HeaderOf(doc)
	h.DocumentURL = &url
	h.UpdatedAt = s.now()

	s.clock++
	e.doc = doc
	e.version = s.clock
	return nil
}

// RunInTx buffers fn's writes and applies them only if nothing fn read
// changed in the meantime.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &memTx{
		store:       s,
		docReads:    make(map[string]*readEntry),
		counterRead: make(map[string]int64),
		docWrites:   make(map[string]domain.Document),
		creates:     make(map[string]bool),
		counters:    make(map[string]map[domain.DocumentType]int64),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return s.commit(tx)
}

func (s *Store) commit(tx *memTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, r := range tx.docReads {
		if current := s.docVersion(id); current != r.version {
			return fmt.Errorf("document %s changed during transaction: %w", id, domain.ErrStorageConflict)
		}
	}
	for key, v := range tx.counterRead {
		var current int64
		if c, ok := s.counters[key]; ok {
			current = c.version
		}
		if current != v {
			return fmt.Errorf("counter %s changed during transaction: %w", key, domain.ErrStorageConflict)
		}
	}
	for id := range tx.creates {
		if _, ok := s.docs[id]; ok {
			return fmt.Errorf("create document %s: %w", id, domain.ErrAlreadyExists)
		}
	}

	s.clock++
	now := s.now()

	for key, values := range tx.counters {
		c, ok := s.counters[key]
		if !ok {
			c = &counterEntry{values: make(map[domain.DocumentType]int64)}
			s.counters[key] = c
		}
		for t, v := range values {
			c.values[t] = v
		}
		c.version = s.clock
	}

	for _, id := range tx.order {
		doc := tx.docWrites[id]
		h := domain.HeaderOf(doc)
		h.UpdatedAt = now
		if tx.creates[id] {
			if h.CreatedAt.IsZero() {
				h.CreatedAt = now
			}
			s.seq++
			s.docs[id] = &docEntry{doc: doc, version: s.clock, seq: s.seq}
			continue
		}
		e := s.docs[id]
		e.doc = doc
		e.version = s.clock
	}
	return nil
}

func (s *Store) docVersion(id string) int64 {
	if e, ok := s.docs[id]; ok {
		return e.version
	}
	return 0
}

// readEntry is the snapshot of a document as first seen by a transaction.
type readEntry struct {
	doc     domain.Document
	version int64
}

type memTx struct {
	store *Store

	docReads    map[string]*readEntry
	counterRead map[string]int64

	docWrites map[string]domain.Document
	creates   map[string]bool
	order     []string
	counters  map[string]map[domain.DocumentType]int64
}

func (t *memTx) GetDocument(ctx context.Context, id string) (domain.Document, error) {
	if doc, ok := t.docWrites[id]; ok {
		return domain.CloneDocument(doc), nil
	}

	r, seen := t.docReads[id]
	if !seen {
		r = &readEntry{}
		t.store.mu.RLock()
		if e, ok := t.store.docs[id]; ok {
			r.doc = domain.CloneDocument(e.doc)
			r.version = e.version
		}
		t.store.mu.RUnlock()
		t.docReads[id] = r
	}

	if r.doc == nil {
		return nil, fmt.Errorf("get document %s: %w", id, domain.ErrNotFound)
	}
	return domain.CloneDocument(r.doc), nil
}

func (t *memTx) NextCounter(ctx context.Context, customerID string, year int, docType domain.DocumentType) (int64, error) {
	if !docType.Valid() {
		return 0, fmt.Errorf("next counter: %w: document type %q", domain.ErrInvalidInput, docType)
	}
	key := domain.CounterKey(customerID, year)

	values, ok := t.counters[key]
	if !ok {
		values = make(map[domain.DocumentType]int64)
		t.store.mu.RLock()
		var version int64
		if c, exists := t.store.counters[key]; exists {
			for k, v := range c.values {
				values[k] = v
			}
			version = c.version
		}
		t.store.mu.RUnlock()

		t.counterRead[key] = version
		t.counters[key] = values
	}

	values[docType]++
	return values[docType], nil
}

func (t *memTx) CreateDocument(ctx context.Context, doc domain.Document) error {
	if err := doc.Validate(); err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	id := doc.ID()
	if _, ok := t.docWrites[id]; ok {
		return fmt.Errorf("create document %s: %w", id, domain.ErrAlreadyExists)
	}

	t.store.mu.RLock()
	_, exists := t.store.docs[id]
	t.store.mu.RUnlock()
	if exists {
		return fmt.Errorf("create document %s: %w", id, domain.ErrAlreadyExists)
	}

	t.creates[id] = true
	t.write(id, doc)
	return nil
}

func (t *memTx) UpdateInvoice(ctx context.Context, inv *domain.Invoice) error {
	id := inv.ID()
	current, err := t.GetDocument(ctx, id)
	if err != nil {
		return fmt.Errorf("update invoice: %w", err)
	}
	prev, ok := current.(*domain.Invoice)
	if !ok {
		return fmt.Errorf("update invoice %s: %w", id, domain.ErrWrongDocumentType)
	}
	if err := domain.CheckTransition(prev, inv); err != nil {
		return fmt.Errorf("update invoice: %w", err)
	}
	t.write(id, inv)
	return nil
}

func (t *memTx) write(id string, doc domain.Document) {
	if _, ok := t.docWrites[id]; !ok {
		t.order = append(t.order, id)
	}
	t.docWrites[id] = domain.CloneDocument(doc)
}
