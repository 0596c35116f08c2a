// Package firestore stores the ledger in Cloud Firestore, using the
// collection layout shared with the chat front end.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"invofox/internal/domain"
	"invofox/internal/repository"
)

type Config struct {
	ProjectID           string
	DatabaseID          string
	CredentialsFile     string
	DocumentsCollection string
	CountersCollection  string
}

type Store struct {
	client    *firestore.Client
	documents string
	counters  string
	log       zerolog.Logger
}

var _ repository.Store = (*Store)(nil)

func NewStore(ctx context.Context, cfg Config, log zerolog.Logger) (*Store, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	databaseID := cfg.DatabaseID
	if databaseID == "" {
		databaseID = firestore.DefaultDatabaseID
	}

	client, err := firestore.NewClientWithDatabase(ctx, cfg.ProjectID, databaseID, opts...)
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}

	s := &Store{
		client:    client,
		documents: cfg.DocumentsCollection,
		counters:  cfg.CountersCollection,
		log:       log,
	}
	if s.documents == "" {
		s.documents = "documents"
	}
	if s.counters == "" {
		s.counters = "counters"
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

// classify maps gRPC status codes onto the ledger's error kinds.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	switch status.Code(err) {
	case codes.Aborted:
		return fmt.Errorf("%s: %w: %v", op, domain.ErrStorageConflict, err)
	case codes.AlreadyExists:
		return fmt.Errorf("%s: %w: %v", op, domain.ErrAlreadyExists, err)
	case codes.NotFound:
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func decodeSnapshot(snap *firestore.DocumentSnapshot) (domain.Document, error) {
	var rec documentRecord
	if err := snap.DataTo(&rec); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", snap.Ref.ID, err)
	}
	return rec.toDocument(snap.Ref.ID)
}

func (s *Store) GetDocument(ctx context.Context, id string) (domain.Document, error) {
	snap, err := s.client.Collection(s.documents).Doc(id).Get(ctx)
	if err != nil {
		return nil, classify("get document "+id, err)
	}
	return decodeSnapshot(snap)
}

func (s *Store) FindDocuments(ctx context.Context, q repository.DocumentQuery) ([]domain.Document, error) {
	query := s.client.Collection(s.documents).Query
	if q.DocumentNumber != "" {
		query = query.Where("documentNumber", "==", q.DocumentNumber)
	}
	if q.CustomerID != "" {
		query = query.Where("customerId", "==", q.CustomerID)
	}
	if q.Type != "" {
		query = query.Where("documentType", "==", string(q.Type))
	}
	if q.Status != "" {
		query = query.Where("paymentStatus", "==", string(q.Status))
	}
	query = query.Limit(q.EffectiveLimit())

	iter := query.Documents(ctx)
	defer iter.Stop()

	var result []domain.Document
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, classify("find documents", err)
		}
		doc, err := decodeSnapshot(snap)
		if err != nil {
			return nil, err
		}
		result = append(result, doc)
	}
	return result, nil
}

func counterValue(snap *firestore.DocumentSnapshot, docType domain.DocumentType) (int64, error) {
	return counterField(snap.Ref.ID, snap.Data(), docType)
}

// counterField reads one per-type sequence from a counter document. Only an
// absent field counts as zero.
func counterField(id string, data map[string]interface{}, docType domain.DocumentType) (int64, error) {
	v, ok := data[string(docType)]
	if !ok {
		return 0, nil
	}
	switch n := v.(type) {
	case int64:
		if n < 0 {
			return 0, fmt.Errorf("%w: counter %s.%s is negative: %d", domain.ErrInvariant, id, docType, n)
		}
		return n, nil
	}
	return 0, fmt.Errorf("%w: counter %s.%s has type %T", domain.ErrInvariant, id, docType, v)
}

func (s *Store) PeekCounter(ctx context.Context, customerID string, year int, docType domain.DocumentType) (int64, error) {
	snap, err := s.client.Collection(s.counters).Doc(domain.CounterKey(customerID, year)).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return 0, nil
	}
	if err != nil {
		return 0, classify("peek counter", err)
	}
	return counterValue(snap, docType)
}

func (s *Store) SetDocumentURL(ctx context.Context, id, url string) error {
	_, err := s.client.Collection(s.documents).Doc(id).Update(ctx, []firestore.Update{
		{Path: "documentUrl", Value: url},
		{Path: "updatedAt", Value: time.Now().UTC()},
	})
	return classify("set document url "+id, err)
}

// RunInTx runs a single-attempt Firestore transaction; retries are the
// caller's decision. Writes are buffered and flushed after fn returns so
// every read precedes every write.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	var fnErr error
	err := s.client.RunTransaction(ctx, func(ctx context.Context, ftx *firestore.Transaction) error {
		t := &fsTx{
			store:    s,
			tx:       ftx,
			reads:    make(map[string]domain.Document),
			writes:   make(map[string]domain.Document),
			counters: make(map[string]*counterState),
		}
		if fnErr = fn(ctx, t); fnErr != nil {
			return fnErr
		}
		return t.flush()
	}, firestore.MaxAttempts(1))

	if fnErr != nil {
		return fnErr
	}
	return classify("transaction", err)
}

type pendingWrite struct {
	id     string
	create bool
}

type counterState struct {
	customerID string
	year       int
	values     map[domain.DocumentType]int64
}

type fsTx struct {
	store *Store
	tx    *firestore.Transaction

	reads    map[string]domain.Document
	writes   map[string]domain.Document
	pending  []pendingWrite
	counters map[string]*counterState
	touched  []string
}

func (t *fsTx) docRef(id string) *firestore.DocumentRef {
	return t.store.client.Collection(t.store.documents).Doc(id)
}

func (t *fsTx) GetDocument(ctx context.Context, id string) (domain.Document, error) {
	if doc, ok := t.writes[id]; ok {
		return domain.CloneDocument(doc), nil
	}
	if doc, ok := t.reads[id]; ok {
		if doc == nil {
			return nil, fmt.Errorf("get document %s: %w", id, domain.ErrNotFound)
		}
		return domain.CloneDocument(doc), nil
	}

	snap, err := t.tx.Get(t.docRef(id))
	if status.Code(err) == codes.NotFound {
		t.reads[id] = nil
		return nil, fmt.Errorf("get document %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, classify("get document "+id, err)
	}
	doc, err := decodeSnapshot(snap)
	if err != nil {
		return nil, err
	}
	t.reads[id] = doc
	return domain.CloneDocument(doc), nil
}

func (t *fsTx) NextCounter(ctx context.Context, customerID string, year int, docType domain.DocumentType) (int64, error) {
	if !docType.Valid() {
		return 0, fmt.Errorf("next counter: %w: document type %q", domain.ErrInvalidInput, docType)
	}
	key := domain.CounterKey(customerID, year)

	state, ok := t.counters[key]
	if !ok {
		state = &counterState{
			customerID: customerID,
			year:       year,
			values:     make(map[domain.DocumentType]int64),
		}
		snap, err := t.tx.Get(t.store.client.Collection(t.store.counters).Doc(key))
		switch {
		case status.Code(err) == codes.NotFound:
		case err != nil:
			return 0, classify("next counter", err)
		default:
			for _, dt := range domain.DocumentTypes {
				v, err := counterValue(snap, dt)
				if err != nil {
					return 0, err
				}
				state.values[dt] = v
			}
		}
		t.counters[key] = state
		t.touched = append(t.touched, key)
	}

	state.values[docType]++
	return state.values[docType], nil
}

func (t *fsTx) CreateDocument(ctx context.Context, doc domain.Document) error {
	if err := doc.Validate(); err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	id := doc.ID()
	if _, ok := t.writes[id]; ok {
		return fmt.Errorf("create document %s: %w", id, domain.ErrAlreadyExists)
	}
	t.writes[id] = domain.CloneDocument(doc)
	t.pending = append(t.pending, pendingWrite{id: id, create: true})
	return nil
}

func (t *fsTx) UpdateInvoice(ctx context.Context, inv *domain.Invoice) error {
	if err := inv.Validate(); err != nil {
		return fmt.Errorf("update invoice: %w", err)
	}
	id := inv.ID()
	if _, ok := t.writes[id]; !ok {
		t.pending = append(t.pending, pendingWrite{id: id})
	}
	t.writes[id] = domain.CloneDocument(inv)
	return nil
}

func (t *fsTx) flush() error {
	now := time.Now().UTC()

	for _, key := range t.touched {
		state := t.counters[key]
		data := map[string]interface{}{
			"customerId": state.customerID,
			"year":       state.year,
			"updatedAt":  now,
		}
		for dt, v := range state.values {
			data[string(dt)] = v
		}
		if err := t.tx.Set(t.store.client.Collection(t.store.counters).Doc(key), data, firestore.MergeAll); err != nil {
			return err
		}
	}

	for _, w := range t.pending {
		doc := t.writes[w.id]
		h := domain.HeaderOf(doc)
		if h.CreatedAt.IsZero() {
			h.CreatedAt = now
		}
		h.UpdatedAt = now

		if w.create {
			rec, err := recordFromDocument(doc)
			if err != nil {
				return err
			}
			if err := t.tx.Create(t.docRef(w.id), rec); err != nil {
				return err
			}
			continue
		}

		inv := doc.(*domain.Invoice)
		err := t.tx.Update(t.docRef(w.id), []firestore.Update{
			{Path: "paidAmount", Value: *amount(inv.PaidAmount)},
			{Path: "remainingBalance", Value: *amount(inv.RemainingBalance)},
			{Path: "paymentStatus", Value: string(inv.PaymentStatus)},
			{Path: "paymentMethod", Value: inv.PaymentMethod},
			{Path: "relatedReceiptIds", Value: stringList(inv.RelatedReceiptIDs)},
			{Path: "updatedAt", Value: now},
		})
		if err != nil {
			return err
		}
	}
	return nil
}
