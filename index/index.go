package index

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"math"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/GianmarcoBramucci/cri/internal/dsa"
)

// Index holds documents and their passages in memory and answers lexical
// searches over them. Safe for concurrent use.
type Index struct {
	mu     sync.RWMutex
	opts   Options
	logger *zap.Logger

	docs   map[string]*entry // id -> document
	byHash map[string]string // content hash -> id
	keys   *dsa.Trie[*entry] // id -> document, for prefix lookup
	order  []string          // ids in insertion order
	search *searchIndex      // nil when dirty
	store  Storage           // nil for memory-only
	closed bool
}

type entry struct {
	doc      Document
	meta     DocumentMeta
	passages []string
}

// New creates a memory-only index.
func New(opts Options, logger *zap.Logger) *Index {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Index{
		opts:   opts.withDefaults(),
		logger: logger,
		docs:   make(map[string]*entry),
		byHash: make(map[string]string),
		keys:   dsa.NewTrie[*entry](),
	}
}

// Open creates an index backed by store and loads every stored document.
// The index takes ownership of store; Close closes it. If Open fails the
// caller keeps ownership.
func Open(ctx context.Context, store Storage, opts Options, logger *zap.Logger) (*Index, error) {
	idx := New(opts, logger)

	stored, err := store.LoadDocuments(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load documents")
	}
	for _, sd := range stored {
		idx.insertLocked(sd.Document, sd.ContentHash, sd.CreatedAt, sd.UpdatedAt)
	}
	idx.store = store
	idx.logger.Info("index loaded",
		zap.Int("documents", len(idx.docs)),
		zap.Int("passages", idx.passageCountLocked()))
	return idx, nil
}

// Type names the retrieval strategy.
func (idx *Index) Type() string {
	return "lexical"
}

// Add indexes doc. An empty ID is replaced by a generated one. Content
// already indexed under a different id is not added twice.
func (idx *Index) Add(ctx context.Context, doc Document) (AddResult, error) {
	if strings.TrimSpace(doc.Content) == "" {
		return AddResult{}, ErrEmptyDocument
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	hash := contentHash(doc.Content)

	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return AddResult{}, ErrClosed
	}

	existing, exists := idx.docs[doc.ID]
	switch {
	case exists && existing.meta.ContentHash == hash && existing.doc.Title == doc.Title && existing.doc.Source == doc.Source:
		return AddResult{Status: Unchanged, Meta: existing.meta}, nil
	case !exists:
		if otherID, dup := idx.byHash[hash]; dup {
			return AddResult{Status: Duplicate, Meta: idx.docs[otherID].meta}, nil
		}
	}

	now := time.Now()
	created := now
	if exists {
		created = existing.meta.CreatedAt
	}

	if idx.store != nil {
		err := idx.store.SaveDocument(ctx, StoredDocument{
			Document:    doc,
			ContentHash: hash,
			CreatedAt:   created,
			UpdatedAt:   now,
		})
		if err != nil {
			return AddResult{}, err
		}
	}

	status := Added
	if exists {
		status = Replaced
		idx.removeLocked(doc.ID)
	}
	e := idx.insertLocked(doc, hash, created, now)

	idx.logger.Debug("document indexed",
		zap.String("id", doc.ID),
		zap.String("status", string(status)),
		zap.Int("passages", len(e.passages)))
	return AddResult{Status: status, Meta: e.meta}, nil
}

func (idx *Index) insertLocked(doc Document, hash string, created, updated time.Time) *entry {
	passages := Chunk(doc.Content, idx.opts.ChunkSize, idx.opts.ChunkOverlap)
	e := &entry{
		doc:      doc,
		passages: passages,
		meta: DocumentMeta{
			ID:          doc.ID,
			Source:      doc.Source,
			Title:       doc.Title,
			ContentHash: hash,
			Passages:    len(passages),
			ByteSize:    len(doc.Content),
			CreatedAt:   created,
			UpdatedAt:   updated,
		},
	}
	idx.docs[doc.ID] = e
	idx.byHash[hash] = doc.ID
	idx.keys.Insert(doc.ID, e)
	idx.order = append(idx.order, doc.ID)
	idx.search = nil
	return e
}

func (idx *Index) removeLocked(id string) {
	e, ok := idx.docs[id]
	if !ok {
		return
	}
	delete(idx.docs, id)
	if idx.byHash[e.meta.ContentHash] == id {
		delete(idx.byHash, e.meta.ContentHash)
	}
	idx.keys.Delete(id)
	for i, oid := range idx.order {
		if oid == id {
			idx.order = append(idx.order[:i], idx.order[i+1:]...)
			break
		}
	}
	idx.search = nil
}

// Get returns the document stored under id.
func (idx *Index) Get(id string) (Document, DocumentMeta, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	e, ok := idx.docs[id]
	if !ok {
		return Document{}, DocumentMeta{}, errors.Wrapf(ErrNotFound, "id %q", id)
	}
	return e.doc, e.meta, nil
}

// ByPrefix returns metadata for every document whose id starts with prefix,
// ordered by id.
func (idx *Index) ByPrefix(prefix string) []DocumentMeta {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var out []DocumentMeta
	idx.keys.WalkPrefix(prefix, func(_ string, e *entry) bool {
		out = append(out, e.meta)
		return true
	})
	return out
}

// Delete removes a document. Deleting an unknown id returns ErrNotFound.
func (idx *Index) Delete(ctx context.Context, id string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return ErrClosed
	}
	if _, ok := idx.docs[id]; !ok {
		return errors.Wrapf(ErrNotFound, "id %q", id)
	}
	if idx.store != nil {
		if err := idx.store.DeleteDocument(ctx, id); err != nil {
			return err
		}
	}
	idx.removeLocked(id)
	return nil
}

// List returns metadata for every document in insertion order.
func (idx *Index) List() []DocumentMeta {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]DocumentMeta, 0, len(idx.order))
	for _, id := range idx.order {
		out = append(out, idx.docs[id].meta)
	}
	return out
}

// Stats summarizes the index.
func (idx *Index) Stats() Stats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	st := Stats{Documents: len(idx.docs)}
	for _, e := range idx.docs {
		st.Passages += len(e.passages)
		st.Bytes += e.meta.ByteSize
		if e.meta.UpdatedAt.After(st.UpdatedAt) {
			st.UpdatedAt = e.meta.UpdatedAt
		}
	}
	return st
}

func (idx *Index) passageCountLocked() int {
	n := 0
	for _, e := range idx.docs {
		n += len(e.passages)
	}
	return n
}

// Close releases the backing storage. Further mutations fail with ErrClosed.
func (idx *Index) Close() error {
	idx.mu.Lock()
	store := idx.store
	idx.store = nil
	idx.closed = true
	idx.search = nil
	idx.mu.Unlock()

	if store != nil {
		return store.Close()
	}
	return nil
}

// span locates one passage inside the concatenated search text.
type span struct {
	entry   *entry
	ordinal int
	start   int
	end     int
}

type searchIndex struct {
	sa    *dsa.SuffixArray
	spans []span
}

// Search returns up to topK passages ranked by relevance to query. A
// non-positive topK uses the configured default. A query with no
// searchable terms returns no hits.
func (idx *Index) Search(ctx context.Context, query string, topK int) ([]Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = idx.opts.TopK
	}
	terms := Terms(query)
	if len(terms) == 0 {
		return nil, nil
	}

	si := idx.currentSearch()
	if si == nil || len(si.spans) == 0 {
		return nil, nil
	}

	scores := make(map[int]float64)
	n := float64(len(si.spans))
	for _, term := range terms {
		tf := si.termFrequencies(term)
		if len(tf) == 0 {
			continue
		}
		idf := math.Log(1 + n/float64(len(tf)))
		for s, count := range tf {
			scores[s] += math.Log(1+float64(count)) * idf
		}
	}

	ranked := make([]int, 0, len(scores))
	for s, score := range scores {
		if score >= idx.opts.MinScore {
			ranked = append(ranked, s)
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if scores[a] != scores[b] {
			return scores[a] > scores[b]
		}
		return a < b
	})
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}

	hits := make([]Hit, 0, len(ranked))
	for _, s := range ranked {
		sp := si.spans[s]
		hits = append(hits, Hit{
			DocumentID: sp.entry.doc.ID,
			Source:     sp.entry.doc.Source,
			Title:      sp.entry.doc.Title,
			Ordinal:    sp.ordinal,
			Text:       sp.entry.passages[sp.ordinal],
			Score:      scores[s],
		})
	}
	return hits, nil
}

// currentSearch returns the current suffix array, rebuilding it if documents
// changed since the last search.
func (idx *Index) currentSearch() *searchIndex {
	idx.mu.RLock()
	si := idx.search
	idx.mu.RUnlock()
	if si != nil {
		return si
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.search != nil {
		return idx.search
	}

	var (
		b     strings.Builder
		spans []span
	)
	for _, id := range idx.order {
		e := idx.docs[id]
		for i, p := range e.passages {
			start := b.Len()
			b.WriteString(strings.ToLower(p))
			spans = append(spans, span{entry: e, ordinal: i, start: start, end: b.Len()})
			b.WriteByte(0)
		}
	}
	idx.search = &searchIndex{sa: dsa.NewSuffixArray(b.String()), spans: spans}
	return idx.search
}

// termFrequencies counts word-initial occurrences of term per span.
func (si *searchIndex) termFrequencies(term string) map[int]int {
	text := si.sa.Text()
	tf := make(map[int]int)
	for _, pos := range si.sa.Lookup(term) {
		if pos > 0 {
			if r, _ := utf8.DecodeLastRuneInString(text[:pos]); isWordRune(r) {
				continue
			}
		}
		s := sort.Search(len(si.spans), func(i int) bool { return si.spans[i].end > pos })
		if s < len(si.spans) && pos >= si.spans[s].start {
			tf[s]++
		}
	}
	return tf
}

// contentHash uses xxHash for content deduplication.
func contentHash(content string) string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], xxhash.Sum64String(content))
	return hex.EncodeToString(buf[:])
}
