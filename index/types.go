// Package index provides the document index the answer engine retrieves from.
//
// Information Hiding:
// - Chunking of documents into passages hidden behind Add
// - Lexical scoring over a lazily rebuilt suffix array hidden behind Search
// - SQLite persistence hidden behind the Storage interface
//
// Passages are derived data: only documents are persisted, and passages are
// re-chunked when an index is opened.
package index

import (
	"time"

	"github.com/cockroachdb/errors"
)

var (
	// ErrNotFound is returned when a document id is unknown.
	ErrNotFound = errors.New("document not found")
	// ErrEmptyDocument is returned when a document has no content.
	ErrEmptyDocument = errors.New("document content is empty")
	// ErrClosed is returned when the index is used after Close.
	ErrClosed = errors.New("index is closed")
)

// Document is a unit of source text added to the index.
type Document struct {
	ID      string `json:"id"`
	Source  string `json:"source,omitempty"`
	Title   string `json:"title,omitempty"`
	Content string `json:"content"`
}

// DocumentMeta describes an indexed document without its content.
type DocumentMeta struct {
	ID          string    `json:"id"`
	Source      string    `json:"source,omitempty"`
	Title       string    `json:"title,omitempty"`
	ContentHash string    `json:"content_hash"`
	Passages    int       `json:"passages"`
	ByteSize    int       `json:"byte_size"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Passage is one chunk of a document.
type Passage struct {
	DocumentID string
	Ordinal    int // position within the document, from 0
	Text       string
}

// Hit is a passage matched by a search together with its score.
type Hit struct {
	DocumentID string  `json:"document_id"`
	Source     string  `json:"source,omitempty"`
	Title      string  `json:"title,omitempty"`
	Ordinal    int     `json:"passage"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
}

// AddStatus is the outcome of adding a document.
type AddStatus string

const (
	// Added means the document id was new.
	Added AddStatus = "added"
	// Replaced means the id existed with different content.
	Replaced AddStatus = "replaced"
	// Unchanged means the id existed with identical content.
	Unchanged AddStatus = "unchanged"
	// Duplicate means identical content is already indexed under another id.
	Duplicate AddStatus = "duplicate"
)

// AddResult reports what Add did.
type AddResult struct {
	Status AddStatus
	Meta   DocumentMeta // for Duplicate, the already-indexed document
}

// Stats summarizes index contents.
type Stats struct {
	Documents int       `json:"documents"`
	Passages  int       `json:"passages"`
	Bytes     int       `json:"bytes"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// Options configure chunking and default search behaviour.
type Options struct {
	ChunkSize    int     // maximum passage length in characters
	ChunkOverlap int     // characters repeated between consecutive passages
	TopK         int     // hits returned when a search asks for none
	MinScore     float64 // hits scoring below this are dropped
}

// DefaultOptions returns the options used when fields are left zero.
func DefaultOptions() Options {
	return Options{
		ChunkSize:    800,
		ChunkOverlap: 100,
		TopK:         5,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.ChunkSize <= 0 {
		o.ChunkSize = d.ChunkSize
	}
	if o.ChunkOverlap < 0 || o.ChunkOverlap >= o.ChunkSize {
		o.ChunkOverlap = 0
	}
	if o.TopK <= 0 {
		o.TopK = d.TopK
	}
	return o
}
