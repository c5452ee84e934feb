// Package index builds and serves the semantic document index behind the
// grammar responder.
//
// A Domain's index is built once from the plain-text files in its source
// directory, persisted to a SQLite file, and reloaded as-is on later
// starts. Anything that goes wrong along the way leaves the domain
// Unavailable instead of failing the caller.
package index

import (
	"context"
)

// Domain identifies one retrieval corpus.
type Domain struct {
	Name      string // e.g. "grammar"
	SourceDir string // folder of *.txt documents
	IndexPath string // SQLite file the index is persisted to
}

// Chunk is one retrieved slice of a source document.
type Chunk struct {
	Source  string
	Content string
	Score   float64 // cosine similarity to the query
}

// RetrieveFunc looks up the chunks most relevant to query.
type RetrieveFunc func(ctx context.Context, query string) ([]Chunk, error)

// Retrieval is the optional retrieval capability of a responder. It is
// either Available, wrapping a lookup, or Unavailable, in which case
// Retrieve returns no chunks and no error. The zero value is Unavailable.
type Retrieval struct {
	retrieve RetrieveFunc
	reason   string
}

// Available wraps fn as a usable retrieval capability.
func Available(fn RetrieveFunc) Retrieval {
	return Retrieval{retrieve: fn}
}

// Unavailable returns a capability that never yields context. reason is
// kept for health reporting.
func Unavailable(reason string) Retrieval {
	return Retrieval{reason: reason}
}

// Available reports whether lookups can return context.
func (r Retrieval) Available() bool {
	return r.retrieve != nil
}

// Reason explains why the capability is unavailable.
func (r Retrieval) Reason() string {
	if r.retrieve != nil {
		return ""
	}
	if r.reason == "" {
		return "not configured"
	}
	return r.reason
}

// Retrieve returns the chunks relevant to query, or nil when unavailable.
func (r Retrieval) Retrieve(ctx context.Context, query string) ([]Chunk, error) {
	if r.retrieve == nil {
		return nil, nil
	}
	return r.retrieve(ctx, query)
}
