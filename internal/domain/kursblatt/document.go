// Package kursblatt turns the token stream of LS-X "Kursblatt" trade reports into a ledger of
// trades per listed share.
//
// The reports are flattened PDF tables. Every table cell arrives as one line of extracted text,
// so the scanner walks a linear token stream and rebuilds the rows from fixed offsets while
// carrying the current share, base date and number locale forward across tokens and pages.
package kursblatt

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"strings"
)

// Document is a source of page token streams.
//
// PageTokens returns the tokens of page n (0-based) in reading order. The sequence is split on
// line breaks exactly as the text extractor emitted them; tokens are not trimmed.
type Document interface {
	PageCount() int
	PageTokens(ctx context.Context, n int) (iter.Seq[string], error)
}

// MemoryDocument is a Document backed by in-memory pages.
type MemoryDocument struct {
	pages [][]string
}

// NewMemoryDocument creates a document whose pages hold the given tokens.
func NewMemoryDocument(pages ...[]string) *MemoryDocument {
	return &MemoryDocument{pages: pages}
}

// NewMemoryDocumentFromText creates a document from raw page texts, splitting each on "\n".
func NewMemoryDocumentFromText(pages ...string) *MemoryDocument {
	doc := &MemoryDocument{pages: make([][]string, 0, len(pages))}
	for _, p := range pages {
		doc.pages = append(doc.pages, strings.Split(p, "\n"))
	}
	return doc
}

// PageCount returns the number of pages.
func (d *MemoryDocument) PageCount() int {
	return len(d.pages)
}

// PageTokens returns the tokens of page n.
func (d *MemoryDocument) PageTokens(_ context.Context, n int) (iter.Seq[string], error) {
	if n < 0 || n >= len(d.pages) {
		return nil, fmt.Errorf("page %d out of range [0, %d)", n, len(d.pages))
	}
	return slices.Values(d.pages[n]), nil
}
