// Package pdfdoc reads Kursblatt reports from PDF files.
//
// Text is emitted the way classic content-stream extractors do it: every text showing operator
// appends its string and every line operator a line break. The report tables rely on this, one
// table cell per line.
package pdfdoc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"golang.org/x/text/encoding/charmap"

	"github.com/FACorreiaa/lsx-collector/internal/domain/kursblatt"
)

var _ kursblatt.Document = (*Document)(nil)

// ErrMissingPage is returned for page objects that are absent from the page tree.
var ErrMissingPage = errors.New("page object missing")

// Document is a PDF backed kursblatt.Document.
type Document struct {
	closer io.Closer
	pages  int
	page   func(n int) pdf.Page // 1-based lookup in the page tree
}

func newDocument(r *pdf.Reader, closer io.Closer) *Document {
	return &Document{closer: closer, pages: r.NumPage(), page: r.Page}
}

// Open opens a PDF file. Close releases it.
func Open(path string) (doc *Document, err error) {
	defer func() {
		if r := recover(); r != nil {
			doc = nil
			err = fmt.Errorf("%w: panic while opening %s: %v", kursblatt.ErrUnreadableDocument, path, r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", kursblatt.ErrUnreadableDocument, err)
	}
	return newDocument(r, f), nil
}

// New reads a PDF from r.
func New(r io.ReaderAt, size int64) (doc *Document, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			doc = nil
			err = fmt.Errorf("%w: panic while reading pdf: %v", kursblatt.ErrUnreadableDocument, rec)
		}
	}()

	pr, err := pdf.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", kursblatt.ErrUnreadableDocument, err)
	}
	return newDocument(pr, nil), nil
}

// NewFromBytes reads a PDF held in memory.
func NewFromBytes(content []byte) (*Document, error) {
	if len(content) == 0 {
		return nil, fmt.Errorf("%w: empty content", kursblatt.ErrUnreadableDocument)
	}
	return New(bytes.NewReader(content), int64(len(content)))
}

// Close closes the underlying file, if any.
func (d *Document) Close() error {
	if d.closer == nil {
		return nil
	}
	return d.closer.Close()
}

// PageCount returns the number of pages.
func (d *Document) PageCount() int {
	return d.pages
}

// PageTokens extracts page n (0-based) and splits its text on line breaks.
func (d *Document) PageTokens(ctx context.Context, n int) (iter.Seq[string], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n < 0 || n >= d.pages {
		return nil, fmt.Errorf("page %d out of range [0, %d)", n, d.pages)
	}

	text, err := d.pageText(n + 1)
	if err != nil {
		return nil, fmt.Errorf("page %d: %w", n+1, err)
	}
	return func(yield func(string) bool) {
		for _, tok := range strings.Split(text, "\n") {
			if !yield(tok) {
				return
			}
		}
	}, nil
}

// pageText resolves page num (1-based) in the page tree and extracts its text. A panic in
// either step becomes an error.
func (d *Document) pageText(num int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("panic while resolving page: %v", r)
		}
	}()
	return PageText(d.page(num))
}

// PageText returns the text of a page with one line break per line operator.
func PageText(p pdf.Page) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("panic during text extraction: %v", r)
		}
	}()

	if p.V.IsNull() {
		return "", ErrMissingPage
	}

	e := &extractor{page: p, enc: passthrough{}, fonts: make(map[string]pdf.TextEncoding)}
	contents := p.V.Key("Contents")
	if contents.Kind() == pdf.Array {
		for i := 0; i < contents.Len(); i++ {
			pdf.Interpret(contents.Index(i), e.do)
		}
	} else {
		pdf.Interpret(contents, e.do)
	}
	return e.buf.String(), nil
}

type extractor struct {
	page  pdf.Page
	enc   pdf.TextEncoding
	fonts map[string]pdf.TextEncoding
	buf   strings.Builder
}

func (e *extractor) do(stk *pdf.Stack, op string) {
	n := stk.Len()
	args := make([]pdf.Value, n)
	for i := n - 1; i >= 0; i-- {
		args[i] = stk.Pop()
	}

	switch op {
	case "Tf":
		if n == 2 {
			e.enc = e.encoder(args[0].Name())
		}
	case "Tj":
		if n == 1 {
			e.show(args[0])
		}
	case "T*":
		e.buf.WriteByte('\n')
	case "'":
		if n == 1 {
			e.buf.WriteByte('\n')
			e.show(args[0])
		}
	case "\"":
		if n == 3 {
			e.buf.WriteByte('\n')
			e.show(args[2])
		}
	case "TJ":
		if n == 1 {
			for i := 0; i < args[0].Len(); i++ {
				if x := args[0].Index(i); x.Kind() == pdf.String {
					e.show(x)
				}
			}
			e.buf.WriteByte('\n')
		}
	}
}

func (e *extractor) show(v pdf.Value) {
	e.buf.WriteString(toUTF8(e.enc.Decode(v.RawString())))
}

func (e *extractor) encoder(font string) pdf.TextEncoding {
	if enc, ok := e.fonts[font]; ok {
		return enc
	}
	var enc pdf.TextEncoding = passthrough{}
	if f := e.page.Font(font); !f.V.IsNull() {
		enc = f.Encoder()
	}
	e.fonts[font] = enc
	return enc
}

// passthrough is used for strings shown without a resolvable font.
type passthrough struct{}

func (passthrough) Decode(raw string) string { return raw }

// toUTF8 reads text that is not valid UTF-8 as Windows-1252, the encoding LS-X reports use for
// share names with umlauts.
func toUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	out, err := charmap.Windows1252.NewDecoder().String(s)
	if err != nil {
		return strings.ToValidUTF8(s, string(utf8.RuneError))
	}
	return out
}
