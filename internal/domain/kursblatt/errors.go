package kursblatt

import (
	"errors"
	"fmt"
)

var (
	// ErrUnparsableToken means a numeric, date or time token did not parse. It indicates a layout
	// variant the scanner does not know and aborts the document.
	ErrUnparsableToken = errors.New("unparsable token")

	// ErrLocaleUnresolved means the decimal separator could not be decided before the first
	// numeric token had to be parsed.
	ErrLocaleUnresolved = errors.New("number locale could not be resolved")

	// ErrTruncatedRow means a trade row started less than four tokens before the end of a page.
	ErrTruncatedRow = errors.New("trade row truncated at end of page")

	// ErrInvalidIdentity means a share identity is not valid UTF-8 and cannot be written to the
	// interchange form without losing characters.
	ErrInvalidIdentity = errors.New("share identity is not valid UTF-8")

	// ErrUnreadableDocument means the document structure itself could not be read.
	ErrUnreadableDocument = errors.New("unreadable document")
)

// DocumentError is a fatal error for a whole document. No ledger is published for it.
type DocumentError struct {
	Document string
	Page     int // 0-based, -1 when not page related
	Token    int // cursor position in the page, -1 when not token related
	Raw      string
	Err      error
}

func (e *DocumentError) Error() string {
	switch {
	case e.Page < 0:
		return fmt.Sprintf("document %s: %v", e.Document, e.Err)
	case e.Token < 0:
		return fmt.Sprintf("document %s, page %d: %v", e.Document, e.Page+1, e.Err)
	case e.Raw != "":
		return fmt.Sprintf("document %s, page %d, token %d (%q): %v", e.Document, e.Page+1, e.Token, e.Raw, e.Err)
	default:
		return fmt.Sprintf("document %s, page %d, token %d: %v", e.Document, e.Page+1, e.Token, e.Err)
	}
}

func (e *DocumentError) Unwrap() error {
	return e.Err
}

// tokenError carries the failing cursor position from the scanner up to the driver.
type tokenError struct {
	token int
	raw   string
	err   error
}

func (e *tokenError) Error() string {
	return fmt.Sprintf("token %d (%q): %v", e.token, e.raw, e.err)
}

func (e *tokenError) Unwrap() error {
	return e.err
}

func unparsable(token int, raw string, cause error) error {
	if cause == nil {
		return &tokenError{token: token, raw: raw, err: ErrUnparsableToken}
	}
	return &tokenError{token: token, raw: raw, err: fmt.Errorf("%w: %v", ErrUnparsableToken, cause)}
}
