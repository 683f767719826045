package kursblatt

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Side is the order side of a trade. The numeric values are part of the interchange format.
type Side int

const (
	SideSell Side = 0
	SideBuy  Side = 1
)

func (s Side) String() string {
	switch s {
	case SideSell:
		return "SELL"
	case SideBuy:
		return "BUY"
	default:
		return "UNKNOWN"
	}
}

// Code returns the single character stored in the order_type column.
func (s Side) Code() string {
	if s == SideSell {
		return "S"
	}
	return "B"
}

// Valid reports whether s is SELL or BUY.
func (s Side) Valid() bool {
	return s == SideSell || s == SideBuy
}

// TradeRecord is one trade of a share. Timestamp always carries the base date of the report.
type TradeRecord struct {
	Timestamp time.Time
	Volume    int64
	Price     decimal.Decimal
	Side      Side
}

// ShareLedger maps a share identity to its trades in the order they were read.
// Shares keep the order in which they were first seen.
type ShareLedger struct {
	order  []string
	trades map[string][]TradeRecord
}

// NewShareLedger creates an empty ledger.
func NewShareLedger() *ShareLedger {
	return &ShareLedger{trades: make(map[string][]TradeRecord)}
}

// Append adds a record to the end of the share's trade list.
func (l *ShareLedger) Append(share string, rec TradeRecord) {
	l.touch(share)
	l.trades[share] = append(l.trades[share], rec)
}

func (l *ShareLedger) touch(share string) {
	if l.trades == nil {
		l.trades = make(map[string][]TradeRecord)
	}
	if _, ok := l.trades[share]; !ok {
		l.order = append(l.order, share)
		l.trades[share] = nil
	}
}

// Shares returns the share identities in first-seen order.
func (l *ShareLedger) Shares() []string {
	out := make([]string, len(l.order))
	copy(out, l.order)
	return out
}

// Trades returns the trades recorded for a share.
func (l *ShareLedger) Trades(share string) []TradeRecord {
	return l.trades[share]
}

// Len returns the number of shares.
func (l *ShareLedger) Len() int {
	return len(l.order)
}

// TradeCount returns the number of trades over all shares.
func (l *ShareLedger) TradeCount() int {
	n := 0
	for _, recs := range l.trades {
		n += len(recs)
	}
	return n
}

var shareIdentityPattern = regexp.MustCompile(`^(.*)\(([0-9A-Z]{12})\)\s*$`)

// ShareIdentity builds the canonical identity "NAME (ISIN)". Without an ISIN the trimmed name
// is the identity.
func ShareIdentity(name, isin string) string {
	name = strings.TrimSpace(name)
	isin = strings.TrimSpace(isin)
	if isin == "" {
		return name
	}
	return name + " (" + isin + ")"
}

// ParseShareIdentity splits a canonical identity into name and ISIN. The ISIN is empty when the
// identity carries none.
func ParseShareIdentity(identity string) (name, isin string) {
	identity = strings.TrimSpace(identity)
	m := shareIdentityPattern.FindStringSubmatch(identity)
	if m == nil {
		return identity, ""
	}
	return strings.TrimSpace(m[1]), m[2]
}
