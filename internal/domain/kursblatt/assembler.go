package kursblatt

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// isSell reports whether a trade row is a sell. The row is [time, volume, buy, sell] and the
// empty column holds "-", so a marker in the buy column means the price sits in the sell column.
func isSell(row []string) bool {
	return strings.TrimSpace(row[2]) == sellMarker
}

// pricePosition returns the offset of the price token inside a trade row.
func pricePosition(row []string) int {
	if isSell(row) {
		return 3
	}
	return 2
}

// assembleTrade converts the four tokens of a trade row into a record. base is the cursor
// position of row[0] and is only used for error reporting.
func assembleTrade(row []string, base int, st *ParserState, loc *time.Location) (TradeRecord, error) {
	if st.Locale == LocaleUndetermined {
		return TradeRecord{}, &tokenError{token: base, raw: row[0], err: ErrLocaleUnresolved}
	}

	tod, err := time.Parse(timeOfDayLayout, strings.TrimSpace(row[0]))
	if err != nil {
		return TradeRecord{}, unparsable(base, row[0], err)
	}

	side := SideBuy
	if isSell(row) {
		side = SideSell
	}
	priceAt := pricePosition(row)

	price, err := parsePrice(row[priceAt], st.Locale)
	if err != nil {
		return TradeRecord{}, unparsable(base+priceAt, row[priceAt], err)
	}

	volume, err := parseVolume(row[1], st.Locale)
	if err != nil {
		return TradeRecord{}, unparsable(base+1, row[1], err)
	}

	y, m, d := st.BaseDate.Date()
	return TradeRecord{
		Timestamp: time.Date(y, m, d, tod.Hour(), tod.Minute(), tod.Second(), 0, loc),
		Volume:    volume,
		Price:     price,
		Side:      side,
	}, nil
}

var errNegative = errors.New("negative value")

func parsePrice(raw string, l Locale) (decimal.Decimal, error) {
	s := delocalize(raw, l)
	p, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if p.IsNegative() {
		return decimal.Decimal{}, errNegative
	}
	return p, nil
}

func parseVolume(raw string, l Locale) (int64, error) {
	v, err := strconv.ParseInt(delocalize(raw, l), 10, 64)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, errNegative
	}
	return v, nil
}

// delocalize rewrites a number into period-decimal form without grouping. Comma-decimal tokens
// get their separators swapped first, so "1.234,5" and "1,234.5" both become "1234.5".
func delocalize(raw string, l Locale) string {
	s := strings.TrimSpace(raw)
	if l == LocaleCommaDecimal {
		s = swapSeparators(s)
	}
	return strings.ReplaceAll(s, ",", "")
}

func swapSeparators(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.':
			return ','
		case ',':
			return '.'
		}
		return r
	}, s)
}
