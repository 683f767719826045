package kursblatt

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/lsx-collector/pkg/money"
)

// ReportCurrency is the currency LS-X quotes prices in.
const ReportCurrency = money.EUR

// ShareSummary aggregates the trades of one share.
type ShareSummary struct {
	Identity string
	Name     string
	ISIN     string
	Trades   int
	Buys     int
	Sells    int
	Volume   int64
	FirstAt  time.Time
	LastAt   time.Time
	Low      decimal.Decimal
	High     decimal.Decimal
	Turnover *money.Money
	AvgPrice decimal.Decimal // volume weighted
}

// Summary returns one entry per share in ledger order.
func (l *ShareLedger) Summary() []ShareSummary {
	out := make([]ShareSummary, 0, len(l.order))
	for _, share := range l.order {
		out = append(out, summarize(share, l.trades[share]))
	}
	return out
}

func summarize(share string, records []TradeRecord) ShareSummary {
	name, isin := ParseShareIdentity(share)
	s := ShareSummary{
		Identity: share,
		Name:     name,
		ISIN:     isin,
		Trades:   len(records),
		Turnover: money.Zero(ReportCurrency),
	}

	notional := decimal.Zero
	for i, rec := range records {
		if rec.Side == SideBuy {
			s.Buys++
		} else {
			s.Sells++
		}
		s.Volume += rec.Volume
		notional = notional.Add(rec.Price.Mul(decimal.NewFromInt(rec.Volume)))

		if i == 0 || rec.Timestamp.Before(s.FirstAt) {
			s.FirstAt = rec.Timestamp
		}
		if i == 0 || rec.Timestamp.After(s.LastAt) {
			s.LastAt = rec.Timestamp
		}
		if i == 0 || rec.Price.LessThan(s.Low) {
			s.Low = rec.Price
		}
		if i == 0 || rec.Price.GreaterThan(s.High) {
			s.High = rec.Price
		}
	}

	s.Turnover = money.NewFromDecimal(notional, ReportCurrency)
	if s.Volume > 0 {
		s.AvgPrice = notional.Div(decimal.NewFromInt(s.Volume)).Round(4)
	}
	return s
}
