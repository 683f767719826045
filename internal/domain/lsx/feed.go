package lsx

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"
)

// FeedTimeLayout is the timestamp layout of the trade feed.
const FeedTimeLayout = "2006-01-02 15:04:05.000000"

// Day selects one of the two trade feeds.
type Day int

const (
	Today Day = iota
	Yesterday
)

func (d Day) path() string {
	if d == Yesterday {
		return TradesYesterdayPath
	}
	return TradesTodayPath
}

// LiveTrade is one trade of the live feed.
type LiveTrade struct {
	ISIN        string
	DisplayName string
	Timestamp   time.Time
	Price       decimal.Decimal
	Volume      int64
}

// feedRow is the CSV shape of the feed.
type feedRow struct {
	ISIN        string `csv:"isin"`
	DisplayName string `csv:"displayName"`
	Time        string `csv:"time"`
	Price       string `csv:"price"`
	Size        string `csv:"size"`
}

// FeedURL returns the URL of the trade feed for day.
func (c *Client) FeedURL(day Day) string {
	return c.URL(day.path())
}

// Trades fetches and decodes the trade feed of day. Timestamps are read in loc.
func (c *Client) Trades(ctx context.Context, day Day, loc *time.Location) ([]LiveTrade, error) {
	resp, err := c.Get(ctx, c.FeedURL(day))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return ParseTrades(resp.Body, loc)
}

// RecentTrades returns yesterday's trades, when yesterday was a trading day, followed by
// today's.
func (c *Client) RecentTrades(ctx context.Context, cal *Calendar, now time.Time) ([]LiveTrade, error) {
	days := []Day{Today}
	if cal.InTradingHours(ctx, PreviousNoon(now.In(cal.Location()))) {
		days = []Day{Yesterday, Today}
	}

	var trades []LiveTrade
	for _, day := range days {
		t, err := c.Trades(ctx, day, cal.Location())
		if err != nil {
			return nil, err
		}
		trades = append(trades, t...)
	}
	return trades, nil
}

// PreviousNoon returns noon of the day before t, in t's location.
func PreviousNoon(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d-1, 12, 0, 0, 0, t.Location())
}

// ParseTrades decodes the ';' separated feed.
func ParseTrades(r io.Reader, loc *time.Location) ([]LiveTrade, error) {
	if loc == nil {
		loc = time.UTC
	}

	reader := csv.NewReader(r)
	reader.Comma = ';'
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	var rows []feedRow
	if err := gocsv.UnmarshalCSV(reader, &rows); err != nil {
		if errors.Is(err, gocsv.ErrEmptyCSVFile) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse trade feed: %w", err)
	}

	trades := make([]LiveTrade, 0, len(rows))
	for i, row := range rows {
		t, err := row.trade(loc)
		if err != nil {
			// +2 for the header and 1-indexing
			return nil, fmt.Errorf("trade feed row %d: %w", i+2, err)
		}
		trades = append(trades, t)
	}
	return trades, nil
}

func (r feedRow) trade(loc *time.Location) (LiveTrade, error) {
	ts, err := time.ParseInLocation(FeedTimeLayout, strings.TrimSpace(r.Time), loc)
	if err != nil {
		return LiveTrade{}, fmt.Errorf("invalid time %q: %w", r.Time, err)
	}
	price, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(r.Price), ",", "."))
	if err != nil {
		return LiveTrade{}, fmt.Errorf("invalid price %q: %w", r.Price, err)
	}
	volume, err := strconv.ParseInt(strings.TrimSpace(r.Size), 10, 64)
	if err != nil {
		return LiveTrade{}, fmt.Errorf("invalid size %q: %w", r.Size, err)
	}

	return LiveTrade{
		ISIN:        strings.TrimSpace(r.ISIN),
		DisplayName: strings.TrimSpace(r.DisplayName),
		Timestamp:   ts,
		Price:       price,
		Volume:      volume,
	}, nil
}
