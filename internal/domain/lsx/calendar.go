package lsx

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/patrickmn/go-cache"
)

// CalendarDateLayout is the date layout of the non-trading days table.
const CalendarDateLayout = "02.01.2006"

const nonTradingDaysKey = "non-trading-days"

// Trading session, in exchange local time.
var (
	sessionOpen  = 7*time.Hour + 30*time.Minute
	sessionClose = 23 * time.Hour
)

// Calendar knows when LS-X trades. Non-trading days are scraped from the site and cached.
type Calendar struct {
	client *Client
	cache  *cache.Cache
	loc    *time.Location
	logger *slog.Logger
}

// NewCalendar creates a calendar for the exchange in loc whose scraped days live for ttl.
func NewCalendar(client *Client, loc *time.Location, ttl time.Duration, logger *slog.Logger) *Calendar {
	if loc == nil {
		loc = time.UTC
	}
	return &Calendar{
		client: client,
		cache:  cache.New(ttl, 2*ttl),
		loc:    loc,
		logger: logger,
	}
}

// Location returns the exchange time zone.
func (c *Calendar) Location() *time.Location {
	return c.loc
}

// NonTradingDays returns the published non-trading days.
func (c *Calendar) NonTradingDays(ctx context.Context) ([]time.Time, error) {
	if days, ok := c.cache.Get(nonTradingDaysKey); ok {
		return days.([]time.Time), nil
	}

	resp, err := c.client.Get(ctx, c.client.URL(CalendarPath))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	days, err := ParseNonTradingDays(resp.Body, c.loc)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault(nonTradingDaysKey, days)
	return days, nil
}

// InTradingHours reports whether t falls on a weekday session that is not a published
// non-trading day. When the calendar page cannot be read only the weekly schedule applies.
func (c *Calendar) InTradingHours(ctx context.Context, t time.Time) bool {
	t = t.In(c.loc)
	if !inWeeklySession(t) {
		return false
	}

	days, err := c.NonTradingDays(ctx)
	if err != nil {
		c.logger.Warn("unable to read non-trading days", slog.Any("error", err))
		return true
	}

	y, m, d := t.Date()
	for _, day := range days {
		dy, dm, dd := day.Date()
		if y == dy && m == dm && d == dd {
			return false
		}
	}
	return true
}

func inWeeklySession(t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	y, m, d := t.Date()
	sinceMidnight := t.Sub(time.Date(y, m, d, 0, 0, 0, 0, t.Location()))
	return sinceMidnight >= sessionOpen && sinceMidnight <= sessionClose
}

// ParseNonTradingDays reads the first cell of every body row of the first table on the page.
func ParseNonTradingDays(r io.Reader, loc *time.Location) ([]time.Time, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse calendar page: %w", err)
	}

	table := doc.Find("table").First()
	if table.Length() == 0 {
		return nil, fmt.Errorf("calendar page has no table")
	}

	var (
		days     []time.Time
		parseErr error
	)
	table.Find("tbody tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		cell := strings.TrimSpace(row.Find("td").First().Text())
		if cell == "" {
			return true
		}
		day, err := time.ParseInLocation(CalendarDateLayout, cell, loc)
		if err != nil {
			parseErr = fmt.Errorf("invalid non-trading day %q: %w", cell, err)
			return false
		}
		days = append(days, day)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return days, nil
}
