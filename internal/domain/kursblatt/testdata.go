package kursblatt

import (
	"strconv"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/shopspring/decimal"
)

// TestDataGenerator generates ledgers and report token streams for tests.
type TestDataGenerator struct {
	faker *gofakeit.Faker
}

// NewTestDataGenerator creates a generator with a random seed.
func NewTestDataGenerator() *TestDataGenerator {
	return &TestDataGenerator{faker: gofakeit.New(0)}
}

// NewTestDataGeneratorWithSeed creates a generator with a fixed seed for reproducibility.
func NewTestDataGeneratorWithSeed(seed int64) *TestDataGenerator {
	return &TestDataGenerator{faker: gofakeit.New(seed)}
}

// ISIN returns a random, well-formed looking ISIN.
func (g *TestDataGenerator) ISIN() string {
	return g.faker.Regex(`[A-Z]{2}[0-9A-Z]{9}[0-9]`)
}

// ShareIdentity returns a canonical identity that the report header pattern accepts.
func (g *TestDataGenerator) ShareIdentity() string {
	name := strings.ToUpper(g.faker.LetterN(uint(g.faker.IntRange(3, 10))))
	suffix := g.faker.RandomString([]string{"AG", "SE", "INC.", "CORP.", "N.V."})
	return ShareIdentity(name+" "+suffix, g.ISIN())
}

// Trade returns a trade on the given day with second precision and a three decimal price.
func (g *TestDataGenerator) Trade(day time.Time) TradeRecord {
	y, m, d := day.Date()
	offset := time.Duration(g.faker.IntRange(7*3600+1800, 23*3600-1)) * time.Second
	side := SideSell
	if g.faker.Bool() {
		side = SideBuy
	}
	return TradeRecord{
		Timestamp: time.Date(y, m, d, 0, 0, 0, 0, day.Location()).Add(offset),
		Volume:    int64(g.faker.IntRange(1, 250000)),
		Price:     decimal.NewFromFloat(g.faker.Float64Range(0.001, 5000)).Round(3),
		Side:      side,
	}
}

// Ledger returns a ledger with the given number of shares, each holding 1 to maxTrades trades
// on day.
func (g *TestDataGenerator) Ledger(day time.Time, shares, maxTrades int) *ShareLedger {
	ledger := NewShareLedger()
	for range shares {
		share := g.ShareIdentity()
		for range g.faker.IntRange(1, maxTrades) {
			ledger.Append(share, g.Trade(day))
		}
	}
	return ledger
}

// ReportTokens renders a ledger as the token stream of a comma-decimal Kursblatt printed on day.
// Every share header is followed by its trades in ledger order.
func (g *TestDataGenerator) ReportTokens(ledger *ShareLedger, day time.Time) []string {
	tokens := []string{
		"Kursblatt",
		"Datum: " + day.Format("02.01.2006"),
		"Uhrzeit", "Volumen", "Kauf", "Verkauf",
	}
	for _, share := range ledger.Shares() {
		tokens = append(tokens, share, segmentOpenMarket)
		for _, rec := range ledger.Trades(share) {
			price := formatCommaDecimal(rec.Price)
			row := []string{rec.Timestamp.Format(timeOfDayLayout), formatGrouped(rec.Volume), price, sellMarker}
			if rec.Side == SideSell {
				row[2], row[3] = sellMarker, price
			}
			tokens = append(tokens, row...)
		}
	}
	return tokens
}

// Paginate splits tokens into pages of at most size tokens without cutting a trade row.
func (g *TestDataGenerator) Paginate(tokens []string, size int) [][]string {
	m := NewMatchers()
	var pages [][]string
	start := 0
	for start < len(tokens) {
		end := min(start+size, len(tokens))
		for i := start; i < end; i++ {
			if m.isTimeOfDay(tokens, i) && i+tradeRowWidth > end {
				end = i
				break
			}
			if m.isTimeOfDay(tokens, i) {
				i += tradeRowWidth - 1
			}
		}
		if end == start {
			end = min(start+tradeRowWidth, len(tokens))
		}
		pages = append(pages, tokens[start:end])
		start = end
	}
	return pages
}

func formatCommaDecimal(d decimal.Decimal) string {
	return swapSeparators(d.StringFixed(3))
}

func formatGrouped(v int64) string {
	s := strconv.FormatInt(v, 10)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}
