package kursblatt

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	dateMarkerPrefix = "Datum:"
	dateMarkerLayout = "2.1.2006"
	timeOfDayLayout  = "15:04:05"

	// malformedVolume is what the report generator prints into the volume cell of a broken row.
	malformedVolume = "null"
	sellMarker      = "-"

	tradeRowWidth = 4
	isinLength    = 12
)

const (
	segmentOpenMarket      = "Freiverkehr"
	segmentRegulatedMarket = "Regulierter Markt"
)

var layoutLabels = []string{"Kursblatt", "Uhrzeit", "Kauf", "Verkauf", "Volumen"}

// Matchers holds the compiled token patterns. Build one per worker with NewMatchers and do not
// modify it afterwards.
type Matchers struct {
	timeOfDay     *regexp.Regexp
	shareWithISIN *regexp.Regexp
	layout        map[string]struct{}
	segments      map[string]struct{}
}

// NewMatchers compiles the token patterns.
func NewMatchers() *Matchers {
	m := &Matchers{
		timeOfDay:     regexp.MustCompile(`^[0-9]{2}:[0-9]{2}:[0-9]{2}`),
		shareWithISIN: regexp.MustCompile(`^[0-9A-Z\-_,.\t ]{3,}\([0-9A-Z]{12}\)`),
		layout:        make(map[string]struct{}, len(layoutLabels)),
		segments: map[string]struct{}{
			segmentOpenMarket:      {},
			segmentRegulatedMarket: {},
		},
	}
	for _, l := range layoutLabels {
		m.layout[l] = struct{}{}
	}
	return m
}

// State is the scanner state. A trade row is entered and left within one step.
type State int

const (
	StateSeekingContext State = iota
	StateInTradeRow
)

func (s State) String() string {
	if s == StateInTradeRow {
		return "in-trade-row"
	}
	return "seeking-context"
}

// RowKind classifies the token at the cursor.
type RowKind int

const (
	KindSkip RowKind = iota
	KindDateMarker
	KindTradeRow
	KindLayoutLabel
	KindShareWithISIN
	KindShareBySegment
)

func (k RowKind) String() string {
	switch k {
	case KindDateMarker:
		return "date-marker"
	case KindTradeRow:
		return "trade-row"
	case KindLayoutLabel:
		return "layout-label"
	case KindShareWithISIN:
		return "share-with-isin"
	case KindShareBySegment:
		return "share-by-segment"
	default:
		return "skip"
	}
}

// transition is one line of the classification table: the first matching line decides the
// kind and the number of tokens consumed.
type transition struct {
	kind    RowKind
	matches func(m *Matchers, tokens []string, i int) bool
	width   int
}

var transitions = [...]transition{
	{KindDateMarker, (*Matchers).isDateMarker, 1},
	{KindTradeRow, (*Matchers).isTimeOfDay, tradeRowWidth},
	{KindLayoutLabel, (*Matchers).isLayoutLabel, 1},
	{KindShareWithISIN, (*Matchers).isShareWithISIN, 1},
	{KindShareBySegment, (*Matchers).precedesSegment, 2},
}

func (m *Matchers) isDateMarker(tokens []string, i int) bool {
	return len(tokens[i]) > len(dateMarkerPrefix) && strings.HasPrefix(tokens[i], dateMarkerPrefix)
}

func (m *Matchers) isTimeOfDay(tokens []string, i int) bool {
	return m.timeOfDay.MatchString(tokens[i])
}

func (m *Matchers) isLayoutLabel(tokens []string, i int) bool {
	_, ok := m.layout[tokens[i]]
	return ok
}

func (m *Matchers) isShareWithISIN(tokens []string, i int) bool {
	return m.shareWithISIN.MatchString(tokens[i])
}

func (m *Matchers) precedesSegment(tokens []string, i int) bool {
	if i+1 >= len(tokens) {
		return false
	}
	_, ok := m.segments[tokens[i+1]]
	return ok
}

// Classify returns the kind of the token at position i and its base width.
func (m *Matchers) Classify(tokens []string, i int) (RowKind, int) {
	for _, t := range transitions {
		if t.matches(m, tokens, i) {
			return t.kind, t.width
		}
	}
	return KindSkip, 1
}

// ParserState is carried across the tokens and pages of one document.
type ParserState struct {
	Share    string    // canonical identity of the current share, empty before the first header
	BaseDate time.Time // midnight of the current report date
	Locale   Locale
}

// NewParserState creates the state for a new document.
func NewParserState(processingDate time.Time) ParserState {
	y, mo, d := processingDate.Date()
	return ParserState{
		BaseDate: time.Date(y, mo, d, 0, 0, 0, 0, processingDate.Location()),
		Locale:   LocaleUndetermined,
	}
}

// PageStats counts what a page contributed.
type PageStats struct {
	Trades         int
	MalformedRows  int
	LocaleDetected bool
}

// Scanner walks page tokens and emits trade records. It is not safe for concurrent use.
type Scanner struct {
	m        *Matchers
	strategy LocaleStrategy
	loc      *time.Location
	state    State
}

// NewScanner creates a scanner. Timestamps are built in loc.
func NewScanner(m *Matchers, strategy LocaleStrategy, loc *time.Location) *Scanner {
	if m == nil {
		m = NewMatchers()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Scanner{m: m, strategy: strategy, loc: loc}
}

// State returns the current scanner state.
func (s *Scanner) State() State {
	return s.state
}

// ScanPage scans one page, mutating st and calling emit for every assembled trade.
// A returned error is fatal for the document.
func (s *Scanner) ScanPage(st *ParserState, tokens []string, emit func(share string, rec TradeRecord)) (PageStats, error) {
	var stats PageStats
	for i := 0; i < len(tokens); {
		kind, width := s.m.Classify(tokens, i)
		n, err := s.step(kind, width, st, tokens, i, emit, &stats)
		if err != nil {
			return stats, err
		}
		i += n
	}
	return stats, nil
}

func (s *Scanner) step(kind RowKind, width int, st *ParserState, tokens []string, i int,
	emit func(string, TradeRecord), stats *PageStats) (int, error) {
	switch kind {
	case KindDateMarker:
		raw := strings.TrimSpace(tokens[i][len(dateMarkerPrefix):])
		d, err := time.ParseInLocation(dateMarkerLayout, raw, s.loc)
		if err != nil {
			return 0, unparsable(i, tokens[i], err)
		}
		st.BaseDate = d
		return width, nil

	case KindTradeRow:
		return width, s.tradeRow(st, tokens, i, emit, stats)

	case KindShareWithISIN:
		st.Share = strings.TrimSpace(tokens[i])
		if i+1 < len(tokens) && tokens[i+1] == segmentOpenMarket {
			return width + 1, nil
		}
		return width, nil

	case KindShareBySegment:
		// Newer layouts print ISIN, name and segment as separate cells.
		var isin string
		if i > 0 && utf8.RuneCountInString(tokens[i-1]) == isinLength {
			isin = tokens[i-1]
		}
		st.Share = ShareIdentity(tokens[i], isin)
		return width, nil

	default:
		return width, nil
	}
}

func (s *Scanner) tradeRow(st *ParserState, tokens []string, i int, emit func(string, TradeRecord), stats *PageStats) error {
	if s.state != StateSeekingContext {
		return fmt.Errorf("trade row at token %d entered in state %s", i, s.state)
	}
	s.state = StateInTradeRow
	defer func() { s.state = StateSeekingContext }()

	if i+1 < len(tokens) && tokens[i+1] == malformedVolume {
		stats.MalformedRows++
		return nil
	}
	if i+tradeRowWidth > len(tokens) {
		return &tokenError{token: i, raw: tokens[i], err: ErrTruncatedRow}
	}
	row := tokens[i : i+tradeRowWidth]

	if st.Locale == LocaleUndetermined {
		priceAt := pricePosition(row)
		l, err := s.strategy.Detect(row[priceAt])
		if err != nil {
			return &tokenError{token: i + priceAt, raw: row[priceAt], err: err}
		}
		st.Locale = l
		stats.LocaleDetected = true
	}

	rec, err := assembleTrade(row, i, st, s.loc)
	if err != nil {
		return err
	}
	emit(st.Share, rec)
	stats.Trades++
	return nil
}
