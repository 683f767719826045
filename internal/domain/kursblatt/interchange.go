package kursblatt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// InterchangeTimeLayout is the timestamp layout of the serialized ledger (second precision,
// wall-clock time, no zone).
const InterchangeTimeLayout = "2006-01-02T15:04:05"

// MarshalJSON writes the ledger as an object keyed by share identity whose values are arrays of
// [timestamp, volume, price, side] tuples. Share and record order are preserved. There is no
// UnmarshalJSON: timestamps carry no zone, so reading back goes through DecodeLedger.
func (l *ShareLedger) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(64 + l.TradeCount()*40)
	buf.WriteByte('{')
	for i, share := range l.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		if !utf8.ValidString(share) {
			return nil, fmt.Errorf("share identity %q: %w", share, ErrInvalidIdentity)
		}
		key, err := json.Marshal(share)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteString(":[")
		for j, rec := range l.trades[share] {
			if j > 0 {
				buf.WriteByte(',')
			}
			appendRecord(&buf, rec)
		}
		buf.WriteByte(']')
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func appendRecord(buf *bytes.Buffer, rec TradeRecord) {
	buf.WriteString(`["`)
	buf.WriteString(rec.Timestamp.Format(InterchangeTimeLayout))
	buf.WriteString(`",`)
	buf.WriteString(strconv.FormatInt(rec.Volume, 10))
	buf.WriteByte(',')
	buf.WriteString(rec.Price.String())
	buf.WriteByte(',')
	buf.WriteString(strconv.Itoa(int(rec.Side)))
	buf.WriteByte(']')
}

// DecodeLedger reads a ledger in interchange form, interpreting timestamps in loc.
func DecodeLedger(r io.Reader, loc *time.Location) (*ShareLedger, error) {
	if loc == nil {
		loc = time.UTC
	}
	dec := json.NewDecoder(r)

	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}

	ledger := NewShareLedger()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("read share identity: %w", err)
		}
		share, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected share identity, got %v", tok)
		}

		var rows [][]json.RawMessage
		if err := dec.Decode(&rows); err != nil {
			return nil, fmt.Errorf("share %q: %w", share, err)
		}
		if len(rows) == 0 {
			// keep shares without trades so a round trip is lossless
			ledger.touch(share)
			continue
		}
		for i, row := range rows {
			rec, err := decodeRecord(row, loc)
			if err != nil {
				return nil, fmt.Errorf("share %q, record %d: %w", share, i, err)
			}
			ledger.Append(share, rec)
		}
	}
	if err := expectDelim(dec, '}'); err != nil {
		return nil, err
	}
	return ledger, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("read ledger: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("read ledger: expected %q, got %v", want, tok)
	}
	return nil
}

func decodeRecord(raw []json.RawMessage, loc *time.Location) (TradeRecord, error) {
	if len(raw) != 4 {
		return TradeRecord{}, fmt.Errorf("expected 4 fields, got %d", len(raw))
	}

	var ts string
	if err := json.Unmarshal(raw[0], &ts); err != nil {
		return TradeRecord{}, fmt.Errorf("timestamp: %w", err)
	}
	t, err := time.ParseInLocation(InterchangeTimeLayout, ts, loc)
	if err != nil {
		return TradeRecord{}, fmt.Errorf("timestamp: %w", err)
	}

	volume, err := strconv.ParseInt(string(bytes.TrimSpace(raw[1])), 10, 64)
	if err != nil {
		return TradeRecord{}, fmt.Errorf("volume: %w", err)
	}

	price, err := decimal.NewFromString(string(bytes.TrimSpace(raw[2])))
	if err != nil {
		return TradeRecord{}, fmt.Errorf("price: %w", err)
	}

	side, err := strconv.Atoi(string(bytes.TrimSpace(raw[3])))
	if err != nil {
		return TradeRecord{}, fmt.Errorf("side: %w", err)
	}
	if !Side(side).Valid() {
		return TradeRecord{}, fmt.Errorf("side: unknown value %d", side)
	}

	return TradeRecord{Timestamp: t, Volume: volume, Price: price, Side: Side(side)}, nil
}
