// Package artifact writes and reads the files derived from a Kursblatt: the JSON ledger and an
// optional spreadsheet export.
package artifact

import (
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/FACorreiaa/lsx-collector/internal/domain/kursblatt"
	"github.com/FACorreiaa/lsx-collector/pkg/money"
)

// Sheet names of the spreadsheet export.
const (
	TradesSheet  = "trades"
	SummarySheet = "summary"
)

const (
	JSONExt = ".json"
	XLSXExt = ".xlsx"
	PDFExt  = ".pdf"
)

// JSONName returns the ledger file name for a report file name.
func JSONName(report string) string {
	return swapExt(report, JSONExt)
}

// XLSXName returns the spreadsheet file name for a report file name.
func XLSXName(report string) string {
	return swapExt(report, XLSXExt)
}

func swapExt(name, ext string) string {
	old := path.Ext(name)
	if strings.EqualFold(old, ext) {
		return name
	}
	return strings.TrimSuffix(name, old) + ext
}

// WriteJSON writes ledger in interchange form.
func WriteJSON(w io.Writer, ledger *kursblatt.ShareLedger) error {
	data, err := ledger.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to encode ledger: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write ledger: %w", err)
	}
	return nil
}

// ReadJSON reads a ledger in interchange form with timestamps in loc.
func ReadJSON(r io.Reader, loc *time.Location) (*kursblatt.ShareLedger, error) {
	ledger, err := kursblatt.DecodeLedger(r, loc)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ledger: %w", err)
	}
	return ledger, nil
}

var (
	tradesHeader  = []any{"Share", "ISIN", "Time", "Side", "Volume", "Price"}
	summaryHeader = []any{"Share", "ISIN", "Trades", "Buys", "Sells", "Volume", "First", "Last", "Low", "High", "VWAP", "Turnover"}
)

// WriteXLSX writes a workbook with every trade on one sheet and per-share totals on another.
func WriteXLSX(w io.Writer, ledger *kursblatt.ShareLedger) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", TradesSheet); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}
	if err := writeTrades(f, ledger); err != nil {
		return err
	}

	if _, err := f.NewSheet(SummarySheet); err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", SummarySheet, err)
	}
	if err := writeSummary(f, ledger); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeTrades(f *excelize.File, ledger *kursblatt.ShareLedger) error {
	sw, err := f.NewStreamWriter(TradesSheet)
	if err != nil {
		return fmt.Errorf("failed to open stream writer: %w", err)
	}

	row := 1
	if err := setRow(sw, row, tradesHeader); err != nil {
		return err
	}
	for _, share := range ledger.Shares() {
		name, isin := kursblatt.ParseShareIdentity(share)
		for _, rec := range ledger.Trades(share) {
			row++
			err := setRow(sw, row, []any{
				name,
				isin,
				rec.Timestamp.Format(kursblatt.InterchangeTimeLayout),
				rec.Side.String(),
				rec.Volume,
				rec.Price.InexactFloat64(),
			})
			if err != nil {
				return err
			}
		}
	}

	if err := sw.Flush(); err != nil {
		return fmt.Errorf("failed to flush sheet %s: %w", TradesSheet, err)
	}
	return nil
}

func writeSummary(f *excelize.File, ledger *kursblatt.ShareLedger) error {
	sw, err := f.NewStreamWriter(SummarySheet)
	if err != nil {
		return fmt.Errorf("failed to open stream writer: %w", err)
	}

	row := 1
	if err := setRow(sw, row, summaryHeader); err != nil {
		return err
	}

	total := money.Zero(kursblatt.ReportCurrency)
	for _, s := range ledger.Summary() {
		row++
		err := setRow(sw, row, []any{
			s.Name,
			s.ISIN,
			s.Trades,
			s.Buys,
			s.Sells,
			s.Volume,
			s.FirstAt.Format(kursblatt.InterchangeTimeLayout),
			s.LastAt.Format(kursblatt.InterchangeTimeLayout),
			s.Low.InexactFloat64(),
			s.High.InexactFloat64(),
			s.AvgPrice.InexactFloat64(),
			s.Turnover.ToFloat64(),
		})
		if err != nil {
			return err
		}
		if total, err = total.Add(s.Turnover); err != nil {
			return fmt.Errorf("failed to total turnover: %w", err)
		}
	}

	row++
	if err := setRow(sw, row, []any{"Total", "", ledger.TradeCount(), "", "", "", "", "", "", "", "", total.ToFloat64()}); err != nil {
		return err
	}

	if err := sw.Flush(); err != nil {
		return fmt.Errorf("failed to flush sheet %s: %w", SummarySheet, err)
	}
	return nil
}

func setRow(sw *excelize.StreamWriter, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := sw.SetRow(cell, values); err != nil {
		return fmt.Errorf("failed to write row %d: %w", row, err)
	}
	return nil
}
