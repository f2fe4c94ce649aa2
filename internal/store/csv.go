package store

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/gocarina/gocsv"

	"nifty-options-lab/internal/errors"
	"nifty-options-lab/internal/models"
	"nifty-options-lab/pkg/utils"
)

type candleRow struct {
	Date   string  `csv:"date"`
	Open   float64 `csv:"open"`
	High   float64 `csv:"high"`
	Low    float64 `csv:"low"`
	Close  float64 `csv:"close"`
	Volume int64   `csv:"volume"`
}

type tradeRow struct {
	EntryDate    string  `csv:"entry_date"`
	ExitDate     string  `csv:"exit_date"`
	Symbol       string  `csv:"symbol"`
	Strategy     string  `csv:"strategy"`
	Type         string  `csv:"type"`
	Strike       float64 `csv:"strike"`
	Direction    string  `csv:"direction"`
	Quantity     int     `csv:"quantity"`
	LotSize      int     `csv:"lot_size"`
	EntryPrice   float64 `csv:"entry_price"`
	ExitPrice    float64 `csv:"exit_price"`
	Fees         float64 `csv:"fees"`
	PnL          float64 `csv:"pnl"`
	ReturnPct    float64 `csv:"return_pct"`
	DurationDays int     `csv:"duration_days"`
	ExitReason   string  `csv:"exit_reason"`
}

// ImportCandlesCSV reads daily bars with the header
// date,open,high,low,close,volume. Dates are YYYY-MM-DD (IST) or RFC 3339.
// The result is sorted by date.
func ImportCandlesCSV(r io.Reader) (models.Series, error) {
	var rows []*candleRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, errors.NewDataError("csv", "", "failed to parse candles", err)
	}

	series := make(models.Series, 0, len(rows))
	for i, row := range rows {
		ts, err := parseCSVDate(row.Date)
		if err != nil {
			return nil, errors.NewDataError("csv", "", fmt.Sprintf("row %d", i+2), err)
		}
		if row.Close <= 0 {
			return nil, errors.NewDataError("csv", "", fmt.Sprintf("row %d: close must be positive", i+2), errors.ErrInvalidInput)
		}
		series = append(series, models.Candle{
			Timestamp: ts,
			Open:      row.Open,
			High:      row.High,
			Low:       row.Low,
			Close:     row.Close,
			Volume:    row.Volume,
		})
	}
	sort.SliceStable(series, func(i, j int) bool {
		return series[i].Timestamp.Before(series[j].Timestamp)
	})
	return series, nil
}

func parseCSVDate(s string) (time.Time, error) {
	if t, err := utils.ParseDate(s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// ExportTradesCSV writes closed trades with a header row. Money columns are
// rounded to paise.
func ExportTradesCSV(w io.Writer, trades []models.Trade) error {
	rows := make([]*tradeRow, len(trades))
	for i, t := range trades {
		rows[i] = &tradeRow{
			EntryDate:    t.EntryDate.Format("2006-01-02"),
			ExitDate:     t.ExitDate.Format("2006-01-02"),
			Symbol:       t.Symbol,
			Strategy:     t.Strategy,
			Type:         string(t.Type),
			Strike:       t.Strike,
			Direction:    t.Direction.String(),
			Quantity:     t.Quantity,
			LotSize:      t.LotSize,
			EntryPrice:   money(t.EntryPrice),
			ExitPrice:    money(t.ExitPrice),
			Fees:         money(t.Fees),
			PnL:          money(t.PnL),
			ReturnPct:    t.ReturnPct,
			DurationDays: t.DurationDays,
			ExitReason:   t.ExitReason,
		}
	}
	return gocsv.Marshal(&rows, w)
}
