package ingestion

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"orderflow-lab/internal/domain"
	"orderflow-lab/internal/pricing"
	"orderflow-lab/internal/replay"
)

// Accepted timestamp layouts, tried in order. Naive timestamps are
// interpreted in CSVOptions.Location.
var timestampLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	time.RFC3339Nano,
}

// Header aliases for the four required columns.
var columnAliases = map[string]string{
	"timestamp": "timestamp",
	"time":      "timestamp",
	"precio":    "price",
	"price":     "price",
	"volumen":   "volume",
	"volume":    "volume",
	"lado":      "side",
	"side":      "side",
}

// CSVOptions configures CSV decoding.
type CSVOptions struct {
	Symbol    string         // symbol stamped on every tick
	Location  *time.Location // zone of naive timestamps; nil means UTC
	Delimiter rune           // defaults to ';'
	// Resort stably re-sorts out-of-order input by timestamp instead of
	// rejecting the file with replay.ErrInvalidOrdering.
	Resort bool
	Logger *zap.Logger
}

// CSVResult is the outcome of decoding one file.
type CSVResult struct {
	Ticks    []*domain.Tick
	Rows     int // data rows read
	Skipped  int // malformed rows skipped
	Resorted bool
}

// DecodeCSVFile opens path and decodes it with DecodeCSV.
func DecodeCSVFile(path string, opts CSVOptions) (*CSVResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open tick file: %w", err)
	}
	defer f.Close()
	return DecodeCSV(f, opts)
}

// DecodeCSV reads a semicolon separated tick file with a header row
// (Timestamp;Precio;Volumen;Lado, decimal comma allowed). Malformed rows
// are skipped with a warning. Seq is the row's position in the file.
func DecodeCSV(r io.Reader, opts CSVOptions) (*CSVResult, error) {
	if opts.Symbol == "" {
		return nil, fmt.Errorf("%w: symbol is required", ErrMalformedTick)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}

	reader := csv.NewReader(r)
	reader.Comma = ';'
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty file", ErrMalformedTick)
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols, err := mapColumns(header)
	if err != nil {
		return nil, err
	}

	result := &CSVResult{}
	ordered := true
	var last *domain.Tick

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				result.Rows++
				result.Skipped++
				logger.Warn("skipping unreadable row", zap.Int("line", parseErr.Line), zap.Error(err))
				continue
			}
			return nil, fmt.Errorf("read row: %w", err)
		}
		result.Rows++

		tick, err := parseRow(record, cols, opts.Symbol, loc)
		if err == nil {
			tick.Seq = int64(result.Rows)
			err = ValidateTick(tick)
		}
		if err != nil {
			result.Skipped++
			line, _ := reader.FieldPos(0)
			logger.Warn("skipping malformed tick", zap.Int("line", line), zap.Error(err))
			continue
		}

		if last != nil && tick.TimestampMs < last.TimestampMs {
			if !opts.Resort {
				return nil, fmt.Errorf("%w: row %d at %d precedes %d",
					replay.ErrInvalidOrdering, result.Rows, tick.TimestampMs, last.TimestampMs)
			}
			ordered = false
		}
		last = tick
		result.Ticks = append(result.Ticks, tick)
	}

	if !ordered {
		replay.SortTicks(result.Ticks)
		result.Resorted = true
		logger.Info("re-sorted out-of-order tick file", zap.Int("ticks", len(result.Ticks)))
	}

	return result, nil
}

type columnIndex struct {
	timestamp, price, volume, side int
}

func mapColumns(header []string) (columnIndex, error) {
	idx := map[string]int{}
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if canonical, ok := columnAliases[key]; ok {
			if _, dup := idx[canonical]; !dup {
				idx[canonical] = i
			}
		}
	}
	for _, required := range []string{"timestamp", "price", "volume", "side"} {
		if _, ok := idx[required]; !ok {
			return columnIndex{}, fmt.Errorf("%w: missing column %q", ErrMalformedTick, required)
		}
	}
	return columnIndex{
		timestamp: idx["timestamp"],
		price:     idx["price"],
		volume:    idx["volume"],
		side:      idx["side"],
	}, nil
}

func parseRow(record []string, cols columnIndex, symbol string, loc *time.Location) (*domain.Tick, error) {
	field := func(i int) (string, error) {
		if i >= len(record) {
			return "", fmt.Errorf("%w: row has %d fields", ErrMalformedTick, len(record))
		}
		return strings.TrimSpace(record[i]), nil
	}

	rawTs, err := field(cols.timestamp)
	if err != nil {
		return nil, err
	}
	ts, err := ParseTimestamp(rawTs, loc)
	if err != nil {
		return nil, err
	}

	rawPrice, err := field(cols.price)
	if err != nil {
		return nil, err
	}
	price, err := pricing.ParsePrice(rawPrice)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTick, err)
	}

	rawVolume, err := field(cols.volume)
	if err != nil {
		return nil, err
	}
	volume, err := parseVolume(rawVolume)
	if err != nil {
		return nil, err
	}

	rawSide, err := field(cols.side)
	if err != nil {
		return nil, err
	}
	side, err := domain.ParseSide(rawSide)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTick, err)
	}

	return &domain.Tick{
		Symbol:      symbol,
		TimestampMs: ts,
		Price:       price,
		Volume:      volume,
		Side:        side,
	}, nil
}

// ParseTimestamp parses a tick timestamp into Unix milliseconds. It accepts
// the layouts in timestampLayouts or an integer millisecond epoch.
func ParseTimestamp(raw string, loc *time.Location) (int64, error) {
	if raw == "" {
		return 0, fmt.Errorf("%w: empty timestamp", ErrMalformedTick)
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return ms, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t.UnixMilli(), nil
		}
	}
	return 0, fmt.Errorf("%w: unparsable timestamp %q", ErrMalformedTick, raw)
}

// parseVolume accepts integral contract counts, including "5,0".
func parseVolume(raw string) (int64, error) {
	d, err := decimal.NewFromString(strings.ReplaceAll(raw, ",", "."))
	if err != nil {
		return 0, fmt.Errorf("%w: volume %q", ErrMalformedTick, raw)
	}
	if !d.Equal(d.Truncate(0)) {
		return 0, fmt.Errorf("%w: fractional volume %q", ErrMalformedTick, raw)
	}
	return d.IntPart(), nil
}
