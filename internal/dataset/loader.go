package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/ecom-insights/backend/pkg/logger"
)

const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02 15:04:05"
)

// Sink receives the tables a Loader produces.
type Sink interface {
	CreateTable(ctx context.Context, ddl string) error
	InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error)
}

type Loader struct {
	catalog *Catalog
	dir     string
}

func NewLoader(catalog *Catalog, dir string) *Loader {
	return &Loader{catalog: catalog, dir: dir}
}

// LoadAll creates every catalog table and appends the rows of its CSV file.
// It returns the number of rows stored per table.
func (l *Loader) LoadAll(ctx context.Context, sink Sink) (map[string]int64, error) {
	counts := make(map[string]int64, len(l.catalog.Tables))
	for _, t := range l.catalog.Tables {
		if err := sink.CreateTable(ctx, t.DDL()); err != nil {
			return counts, fmt.Errorf("failed to create table %s: %w", t.Name, err)
		}

		f, err := os.Open(filepath.Join(l.dir, t.File))
		if err != nil {
			return counts, fmt.Errorf("failed to open %s: %w", t.File, err)
		}
		columns, rows, err := ReadTable(f, t)
		f.Close()
		if err != nil {
			return counts, fmt.Errorf("failed to read %s: %w", t.File, err)
		}

		n, err := sink.InsertRows(ctx, t.Name, columns, rows)
		if err != nil {
			return counts, fmt.Errorf("failed to load table %s: %w", t.Name, err)
		}
		counts[t.Name] = n
		logger.Info("Table loaded", zap.String("table", t.Name), zap.Int64("rows", n))
	}
	return counts, nil
}

// ReadTable parses CSV data for a catalog table. The header selects and
// orders the columns; every cell is converted to its declared type and
// empty cells become NULL.
func ReadTable(r io.Reader, t Table) ([]string, [][]any, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, fmt.Errorf("missing header row")
		}
		return nil, nil, fmt.Errorf("failed to read CSV headers: %w", err)
	}

	cols := make([]Column, len(header))
	names := make([]string, len(header))
	for i, h := range header {
		name := strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		col, _, ok := t.Column(name)
		if !ok {
			return nil, nil, fmt.Errorf("unknown column %q for table %s", name, t.Name)
		}
		cols[i] = col
		names[i] = name
	}

	var rows [][]any
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("line %d: %w", line, err)
		}
		row := make([]any, len(cols))
		for i, col := range cols {
			v, err := ConvertCell(record[i], col)
			if err != nil {
				return nil, nil, fmt.Errorf("line %d, column %s: %w", line, col.Name, err)
			}
			row[i] = v
		}
		rows = append(rows, row)
	}
	return names, rows, nil
}

// ConvertCell turns one CSV cell into the value stored for col.
func ConvertCell(raw string, col Column) (any, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, nil
	}

	switch strings.ToUpper(col.Type) {
	case "INTEGER":
		f, err := cast.ToFloat64E(s)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q", s)
		}
		return int64(f), nil
	case "REAL":
		f, err := cast.ToFloat64E(s)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", s)
		}
		return f, nil
	case "BOOLEAN":
		b, err := cast.ToBoolE(strings.ToLower(s))
		if err != nil {
			return nil, fmt.Errorf("invalid boolean %q", s)
		}
		if b {
			return int64(1), nil
		}
		return int64(0), nil
	}

	switch col.Format {
	case FormatDate, FormatDateTime:
		t, err := dateparse.ParseIn(s, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q", col.Format, s)
		}
		if col.Format == FormatDate {
			return t.Format(dateLayout), nil
		}
		return t.Format(dateTimeLayout), nil
	}
	return s, nil
}
