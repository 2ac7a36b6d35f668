package table

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/spf13/cast"
)

// ErrNoRows means cleaning left nothing to plot.
var ErrNoRows = errors.New("no usable rows after cleaning")

// Target asks Clean to coerce one column to Numeric (float64) or DateLike
// (time.Time). Other classes are rejected.
type Target struct {
	Column string
	As     Class
}

// Clean builds a working copy holding the target columns, coerced, followed
// by any keep columns carried over untouched. Rows with a missing value in
// any target column are dropped. The source Result is never modified.
func Clean(r *Result, targets []Target, keep ...string) (*Result, error) {
	if len(targets) == 0 {
		return nil, errors.New("clean requires at least one target column")
	}

	coerced := make([][]any, len(targets))
	types := make([]ColumnType, len(targets))
	usable := make([]bool, r.NumRows())
	for i := range usable {
		usable[i] = true
	}

	for t, target := range targets {
		idx := r.Index(target.Column)
		if idx < 0 {
			return nil, fmt.Errorf("unknown column %q", target.Column)
		}
		var coerce func(any) (any, bool)
		switch target.As {
		case Numeric:
			coerce, types[t] = coerceNumber, TypeReal
		case DateLike:
			coerce, types[t] = coerceTime, TypeTimestamp
		default:
			return nil, fmt.Errorf("cannot coerce %q to %s", target.Column, target.As)
		}

		src := r.columns[idx].Values
		coerced[t] = make([]any, len(src))
		for row, v := range src {
			out, ok := coerce(v)
			if !ok {
				usable[row] = false
				continue
			}
			coerced[t][row] = out
		}
	}

	keepIdx := make([]int, 0, len(keep))
	for _, name := range keep {
		idx := r.Index(name)
		if idx < 0 {
			return nil, fmt.Errorf("unknown column %q", name)
		}
		keepIdx = append(keepIdx, idx)
	}

	var rows []int
	for row, ok := range usable {
		if ok {
			rows = append(rows, row)
		}
	}
	if len(rows) == 0 {
		return nil, ErrNoRows
	}

	cols := make([]Column, 0, len(targets)+len(keepIdx))
	for t, target := range targets {
		cols = append(cols, Column{Name: target.Column, Type: types[t], Values: pick(coerced[t], rows)})
	}
	for _, idx := range keepIdx {
		src := r.columns[idx]
		cols = append(cols, Column{Name: src.Name, Type: src.Type, Values: pick(src.Values, rows)})
	}
	return &Result{columns: cols, rows: len(rows)}, nil
}

// ToNumber coerces a single value the way Clean coerces numeric targets.
func ToNumber(v any) (float64, bool) {
	out, ok := coerceNumber(v)
	if !ok {
		return 0, false
	}
	return out.(float64), true
}

// ToTime coerces a single value the way Clean coerces date targets.
func ToTime(v any) (time.Time, bool) {
	out, ok := coerceTime(v)
	if !ok {
		return time.Time{}, false
	}
	return out.(time.Time), true
}

func coerceNumber(v any) (any, bool) {
	switch x := v.(type) {
	case nil, time.Time:
		return nil, false
	case string:
		v = strings.TrimSpace(x)
	case []byte:
		v = strings.TrimSpace(string(x))
	}
	f, err := cast.ToFloat64E(v)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, false
	}
	return f, true
}

func coerceTime(v any) (any, bool) {
	switch x := v.(type) {
	case time.Time:
		if x.IsZero() {
			return nil, false
		}
		return x, true
	case string:
		return parseTime(x)
	case []byte:
		return parseTime(string(x))
	default:
		return nil, false
	}
}

func parseTime(s string) (any, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return nil, false
	}
	return t, true
}

func pick(values []any, rows []int) []any {
	out := make([]any, len(rows))
	for i, row := range rows {
		out[i] = values[row]
	}
	return out
}
