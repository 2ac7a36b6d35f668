package table

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func mustNew(t *testing.T, cols ...Column) *Result {
	t.Helper()
	r, err := New(cols...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return r
}

func TestNewRejectsRaggedColumns(t *testing.T) {
	_, err := New(
		Column{Name: "a", Values: []any{1, 2}},
		Column{Name: "b", Values: []any{1}},
	)
	if !errors.Is(err, ErrRaggedColumns) {
		t.Fatalf("expected ErrRaggedColumns, got %v", err)
	}
}

func TestNewCopiesInput(t *testing.T) {
	values := []any{int64(1), int64(2)}
	r := mustNew(t, Column{Name: "a", Values: values})
	values[0] = int64(99)

	if got := r.Value(0, 0); got != int64(1) {
		t.Errorf("result shares storage with input: got %v", got)
	}

	col, _ := r.Column("a")
	col.Values[1] = "mutated"
	if got := r.Value(1, 0); got != int64(2) {
		t.Errorf("Column exposes backing slice: got %v", got)
	}
}

func TestFromRows(t *testing.T) {
	r, err := FromRows([]string{"date", "ad_sales"}, nil, [][]any{
		{"2025-06-01", 120.5},
		{"2025-06-02", 95.0},
	})
	if err != nil {
		t.Fatalf("FromRows failed: %v", err)
	}
	if r.NumRows() != 2 || r.NumColumns() != 2 {
		t.Fatalf("unexpected shape %dx%d", r.NumRows(), r.NumColumns())
	}
	if !reflect.DeepEqual(r.Row(1), []any{"2025-06-02", 95.0}) {
		t.Errorf("unexpected row: %v", r.Row(1))
	}

	if _, err := FromRows([]string{"a"}, nil, [][]any{{1, 2}}); !errors.Is(err, ErrRaggedColumns) {
		t.Errorf("expected ErrRaggedColumns for wide row, got %v", err)
	}
}

func TestEmpty(t *testing.T) {
	var nilResult *Result
	cases := []struct {
		name string
		r    *Result
		want bool
	}{
		{"nil", nilResult, true},
		{"zero value", &Result{}, true},
		{"columns without rows", mustNew(t, Column{Name: "a"}), true},
		{"one cell", mustNew(t, Column{Name: "a", Values: []any{1}}), false},
	}
	for _, tc := range cases {
		if got := tc.r.Empty(); got != tc.want {
			t.Errorf("%s: Empty() = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestParseDeclaredType(t *testing.T) {
	cases := map[string]ColumnType{
		"":              TypeUnknown,
		"INTEGER":       TypeInteger,
		"boolean":       TypeInteger,
		"REAL":          TypeReal,
		"DECIMAL(10,2)": TypeReal,
		"TEXT":          TypeText,
		"VARCHAR(255)":  TypeText,
		"DATETIME":      TypeTimestamp,
	}
	for decl, want := range cases {
		if got := ParseDeclaredType(decl); got != want {
			t.Errorf("ParseDeclaredType(%q) = %v, want %v", decl, got, want)
		}
	}
}

func TestClassify(t *testing.T) {
	r := mustNew(t,
		Column{Name: "date", Values: []any{"2025-06-01", "2025-06-02"}},
		Column{Name: "item_id", Values: []any{int64(1), int64(2)}},
		Column{Name: "ad_sales", Values: []any{12.5, nil}},
		Column{Name: "message", Values: []any{"ok", "late"}},
		Column{Name: "eligibility_datetime_utc", Values: []any{"2025-06-04 08:50:07", nil}},
		Column{Name: "numeric_text", Values: []any{"1", "2"}},
		Column{Name: "all_null", Values: []any{nil, nil}},
		Column{Name: "flag", Values: []any{true, false}},
		Column{Name: "declared", Type: TypeReal, Values: []any{"n/a", "n/a"}},
		Column{Name: "Update_Date", Type: TypeText, Values: []any{int64(1), int64(2)}},
	)
	c := Classify(r)

	want := map[string]Class{
		"date":                     DateLike,
		"item_id":                  Numeric,
		"ad_sales":                 Numeric,
		"message":                  Categorical,
		"eligibility_datetime_utc": DateLike,
		"numeric_text":             Categorical,
		"all_null":                 Categorical,
		"flag":                     Categorical,
		"declared":                 Numeric,
		"Update_Date":              DateLike,
	}
	for name, class := range want {
		got, ok := c.Of(name)
		if !ok {
			t.Fatalf("column %q missing from classification", name)
		}
		if got != class {
			t.Errorf("%s classified as %v, want %v", name, got, class)
		}
	}
	if c.Len() != r.NumColumns() {
		t.Errorf("classification covers %d columns, want %d", c.Len(), r.NumColumns())
	}
	if got := c.Columns(Numeric); !reflect.DeepEqual(got, []string{"item_id", "ad_sales", "declared"}) {
		t.Errorf("numeric columns out of order: %v", got)
	}
}

func TestClassifyIgnoresRowCount(t *testing.T) {
	one := mustNew(t, Column{Name: "x", Values: []any{1.5}})
	many := mustNew(t, Column{Name: "x", Values: []any{1.5, 2.5, 3.5}})
	a, _ := Classify(one).Of("x")
	b, _ := Classify(many).Of("x")
	if a != b {
		t.Errorf("classification depends on row count: %v vs %v", a, b)
	}
}

func TestCleanDropsUnusableRows(t *testing.T) {
	r := mustNew(t,
		Column{Name: "date", Values: []any{"2025-06-01", "not a date", "2025-06-03", "2025-06-04"}},
		Column{Name: "sales", Type: TypeReal, Values: []any{10.0, 20.0, "oops", " 7 "}},
		Column{Name: "note", Values: []any{"a", "b", "c", "d"}},
	)

	frame, err := Clean(r, []Target{{Column: "date", As: DateLike}, {Column: "sales", As: Numeric}}, "note")
	if err != nil {
		t.Fatalf("Clean failed: %v", err)
	}
	if frame.NumRows() != 2 {
		t.Fatalf("expected 2 rows, got %d", frame.NumRows())
	}
	if !reflect.DeepEqual(frame.Names(), []string{"date", "sales", "note"}) {
		t.Errorf("unexpected columns %v", frame.Names())
	}

	first := frame.Value(0, 0).(time.Time)
	if !first.Equal(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected timestamp %v", first)
	}
	if frame.Value(1, 1) != 7.0 {
		t.Errorf("expected trimmed numeric text to parse, got %v", frame.Value(1, 1))
	}
	if frame.Value(1, 2) != "d" {
		t.Errorf("keep column misaligned: %v", frame.Value(1, 2))
	}
}

func TestCleanDoesNotMutateSource(t *testing.T) {
	r := mustNew(t, Column{Name: "v", Type: TypeReal, Values: []any{"1.5", "bad", int64(3)}})
	before := r.Rows()

	frame, err := Clean(r, []Target{{Column: "v", As: Numeric}})
	if err != nil {
		t.Fatalf("Clean failed: %v", err)
	}
	if !reflect.DeepEqual(r.Rows(), before) {
		t.Errorf("source mutated: %v", r.Rows())
	}
	if frame.NumRows() != 2 || frame.Value(0, 0) != 1.5 || frame.Value(1, 0) != 3.0 {
		t.Errorf("unexpected frame rows %v", frame.Rows())
	}
}

func TestCleanNoRows(t *testing.T) {
	r := mustNew(t, Column{Name: "v", Type: TypeReal, Values: []any{"x", nil, "y"}})
	_, err := Clean(r, []Target{{Column: "v", As: Numeric}})
	if !errors.Is(err, ErrNoRows) {
		t.Fatalf("expected ErrNoRows, got %v", err)
	}
}

func TestCleanRejectsBadTargets(t *testing.T) {
	r := mustNew(t, Column{Name: "v", Values: []any{1}})
	if _, err := Clean(r, nil); err == nil {
		t.Error("expected error for empty targets")
	}
	if _, err := Clean(r, []Target{{Column: "missing", As: Numeric}}); err == nil {
		t.Error("expected error for unknown column")
	}
	if _, err := Clean(r, []Target{{Column: "v", As: Categorical}}); err == nil {
		t.Error("expected error for categorical target")
	}
}

func TestToNumber(t *testing.T) {
	cases := []struct {
		in   any
		want float64
		ok   bool
	}{
		{int64(4), 4, true},
		{12.5, 12.5, true},
		{"3.25", 3.25, true},
		{true, 1, true},
		{nil, 0, false},
		{"abc", 0, false},
		{"", 0, false},
		{"NaN", 0, false},
	}
	for _, tc := range cases {
		got, ok := ToNumber(tc.in)
		if ok != tc.ok || (ok && got != tc.want) {
			t.Errorf("ToNumber(%#v) = %v, %v; want %v, %v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestDecodeRecordsPreservesOrder(t *testing.T) {
	r, err := DecodeRecords([]byte(`[
		{"item_id": 7, "ad_spend": 42.0, "note": "a"},
		{"item_id": 3, "ad_spend": 18.5, "note": null}
	]`))
	if err != nil {
		t.Fatalf("DecodeRecords failed: %v", err)
	}
	if !reflect.DeepEqual(r.Names(), []string{"item_id", "ad_spend", "note"}) {
		t.Errorf("column order lost: %v", r.Names())
	}
	if r.Value(0, 0) != int64(7) {
		t.Errorf("expected int64 item_id, got %T", r.Value(0, 0))
	}
	if r.Value(1, 1) != 18.5 {
		t.Errorf("expected 18.5, got %v", r.Value(1, 1))
	}
	if r.Value(1, 2) != nil {
		t.Errorf("expected nil, got %v", r.Value(1, 2))
	}
}

func TestDecodeRecordsEmpty(t *testing.T) {
	for _, in := range []string{`[]`, `null`} {
		r, err := DecodeRecords([]byte(in))
		if err != nil {
			t.Fatalf("DecodeRecords(%s) failed: %v", in, err)
		}
		if !r.Empty() {
			t.Errorf("DecodeRecords(%s) should be empty", in)
		}
	}
	if _, err := DecodeRecords([]byte(`{"a": 1}`)); err == nil {
		t.Error("expected error for non-array input")
	}
}

func TestFormatValue(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"x", "x"},
		{int64(42), "42"},
		{120.5, "120.5"},
		{95.0, "95"},
		{time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), "2025-06-01"},
		{time.Date(2025, 6, 4, 8, 50, 7, 0, time.UTC), "2025-06-04 08:50:07"},
	}
	for _, tc := range cases {
		if got := FormatValue(tc.in); got != tc.want {
			t.Errorf("FormatValue(%#v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
