package table

import (
	"encoding/json"
	"strings"
)

// Class is the semantic role a column plays when charting.
type Class int

const (
	Categorical Class = iota
	Numeric
	DateLike
)

func (c Class) String() string {
	switch c {
	case Numeric:
		return "numeric"
	case DateLike:
		return "date"
	default:
		return "categorical"
	}
}

var dateHints = []string{"date", "datetime"}

// Classification assigns a Class to every column, in column order.
type Classification struct {
	names   []string
	classes []Class
}

// Classify inspects declared types and native value types only; numeric
// looking text stays text.
func Classify(r *Result) Classification {
	c := Classification{
		names:   make([]string, r.NumColumns()),
		classes: make([]Class, r.NumColumns()),
	}
	for i := 0; i < r.NumColumns(); i++ {
		col := r.columns[i]
		c.names[i] = col.Name
		switch {
		case isNumericColumn(col):
			c.classes[i] = Numeric
		case HasDateHint(col.Name):
			c.classes[i] = DateLike
		default:
			c.classes[i] = Categorical
		}
	}
	return c
}

// HasDateHint reports whether a column name suggests calendar content.
func HasDateHint(name string) bool {
	lower := strings.ToLower(name)
	for _, hint := range dateHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

func (c Classification) Len() int {
	return len(c.names)
}

// Of returns the class of the named column and whether it exists.
func (c Classification) Of(name string) (Class, bool) {
	for i, n := range c.names {
		if n == name {
			return c.classes[i], true
		}
	}
	return Categorical, false
}

// Columns lists the names in the given class, in column order.
func (c Classification) Columns(class Class) []string {
	var out []string
	for i, cl := range c.classes {
		if cl == class {
			out = append(out, c.names[i])
		}
	}
	return out
}

func (c Classification) Count(class Class) int {
	n := 0
	for _, cl := range c.classes {
		if cl == class {
			n++
		}
	}
	return n
}

func isNumericColumn(col Column) bool {
	switch col.Type {
	case TypeInteger, TypeReal:
		return true
	case TypeText, TypeTimestamp:
		return false
	}
	seen := false
	for _, v := range col.Values {
		if v == nil {
			continue
		}
		if !isNativeNumber(v) {
			return false
		}
		seen = true
	}
	return seen
}

func isNativeNumber(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, json.Number:
		return true
	}
	return false
}
