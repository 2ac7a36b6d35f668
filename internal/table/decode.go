package table

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// DecodeRecords parses a JSON array of row objects, as produced by
// Records, back into a Result. Column order follows the first appearance of
// each key, which encoding/json maps cannot preserve. Integral JSON numbers
// become int64, the rest float64.
func DecodeRecords(data []byte) (*Result, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to read records: %w", err)
	}
	if tok == nil {
		return &Result{}, nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return nil, errors.New("records must be a JSON array")
	}

	var names []string
	index := make(map[string]int)
	var rows []map[string]any

	for dec.More() {
		var fields []recordField
		if err := decodeObject(dec, &fields); err != nil {
			return nil, fmt.Errorf("failed to read record %d: %w", len(rows), err)
		}
		row := make(map[string]any, len(fields))
		for _, f := range fields {
			if _, seen := index[f.name]; !seen {
				index[f.name] = len(names)
				names = append(names, f.name)
			}
			row[f.name] = f.value
		}
		rows = append(rows, row)
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("failed to close records array: %w", err)
	}

	matrix := make([][]any, len(rows))
	for i, row := range rows {
		matrix[i] = make([]any, len(names))
		for name, v := range row {
			matrix[i][index[name]] = v
		}
	}
	return FromRows(names, nil, matrix)
}

type recordField struct {
	name  string
	value any
}

func decodeObject(dec *json.Decoder, fields *[]recordField) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errors.New("record must be a JSON object")
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return errors.New("record key must be a string")
		}
		var raw any
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		*fields = append(*fields, recordField{name: key, value: normalizeJSON(raw)})
	}
	_, err = dec.Token()
	return err
}

// NormalizeJSON converts json.Number values decoded with UseNumber.
func NormalizeJSON(v any) any {
	return normalizeJSON(v)
}

func normalizeJSON(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}
