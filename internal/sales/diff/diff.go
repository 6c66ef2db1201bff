// Package diff computes field-level differences between two records of the same shape.
//
// Records are normalised through their JSON encoding, so a field is addressed by its JSON name
// and nested fields by dotted paths ("fields.company"). Objects compare regardless of key order;
// arrays compare element by element, in order.
package diff

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// Field selects one path to compare. Label is a human readable name for the path.
type Field struct {
	Path  string `json:"path"`
	Label string `json:"label"`
}

// Difference is one field whose values differ. A missing path yields a nil value.
type Difference struct {
	Field string `json:"field"`
	Label string `json:"label"`
	Left  any    `json:"left"`
	Right any    `json:"right"`
}

// Compare returns the differences between left and right restricted to fields, in field order.
func Compare(fields []Field, left, right any) ([]Difference, error) {
	l, err := normalize(left)
	if err != nil {
		return nil, fmt.Errorf("diff: left: %w", err)
	}
	r, err := normalize(right)
	if err != nil {
		return nil, fmt.Errorf("diff: right: %w", err)
	}

	var out []Difference
	for _, f := range fields {
		lv := lookup(l, f.Path)
		rv := lookup(r, f.Path)
		if reflect.DeepEqual(lv, rv) {
			continue
		}
		label := f.Label
		if label == "" {
			label = f.Path
		}
		out = append(out, Difference{Field: f.Path, Label: label, Left: lv, Right: rv})
	}
	return out, nil
}

// Equal reports whether left and right agree on every field.
func Equal(fields []Field, left, right any) (bool, error) {
	diffs, err := Compare(fields, left, right)
	if err != nil {
		return false, err
	}
	return len(diffs) == 0, nil
}

// normalize converts a record to generic JSON values: map[string]any, []any, string, float64,
// bool or nil. Numbers are decoded as json.Number so decimals keep their exact text.
func normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

func lookup(v any, path string) any {
	if path == "" {
		return v
	}
	cur := v
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = obj[part]
		if !ok {
			return nil
		}
	}
	return cur
}
