package exporter

import (
	"bytes"
	"encoding/json"
	"io"
	"strconv"

	"github.com/cockroachdb/errors"
)

// Item is one decoded JSON object from a list or detail endpoint.
type Item map[string]any

// String returns field as text. Numbers keep their JSON spelling, so a
// datasource id of 7 reads as "7". Missing, null and non-scalar values
// return def.
func (it Item) String(field, def string) string {
	v, ok := it[field]
	if !ok {
		return def
	}
	if s, ok := scalarString(v); ok {
		return s
	}
	return def
}

// Path walks nested objects along keys and returns the scalar at the end,
// or def if any step is missing or not an object.
func (it Item) Path(def string, keys ...string) string {
	if len(keys) == 0 {
		return def
	}
	cur := map[string]any(it)
	for _, key := range keys[:len(keys)-1] {
		next, ok := cur[key].(map[string]any)
		if !ok {
			return def
		}
		cur = next
	}
	return Item(cur).String(keys[len(keys)-1], def)
}

func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	default:
		return "", false
	}
}

// decodeJSON parses a whole body, keeping numbers as json.Number so ids and
// thresholds survive re-encoding unchanged.
func decodeJSON(body []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if err := dec.Decode(new(json.RawMessage)); err != io.EOF {
		return nil, errors.New("unexpected data after top-level JSON value")
	}
	return v, nil
}

// encodeJSON renders v with 4-space indentation and a trailing newline.
// Map keys come out sorted, which keeps snapshots diff-friendly.
func encodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
