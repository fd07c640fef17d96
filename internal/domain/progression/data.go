package progression

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Data is an open key/value bag. It carries both the performance bounds
// supplied by a category owner and the data submitted with a task.
type Data map[string]any

// Clone returns a shallow copy. A nil Data clones to an empty map.
func (d Data) Clone() Data {
	out := make(Data, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Merge returns a copy of d overlaid with other. Keys in other win.
func (d Data) Merge(other Data) Data {
	out := d.Clone()
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Float reads a numeric value. Numbers decoded from JSON, native ints and
// numeric strings are all accepted.
func (d Data) Float(key string) (float64, bool) {
	v, ok := d[key]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Date reads a civil date. Accepts time.Time, "YYYY-MM-DD" and RFC 3339
// strings. The result is midnight UTC of that date so dates from different
// sources compare by calendar day only.
func (d Data) Date(key string) (time.Time, bool) {
	v, ok := d[key]
	if !ok || v == nil {
		return time.Time{}, false
	}
	var t time.Time
	switch x := v.(type) {
	case time.Time:
		t = x
	case string:
		s := strings.TrimSpace(x)
		parsed, err := time.Parse("2006-01-02", s)
		if err != nil {
			parsed, err = time.Parse(time.RFC3339, s)
			if err != nil {
				return time.Time{}, false
			}
		}
		t = parsed
	default:
		return time.Time{}, false
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
}
