package table

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// IsNull reports whether v is a null cell: nil or a float NaN.
func IsNull(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case float64:
		return math.IsNaN(x)
	}
	return false
}

// AsFloat converts numeric cells (and numeric strings) to float64.
func AsFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) {
			return 0, false
		}
		return x, true
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil || math.IsNaN(f) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// AsInt converts integral cells to int64. Floats with a fractional part are
// truncated toward zero.
func AsInt(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case float64:
		return floatToInt(x)
	case string:
		s := strings.TrimSpace(x)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return floatToInt(f)
		}
	}
	return 0, false
}

// floatToInt truncates f, rejecting NaN and anything outside the int64 range.
func floatToInt(f float64) (int64, bool) {
	if math.IsNaN(f) || f >= 1<<63 || f < -(1<<63) {
		return 0, false
	}
	return int64(f), true
}

// AsString renders a cell as text; null renders as "".
func AsString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case float64:
		if math.IsNaN(x) {
			return ""
		}
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	}
	return ""
}

// Key returns a canonical string for grouping and joining. Integral floats
// and ints share a key, and strings are NFC-normalised.
func Key(v any) string {
	switch x := v.(type) {
	case string:
		return norm.NFC.String(x)
	case float64:
		if x == math.Trunc(x) && !math.IsInf(x, 0) && math.Abs(x) < 1<<53 {
			return strconv.FormatInt(int64(x), 10)
		}
	}
	return AsString(v)
}

// Equal compares two cells. Numbers compare by value across int and float,
// strings compare after NFC normalisation, and null equals nothing.
func Equal(a, b any) bool {
	if IsNull(a) || IsNull(b) {
		return false
	}
	if sa, ok := a.(string); ok {
		sb, ok := b.(string)
		return ok && norm.NFC.String(sa) == norm.NFC.String(sb)
	}
	if ba, ok := a.(bool); ok {
		bb, ok := b.(bool)
		return ok && ba == bb
	}
	fa, okA := numeric(a)
	fb, okB := numeric(b)
	return okA && okB && fa == fb
}

func numeric(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	}
	return 0, false
}

// InferColumn types raw text cells the way a dataframe loader would: a column
// whose non-empty cells all parse as integers becomes int64, all numbers
// becomes float64, anything else stays string. Empty cells become null.
func InferColumn(raw []string) []any {
	allInt, allFloat := true, true
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, err := strconv.ParseInt(s, 10, 64); err != nil {
			allInt = false
		}
		if _, err := strconv.ParseFloat(s, 64); err != nil {
			allFloat = false
		}
		if !allInt && !allFloat {
			break
		}
	}

	out := make([]any, len(raw))
	for i, s := range raw {
		t := strings.TrimSpace(s)
		if t == "" {
			continue
		}
		switch {
		case allInt:
			n, _ := strconv.ParseInt(t, 10, 64)
			out[i] = n
		case allFloat:
			f, _ := strconv.ParseFloat(t, 64)
			out[i] = f
		default:
			out[i] = s
		}
	}
	return out
}

// FromRecords builds a typed table from a header and raw text records.
// Short records are padded with empty cells; extra cells are ignored.
func FromRecords(header []string, records [][]string) *Table {
	cols := make([][]string, len(header))
	for c := range header {
		cols[c] = make([]string, len(records))
		for r, rec := range records {
			if c < len(rec) {
				cols[c][r] = rec[c]
			}
		}
	}

	t := New(header...)
	t.rows = make([][]any, len(records))
	for r := range t.rows {
		t.rows[r] = make([]any, len(t.columns))
	}
	filled := make(map[string]bool, len(header))
	for c, name := range header {
		if filled[name] {
			// duplicate header name; the first occurrence wins
			continue
		}
		filled[name] = true
		dst := t.index[name]
		for r, v := range InferColumn(cols[c]) {
			t.rows[r][dst] = v
		}
	}
	return t
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
