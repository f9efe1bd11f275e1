package mapping

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Entry is one row of the static mapping table: an upstream field, where it
// lands in the canonical Product tree, and how it is coerced/validated.
type Entry struct {
	UpstreamFieldID   string
	UpstreamFieldName string
	CanonicalPath     string
	Type              FieldKind
	Required          bool
	DefaultValue      interface{}
	FallbackFieldID   string

	// Transform overrides the default per-Type coercion when set.
	Transform func(FieldValue) (interface{}, error)
	// Validate runs against the coerced value; a failure is a warning unless
	// the transformer treats this entry's canonical path as core-required,
	// in which case it is an error.
	Validate func(interface{}) error
}

// Table is the ordered set of mapping entries the transformer walks.
type Table []Entry

// Extract looks the entry's field up on the record by primary id, falling
// back to FallbackFieldID when the primary is absent.
func Extract(rec Record, e Entry) (FieldValue, bool) {
	if v, ok := rec.Get(e.UpstreamFieldID); ok && !v.IsNull() {
		return v, true
	}
	if e.FallbackFieldID != "" {
		if v, ok := rec.Get(e.FallbackFieldID); ok && !v.IsNull() {
			return v, true
		}
	}
	return FieldValue{}, false
}

// Coerce converts a raw FieldValue into the Go value its canonical path
// expects, per the per-Type rules in spec.md §4.B:
//   - numbers are rounded to 2 decimals
//   - dates are parsed as absolute instants
//   - single-select extracts the label
//   - multi-select extracts the first element unless the canonical path is a
//     list (callers asking for a slice use CoerceList instead)
//   - attachments extract the list of file tokens
func Coerce(v FieldValue, e Entry) (interface{}, error) {
	if e.Transform != nil {
		return e.Transform(v)
	}

	switch e.Type {
	case KindText, KindURL:
		return strings.TrimSpace(v.String()), nil

	case KindNumber:
		f, err := v.Float()
		if err != nil {
			return nil, err
		}
		return math.Round(f*100) / 100, nil

	case KindDate:
		raw, err := v.DateString()
		if err != nil {
			return nil, err
		}
		return parseInstant(raw)

	case KindSelect:
		return strings.TrimSpace(v.String()), nil

	case KindMultiSelect:
		items, err := v.StringSlice()
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			return "", nil
		}
		return strings.TrimSpace(items[0]), nil

	case KindAttachment:
		refs, err := v.AttachmentRefs()
		if err != nil {
			return nil, err
		}
		tokens := make([]string, 0, len(refs))
		for _, r := range refs {
			tokens = append(tokens, r.Token)
		}
		return tokens, nil

	default:
		return nil, fmt.Errorf("mapping: unknown field type %q", e.Type)
	}
}

// CoerceList is Coerce's list-aware counterpart, used for canonical paths
// that are themselves arrays (multiselect fields mapped onto a list path).
func CoerceList(v FieldValue) ([]string, error) {
	return v.StringSlice()
}

// parseInstant accepts either an RFC3339 timestamp or a millisecond/second
// unix epoch string, matching the two shapes the upstream Bitable API emits
// for date-kind cells.
func parseInstant(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("mapping: empty date value")
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	var ms int64
	if _, err := fmt.Sscanf(raw, "%d", &ms); err == nil {
		if ms > 1_000_000_000_000 {
			return time.UnixMilli(ms).UTC(), nil
		}
		return time.Unix(ms, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("mapping: unrecognized date format %q", raw)
}

// SetPath writes value into tree at the dotted canonical path, creating
// intermediate maps as needed, per spec.md §4.B "nested write via dotted
// path".
func SetPath(tree map[string]interface{}, path string, value interface{}) {
	parts := strings.Split(path, ".")
	node := tree
	for i, p := range parts {
		if i == len(parts)-1 {
			node[p] = value
			return
		}
		next, ok := node[p].(map[string]interface{})
		if !ok {
			next = map[string]interface{}{}
			node[p] = next
		}
		node = next
	}
}

// GetPath reads a value back out of a patch tree built by SetPath.
func GetPath(tree map[string]interface{}, path string) (interface{}, bool) {
	parts := strings.Split(path, ".")
	var node interface{} = tree
	for _, p := range parts {
		m, ok := node.(map[string]interface{})
		if !ok {
			return nil, false
		}
		node, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return node, true
}
