// Package mapping declares the static upstream-field-to-canonical-path
// mapping table and the coercion/extraction logic the transformer drives.
package mapping

import "fmt"

// FieldKind is the upstream field's declared shape, per the mapping table.
type FieldKind string

const (
	KindText        FieldKind = "text"
	KindNumber      FieldKind = "number"
	KindDate        FieldKind = "date"
	KindSelect      FieldKind = "select"
	KindMultiSelect FieldKind = "multiselect"
	KindAttachment  FieldKind = "attachment"
	KindURL         FieldKind = "url"
)

// AttachmentRef is one file reference inside an attachment-kind field.
type AttachmentRef struct {
	Token string
	URL   string
}

// FieldValue is the tagged value variant spec.md §9 calls for in place of a
// loose key->value map of mixed types: upstream records carry fields whose
// runtime shape depends on their declared kind, and the mapper pattern
// matches on it rather than type-asserting a bare interface{}.
type FieldValue struct {
	kind FieldKind

	text        string
	number      float64
	date        string // raw upstream date representation, parsed by Coerce
	sel         string
	multiSel    []string
	attachments []AttachmentRef
	isNull      bool
}

func Null() FieldValue                 { return FieldValue{isNull: true} }
func Text(v string) FieldValue         { return FieldValue{kind: KindText, text: v} }
func Number(v float64) FieldValue      { return FieldValue{kind: KindNumber, number: v} }
func DateRaw(v string) FieldValue      { return FieldValue{kind: KindDate, date: v} }
func Select(v string) FieldValue       { return FieldValue{kind: KindSelect, sel: v} }
func MultiSelect(v []string) FieldValue {
	return FieldValue{kind: KindMultiSelect, multiSel: v}
}
func Attachment(v []AttachmentRef) FieldValue {
	return FieldValue{kind: KindAttachment, attachments: v}
}
func URL(v string) FieldValue { return FieldValue{kind: KindURL, text: v} }

func (v FieldValue) IsNull() bool { return v.isNull }
func (v FieldValue) Kind() FieldKind {
	if v.isNull {
		return ""
	}
	return v.kind
}

func (v FieldValue) String() string {
	switch {
	case v.isNull:
		return ""
	case v.kind == KindText || v.kind == KindURL:
		return v.text
	case v.kind == KindSelect:
		return v.sel
	case v.kind == KindMultiSelect:
		if len(v.multiSel) > 0 {
			return v.multiSel[0]
		}
		return ""
	default:
		return ""
	}
}

func (v FieldValue) Float() (float64, error) {
	if v.kind != KindNumber {
		return 0, fmt.Errorf("mapping: value is not a number (kind=%s)", v.kind)
	}
	return v.number, nil
}

func (v FieldValue) DateString() (string, error) {
	if v.kind != KindDate {
		return "", fmt.Errorf("mapping: value is not a date (kind=%s)", v.kind)
	}
	return v.date, nil
}

func (v FieldValue) StringSlice() ([]string, error) {
	switch v.kind {
	case KindMultiSelect:
		return v.multiSel, nil
	case KindSelect:
		return []string{v.sel}, nil
	default:
		return nil, fmt.Errorf("mapping: value has no list form (kind=%s)", v.kind)
	}
}

func (v FieldValue) AttachmentRefs() ([]AttachmentRef, error) {
	if v.kind != KindAttachment {
		return nil, fmt.Errorf("mapping: value is not an attachment (kind=%s)", v.kind)
	}
	return v.attachments, nil
}

// Record is one raw upstream row: a field-id-keyed bag of FieldValue plus the
// upstream record identifier the transformer copies into feishuRecordId.
type Record struct {
	RecordID string
	Fields   map[string]FieldValue
}

func (r Record) Get(fieldID string) (FieldValue, bool) {
	v, ok := r.Fields[fieldID]
	return v, ok
}
