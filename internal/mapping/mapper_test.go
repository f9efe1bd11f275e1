package mapping

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract_FallsBackToSecondaryFieldID(t *testing.T) {
	entry := Entry{UpstreamFieldID: "fld_primary", FallbackFieldID: "fld_fallback", Type: KindText}

	rec := Record{Fields: map[string]FieldValue{
		"fld_fallback": Text("fallback value"),
	}}

	v, ok := Extract(rec, entry)
	require.True(t, ok)
	assert.Equal(t, "fallback value", v.String())
}

func TestExtract_PrimaryWinsOverFallback(t *testing.T) {
	entry := Entry{UpstreamFieldID: "fld_primary", FallbackFieldID: "fld_fallback", Type: KindText}

	rec := Record{Fields: map[string]FieldValue{
		"fld_primary":  Text("primary value"),
		"fld_fallback": Text("fallback value"),
	}}

	v, ok := Extract(rec, entry)
	require.True(t, ok)
	assert.Equal(t, "primary value", v.String())
}

func TestExtract_MissingReturnsNotFound(t *testing.T) {
	entry := Entry{UpstreamFieldID: "fld_missing", Type: KindText}
	_, ok := Extract(Record{Fields: map[string]FieldValue{}}, entry)
	assert.False(t, ok)
}

func TestCoerce_NumberRoundsToTwoDecimals(t *testing.T) {
	entry := Entry{Type: KindNumber}
	got, err := Coerce(Number(1.23456), entry)
	require.NoError(t, err)
	assert.Equal(t, 1.23, got)
}

func TestCoerce_DateParsesRFC3339(t *testing.T) {
	entry := Entry{Type: KindDate}
	got, err := Coerce(DateRaw("2026-01-02T03:04:05Z"), entry)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), got)
}

func TestCoerce_DateParsesEpochMillis(t *testing.T) {
	entry := Entry{Type: KindDate}
	got, err := Coerce(DateRaw("1735689600000"), entry)
	require.NoError(t, err)
	assert.Equal(t, time.UnixMilli(1735689600000).UTC(), got)
}

func TestCoerce_DateRejectsGarbage(t *testing.T) {
	entry := Entry{Type: KindDate}
	_, err := Coerce(DateRaw("not-a-date"), entry)
	assert.Error(t, err)
}

func TestCoerce_SelectTrimsWhitespace(t *testing.T) {
	entry := Entry{Type: KindSelect}
	got, err := Coerce(Select("  Snacks  "), entry)
	require.NoError(t, err)
	assert.Equal(t, "Snacks", got)
}

func TestCoerce_AttachmentExtractsTokens(t *testing.T) {
	entry := Entry{Type: KindAttachment}
	got, err := Coerce(Attachment([]AttachmentRef{{Token: "a"}, {Token: "b"}}), entry)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestCoerce_TransformOverridesDefaultCoercion(t *testing.T) {
	entry := Entry{Transform: func(v FieldValue) (interface{}, error) {
		return "always this", nil
	}}
	got, err := Coerce(Number(42), entry)
	require.NoError(t, err)
	assert.Equal(t, "always this", got)
}

func TestSetPathAndGetPath_NestedWrite(t *testing.T) {
	tree := map[string]interface{}{}
	SetPath(tree, "name.english", "Hello")
	SetPath(tree, "name.chinese", "你好")

	v, ok := GetPath(tree, "name.english")
	require.True(t, ok)
	assert.Equal(t, "Hello", v)

	v, ok = GetPath(tree, "name.chinese")
	require.True(t, ok)
	assert.Equal(t, "你好", v)

	_, ok = GetPath(tree, "name.missing")
	assert.False(t, ok)

	_, ok = GetPath(tree, "nope.nested")
	assert.False(t, ok)
}
