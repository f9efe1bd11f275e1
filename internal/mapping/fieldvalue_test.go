package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldValue_NullIsNullForEveryAccessor(t *testing.T) {
	v := Null()
	assert.True(t, v.IsNull())
	assert.Equal(t, FieldKind(""), v.Kind())
	assert.Equal(t, "", v.String())
}

func TestFieldValue_FloatRejectsNonNumberKind(t *testing.T) {
	_, err := Text("hi").Float()
	assert.Error(t, err)
}

func TestFieldValue_StringSlice_SelectWrapsAsSingleton(t *testing.T) {
	got, err := Select("only").StringSlice()
	require.NoError(t, err)
	assert.Equal(t, []string{"only"}, got)
}

func TestFieldValue_StringSlice_MultiSelectPassesThrough(t *testing.T) {
	got, err := MultiSelect([]string{"a", "b"}).StringSlice()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestFieldValue_StringSlice_RejectsScalarKinds(t *testing.T) {
	_, err := Number(1).StringSlice()
	assert.Error(t, err)
}

func TestFieldValue_String_MultiSelectReturnsFirstElement(t *testing.T) {
	v := MultiSelect([]string{"first", "second"})
	assert.Equal(t, "first", v.String())
}

func TestFieldValue_String_EmptyMultiSelectIsEmptyString(t *testing.T) {
	v := MultiSelect(nil)
	assert.Equal(t, "", v.String())
}

func TestFieldValue_AttachmentRefs_RejectsNonAttachmentKind(t *testing.T) {
	_, err := Text("x").AttachmentRefs()
	assert.Error(t, err)
}

func TestRecord_Get(t *testing.T) {
	rec := Record{Fields: map[string]FieldValue{"f1": Text("v1")}}

	v, ok := rec.Get("f1")
	require.True(t, ok)
	assert.Equal(t, "v1", v.String())

	_, ok = rec.Get("missing")
	assert.False(t, ok)
}
