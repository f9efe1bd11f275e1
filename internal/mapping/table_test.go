package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidatePrice(t *testing.T) {
	tests := []struct {
		name    string
		value   interface{}
		wantErr bool
	}{
		{name: "in range", value: 100.0, wantErr: false},
		{name: "zero is allowed", value: 0.0, wantErr: false},
		{name: "negative rejected", value: -1.0, wantErr: true},
		{name: "over max rejected", value: 1_000_000.0, wantErr: true},
		{name: "non-numeric rejected", value: "ten", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validatePrice(tt.value)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateBarcode(t *testing.T) {
	tests := []struct {
		name    string
		value   interface{}
		wantErr bool
	}{
		{name: "empty is allowed", value: "", wantErr: false},
		{name: "13 digits ok", value: "1234567890123", wantErr: false},
		{name: "8 digits ok", value: "12345678", wantErr: false},
		{name: "too short rejected", value: "1234567", wantErr: true},
		{name: "non-digits rejected", value: "abc12345", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateBarcode(tt.value)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateLink(t *testing.T) {
	tests := []struct {
		name    string
		value   interface{}
		wantErr bool
	}{
		{name: "empty is allowed", value: "", wantErr: false},
		{name: "https ok", value: "https://example.com/p", wantErr: false},
		{name: "http ok", value: "http://example.com/p", wantErr: false},
		{name: "missing scheme rejected", value: "example.com/p", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateLink(tt.value)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestImageFieldPaths_CoversAllImageSlots(t *testing.T) {
	want := []string{"images.front", "images.back", "images.label", "images.package", "images.gift"}
	for _, p := range want {
		_, ok := ImageFieldPaths[p]
		assert.True(t, ok, "missing image field path %q", p)
	}
	assert.Len(t, ImageFieldPaths, len(want))
}
