package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func strp(s string) *string { return &s }

func TestLocalizedText_ComputeDisplay_PrefersEnglish(t *testing.T) {
	l := LocalizedText{English: strp("Noodles"), Chinese: strp("面条")}
	l.ComputeDisplay()
	assert.Equal(t, "Noodles", l.Display)
}

func TestLocalizedText_ComputeDisplay_FallsBackToChinese(t *testing.T) {
	l := LocalizedText{Chinese: strp("面条")}
	l.ComputeDisplay()
	assert.Equal(t, "面条", l.Display)
}

func TestLocalizedText_ComputeDisplay_FallsBackToSentinel(t *testing.T) {
	l := LocalizedText{}
	l.ComputeDisplay()
	assert.Equal(t, DisplaySentinel, l.Display)
}

func TestLocalizedText_ComputeDisplay_EmptyStringTreatedAsAbsent(t *testing.T) {
	empty := ""
	l := LocalizedText{English: &empty, Chinese: strp("面条")}
	l.ComputeDisplay()
	assert.Equal(t, "面条", l.Display)
}

func TestProductImages_GetSet_RoundTripsEveryType(t *testing.T) {
	var imgs ProductImages
	for _, typ := range AllImageTypes {
		imgs.Set(typ, "https://cdn/"+string(typ)+".webp")
	}
	for _, typ := range AllImageTypes {
		got := imgs.Get(typ)
		if assert.NotNil(t, got, "type %s", typ) {
			assert.Equal(t, "https://cdn/"+string(typ)+".webp", *got)
		}
	}
}

func TestProductImages_Get_UnsetSlotIsNil(t *testing.T) {
	var imgs ProductImages
	assert.Nil(t, imgs.Get(ImageFront))
}
