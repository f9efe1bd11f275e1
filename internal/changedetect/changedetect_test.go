package changedetect

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maukemana/sync-engine/internal/models"
)

func strPtr(s string) *string { return &s }

func baseProduct() *models.Product {
	t := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return &models.Product{
		ProductID:   "p1",
		Name:        models.LocalizedText{English: strPtr("Noodles")},
		Price:       models.Price{Normal: 10},
		CollectTime: t,
	}
}

func TestDetectChanges_Identical_NoChanges(t *testing.T) {
	p := baseProduct()
	q := baseProduct()

	res := DetectChanges(p, q)

	assert.False(t, res.HasChanges)
	assert.Empty(t, res.ChangeDetails)
}

func TestDetectChanges_PriceModified(t *testing.T) {
	newP := baseProduct()
	oldP := baseProduct()
	newP.Price.Normal = 12

	res := DetectChanges(newP, oldP)

	require.True(t, res.HasChanges)
	require.Len(t, res.ChangeDetails, 1)
	assert.Equal(t, "price.normal", res.ChangeDetails[0].Path)
	assert.Equal(t, Modified, res.ChangeDetails[0].ChangeType)
	assert.Equal(t, 10.0, res.ChangeDetails[0].OldValue)
	assert.Equal(t, 12.0, res.ChangeDetails[0].NewValue)
}

func TestDetectChanges_FieldAdded(t *testing.T) {
	newP := baseProduct()
	oldP := baseProduct()
	oldP.Name.English = nil // field absent before, present now -> added

	res := DetectChanges(newP, oldP)

	require.True(t, res.HasChanges)
	assert.Contains(t, res.ChangedFields, "name.english")
	for _, d := range res.ChangeDetails {
		if d.Path == "name.english" {
			assert.Equal(t, Added, d.ChangeType)
		}
	}
}

func TestDetectChanges_NewerCollectTimeForcesChangeEvenWithNoFieldDiff(t *testing.T) {
	oldP := baseProduct()
	newP := baseProduct()
	newP.CollectTime = oldP.CollectTime.Add(time.Hour)

	res := DetectChanges(newP, oldP)

	assert.True(t, res.HasChanges)
	// collectTime itself is recorded as a modified field.
	assert.Contains(t, res.ChangedFields, "collectTime")
}

func TestDetectChanges_OlderOrEqualCollectTimeDoesNotForceChange(t *testing.T) {
	oldP := baseProduct()
	newP := baseProduct()
	// Equal collect time, nothing else differs.
	res := DetectChanges(newP, oldP)
	assert.False(t, res.HasChanges)
}

func TestDetectChanges_OptionalCityAddedThenModified(t *testing.T) {
	oldP := baseProduct()
	newP := baseProduct()
	newP.Origin.City = &models.LocalizedText{English: strPtr("Shanghai")}

	res := DetectChanges(newP, oldP)
	require.True(t, res.HasChanges)
	assert.Contains(t, res.ChangedFields, "origin.city")

	oldP.Origin.City = &models.LocalizedText{English: strPtr("Shanghai")}
	newP.Origin.City = &models.LocalizedText{English: strPtr("Beijing")}
	res = DetectChanges(newP, oldP)
	require.True(t, res.HasChanges)
	assert.Contains(t, res.ChangedFields, "origin.city.english")
}

func TestDetectChanges_ImageURLModified(t *testing.T) {
	newP := baseProduct()
	oldP := baseProduct()
	oldP.Images.Set(models.ImageFront, "https://cdn/old.webp")
	newP.Images.Set(models.ImageFront, "https://cdn/new.webp")

	res := DetectChanges(newP, oldP)

	require.True(t, res.HasChanges)
	assert.Contains(t, res.ChangedFields, "images.front")
}
