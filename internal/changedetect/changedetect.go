// Package changedetect deep-compares a freshly transformed product against
// the stored version over the fixed field set from spec.md §4.D.
package changedetect

import (
	"strings"
	"time"

	"github.com/maukemana/sync-engine/internal/models"
)

// ChangeType classifies one field-level difference.
type ChangeType string

const (
	Added    ChangeType = "added"
	Removed  ChangeType = "removed"
	Modified ChangeType = "modified"
)

// ChangeDetail is one entry in a diff result.
type ChangeDetail struct {
	Path       string
	OldValue   interface{}
	NewValue   interface{}
	ChangeType ChangeType
}

// Result is the outcome of DetectChanges.
type Result struct {
	HasChanges    bool
	ChangedFields []string
	ChangeDetails []ChangeDetail
}

// DetectChanges compares newP against oldP over the fixed comparison set:
// name, category.primary, category.secondary, price.normal, price.discount,
// platform, specification, flavor, manufacturer, origin.country/province/city,
// collectTime, and images.{front,back,label,package,gift}.
//
// hasChanges is also true when newP.CollectTime is strictly after
// oldP.CollectTime even with no field difference; an older-or-equal collect
// time never forces a change by itself.
func DetectChanges(newP, oldP *models.Product) Result {
	var r Result

	diffLocalized := func(path string, n, o models.LocalizedText) {
		diffStringPtr(&r, path+".english", n.English, o.English)
		diffStringPtr(&r, path+".chinese", n.Chinese, o.Chinese)
	}

	diffLocalized("name", newP.Name, oldP.Name)
	diffLocalized("category.primary", newP.Category.Primary, oldP.Category.Primary)
	diffLocalized("category.secondary", newP.Category.Secondary, oldP.Category.Secondary)

	diffFloat(&r, "price.normal", newP.Price.Normal, oldP.Price.Normal)
	diffFloatPtr(&r, "price.discount", newP.Price.Discount, oldP.Price.Discount)

	diffLocalized("platform", newP.Platform, oldP.Platform)
	diffLocalized("specification", newP.Specification, oldP.Specification)
	diffLocalized("flavor", newP.Flavor, oldP.Flavor)
	diffLocalized("manufacturer", newP.Manufacturer, oldP.Manufacturer)

	diffLocalized("origin.country", newP.Origin.Country, oldP.Origin.Country)
	diffLocalized("origin.province", newP.Origin.Province, oldP.Origin.Province)
	diffOptionalLocalized(&r, "origin.city", newP.Origin.City, oldP.Origin.City)

	diffTime(&r, "collectTime", newP.CollectTime, oldP.CollectTime)

	for _, t := range models.AllImageTypes {
		path := "images." + string(t)
		diffStringPtr(&r, path, newP.Images.Get(t), oldP.Images.Get(t))
	}

	r.HasChanges = len(r.ChangeDetails) > 0 || newP.CollectTime.After(oldP.CollectTime)

	return r
}

func record(r *Result, path string, oldV, newV interface{}, ct ChangeType) {
	r.ChangedFields = append(r.ChangedFields, path)
	r.ChangeDetails = append(r.ChangeDetails, ChangeDetail{
		Path:       path,
		OldValue:   oldV,
		NewValue:   newV,
		ChangeType: ct,
	})
}

func diffStringPtr(r *Result, path string, n, o *string) {
	nv := trimmedOrEmpty(n)
	ov := trimmedOrEmpty(o)
	switch {
	case o == nil && n != nil:
		record(r, path, nil, nv, Added)
	case n == nil && o != nil:
		record(r, path, ov, nil, Removed)
	case nv != ov:
		record(r, path, ov, nv, Modified)
	}
}

func trimmedOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

func diffFloat(r *Result, path string, n, o float64) {
	if n != o {
		record(r, path, o, n, Modified)
	}
}

func diffFloatPtr(r *Result, path string, n, o *float64) {
	switch {
	case o == nil && n != nil:
		record(r, path, nil, *n, Added)
	case n == nil && o != nil:
		record(r, path, *o, nil, Removed)
	case n != nil && o != nil && *n != *o:
		record(r, path, *o, *n, Modified)
	}
}

func diffTime(r *Result, path string, n, o time.Time) {
	if !n.Equal(o) {
		record(r, path, o, n, Modified)
	}
}

func diffOptionalLocalized(r *Result, path string, n, o *models.LocalizedText) {
	switch {
	case o == nil && n != nil:
		record(r, path, nil, localizedSnapshot(n), Added)
	case n == nil && o != nil:
		record(r, path, localizedSnapshot(o), nil, Removed)
	case n != nil && o != nil:
		diffStringPtr(r, path+".english", n.English, o.English)
		diffStringPtr(r, path+".chinese", n.Chinese, o.Chinese)
	}
}

func localizedSnapshot(l *models.LocalizedText) map[string]string {
	if l == nil {
		return nil
	}
	return map[string]string{
		"english": trimmedOrEmpty(l.English),
		"chinese": trimmedOrEmpty(l.Chinese),
	}
}
