package transform

import (
	"time"

	"github.com/maukemana/sync-engine/internal/mapping"
	"github.com/maukemana/sync-engine/internal/models"
)

// applyPatch copies values out of a mapper-built patch tree into the typed
// Product struct. The patch tree only ever contains the canonical paths
// declared in mapping.ProductTable, so the set of cases below is exhaustive
// against that table, not a general-purpose decoder.
func applyPatch(p *models.Product, patch map[string]interface{}) {
	setText := func(path string, dst **string) {
		if v, ok := mapping.GetPath(patch, path); ok {
			if s, ok := v.(string); ok && s != "" {
				*dst = &s
			}
		}
	}
	setLocalized := func(prefix string, dst *models.LocalizedText) {
		setText(prefix+".english", &dst.English)
		setText(prefix+".chinese", &dst.Chinese)
	}

	setLocalized("name", &p.Name)
	setLocalized("category.primary", &p.Category.Primary)
	setLocalized("category.secondary", &p.Category.Secondary)
	setLocalized("origin.country", &p.Origin.Country)
	setLocalized("origin.province", &p.Origin.Province)
	if _, hasCity := mapping.GetPath(patch, "origin.city.english"); hasCity {
		p.Origin.City = &models.LocalizedText{}
		setText("origin.city.english", &p.Origin.City.English)
		setText("origin.city.chinese", &p.Origin.City.Chinese)
	} else if _, hasCity := mapping.GetPath(patch, "origin.city.chinese"); hasCity {
		p.Origin.City = &models.LocalizedText{}
		setText("origin.city.chinese", &p.Origin.City.Chinese)
	}
	setLocalized("platform", &p.Platform)
	setLocalized("specification", &p.Specification)
	setLocalized("flavor", &p.Flavor)
	setLocalized("manufacturer", &p.Manufacturer)

	if v, ok := mapping.GetPath(patch, "price.normal"); ok {
		if f, ok := v.(float64); ok {
			p.Price.Normal = f
		}
	}
	if v, ok := mapping.GetPath(patch, "price.discount"); ok {
		if f, ok := v.(float64); ok {
			p.Price.Discount = &f
		}
	}

	if v, ok := mapping.GetPath(patch, "collectTime"); ok {
		if t, ok := v.(time.Time); ok {
			p.CollectTime = t
		}
	}
	setText("link", &p.Link)
	setText("boxSpec", &p.BoxSpec)
	setText("notes", &p.Notes)
	setText("barcode", &p.Barcode)
}
