// Package transform applies the field-mapping table to a raw upstream
// record and produces a canonical Product, per spec.md §4.C.
package transform

import (
	"fmt"
	"time"

	"github.com/maukemana/sync-engine/internal/mapping"
	"github.com/maukemana/sync-engine/internal/models"
)

// Result is the outcome of transformRecord: either a usable Product plus
// any non-fatal warnings, or a failed transform with structured errors.
type Result struct {
	OK       bool
	Product  *models.Product
	// ImageTokens holds the upstream attachment tokens extracted for each
	// image slot. The orchestrator passes them to the image service's batch
	// download, which stores each image as its own Image record with a
	// public URL; Product.Images is not filled from those records.
	ImageTokens map[models.ImageType][]string
	Errors      []string
	Warnings    []string
}

// BatchResult is the outcome of batchTransform.
type BatchResult struct {
	Successful    []*Result
	Failed        []FailedRecord
	TotalErrors   int
	TotalWarnings int
}

// FailedRecord pairs a raw record with the errors that sank its transform.
type FailedRecord struct {
	Raw    mapping.Record
	Errors []string
}

// Now is overridable in tests so transformRecord's syncTime stamping is
// deterministic.
var Now = func() time.Time { return time.Now().UTC() }

// TransformRecord runs the mapping table over one raw record and returns a
// Result, per spec.md §4.C steps 1-6.
func TransformRecord(raw mapping.Record, table mapping.Table) *Result {
	res := &Result{
		ImageTokens: map[models.ImageType][]string{},
	}

	product := &models.Product{
		ProductID:      raw.RecordID,
		FeishuRecordID: raw.RecordID,
	}

	patch := map[string]interface{}{}

	for _, entry := range table {
		value, found := mapping.Extract(raw, entry)

		if entry.Type == mapping.KindAttachment {
			if !found {
				continue
			}
			refs, err := value.AttachmentRefs()
			if err != nil {
				res.Warnings = append(res.Warnings, fmt.Sprintf("%s: %v", entry.UpstreamFieldName, err))
				continue
			}
			imgType, ok := mapping.ImageFieldPaths[entry.CanonicalPath]
			if !ok {
				continue
			}
			tokens := make([]string, 0, len(refs))
			for _, r := range refs {
				tokens = append(tokens, r.Token)
			}
			res.ImageTokens[imgType] = tokens
			continue
		}

		if !found {
			if entry.DefaultValue != nil {
				mapping.SetPath(patch, entry.CanonicalPath, entry.DefaultValue)
				continue
			}
			if entry.Required {
				msg := fmt.Sprintf("%s (%s) is required but missing", entry.UpstreamFieldName, entry.CanonicalPath)
				if isCoreRequired(entry.CanonicalPath) {
					res.Errors = append(res.Errors, msg)
				} else {
					res.Warnings = append(res.Warnings, msg)
				}
			}
			continue
		}

		coerced, err := mapping.Coerce(value, entry)
		if err != nil {
			if entry.DefaultValue != nil {
				mapping.SetPath(patch, entry.CanonicalPath, entry.DefaultValue)
			}
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s: %v", entry.UpstreamFieldName, err))
			continue
		}

		if entry.Validate != nil {
			if err := entry.Validate(coerced); err != nil {
				msg := fmt.Sprintf("%s: %v", entry.UpstreamFieldName, err)
				if isCoreRequired(entry.CanonicalPath) {
					res.Errors = append(res.Errors, msg)
				} else {
					res.Warnings = append(res.Warnings, msg)
				}
				continue
			}
		}

		mapping.SetPath(patch, entry.CanonicalPath, coerced)
	}

	applyPatch(product, patch)

	product.SyncTime = Now()
	product.Version = 1
	product.Status = models.StatusActive
	product.IsVisible = true

	if product.Price.Discount != nil && product.Price.Normal > 0 {
		rate := 1 - *product.Price.Discount/product.Price.Normal
		rate = clamp(rate, 0, 1)
		product.Price.DiscountRate = &rate
	}

	product.Name.ComputeDisplay()
	product.Category.Primary.ComputeDisplay()
	product.Category.Secondary.ComputeDisplay()
	product.Origin.Country.ComputeDisplay()
	product.Origin.Province.ComputeDisplay()
	if product.Origin.City != nil {
		product.Origin.City.ComputeDisplay()
	}
	product.Platform.ComputeDisplay()
	product.Specification.ComputeDisplay()
	product.Flavor.ComputeDisplay()
	product.Manufacturer.ComputeDisplay()

	if product.Name.English == nil && product.Name.Chinese == nil {
		res.Errors = append(res.Errors, "name (english or chinese) is required but missing")
	}

	res.Product = product
	res.OK = len(res.Errors) == 0
	return res
}

// BatchTransform applies TransformRecord to every raw record, per spec.md
// §4.C "batchTransform".
func BatchTransform(raws []mapping.Record, table mapping.Table) *BatchResult {
	out := &BatchResult{}
	for _, raw := range raws {
		res := TransformRecord(raw, table)
		out.TotalErrors += len(res.Errors)
		out.TotalWarnings += len(res.Warnings)
		if res.OK {
			out.Successful = append(out.Successful, res)
		} else {
			out.Failed = append(out.Failed, FailedRecord{Raw: raw, Errors: res.Errors})
		}
	}
	return out
}

// isCoreRequired reports whether a canonical path is in the core-required
// set (spec.md §4.C step 6: "at minimum name.display"). internal/consistency
// does not use this set; its data-integrity check looks only at productId
// and name.display.
func isCoreRequired(path string) bool {
	switch path {
	case "name.english", "name.chinese", "price.normal", "collectTime":
		return true
	default:
		return false
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
