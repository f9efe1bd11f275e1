// Package consistency cross-checks persisted product rows against image
// object existence and field invariants, and offers a dry-run repair pass,
// per spec.md §4.H.
package consistency

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/maukemana/sync-engine/internal/imagesync"
	"github.com/maukemana/sync-engine/internal/models"
	"github.com/maukemana/sync-engine/internal/objectstore"
	"github.com/maukemana/sync-engine/internal/repositories"
)

// CheckType enumerates the validate() check families.
type CheckType string

const (
	CheckDataIntegrity   CheckType = "data_integrity"
	CheckImageExistence  CheckType = "image_existence"
	CheckFieldValidation CheckType = "field_validation"
)

// Scope enumerates validate()'s product selection.
type Scope string

const (
	ScopeAll       Scope = "all"
	ScopeRecent    Scope = "recent"
	ScopeSelective Scope = "selective"
)

// Severity classifies one issue found by validate().
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
)

// Issue is one finding from validate().
type Issue struct {
	Type          string
	Severity      Severity
	ProductID     string
	Field         string
	Message       string
	SuggestedFix  string
}

// Summary totals a validate() run.
type Summary struct {
	TotalChecked  int
	IssuesFound   int
	CriticalIssues int
	Warnings      int
}

// ValidateOptions is the validate() request, per spec.md §4.H.
type ValidateOptions struct {
	Scope      Scope
	ProductIDs []string
	Checks     []CheckType
}

// ValidateResult is the validate() response.
type ValidateResult struct {
	ValidationID string
	Summary      Summary
	Issues       []Issue
}

// Checker runs validate()/repair() against the product and image stores.
type Checker struct {
	products *repositories.ProductRepository
	images   *repositories.ImageRepository
	store    objectstore.ObjectStore
	imageSvc *imagesync.Service
}

func New(products *repositories.ProductRepository, images *repositories.ImageRepository, store objectstore.ObjectStore, imageSvc *imagesync.Service) *Checker {
	return &Checker{products: products, images: images, store: store, imageSvc: imageSvc}
}

func hasCheck(checks []CheckType, want CheckType) bool {
	if len(checks) == 0 {
		return true
	}
	for _, c := range checks {
		if c == want {
			return true
		}
	}
	return false
}

// Validate implements spec.md §4.H validate.
func (c *Checker) Validate(ctx context.Context, opts ValidateOptions) (*ValidateResult, error) {
	products, err := c.selectProducts(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("consistency: select products: %w", err)
	}

	result := &ValidateResult{ValidationID: uuid.NewString()}

	for _, p := range products {
		result.Summary.TotalChecked++

		if hasCheck(opts.Checks, CheckDataIntegrity) {
			if p.ProductID == "" {
				c.addIssue(result, Issue{Type: "missing_product_id", Severity: SeverityCritical, ProductID: p.ProductID, Message: "product has no productId"})
			}
			if p.Name.Display == "" {
				c.addIssue(result, Issue{Type: "missing_display_name", Severity: SeverityCritical, ProductID: p.ProductID, Field: "name.display", Message: "product has no display name"})
			}
		}

		if hasCheck(opts.Checks, CheckFieldValidation) {
			if p.Price.Normal < 0 {
				c.addIssue(result, Issue{
					Type: "invalid_price", Severity: SeverityWarning, ProductID: p.ProductID, Field: "price.normal",
					Message: fmt.Sprintf("price.normal %.2f is negative", p.Price.Normal), SuggestedFix: "clamp to 0",
				})
			}
			if p.Price.Normal > models.PriceNormalMax {
				c.addIssue(result, Issue{
					Type: "invalid_price", Severity: SeverityWarning, ProductID: p.ProductID, Field: "price.normal",
					Message: fmt.Sprintf("price.normal %.2f exceeds %.2f", p.Price.Normal, models.PriceNormalMax),
					SuggestedFix: fmt.Sprintf("clamp to %.2f", models.PriceNormalMax),
				})
			}
		}

	}

	if hasCheck(opts.Checks, CheckImageExistence) {
		images, err := c.images.ListActive(ctx)
		if err != nil {
			return nil, fmt.Errorf("consistency: list active images: %w", err)
		}
		inScope := map[string]struct{}{}
		for _, p := range products {
			inScope[p.ProductID] = struct{}{}
		}
		for _, img := range images {
			if _, ok := inScope[img.ProductID]; !ok {
				continue
			}
			integrity, err := c.imageSvc.ValidateImageIntegrity(ctx, img.ObjectName)
			if err != nil || !integrity.Accessible {
				msg := fmt.Sprintf("object %s does not exist", img.ObjectName)
				if integrity != nil && integrity.Exists {
					msg = fmt.Sprintf("object %s exists but failed decode: %s", img.ObjectName, integrity.Error)
				}
				c.addIssue(result, Issue{
					Type: "missing_image", Severity: SeverityCritical, ProductID: img.ProductID, Field: string(img.Type),
					Message: msg, SuggestedFix: "re-download from source token",
				})
			}
		}
	}

	return result, nil
}

func (c *Checker) addIssue(r *ValidateResult, issue Issue) {
	r.Issues = append(r.Issues, issue)
	r.Summary.IssuesFound++
	if issue.Severity == SeverityCritical {
		r.Summary.CriticalIssues++
	} else {
		r.Summary.Warnings++
	}
}

func (c *Checker) selectProducts(ctx context.Context, opts ValidateOptions) ([]*models.Product, error) {
	all, err := c.products.FindAll(ctx)
	if err != nil {
		return nil, err
	}

	switch opts.Scope {
	case ScopeSelective:
		wanted := map[string]struct{}{}
		for _, id := range opts.ProductIDs {
			wanted[id] = struct{}{}
		}
		var out []*models.Product
		for _, p := range all {
			if _, ok := wanted[p.ProductID]; ok {
				out = append(out, p)
			}
		}
		return out, nil
	case ScopeRecent:
		cutoff := time.Now().UTC().Add(-24 * time.Hour)
		var out []*models.Product
		for _, p := range all {
			if p.SyncTime.After(cutoff) {
				out = append(out, p)
			}
		}
		return out, nil
	default:
		return all, nil
	}
}

// IssueType enumerates the repair() issueTypes.
type IssueType string

const (
	IssueMissingImage      IssueType = "missing_image"
	IssueInvalidData       IssueType = "invalid_data"
	IssueDuplicateProducts IssueType = "duplicate_products"
)

// RepairOptions is the repair() request, per spec.md §4.H.
type RepairOptions struct {
	RepairID   string
	IssueTypes []IssueType
	ProductIDs []string
	DryRun     bool
}

// RepairItemResult is one entry in repair()'s results list.
type RepairItemResult struct {
	ProductID string
	IssueType IssueType
	Status    string
	Message   string
}

// RepairSummary totals a repair() run.
type RepairSummary struct {
	TotalIssues    int
	RepairedIssues int
	FailedRepairs  int
}

// RepairResult is the repair() response.
type RepairResult struct {
	Summary RepairSummary
	Results []RepairItemResult
}

func wantsIssue(types []IssueType, want IssueType) bool {
	if len(types) == 0 {
		return true
	}
	for _, t := range types {
		if t == want {
			return true
		}
	}
	return false
}

// Repair implements spec.md §4.H repair.
func (c *Checker) Repair(ctx context.Context, opts RepairOptions) (*RepairResult, error) {
	result := &RepairResult{}

	if wantsIssue(opts.IssueTypes, IssueMissingImage) {
		summary, err := c.imageSvc.RepairBrokenImages(ctx)
		if err != nil {
			return nil, fmt.Errorf("consistency: repair missing images: %w", err)
		}
		result.Summary.TotalIssues += summary.Total
		result.Summary.RepairedIssues += summary.Repaired
		result.Summary.FailedRepairs += summary.Failed
		for _, e := range summary.Errors {
			result.Results = append(result.Results, RepairItemResult{IssueType: IssueMissingImage, Status: "failed", Message: e})
		}
		if summary.Repaired > 0 {
			result.Results = append(result.Results, RepairItemResult{IssueType: IssueMissingImage, Status: "repaired", Message: fmt.Sprintf("%d image(s) repaired", summary.Repaired)})
		}
	}

	if wantsIssue(opts.IssueTypes, IssueInvalidData) {
		products, err := c.selectProducts(ctx, ValidateOptions{Scope: scopeOf(opts.ProductIDs), ProductIDs: opts.ProductIDs})
		if err != nil {
			return nil, fmt.Errorf("consistency: select products for invalid_data repair: %w", err)
		}
		for _, p := range products {
			clamped := clamp(p.Price.Normal, 0, models.PriceNormalMax)
			if clamped == p.Price.Normal {
				continue
			}
			result.Summary.TotalIssues++
			if opts.DryRun {
				result.Summary.RepairedIssues++
				result.Results = append(result.Results, RepairItemResult{
					ProductID: p.ProductID, IssueType: IssueInvalidData, Status: "would_repair",
					Message: fmt.Sprintf("price.normal %.2f would be clamped to %.2f", p.Price.Normal, clamped),
				})
				continue
			}
			if err := c.products.ClampPrice(ctx, p.ProductID, clamped); err != nil {
				result.Summary.FailedRepairs++
				result.Results = append(result.Results, RepairItemResult{ProductID: p.ProductID, IssueType: IssueInvalidData, Status: "failed", Message: err.Error()})
				continue
			}
			result.Summary.RepairedIssues++
			result.Results = append(result.Results, RepairItemResult{ProductID: p.ProductID, IssueType: IssueInvalidData, Status: "repaired", Message: fmt.Sprintf("price.normal clamped to %.2f", clamped)})
		}
	}

	if wantsIssue(opts.IssueTypes, IssueDuplicateProducts) {
		groups, err := c.products.FindDuplicates(ctx)
		if err != nil {
			return nil, fmt.Errorf("consistency: find duplicate products: %w", err)
		}
		for _, dupes := range groups {
			newest := dupes[0]
			for _, d := range dupes[1:] {
				if d.SyncTime.After(newest.SyncTime) {
					newest = d
				}
			}
			for _, d := range dupes {
				if d == newest {
					continue
				}
				result.Summary.TotalIssues++
				if opts.DryRun {
					result.Summary.RepairedIssues++
					result.Results = append(result.Results, RepairItemResult{ProductID: d.ProductID, IssueType: IssueDuplicateProducts, Status: "would_repair", Message: "older duplicate would be soft-deleted"})
					continue
				}
				if err := c.products.SoftDelete(ctx, d.ProductID); err != nil {
					result.Summary.FailedRepairs++
					result.Results = append(result.Results, RepairItemResult{ProductID: d.ProductID, IssueType: IssueDuplicateProducts, Status: "failed", Message: err.Error()})
					continue
				}
				result.Summary.RepairedIssues++
				result.Results = append(result.Results, RepairItemResult{ProductID: d.ProductID, IssueType: IssueDuplicateProducts, Status: "repaired", Message: "older duplicate soft-deleted"})
			}
		}
	}

	return result, nil
}

func scopeOf(productIDs []string) Scope {
	if len(productIDs) > 0 {
		return ScopeSelective
	}
	return ScopeAll
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
