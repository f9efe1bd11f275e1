// Package models holds the canonical persistent shapes described in the
// data model: products, their images, and sync run logs.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ProductStatus is the lifecycle state of a Product row.
type ProductStatus string

const (
	StatusActive   ProductStatus = "active"
	StatusInactive ProductStatus = "inactive"
	StatusDeleted  ProductStatus = "deleted"
)

// DisplaySentinel is used when neither localized variant of a display field
// is present, so display is never empty.
const DisplaySentinel = "Unnamed"

// LocalizedText carries English/Chinese variants plus the computed display
// value (English, falling back to Chinese, falling back to the sentinel).
type LocalizedText struct {
	English *string `json:"english,omitempty" db:"english"`
	Chinese *string `json:"chinese,omitempty" db:"chinese"`
	Display string  `json:"display" db:"display"`
}

// Value implements driver.Valuer so LocalizedText can be stored as JSONB.
func (l LocalizedText) Value() (driver.Value, error) {
	return json.Marshal(l)
}

// Scan implements sql.Scanner for reading a JSONB column back.
func (l *LocalizedText) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("models: LocalizedText.Scan: expected []byte, got %T", value)
	}
	return json.Unmarshal(b, l)
}

// ComputeDisplay fills Display from English, falling back to Chinese, falling
// back to DisplaySentinel. Never leaves Display empty, per the invariant in
// spec.md §3.
func (l *LocalizedText) ComputeDisplay() {
	if l.English != nil && *l.English != "" {
		l.Display = *l.English
		return
	}
	if l.Chinese != nil && *l.Chinese != "" {
		l.Display = *l.Chinese
		return
	}
	l.Display = DisplaySentinel
}

// Category holds the primary/secondary localized category pair.
type Category struct {
	Primary   LocalizedText `json:"primary" db:"primary"`
	Secondary LocalizedText `json:"secondary" db:"secondary"`
}

func (c Category) Value() (driver.Value, error) { return json.Marshal(c) }

func (c *Category) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("models: Category.Scan: expected []byte, got %T", value)
	}
	return json.Unmarshal(b, c)
}

// Price holds normal/discount prices and the derived discount rate.
type Price struct {
	Normal       float64  `json:"normal" db:"normal"`
	Discount     *float64 `json:"discount,omitempty" db:"discount"`
	DiscountRate *float64 `json:"discountRate,omitempty" db:"discount_rate"`
}

func (p Price) Value() (driver.Value, error) { return json.Marshal(p) }

func (p *Price) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("models: Price.Scan: expected []byte, got %T", value)
	}
	return json.Unmarshal(b, p)
}

// Origin holds the localized country/province/city triple.
type Origin struct {
	Country  LocalizedText  `json:"country" db:"country"`
	Province LocalizedText  `json:"province" db:"province"`
	City     *LocalizedText `json:"city,omitempty" db:"city"`
}

func (o Origin) Value() (driver.Value, error) { return json.Marshal(o) }

func (o *Origin) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("models: Origin.Scan: expected []byte, got %T", value)
	}
	return json.Unmarshal(b, o)
}

// ImageType enumerates the five fixed attachment slots a product carries.
type ImageType string

const (
	ImageFront   ImageType = "front"
	ImageBack    ImageType = "back"
	ImageLabel   ImageType = "label"
	ImagePackage ImageType = "package"
	ImageGift    ImageType = "gift"
)

// AllImageTypes is the fixed, ordered set used by both the change detector
// (spec.md §4.D) and the consistency checker (spec.md §4.H).
var AllImageTypes = []ImageType{ImageFront, ImageBack, ImageLabel, ImagePackage, ImageGift}

// ProductImages holds the public URLs for each attachment slot.
type ProductImages struct {
	Front   *string `json:"front,omitempty" db:"front"`
	Back    *string `json:"back,omitempty" db:"back"`
	Label   *string `json:"label,omitempty" db:"label"`
	Package *string `json:"package,omitempty" db:"package"`
	Gift    *string `json:"gift,omitempty" db:"gift"`
}

func (p ProductImages) Value() (driver.Value, error) { return json.Marshal(p) }

func (p *ProductImages) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("models: ProductImages.Scan: expected []byte, got %T", value)
	}
	return json.Unmarshal(b, p)
}

// Get returns the URL for a given image type, or nil if unset.
func (p ProductImages) Get(t ImageType) *string {
	switch t {
	case ImageFront:
		return p.Front
	case ImageBack:
		return p.Back
	case ImageLabel:
		return p.Label
	case ImagePackage:
		return p.Package
	case ImageGift:
		return p.Gift
	default:
		return nil
	}
}

// Set assigns the URL for a given image type.
func (p *ProductImages) Set(t ImageType, url string) {
	switch t {
	case ImageFront:
		p.Front = &url
	case ImageBack:
		p.Back = &url
	case ImageLabel:
		p.Label = &url
	case ImagePackage:
		p.Package = &url
	case ImageGift:
		p.Gift = &url
	}
}

// Product is the canonical persistent product record, as described in
// spec.md §3.
type Product struct {
	ProductID string `json:"productId" db:"product_id"`

	Name     LocalizedText `json:"name" db:"name"`
	Category Category      `json:"category" db:"category"`
	Price    Price         `json:"price" db:"price"`
	Origin   Origin        `json:"origin" db:"origin"`

	Platform      LocalizedText `json:"platform" db:"platform"`
	Specification LocalizedText `json:"specification,omitempty" db:"specification"`
	Flavor        LocalizedText `json:"flavor,omitempty" db:"flavor"`
	Manufacturer  LocalizedText `json:"manufacturer,omitempty" db:"manufacturer"`

	Images ProductImages `json:"images" db:"images"`

	CollectTime time.Time `json:"collectTime" db:"collect_time"`
	Link        *string   `json:"link,omitempty" db:"link"`
	BoxSpec     *string   `json:"boxSpec,omitempty" db:"box_spec"`
	Notes       *string   `json:"notes,omitempty" db:"notes"`
	Barcode     *string   `json:"barcode,omitempty" db:"barcode"`

	SyncTime  time.Time     `json:"syncTime" db:"sync_time"`
	Version   int           `json:"version" db:"version"`
	Status    ProductStatus `json:"status" db:"status"`
	IsVisible bool          `json:"isVisible" db:"is_visible"`

	// FeishuRecordID is the upstream record identifier this product was
	// transformed from (spec.md §4.C step 1). Kept distinct from ProductID
	// because the two may diverge if the mapping ever derives ProductID from
	// something other than the raw record identifier.
	FeishuRecordID string `json:"feishuRecordId" db:"feishu_record_id"`
}

// PriceNormalMax is the upper bound on price.normal per the §3 invariant.
const PriceNormalMax = 999999.99

// BarcodePattern documents the expected shape of Product.Barcode (8-13 digits).
const BarcodePattern = `^[0-9]{8,13}$`

// LinkPattern documents the expected shape of Product.Link.
const LinkPattern = `^https?://`
