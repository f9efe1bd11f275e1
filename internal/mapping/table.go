package mapping

import (
	"fmt"
	"regexp"

	"github.com/maukemana/sync-engine/internal/models"
)

var barcodeRe = regexp.MustCompile(models.BarcodePattern)
var linkRe = regexp.MustCompile(models.LinkPattern)

func validatePrice(v interface{}) error {
	f, ok := v.(float64)
	if !ok {
		return fmt.Errorf("price must be numeric")
	}
	if f < 0 || f > models.PriceNormalMax {
		return fmt.Errorf("price out of range [0, %v]", models.PriceNormalMax)
	}
	return nil
}

func validateBarcode(v interface{}) error {
	s, _ := v.(string)
	if s == "" {
		return nil
	}
	if !barcodeRe.MatchString(s) {
		return fmt.Errorf("barcode %q does not match %s", s, models.BarcodePattern)
	}
	return nil
}

func validateLink(v interface{}) error {
	s, _ := v.(string)
	if s == "" {
		return nil
	}
	if !linkRe.MatchString(s) {
		return fmt.Errorf("link %q does not match %s", s, models.LinkPattern)
	}
	return nil
}

// ProductTable is the static upstream-field-to-canonical-path mapping table
// for the product record, per spec.md §4.B and the §3 data model. Field ids
// are the upstream Bitable field identifiers; names are kept alongside for
// error messages and admin display.
var ProductTable = Table{
	{UpstreamFieldID: "fld_name_en", UpstreamFieldName: "Name (EN)", CanonicalPath: "name.english", Type: KindText, FallbackFieldID: "fld_title_en"},
	{UpstreamFieldID: "fld_name_cn", UpstreamFieldName: "Name (CN)", CanonicalPath: "name.chinese", Type: KindText},

	{UpstreamFieldID: "fld_category_primary_en", UpstreamFieldName: "Category (EN)", CanonicalPath: "category.primary.english", Type: KindSelect},
	{UpstreamFieldID: "fld_category_primary_cn", UpstreamFieldName: "Category (CN)", CanonicalPath: "category.primary.chinese", Type: KindSelect},
	{UpstreamFieldID: "fld_category_secondary_en", UpstreamFieldName: "Subcategory (EN)", CanonicalPath: "category.secondary.english", Type: KindSelect},
	{UpstreamFieldID: "fld_category_secondary_cn", UpstreamFieldName: "Subcategory (CN)", CanonicalPath: "category.secondary.chinese", Type: KindSelect},

	{UpstreamFieldID: "fld_price_normal", UpstreamFieldName: "Price", CanonicalPath: "price.normal", Type: KindNumber, Required: true, Validate: validatePrice},
	{UpstreamFieldID: "fld_price_discount", UpstreamFieldName: "Discount Price", CanonicalPath: "price.discount", Type: KindNumber, Validate: validatePrice},

	{UpstreamFieldID: "fld_origin_country_en", UpstreamFieldName: "Country (EN)", CanonicalPath: "origin.country.english", Type: KindText},
	{UpstreamFieldID: "fld_origin_country_cn", UpstreamFieldName: "Country (CN)", CanonicalPath: "origin.country.chinese", Type: KindText},
	{UpstreamFieldID: "fld_origin_province_en", UpstreamFieldName: "Province (EN)", CanonicalPath: "origin.province.english", Type: KindText},
	{UpstreamFieldID: "fld_origin_province_cn", UpstreamFieldName: "Province (CN)", CanonicalPath: "origin.province.chinese", Type: KindText},
	{UpstreamFieldID: "fld_origin_city_en", UpstreamFieldName: "City (EN)", CanonicalPath: "origin.city.english", Type: KindText},
	{UpstreamFieldID: "fld_origin_city_cn", UpstreamFieldName: "City (CN)", CanonicalPath: "origin.city.chinese", Type: KindText},

	{UpstreamFieldID: "fld_platform_en", UpstreamFieldName: "Platform (EN)", CanonicalPath: "platform.english", Type: KindSelect},
	{UpstreamFieldID: "fld_platform_cn", UpstreamFieldName: "Platform (CN)", CanonicalPath: "platform.chinese", Type: KindSelect},

	{UpstreamFieldID: "fld_specification_en", UpstreamFieldName: "Specification (EN)", CanonicalPath: "specification.english", Type: KindText},
	{UpstreamFieldID: "fld_specification_cn", UpstreamFieldName: "Specification (CN)", CanonicalPath: "specification.chinese", Type: KindText},

	{UpstreamFieldID: "fld_flavor_en", UpstreamFieldName: "Flavor (EN)", CanonicalPath: "flavor.english", Type: KindText},
	{UpstreamFieldID: "fld_flavor_cn", UpstreamFieldName: "Flavor (CN)", CanonicalPath: "flavor.chinese", Type: KindText},

	{UpstreamFieldID: "fld_manufacturer_en", UpstreamFieldName: "Manufacturer (EN)", CanonicalPath: "manufacturer.english", Type: KindText},
	{UpstreamFieldID: "fld_manufacturer_cn", UpstreamFieldName: "Manufacturer (CN)", CanonicalPath: "manufacturer.chinese", Type: KindText},

	{UpstreamFieldID: "fld_collect_time", UpstreamFieldName: "Collected At", CanonicalPath: "collectTime", Type: KindDate, Required: true},
	{UpstreamFieldID: "fld_link", UpstreamFieldName: "Product Link", CanonicalPath: "link", Type: KindURL, Validate: validateLink},
	{UpstreamFieldID: "fld_box_spec", UpstreamFieldName: "Box Spec", CanonicalPath: "boxSpec", Type: KindText},
	{UpstreamFieldID: "fld_notes", UpstreamFieldName: "Notes", CanonicalPath: "notes", Type: KindText},
	{UpstreamFieldID: "fld_barcode", UpstreamFieldName: "Barcode", CanonicalPath: "barcode", Type: KindText, Validate: validateBarcode},

	{UpstreamFieldID: "fld_image_front", UpstreamFieldName: "Image: Front", CanonicalPath: "images.front", Type: KindAttachment},
	{UpstreamFieldID: "fld_image_back", UpstreamFieldName: "Image: Back", CanonicalPath: "images.back", Type: KindAttachment},
	{UpstreamFieldID: "fld_image_label", UpstreamFieldName: "Image: Label", CanonicalPath: "images.label", Type: KindAttachment},
	{UpstreamFieldID: "fld_image_package", UpstreamFieldName: "Image: Package", CanonicalPath: "images.package", Type: KindAttachment},
	{UpstreamFieldID: "fld_image_gift", UpstreamFieldName: "Image: Gift", CanonicalPath: "images.gift", Type: KindAttachment},
}

// ImageFieldPaths maps each canonical image-attachment path to the product
// image slot it feeds, used by the transformer to pull attachment tokens
// back out of the patch tree for the orchestrator's download step.
var ImageFieldPaths = map[string]models.ImageType{
	"images.front":   models.ImageFront,
	"images.back":    models.ImageBack,
	"images.label":   models.ImageLabel,
	"images.package": models.ImagePackage,
	"images.gift":    models.ImageGift,
}
