package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ThumbnailSize is one of the three fixed derivative sizes spec.md 4.E
// generates for every uploaded image.
type ThumbnailSize string

const (
	ThumbSmall  ThumbnailSize = "small"
	ThumbMedium ThumbnailSize = "medium"
	ThumbLarge  ThumbnailSize = "large"
)

// Thumbnail is one entry in an Image's ordered thumbnail list.
type Thumbnail struct {
	Size   ThumbnailSize `json:"size"`
	URL    string        `json:"url"`
	Width  int           `json:"width"`
	Height int           `json:"height"`
}

// ThumbnailList is the ordered small/medium/large set, stored as JSONB.
type ThumbnailList []Thumbnail

func (t ThumbnailList) Value() (driver.Value, error) { return json.Marshal(t) }

func (t *ThumbnailList) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("models: ThumbnailList.Scan: expected []byte, got %T", value)
	}
	return json.Unmarshal(b, t)
}

// ImageMetadata carries the upstream attachment token used to re-fetch the
// original bytes during repair, when known.
type ImageMetadata struct {
	SourceToken *string `json:"sourceToken,omitempty"`
}

func (m ImageMetadata) Value() (driver.Value, error) { return json.Marshal(m) }

func (m *ImageMetadata) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("models: ImageMetadata.Scan: expected []byte, got %T", value)
	}
	return json.Unmarshal(b, m)
}

// Image is a content-addressed image record, one per (productId, type,
// md5Hash) tuple, per spec.md §3.
type Image struct {
	ImageID   string    `json:"imageId" db:"image_id"`
	ProductID string    `json:"productId" db:"product_id"`
	Type      ImageType `json:"type" db:"type"`

	BucketName   string `json:"bucketName" db:"bucket_name"`
	ObjectName   string `json:"objectName" db:"object_name"`
	OriginalName string `json:"originalName" db:"original_name"`
	FileSize     int64  `json:"fileSize" db:"file_size"`
	MimeType     string `json:"mimeType" db:"mime_type"`
	Width        int    `json:"width" db:"width"`
	Height       int    `json:"height" db:"height"`
	PublicURL    string `json:"publicUrl" db:"public_url"`

	MD5Hash    string `json:"md5Hash" db:"md5_hash"`
	SHA256Hash string `json:"sha256Hash" db:"sha256_hash"`

	Thumbnails ThumbnailList `json:"thumbnails" db:"thumbnails"`
	Metadata   ImageMetadata `json:"metadata" db:"metadata"`

	IsActive bool `json:"isActive" db:"is_active"`

	AccessCount    int64      `json:"accessCount" db:"access_count"`
	LastAccessedAt *time.Time `json:"lastAccessedAt,omitempty" db:"last_accessed_at"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// ObjectName builds the canonical originals path for a product/type/extension
// triple, per spec.md §4.E step 4 and §6 "Object store layout".
func ObjectName(productID string, t ImageType, ext string) string {
	return "products/" + productID + "/" + string(t) + "_0" + ext
}

// ThumbnailObjectName builds the canonical thumbnail path for a given size.
func ThumbnailObjectName(size ThumbnailSize, baseName string) string {
	return "thumbnails/" + string(size) + "/" + baseName + ".webp"
}
