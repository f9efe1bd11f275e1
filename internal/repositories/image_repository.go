package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/maukemana/sync-engine/internal/database"
	"github.com/maukemana/sync-engine/internal/models"
)

// ImageRepository persists Image rows.
type ImageRepository struct {
	db *database.DB
}

func NewImageRepository(db *database.DB) *ImageRepository {
	return &ImageRepository{db: db}
}

const imageColumns = `image_id, product_id, type, bucket_name, object_name, original_name,
	file_size, mime_type, width, height, public_url, md5_hash, sha256_hash,
	thumbnails, metadata, is_active, access_count, last_accessed_at, created_at`

// FindActiveByHash looks up the dedupe key (productId, type, md5Hash) from
// spec.md §3/§4.E: identical bytes uploaded twice reuse the existing row.
func (r *ImageRepository) FindActiveByHash(ctx context.Context, productID string, t models.ImageType, md5Hash string) (*models.Image, error) {
	const q = `SELECT ` + imageColumns + ` FROM images
		WHERE product_id = $1 AND type = $2 AND md5_hash = $3 AND is_active = true`
	return r.queryOne(ctx, q, productID, t, md5Hash)
}

// FindActiveByToken looks up an active row by its upstream source token for
// a (productId, type) pair, per spec.md §4.E downloadFromFeishu.
func (r *ImageRepository) FindActiveByToken(ctx context.Context, productID string, t models.ImageType, fileToken string) (*models.Image, error) {
	const q = `SELECT ` + imageColumns + ` FROM images
		WHERE product_id = $1 AND type = $2 AND is_active = true AND metadata->>'sourceToken' = $3`
	return r.queryOne(ctx, q, productID, t, fileToken)
}

// FindByID returns one image row by id.
func (r *ImageRepository) FindByID(ctx context.Context, imageID string) (*models.Image, error) {
	const q = `SELECT ` + imageColumns + ` FROM images WHERE image_id = $1`
	return r.queryOne(ctx, q, imageID)
}

// ListActive returns every active image row, used by repairBrokenImages and
// the consistency checker.
func (r *ImageRepository) ListActive(ctx context.Context) ([]*models.Image, error) {
	const q = `SELECT ` + imageColumns + ` FROM images WHERE is_active = true ORDER BY image_id`
	rows, err := r.db.QueryxContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("repositories: list active images: %w", err)
	}
	defer rows.Close()

	var out []*models.Image
	for rows.Next() {
		var img models.Image
		if err := rows.StructScan(&img); err != nil {
			return nil, fmt.Errorf("repositories: scan image: %w", err)
		}
		out = append(out, &img)
	}
	return out, rows.Err()
}

// Create inserts a new Image row. The (productId, type, md5Hash) uniqueness
// constraint is enforced by the schema; per spec.md §5, a conflicting
// insert here is treated as "use existing", not an error — callers are
// expected to check FindActiveByHash first, same as the teacher's upload
// flow checks before writing.
func (r *ImageRepository) Create(ctx context.Context, img *models.Image) (*models.Image, error) {
	if img.ImageID == "" {
		img.ImageID = uuid.NewString()
	}
	if img.CreatedAt.IsZero() {
		img.CreatedAt = time.Now().UTC()
	}

	const q = `INSERT INTO images (` + imageColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
		ON CONFLICT (product_id, type, md5_hash) WHERE is_active DO NOTHING
		RETURNING ` + imageColumns

	row := r.db.QueryRowxContext(ctx, q,
		img.ImageID, img.ProductID, img.Type, img.BucketName, img.ObjectName, img.OriginalName,
		img.FileSize, img.MimeType, img.Width, img.Height, img.PublicURL, img.MD5Hash, img.SHA256Hash,
		img.Thumbnails, img.Metadata, img.IsActive, img.AccessCount, img.LastAccessedAt, img.CreatedAt,
	)

	var out models.Image
	if err := row.StructScan(&out); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			existing, ferr := r.FindActiveByHash(ctx, img.ProductID, img.Type, img.MD5Hash)
			if ferr != nil {
				return nil, ferr
			}
			if existing != nil {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("repositories: create image for %s/%s: %w", img.ProductID, img.Type, err)
	}
	return &out, nil
}

// IncrementAccess bumps accessCount and stamps lastAccessedAt, per spec.md
// §4.E getImageProxy.
func (r *ImageRepository) IncrementAccess(ctx context.Context, imageID string) error {
	const q = `UPDATE images SET access_count = access_count + 1, last_accessed_at = now() WHERE image_id = $1`
	_, err := r.db.ExecContext(ctx, q, imageID)
	if err != nil {
		return fmt.Errorf("repositories: increment access for %s: %w", imageID, err)
	}
	return nil
}

// SoftDelete marks an image row inactive, per the Image lifecycle in
// spec.md §3.
func (r *ImageRepository) SoftDelete(ctx context.Context, imageID string) error {
	const q = `UPDATE images SET is_active = false WHERE image_id = $1`
	_, err := r.db.ExecContext(ctx, q, imageID)
	if err != nil {
		return fmt.Errorf("repositories: soft delete image %s: %w", imageID, err)
	}
	return nil
}

// HardDeleteInactiveOlderThan physically removes inactive rows past the
// retention cutoff — the "cleanup pass" named but unspecified in spec.md §3,
// resolved in SPEC_FULL.md.
func (r *ImageRepository) HardDeleteInactiveOlderThan(ctx context.Context, cutoff time.Time) ([]*models.Image, error) {
	const selectQ = `SELECT ` + imageColumns + ` FROM images WHERE is_active = false AND created_at < $1`
	rows, err := r.db.QueryxContext(ctx, selectQ, cutoff)
	if err != nil {
		return nil, fmt.Errorf("repositories: select cleanup candidates: %w", err)
	}
	var victims []*models.Image
	for rows.Next() {
		var img models.Image
		if err := rows.StructScan(&img); err != nil {
			rows.Close()
			return nil, fmt.Errorf("repositories: scan cleanup candidate: %w", err)
		}
		victims = append(victims, &img)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(victims) == 0 {
		return nil, nil
	}

	const deleteQ = `DELETE FROM images WHERE is_active = false AND created_at < $1`
	if _, err := r.db.ExecContext(ctx, deleteQ, cutoff); err != nil {
		return nil, fmt.Errorf("repositories: cleanup delete: %w", err)
	}
	return victims, nil
}

func (r *ImageRepository) queryOne(ctx context.Context, q string, args ...interface{}) (*models.Image, error) {
	var out models.Image
	err := r.db.QueryRowxContext(ctx, q, args...).StructScan(&out)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repositories: query image: %w", err)
	}
	return &out, nil
}
