package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/maukemana/sync-engine/internal/database"
	"github.com/maukemana/sync-engine/internal/models"
)

// ErrVersionConflict is returned by ProductRepository.Upsert when the
// expected version no longer matches the stored row — the Postgres
// equivalent of findOneAndUpdate returning no document, per the Open
// Question resolution in SPEC_FULL.md.
var ErrVersionConflict = errors.New("repositories: product version conflict")

// ProductRepository persists Product rows.
type ProductRepository struct {
	db *database.DB
}

func NewProductRepository(db *database.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

const productColumns = `product_id, name, category, price, origin, platform, specification,
	flavor, manufacturer, images, collect_time, link, box_spec, notes, barcode,
	sync_time, version, status, is_visible, feishu_record_id`

// Upsert performs the atomic create-or-update write described in spec.md
// §4.F: a brand new productId is inserted at version 1; an existing row is
// only updated when expectedVersion matches the row currently stored,
// otherwise ErrVersionConflict is returned, which the orchestrator records
// as a per-record store error without retrying. expectedVersion is ignored
// (no-op) for a fresh insert.
func (r *ProductRepository) Upsert(ctx context.Context, p *models.Product, expectedVersion int) (*models.Product, error) {
	const q = `
INSERT INTO products (` + productColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,1,$17,$18,$19)
ON CONFLICT (product_id) DO UPDATE SET
	name = EXCLUDED.name,
	category = EXCLUDED.category,
	price = EXCLUDED.price,
	origin = EXCLUDED.origin,
	platform = EXCLUDED.platform,
	specification = EXCLUDED.specification,
	flavor = EXCLUDED.flavor,
	manufacturer = EXCLUDED.manufacturer,
	images = EXCLUDED.images,
	collect_time = EXCLUDED.collect_time,
	link = EXCLUDED.link,
	box_spec = EXCLUDED.box_spec,
	notes = EXCLUDED.notes,
	barcode = EXCLUDED.barcode,
	sync_time = EXCLUDED.sync_time,
	version = products.version + 1,
	status = EXCLUDED.status,
	is_visible = EXCLUDED.is_visible,
	feishu_record_id = EXCLUDED.feishu_record_id
WHERE products.version = $20
RETURNING ` + productColumns

	row := r.db.QueryRowxContext(ctx, q,
		p.ProductID, p.Name, p.Category, p.Price, p.Origin, p.Platform, p.Specification,
		p.Flavor, p.Manufacturer, p.Images, p.CollectTime, p.Link, p.BoxSpec, p.Notes, p.Barcode,
		p.SyncTime, p.Status, p.IsVisible, p.FeishuRecordID, expectedVersion,
	)

	var out models.Product
	if err := row.StructScan(&out); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrVersionConflict
		}
		return nil, fmt.Errorf("repositories: upsert product %s: %w", p.ProductID, err)
	}
	return &out, nil
}

// FindByID returns the product with the given id, or (nil, nil) if absent.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (*models.Product, error) {
	const q = `SELECT ` + productColumns + ` FROM products WHERE product_id = $1`
	var out models.Product
	err := r.db.QueryRowxContext(ctx, q, productID).StructScan(&out)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repositories: find product %s: %w", productID, err)
	}
	return &out, nil
}

// FindAll returns every non-inactive product, used by the consistency
// checker's full-scope scan.
func (r *ProductRepository) FindAll(ctx context.Context) ([]*models.Product, error) {
	const q = `SELECT ` + productColumns + ` FROM products WHERE status != $1 ORDER BY product_id`
	rows, err := r.db.QueryxContext(ctx, q, models.StatusInactive)
	if err != nil {
		return nil, fmt.Errorf("repositories: find all products: %w", err)
	}
	defer rows.Close()

	var out []*models.Product
	for rows.Next() {
		var p models.Product
		if err := rows.StructScan(&p); err != nil {
			return nil, fmt.Errorf("repositories: scan product: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// FindDuplicates groups active rows that share a barcode, for consistency
// repair's duplicate_products pass. productId is the table's primary key, so
// two rows can only describe the same physical item by sharing a barcode —
// which happens when the same upstream record is re-synced under a
// different productId after an upstream key change.
func (r *ProductRepository) FindDuplicates(ctx context.Context) (map[string][]*models.Product, error) {
	products, err := r.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	groups := map[string][]*models.Product{}
	for _, p := range products {
		if p.Barcode == nil || *p.Barcode == "" {
			continue
		}
		groups[*p.Barcode] = append(groups[*p.Barcode], p)
	}
	for barcode, g := range groups {
		if len(g) < 2 {
			delete(groups, barcode)
		}
	}
	return groups, nil
}

// SoftDelete marks a product inactive without removing its row, per the
// Product lifecycle in spec.md §3 ("never physically removed by sync").
func (r *ProductRepository) SoftDelete(ctx context.Context, productID string) error {
	const q = `UPDATE products SET status = $1, sync_time = now() WHERE product_id = $2`
	_, err := r.db.ExecContext(ctx, q, models.StatusInactive, productID)
	if err != nil {
		return fmt.Errorf("repositories: soft delete product %s: %w", productID, err)
	}
	return nil
}

// ClampPrice is used by consistency repair's invalid_data pass to clamp an
// illegal price.normal to its nearest legal value.
func (r *ProductRepository) ClampPrice(ctx context.Context, productID string, normal float64) error {
	const q = `UPDATE products SET price = jsonb_set(price, '{normal}', to_jsonb($1::float8)) WHERE product_id = $2`
	_, err := r.db.ExecContext(ctx, q, normal, productID)
	if err != nil {
		return fmt.Errorf("repositories: clamp price for %s: %w", productID, err)
	}
	return nil
}
