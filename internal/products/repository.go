package products

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/canopyhq/canopy-backend/pkg/db/models"
	dbtypes "github.com/canopyhq/canopy-backend/pkg/db/types"
	"github.com/canopyhq/canopy-backend/pkg/enums"
)

// Repository persists catalog products.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// FindForVendor loads a product owned by the vendor. Foreign products are
// reported as gorm.ErrRecordNotFound.
func (r *Repository) FindForVendor(ctx context.Context, vendorID, productID uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).
		Where("id = ? AND vendor_id = ?", productID, vendorID).
		First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// FindManyForVendor loads the given products keyed by id.
func (r *Repository) FindManyForVendor(ctx context.Context, vendorID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	out := make(map[uuid.UUID]models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Product
	if err := r.db.WithContext(ctx).
		Where("vendor_id = ? AND id IN ?", vendorID, ids).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, p := range rows {
		out[p.ID] = p
	}
	return out, nil
}

// FindBySKU matches a vendor product on its own SKU.
func (r *Repository) FindBySKU(ctx context.Context, vendorID uuid.UUID, sku string) (*models.Product, error) {
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var product models.Product
	if err := r.db.WithContext(ctx).
		Where("vendor_id = ? AND sku = ?", vendorID, sku).
		First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *Repository) Create(ctx context.Context, product *models.Product) error {
	return r.db.WithContext(ctx).Create(product).Error
}

// ApplyPricing writes a tier snapshot onto the product. Only the pricing
// columns are touched.
func (r *Repository) ApplyPricing(ctx context.Context, productID uuid.UUID, blueprintID uuid.UUID, tiers []models.PricingTier) error {
	res := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", productID).
		Updates(map[string]any{
			"pricing_mode":         enums.PricingModeTiered,
			"pricing_blueprint_id": blueprintID,
			"pricing_tiers":        dbtypes.JSONList[models.PricingTier](tiers),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DetachBlueprint clears the blueprint link on products that used it. Their
// snapshot tiers are left alone.
func (r *Repository) DetachBlueprint(ctx context.Context, blueprintID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("pricing_blueprint_id = ?", blueprintID).
		Update("pricing_blueprint_id", nil)
	return res.RowsAffected, res.Error
}

// IsNotFound reports whether err is a missing-row error from this repository.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
