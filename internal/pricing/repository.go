package pricing

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/canopyhq/canopy-backend/pkg/db/models"
	"github.com/canopyhq/canopy-backend/pkg/enums"
)

// ListFilter narrows blueprint listings.
type ListFilter struct {
	TierType   *enums.TierType
	Category   string
	ActiveOnly bool
	// VendorID and GlobalOnly only apply to admin listings.
	VendorID   *uuid.UUID
	GlobalOnly bool
}

// Repository persists pricing blueprints.
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

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.PricingBlueprint, error) {
	var bp models.PricingBlueprint
	if err := r.db.WithContext(ctx).First(&bp, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &bp, nil
}

func (r *Repository) Create(ctx context.Context, bp *models.PricingBlueprint) error {
	return r.db.WithContext(ctx).Create(bp).Error
}

// Save rewrites every column of an existing blueprint.
func (r *Repository) Save(ctx context.Context, bp *models.PricingBlueprint) error {
	return r.db.WithContext(ctx).Save(bp).Error
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&models.PricingBlueprint{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SlugTaken reports whether another blueprint in the same owner scope uses slug.
func (r *Repository) SlugTaken(ctx context.Context, vendorID *uuid.UUID, slug string, excludeID uuid.UUID) (bool, error) {
	var count int64
	q := scopeOwner(r.db.WithContext(ctx).Model(&models.PricingBlueprint{}), vendorID).
		Where("slug = ?", slug)
	if excludeID != uuid.Nil {
		q = q.Where("id <> ?", excludeID)
	}
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ClearDefault unsets is_default on every blueprint in the owner scope except keepID.
func (r *Repository) ClearDefault(ctx context.Context, vendorID *uuid.UUID, keepID uuid.UUID) error {
	q := scopeOwner(r.db.WithContext(ctx).Model(&models.PricingBlueprint{}), vendorID).
		Where("is_default = ? AND id <> ?", true, keepID)
	return q.Update("is_default", false).Error
}

// ListVisible returns the vendor's blueprints followed by active global ones.
func (r *Repository) ListVisible(ctx context.Context, vendorID uuid.UUID, filter ListFilter) ([]models.PricingBlueprint, error) {
	q := r.db.WithContext(ctx).
		Where("vendor_id = ? OR (vendor_id IS NULL AND is_active = ?)", vendorID, true)
	return r.list(q, filter)
}

// ListAll is the admin listing across every owner.
func (r *Repository) ListAll(ctx context.Context, filter ListFilter) ([]models.PricingBlueprint, error) {
	q := r.db.WithContext(ctx)
	switch {
	case filter.GlobalOnly:
		q = q.Where("vendor_id IS NULL")
	case filter.VendorID != nil:
		q = q.Where("vendor_id = ?", *filter.VendorID)
	}
	return r.list(q, filter)
}

func (r *Repository) list(q *gorm.DB, filter ListFilter) ([]models.PricingBlueprint, error) {
	if filter.TierType != nil {
		q = q.Where("tier_type = ?", *filter.TierType)
	}
	if filter.ActiveOnly {
		q = q.Where("is_active = ?", true)
	}

	var rows []models.PricingBlueprint
	if err := q.Order("vendor_id IS NULL").Order("name ASC").Find(&rows).Error; err != nil {
		return nil, err
	}

	category := strings.ToLower(strings.TrimSpace(filter.Category))
	if category == "" {
		return rows, nil
	}
	out := rows[:0]
	for _, bp := range rows {
		if appliesToCategory(bp, category) {
			out = append(out, bp)
		}
	}
	return out, nil
}

// appliesToCategory treats an empty category list as "any category".
func appliesToCategory(bp models.PricingBlueprint, category string) bool {
	if len(bp.ApplicableToCategories) == 0 {
		return true
	}
	for _, c := range bp.ApplicableToCategories {
		if strings.EqualFold(c, category) {
			return true
		}
	}
	return false
}

func scopeOwner(q *gorm.DB, vendorID *uuid.UUID) *gorm.DB {
	if vendorID == nil {
		return q.Where("vendor_id IS NULL")
	}
	return q.Where("vendor_id = ?", *vendorID)
}
