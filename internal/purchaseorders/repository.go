package purchaseorders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/canopyhq/canopy-backend/pkg/db/models"
	"github.com/canopyhq/canopy-backend/pkg/enums"
	"github.com/canopyhq/canopy-backend/pkg/pagination"
)

// Repository persists purchase orders and their lines.
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

// Create inserts the order and its items.
func (r *Repository) Create(ctx context.Context, po *models.PurchaseOrder) error {
	return r.db.WithContext(ctx).Create(po).Error
}

func (r *Repository) FindForVendor(ctx context.Context, vendorID, id uuid.UUID) (*models.PurchaseOrder, error) {
	var po models.PurchaseOrder
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		Where("id = ? AND vendor_id = ?", id, vendorID).
		First(&po).Error
	if err != nil {
		return nil, err
	}
	return &po, nil
}

// MarkReceived flips a receivable order to received. It reports false when
// the order was already received or cancelled.
func (r *Repository) MarkReceived(ctx context.Context, id, locationID uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.PurchaseOrder{}).
		Where("id = ? AND status IN ?", id, []enums.POStatus{enums.POStatusDraft, enums.POStatusOrdered}).
		Updates(map[string]any{
			"status":               enums.POStatusReceived,
			"received_at":          at,
			"received_location_id": locationID,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *Repository) SetReceivedQuantity(ctx context.Context, itemID uuid.UUID, qty int) error {
	return r.db.WithContext(ctx).
		Model(&models.POItem{}).
		Where("id = ?", itemID).
		UpdateColumn("received_quantity", qty).Error
}

// List returns a newest-first page of the vendor's orders without items.
func (r *Repository) List(ctx context.Context, vendorID uuid.UUID, status *enums.POStatus, cursor *pagination.Cursor, limit int) ([]models.PurchaseOrder, error) {
	q := r.db.WithContext(ctx).Where("vendor_id = ?", vendorID)
	if status != nil {
		q = q.Where("status = ?", *status)
	}
	var rows []models.PurchaseOrder
	if err := q.Scopes(pagination.Scope(cursor, limit)).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
