// Package purchaseorders records inbound stock orders. New catalog products
// named on an order are created in the same transaction as the order itself.
package purchaseorders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/canopyhq/canopy-backend/internal/products"
	"github.com/canopyhq/canopy-backend/pkg/db"
	"github.com/canopyhq/canopy-backend/pkg/db/models"
	"github.com/canopyhq/canopy-backend/pkg/enums"
	pkgerrors "github.com/canopyhq/canopy-backend/pkg/errors"
	"github.com/canopyhq/canopy-backend/pkg/logger"
	"github.com/canopyhq/canopy-backend/pkg/outbox"
	"github.com/canopyhq/canopy-backend/pkg/outbox/payloads"
	"github.com/canopyhq/canopy-backend/pkg/pagination"
	"github.com/canopyhq/canopy-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// InventoryReceiver books received stock inside the receipt transaction.
type InventoryReceiver interface {
	Receive(ctx context.Context, tx *gorm.DB, productID, locationID, vendorID uuid.UUID, qty int) (*models.Inventory, error)
}

type Service interface {
	CreatePO(ctx context.Context, input CreatePOInput) (*POResult, error)
	ReceivePO(ctx context.Context, input ReceivePOInput) (*models.PurchaseOrder, error)
	ListPOs(ctx context.Context, vendorID uuid.UUID, filter ListFilter) (pagination.Page[models.PurchaseOrder], error)
	GetPO(ctx context.Context, vendorID, id uuid.UUID) (*models.PurchaseOrder, error)
}

type service struct {
	repo      *Repository
	products  *products.Repository
	tx        txRunner
	inventory InventoryReceiver
	outbox    outboxPublisher
	logg      *logger.Logger
	now       func() time.Time
}

func NewService(repo *Repository, productRepo *products.Repository, tx txRunner, inventory InventoryReceiver, publisher outboxPublisher, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("purchase order repository required")
	}
	if productRepo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if inventory == nil {
		return nil, fmt.Errorf("inventory receiver required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:      repo,
		products:  productRepo,
		tx:        tx,
		inventory: inventory,
		outbox:    publisher,
		logg:      logg,
		now:       time.Now,
	}, nil
}

func (s *service) CreatePO(ctx context.Context, input CreatePOInput) (*POResult, error) {
	if err := validateCreate(&input); err != nil {
		return nil, err
	}
	ctx = s.logg.WithVendorID(ctx, input.VendorID.String())

	poNumber, err := types.NewReference("PO", s.now())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate po number")
	}

	var result *POResult
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		productRepo := s.products.WithTx(tx)

		existing, err := loadExisting(ctx, productRepo, input)
		if err != nil {
			return err
		}

		po := &models.PurchaseOrder{
			PONumber:             poNumber,
			VendorID:             input.VendorID,
			SupplierID:           input.SupplierID,
			POType:               input.POType,
			Status:               enums.POStatusOrdered,
			ExpectedDeliveryDate: input.ExpectedDeliveryDate,
			Notes:                input.Notes,
		}

		var newProductIDs []uuid.UUID
		subtotal := decimal.Zero
		for i, line := range input.Items {
			unit := types.RoundCents(line.UnitPrice)
			item := models.POItem{
				Quantity:     line.Quantity,
				UnitPrice:    unit,
				LineTotal:    types.RoundCents(unit.Mul(decimal.NewFromInt(int64(line.Quantity)))),
				IsNewProduct: line.IsNewProduct,
			}

			if line.IsNewProduct {
				product := newProductFromLine(input.VendorID, line, unit)
				if err := productRepo.Create(ctx, product); err != nil {
					if db.IsUniqueViolation(err, "") {
						return pkgerrors.Wrap(pkgerrors.CodeConflict, err, fmt.Sprintf("item %d: sku already exists for this vendor", i)).
							WithDetails(map[string]any{"item": i, "sku": deref(line.SKU)})
					}
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: create product")
				}
				item.ProductID = product.ID
				newProductIDs = append(newProductIDs, product.ID)
			} else {
				item.ProductID = existing[*line.ProductID].ID
			}

			subtotal = subtotal.Add(item.LineTotal)
			po.Items = append(po.Items, item)
		}
		po.Subtotal = types.RoundCents(subtotal)

		if err := s.repo.WithTx(tx).Create(ctx, po); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: insert purchase order")
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPurchaseOrderCreated,
			AggregateType: enums.AggregatePurchaseOrder,
			AggregateID:   po.ID,
			Actor:         &outbox.ActorRef{VendorID: input.VendorID, Role: string(enums.ActorRoleVendor)},
			Data: payloads.PurchaseOrderCreatedEvent{
				PurchaseOrderID: po.ID,
				PONumber:        po.PONumber,
				VendorID:        po.VendorID,
				SupplierID:      po.SupplierID,
				Subtotal:        po.Subtotal,
				NewProductIDs:   newProductIDs,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit purchase order created event")
		}

		result = &POResult{
			PONumber:           po.PONumber,
			Subtotal:           po.Subtotal,
			NewProductsCreated: len(newProductIDs),
			PurchaseOrder:      po,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"po_number":            result.PONumber,
		"subtotal":             result.Subtotal.StringFixed(2),
		"new_products_created": result.NewProductsCreated,
	}), "purchase order created")
	return result, nil
}

// ReceivePO marks the order received and adds every line to the location's
// stock. An order can only be received once.
func (s *service) ReceivePO(ctx context.Context, input ReceivePOInput) (*models.PurchaseOrder, error) {
	if input.VendorID == uuid.Nil || input.PurchaseOrderID == uuid.Nil || input.LocationID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor_id, purchase_order_id and location_id are required")
	}
	ctx = s.logg.WithVendorID(ctx, input.VendorID.String())
	ctx = s.logg.WithLocationID(ctx, input.LocationID.String())

	var received *models.PurchaseOrder
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		po, err := repo.FindForVendor(ctx, input.VendorID, input.PurchaseOrderID)
		if err != nil {
			return notFoundOr(err)
		}
		if !po.Status.CanReceive() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("purchase order is %s", po.Status)).
				WithDetails(map[string]any{"status": po.Status})
		}

		at := s.now().UTC()
		ok, err := repo.MarkReceived(ctx, po.ID, input.LocationID, at)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: mark purchase order received")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "purchase order was already received")
		}

		lines := make([]payloads.ReceivedPOLine, 0, len(po.Items))
		for i := range po.Items {
			item := &po.Items[i]
			if _, err := s.inventory.Receive(ctx, tx, item.ProductID, input.LocationID, po.VendorID, item.Quantity); err != nil {
				return err
			}
			if err := repo.SetReceivedQuantity(ctx, item.ID, item.Quantity); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: record received quantity")
			}
			item.ReceivedQuantity = item.Quantity
			lines = append(lines, payloads.ReceivedPOLine{ProductID: item.ProductID, Quantity: item.Quantity})
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPurchaseOrderReceived,
			AggregateType: enums.AggregatePurchaseOrder,
			AggregateID:   po.ID,
			Actor:         &outbox.ActorRef{VendorID: po.VendorID, LocationID: &input.LocationID, Role: string(enums.ActorRoleVendor)},
			Data: payloads.PurchaseOrderReceivedEvent{
				PurchaseOrderID: po.ID,
				PONumber:        po.PONumber,
				VendorID:        po.VendorID,
				LocationID:      input.LocationID,
				Lines:           lines,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit purchase order received event")
		}

		po.Status = enums.POStatusReceived
		po.ReceivedAt = &at
		po.ReceivedLocationID = &input.LocationID
		received = po
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithField(ctx, "po_number", received.PONumber), "purchase order received")
	return received, nil
}

func (s *service) ListPOs(ctx context.Context, vendorID uuid.UUID, filter ListFilter) (pagination.Page[models.PurchaseOrder], error) {
	if vendorID == uuid.Nil {
		return pagination.Page[models.PurchaseOrder]{}, pkgerrors.New(pkgerrors.CodeValidation, "vendor id is required")
	}
	if filter.Status != nil && !filter.Status.IsValid() {
		return pagination.Page[models.PurchaseOrder]{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid status %q", *filter.Status))
	}
	cursor, err := pagination.ParseCursor(filter.Cursor)
	if err != nil {
		return pagination.Page[models.PurchaseOrder]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	rows, err := s.repo.List(ctx, vendorID, filter.Status, cursor, filter.Limit)
	if err != nil {
		return pagination.Page[models.PurchaseOrder]{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: list purchase orders")
	}
	return pagination.Finish(rows, filter.Limit, func(po models.PurchaseOrder) pagination.Cursor {
		return pagination.Cursor{CreatedAt: po.CreatedAt, ID: po.ID}
	}), nil
}

func (s *service) GetPO(ctx context.Context, vendorID, id uuid.UUID) (*models.PurchaseOrder, error) {
	po, err := s.repo.FindForVendor(ctx, vendorID, id)
	if err != nil {
		return nil, notFoundOr(err)
	}
	return po, nil
}

// loadExisting checks every referenced product belongs to the vendor. Those
// products are read, never written.
func loadExisting(ctx context.Context, repo *products.Repository, input CreatePOInput) (map[uuid.UUID]models.Product, error) {
	var ids []uuid.UUID
	for _, line := range input.Items {
		if !line.IsNewProduct {
			ids = append(ids, *line.ProductID)
		}
	}
	found, err := repo.FindManyForVendor(ctx, input.VendorID, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: load products")
	}
	for i, line := range input.Items {
		if line.IsNewProduct {
			continue
		}
		if _, ok := found[*line.ProductID]; !ok {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("item %d: product not found", i)).
				WithDetails(map[string]any{"item": i, "product_id": *line.ProductID})
		}
	}
	return found, nil
}

func validateCreate(input *CreatePOInput) error {
	if input.VendorID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "vendor_id is required")
	}
	if input.SupplierID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "supplier_id is required")
	}
	if input.POType == "" {
		input.POType = enums.POTypeInbound
	}
	if !input.POType.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported po_type %q", input.POType))
	}
	if len(input.Items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}

	skus := map[string]int{}
	for i, line := range input.Items {
		field := fmt.Sprintf("items[%d]", i)
		if line.Quantity <= 0 {
			return lineError(field+".quantity", "quantity must be greater than zero")
		}
		if line.UnitPrice.IsNegative() {
			return lineError(field+".unit_price", "unit_price cannot be negative")
		}
		if !line.IsNewProduct {
			if line.ProductID == nil || *line.ProductID == uuid.Nil {
				return lineError(field+".product_id", "product_id is required for existing products")
			}
			continue
		}
		if strings.TrimSpace(deref(line.Name)) == "" {
			return lineError(field+".name", "name is required for new products")
		}
		if sku := strings.TrimSpace(deref(line.SKU)); sku != "" {
			if prev, dup := skus[sku]; dup {
				return lineError(field+".sku", fmt.Sprintf("sku duplicates items[%d]", prev))
			}
			skus[sku] = i
		}
	}
	return nil
}

// newProductFromLine seeds a single-price product; the order's unit price is
// both its cost and its starting shelf price until the vendor prices it.
func newProductFromLine(vendorID uuid.UUID, line POLineInput, unit decimal.Decimal) *models.Product {
	return &models.Product{
		VendorID:     vendorID,
		Name:         strings.TrimSpace(deref(line.Name)),
		SKU:          trimmed(line.SKU),
		SupplierSKU:  trimmed(line.SupplierSKU),
		Category:     lowered(line.Category),
		PricingMode:  enums.PricingModeSingle,
		CostPrice:    unit,
		RegularPrice: unit,
		IsActive:     true,
	}
}

func lineError(field, msg string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, msg).WithDetails(map[string]any{"field": field})
}

func notFoundOr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "purchase order not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: load purchase order")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func lowered(s *string) *string {
	v := trimmed(s)
	if v == nil {
		return nil
	}
	l := strings.ToLower(*v)
	return &l
}
