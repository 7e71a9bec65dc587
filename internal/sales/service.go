// Package sales runs a register sale as one transaction: stock deduction,
// order insert, loyalty accrual and the outbox rows that fan it out.
package sales

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/canopyhq/canopy-backend/internal/loyalty"
	"github.com/canopyhq/canopy-backend/internal/pricing"
	"github.com/canopyhq/canopy-backend/internal/products"
	"github.com/canopyhq/canopy-backend/pkg/db/models"
	"github.com/canopyhq/canopy-backend/pkg/enums"
	pkgerrors "github.com/canopyhq/canopy-backend/pkg/errors"
	"github.com/canopyhq/canopy-backend/pkg/logger"
	"github.com/canopyhq/canopy-backend/pkg/metrics"
	"github.com/canopyhq/canopy-backend/pkg/outbox"
	"github.com/canopyhq/canopy-backend/pkg/outbox/payloads"
	"github.com/canopyhq/canopy-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// InventoryDeductor removes sold stock inside the sale transaction.
type InventoryDeductor interface {
	Deduct(ctx context.Context, tx *gorm.DB, inventoryID uuid.UUID, qty int) error
}

// LoyaltyAccruer credits points inside the sale transaction.
type LoyaltyAccruer interface {
	Accrue(ctx context.Context, tx *gorm.DB, customerID *uuid.UUID, vendorID uuid.UUID, subtotal decimal.Decimal) (loyalty.Result, error)
}

// Service is the register sale workflow.
type Service interface {
	CreateSale(ctx context.Context, input CreateSaleInput) (*SaleResult, error)
	GetOrder(ctx context.Context, vendorID uuid.UUID, orderNumber string) (*models.Order, error)
}

// Options carries the optional collaborators of the sale service.
type Options struct {
	DefaultTaxRate decimal.Decimal
	Metrics        *metrics.SalesMetrics
	Now            func() time.Time
}

type service struct {
	repo      *Repository
	products  *products.Repository
	tx        txRunner
	inventory InventoryDeductor
	loyalty   LoyaltyAccruer
	outbox    outboxPublisher
	logg      *logger.Logger
	taxRate   decimal.Decimal
	metrics   *metrics.SalesMetrics
	now       func() time.Time
}

func NewService(
	repo *Repository,
	productRepo *products.Repository,
	tx txRunner,
	inventory InventoryDeductor,
	accruer LoyaltyAccruer,
	publisher outboxPublisher,
	logg *logger.Logger,
	opts Options,
) (Service, error) {
	switch {
	case repo == nil:
		return nil, fmt.Errorf("sales repository required")
	case productRepo == nil:
		return nil, fmt.Errorf("product repository required")
	case tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case inventory == nil:
		return nil, fmt.Errorf("inventory guard required")
	case accruer == nil:
		return nil, fmt.Errorf("loyalty engine required")
	case publisher == nil:
		return nil, fmt.Errorf("outbox publisher required")
	case logg == nil:
		return nil, fmt.Errorf("logger required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &service{
		repo:      repo,
		products:  productRepo,
		tx:        tx,
		inventory: inventory,
		loyalty:   accruer,
		outbox:    publisher,
		logg:      logg,
		taxRate:   opts.DefaultTaxRate,
		metrics:   opts.Metrics,
		now:       opts.Now,
	}, nil
}

func (s *service) CreateSale(ctx context.Context, input CreateSaleInput) (*SaleResult, error) {
	if err := validateInput(input); err != nil {
		s.metrics.IncRejected(string(pkgerrors.CodeValidation))
		return nil, err
	}
	ctx = s.logg.WithVendorID(ctx, input.VendorID.String())
	ctx = s.logg.WithLocationID(ctx, input.LocationID.String())

	orderNumber, err := types.NewReference("POS", s.now())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate order number")
	}

	var result *SaleResult
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		var customer *models.Customer
		if input.CustomerID != nil {
			c, err := repo.FindCustomer(ctx, *input.CustomerID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return pkgerrors.New(pkgerrors.CodeNotFound, "customer not found").
						WithDetails(map[string]any{"customer_id": *input.CustomerID})
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: load customer")
			}
			customer = c
		}

		lines, err := s.priceLines(ctx, tx, input)
		if err != nil {
			return err
		}
		totals, err := s.computeTotals(input, lines)
		if err != nil {
			return err
		}

		for i, line := range lines {
			if err := s.inventory.Deduct(ctx, tx, line.input.InventoryID, line.input.Quantity); err != nil {
				return nameFailingItem(err, i, line)
			}
		}

		order := buildOrder(orderNumber, input, customer, lines, totals)
		if err := repo.Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: insert order")
		}

		accrual, err := s.loyalty.Accrue(ctx, tx, input.CustomerID, input.VendorID, totals.subtotal)
		if err != nil {
			return err
		}
		if accrual.PointsEarned > 0 {
			if err := repo.SetPointsEarned(ctx, order.ID, accrual.PointsEarned); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: record points earned")
			}
			order.PointsEarned = accrual.PointsEarned
		}

		actor := &outbox.ActorRef{VendorID: input.VendorID, LocationID: &input.LocationID, Role: string(enums.ActorRoleBudtender)}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPOSSaleCompleted,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actor,
			Data: payloads.POSSaleCompletedEvent{
				OrderID:      order.ID,
				OrderNumber:  order.OrderNumber,
				VendorID:     order.VendorID,
				LocationID:   order.LocationID,
				CustomerID:   order.CustomerID,
				Subtotal:     order.Subtotal,
				TaxAmount:    order.TaxAmount,
				Total:        order.Total,
				ItemCount:    len(order.Items),
				PointsEarned: order.PointsEarned,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit sale completed event")
		}

		synced := false
		if customer != nil {
			if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventLoyaltySyncRequested,
				AggregateType: enums.AggregateCustomerLoyalty,
				AggregateID:   accrual.AccountID,
				Actor:         actor,
				Data:          loyaltySyncPayload(order, customer, accrual, lines),
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit loyalty sync event")
			}
			synced = true
		}

		var loyaltyResult *loyalty.Result
		if customer != nil {
			loyaltyResult = &accrual
		}
		result = &SaleResult{
			Success:        true,
			OrderNumber:    order.OrderNumber,
			Order:          order,
			PointsEarned:   accrual.PointsEarned,
			Loyalty:        loyaltyResult,
			AlpineIQSynced: synced,
		}
		return nil
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			s.metrics.IncRejected(string(typed.Code()))
		} else {
			s.metrics.IncRejected(string(pkgerrors.CodeInternal))
		}
		return nil, err
	}

	s.metrics.ObserveSale(string(input.PaymentMethod), result.Order.Total)
	if result.Loyalty != nil {
		upgradedTo := ""
		if result.Loyalty.TierUpgraded {
			upgradedTo = result.Loyalty.NewTier
		}
		s.metrics.ObserveLoyalty(result.PointsEarned, upgradedTo)
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_number":  result.OrderNumber,
		"total":         result.Order.Total.StringFixed(2),
		"items":         len(result.Order.Items),
		"points_earned": result.PointsEarned,
	}), "pos sale completed")
	return result, nil
}

func (s *service) GetOrder(ctx context.Context, vendorID uuid.UUID, orderNumber string) (*models.Order, error) {
	orderNumber = strings.TrimSpace(orderNumber)
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id is required")
	}
	if orderNumber == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order number is required")
	}
	order, err := s.repo.FindByNumber(ctx, vendorID, orderNumber)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: load order")
	}
	return order, nil
}

// priceLines resolves each line against the product's own pricing unless the
// cashier overrode the unit price.
func (s *service) priceLines(ctx context.Context, tx *gorm.DB, input CreateSaleInput) ([]pricedLine, error) {
	productIDs := make([]uuid.UUID, 0, len(input.Items))
	inventoryIDs := make([]uuid.UUID, 0, len(input.Items))
	for _, item := range input.Items {
		productIDs = append(productIDs, item.ProductID)
		inventoryIDs = append(inventoryIDs, item.InventoryID)
	}

	catalog, err := s.products.WithTx(tx).FindManyForVendor(ctx, input.VendorID, productIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: load products")
	}
	stock, err := s.repo.WithTx(tx).FindInventory(ctx, inventoryIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: load inventory")
	}

	lines := make([]pricedLine, 0, len(input.Items))
	for i, item := range input.Items {
		product, ok := catalog[item.ProductID]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("product not found for item %d", i)).
				WithDetails(map[string]any{"item": i, "product_id": item.ProductID})
		}
		inv, ok := stock[item.InventoryID]
		if !ok || inv.ProductID != item.ProductID || inv.LocationID != input.LocationID || inv.VendorID != input.VendorID {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("inventory not found for item %d at this location", i)).
				WithDetails(map[string]any{"item": i, "inventory_id": item.InventoryID})
		}

		line := pricedLine{input: item, product: product}
		if item.UnitPrice != nil {
			line.unitPrice = types.RoundCents(*item.UnitPrice)
			line.lineTotal = types.RoundCents(line.unitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
			line.breakID = item.BreakID
		} else {
			sel := pricing.Selection{Quantity: item.Quantity}
			if item.BreakID != nil {
				sel.BreakID = *item.BreakID
			}
			quote, err := pricing.QuoteProduct(&product, sel)
			if err != nil {
				if typed := pkgerrors.As(err); typed != nil {
					return nil, pkgerrors.Wrap(typed.Code(), err, fmt.Sprintf("item %d: %s", i, typed.Message())).
						WithDetails(map[string]any{"item": i, "product_id": item.ProductID})
				}
				return nil, err
			}
			line.unitPrice = quote.UnitPrice
			line.lineTotal = quote.LineTotal
			line.breakID = quote.BreakID
		}
		lines = append(lines, line)
	}
	return lines, nil
}

type saleTotals struct {
	subtotal decimal.Decimal
	tax      decimal.Decimal
	total    decimal.Decimal
	tendered *decimal.Decimal
	change   *decimal.Decimal
}

// computeTotals derives subtotal/tax/total from the priced lines and checks
// any register-side figures against them to the cent.
func (s *service) computeTotals(input CreateSaleInput, lines []pricedLine) (saleTotals, error) {
	subtotal := decimal.Zero
	for _, line := range lines {
		subtotal = subtotal.Add(line.lineTotal)
	}
	subtotal = types.RoundCents(subtotal)

	if input.Subtotal != nil && !types.WithinCents(*input.Subtotal, subtotal) {
		return saleTotals{}, mismatch("subtotal", *input.Subtotal, subtotal)
	}

	var tax decimal.Decimal
	switch {
	case input.TaxAmount != nil:
		tax = types.RoundCents(*input.TaxAmount)
	case input.TaxRate != nil:
		tax = types.RoundCents(subtotal.Mul(*input.TaxRate))
	default:
		tax = types.RoundCents(subtotal.Mul(s.taxRate))
	}
	total := subtotal.Add(tax)

	if input.Total != nil && !types.WithinCents(*input.Total, total) {
		return saleTotals{}, mismatch("total", *input.Total, total)
	}

	out := saleTotals{subtotal: subtotal, tax: tax, total: total}
	if input.PaymentMethod.RequiresTender() {
		if input.CashTendered == nil {
			return saleTotals{}, pkgerrors.New(pkgerrors.CodeValidation, "cashTendered is required for cash sales")
		}
		tendered := types.RoundCents(*input.CashTendered)
		if tendered.LessThan(total) {
			return saleTotals{}, pkgerrors.New(pkgerrors.CodeValidation, "cash tendered is less than the total").
				WithDetails(map[string]any{"cashTendered": tendered, "total": total})
		}
		change := tendered.Sub(total)
		if input.ChangeGiven != nil && !types.WithinCents(*input.ChangeGiven, change) {
			return saleTotals{}, mismatch("changeGiven", *input.ChangeGiven, change)
		}
		out.tendered = &tendered
		out.change = &change
	}
	return out, nil
}

func validateInput(input CreateSaleInput) error {
	switch {
	case input.VendorID == uuid.Nil:
		return pkgerrors.New(pkgerrors.CodeValidation, "vendorId is required")
	case input.LocationID == uuid.Nil:
		return pkgerrors.New(pkgerrors.CodeValidation, "locationId is required")
	case len(input.Items) == 0:
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	case !input.PaymentMethod.IsValid():
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported payment method %q", input.PaymentMethod))
	}
	if input.CustomerID != nil && *input.CustomerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "customerId must be a valid id or null")
	}
	for _, d := range []*decimal.Decimal{input.TaxAmount, input.TaxRate, input.CashTendered} {
		if d != nil && d.IsNegative() {
			return pkgerrors.New(pkgerrors.CodeValidation, "amounts cannot be negative")
		}
	}
	for i, item := range input.Items {
		if item.Quantity <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("item %d: quantity must be greater than zero", i)).
				WithDetails(map[string]any{"item": i})
		}
		if item.ProductID == uuid.Nil || item.InventoryID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("item %d: productId and inventoryId are required", i)).
				WithDetails(map[string]any{"item": i})
		}
		if item.UnitPrice != nil && item.UnitPrice.IsNegative() {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("item %d: unitPrice cannot be negative", i)).
				WithDetails(map[string]any{"item": i})
		}
	}
	return nil
}

func mismatch(field string, got, want decimal.Decimal) error {
	return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s does not match the computed amount", field)).
		WithDetails(map[string]any{"field": field, "submitted": got.StringFixed(2), "computed": want.StringFixed(2)})
}

// nameFailingItem adds the line position and product to a deduction error.
func nameFailingItem(err error, index int, line pricedLine) error {
	typed := pkgerrors.As(err)
	if typed == nil {
		return err
	}
	details := map[string]any{"item": index, "product_id": line.product.ID, "product_name": line.product.Name}
	if existing, ok := typed.Details().(map[string]any); ok {
		for k, v := range existing {
			details[k] = v
		}
	}
	return pkgerrors.Wrap(typed.Code(), err, fmt.Sprintf("%s (item %d: %s)", typed.Message(), index, line.product.Name)).
		WithDetails(details)
}

func buildOrder(orderNumber string, input CreateSaleInput, customer *models.Customer, lines []pricedLine, totals saleTotals) *models.Order {
	order := &models.Order{
		OrderNumber:   orderNumber,
		VendorID:      input.VendorID,
		LocationID:    input.LocationID,
		CustomerID:    input.CustomerID,
		CustomerName:  customerName(input.CustomerName, customer),
		OrderType:     enums.OrderTypePOS,
		Status:        enums.OrderStatusCompleted,
		PaymentStatus: enums.PaymentStatusPaid,
		PaymentMethod: input.PaymentMethod,
		Subtotal:      totals.subtotal,
		TaxAmount:     totals.tax,
		Total:         totals.total,
		CashTendered:  totals.tendered,
		ChangeGiven:   totals.change,
	}
	for _, line := range lines {
		order.Items = append(order.Items, models.OrderItem{
			ProductID:   line.product.ID,
			InventoryID: line.input.InventoryID,
			ProductName: line.product.Name,
			Quantity:    line.input.Quantity,
			UnitPrice:   line.unitPrice,
			LineTotal:   line.lineTotal,
			TierBreakID: line.breakID,
		})
	}
	return order
}

func customerName(given *string, customer *models.Customer) *string {
	if given != nil {
		if name := strings.TrimSpace(*given); name != "" {
			return &name
		}
	}
	if customer == nil {
		return nil
	}
	name := strings.TrimSpace(customer.FirstName + " " + customer.LastName)
	if name == "" {
		return nil
	}
	return &name
}

func loyaltySyncPayload(order *models.Order, customer *models.Customer, accrual loyalty.Result, lines []pricedLine) payloads.LoyaltySyncRequestedEvent {
	event := payloads.LoyaltySyncRequestedEvent{
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		VendorID:       order.VendorID,
		LocationID:     order.LocationID,
		CustomerID:     customer.ID,
		CustomerName:   strings.TrimSpace(customer.FirstName + " " + customer.LastName),
		Total:          order.Total,
		PointsEarned:   accrual.PointsEarned,
		PointsBalance:  accrual.NewBalance,
		LifetimePoints: accrual.LifetimePoints,
		Tier:           accrual.NewTier,
		TierUpgraded:   accrual.TierUpgraded,
	}
	if customer.Email != nil {
		event.Email = *customer.Email
	}
	if customer.Phone != nil {
		event.Phone = *customer.Phone
	}
	for _, line := range lines {
		sl := payloads.LoyaltySyncLine{
			ProductID: line.product.ID,
			Name:      line.product.Name,
			Quantity:  line.input.Quantity,
			UnitPrice: line.unitPrice,
		}
		if line.product.Category != nil {
			sl.Category = *line.product.Category
		}
		event.Lines = append(event.Lines, sl)
	}
	return event
}
