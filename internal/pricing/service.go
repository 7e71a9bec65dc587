package pricing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/canopyhq/canopy-backend/internal/products"
	"github.com/canopyhq/canopy-backend/pkg/db"
	"github.com/canopyhq/canopy-backend/pkg/db/models"
	dbtypes "github.com/canopyhq/canopy-backend/pkg/db/types"
	"github.com/canopyhq/canopy-backend/pkg/enums"
	pkgerrors "github.com/canopyhq/canopy-backend/pkg/errors"
	"github.com/canopyhq/canopy-backend/pkg/logger"
	"github.com/canopyhq/canopy-backend/pkg/outbox"
	"github.com/canopyhq/canopy-backend/pkg/outbox/payloads"
	"github.com/canopyhq/canopy-backend/pkg/types"
)

// Scope is the caller a blueprint operation runs on behalf of.
type Scope struct {
	VendorID *uuid.UUID
	Admin    bool
}

func VendorScope(vendorID uuid.UUID) Scope {
	return Scope{VendorID: &vendorID}
}

func AdminScope() Scope {
	return Scope{Admin: true}
}

// ApplyInput selects a blueprint and optional per-break price overrides.
type ApplyInput struct {
	BlueprintID uuid.UUID
	Prices      map[string]decimal.Decimal
}

// Service manages pricing blueprints and their application to products.
type Service interface {
	Create(ctx context.Context, scope Scope, input BlueprintInput) (*models.PricingBlueprint, error)
	Update(ctx context.Context, scope Scope, id uuid.UUID, input BlueprintInput) (*models.PricingBlueprint, error)
	Delete(ctx context.Context, scope Scope, id uuid.UUID) error
	Get(ctx context.Context, scope Scope, id uuid.UUID) (*models.PricingBlueprint, error)
	List(ctx context.Context, scope Scope, filter ListFilter) ([]models.PricingBlueprint, error)
	Apply(ctx context.Context, vendorID, productID uuid.UUID, input ApplyInput) (*models.Product, error)
	QuoteProduct(ctx context.Context, vendorID, productID uuid.UUID, sel Selection) (*Quote, error)
}

type service struct {
	repo     *Repository
	products *products.Repository
	dbClient *db.Client
	outbox   *outbox.Service
	logg     *logger.Logger
}

func NewService(repo *Repository, productRepo *products.Repository, dbClient *db.Client, outboxSvc *outbox.Service, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("pricing repository required")
	}
	if productRepo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if dbClient == nil {
		return nil, fmt.Errorf("db client required")
	}
	if outboxSvc == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:     repo,
		products: productRepo,
		dbClient: dbClient,
		outbox:   outboxSvc,
		logg:     logg,
	}, nil
}

func (s *service) Create(ctx context.Context, scope Scope, input BlueprintInput) (*models.PricingBlueprint, error) {
	if err := checkScope(scope); err != nil {
		return nil, err
	}
	normalized, err := NormalizeBlueprint(input)
	if err != nil {
		return nil, err
	}

	owner := scope.VendorID
	if scope.Admin {
		owner = input.VendorID
	}

	bp := &models.PricingBlueprint{VendorID: owner}
	assign(bp, normalized)

	err = s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		if err := ensureSlugFree(ctx, txRepo, owner, bp.Slug, uuid.Nil); err != nil {
			return err
		}
		if err := txRepo.Create(ctx, bp); err != nil {
			return mapWriteError(err, "db: insert pricing blueprint")
		}
		if bp.IsDefault {
			if err := txRepo.ClearDefault(ctx, owner, bp.ID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: clear default blueprint")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{"blueprint_id": bp.ID, "slug": bp.Slug, "global": bp.IsGlobal()}), "pricing blueprint created")
	return bp, nil
}

func (s *service) Update(ctx context.Context, scope Scope, id uuid.UUID, input BlueprintInput) (*models.PricingBlueprint, error) {
	if err := checkScope(scope); err != nil {
		return nil, err
	}
	normalized, err := NormalizeBlueprint(input)
	if err != nil {
		return nil, err
	}

	var bp *models.PricingBlueprint
	err = s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		existing, err := loadForWrite(ctx, txRepo, scope, id)
		if err != nil {
			return err
		}
		if err := ensureSlugFree(ctx, txRepo, existing.VendorID, normalized.Slug, existing.ID); err != nil {
			return err
		}
		assign(existing, normalized)
		if err := txRepo.Save(ctx, existing); err != nil {
			return mapWriteError(err, "db: update pricing blueprint")
		}
		if existing.IsDefault {
			if err := txRepo.ClearDefault(ctx, existing.VendorID, existing.ID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: clear default blueprint")
			}
		}
		bp = existing
		return nil
	})
	if err != nil {
		return nil, err
	}
	return bp, nil
}

func (s *service) Delete(ctx context.Context, scope Scope, id uuid.UUID) error {
	if err := checkScope(scope); err != nil {
		return err
	}
	return s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		if _, err := loadForWrite(ctx, txRepo, scope, id); err != nil {
			return err
		}
		detached, err := s.products.WithTx(tx).DetachBlueprint(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: detach products")
		}
		if err := txRepo.Delete(ctx, id); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "pricing blueprint not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: delete pricing blueprint")
		}
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{"blueprint_id": id, "products_detached": detached}), "pricing blueprint deleted")
		return nil
	})
}

func (s *service) Get(ctx context.Context, scope Scope, id uuid.UUID) (*models.PricingBlueprint, error) {
	if err := checkScope(scope); err != nil {
		return nil, err
	}
	bp, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "pricing blueprint not found", "db: load pricing blueprint")
	}
	if !visibleTo(scope, bp) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "pricing blueprint not found")
	}
	return bp, nil
}

func (s *service) List(ctx context.Context, scope Scope, filter ListFilter) ([]models.PricingBlueprint, error) {
	if err := checkScope(scope); err != nil {
		return nil, err
	}
	var (
		rows []models.PricingBlueprint
		err  error
	)
	if scope.Admin {
		rows, err = s.repo.ListAll(ctx, filter)
	} else {
		rows, err = s.repo.ListVisible(ctx, *scope.VendorID, filter)
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: list pricing blueprints")
	}
	return rows, nil
}

// Apply snapshots the blueprint's breaks onto the product. The product keeps
// those prices even if the blueprint changes later.
func (s *service) Apply(ctx context.Context, vendorID, productID uuid.UUID, input ApplyInput) (*models.Product, error) {
	var product *models.Product
	err := s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		productRepo := s.products.WithTx(tx)
		p, err := productRepo.FindForVendor(ctx, vendorID, productID)
		if err != nil {
			return notFoundOr(err, "product not found", "db: load product")
		}
		bp, err := s.repo.WithTx(tx).FindByID(ctx, input.BlueprintID)
		if err != nil {
			return notFoundOr(err, "pricing blueprint not found", "db: load pricing blueprint")
		}
		if !visibleTo(VendorScope(vendorID), bp) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "pricing blueprint not found")
		}
		if !bp.IsActive {
			return pkgerrors.New(pkgerrors.CodeValidation, "pricing blueprint is inactive")
		}
		if p.Category != nil && !appliesToCategory(*bp, *p.Category) {
			return pkgerrors.New(pkgerrors.CodeValidation, "pricing blueprint does not apply to this product category").
				WithDetails(map[string]any{"category": *p.Category, "applicable_to_categories": []string(bp.ApplicableToCategories)})
		}

		tiers, err := SnapshotTiers(bp.PriceBreaks, input.Prices)
		if err != nil {
			return err
		}
		if err := productRepo.ApplyPricing(ctx, p.ID, bp.ID, tiers); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: apply pricing tiers")
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPricingBlueprintApplied,
			AggregateType: enums.AggregateProduct,
			AggregateID:   p.ID,
			Actor:         &outbox.ActorRef{VendorID: vendorID, Role: string(enums.ActorRoleVendor)},
			Data: payloads.PricingBlueprintAppliedEvent{
				ProductID:   p.ID,
				BlueprintID: bp.ID,
				VendorID:    vendorID,
				TierCount:   len(tiers),
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit pricing applied event")
		}

		p.PricingMode = enums.PricingModeTiered
		p.PricingBlueprintID = &bp.ID
		p.PricingTiers = dbtypes.JSONList[models.PricingTier](tiers)
		product = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return product, nil
}

func (s *service) QuoteProduct(ctx context.Context, vendorID, productID uuid.UUID, sel Selection) (*Quote, error) {
	p, err := s.products.FindForVendor(ctx, vendorID, productID)
	if err != nil {
		return nil, notFoundOr(err, "product not found", "db: load product")
	}
	return QuoteProduct(p, sel)
}

// SnapshotTiers turns blueprint breaks into product tiers. Each break takes the
// override price when one is given, otherwise its default_price.
func SnapshotTiers(breaks []models.PriceBreak, overrides map[string]decimal.Decimal) ([]models.PricingTier, error) {
	for id := range overrides {
		if !hasBreak(breaks, id) {
			return nil, unknownBreak(id)
		}
	}

	tiers := make([]models.PricingTier, 0, len(breaks))
	for _, b := range breaks {
		price, ok := overrides[b.BreakID]
		if !ok {
			if b.DefaultPrice == nil {
				return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("price required for break %q", b.BreakID)).
					WithDetails(map[string]any{"break_id": b.BreakID})
			}
			price = *b.DefaultPrice
		}
		if price.IsNegative() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("price for break %q cannot be negative", b.BreakID))
		}
		tiers = append(tiers, models.PricingTier{
			BreakID:   b.BreakID,
			Label:     b.Label,
			Qty:       copyDecimal(b.Qty),
			Unit:      copyString(b.Unit),
			MinQty:    copyInt(b.MinQty),
			MaxQty:    copyInt(b.MaxQty),
			Price:     types.RoundCents(price),
			SortOrder: b.SortOrder,
		})
	}
	return tiers, nil
}

func hasBreak(breaks []models.PriceBreak, id string) bool {
	for _, b := range breaks {
		if b.BreakID == id {
			return true
		}
	}
	return false
}

func assign(bp *models.PricingBlueprint, in BlueprintInput) {
	bp.Name = in.Name
	bp.Slug = in.Slug
	bp.Description = in.Description
	bp.TierType = in.TierType
	bp.PriceBreaks = dbtypes.JSONList[models.PriceBreak](in.PriceBreaks)
	bp.ApplicableToCategories = dbtypes.JSONList[string](in.ApplicableToCategories)
	bp.IsActive = in.IsActive
	bp.IsDefault = in.IsDefault
}

func checkScope(scope Scope) error {
	if !scope.Admin && (scope.VendorID == nil || *scope.VendorID == uuid.Nil) {
		return pkgerrors.New(pkgerrors.CodeValidation, "vendor id is required")
	}
	return nil
}

func visibleTo(scope Scope, bp *models.PricingBlueprint) bool {
	if scope.Admin || bp.IsGlobal() {
		return true
	}
	return *bp.VendorID == *scope.VendorID
}

// loadForWrite enforces ownership: vendors cannot touch global blueprints and
// never learn that another vendor's blueprint exists.
func loadForWrite(ctx context.Context, repo *Repository, scope Scope, id uuid.UUID) (*models.PricingBlueprint, error) {
	bp, err := repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "pricing blueprint not found", "db: load pricing blueprint")
	}
	if scope.Admin {
		return bp, nil
	}
	if bp.IsGlobal() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "global pricing blueprints are read-only")
	}
	if *bp.VendorID != *scope.VendorID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "pricing blueprint not found")
	}
	return bp, nil
}

func ensureSlugFree(ctx context.Context, repo *Repository, owner *uuid.UUID, slug string, excludeID uuid.UUID) error {
	taken, err := repo.SlugTaken(ctx, owner, slug, excludeID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: check slug")
	}
	if taken {
		return pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("slug %q is already in use", slug))
	}
	return nil
}

func mapWriteError(err error, msg string) error {
	if db.IsUniqueViolation(err, "") {
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "pricing blueprint slug already exists")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}

func notFoundOr(err error, notFoundMsg, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, notFoundMsg)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}

func copyDecimal(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	v := *d
	return &v
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

func copyInt(i *int) *int {
	if i == nil {
		return nil
	}
	v := *i
	return &v
}
