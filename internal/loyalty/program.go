package loyalty

import (
	"context"
	"errors"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/canopyhq/canopy-backend/pkg/db/models"
	dbtypes "github.com/canopyhq/canopy-backend/pkg/db/types"
	pkgerrors "github.com/canopyhq/canopy-backend/pkg/errors"
)

// DefaultTiers is the ladder used by vendors without their own program.
var DefaultTiers = []models.LoyaltyTier{
	{Name: "Bronze", Level: 1, Threshold: 0},
	{Name: "Silver", Level: 2, Threshold: 500},
	{Name: "Gold", Level: 3, Threshold: 1500},
	{Name: "Platinum", Level: 4, Threshold: 5000},
}

// Program is the accrual rate and tier ladder in effect for a vendor.
type Program struct {
	VendorID        uuid.UUID            `json:"vendor_id"`
	PointsPerDollar decimal.Decimal      `json:"points_per_dollar"`
	Tiers           []models.LoyaltyTier `json:"tiers"`
	Default         bool                 `json:"is_default"`
}

// TierFor returns the highest tier whose threshold is at or below lifetime.
func (p Program) TierFor(lifetime int64) models.LoyaltyTier {
	best := p.Tiers[0]
	for _, t := range p.Tiers {
		if t.Threshold <= lifetime && t.Level > best.Level {
			best = t
		}
	}
	return best
}

// ProgramStore reads and writes per-vendor program overrides.
type ProgramStore struct {
	db          *gorm.DB
	defaultRate decimal.Decimal
}

func NewProgramStore(db *gorm.DB, defaultRate decimal.Decimal) *ProgramStore {
	if !defaultRate.IsPositive() {
		defaultRate = decimal.NewFromInt(1)
	}
	return &ProgramStore{db: db, defaultRate: defaultRate}
}

func (s *ProgramStore) WithTx(tx *gorm.DB) *ProgramStore {
	return &ProgramStore{db: tx, defaultRate: s.defaultRate}
}

// Load returns the vendor's program, falling back to the platform default.
func (s *ProgramStore) Load(ctx context.Context, vendorID uuid.UUID) (Program, error) {
	var row models.LoyaltyProgram
	err := s.db.WithContext(ctx).First(&row, "vendor_id = ?", vendorID).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return s.defaults(vendorID), nil
	case err != nil:
		return Program{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: load loyalty program")
	}

	prog := Program{VendorID: vendorID, PointsPerDollar: row.PointsPerDollar, Tiers: sortedTiers(row.Tiers)}
	if len(prog.Tiers) == 0 {
		prog.Tiers = sortedTiers(DefaultTiers)
	}
	if !prog.PointsPerDollar.IsPositive() {
		prog.PointsPerDollar = s.defaultRate
	}
	return prog, nil
}

// Save validates and upserts a vendor program.
func (s *ProgramStore) Save(ctx context.Context, vendorID uuid.UUID, rate decimal.Decimal, tiers []models.LoyaltyTier) (Program, error) {
	if vendorID == uuid.Nil {
		return Program{}, pkgerrors.New(pkgerrors.CodeValidation, "vendor id is required")
	}
	if !rate.IsPositive() {
		return Program{}, pkgerrors.New(pkgerrors.CodeValidation, "points_per_dollar must be greater than zero")
	}
	if err := validateTiers(tiers); err != nil {
		return Program{}, err
	}

	row := models.LoyaltyProgram{
		VendorID:        vendorID,
		PointsPerDollar: rate,
		Tiers:           dbtypes.JSONList[models.LoyaltyTier](sortedTiers(tiers)),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "vendor_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"points_per_dollar", "tiers", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return Program{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: save loyalty program")
	}
	return Program{VendorID: vendorID, PointsPerDollar: rate, Tiers: []models.LoyaltyTier(row.Tiers)}, nil
}

func (s *ProgramStore) defaults(vendorID uuid.UUID) Program {
	return Program{
		VendorID:        vendorID,
		PointsPerDollar: s.defaultRate,
		Tiers:           sortedTiers(DefaultTiers),
		Default:         true,
	}
}

// validateTiers requires a zero-threshold entry tier and strictly increasing
// thresholds and levels.
func validateTiers(tiers []models.LoyaltyTier) error {
	if len(tiers) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one tier is required")
	}
	sorted := sortedTiers(tiers)
	if sorted[0].Threshold != 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "the first tier must start at 0 points")
	}
	for i, t := range sorted {
		if t.Name == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "tier name is required")
		}
		if i == 0 {
			continue
		}
		prev := sorted[i-1]
		if t.Threshold <= prev.Threshold || t.Level <= prev.Level {
			return pkgerrors.New(pkgerrors.CodeValidation, "tier thresholds and levels must strictly increase").
				WithDetails(map[string]any{"tier": t.Name})
		}
	}
	return nil
}

func sortedTiers(in []models.LoyaltyTier) []models.LoyaltyTier {
	out := make([]models.LoyaltyTier, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Threshold < out[j].Threshold })
	return out
}
