package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/canopyhq/canopy-backend/api/middleware"
	"github.com/canopyhq/canopy-backend/api/responses"
	"github.com/canopyhq/canopy-backend/api/validators"
	"github.com/canopyhq/canopy-backend/internal/loyalty"
	"github.com/canopyhq/canopy-backend/pkg/db/models"
	pkgerrors "github.com/canopyhq/canopy-backend/pkg/errors"
	"github.com/canopyhq/canopy-backend/pkg/logger"
)

// LoyaltyPrograms reads and overrides a vendor's accrual program.
type LoyaltyPrograms interface {
	Load(ctx context.Context, vendorID uuid.UUID) (loyalty.Program, error)
	Save(ctx context.Context, vendorID uuid.UUID, rate decimal.Decimal, tiers []models.LoyaltyTier) (loyalty.Program, error)
}

type loyaltyProgramRequest struct {
	PointsPerDollar decimal.Decimal      `json:"points_per_dollar"`
	Tiers           []models.LoyaltyTier `json:"tiers" validate:"required,min=1"`
}

// LoyaltyProgramGet returns the vendor's program, or the platform default
// flagged with is_default.
func LoyaltyProgramGet(store LoyaltyPrograms, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vendorID, ok := middleware.VendorIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "x-vendor-id header required"))
			return
		}
		program, err := store.Load(r.Context(), vendorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, program)
	}
}

func LoyaltyProgramPut(store LoyaltyPrograms, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vendorID, ok := middleware.VendorIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "x-vendor-id header required"))
			return
		}

		var req loyaltyProgramRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		program, err := store.Save(r.Context(), vendorID, req.PointsPerDollar, req.Tiers)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		logg.Info(logg.WithField(r.Context(), "tiers", len(program.Tiers)), "loyalty program saved")
		responses.WriteSuccess(w, program)
	}
}
