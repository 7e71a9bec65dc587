package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/canopyhq/canopy-backend/api/middleware"
	"github.com/canopyhq/canopy-backend/api/responses"
	"github.com/canopyhq/canopy-backend/api/validators"
	"github.com/canopyhq/canopy-backend/internal/pricing"
	pkgerrors "github.com/canopyhq/canopy-backend/pkg/errors"
	"github.com/canopyhq/canopy-backend/pkg/logger"
)

const maxQuoteQuantity = 1_000_000

type applyBlueprintRequest struct {
	BlueprintID uuid.UUID                  `json:"blueprint_id" validate:"required"`
	Prices      map[string]decimal.Decimal `json:"prices"`
}

// ProductApplyBlueprint snapshots a blueprint's breaks onto the product.
func ProductApplyBlueprint(svc pricing.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vendorID, ok := middleware.VendorIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "x-vendor-id header required"))
			return
		}
		productID, err := validators.ParseUUIDParam(r, "productID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req applyBlueprintRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		product, err := svc.Apply(r.Context(), vendorID, productID, pricing.ApplyInput{
			BlueprintID: req.BlueprintID,
			Prices:      req.Prices,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, product)
	}
}

// ProductPrice resolves the unit price for ?quantity= or ?break_id=.
func ProductPrice(svc pricing.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vendorID, ok := middleware.VendorIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "x-vendor-id header required"))
			return
		}
		productID, err := validators.ParseUUIDParam(r, "productID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sel := pricing.Selection{BreakID: strings.TrimSpace(r.URL.Query().Get("break_id"))}
		if sel.Quantity, err = validators.ParseQueryInt(r, "quantity", 0, 1, maxQuoteQuantity); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if sel.Quantity == 0 {
			if sel.BreakID == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "quantity or break_id is required"))
				return
			}
			sel.Quantity = 1
		}

		quote, err := svc.QuoteProduct(r.Context(), vendorID, productID, sel)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, quote)
	}
}
