package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/canopyhq/canopy-backend/api/middleware"
	"github.com/canopyhq/canopy-backend/api/responses"
	"github.com/canopyhq/canopy-backend/api/validators"
	"github.com/canopyhq/canopy-backend/internal/sales"
	pkgerrors "github.com/canopyhq/canopy-backend/pkg/errors"
	"github.com/canopyhq/canopy-backend/pkg/logger"
)

// SaleCreate runs a register sale. A supplied x-vendor-id header must match
// the vendor in the body.
func SaleCreate(svc sales.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sales service unavailable"))
			return
		}

		var input sales.CreateSaleInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := matchHeaderVendor(r, input.VendorID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CreateSale(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteJSON(w, http.StatusCreated, result)
	}
}

func SaleGet(svc sales.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sales service unavailable"))
			return
		}

		vendorID, ok := middleware.VendorIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "x-vendor-id header required"))
			return
		}

		order, err := svc.GetOrder(r.Context(), vendorID, chi.URLParam(r, "orderNumber"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, order)
	}
}

func matchHeaderVendor(r *http.Request, vendorID uuid.UUID) error {
	raw := strings.TrimSpace(r.Header.Get(middleware.VendorIDHeader))
	if raw == "" {
		if ctxVendor, ok := middleware.VendorIDFromContext(r.Context()); ok && ctxVendor != vendorID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "vendor mismatch")
		}
		return nil
	}
	headerVendor, err := uuid.Parse(raw)
	if err != nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "x-vendor-id must be a valid uuid")
	}
	if headerVendor != vendorID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "vendor mismatch")
	}
	return nil
}
