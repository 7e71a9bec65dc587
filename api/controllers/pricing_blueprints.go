package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/canopyhq/canopy-backend/api/middleware"
	"github.com/canopyhq/canopy-backend/api/responses"
	"github.com/canopyhq/canopy-backend/api/validators"
	"github.com/canopyhq/canopy-backend/internal/pricing"
	"github.com/canopyhq/canopy-backend/pkg/db/models"
	"github.com/canopyhq/canopy-backend/pkg/enums"
	pkgerrors "github.com/canopyhq/canopy-backend/pkg/errors"
	"github.com/canopyhq/canopy-backend/pkg/logger"
)

// ScopeResolver decides who is acting on blueprints for a request.
type ScopeResolver func(r *http.Request) (pricing.Scope, error)

// VendorScopeResolver acts as the vendor named by x-vendor-id.
func VendorScopeResolver() ScopeResolver { return vendorScope }

func AdminScopeResolver() ScopeResolver { return adminScope }

func vendorScope(r *http.Request) (pricing.Scope, error) {
	vendorID, ok := middleware.VendorIDFromContext(r.Context())
	if !ok {
		return pricing.Scope{}, pkgerrors.New(pkgerrors.CodeValidation, "x-vendor-id header required")
	}
	return pricing.VendorScope(vendorID), nil
}

func adminScope(*http.Request) (pricing.Scope, error) {
	return pricing.AdminScope(), nil
}

type blueprintRequest struct {
	ID                     *uuid.UUID          `json:"id"`
	VendorID               *uuid.UUID          `json:"vendor_id"`
	Name                   string              `json:"name" validate:"required,max=200"`
	Slug                   string              `json:"slug" validate:"required,max=120"`
	Description            *string             `json:"description" validate:"omitempty,max=2000"`
	TierType               enums.TierType      `json:"tier_type" validate:"required"`
	PriceBreaks            []models.PriceBreak `json:"price_breaks" validate:"required,min=1"`
	ApplicableToCategories []string            `json:"applicable_to_categories"`
	IsActive               *bool               `json:"is_active"`
	IsDefault              bool                `json:"is_default"`
}

func (b blueprintRequest) toInput(scope pricing.Scope) (pricing.BlueprintInput, error) {
	input := pricing.BlueprintInput{
		Name:                   b.Name,
		Slug:                   b.Slug,
		Description:            b.Description,
		TierType:               b.TierType,
		PriceBreaks:            b.PriceBreaks,
		ApplicableToCategories: b.ApplicableToCategories,
		IsActive:               true,
		IsDefault:              b.IsDefault,
	}
	if b.IsActive != nil {
		input.IsActive = *b.IsActive
	}
	if scope.Admin {
		input.VendorID = b.VendorID
		return input, nil
	}
	if b.VendorID != nil && *b.VendorID != *scope.VendorID {
		return input, pkgerrors.New(pkgerrors.CodeForbidden, "vendor mismatch")
	}
	input.VendorID = scope.VendorID
	return input, nil
}

func BlueprintList(svc pricing.Service, scopeOf ScopeResolver, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scope, err := scopeOf(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		filter, err := parseBlueprintFilter(r, scope)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := svc.List(r.Context(), scope, filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if rows == nil {
			rows = []models.PricingBlueprint{}
		}
		responses.WriteSuccess(w, rows)
	}
}

func BlueprintGet(svc pricing.Service, scopeOf ScopeResolver, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scope, err := scopeOf(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := validators.ParseUUIDParam(r, "blueprintID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		bp, err := svc.Get(r.Context(), scope, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, bp)
	}
}

func BlueprintCreate(svc pricing.Service, scopeOf ScopeResolver, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scope, err := scopeOf(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req blueprintRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := req.toInput(scope)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		bp, err := svc.Create(r.Context(), scope, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, bp)
	}
}

// BlueprintUpdate replaces a blueprint; the id travels in the body.
func BlueprintUpdate(svc pricing.Service, scopeOf ScopeResolver, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scope, err := scopeOf(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req blueprintRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if req.ID == nil || *req.ID == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "id is required").WithDetails(map[string]any{"field": "id"}))
			return
		}
		input, err := req.toInput(scope)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		bp, err := svc.Update(r.Context(), scope, *req.ID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, bp)
	}
}

// BlueprintDelete removes the blueprint named by ?id=.
func BlueprintDelete(svc pricing.Service, scopeOf ScopeResolver, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scope, err := scopeOf(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := validators.ParseQueryUUID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if id == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "id query parameter is required").WithDetails(map[string]any{"field": "id"}))
			return
		}

		if err := svc.Delete(r.Context(), scope, *id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"id": *id, "deleted": true})
	}
}

func parseBlueprintFilter(r *http.Request, scope pricing.Scope) (pricing.ListFilter, error) {
	q := r.URL.Query()
	filter := pricing.ListFilter{Category: strings.TrimSpace(q.Get("category"))}

	if raw := strings.TrimSpace(q.Get("tier_type")); raw != "" {
		tier, err := enums.ParseTierType(raw)
		if err != nil {
			return filter, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid tier_type")
		}
		filter.TierType = &tier
	}

	activeOnly, err := validators.ParseQueryBool(r, "active_only", false)
	if err != nil {
		return filter, err
	}
	filter.ActiveOnly = activeOnly

	if !scope.Admin {
		return filter, nil
	}
	if filter.VendorID, err = validators.ParseQueryUUID(r, "vendor_id"); err != nil {
		return filter, err
	}
	if filter.GlobalOnly, err = validators.ParseQueryBool(r, "global_only", false); err != nil {
		return filter, err
	}
	return filter, nil
}
