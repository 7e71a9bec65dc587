package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/canopyhq/canopy-backend/api/middleware"
	"github.com/canopyhq/canopy-backend/api/responses"
	"github.com/canopyhq/canopy-backend/api/validators"
	"github.com/canopyhq/canopy-backend/internal/purchaseorders"
	"github.com/canopyhq/canopy-backend/pkg/enums"
	pkgerrors "github.com/canopyhq/canopy-backend/pkg/errors"
	"github.com/canopyhq/canopy-backend/pkg/logger"
	"github.com/canopyhq/canopy-backend/pkg/pagination"
	"github.com/canopyhq/canopy-backend/pkg/types"
)

const (
	poActionCreate  = "create"
	poActionReceive = "receive"
)

// purchaseOrderRequest carries both supported actions; which fields are
// required depends on Action.
type purchaseOrderRequest struct {
	Action               string                       `json:"action" validate:"required,oneof=create receive"`
	VendorID             *uuid.UUID                   `json:"vendor_id"`
	POType               enums.POType                 `json:"po_type"`
	SupplierID           *uuid.UUID                   `json:"supplier_id"`
	ExpectedDeliveryDate *types.Date                  `json:"expected_delivery_date"`
	Notes                *string                      `json:"notes"`
	Items                []purchaseorders.POLineInput `json:"items"`
	PurchaseOrderID      *uuid.UUID                   `json:"purchase_order_id"`
	LocationID           *uuid.UUID                   `json:"location_id"`
}

type purchaseOrderCreatedResponse struct {
	Success            bool                     `json:"success"`
	Data               purchaseOrderCreatedData `json:"data"`
	NewProductsCreated int                      `json:"new_products_created"`
}

type purchaseOrderCreatedData struct {
	ID       uuid.UUID       `json:"id"`
	PONumber string          `json:"po_number"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Status   enums.POStatus  `json:"status"`
}

// PurchaseOrderAction dispatches the create and receive actions posted to
// the purchase order collection.
func PurchaseOrderAction(svc purchaseorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "purchase order service unavailable"))
			return
		}

		vendorID, ok := middleware.VendorIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "x-vendor-id header required"))
			return
		}

		var req purchaseOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if req.VendorID != nil && *req.VendorID != vendorID {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "vendor mismatch"))
			return
		}

		switch req.Action {
		case poActionCreate:
			createPurchaseOrder(w, r, svc, logg, vendorID, req)
		case poActionReceive:
			receivePurchaseOrder(w, r, svc, logg, vendorID, req)
		}
	}
}

func createPurchaseOrder(w http.ResponseWriter, r *http.Request, svc purchaseorders.Service, logg *logger.Logger, vendorID uuid.UUID, req purchaseOrderRequest) {
	input := purchaseorders.CreatePOInput{
		VendorID:             vendorID,
		POType:               req.POType,
		ExpectedDeliveryDate: req.ExpectedDeliveryDate.Ptr(),
		Notes:                req.Notes,
		Items:                req.Items,
	}
	if req.SupplierID != nil {
		input.SupplierID = *req.SupplierID
	}
	if err := validators.ValidateStruct(&input); err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}

	result, err := svc.CreatePO(r.Context(), input)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}

	responses.WriteJSON(w, http.StatusCreated, purchaseOrderCreatedResponse{
		Success: true,
		Data: purchaseOrderCreatedData{
			ID:       result.PurchaseOrder.ID,
			PONumber: result.PONumber,
			Subtotal: result.Subtotal,
			Status:   result.PurchaseOrder.Status,
		},
		NewProductsCreated: result.NewProductsCreated,
	})
}

func receivePurchaseOrder(w http.ResponseWriter, r *http.Request, svc purchaseorders.Service, logg *logger.Logger, vendorID uuid.UUID, req purchaseOrderRequest) {
	input := purchaseorders.ReceivePOInput{VendorID: vendorID}
	if req.PurchaseOrderID != nil {
		input.PurchaseOrderID = *req.PurchaseOrderID
	}
	if req.LocationID != nil {
		input.LocationID = *req.LocationID
	}
	if err := validators.ValidateStruct(&input); err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}

	po, err := svc.ReceivePO(r.Context(), input)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	responses.WriteSuccess(w, po)
}

func PurchaseOrderList(svc purchaseorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "purchase order service unavailable"))
			return
		}

		vendorID, ok := middleware.VendorIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "x-vendor-id header required"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		filter := purchaseorders.ListFilter{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParsePOStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
				return
			}
			filter.Status = &status
		}

		page, err := svc.ListPOs(r.Context(), vendorID, filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

func PurchaseOrderGet(svc purchaseorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "purchase order service unavailable"))
			return
		}

		vendorID, ok := middleware.VendorIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "x-vendor-id header required"))
			return
		}

		poID, err := validators.ParseUUIDParam(r, "poID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		po, err := svc.GetPO(r.Context(), vendorID, poID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, po)
	}
}
