package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/canopyhq/canopy-backend/api/responses"
	pkgerrors "github.com/canopyhq/canopy-backend/pkg/errors"
	"github.com/canopyhq/canopy-backend/pkg/logger"
)

const VendorIDHeader = "X-Vendor-Id"

// VendorContext requires the x-vendor-id header and stores the parsed vendor
// on the request context. A bearer-authenticated vendor may only act as itself.
func VendorContext(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get(VendorIDHeader))
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "x-vendor-id header required"))
				return
			}
			vendorID, err := uuid.Parse(raw)
			if err != nil || vendorID == uuid.Nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "x-vendor-id must be a valid uuid"))
				return
			}
			if existing, ok := VendorIDFromContext(r.Context()); ok && existing != vendorID {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "vendor mismatch"))
				return
			}

			ctx := WithVendorID(r.Context(), vendorID)
			if logg != nil {
				ctx = logg.WithVendorID(ctx, vendorID.String())
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
