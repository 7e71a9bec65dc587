package responses

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	pkgerrors "github.com/canopyhq/canopy-backend/pkg/errors"
	"github.com/canopyhq/canopy-backend/pkg/logger"
)

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body
}

func TestWriteSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccessStatus(w, http.StatusCreated, map[string]string{"hello": "world"})

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
	body := decode(t, w)
	if body["success"] != true {
		t.Fatalf("expected success flag, got %v", body)
	}
	if body["data"].(map[string]any)["hello"] != "world" {
		t.Fatalf("unexpected payload %v", body["data"])
	}
}

func TestWriteErrorEnvelope(t *testing.T) {
	w := httptest.NewRecorder()
	err := pkgerrors.New(pkgerrors.CodeInsufficientInventory, "insufficient inventory for item 2").
		WithDetails(map[string]any{"item": 2, "requested": 3, "available": 1})
	WriteError(context.Background(), nil, w, fmt.Errorf("create sale: %w", err))

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
	body := decode(t, w)
	if body["success"] != false {
		t.Fatalf("expected success=false, got %v", body["success"])
	}
	if body["code"] != "INSUFFICIENT_INVENTORY" {
		t.Fatalf("unexpected code %v", body["code"])
	}
	if body["error"] != "insufficient inventory for item 2" {
		t.Fatalf("unexpected message %v", body["error"])
	}
	details := body["details"].(map[string]any)
	if details["available"] != float64(1) {
		t.Fatalf("unexpected details %v", details)
	}
}

func TestWriteErrorHidesInternals(t *testing.T) {
	w := httptest.NewRecorder()
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	WriteError(context.Background(), logg, w, errors.New("pq: relation \"orders\" does not exist"))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	body := decode(t, w)
	if body["error"] != "internal server error" {
		t.Fatalf("leaked internal message: %v", body["error"])
	}
	if _, ok := body["details"]; ok {
		t.Fatalf("details must be omitted for internal errors")
	}
}

func TestWriteErrorDropsDetailsForNotFound(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(context.Background(), nil, w, pkgerrors.New(pkgerrors.CodeNotFound, "order not found").WithDetails(map[string]any{"id": "x"}))

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	body := decode(t, w)
	if body["error"] != "order not found" {
		t.Fatalf("unexpected message %v", body["error"])
	}
	if _, ok := body["details"]; ok {
		t.Fatalf("details must be omitted for not found")
	}
}
