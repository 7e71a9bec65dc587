package types

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDateAcceptsCalendarAndTimestamp(t *testing.T) {
	var payload struct {
		A *Date `json:"a"`
		B *Date `json:"b"`
		C *Date `json:"c"`
	}
	if err := json.Unmarshal([]byte(`{"a":"2026-03-10","b":"2026-03-10T15:04:05-07:00","c":null}`), &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got := payload.A.Ptr(); got == nil || !got.Equal(time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected calendar date %v", got)
	}
	if got := payload.B.Ptr(); got == nil || got.Hour() != 22 {
		t.Fatalf("expected UTC normalised timestamp, got %v", got)
	}
	if payload.C.Ptr() != nil {
		t.Fatalf("expected nil for null date")
	}
}

func TestDateRejectsGarbage(t *testing.T) {
	var d Date
	if err := json.Unmarshal([]byte(`"next tuesday"`), &d); err == nil {
		t.Fatalf("expected parse error")
	}
}
