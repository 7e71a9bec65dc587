package dbtypes

import "testing"

type sample struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestJSONListValueAndScan(t *testing.T) {
	list := JSONList[sample]{{Name: "a", Count: 1}, {Name: "b", Count: 2}}
	v, err := list.Value()
	if err != nil {
		t.Fatalf("value: %v", err)
	}

	var out JSONList[sample]
	if err := out.Scan([]byte(v.(string))); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(out) != 2 || out[1].Name != "b" || out[1].Count != 2 {
		t.Fatalf("unexpected scan result %+v", out)
	}
}

func TestJSONListNilHandling(t *testing.T) {
	var list JSONList[string]
	v, err := list.Value()
	if err != nil || v != "[]" {
		t.Fatalf("expected empty array literal, got %v (%v)", v, err)
	}
	if err := list.Scan(nil); err != nil || list == nil || len(list) != 0 {
		t.Fatalf("expected empty non-nil list, got %v (%v)", list, err)
	}
	if err := list.Scan(42); err == nil {
		t.Fatal("expected unsupported type error")
	}
}

func TestJSONListCloneDoesNotAlias(t *testing.T) {
	src := JSONList[string]{"flower", "edibles"}
	cp := src.Clone()
	cp[0] = "vapes"
	if src[0] != "flower" {
		t.Fatalf("clone aliased source: %v", src)
	}
}
