package cache

import (
	"path/filepath"
	"testing"
)

func TestLayoutOriginalPaths(t *testing.T) {
	layout := NewLayout("/data")
	item := NewOriginalItem("abc123", Size{Width: 10, Height: 10}, "jpeg")

	wantAbs := filepath.Join("/data", "pictures", "abc123.jpg")
	if got := layout.OriginalAbs(item); got != wantAbs {
		t.Errorf("OriginalAbs = %q, want %q", got, wantAbs)
	}

	wantRel := filepath.Join("pictures", "abc123.jpg")
	if got := layout.OriginalRel(item); got != wantRel {
		t.Errorf("OriginalRel = %q, want %q", got, wantRel)
	}
}

func TestLayoutDerivedPaths(t *testing.T) {
	layout := NewLayout("/data")
	derived := NewDerivedItem("abc123", Size{Width: 50, Height: 50}, "jpeg")

	wantAbs := filepath.Join("/data", "cache", "abc123-50x50.jpg")
	if got := layout.DerivedAbs(derived); got != wantAbs {
		t.Errorf("DerivedAbs = %q, want %q", got, wantAbs)
	}

	wantRel := filepath.Join("cache", "abc123-50x50.jpg")
	if got := layout.DerivedRel(derived); got != wantRel {
		t.Errorf("DerivedRel = %q, want %q", got, wantRel)
	}
}
