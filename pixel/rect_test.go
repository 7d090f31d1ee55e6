package pixel

import (
	"encoding/binary"
	"testing"
)

func Test_Rect_Area(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		r    Rect
		want int64
	}{
		{"normal", RectFromSize(0, 0, 256, 256), 65536},
		{"zero width", NewRect(10, 10, 10, 20), 0},
		{"zero height", NewRect(10, 10, 20, 10), 0},
		{"negative (degenerate)", NewRect(10, 10, 5, 5), 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := tc.r.Area(); got != tc.want {
				t.Fatalf("Area() = %d, want %d", got, tc.want)
			}
		})
	}
}

func Test_Rect_Empty(t *testing.T) {
	t.Parallel()

	if !(NewRect(0, 0, 0, 0).Empty()) {
		t.Fatalf("zero rect should be empty")
	}

	if RectFromSize(0, 0, 10, 10).Empty() {
		t.Fatalf("10x10 rect should not be empty")
	}
}

func Test_Rect_Contains(t *testing.T) {
	t.Parallel()

	bounds := RectFromSize(10, 20, 190, 80)
	inner := NewRect(10, 20, 74, 36)

	if !bounds.Contains(inner) {
		t.Fatalf("bounds should contain inner")
	}

	outside := NewRect(5, 20, 74, 36)
	if bounds.Contains(outside) {
		t.Fatalf("bounds should not contain a rect that starts before it")
	}
}

func Test_Rect_Intersect(t *testing.T) {
	t.Parallel()

	a := RectFromSize(0, 0, 100, 100)
	b := RectFromSize(50, 50, 100, 100)

	got := a.Intersect(b)
	want := NewRect(50, 50, 100, 100)
	if got != want {
		t.Fatalf("Intersect = %+v, want %+v", got, want)
	}

	disjoint := a.Intersect(RectFromSize(200, 200, 10, 10))
	if !disjoint.Empty() {
		t.Fatalf("disjoint intersection should be empty, got %+v", disjoint)
	}
}

func Test_Hash_CacheID_Truncates_First_Eight_Bytes(t *testing.T) {
	t.Parallel()

	var h Hash
	for i := range h {
		h[i] = byte(i + 1)
	}

	want := CacheID(binary.BigEndian.Uint64(h[:8]))
	if got := h.CacheID(); got != want {
		t.Fatalf("CacheID() = %x, want %x", got, want)
	}
}

func Test_Hash_IsZero(t *testing.T) {
	t.Parallel()

	var zero Hash
	if !zero.IsZero() {
		t.Fatalf("zero-value Hash should be IsZero")
	}

	nonZero := Hash{1}
	if nonZero.IsZero() {
		t.Fatalf("non-zero Hash should not be IsZero")
	}
}

func Test_Format_BytesPerPixel(t *testing.T) {
	t.Parallel()

	f := Format{BitsPerPixel: 32}
	if got := f.BytesPerPixel(); got != 4 {
		t.Fatalf("BytesPerPixel() = %d, want 4", got)
	}
}
