package buf

import (
	"errors"
	"math"
	"testing"
)

func TestAddOverflowSafe(t *testing.T) {
	if sum, ok := AddOverflowSafe(10, 5); !ok || sum != 15 {
		t.Fatalf("AddOverflowSafe(10,5)=%d,%v want 15,true", sum, ok)
	}
	if _, ok := AddOverflowSafe(math.MaxInt, 1); ok {
		t.Fatalf("expected overflow when adding to MaxInt")
	}
	if _, ok := AddOverflowSafe(math.MinInt, -1); ok {
		t.Fatalf("expected underflow when subtracting from MinInt")
	}
}

func TestSliceAndHas(t *testing.T) {
	data := []byte{0, 1, 2, 3, 4}
	if got, ok := Slice(data, 1, 3); !ok || len(got) != 3 || got[0] != 1 || got[2] != 3 {
		t.Fatalf("Slice returned unexpected result: %v, %v", got, ok)
	}
	if _, ok := Slice(data, 4, 2); ok {
		t.Fatalf("Slice should fail when extending beyond len")
	}
	if Has(data, 2, 4) {
		t.Fatalf("Has should be false for out-of-bounds range")
	}
	if !Has(data, 2, 1) {
		t.Fatalf("Has should be true for valid range")
	}

	if _, ok := Slice(data, -1, 1); ok {
		t.Fatalf("Slice should reject negative offset")
	}
	if _, ok := Slice(data, 1, -1); ok {
		t.Fatalf("Slice should reject negative length")
	}
}

func TestMulOverflowSafe(t *testing.T) {
	if got, ok := MulOverflowSafe(12, 8); !ok || got != 96 {
		t.Fatalf("MulOverflowSafe(12,8)=%d,%v want 96,true", got, ok)
	}
	if _, ok := MulOverflowSafe(math.MaxInt/2+1, 2); ok {
		t.Fatalf("expected overflow for MaxInt/2+1 * 2")
	}
	if got, ok := MulOverflowSafe(0, math.MaxInt); !ok || got != 0 {
		t.Fatalf("zero operand should never overflow")
	}
	if _, ok := MulOverflowSafe(-1, 8); ok {
		t.Fatalf("negative count must be rejected")
	}
}

func TestCheckListBounds(t *testing.T) {
	end, err := CheckListBounds(64, 16, 4, 8)
	if err != nil || end != 48 {
		t.Fatalf("CheckListBounds=%d,%v want 48,nil", end, err)
	}
	if _, err := CheckListBounds(64, 16, 8, 8); !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("expected bounds error when list runs past buffer, got %v", err)
	}
	if _, err := CheckListBounds(64, -1, 1, 8); !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("expected error for negative offset, got %v", err)
	}
	if _, err := CheckListBounds(64, 0, math.MaxInt, 8); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected overflow error, got %v", err)
	}
}
