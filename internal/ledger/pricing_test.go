package ledger

import (
	"errors"
	"math"
	"testing"
)

func TestPricingRules(t *testing.T) {
	cases := []struct {
		kind PricingKind
		qty  int
		unit UnitConfig
		want int
	}{
		{PricingBatch, 12000, UnitConfig{BlocksPerUnit: 5000, PricePerUnit: 3}, 8},
		{PricingBatch, 10000, UnitConfig{BlocksPerUnit: 5000, PricePerUnit: 3}, 6},
		{PricingBatch, 1, UnitConfig{BlocksPerUnit: 5000, PricePerUnit: 3}, 1},
		{PricingBatch, 100, UnitConfig{BlocksPerUnit: 5000, PricePerUnit: 0}, 0},
		{PricingWholeBatch, 12000, UnitConfig{BlocksPerUnit: 5000, PricePerUnit: 3}, 9},
		{PricingWholeBatch, 5000, UnitConfig{BlocksPerUnit: 5000, PricePerUnit: 3}, 3},
		{PricingWholeBatch, 5001, UnitConfig{BlocksPerUnit: 5000, PricePerUnit: 3}, 6},
		{PricingLinear, 4, UnitConfig{PricePerUnit: 20}, 80},
		{PricingLinear, 3, UnitConfig{PricePerUnit: 0}, 0},
	}
	for _, tc := range cases {
		rule, err := RuleFor(tc.kind)
		if err != nil {
			t.Fatalf("RuleFor(%s): %v", tc.kind, err)
		}
		got, err := rule(tc.qty, tc.unit)
		if err != nil {
			t.Fatalf("%s(%d): %v", tc.kind, tc.qty, err)
		}
		if got != tc.want {
			t.Fatalf("%s(%d, %+v): expected %d, got %d", tc.kind, tc.qty, tc.unit, tc.want, got)
		}
	}
}

func TestPricingRules_Monotonic(t *testing.T) {
	unit := UnitConfig{BlocksPerUnit: 7, PricePerUnit: 3}
	for _, kind := range []PricingKind{PricingBatch, PricingWholeBatch, PricingLinear} {
		rule, _ := RuleFor(kind)
		prev := 0
		for qty := 1; qty <= 200; qty++ {
			got, err := rule(qty, unit)
			if err != nil {
				t.Fatalf("%s(%d): %v", kind, qty, err)
			}
			if got < prev {
				t.Fatalf("%s not monotonic at %d: %d < %d", kind, qty, got, prev)
			}
			prev = got
		}
	}
}

func TestPricingRules_BadConfig(t *testing.T) {
	if _, err := BatchPricing(10, UnitConfig{BlocksPerUnit: 0, PricePerUnit: 3}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for zero batch size, got %v", err)
	}
	if _, err := LinearPricing(10, UnitConfig{PricePerUnit: -1}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for negative price, got %v", err)
	}
	if _, err := LinearPricing(math.MaxInt/2, UnitConfig{PricePerUnit: 3}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected overflow to be rejected, got %v", err)
	}
	if _, err := RuleFor("auction"); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected unknown kind rejected, got %v", err)
	}
}
