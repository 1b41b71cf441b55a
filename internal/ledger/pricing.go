package ledger

import (
	"fmt"
	"math"
)

// PricingKind selects one of the built-in pricing rules.
type PricingKind string

const (
	// PricingBatch charges PricePerUnit for every BlocksPerUnit requested,
	// rounding the fractional total up: ceil(qty / blocks * price).
	PricingBatch PricingKind = "batch"
	// PricingWholeBatch rounds the batch count up before multiplying:
	// ceil(qty / blocks) * price.
	PricingWholeBatch PricingKind = "whole_batch"
	// PricingLinear charges PricePerUnit per requested unit.
	PricingLinear PricingKind = "linear"
)

// UnitConfig is the unit price record a rule is evaluated against.
type UnitConfig struct {
	BlocksPerUnit int
	PricePerUnit  int
}

// PricingRule maps a requested quantity to a cost in currency units.
// Rules are pure and monotonic non-decreasing in qty.
type PricingRule func(qty int, unit UnitConfig) (int, error)

// RuleFor returns the rule for kind.
func RuleFor(kind PricingKind) (PricingRule, error) {
	switch kind {
	case PricingBatch:
		return BatchPricing, nil
	case PricingWholeBatch:
		return WholeBatchPricing, nil
	case PricingLinear:
		return LinearPricing, nil
	default:
		return nil, fmt.Errorf("%w: unknown pricing kind %q", ErrInvalidArgument, kind)
	}
}

// NeedsBatchSize reports whether kind reads UnitConfig.BlocksPerUnit.
func (k PricingKind) NeedsBatchSize() bool {
	return k == PricingBatch || k == PricingWholeBatch
}

func BatchPricing(qty int, unit UnitConfig) (int, error) {
	if err := checkUnit(qty, unit, true); err != nil {
		return 0, err
	}
	total, err := mul(qty, unit.PricePerUnit)
	if err != nil {
		return 0, err
	}
	if total == 0 {
		return 0, nil
	}
	return (total-1)/unit.BlocksPerUnit + 1, nil
}

func WholeBatchPricing(qty int, unit UnitConfig) (int, error) {
	if err := checkUnit(qty, unit, true); err != nil {
		return 0, err
	}
	if qty == 0 {
		return 0, nil
	}
	batches := (qty-1)/unit.BlocksPerUnit + 1
	return mul(batches, unit.PricePerUnit)
}

func LinearPricing(qty int, unit UnitConfig) (int, error) {
	if err := checkUnit(qty, unit, false); err != nil {
		return 0, err
	}
	return mul(qty, unit.PricePerUnit)
}

func checkUnit(qty int, unit UnitConfig, batch bool) error {
	if qty < 0 {
		return fmt.Errorf("%w: quantity %d", ErrInvalidArgument, qty)
	}
	if unit.PricePerUnit < 0 {
		return fmt.Errorf("%w: price_per_unit %d", ErrInvalidArgument, unit.PricePerUnit)
	}
	if batch && unit.BlocksPerUnit <= 0 {
		return fmt.Errorf("%w: blocks_per_unit %d", ErrInvalidArgument, unit.BlocksPerUnit)
	}
	return nil
}

func mul(a, b int) (int, error) {
	if a != 0 && b > math.MaxInt/a {
		return 0, fmt.Errorf("%w: cost overflows (%d x %d)", ErrInvalidArgument, a, b)
	}
	return a * b, nil
}
