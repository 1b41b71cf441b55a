package ledger

import (
	"errors"
	"testing"
)

const gear = "gear-rusty"

type slots []Stack

func (s slots) SlotCount() int { return len(s) }

func (s slots) Stack(i int) (Stack, bool) {
	if i < 0 || i >= len(s) || s[i].Empty() {
		return Stack{}, false
	}
	return s[i], true
}

func (s slots) SetStack(i int, st Stack) {
	if st.Empty() {
		st = Stack{}
	}
	s[i] = st
}

func scenario() (slots, slots) {
	a := slots{{Item: gear, Count: 5}, {}}
	b := slots{{Item: "flint", Count: 2}, {Item: gear, Count: 10}}
	return a, b
}

func TestQuote_BatchRoundsUp(t *testing.T) {
	l := New(gear)
	cost, err := l.Quote(12000, BatchPricing, UnitConfig{BlocksPerUnit: 5000, PricePerUnit: 3})
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if cost != 8 {
		t.Fatalf("expected cost 8, got %d", cost)
	}
}

func TestQuote_Linear(t *testing.T) {
	l := New(gear)
	cost, err := l.Quote(4, LinearPricing, UnitConfig{PricePerUnit: 20})
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if cost != 80 {
		t.Fatalf("expected cost 80, got %d", cost)
	}
}

func TestQuote_RejectsNonPositiveQuantity(t *testing.T) {
	l := New(gear)
	for _, qty := range []int{0, -1, -5000} {
		if _, err := l.Quote(qty, LinearPricing, UnitConfig{PricePerUnit: 1}); !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("qty=%d: expected ErrInvalidArgument, got %v", qty, err)
		}
	}
}

func TestAvailable_IgnoresOrderAndNil(t *testing.T) {
	l := New(gear)
	a, b := scenario()
	if got := l.Available([]Container{a, b}); got != 15 {
		t.Fatalf("expected 15, got %d", got)
	}
	if got := l.Available([]Container{b, nil, a}); got != 15 {
		t.Fatalf("expected 15 in reverse order, got %d", got)
	}
	if got := l.Available(nil); got != 0 {
		t.Fatalf("expected 0 for no containers, got %d", got)
	}
	if a[0].Count != 5 || b[1].Count != 10 {
		t.Fatalf("Available mutated containers: %#v %#v", a, b)
	}
}

func TestCharge_DeductsInContainerThenSlotOrder(t *testing.T) {
	l := New(gear)
	a, b := scenario()
	res, err := l.Charge([]Container{a, b}, 12)
	if err != nil {
		t.Fatalf("Charge: %v", err)
	}
	if !res.Success || res.Charged != 12 || res.Available != 15 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if !a[0].Empty() || a[0] != (Stack{}) {
		t.Fatalf("expected slot A0 cleared, got %+v", a[0])
	}
	if b[1].Count != 3 {
		t.Fatalf("expected 3 left in B1, got %+v", b[1])
	}
	if b[0] != (Stack{Item: "flint", Count: 2}) {
		t.Fatalf("non-matching stack touched: %+v", b[0])
	}
}

func TestCharge_InsufficientLeavesContainersUnchanged(t *testing.T) {
	l := New(gear)
	a, b := scenario()
	res, err := l.Charge([]Container{a, b}, 20)
	if err != nil {
		t.Fatalf("Charge: %v", err)
	}
	if res.Success || res.Charged != 0 || res.Available != 15 || res.Cost != 20 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if a[0].Count != 5 || b[1].Count != 10 {
		t.Fatalf("failed charge mutated containers: %#v %#v", a, b)
	}
}

type countingContainer struct {
	slots
	sets int
}

func (c *countingContainer) SetStack(i int, st Stack) {
	c.sets++
	c.slots.SetStack(i, st)
}

func TestCharge_ZeroNeverMutates(t *testing.T) {
	l := New(gear)
	c := &countingContainer{slots: slots{{Item: gear, Count: 1}}}
	res, err := l.Charge([]Container{c}, 0)
	if err != nil {
		t.Fatalf("Charge: %v", err)
	}
	if !res.Success || res.Charged != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if c.sets != 0 {
		t.Fatalf("expected no SetStack calls, got %d", c.sets)
	}

	res, err = l.Charge(nil, 0)
	if err != nil || !res.Success {
		t.Fatalf("zero charge on no containers: %+v %v", res, err)
	}
}

func TestCharge_StopsOnceSatisfied(t *testing.T) {
	l := New(gear)
	first := &countingContainer{slots: slots{{Item: gear, Count: 4}, {Item: gear, Count: 4}}}
	second := &countingContainer{slots: slots{{Item: gear, Count: 4}}}
	if _, err := l.Charge([]Container{first, second}, 4); err != nil {
		t.Fatalf("Charge: %v", err)
	}
	if first.sets != 1 || second.sets != 0 {
		t.Fatalf("expected a single write, got first=%d second=%d", first.sets, second.sets)
	}
	if first.slots[1].Count != 4 || second.slots[0].Count != 4 {
		t.Fatalf("later slots touched: %#v %#v", first.slots, second.slots)
	}
}

func TestCharge_RejectsNegative(t *testing.T) {
	l := New(gear)
	a, _ := scenario()
	if _, err := l.Charge([]Container{a}, -1); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if a[0].Count != 5 {
		t.Fatalf("rejected charge mutated container")
	}
}

func TestPurchase_SequenceConservesTotal(t *testing.T) {
	l := New(gear)
	a := slots{{Item: gear, Count: 64}, {Item: gear, Count: 7}, {}}
	b := slots{{Item: gear, Count: 30}}
	containers := []Container{a, b}
	unit := UnitConfig{BlocksPerUnit: 5000, PricePerUnit: 3}

	before := l.Available(containers)
	charged := 0
	for _, qty := range []int{12000, 1, 5000, 100000, 4999} {
		res, err := l.Purchase(containers, qty, BatchPricing, unit)
		if err != nil {
			t.Fatalf("Purchase(%d): %v", qty, err)
		}
		if res.Success {
			charged += res.Charged
		}
		for _, c := range containers {
			for _, s := range c.(slots) {
				if s.Count < 0 {
					t.Fatalf("negative slot after purchase(%d): %#v", qty, c)
				}
			}
		}
	}
	after := l.Available(containers)
	if before-after != charged {
		t.Fatalf("removed %d, charged %d", before-after, charged)
	}
}

func TestPurchase_InvalidQuantityDoesNotCharge(t *testing.T) {
	l := New(gear)
	a, _ := scenario()
	if _, err := l.Purchase([]Container{a}, 0, LinearPricing, UnitConfig{PricePerUnit: 1}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if a[0].Count != 5 {
		t.Fatalf("rejected purchase mutated container")
	}
}
