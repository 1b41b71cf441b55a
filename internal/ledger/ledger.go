// Package ledger decides whether a priced purchase is affordable and, if it is,
// deducts the currency item from the buyer's containers exactly once.
//
// A Ledger holds no state between calls. Containers are mutated in place during
// Charge and are not retained afterwards; callers must serialize purchases that
// touch the same containers.
package ledger

import (
	"errors"
	"fmt"
)

var ErrInvalidArgument = errors.New("invalid argument")

// Stack is one slot's content. Count <= 0 means the slot is empty.
type Stack struct {
	Item  string
	Count int
}

func (s Stack) Empty() bool { return s.Item == "" || s.Count <= 0 }

// Container is an ordered run of slots owned by a single player.
// SetStack with an empty stack clears the slot.
type Container interface {
	SlotCount() int
	Stack(i int) (Stack, bool)
	SetStack(i int, s Stack)
}

// Result is the outcome of a Charge or Purchase.
type Result struct {
	Success   bool
	Charged   int
	Available int
	// Cost is the amount that was asked for, charged or not.
	Cost int
}

type Ledger struct {
	item string
}

// New returns a ledger that spends stacks whose item code equals item.
func New(item string) *Ledger {
	return &Ledger{item: item}
}

func (l *Ledger) Item() string { return l.item }

// Quote prices qty units with rule. qty must be positive.
func (l *Ledger) Quote(qty int, rule PricingRule, unit UnitConfig) (int, error) {
	if qty <= 0 {
		return 0, fmt.Errorf("%w: quantity must be > 0, got %d", ErrInvalidArgument, qty)
	}
	if rule == nil {
		return 0, fmt.Errorf("%w: nil pricing rule", ErrInvalidArgument)
	}
	return rule(qty, unit)
}

// Available totals the matching stacks across containers. Nil containers count as empty.
func (l *Ledger) Available(containers []Container) int {
	total := 0
	for _, c := range containers {
		if c == nil {
			continue
		}
		for i := 0; i < c.SlotCount(); i++ {
			if s, ok := c.Stack(i); ok && l.matches(s) {
				total += s.Count
			}
		}
	}
	return total
}

// Charge removes amount matching units, or nothing at all.
func (l *Ledger) Charge(containers []Container, amount int) (Result, error) {
	if amount < 0 {
		return Result{}, fmt.Errorf("%w: charge amount must be >= 0, got %d", ErrInvalidArgument, amount)
	}
	if amount == 0 {
		return Result{Success: true, Available: l.Available(containers)}, nil
	}

	available := l.Available(containers)
	if available < amount {
		return Result{Available: available, Cost: amount}, nil
	}

	// Availability is verified above; the loop cannot run short.
	remaining := amount
	for _, c := range containers {
		if c == nil {
			continue
		}
		for i := 0; i < c.SlotCount() && remaining > 0; i++ {
			s, ok := c.Stack(i)
			if !ok || !l.matches(s) {
				continue
			}
			take := min(s.Count, remaining)
			s.Count -= take
			remaining -= take
			if s.Count <= 0 {
				s = Stack{}
			}
			c.SetStack(i, s)
		}
		if remaining == 0 {
			break
		}
	}

	return Result{Success: true, Charged: amount, Available: available, Cost: amount}, nil
}

// Purchase quotes qty and charges the quoted cost.
func (l *Ledger) Purchase(containers []Container, qty int, rule PricingRule, unit UnitConfig) (Result, error) {
	cost, err := l.Quote(qty, rule, unit)
	if err != nil {
		return Result{}, err
	}
	return l.Charge(containers, cost)
}

func (l *Ledger) matches(s Stack) bool {
	return !s.Empty() && s.Item == l.item
}
