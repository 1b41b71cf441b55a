package inventory

import "claimstore.ai/internal/ledger"

// Set holds one player's inventories keyed by class.
type Set map[string]*Inventory

// Containers returns the inventories in SpendOrder. Missing classes are nil
// entries, which the ledger treats as empty.
func (s Set) Containers() []ledger.Container {
	out := make([]ledger.Container, 0, len(SpendOrder))
	for _, class := range SpendOrder {
		inv := s[class]
		if inv == nil {
			out = append(out, nil)
			continue
		}
		out = append(out, inv)
	}
	return out
}

// SlotUpdate is one written slot after a purchase.
type SlotUpdate struct {
	Class string
	Slot  int
	Stack ledger.Stack
}

// Updates lists every dirty slot, ordered by SpendOrder and then slot index.
func (s Set) Updates() []SlotUpdate {
	var out []SlotUpdate
	for _, class := range SpendOrder {
		inv := s[class]
		if inv == nil {
			continue
		}
		for _, i := range inv.DirtySlots() {
			st, _ := inv.Stack(i)
			out = append(out, SlotUpdate{Class: class, Slot: i, Stack: st})
		}
	}
	return out
}
