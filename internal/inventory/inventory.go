package inventory

import (
	"fmt"
	"sort"

	"claimstore.ai/internal/ledger"
)

// Inventory class names as the host reports them.
const (
	ClassCharacter = "character"
	ClassHotbar    = "hotbar"
	ClassBackpack  = "backpack"
)

// SpendOrder is the order purchases draw currency from a player's inventories.
var SpendOrder = []string{ClassCharacter, ClassHotbar, ClassBackpack}

// Inventory is a fixed-size run of slots. It implements ledger.Container and
// remembers which slots were written so the host can be told what to sync.
type Inventory struct {
	Class string

	slots []ledger.Stack
	dirty map[int]bool
}

func New(class string, size int) *Inventory {
	if size < 0 {
		size = 0
	}
	return &Inventory{
		Class: class,
		slots: make([]ledger.Stack, size),
	}
}

// Put loads a slot without marking it dirty. Used when building an inventory
// from a host snapshot.
func (inv *Inventory) Put(i int, s ledger.Stack) error {
	if i < 0 || i >= len(inv.slots) {
		return fmt.Errorf("%s: slot %d out of range [0,%d)", inv.Class, i, len(inv.slots))
	}
	if s.Empty() {
		s = ledger.Stack{}
	}
	inv.slots[i] = s
	return nil
}

func (inv *Inventory) SlotCount() int { return len(inv.slots) }

func (inv *Inventory) Stack(i int) (ledger.Stack, bool) {
	if i < 0 || i >= len(inv.slots) || inv.slots[i].Empty() {
		return ledger.Stack{}, false
	}
	return inv.slots[i], true
}

func (inv *Inventory) SetStack(i int, s ledger.Stack) {
	if i < 0 || i >= len(inv.slots) {
		return
	}
	if s.Empty() {
		s = ledger.Stack{}
	}
	inv.slots[i] = s
	if inv.dirty == nil {
		inv.dirty = map[int]bool{}
	}
	inv.dirty[i] = true
}

// Count totals stacks of item.
func (inv *Inventory) Count(item string) int {
	n := 0
	for _, s := range inv.slots {
		if !s.Empty() && s.Item == item {
			n += s.Count
		}
	}
	return n
}

// DirtySlots returns written slot indexes in ascending order.
func (inv *Inventory) DirtySlots() []int {
	out := make([]int, 0, len(inv.dirty))
	for i := range inv.dirty {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

func (inv *Inventory) ClearDirty() { inv.dirty = nil }
