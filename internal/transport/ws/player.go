package ws

import (
	"fmt"

	"claimstore.ai/internal/inventory"
	"claimstore.ai/internal/ledger"
	"claimstore.ai/internal/protocol"
	"claimstore.ai/internal/store"
)

// snapshotPlayer adapts a host player snapshot to store.Player and collects
// the mutations to send back.
type snapshotPlayer struct {
	id     string
	name   string
	privs  map[string]bool
	inv    inventory.Set
	quotas map[store.Quota]int
	start  protocol.Quotas
}

func newSnapshotPlayer(s protocol.PlayerSnapshot) (*snapshotPlayer, error) {
	p := &snapshotPlayer{
		id:     s.ID,
		name:   s.Name,
		privs:  map[string]bool{},
		inv:    inventory.Set{},
		quotas: map[store.Quota]int{
			store.QuotaClaimVolume: s.Quotas.ClaimVolume,
			store.QuotaClaimAreas:  s.Quotas.ClaimAreas,
		},
		start: s.Quotas,
	}
	for _, priv := range s.Privileges {
		p.privs[priv] = true
	}
	for _, is := range s.Inventories {
		if _, dup := p.inv[is.Class]; dup {
			return nil, fmt.Errorf("duplicate inventory class %q", is.Class)
		}
		inv := inventory.New(is.Class, is.Size)
		for _, sl := range is.Slots {
			if err := inv.Put(sl.Slot, ledger.Stack{Item: sl.Item, Count: sl.Count}); err != nil {
				return nil, err
			}
		}
		p.inv[is.Class] = inv
	}
	return p, nil
}

func (p *snapshotPlayer) ID() string { return p.id }
func (p *snapshotPlayer) Name() string { return p.name }
func (p *snapshotPlayer) HasPrivilege(priv string) bool { return p.privs[priv] }
func (p *snapshotPlayer) Containers() []ledger.Container { return p.inv.Containers() }
func (p *snapshotPlayer) Quota(q store.Quota) int { return p.quotas[q] }
func (p *snapshotPlayer) AddQuota(q store.Quota, delta int) {
	p.quotas[q] += delta
}

func (p *snapshotPlayer) slotUpdates() []protocol.SlotUpdate {
	ups := p.inv.Updates()
	if len(ups) == 0 {
		return nil
	}
	out := make([]protocol.SlotUpdate, 0, len(ups))
	for _, u := range ups {
		out = append(out, protocol.SlotUpdate{Class: u.Class, Slot: u.Slot, Item: u.Stack.Item, Count: u.Stack.Count})
	}
	return out
}

func (p *snapshotPlayer) quotaUpdates() *protocol.Quotas {
	now := protocol.Quotas{
		ClaimVolume: p.quotas[store.QuotaClaimVolume],
		ClaimAreas:  p.quotas[store.QuotaClaimAreas],
	}
	if now == p.start {
		return nil
	}
	return &now
}
