package main

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"claimstore.ai/internal/config"
	"claimstore.ai/internal/store"
)

// storeStats counts purchases for /metrics. It is registered as a store.Recorder.
type storeStats struct {
	mu        sync.Mutex
	purchases map[statKey]int64
	spent     map[string]int64
	changes   int64
}

type statKey struct {
	offer  string
	result string
}

func (s *storeStats) RecordPurchase(r store.Receipt) {
	result := "ok"
	if !r.Success {
		result = "insufficient"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.purchases == nil {
		s.purchases = map[statKey]int64{}
		s.spent = map[string]int64{}
	}
	s.purchases[statKey{offer: r.Offer, result: result}]++
	if r.Success {
		s.spent[r.Offer] += int64(r.Cost)
	}
}

func (s *storeStats) RecordPriceChange(store.PriceChange) {
	s.mu.Lock()
	s.changes++
	s.mu.Unlock()
}

func (s *storeStats) writeMetrics(w io.Writer, cfg config.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]statKey, 0, len(s.purchases))
	for k := range s.purchases {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].offer != keys[j].offer {
			return keys[i].offer < keys[j].offer
		}
		return keys[i].result < keys[j].result
	})

	fmt.Fprintf(w, "# HELP claimstore_purchases_total Purchase attempts by offer and result.\n")
	fmt.Fprintf(w, "# TYPE claimstore_purchases_total counter\n")
	for _, k := range keys {
		fmt.Fprintf(w, "claimstore_purchases_total{offer=%q,result=%q} %d\n", k.offer, k.result, s.purchases[k])
	}

	fmt.Fprintf(w, "# HELP claimstore_currency_spent_total Currency items removed from players.\n")
	fmt.Fprintf(w, "# TYPE claimstore_currency_spent_total counter\n")
	for _, id := range []string{config.OfferVolume, config.OfferAreas} {
		fmt.Fprintf(w, "claimstore_currency_spent_total{offer=%q,item=%q} %d\n", id, cfg.CurrencyItem, s.spent[id])
	}

	fmt.Fprintf(w, "# HELP claimstore_price_changes_total Price changes since start.\n")
	fmt.Fprintf(w, "# TYPE claimstore_price_changes_total counter\n")
	fmt.Fprintf(w, "claimstore_price_changes_total %d\n", s.changes)

	fmt.Fprintf(w, "# HELP claimstore_price_per_unit Current price per unit.\n")
	fmt.Fprintf(w, "# TYPE claimstore_price_per_unit gauge\n")
	fmt.Fprintf(w, "claimstore_price_per_unit{offer=%q} %d\n", config.OfferVolume, cfg.ClaimVolume.PricePerUnit)
	fmt.Fprintf(w, "claimstore_price_per_unit{offer=%q} %d\n", config.OfferAreas, cfg.ClaimAreas.PricePerUnit)
}
