// Package store sells claim quota for currency items. It owns the part of a
// purchase the ledger does not: privilege checks, per-player serialization,
// crediting the quota, player notices and purchase records.
package store

import (
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"claimstore.ai/internal/config"
	"claimstore.ai/internal/ledger"
)

var (
	ErrNoPermission = errors.New("no permission")
	ErrUnknownOffer = errors.New("unknown offer")
	// ErrBusy means another purchase for the same player has not finished yet.
	// The caller may retry with a fresh snapshot.
	ErrBusy = errors.New("purchase in progress")
)

// MaxQuota is the largest quota value the host can store (a 32-bit int).
const MaxQuota = math.MaxInt32

// Quota names a per-player allowance the host stores.
type Quota string

const (
	QuotaClaimVolume Quota = "claim_volume"
	QuotaClaimAreas  Quota = "claim_areas"
)

// Player is the buyer as seen by the shop. The host owns the underlying data.
type Player interface {
	ID() string
	Name() string
	HasPrivilege(priv string) bool
	Containers() []ledger.Container
	Quota(q Quota) int
	AddQuota(q Quota, delta int)
}

// Notice kinds.
const (
	NoticeSuccess = "success"
	NoticeError   = "error"
	NoticeInfo    = "info"
)

// Notice is what the player should see (and hear) after a command.
type Notice struct {
	Kind  string
	Text  string
	Sound string
}

type Receipt struct {
	ID          string    `json:"id"`
	At          time.Time `json:"at"`
	PlayerID    string    `json:"player_id"`
	PlayerName  string    `json:"player_name,omitempty"`
	Offer       string    `json:"offer"`
	Currency    string    `json:"currency"`
	Quantity    int       `json:"quantity"`
	Cost        int       `json:"cost"`
	Available   int       `json:"available"`
	Success     bool      `json:"success"`
	QuotaBefore int       `json:"quota_before"`
	QuotaAfter  int       `json:"quota_after"`
}

type PriceChange struct {
	At    time.Time `json:"at"`
	Actor string    `json:"actor"`
	Offer string    `json:"offer"`
	Old   int       `json:"old"`
	New   int       `json:"new"`
}

// Recorder receives purchase attempts and price changes. Implementations must not block.
type Recorder interface {
	RecordPurchase(r Receipt)
	RecordPriceChange(c PriceChange)
}

type Options struct {
	// ConfigPath, when set, is where price changes are persisted.
	ConfigPath string
	Logger     *log.Logger
	Recorders  []Recorder
	Now        func() time.Time
}

type Shop struct {
	mu      sync.RWMutex
	cfg     config.Config
	cfgPath string

	ledger *ledger.Ledger
	rec    []Recorder
	log    *log.Logger
	now    func() time.Time

	players inflight
}

func NewShop(cfg config.Config, opts Options) *Shop {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	s := &Shop{
		cfg:     cfg,
		cfgPath: opts.ConfigPath,
		ledger:  ledger.New(cfg.CurrencyItem),
		rec:     opts.Recorders,
		log:     logger,
		now:     now,
	}
	for _, id := range cfg.FreeOffers() {
		s.log.Printf("warning: offer %q has price_per_unit=0; purchases are free", id)
	}
	return s
}

func (s *Shop) Config() config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// QuotaFor maps a canonical offer id to the quota it credits.
func QuotaFor(offerID string) Quota {
	if offerID == config.OfferAreas {
		return QuotaClaimAreas
	}
	return QuotaClaimVolume
}

func (s *Shop) offer(id string) (string, config.Offer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg := s.cfg
	o, ok := cfg.Offer(id)
	if !ok {
		return "", config.Offer{}, fmt.Errorf("%w: %q", ErrUnknownOffer, id)
	}
	canonical := config.OfferVolume
	if o == &cfg.ClaimAreas {
		canonical = config.OfferAreas
	}
	return canonical, *o, nil
}

// Quote prices qty units of an offer without touching any player.
func (s *Shop) Quote(offerID string, qty int) (int, error) {
	_, o, err := s.offer(offerID)
	if err != nil {
		return 0, err
	}
	rule, err := o.Rule()
	if err != nil {
		return 0, err
	}
	return s.ledger.Quote(qty, rule, o.Unit())
}

// Buy charges p for qty units of an offer and credits the matching quota.
// Not having enough currency is reported through the receipt, not the error.
func (s *Shop) Buy(p Player, offerID string, qty int) (Receipt, Notice, error) {
	cfg := s.Config()
	if !p.HasPrivilege(cfg.BuyPrivilege) {
		return Receipt{}, Notice{}, fmt.Errorf("%w: requires %q", ErrNoPermission, cfg.BuyPrivilege)
	}
	id, o, err := s.offer(offerID)
	if err != nil {
		return Receipt{}, Notice{}, err
	}
	rule, err := o.Rule()
	if err != nil {
		return Receipt{}, Notice{}, err
	}

	release, ok := s.players.tryAcquire(p.ID())
	if !ok {
		return Receipt{}, Notice{}, fmt.Errorf("%w: player %s", ErrBusy, p.ID())
	}
	defer release()

	q := QuotaFor(id)
	if before := p.Quota(q); qty > MaxQuota-before {
		return Receipt{}, Notice{}, fmt.Errorf("%w: %s quota %d + %d exceeds %d", ledger.ErrInvalidArgument, q, before, qty, MaxQuota)
	}

	res, err := s.ledger.Purchase(p.Containers(), qty, rule, o.Unit())
	if err != nil {
		return Receipt{}, Notice{}, err
	}

	r := Receipt{
		ID:          uuid.NewString(),
		At:          s.now().UTC(),
		PlayerID:    p.ID(),
		PlayerName:  p.Name(),
		Offer:       id,
		Currency:    s.ledger.Item(),
		Quantity:    qty,
		Cost:        res.Cost,
		Available:   res.Available,
		Success:     res.Success,
		QuotaBefore: p.Quota(q),
	}
	if res.Success {
		p.AddQuota(q, qty)
	}
	r.QuotaAfter = p.Quota(q)

	for _, rec := range s.rec {
		rec.RecordPurchase(r)
	}
	s.log.Printf("purchase player=%s offer=%s qty=%d cost=%d available=%d ok=%v", r.PlayerID, r.Offer, r.Quantity, r.Cost, r.Available, r.Success)

	if !r.Success {
		return r, Notice{
			Kind: NoticeError,
			Text: fmt.Sprintf("You need %s %s, but only have %s.", humanize.Comma(int64(r.Cost)), cfg.CurrencyLabel(r.Cost), humanize.Comma(int64(r.Available))),
		}, nil
	}
	return r, Notice{Kind: NoticeSuccess, Text: successText(r, cfg), Sound: cfg.PurchaseSound}, nil
}

// SetPrice changes an offer's price_per_unit and persists the config when a path is set.
func (s *Shop) SetPrice(actor Player, offerID string, price int) (PriceChange, error) {
	cfg := s.Config()
	if !actor.HasPrivilege(cfg.AdminPrivilege) {
		return PriceChange{}, fmt.Errorf("%w: requires %q", ErrNoPermission, cfg.AdminPrivilege)
	}
	if price < 0 {
		return PriceChange{}, fmt.Errorf("%w: price must be >= 0, got %d", ledger.ErrInvalidArgument, price)
	}

	s.mu.Lock()
	next := s.cfg
	o, ok := next.Offer(offerID)
	if !ok {
		s.mu.Unlock()
		return PriceChange{}, fmt.Errorf("%w: %q", ErrUnknownOffer, offerID)
	}
	id := config.OfferVolume
	if o == &next.ClaimAreas {
		id = config.OfferAreas
	}
	change := PriceChange{At: s.now().UTC(), Actor: actor.ID(), Offer: id, Old: o.PricePerUnit, New: price}
	o.PricePerUnit = price
	if s.cfgPath != "" {
		if err := config.Save(s.cfgPath, next); err != nil {
			s.mu.Unlock()
			return PriceChange{}, fmt.Errorf("save config: %w", err)
		}
	}
	s.cfg = next
	s.mu.Unlock()

	for _, rec := range s.rec {
		rec.RecordPriceChange(change)
	}
	s.log.Printf("price change actor=%s offer=%s old=%d new=%d", change.Actor, change.Offer, change.Old, change.New)
	if price == 0 {
		s.log.Printf("warning: offer %q is now free", id)
	}
	return change, nil
}

func successText(r Receipt, cfg config.Config) string {
	qty := humanize.Comma(int64(r.Quantity))
	cost := humanize.Comma(int64(r.Cost))
	before := humanize.Comma(int64(r.QuotaBefore))
	after := humanize.Comma(int64(r.QuotaAfter))
	if r.Offer == config.OfferAreas {
		return fmt.Sprintf("You bought %s claim areas for %s %s! You had %s areas, now you have %s.", qty, cost, cfg.CurrencyLabel(r.Cost), before, after)
	}
	return fmt.Sprintf("You bought %s claim blocks for %s %s! You had %sm³, now you have %sm³.", qty, cost, cfg.CurrencyLabel(r.Cost), before, after)
}
