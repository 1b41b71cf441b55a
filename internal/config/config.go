package config

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"claimstore.ai/internal/ledger"
)

// Offer IDs accepted by Config.Offer.
const (
	OfferVolume = "volume"
	OfferAreas  = "areas"
)

type Config struct {
	CurrencyItem   string `yaml:"currency_item" json:"currency_item"`
	BuyPrivilege   string `yaml:"buy_privilege" json:"buy_privilege"`
	AdminPrivilege string `yaml:"admin_privilege" json:"admin_privilege"`
	PurchaseSound  string `yaml:"purchase_sound" json:"purchase_sound"`

	// Names shown to players for one and for several currency items.
	CurrencyName       string `yaml:"currency_name" json:"currency_name"`
	CurrencyNamePlural string `yaml:"currency_name_plural" json:"currency_name_plural"`

	ClaimVolume Offer `yaml:"claim_volume" json:"claim_volume"`
	ClaimAreas  Offer `yaml:"claim_areas" json:"claim_areas"`
}

type Offer struct {
	Pricing       ledger.PricingKind `yaml:"pricing" json:"pricing"`
	BlocksPerUnit int                `yaml:"blocks_per_unit,omitempty" json:"blocks_per_unit,omitempty"`
	PricePerUnit  int                `yaml:"price_per_unit" json:"price_per_unit"`
}

func (o Offer) Unit() ledger.UnitConfig {
	return ledger.UnitConfig{BlocksPerUnit: o.BlocksPerUnit, PricePerUnit: o.PricePerUnit}
}

func (o Offer) Rule() (ledger.PricingRule, error) {
	return ledger.RuleFor(o.Pricing)
}

func Defaults() Config {
	return Config{
		CurrencyItem:   "gear-rusty",
		BuyPrivilege:   "areamodify",
		AdminPrivilege: "controlserver",
		PurchaseSound:  "sounds/effect/cashregister",

		CurrencyName:       "gear",
		CurrencyNamePlural: "gears",

		ClaimVolume: Offer{
			Pricing:       ledger.PricingBatch,
			BlocksPerUnit: 5000,
			PricePerUnit:  3,
		},
		ClaimAreas: Offer{
			Pricing:      ledger.PricingLinear,
			PricePerUnit: 20,
		},
	}
}

// Offer returns a pointer into c for the given offer id.
func (c *Config) Offer(id string) (*Offer, bool) {
	switch strings.ToLower(strings.TrimSpace(id)) {
	case OfferVolume, "claim_volume", "blocks":
		return &c.ClaimVolume, true
	case OfferAreas, "claim_areas", "area":
		return &c.ClaimAreas, true
	default:
		return nil, false
	}
}

// CurrencyLabel names n currency items for player messages.
func (c Config) CurrencyLabel(n int) string {
	if n == 1 {
		return c.CurrencyName
	}
	return c.CurrencyNamePlural
}

// FreeOffers lists offers whose price is zero.
func (c Config) FreeOffers() []string {
	var out []string
	if c.ClaimVolume.PricePerUnit == 0 {
		out = append(out, OfferVolume)
	}
	if c.ClaimAreas.PricePerUnit == 0 {
		out = append(out, OfferAreas)
	}
	sort.Strings(out)
	return out
}

func (c *Config) Normalize() {
	d := Defaults()
	c.CurrencyItem = strings.TrimSpace(c.CurrencyItem)
	if c.CurrencyItem == "" {
		c.CurrencyItem = d.CurrencyItem
	}
	c.CurrencyName = strings.TrimSpace(c.CurrencyName)
	c.CurrencyNamePlural = strings.TrimSpace(c.CurrencyNamePlural)
	switch {
	case c.CurrencyName == "" && c.CurrencyNamePlural == "":
		if c.CurrencyItem == d.CurrencyItem {
			c.CurrencyName, c.CurrencyNamePlural = d.CurrencyName, d.CurrencyNamePlural
		} else {
			c.CurrencyName, c.CurrencyNamePlural = c.CurrencyItem, c.CurrencyItem
		}
	case c.CurrencyName == "":
		c.CurrencyName = c.CurrencyNamePlural
	case c.CurrencyNamePlural == "":
		c.CurrencyNamePlural = c.CurrencyName
	}
	if strings.TrimSpace(c.BuyPrivilege) == "" {
		c.BuyPrivilege = d.BuyPrivilege
	}
	if strings.TrimSpace(c.AdminPrivilege) == "" {
		c.AdminPrivilege = d.AdminPrivilege
	}
	if c.ClaimVolume.Pricing == "" {
		c.ClaimVolume.Pricing = d.ClaimVolume.Pricing
	}
	if c.ClaimVolume.Pricing.NeedsBatchSize() && c.ClaimVolume.BlocksPerUnit == 0 {
		c.ClaimVolume.BlocksPerUnit = d.ClaimVolume.BlocksPerUnit
	}
	if c.ClaimAreas.Pricing == "" {
		c.ClaimAreas.Pricing = d.ClaimAreas.Pricing
	}
	// Areas default to linear pricing, so a batch kind borrows the volume batch size.
	if c.ClaimAreas.Pricing.NeedsBatchSize() && c.ClaimAreas.BlocksPerUnit == 0 {
		c.ClaimAreas.BlocksPerUnit = d.ClaimVolume.BlocksPerUnit
	}
}

func (c Config) Validate() error {
	if c.CurrencyItem == "" {
		return fmt.Errorf("currency_item is required")
	}
	offers := []struct {
		name  string
		offer Offer
	}{
		{"claim_volume", c.ClaimVolume},
		{"claim_areas", c.ClaimAreas},
	}
	for _, e := range offers {
		name, o := e.name, e.offer
		if _, err := o.Rule(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if o.PricePerUnit < 0 {
			return fmt.Errorf("%s: price_per_unit must be >= 0", name)
		}
		if o.Pricing.NeedsBatchSize() && o.BlocksPerUnit <= 0 {
			return fmt.Errorf("%s: blocks_per_unit must be > 0 for %s pricing", name, o.Pricing)
		}
	}
	return nil
}

//go:embed config.schema.json
var schemaJSON string

var schema = jsonschema.MustCompileString("config.schema.json", schemaJSON)

// Parse decodes YAML or JSON, checks it against the schema, applies defaults and validates.
func Parse(b []byte) (Config, error) {
	var doc any
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return Config{}, err
	}
	if doc != nil {
		// Round-trip through JSON so the validator sees JSON types.
		raw, err := json.Marshal(doc)
		if err != nil {
			return Config{}, err
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return Config{}, err
		}
		if err := schema.Validate(v); err != nil {
			return Config{}, err
		}
	}

	cfg := Defaults()
	// Names follow currency_item unless set explicitly.
	cfg.CurrencyName, cfg.CurrencyNamePlural = "", ""
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg, err := Parse(b)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return cfg, nil
}

// LoadOrCreate loads path, writing Defaults() there first if it does not exist.
// created reports whether the file was written.
func LoadOrCreate(path string) (cfg Config, created bool, err error) {
	cfg, err = Load(path)
	if err == nil {
		return cfg, false, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return Config{}, false, err
	}
	cfg = Defaults()
	if err := Save(path, cfg); err != nil {
		return Config{}, false, err
	}
	return cfg, true, nil
}

// Save writes cfg atomically. Paths ending in .json are written as JSON, anything else as YAML.
func Save(path string, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	var (
		b   []byte
		err error
	)
	if strings.EqualFold(filepath.Ext(path), ".json") {
		b, err = json.MarshalIndent(cfg, "", "  ")
		if err == nil {
			b = append(b, '\n')
		}
	} else {
		b, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
