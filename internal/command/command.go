package command

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"claimstore.ai/internal/config"
	"claimstore.ai/internal/ledger"
	"claimstore.ai/internal/protocol"
	"claimstore.ai/internal/store"
)

// Reply is the outcome of one chat command.
type Reply struct {
	OK      bool
	Code    string
	Notice  store.Notice
	Receipt *store.Receipt
}

type Command struct {
	Name        string
	Usage       string
	Description string
	// Offer is set for commands that buy an offer.
	Offer string

	run func(d *Dispatcher, p store.Player, args []string) Reply
}

// Dispatcher routes "/name arg..." chat lines to the registered commands.
type Dispatcher struct {
	shop *store.Shop
	cmds map[string]Command
}

func NewDispatcher(shop *store.Shop) *Dispatcher {
	d := &Dispatcher{shop: shop, cmds: map[string]Command{}}
	d.register(Command{
		Name:        "buyclaim",
		Usage:       "/buyclaim <quantity>",
		Description: "Buy land claim volume with rusty gears",
		Offer:       config.OfferVolume,
		run:         buy(config.OfferVolume),
	})
	d.register(Command{
		Name:        "buyarea",
		Usage:       "/buyarea <quantity>",
		Description: "Buy additional land claim areas with rusty gears",
		Offer:       config.OfferAreas,
		run:         buy(config.OfferAreas),
	})
	d.register(Command{
		Name:        "claimprice",
		Usage:       "/claimprice [volume|areas <price>]",
		Description: "Show claim prices, or change one",
		run:         claimPrice,
	})
	return d
}

func (d *Dispatcher) register(c Command) { d.cmds[c.Name] = c }

// Commands lists registered commands by name.
func (d *Dispatcher) Commands() []Command {
	out := make([]Command, 0, len(d.cmds))
	for _, c := range d.cmds {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Handle runs one chat line for p.
func (d *Dispatcher) Handle(p store.Player, text string) Reply {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 {
		return fail(protocol.ErrBadRequest, "Empty command.")
	}
	name := strings.ToLower(strings.TrimPrefix(fields[0], "/"))
	c, ok := d.cmds[name]
	if !ok {
		return fail(protocol.ErrUnknownCommand, fmt.Sprintf("Unknown command %q.", fields[0]))
	}
	return c.run(d, p, fields[1:])
}

func buy(offer string) func(d *Dispatcher, p store.Player, args []string) Reply {
	return func(d *Dispatcher, p store.Player, args []string) Reply {
		if len(args) != 1 {
			return usage(d.cmds, offer)
		}
		qty, err := strconv.Atoi(args[0])
		if err != nil {
			return usage(d.cmds, offer)
		}
		if qty <= 0 {
			return fail(protocol.ErrBadRequest, "Quantity must be greater than zero.")
		}

		r, n, err := d.shop.Buy(p, offer, qty)
		if err != nil {
			return fromError(err)
		}
		reply := Reply{OK: r.Success, Notice: n, Receipt: &r}
		if !r.Success {
			reply.Code = protocol.ErrNoResource
		}
		return reply
	}
}

func claimPrice(d *Dispatcher, p store.Player, args []string) Reply {
	switch len(args) {
	case 0:
		return Reply{OK: true, Notice: store.Notice{Kind: store.NoticeInfo, Text: describePrices(d.shop.Config())}}
	case 2:
		price, err := strconv.Atoi(args[1])
		if err != nil {
			return fail(protocol.ErrBadRequest, "Usage: "+d.cmds["claimprice"].Usage)
		}
		change, err := d.shop.SetPrice(p, args[0], price)
		if err != nil {
			return fromError(err)
		}
		return Reply{OK: true, Notice: store.Notice{
			Kind: store.NoticeSuccess,
			Text: fmt.Sprintf("Price for %s changed from %d to %d.", change.Offer, change.Old, change.New),
		}}
	default:
		return fail(protocol.ErrBadRequest, "Usage: "+d.cmds["claimprice"].Usage)
	}
}

func describePrices(cfg config.Config) string {
	return fmt.Sprintf("Claim volume: %s. Claim areas: %s.",
		describeOffer(cfg, cfg.ClaimVolume, "block", "blocks"),
		describeOffer(cfg, cfg.ClaimAreas, "area", "areas"))
}

func describeOffer(cfg config.Config, o config.Offer, one, many string) string {
	price := fmt.Sprintf("%d %s", o.PricePerUnit, cfg.CurrencyLabel(o.PricePerUnit))
	if o.Pricing.NeedsBatchSize() {
		return fmt.Sprintf("%s per %s %s", price, humanize.Comma(int64(o.BlocksPerUnit)), many)
	}
	return fmt.Sprintf("%s per %s", price, one)
}

func usage(cmds map[string]Command, offer string) Reply {
	for _, c := range cmds {
		if c.Offer == offer {
			return fail(protocol.ErrBadRequest, "Usage: "+c.Usage)
		}
	}
	return fail(protocol.ErrBadRequest, "Bad arguments.")
}

func fail(code, text string) Reply {
	return Reply{Code: code, Notice: store.Notice{Kind: store.NoticeError, Text: text}}
}

func fromError(err error) Reply {
	switch {
	case errors.Is(err, store.ErrBusy):
		return fail(protocol.ErrBusy, "Your previous purchase is still being processed, try again.")
	case errors.Is(err, store.ErrNoPermission):
		return fail(protocol.ErrNoPermission, "You do not have permission to do that.")
	case errors.Is(err, store.ErrUnknownOffer), errors.Is(err, ledger.ErrInvalidArgument):
		return fail(protocol.ErrBadRequest, err.Error())
	default:
		return fail(protocol.ErrInternal, "Something went wrong, try again later.")
	}
}
