package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"claimstore.ai/internal/config"
	"claimstore.ai/internal/ledger"
	persistlog "claimstore.ai/internal/persistence/log"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "audit":
			auditCmd(os.Args[2:])
			return
		case "price":
			priceCmd(os.Args[2:])
			return
		case "quote":
			quoteCmd(os.Args[2:])
			return
		}
	}
	fmt.Fprintln(os.Stderr, "usage: admin <db|state|audit|price|quote> [flags]")
	os.Exit(2)
}

func auditCmd(args []string) {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	player := fs.String("player", "", "player id filter")
	kind := fs.String("kind", "", "entry kind filter (PURCHASE|PRICE_CHANGE)")
	failedOnly := fs.Bool("failed", false, "only purchases that were refused for lack of currency")
	_ = fs.Parse(args)

	wantPlayer := strings.TrimSpace(*player)
	wantKind := strings.ToUpper(strings.TrimSpace(*kind))
	n := 0
	err := persistlog.ReadAudit(*dataDir, func(e persistlog.AuditEntry) error {
		if wantKind != "" && e.Kind != wantKind {
			return nil
		}
		switch {
		case e.Purchase != nil:
			if wantPlayer != "" && e.Purchase.PlayerID != wantPlayer {
				return nil
			}
			if *failedOnly && e.Purchase.Success {
				return nil
			}
		case e.PriceChange != nil:
			if wantPlayer != "" && e.PriceChange.Actor != wantPlayer {
				return nil
			}
			if *failedOnly {
				return nil
			}
		}
		printJSON(e)
		n++
		return nil
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "read audit:", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "%d entries\n", n)
}

func priceCmd(args []string) {
	fs := flag.NewFlagSet("price", flag.ExitOnError)
	configPath := fs.String("config", "./configs/claimstore.yaml", "store config path")
	_ = fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}

	if fs.NArg() == 0 {
		printJSON(cfg)
		return
	}
	if fs.NArg() != 2 {
		fmt.Fprintln(os.Stderr, "usage: admin price [-config path] [<volume|areas> <price>]")
		os.Exit(2)
	}
	o, ok := cfg.Offer(fs.Arg(0))
	if !ok {
		fmt.Fprintln(os.Stderr, "unknown offer:", fs.Arg(0))
		os.Exit(2)
	}
	price, err := strconv.Atoi(fs.Arg(1))
	if err != nil || price < 0 {
		fmt.Fprintln(os.Stderr, "price must be a non-negative integer")
		os.Exit(2)
	}
	old := o.PricePerUnit
	o.PricePerUnit = price
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "invalid config:", err)
		os.Exit(1)
	}
	if err := config.Save(*configPath, cfg); err != nil {
		fmt.Fprintln(os.Stderr, "save config:", err)
		os.Exit(1)
	}
	fmt.Printf("%s: %d -> %d (restart the server to apply)\n", fs.Arg(0), old, price)
	if price == 0 {
		fmt.Fprintln(os.Stderr, "warning: offer is now free")
	}
}

func quoteCmd(args []string) {
	fs := flag.NewFlagSet("quote", flag.ExitOnError)
	configPath := fs.String("config", "./configs/claimstore.yaml", "store config path")
	_ = fs.Parse(args)

	if fs.NArg() != 2 {
		fmt.Fprintln(os.Stderr, "usage: admin quote [-config path] <volume|areas> <quantity>")
		os.Exit(2)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	o, ok := cfg.Offer(fs.Arg(0))
	if !ok {
		fmt.Fprintln(os.Stderr, "unknown offer:", fs.Arg(0))
		os.Exit(2)
	}
	qty, err := strconv.Atoi(fs.Arg(1))
	if err != nil {
		fmt.Fprintln(os.Stderr, "quantity must be an integer")
		os.Exit(2)
	}
	rule, err := o.Rule()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cost, err := ledger.New(cfg.CurrencyItem).Quote(qty, rule, o.Unit())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	fmt.Printf("%s x %s = %s %s\n", fs.Arg(0), humanize.Comma(int64(qty)), humanize.Comma(int64(cost)), cfg.CurrencyItem)
}
