package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (default: <data>/index/claimstore.sqlite)")
	player := fs.String("player", "", "player id filter (purchases)")
	offer := fs.String("offer", "", "offer filter (purchases, price_changes)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	q := "purchases"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}
	if *limit <= 0 {
		*limit = 20
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index", "claimstore.sqlite")
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintln(os.Stderr, "index:", err)
		os.Exit(2)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	switch q {
	case "purchases":
		rows, err := db.Query(`SELECT id,at,player_id,player_name,offer,currency,quantity,cost,available,success,quota_before,quota_after
			FROM purchases WHERE (?1 = '' OR player_id = ?1) AND (?2 = '' OR offer = ?2) ORDER BY at DESC, id DESC LIMIT ?3`,
			strings.TrimSpace(*player), strings.TrimSpace(*offer), *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				ID          string `json:"id"`
				At          string `json:"at"`
				PlayerID    string `json:"player_id"`
				PlayerName  string `json:"player_name"`
				Offer       string `json:"offer"`
				Currency    string `json:"currency"`
				Quantity    int    `json:"quantity"`
				Cost        int    `json:"cost"`
				Available   int    `json:"available"`
				Success     bool   `json:"success"`
				QuotaBefore int    `json:"quota_before"`
				QuotaAfter  int    `json:"quota_after"`
			}
			if err := rows.Scan(&r.ID, &r.At, &r.PlayerID, &r.PlayerName, &r.Offer, &r.Currency, &r.Quantity, &r.Cost, &r.Available, &r.Success, &r.QuotaBefore, &r.QuotaAfter); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	case "price_changes":
		rows, err := db.Query(`SELECT seq,at,actor,offer,old_price,new_price FROM price_changes WHERE (?1 = '' OR offer = ?1) ORDER BY seq DESC LIMIT ?2`,
			strings.TrimSpace(*offer), *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Seq   int64  `json:"seq"`
				At    string `json:"at"`
				Actor string `json:"actor"`
				Offer string `json:"offer"`
				Old   int    `json:"old_price"`
				New   int    `json:"new_price"`
			}
			if err := rows.Scan(&r.Seq, &r.At, &r.Actor, &r.Offer, &r.Old, &r.New); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	case "totals":
		rows, err := db.Query(`SELECT offer, COUNT(*), COALESCE(SUM(CASE WHEN success=1 THEN cost ELSE 0 END),0), COALESCE(SUM(CASE WHEN success=1 THEN quantity ELSE 0 END),0)
			FROM purchases GROUP BY offer ORDER BY offer`)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Offer    string `json:"offer"`
				Attempts int64  `json:"attempts"`
				Spent    int64  `json:"spent"`
				Sold     int64  `json:"sold"`
			}
			if err := rows.Scan(&r.Offer, &r.Attempts, &r.Spent, &r.Sold); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q, "(want purchases|price_changes|totals)")
		os.Exit(2)
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
