package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	player := fs.String("player", "", "show recent purchases for this player id")
	limit := fs.Int("limit", 0, "purchase limit")
	_ = fs.Parse(args)

	base := strings.TrimRight(strings.TrimSpace(*baseURL), "/")
	getAndPrint(base + "/admin/v1/prices")

	if p := strings.TrimSpace(*player); p != "" {
		q := url.Values{}
		q.Set("player", p)
		if *limit > 0 {
			q.Set("limit", fmt.Sprint(*limit))
		}
		getAndPrint(base + "/admin/v1/purchases?" + q.Encode())
	}
}

func getAndPrint(u string) {
	cl := &http.Client{Timeout: 5 * time.Second}
	resp, err := cl.Get(u)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(strings.TrimSpace(string(b)))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}
