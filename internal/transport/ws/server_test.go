package ws

import (
	"io"
	"log"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"claimstore.ai/internal/command"
	"claimstore.ai/internal/config"
	"claimstore.ai/internal/protocol"
	"claimstore.ai/internal/store"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	shop := store.NewShop(config.Defaults(), store.Options{})
	srv := NewServer(shop, command.NewDispatcher(shop), log.New(io.Discard, "", 0), Options{})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func hello(t *testing.T, conn *websocket.Conn) protocol.WelcomeMsg {
	t.Helper()
	if err := conn.WriteJSON(protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, ServerName: "test"}); err != nil {
		t.Fatalf("write hello: %v", err)
	}
	var w protocol.WelcomeMsg
	if err := conn.ReadJSON(&w); err != nil {
		t.Fatalf("read welcome: %v", err)
	}
	return w
}

func playerWithGears(gears ...int) protocol.PlayerSnapshot {
	inv := protocol.InventorySnapshot{Class: "backpack", Size: len(gears)}
	for i, n := range gears {
		inv.Slots = append(inv.Slots, protocol.SlotSnapshot{Slot: i, Item: "gear-rusty", Count: n})
	}
	return protocol.PlayerSnapshot{
		ID:          "p1",
		Name:        "Alice",
		Privileges:  []string{"areamodify"},
		Quotas:      protocol.Quotas{ClaimVolume: 1000, ClaimAreas: 1},
		Inventories: []protocol.InventorySnapshot{inv},
	}
}

func roundTrip(t *testing.T, conn *websocket.Conn, cmd protocol.CommandMsg) protocol.ResultMsg {
	t.Helper()
	cmd.Type = protocol.TypeCommand
	if err := conn.WriteJSON(cmd); err != nil {
		t.Fatalf("write command: %v", err)
	}
	var res protocol.ResultMsg
	if err := conn.ReadJSON(&res); err != nil {
		t.Fatalf("read result: %v", err)
	}
	if res.Type != protocol.TypeResult || res.RequestID != cmd.RequestID {
		t.Fatalf("unexpected result header: %+v", res)
	}
	return res
}

func TestWelcomeListsOffers(t *testing.T) {
	conn := dial(t, newTestServer(t))
	w := hello(t, conn)

	if w.SessionID == "" || w.CurrencyItem != "gear-rusty" {
		t.Fatalf("welcome: %+v", w)
	}
	if len(w.Offers) != 2 {
		t.Fatalf("offers: %+v", w.Offers)
	}
	// Sorted by command name: buyarea, buyclaim.
	if w.Offers[0].Command != "/buyarea" || w.Offers[0].Quota != "claim_areas" || w.Offers[0].PricePerUnit != 20 {
		t.Fatalf("areas offer: %+v", w.Offers[0])
	}
	if w.Offers[1].Command != "/buyclaim" || w.Offers[1].BlocksPerUnit != 5000 || w.Offers[1].PricePerUnit != 3 {
		t.Fatalf("volume offer: %+v", w.Offers[1])
	}
}

func TestBuyClaimReturnsSlotAndQuotaUpdates(t *testing.T) {
	conn := dial(t, newTestServer(t))
	hello(t, conn)

	res := roundTrip(t, conn, protocol.CommandMsg{RequestID: "r1", Player: playerWithGears(5, 10), Text: "/buyclaim 12000"})
	if !res.OK || res.ChatType != protocol.ChatSuccess || res.ReceiptID == "" {
		t.Fatalf("result: %+v", res)
	}
	if res.Sound != "sounds/effect/cashregister" {
		t.Fatalf("sound: %q", res.Sound)
	}
	if res.QuotaUpdates == nil || res.QuotaUpdates.ClaimVolume != 13000 || res.QuotaUpdates.ClaimAreas != 1 {
		t.Fatalf("quota updates: %+v", res.QuotaUpdates)
	}
	// 8 gears: slot 0 emptied, slot 1 left with 7.
	if len(res.SlotUpdates) != 2 {
		t.Fatalf("slot updates: %+v", res.SlotUpdates)
	}
	if u := res.SlotUpdates[0]; u.Slot != 0 || u.Count != 0 || u.Item != "" {
		t.Fatalf("slot 0: %+v", u)
	}
	if u := res.SlotUpdates[1]; u.Slot != 1 || u.Count != 7 || u.Item != "gear-rusty" {
		t.Fatalf("slot 1: %+v", u)
	}
}

func TestInsufficientFundsLeavesInventory(t *testing.T) {
	conn := dial(t, newTestServer(t))
	hello(t, conn)

	res := roundTrip(t, conn, protocol.CommandMsg{RequestID: "r2", Player: playerWithGears(5, 10), Text: "/buyarea 1"})
	if res.OK || res.Code != protocol.ErrNoResource || res.ChatType != protocol.ChatError {
		t.Fatalf("result: %+v", res)
	}
	if len(res.SlotUpdates) != 0 || res.QuotaUpdates != nil {
		t.Fatalf("expected no updates: %+v", res)
	}
	if !strings.Contains(res.Message, "20") || !strings.Contains(res.Message, "15") {
		t.Fatalf("message: %q", res.Message)
	}
}

func TestBadCommandIsRejected(t *testing.T) {
	conn := dial(t, newTestServer(t))
	hello(t, conn)

	p := playerWithGears(1)
	p.ID = ""
	res := roundTrip(t, conn, protocol.CommandMsg{RequestID: "r3", Player: p, Text: "/buyclaim 1"})
	if res.OK || res.Code != protocol.ErrProtoBadRequest {
		t.Fatalf("result: %+v", res)
	}

	p = playerWithGears(1)
	p.Inventories = append(p.Inventories, p.Inventories[0])
	res = roundTrip(t, conn, protocol.CommandMsg{RequestID: "r4", Player: p, Text: "/buyclaim 1"})
	if res.OK || res.Code != protocol.ErrProtoBadRequest {
		t.Fatalf("duplicate class: %+v", res)
	}
}

func TestHandshakeRequiresHello(t *testing.T) {
	conn := dial(t, newTestServer(t))
	if err := conn.WriteJSON(protocol.CommandMsg{Type: protocol.TypeCommand, RequestID: "r1", Text: "/buyclaim 1"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("expected policy violation close, got %v", err)
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:5000": true,
		"[::1]:5000":     true,
		"10.0.0.4:5000":  false,
		"garbage":        false,
	}
	for addr, want := range cases {
		if got := IsLoopbackRemote(addr); got != want {
			t.Fatalf("IsLoopbackRemote(%q)=%v want %v", addr, got, want)
		}
	}
}

// blockingRecorder holds the first purchase open until release is closed.
type blockingRecorder struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (r *blockingRecorder) RecordPurchase(store.Receipt) {
	r.once.Do(func() {
		close(r.entered)
		<-r.release
	})
}

func (r *blockingRecorder) RecordPriceChange(store.PriceChange) {}

func TestSecondConnectionSamePlayerGetsBusy(t *testing.T) {
	rec := &blockingRecorder{entered: make(chan struct{}), release: make(chan struct{})}
	shop := store.NewShop(config.Defaults(), store.Options{Recorders: []store.Recorder{rec}})
	srv := NewServer(shop, command.NewDispatcher(shop), log.New(io.Discard, "", 0), Options{})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	a := dial(t, ts)
	hello(t, a)
	b := dial(t, ts)
	hello(t, b)

	done := make(chan protocol.ResultMsg, 1)
	go func() {
		cmd := protocol.CommandMsg{Type: protocol.TypeCommand, RequestID: "a1", Player: playerWithGears(5, 10), Text: "/buyclaim 12000"}
		if err := a.WriteJSON(cmd); err != nil {
			return
		}
		var res protocol.ResultMsg
		if err := a.ReadJSON(&res); err != nil {
			return
		}
		done <- res
	}()

	select {
	case <-rec.entered:
	case <-time.After(5 * time.Second):
		close(rec.release)
		t.Fatalf("first purchase never started")
	}

	res := roundTrip(t, b, protocol.CommandMsg{RequestID: "b1", Player: playerWithGears(5, 10), Text: "/buyclaim 12000"})
	close(rec.release)
	if res.OK || res.Code != protocol.ErrBusy || res.ChatType != protocol.ChatError {
		t.Fatalf("second connection: %+v", res)
	}
	if len(res.SlotUpdates) != 0 || res.QuotaUpdates != nil || res.ReceiptID != "" {
		t.Fatalf("busy result must carry no updates: %+v", res)
	}

	select {
	case first := <-done:
		if !first.OK || first.QuotaUpdates == nil || first.QuotaUpdates.ClaimVolume != 13000 {
			t.Fatalf("first connection: %+v", first)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("first purchase never finished")
	}

	// Once the first purchase is done the player can buy again.
	res = roundTrip(t, b, protocol.CommandMsg{RequestID: "b2", Player: playerWithGears(7), Text: "/buyclaim 5000"})
	if !res.OK {
		t.Fatalf("retry: %+v", res)
	}
}
