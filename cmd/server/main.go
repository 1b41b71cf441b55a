package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"claimstore.ai/internal/command"
	"claimstore.ai/internal/config"
	"claimstore.ai/internal/persistence/indexdb"
	persistlog "claimstore.ai/internal/persistence/log"
	"claimstore.ai/internal/store"
	"claimstore.ai/internal/transport/ws"
)

func main() {
	var (
		addr          = flag.String("addr", "127.0.0.1:8080", "http listen address")
		configPath    = flag.String("config", "./configs/claimstore.yaml", "store config path (created with defaults if missing)")
		dataDir       = flag.String("data", "./data", "runtime data directory")
		disableDB     = flag.Bool("disable_db", false, "disable the sqlite purchase index")
		loopbackOnly  = flag.Bool("loopback_only", true, "accept bridge connections from loopback addresses only")
		allowedOrigin = flag.String("allowed_origin", "", "only accept this websocket Origin header (empty: any)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[claimstore] ", log.LstdFlags|log.Lmicroseconds)

	cfg, created, err := config.LoadOrCreate(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if created {
		logger.Printf("wrote default config to %s", *configPath)
	}

	idx, err := openRuntimeIndex(*dataDir, *disableDB)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
	}

	auditLog := persistlog.NewAuditLogger(*dataDir, func(err error) {
		logger.Printf("audit log: %v", err)
	})
	defer auditLog.Close()

	stats := &storeStats{}
	recorders := []store.Recorder{auditLog, stats}
	if idx != nil {
		recorders = append(recorders, idx)
	}

	shop := store.NewShop(cfg, store.Options{
		ConfigPath: *configPath,
		Logger:     logger,
		Recorders:  recorders,
	})
	dispatcher := command.NewDispatcher(shop)

	ctx, cancel := signalContext()
	defer cancel()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		stats.writeMetrics(rw, shop.Config())
		if idx != nil {
			fmt.Fprintf(rw, "# HELP claimstore_index_dropped_total Index records dropped because the queue was full.\n")
			fmt.Fprintf(rw, "# TYPE claimstore_index_dropped_total counter\n")
			fmt.Fprintf(rw, "claimstore_index_dropped_total %d\n", idx.Dropped())
		}
	})

	if envBool("CLAIMSTORE_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()) {
		mux.HandleFunc("/admin/v1/prices", func(rw http.ResponseWriter, r *http.Request) {
			if !ws.IsLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(shop.Config())
		})
		mux.HandleFunc("/admin/v1/purchases", purchasesHandler(idx))
	} else {
		logger.Printf("admin endpoints disabled (CLAIMSTORE_ENABLE_ADMIN_HTTP=false)")
	}

	bridge := ws.NewServer(shop, dispatcher, logger, ws.Options{
		LoopbackOnly:  *loopbackOnly,
		AllowedOrigin: *allowedOrigin,
	})
	mux.HandleFunc("/v1/bridge", bridge.Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s currency=%s", *addr, cfg.CurrencyItem)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func purchasesHandler(idx *indexdb.SQLiteIndex) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !ws.IsLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		if idx == nil {
			http.Error(rw, "index disabled", http.StatusServiceUnavailable)
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		rows, err := idx.RecentPurchases(ctx, strings.TrimSpace(r.URL.Query().Get("player")), limit)
		rw.Header().Set("Content-Type", "application/json")
		if err != nil {
			rw.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": err.Error()})
			return
		}
		_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "purchases": rows})
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func envBool(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}
