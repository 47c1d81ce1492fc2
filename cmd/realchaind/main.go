package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"realchain/config"
	"realchain/crypto"
	"realchain/escrow"
	"realchain/events"
	"realchain/observability/logging"
	"realchain/rpc"
	"realchain/storage"
)

var genesisMarkerKey = []byte("genesis:applied")

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("REALCHAIN_ENV"))
	logger := logging.Setup("realchaind", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	store := escrow.NewDealStore(db)
	if err := applyGenesisAlloc(db, store, cfg, logger); err != nil {
		logger.Error("Failed to apply genesis allocation", slog.Any("error", err))
		os.Exit(1)
	}

	recorder := events.NewRecorder(0)
	engine := escrow.NewEngine(store, cfg.CustodianReserve)
	engine.SetEmitter(recorder)
	engine.SetListingWindow(cfg.ListingWindowSeconds())
	facade := escrow.NewFacade(engine, store)

	if addr := strings.TrimSpace(cfg.MetricsAddress); addr != "" {
		go serveMetrics(addr, logger)
	}

	logger.Info("escrow daemon ready",
		slog.String("network", cfg.NetworkName),
		slog.Uint64("custodianReserve", cfg.CustodianReserve),
		slog.Int64("listingWindowSeconds", cfg.ListingWindowSeconds()))

	server := rpc.NewServer(facade, recorder, logger)
	if err := server.Start(cfg.RPCAddress); err != nil {
		logger.Error("JSON-RPC server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

// applyGenesisAlloc seeds configured ledger balances exactly once per data
// directory.
func applyGenesisAlloc(db storage.Database, store *escrow.DealStore, cfg *config.Config, logger *slog.Logger) error {
	applied, err := db.Has(genesisMarkerKey)
	if err != nil {
		return err
	}
	if applied {
		return nil
	}
	for addrStr, amount := range cfg.GenesisAlloc {
		addr, err := crypto.DecodeAddress(addrStr)
		if err != nil {
			return fmt.Errorf("genesis address %q: %w", addrStr, err)
		}
		var account [20]byte
		copy(account[:], addr.Bytes())
		if err := store.Credit(account, amount); err != nil {
			return err
		}
		logger.Info("seeded genesis balance",
			slog.String("address", addrStr),
			slog.Uint64("amount", amount))
	}
	return db.Put(genesisMarkerKey, []byte{1})
}

func serveMetrics(addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Info("serving metrics", slog.String("addr", addr))
	if err := server.ListenAndServe(); err != nil {
		logger.Error("metrics server stopped", slog.Any("error", err))
	}
}
