package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"copyvault/config"
	"copyvault/contracts"
	"copyvault/events"
	"copyvault/exchange"
	"copyvault/guard"
	"copyvault/handlers"
	"copyvault/models"
	"copyvault/oracle"
	"copyvault/storage"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using defaults")
	}

	cfgPath := os.Getenv("COPYVAULT_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	netCfg := networkFromConfig(cfg.Chain)

	var opts []contracts.Option
	if key := os.Getenv("COPYVAULT_SIGNER_KEY"); key != "" {
		opts = append(opts, contracts.WithSigner(key))
	}

	gw, err := contracts.Dial(ctx, netCfg, opts...)
	if err != nil {
		log.Fatalf("failed to connect gateway: %v", err)
	}
	log.Printf("[main] Connected to %s (chain %d)", gw.Network().Name, gw.Network().ChainID)

	// Optional backends
	var metrics *oracle.MetricsStore
	if cfg.Storage.EnableRedis {
		rdb := redis.NewClient(&redis.Options{
			Addr:     getEnv("REDIS_HOST", "localhost") + ":" + getEnv("REDIS_PORT", "6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("failed to connect redis: %v", err)
		}
		metrics = oracle.NewMetricsStore(rdb)
	}

	var history storage.HistoryStore
	if cfg.Storage.EnablePostgres {
		pg, err := storage.NewPostgres(ctx)
		if err != nil {
			log.Fatalf("failed to init postgres: %v", err)
		}
		history = pg
	} else {
		history = storage.NewMemory()
	}
	defer history.Close()

	// Admission guard, rebuilt from on-chain history where possible
	evts := events.NewService(gw.Backend(), gw.Network().Addresses)
	g := guard.New(gw, nil)
	if err := g.RebuildFromEvents(ctx, evts, 0, 0); err != nil {
		log.Printf("[main] Admission state rebuild skipped: %v", err)
	}

	// Exchange account reads, HTTP with an optional live feed
	exClient := exchange.NewClient(cfg.Exchange.InfoURL)

	oracleOpts := []oracle.Option{}
	if metrics != nil {
		oracleOpts = append(oracleOpts, oracle.WithMetrics(metrics))
	}
	oracleOpts = append(oracleOpts, oracle.WithHistory(history))
	if cfg.Exchange.EnableWS {
		feed := exchange.NewFeed(cfg.Exchange.WSURL, func(s models.AccountSummary) {
			log.Printf("[main] Account update for %s: value %s", s.Account.Hex(), s.AccountValue.String())
		})
		oracleOpts = append(oracleOpts, oracle.WithFeed(feed))
	}

	o := oracle.New(gw, exClient, oracle.Config{
		Interval:        time.Duration(cfg.Oracle.IntervalSecs) * time.Second,
		ScanConcurrency: cfg.Oracle.ScanConcurrency,
	}, oracleOpts...)

	if err := o.Start(ctx); err != nil {
		log.Fatalf("failed to start oracle: %v", err)
	}
	defer o.Stop()

	// Status API
	r := gin.Default()
	h := handlers.NewHandler(gw, g, o, metrics, history)
	h.Register(r)

	port := os.Getenv("PORT")
	if port == "" {
		port = strconv.Itoa(cfg.Server.Port)
	}

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutMS) * time.Millisecond,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutMS) * time.Millisecond,
	}

	go func() {
		log.Printf("[main] Status API listening on http://localhost:%s", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("[main] Shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.Server.ShutdownTimeoutMS)*time.Millisecond)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[main] Server shutdown: %v", err)
	}
}

func networkFromConfig(c config.ChainConfig) contracts.NetworkConfig {
	net := contracts.NetworkConfig{
		Name:    c.Network,
		ChainID: c.ChainID,
		RPCURL:  c.RPCURL,
	}
	if common.IsHexAddress(c.AgentRegistry) {
		net.Addresses.AgentRegistry = common.HexToAddress(c.AgentRegistry)
	}
	if common.IsHexAddress(c.CopyVault) {
		net.Addresses.CopyVault = common.HexToAddress(c.CopyVault)
	}
	if common.IsHexAddress(c.ReputationLimits) {
		net.Addresses.ReputationLimits = common.HexToAddress(c.ReputationLimits)
	}
	return net
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
