package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"mintwatch/internal/bus"
	"mintwatch/internal/cache"
	"mintwatch/internal/domain"
	"mintwatch/internal/enrich"
	"mintwatch/internal/ingest"
	"mintwatch/internal/metadata"
	"mintwatch/internal/observability"
	"mintwatch/internal/query"
	"mintwatch/internal/solana"
	"mintwatch/internal/stream"
)

const filterName = "pumpfun-create"

func main() {
	wsEndpoint := flag.String("ws-endpoint", "", "Solana WebSocket endpoint (transactionSubscribe capable)")
	rpcEndpoint := flag.String("rpc-endpoint", "", "Solana RPC HTTP endpoint")
	httpAddr := flag.String("http-addr", ":8080", "Query API HTTP address (empty to disable)")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics HTTP address (empty to disable)")
	commitment := flag.String("commitment", string(solana.CommitmentProcessed), "Commitment for account queries: processed, confirmed, or finalized")
	successTTL := flag.Duration("success-ttl", cache.DefaultSuccessTTL, "TTL for successfully enriched entries")
	failedTTL := flag.Duration("failed-ttl", cache.DefaultFailedTTL, "Retention for failed placeholders")
	retryDelay := flag.Duration("retry-delay", cache.DefaultRetryDelay, "Cooldown before re-enriching a failed mint")
	sweepInterval := flag.Duration("sweep-interval", cache.DefaultSweepInterval, "Interval between cache sweeps")
	maxRetries := flag.Int("max-retries", enrich.DefaultMaxRetries, "Metadata lookup attempts per enrichment run")
	attemptDelay := flag.Duration("attempt-delay", enrich.DefaultAttemptDelay, "Delay between lookup attempts")
	workers := flag.Int("workers", ingest.DefaultWorkers, "Enrichment worker count")
	queueSize := flag.Int("queue-size", ingest.DefaultQueueSize, "Enrichment queue capacity")

	flag.Parse()

	logger := log.New(os.Stdout, "[watcher] ", log.LstdFlags|log.Lshortfile)

	if *wsEndpoint == "" {
		logger.Fatal("--ws-endpoint is required")
	}
	if *rpcEndpoint == "" {
		logger.Fatal("--rpc-endpoint is required")
	}
	if err := validateCommitment(*commitment); err != nil {
		logger.Fatalf("Invalid --commitment: %v", err)
	}

	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			})
			logger.Printf("Starting metrics server on %s", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil && err != http.ErrServerClosed {
				logger.Printf("Metrics server error: %v", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan error, 1)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	err := run(ctx, logger, runConfig{
		wsEndpoint:    *wsEndpoint,
		rpcEndpoint:   *rpcEndpoint,
		httpAddr:      *httpAddr,
		commitment:    solana.Commitment(*commitment),
		successTTL:    *successTTL,
		failedTTL:     *failedTTL,
		retryDelay:    *retryDelay,
		sweepInterval: *sweepInterval,
		maxRetries:    *maxRetries,
		attemptDelay:  *attemptDelay,
		workers:       *workers,
		queueSize:     *queueSize,
	})

	done <- err
	cancel()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("Error: %v", err)
	}

	logger.Println("Shutdown complete")
}

type runConfig struct {
	wsEndpoint    string
	rpcEndpoint   string
	httpAddr      string
	commitment    solana.Commitment
	successTTL    time.Duration
	failedTTL     time.Duration
	retryDelay    time.Duration
	sweepInterval time.Duration
	maxRetries    int
	attemptDelay  time.Duration
	workers       int
	queueSize     int
}

// run wires the pipeline and blocks until the context is cancelled.
func run(ctx context.Context, logger *log.Logger, cfg runConfig) error {
	metadataCache := cache.New(cache.Config{
		SuccessTTL:    cfg.successTTL,
		FailedTTL:     cfg.failedTTL,
		RetryDelay:    cfg.retryDelay,
		SweepInterval: cfg.sweepInterval,
	})
	go metadataCache.RunSweeper(ctx)
	go runCacheGauges(ctx, metadataCache)

	notifier := bus.New()
	notifier.Subscribe(bus.TopicMintDetected, func(payload interface{}) {
		if event, ok := payload.(*domain.MintEvent); ok {
			logger.Printf("Mint detected: %s (slot %d, sig %s)", event.Mint, event.Slot, event.Signature)
		}
	})
	notifier.Subscribe(bus.TopicMetadataFound, func(payload interface{}) {
		if found, ok := payload.(enrich.MetadataFound); ok {
			logger.Printf("Metadata found: %s %q (%s)", found.Mint, found.Metadata.Name, found.Metadata.Symbol)
		}
	})

	rpc := solana.NewHTTPClient(cfg.rpcEndpoint)
	source := metadata.New(metadata.Options{
		RPC:        rpc,
		Commitment: cfg.commitment,
		Logger:     logger,
	})

	orchestrator := enrich.New(enrich.Options{
		Cache:        metadataCache,
		Source:       source,
		Notifier:     notifier,
		MaxRetries:   cfg.maxRetries,
		AttemptDelay: cfg.attemptDelay,
		Logger:       logger,
	})

	dispatcher := ingest.NewDispatcher(ingest.DispatcherOptions{
		Enrich:    orchestrator.Enrich,
		QueueSize: cfg.queueSize,
		Workers:   cfg.workers,
		Logger:    logger,
	})
	dispatcher.Start()

	ingestor := ingest.NewIngestor(ingest.IngestorOptions{
		FilterName: filterName,
		Sink:       dispatcher,
		Notifier:   notifier,
		Logger:     logger,
	})

	ws, err := stream.NewWSClient(ctx, cfg.wsEndpoint, nil)
	if err != nil {
		return fmt.Errorf("create websocket client: %w", err)
	}
	defer ws.Close()

	updates, err := ws.SubscribeTransactions(ctx, stream.TransactionFilter{
		Name:            filterName,
		AccountsInclude: []string{ingest.PumpFunProgram, ingest.PumpFunMintAuthority},
	})
	if err != nil {
		return fmt.Errorf("subscribe transactions: %w", err)
	}

	if cfg.httpAddr != "" {
		projection := query.NewProjection(metadataCache)
		go func() {
			logger.Printf("Starting query API on %s", cfg.httpAddr)
			if err := http.ListenAndServe(cfg.httpAddr, queryMux(logger, projection)); err != nil && err != http.ErrServerClosed {
				logger.Printf("Query API error: %v", err)
			}
		}()
	}

	logger.Printf("Watching %s for mint creations...", ingest.PumpFunProgram)
	err = ingestor.Run(ctx, updates)

	// Let in-flight enrichments finish before reporting shutdown.
	dispatcher.Stop()
	return err
}

// runCacheGauges keeps the cache size metrics current.
func runCacheGauges(ctx context.Context, c *cache.MetadataCache) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := c.Stats()
			observability.UpdateCacheGauges(stats.Success, stats.Failed, stats.Pending)
		}
	}
}

func validateCommitment(s string) error {
	switch solana.Commitment(s) {
	case solana.CommitmentProcessed, solana.CommitmentConfirmed, solana.CommitmentFinalized:
		return nil
	}
	return fmt.Errorf("unknown commitment %q", s)
}

// queryMux builds the read-only HTTP API over the projection.
func queryMux(logger *log.Logger, p *query.Projection) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/token", func(w http.ResponseWriter, r *http.Request) {
		mint := r.URL.Query().Get("mint")
		if mint == "" {
			httpError(w, http.StatusBadRequest, "mint parameter is required")
			return
		}
		meta, err := p.GetByMint(mint)
		if errors.Is(err, cache.ErrNotFound) {
			httpError(w, http.StatusNotFound, "token not found")
			return
		}
		writeJSON(logger, w, meta)
	})

	mux.HandleFunc("/api/tokens", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(logger, w, p.AllSuccessful())
	})

	mux.HandleFunc("/api/search", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		if q == "" {
			httpError(w, http.StatusBadRequest, "q parameter is required")
			return
		}
		writeJSON(logger, w, p.Search(q))
	})

	mux.HandleFunc("/api/symbol", func(w http.ResponseWriter, r *http.Request) {
		s := r.URL.Query().Get("s")
		if s == "" {
			httpError(w, http.StatusBadRequest, "s parameter is required")
			return
		}
		writeJSON(logger, w, p.GetBySymbol(s))
	})

	mux.HandleFunc("/api/filter", func(w http.ResponseWriter, r *http.Request) {
		filter, err := parseFilter(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(logger, w, p.FilterBy(filter))
	})

	mux.HandleFunc("/api/recent", func(w http.ResponseWriter, r *http.Request) {
		window := time.Hour
		if raw := r.URL.Query().Get("window"); raw != "" {
			parsed, err := time.ParseDuration(raw)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid window duration")
				return
			}
			window = parsed
		}
		writeJSON(logger, w, p.Recent(window))
	})

	mux.HandleFunc("/api/summary", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(logger, w, p.Summarize())
	})

	mux.HandleFunc("/api/stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(logger, w, p.Stats())
	})

	mux.HandleFunc("/api/export", func(w http.ResponseWriter, r *http.Request) {
		raw, err := p.Export()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "export failed")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(raw)
	})

	return mux
}

// parseFilter builds a query.Filter from URL parameters. Absent parameters
// leave the corresponding field unset.
func parseFilter(r *http.Request) (query.Filter, error) {
	var filter query.Filter
	q := r.URL.Query()

	boolParam := func(name string) (*bool, error) {
		raw := q.Get(name)
		if raw == "" {
			return nil, nil
		}
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %q", name, raw)
		}
		return &v, nil
	}
	intParam := func(name string) (*int, error) {
		raw := q.Get(name)
		if raw == "" {
			return nil, nil
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %q", name, raw)
		}
		return &v, nil
	}

	var err error
	if filter.Mutable, err = boolParam("mutable"); err != nil {
		return filter, err
	}
	if filter.PrimarySaleHappened, err = boolParam("primary_sale"); err != nil {
		return filter, err
	}
	if filter.HasImage, err = boolParam("has_image"); err != nil {
		return filter, err
	}
	if filter.HasDescription, err = boolParam("has_description"); err != nil {
		return filter, err
	}
	if filter.MinFeeBasisPoints, err = intParam("min_fee_bps"); err != nil {
		return filter, err
	}
	if filter.MaxFeeBasisPoints, err = intParam("max_fee_bps"); err != nil {
		return filter, err
	}
	return filter, nil
}

func writeJSON(logger *log.Logger, w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Printf("Encode response: %v", err)
	}
}

func httpError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
