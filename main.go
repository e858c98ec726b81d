package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/shopspring/decimal"

	standingordercharges "payroll-cloud/internal/allocation/adapters/standingorder"
	apihttp "payroll-cloud/internal/api/http"
	allocapp "payroll-cloud/internal/allocation/application"
	"payroll-cloud/internal/allocation/infrastructure/lookup"
	allocpolicy "payroll-cloud/internal/allocation/infrastructure/policy"
	allocrepo "payroll-cloud/internal/allocation/infrastructure/postgres"
	"payroll-cloud/internal/audit"
	"payroll-cloud/internal/auth"
	executionapp "payroll-cloud/internal/execution/application"
	executionrepo "payroll-cloud/internal/execution/infrastructure/postgres"
	executionhttp "payroll-cloud/internal/execution/interfaces/http"
	ingestapp "payroll-cloud/internal/ingestion/application"
	ingestrepo "payroll-cloud/internal/ingestion/infrastructure/postgres"
	"payroll-cloud/internal/ingestion/infrastructure/storage"
	ingesthttp "payroll-cloud/internal/ingestion/interfaces/http"
	"payroll-cloud/internal/ledger"
	"payroll-cloud/internal/notify"
	"payroll-cloud/internal/observability/metrics"
	payrollapp "payroll-cloud/internal/payroll/application"
	payrollrepo "payroll-cloud/internal/payroll/infrastructure/postgres"
	orderapp "payroll-cloud/internal/standingorder/application"
	orderrepo "payroll-cloud/internal/standingorder/infrastructure/postgres"
	orderhttp "payroll-cloud/internal/standingorder/interfaces/http"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := loadConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("db open error: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatalf("db ping error: %v", err)
	}

	metrics.Init(db, logger)
	auditRepo := audit.NewRepository(db)

	fileRepo := ingestrepo.NewFileRepository(db)
	lineRepo := payrollrepo.NewLineRepository(db)
	resultRepo := allocrepo.NewResultRepository(db)
	claimRepo := executionrepo.NewClaimRepository(db)
	runRepo := executionrepo.NewRunRepository(db)
	standingOrderRepo := orderrepo.NewOrderRepository(db)
	orderRunRepo := orderrepo.NewRunRepository(db)

	rawStore, err := storage.NewDiskStore(cfg.StorageRoot)
	if err != nil {
		logger.Fatalf("raw store error: %v", err)
	}
	ingestService, err := ingestapp.NewService(fileRepo, rawStore)
	if err != nil {
		logger.Fatalf("ingestion service error: %v", err)
	}

	ledgerClient, err := ledger.NewClient(cfg.LedgerBaseURL, cfg.LedgerToken)
	if err != nil {
		logger.Fatalf("ledger client error: %v", err)
	}
	lookupClient, err := lookup.NewClient(cfg.LookupBaseURL, cfg.LookupToken)
	if err != nil {
		logger.Fatalf("lookup client error: %v", err)
	}

	var policies allocapp.PolicySource = lookupClient
	if cfg.SavingsRate != "" {
		rate, err := decimal.NewFromString(cfg.SavingsRate)
		if err != nil {
			logger.Fatalf("savings rate error: %v", err)
		}
		share, err := decimal.NewFromString(cfg.ShareAmount)
		if err != nil {
			logger.Fatalf("share amount error: %v", err)
		}
		fixed, err := allocpolicy.NewFixedPolicyProvider(rate, share)
		if err != nil {
			logger.Fatalf("policy provider error: %v", err)
		}
		policies = fixed
	}

	chargeReader := standingordercharges.NewChargeReader(db)
	analyzer, err := allocapp.NewAnalyzer(lookupClient, policies, chargeReader, lineRepo, fileRepo, resultRepo, logger)
	if err != nil {
		logger.Fatalf("analyzer error: %v", err)
	}

	var orchestratorOpts []executionapp.Option
	if cfg.AlertWebhookURL != "" {
		orchestratorOpts = append(orchestratorOpts, executionapp.WithNotifier(notify.NewWebhookNotifier(cfg.AlertWebhookURL)))
	}
	orchestrator, err := executionapp.NewOrchestrator(fileRepo, lineRepo, claimRepo, runRepo, ledgerClient, ledgerClient, auditRepo, logger, orchestratorOpts...)
	if err != nil {
		logger.Fatalf("orchestrator error: %v", err)
	}

	orderService, err := orderapp.NewService(standingOrderRepo, orderRunRepo, ledgerClient, ledgerClient, ledgerClient, logger)
	if err != nil {
		logger.Fatalf("standing order service error: %v", err)
	}
	orderCfg, err := orderapp.LoadConfig()
	if err != nil {
		logger.Fatalf("standing order config error: %v", err)
	}
	orderScheduler := orderapp.NewScheduler(orderService, orderCfg.Schedule.DailyAt, logger)
	go orderScheduler.Start(context.Background())

	fileHandler, err := ingesthttp.NewHandler(ingestService, payrollapp.ParseWorkbook, analyzer, fileRepo, resultRepo, auditRepo)
	if err != nil {
		logger.Fatalf("file handler error: %v", err)
	}
	executeHandler, err := executionhttp.NewHandler(orchestrator, runRepo, fileRepo)
	if err != nil {
		logger.Fatalf("execution handler error: %v", err)
	}
	orderHandler, err := orderhttp.NewHandler(orderService, auditRepo)
	if err != nil {
		logger.Fatalf("standing order handler error: %v", err)
	}

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/payroll/files", fileHandler)
	mux.Handle("/api/v1/payroll/files/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if executionhttp.Routes(r.URL.Path) {
			executeHandler.ServeHTTP(w, r)
			return
		}
		fileHandler.ServeHTTP(w, r)
	}))
	mux.Handle("/api/v1/payroll/lines", apihttp.NewLinesHandler(db))
	mux.Handle("/api/v1/exports/lines.csv", apihttp.NewExportLinesCSVHandler(db))
	mux.Handle("/api/v1/standing-orders", orderHandler)
	mux.Handle("/api/v1/standing-orders/", orderHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: loggingMiddleware(authMiddleware.Wrap(mux), logger)}
	logger.Printf("http listening on %s", cfg.HTTPAddr)
	logger.Fatal(server.ListenAndServe())
}

type config struct {
	DatabaseURL     string
	HTTPAddr        string
	StorageRoot     string
	LedgerBaseURL   string
	LedgerToken     string
	LookupBaseURL   string
	LookupToken     string
	SavingsRate     string
	ShareAmount     string
	JWTSecret       string
	AlertWebhookURL string
}

func loadConfig() config {
	cfg := config{
		DatabaseURL:     getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:        getenvDefault("HTTP_ADDR", ":8080"),
		StorageRoot:     getenvDefault("STORAGE_ROOT", "var/payroll/files"),
		LedgerBaseURL:   getenvDefault("LEDGER_BASE_URL", ""),
		LedgerToken:     getenvDefault("LEDGER_TOKEN", ""),
		LookupBaseURL:   getenvDefault("LOOKUP_BASE_URL", ""),
		LookupToken:     getenvDefault("LOOKUP_TOKEN", ""),
		SavingsRate:     getenvDefault("SAVINGS_RATE", ""),
		ShareAmount:     getenvDefault("SHARE_AMOUNT", "0"),
		JWTSecret:       getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		AlertWebhookURL: getenvDefault("ALERT_WEBHOOK_URL", ""),
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL or PG_DSN is required")
	}
	if cfg.LedgerBaseURL == "" {
		log.Fatal("LEDGER_BASE_URL is required")
	}
	if cfg.LookupBaseURL == "" {
		log.Fatal("LOOKUP_BASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		log.Fatal("AUTH_JWT_SECRET is required")
	}
	return cfg
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
