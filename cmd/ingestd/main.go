package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/example/retail-ledger/internal/bank"
	"github.com/example/retail-ledger/internal/config"
	"github.com/example/retail-ledger/internal/receivable"
	"github.com/example/retail-ledger/internal/sales"
	"github.com/example/retail-ledger/pkg/audit"
)

func main() {
	var (
		mode      = flag.String("mode", "", "operation: bank | sales | accounts | recompute | verify-audit")
		bankName  = flag.String("bank", "", "institution for -mode bank (santander, bancon)")
		file      = flag.String("file", "", "input file for bank, sales and accounts modes")
		date      = flag.String("date", "", "single day (YYYY-MM-DD) for -mode sales")
		dateFrom  = flag.String("from", "", "range start (YYYY-MM-DD) for -mode sales")
		dateTo    = flag.String("to", "", "range end (YYYY-MM-DD) for -mode sales")
		onlyToday = flag.Bool("today", false, "import -mode sales as today's batch")
		overwrite = flag.Bool("overwrite", false, "replace batches whose period conflicts")
	)
	flag.Parse()

	// A missing .env is fine; the environment may be set directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		logger.Info("shutdown requested")
		cancel()
	}()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to create database pool: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	journal, err := audit.Open(cfg.AuditDBPath)
	if err != nil {
		log.Fatalf("Failed to open audit journal: %v", err)
	}
	defer journal.Close()

	bankSvc := bank.NewService(bank.NewPostgresStore(pool), logger, journal)
	salesSvc := sales.NewService(sales.NewPostgresStore(pool), logger, journal)
	receivableSvc := receivable.NewService(receivable.NewPostgresStore(pool), logger, journal)

	switch *mode {
	case "bank":
		data := readInput(*file)
		summary, err := bankSvc.ImportStatement(ctx, bank.ImportRequest{
			Bank:      *bankName,
			Filename:  *file,
			Data:      data,
			Overwrite: *overwrite,
		})
		if err != nil {
			log.Fatalf("Bank import failed: %v", err)
		}
		fmt.Printf("batch %d: %d movements, income %.2f, expense %.2f, net %.2f\n",
			summary.BatchID, summary.Movements, summary.Income, summary.Expense, summary.Net)

	case "sales":
		data := readInput(*file)
		req := sales.ImportRequest{
			Filename:  *file,
			Data:      data,
			OnlyToday: *onlyToday,
			Overwrite: *overwrite,
		}
		req.Date = parseDateFlag(*date)
		req.DateFrom = parseDateFlag(*dateFrom)
		req.DateTo = parseDateFlag(*dateTo)

		result, err := salesSvc.ImportPOS(ctx, req)
		if err != nil {
			log.Fatalf("Sales import failed: %v", err)
		}
		fmt.Printf("batch %d (%s): %d rows, total %.2f\n",
			result.BatchID, result.Period, result.Summary.Totals.Rows, result.Summary.Totals.Amount)

	case "accounts":
		data := readInput(*file)
		summary, err := receivableSvc.ImportAccounts(ctx, data)
		if err != nil {
			log.Fatalf("Accounts import failed: %v", err)
		}
		fmt.Printf("%d clients (%d stubs), %d transactions, %d recomputed\n",
			summary.ClientsUpserted, summary.StubClientsCreated, summary.TransactionsUpserted, summary.ClientsRecomputed)

	case "recompute":
		count, err := receivableSvc.RecomputeAll(ctx)
		if err != nil {
			log.Fatalf("Recompute failed: %v", err)
		}
		fmt.Printf("%d clients recomputed\n", count)

	case "verify-audit":
		ok, err := journal.Verify(ctx)
		if err != nil {
			log.Fatalf("Audit verification failed: %v", err)
		}
		if !ok {
			log.Fatal("audit journal hash chain is BROKEN")
		}
		fmt.Println("audit journal hash chain intact")

	default:
		flag.Usage()
		os.Exit(2)
	}
}

func readInput(path string) []byte {
	if path == "" {
		log.Fatal("-file is required for this mode")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("Failed to read %s: %v", path, err)
	}
	return data
}

func parseDateFlag(value string) *time.Time {
	if value == "" {
		return nil
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		log.Fatalf("Invalid date %q (want YYYY-MM-DD)", value)
	}
	return &t
}
