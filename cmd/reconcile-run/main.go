package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/wavehaus/bookings_backend/config"
	"github.com/wavehaus/bookings_backend/models"
	"github.com/wavehaus/bookings_backend/processor"
	"github.com/wavehaus/bookings_backend/utils"
	"github.com/wavehaus/bookings_backend/workflow"
)

// One-shot reconciliation run from the shell. Same workflow as the HTTP
// endpoint, useful for cron jobs and incident response.
func main() {
	from := flag.String("from", "", "Optional: window start (YYYY-MM-DD). Defaults to 30 days before -to.")
	to := flag.String("to", "", "Optional: window end (YYYY-MM-DD). Defaults to now.")
	limit := flag.Int("limit", 0, "Optional: max payments to check (1-1000, default 100).")
	autoCorrect := flag.Bool("auto-correct", false, "Apply safe corrections to the local ledger.")
	flag.Parse()

	ctx := context.Background()
	// Explicit DB connect (config no longer connects DB in init()).
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}

	// Ensure schema is up-to-date.
	models.MigrateTable()

	var req models.ReconciliationRequest
	if *from != "" {
		d, err := time.Parse("2006-01-02", *from)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid -from: %v\n", err)
			os.Exit(1)
		}
		req.DateFrom = &d
	}
	if *to != "" {
		d, err := time.Parse("2006-01-02", *to)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid -to: %v\n", err)
			os.Exit(1)
		}
		req.DateTo = &d
	}
	if *limit > 0 {
		req.Limit = limit
	}
	req.AutoCorrect = autoCorrect

	logger := config.GetLogger()
	settings := config.GetProcessorSettings()

	// Audit entries from this tool carry the tool name as principal.
	ctx = utils.SetUsernameInContext(ctx, "ReconcileRunCLI")

	reconciler := &workflow.Reconciler{
		Ledger:           &models.PaymentStore{DB: db},
		Gateway:          processor.NewClient(settings, logger),
		Audit:            &models.AuditLogStore{DB: db},
		Locker:           workflow.NewRedisRunLocker(config.GetRedisLock()),
		Logger:           logger,
		FetchConcurrency: settings.FetchConcurrency,
		TimeBudget:       config.ReconcileTimeBudget(),
	}

	report, err := reconciler.Run(ctx, req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reconciliation failed: %v\n", err)
		os.Exit(1)
	}

	output, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to render report: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(output))
}
