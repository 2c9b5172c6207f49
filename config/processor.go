package config

import (
	"os"
	"time"
)

// ProcessorSettings holds everything needed to talk to the external
// payment processor. The processor is authoritative for actual money
// movement; we only ever read from it.
type ProcessorSettings struct {
	BaseURL          string
	APIKey           string
	RequestTimeout   time.Duration
	FetchConcurrency int
}

// ReconcileTimeBudget is the wall-clock budget for a single reconciliation
// run. It defaults to just under the Cloud Run request timeout so a long
// run truncates cleanly instead of being killed mid-response.
func ReconcileTimeBudget() time.Duration {
	seconds := intFromEnv("RECONCILE_TIME_BUDGET_SECONDS", 55)
	if seconds <= 0 {
		seconds = 55
	}
	return time.Duration(seconds) * time.Second
}

func GetProcessorSettings() ProcessorSettings {
	baseURL := os.Getenv("PROCESSOR_API_BASE_URL")
	if baseURL == "" {
		baseURL = "https://api.processor.example.com"
	}

	concurrency := intFromEnv("PROCESSOR_FETCH_CONCURRENCY", 8)
	if concurrency <= 0 {
		concurrency = 8
	}

	timeout := time.Duration(intFromEnv("PROCESSOR_REQUEST_TIMEOUT_SECONDS", 10)) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return ProcessorSettings{
		BaseURL:          baseURL,
		APIKey:           os.Getenv("PROCESSOR_API_KEY"),
		RequestTimeout:   timeout,
		FetchConcurrency: concurrency,
	}
}
