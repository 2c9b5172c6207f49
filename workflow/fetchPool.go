package workflow

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wavehaus/bookings_backend/models"
	"github.com/wavehaus/bookings_backend/processor"
)

// fetchResult pairs a local payment with the processor state resolved for
// it. Exactly one of remote/err is meaningful when the payment carries an
// external id; skipped marks payments the time budget cut off before they
// were dispatched.
type fetchResult struct {
	payment models.Payment
	remote  *processor.Payment
	err     error
	skipped bool
}

// fetchRemoteStates resolves processor state for every payment under a
// bounded worker pool, preserving input order in the results. Payments
// without an external id pass straight through (nothing to fetch). Each
// retrieve counts against apiCalls whether or not it succeeds.
//
// The dispatcher stops handing out work once deadline passes; remaining
// payments come back skipped and the second return value reports the
// truncation. Every dispatched payment is fully resolved (success or
// recorded failure) before this returns.
func fetchRemoteStates(ctx context.Context, gateway ProcessorGateway, payments []models.Payment, concurrency int, deadline time.Time, apiCalls *int64) ([]fetchResult, bool) {
	results := make([]fetchResult, len(payments))
	if len(payments) == 0 {
		return results, false
	}

	if concurrency <= 0 {
		concurrency = 1
	}
	if concurrency > len(payments) {
		concurrency = len(payments)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				payment := payments[idx]
				if payment.ExternalPaymentId == nil {
					results[idx] = fetchResult{payment: payment}
					continue
				}
				remote, err := gateway.RetrievePayment(ctx, *payment.ExternalPaymentId)
				atomic.AddInt64(apiCalls, 1)
				results[idx] = fetchResult{payment: payment, remote: remote, err: err}
			}
		}()
	}

	truncated := false
	for idx := range payments {
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			for rest := idx; rest < len(payments); rest++ {
				results[rest] = fetchResult{payment: payments[rest], skipped: true}
			}
			truncated = true
			break
		}
		jobs <- idx
	}
	close(jobs)
	wg.Wait()

	return results, truncated
}
