package workflow

// DB-free fakes for the reconciliation workflow, in the spirit of keeping
// run-semantics tests independent of MySQL/Redis. Integration against real
// stores belongs in an environment that can run them.

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wavehaus/bookings_backend/models"
	"github.com/wavehaus/bookings_backend/processor"
	"github.com/wavehaus/bookings_backend/utils"
)

type appliedCorrection struct {
	paymentId int
	fix       models.PaymentCorrection
}

type fakeLedger struct {
	mu       sync.Mutex
	payments []models.Payment

	fetchErr   error
	applyErr   error
	conflict   bool
	fetchCalls int
	applied    []appliedCorrection
}

func (l *fakeLedger) PaymentsInWindow(ctx context.Context, from, to time.Time, limit int) ([]models.Payment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fetchCalls++
	if l.fetchErr != nil {
		return nil, l.fetchErr
	}
	var out []models.Payment
	for _, p := range l.payments {
		if p.UpdatedAt.Before(from) || !p.UpdatedAt.Before(to) {
			continue
		}
		out = append(out, p)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (l *fakeLedger) ApplyCorrection(ctx context.Context, paymentId int, observedUpdatedAt time.Time, fix models.PaymentCorrection) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.applyErr != nil {
		return false, l.applyErr
	}
	if l.conflict {
		return false, nil
	}
	for i := range l.payments {
		if l.payments[i].ID != paymentId {
			continue
		}
		if !l.payments[i].UpdatedAt.Equal(observedUpdatedAt) {
			return false, nil
		}
		if fix.Amount != nil {
			l.payments[i].Amount = *fix.Amount
		}
		if fix.RefundedAmount != nil {
			l.payments[i].RefundedAmount = *fix.RefundedAmount
		}
		if fix.Status != nil {
			l.payments[i].Status = *fix.Status
		}
		l.payments[i].UpdatedAt = l.payments[i].UpdatedAt.Add(time.Millisecond)
		l.applied = append(l.applied, appliedCorrection{paymentId: paymentId, fix: fix})
		return true, nil
	}
	return false, nil
}

type fakeGateway struct {
	mu           sync.Mutex
	remotes      map[string]*processor.Payment
	retrieveErrs map[string]error

	listed    []processor.Payment
	listErr   error
	listCalls int

	delay       time.Duration
	inFlight    int64
	maxInFlight int64
}

func (g *fakeGateway) RetrievePayment(ctx context.Context, externalId string) (*processor.Payment, error) {
	current := atomic.AddInt64(&g.inFlight, 1)
	defer atomic.AddInt64(&g.inFlight, -1)
	for {
		observed := atomic.LoadInt64(&g.maxInFlight)
		if current <= observed || atomic.CompareAndSwapInt64(&g.maxInFlight, observed, current) {
			break
		}
	}
	if g.delay > 0 {
		time.Sleep(g.delay)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if err, ok := g.retrieveErrs[externalId]; ok {
		return nil, err
	}
	remote, ok := g.remotes[externalId]
	if !ok {
		return nil, nil
	}
	copied := *remote
	return &copied, nil
}

func (g *fakeGateway) ListPaymentsCreatedBetween(ctx context.Context, from, to time.Time) ([]processor.Payment, int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.listCalls++
	if g.listErr != nil {
		return nil, 1, g.listErr
	}
	return g.listed, 1, nil
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []models.AuditLog
	err     error
}

func (a *fakeAudit) Append(ctx context.Context, entry models.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.entries = append(a.entries, entry)
	return nil
}

type fakeLocker struct {
	mu       sync.Mutex
	held     bool
	acquired int
	released int
}

func (l *fakeLocker) AcquireRunLease(ctx context.Context, ttl time.Duration) (RunLease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return nil, &utils.ConflictError{Message: "another reconciliation run is in progress"}
	}
	l.held = true
	l.acquired++
	return &fakeLease{locker: l}, nil
}

type fakeLease struct {
	locker *fakeLocker
}

func (l *fakeLease) Release(ctx context.Context) error {
	l.locker.mu.Lock()
	defer l.locker.mu.Unlock()
	l.locker.held = false
	l.locker.released++
	return nil
}
