package workflow

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wavehaus/bookings_backend/models"
	"github.com/wavehaus/bookings_backend/processor"
)

func poolPayments(n int) ([]models.Payment, map[string]*processor.Payment) {
	payments := make([]models.Payment, 0, n)
	remotes := map[string]*processor.Payment{}
	for i := 1; i <= n; i++ {
		externalId := fmt.Sprintf("pi_%d", i)
		payments = append(payments, models.Payment{
			ID:                i,
			ExternalPaymentId: &externalId,
			Amount:            decimal.NewFromInt(int64(i)),
			Status:            models.PaymentStatusCompleted,
		})
		remotes[externalId] = &processor.Payment{ID: externalId, Amount: int64(i) * 100, Status: processor.PaymentStatusSucceeded}
	}
	return payments, remotes
}

func TestFetchRemoteStates_PreservesInputOrder(t *testing.T) {
	payments, remotes := poolPayments(20)
	gateway := &fakeGateway{remotes: remotes}

	var calls int64
	results, truncated := fetchRemoteStates(context.Background(), gateway, payments, 5, time.Time{}, &calls)

	assert.False(t, truncated)
	require.Len(t, results, 20)
	for i, result := range results {
		assert.Equal(t, payments[i].ID, result.payment.ID)
		require.NotNil(t, result.remote)
		assert.Equal(t, *payments[i].ExternalPaymentId, result.remote.ID)
	}
}

func TestFetchRemoteStates_CountsOneCallPerExternalId(t *testing.T) {
	payments, remotes := poolPayments(6)
	// Two payments without an external id cost no API call.
	payments = append(payments, models.Payment{ID: 100}, models.Payment{ID: 101})
	gateway := &fakeGateway{remotes: remotes}

	var calls int64
	results, _ := fetchRemoteStates(context.Background(), gateway, payments, 3, time.Time{}, &calls)

	assert.Equal(t, int64(6), calls)
	assert.Nil(t, results[6].remote)
	assert.NoError(t, results[6].err)
	assert.False(t, results[6].skipped)
}

func TestFetchRemoteStates_BoundsConcurrency(t *testing.T) {
	payments, remotes := poolPayments(30)
	gateway := &fakeGateway{remotes: remotes, delay: 5 * time.Millisecond}

	var calls int64
	fetchRemoteStates(context.Background(), gateway, payments, 4, time.Time{}, &calls)

	assert.LessOrEqual(t, gateway.maxInFlight, int64(4))
}

func TestFetchRemoteStates_FailuresStayPerPayment(t *testing.T) {
	payments, remotes := poolPayments(3)
	gateway := &fakeGateway{
		remotes:      remotes,
		retrieveErrs: map[string]error{"pi_2": assert.AnError},
	}

	var calls int64
	results, truncated := fetchRemoteStates(context.Background(), gateway, payments, 2, time.Time{}, &calls)

	assert.False(t, truncated)
	assert.NoError(t, results[0].err)
	assert.Error(t, results[1].err)
	assert.NoError(t, results[2].err)
	assert.Equal(t, int64(3), calls, "a failed retrieve still spent an API call")
}

func TestFetchRemoteStates_ExpiredDeadlineSkipsEverything(t *testing.T) {
	payments, remotes := poolPayments(5)
	gateway := &fakeGateway{remotes: remotes}

	var calls int64
	results, truncated := fetchRemoteStates(context.Background(), gateway, payments, 2, time.Now().Add(-time.Second), &calls)

	assert.True(t, truncated)
	assert.Equal(t, int64(0), calls)
	for _, result := range results {
		assert.True(t, result.skipped)
	}
}

func TestFetchRemoteStates_EmptyInput(t *testing.T) {
	gateway := &fakeGateway{}

	var calls int64
	results, truncated := fetchRemoteStates(context.Background(), gateway, nil, 5, time.Time{}, &calls)

	assert.Empty(t, results)
	assert.False(t, truncated)
}
