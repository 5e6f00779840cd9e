package monitoring

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestRecordTransaction(t *testing.T) {
	before := testutil.ToFloat64(transactions.WithLabelValues("refund", "fake"))
	beforeAmount := testutil.ToFloat64(transactionAmount.WithLabelValues("refund", "usd"))

	RecordTransaction("refund", "fake", "usd", decimal.RequireFromString("-12.50"))

	assert.Equal(t, before+1, testutil.ToFloat64(transactions.WithLabelValues("refund", "fake")))
	assert.InDelta(t, beforeAmount+12.5, testutil.ToFloat64(transactionAmount.WithLabelValues("refund", "usd")), 0.001)
}

func TestRecordCartsExpiredIgnoresZero(t *testing.T) {
	before := testutil.ToFloat64(cartsExpired.WithLabelValues("sweep"))
	RecordCartsExpired("sweep", 0)
	RecordCartsExpired("sweep", 3)
	assert.Equal(t, before+3, testutil.ToFloat64(cartsExpired.WithLabelValues("sweep")))
}

func TestRecordOrderCreated(t *testing.T) {
	before := testutil.ToFloat64(ordersCreated.WithLabelValues("anonymous"))
	RecordOrderCreated(false)
	assert.Equal(t, before+1, testutil.ToFloat64(ordersCreated.WithLabelValues("anonymous")))
}

func TestRecordUnrecordedCharge(t *testing.T) {
	before := testutil.ToFloat64(unrecordedCharges.WithLabelValues("stripe"))
	RecordUnrecordedCharge("stripe")
	assert.Equal(t, before+1, testutil.ToFloat64(unrecordedCharges.WithLabelValues("stripe")))
}

func TestObserveProcessorCall(t *testing.T) {
	ObserveProcessorCall("fake", "charge", time.Now(), errors.New("declined"))
	assert.Equal(t, 1, testutil.CollectAndCount(processorCalls))
}

func TestMonitorCollectWithoutRedis(t *testing.T) {
	m := NewMonitor(nil, time.Second)
	m.collect()
	assert.Greater(t, testutil.ToFloat64(goroutineCount), 0.0)
}
