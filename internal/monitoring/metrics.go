package monitoring

import (
	"context"
	"runtime"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
)

var (
	ordersCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_orders_created_total",
			Help: "Orders created, by owner kind",
		},
		[]string{"owner"},
	)

	orderCodeCollisions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_order_code_collisions_total",
			Help: "Generated order codes rejected as duplicates",
		},
	)

	cartOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_cart_operations_total",
			Help: "Cart operations",
		},
		[]string{"operation"},
	)

	cartsExpired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_carts_expired_total",
			Help: "Expired carts cleared",
		},
		[]string{"trigger"},
	)

	transactions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_transactions_total",
			Help: "Ledger transactions recorded",
		},
		[]string{"type", "method"},
	)

	transactionAmount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_transaction_amount_total",
			Help: "Absolute value of recorded transaction amounts",
		},
		[]string{"type", "currency"},
	)

	unrecordedCharges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_unrecorded_charges_total",
			Help: "Confirmed processor charges whose ledger entry failed to commit",
		},
		[]string{"method"},
	)

	processorCalls = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledger_processor_call_seconds",
			Help:    "Latency of payment processor calls",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"processor", "operation", "status"},
	)

	goroutineCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ledger_active_goroutines",
			Help: "Current number of active goroutines",
		},
	)

	redisPoolConns = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ledger_redis_pool_connections",
			Help: "Redis connection pool state",
		},
		[]string{"state"},
	)
)

func RecordOrderCreated(authenticated bool) {
	owner := "anonymous"
	if authenticated {
		owner = "person"
	}
	ordersCreated.WithLabelValues(owner).Inc()
}

func RecordOrderCodeCollision() {
	orderCodeCollisions.Inc()
}

func RecordCartOperation(operation string) {
	cartOperations.WithLabelValues(operation).Inc()
}

func RecordCartsExpired(trigger string, n int) {
	if n > 0 {
		cartsExpired.WithLabelValues(trigger).Add(float64(n))
	}
}

func RecordTransaction(txnType, method, currency string, amount decimal.Decimal) {
	transactions.WithLabelValues(txnType, method).Inc()
	f, _ := amount.Abs().Float64()
	transactionAmount.WithLabelValues(txnType, currency).Add(f)
}

// RecordUnrecordedCharge counts money taken that the ledger does not show.
// Any increase needs an operator.
func RecordUnrecordedCharge(method string) {
	unrecordedCharges.WithLabelValues(method).Inc()
}

func ObserveProcessorCall(processor, operation string, started time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	processorCalls.WithLabelValues(processor, operation, status).Observe(time.Since(started).Seconds())
}

// Monitor samples runtime and Redis pool gauges.
type Monitor struct {
	redis    *redis.Client
	interval time.Duration
}

func NewMonitor(redisClient *redis.Client, interval time.Duration) *Monitor {
	return &Monitor{redis: redisClient, interval: interval}
}

// Run samples until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		m.collect()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *Monitor) collect() {
	goroutineCount.Set(float64(runtime.NumGoroutine()))
	if m.redis == nil {
		return
	}
	stats := m.redis.PoolStats()
	redisPoolConns.WithLabelValues("total").Set(float64(stats.TotalConns))
	redisPoolConns.WithLabelValues("idle").Set(float64(stats.IdleConns))
	redisPoolConns.WithLabelValues("stale").Set(float64(stats.StaleConns))
}
