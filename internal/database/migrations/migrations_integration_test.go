//go:build integration

package migrations_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"ms-ledger/internal/analytics"
	"ms-ledger/internal/config"
	"ms-ledger/internal/database/migrations"
	"ms-ledger/internal/logger"
	"ms-ledger/internal/models"
	"ms-ledger/internal/order"
	"ms-ledger/internal/order/db"
	rediswrap "ms-ledger/internal/order/redis"
	"ms-ledger/internal/payment"
	"ms-ledger/internal/payment/services"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	demoEvent  = "22222222-2222-2222-2222-222222222222"
	demoPass   = "44444444-4444-4444-4444-444444444441"
	demoDinner = "44444444-4444-4444-4444-444444444442"
)

func startPostgres(t *testing.T) *db.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping PostgreSQL integration test in short mode")
	}

	ctx := context.Background()
	pg, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "ledger",
				"POSTGRES_PASSWORD": "ledger",
				"POSTGRES_DB":       "ledger",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err, "Failed to start PostgreSQL container")
	t.Cleanup(func() { pg.Terminate(ctx) })

	host, err := pg.Host(ctx)
	require.NoError(t, err)
	port, err := pg.MappedPort(ctx, "5432")
	require.NoError(t, err)

	store, err := db.OpenPostgres(ctx, config.DatabaseConfig{
		DSN:          fmt.Sprintf("postgres://ledger:ledger@%s:%s/ledger?sslmode=disable", host, port.Port()),
		MaxOpenConns: 5,
		MaxIdleConns: 5,
		MaxLifetime:  time.Minute,
		ConnRetries:  5,
	}, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { store.Bun.Close() })
	return store
}

func TestRunMigrations_SchemaThenSeed(t *testing.T) {
	store := startPostgres(t)
	ctx := context.Background()

	runner := migrations.NewRunner(store.Bun, migrations.MigrateOptions{MigrationsDir: "../../../migrations"}, nil)
	require.NoError(t, runner.RunMigrations())

	v, dirty, err := runner.Version()
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, migrations.SchemaVersion, v)

	_, err = store.GetEvent(ctx, demoEvent)
	assert.ErrorIs(t, err, models.ErrEventNotFound, "schema-only run must not seed")

	require.NoError(t, runner.MigrateUp())
	event, err := store.GetEvent(ctx, demoEvent)
	require.NoError(t, err)
	assert.Equal(t, "Lindy Weekend", event.Name)

	require.NoError(t, runner.MigrateDown())
	v, _, err = runner.Version()
	require.NoError(t, err)
	assert.Zero(t, v)
	require.NoError(t, runner.Close())
}

func TestPurchaseAndRefundOnPostgres(t *testing.T) {
	store := startPostgres(t)
	ctx := context.Background()

	runner := migrations.NewRunner(store.Bun, migrations.MigrateOptions{MigrationsDir: "../../../migrations", SeedData: true}, nil)
	require.NoError(t, runner.RunMigrations())
	defer runner.Close()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	locks := rediswrap.NewRedis(client, logger.Discard(), rediswrap.Options{
		LockTTL:   time.Minute,
		LockWait:  5 * time.Second,
		LockRetry: 10 * time.Millisecond,
	})
	orders := order.NewOrderService(store, locks, nil, logger.Discard(), order.Options{})
	ledger := payment.NewLedgerService(store, orders, locks, nil, logger.Discard(), payment.Options{})
	ledger.RegisterProcessor(models.MethodFake, services.NewFakeProcessor())

	o, err := orders.ResolveOrder(ctx, demoEvent, models.Identity{PersonID: "person-pg"}, true)
	require.NoError(t, err)
	_, err = orders.AddToCart(ctx, o, demoPass)
	require.NoError(t, err)
	_, err = orders.AddToCart(ctx, o, demoDinner)
	require.NoError(t, err)

	discount, err := store.GetDiscountByCode(ctx, demoEvent, "FLAT10")
	require.NoError(t, err)
	applied, err := orders.AddDiscount(ctx, o, discount)
	require.NoError(t, err)
	require.True(t, applied)

	purchase, err := ledger.Checkout(ctx, o.ID, models.CheckoutRequest{Method: models.MethodFake, Token: "tok_visa"}, "person-pg")
	require.NoError(t, err)
	assert.Equal(t, "70.00", purchase.Amount.StringFixed(2))

	refund, err := ledger.Refund(ctx, purchase.ID, models.RefundRequest{}, "organizer-pg")
	require.NoError(t, err)
	require.NotNil(t, refund)
	assert.Equal(t, "-70.00", refund.Amount.StringFixed(2))

	in, err := analytics.LoadSummaryInput(ctx, store, o.ID)
	require.NoError(t, err)
	sum := analytics.Summarize(in)
	assert.True(t, sum.NetBalance.IsZero())
	assert.Equal(t, "-70.00", sum.TotalRefunds.StringFixed(2))

	items, err := store.ListBoughtItems(ctx, o.ID, models.StatusRefunded)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}
