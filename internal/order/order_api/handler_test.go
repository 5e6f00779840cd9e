package order_api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ms-ledger/internal/analytics"
	"ms-ledger/internal/auth"
	"ms-ledger/internal/logger"
	"ms-ledger/internal/models"
	"ms-ledger/internal/order"
	"ms-ledger/internal/order/db/dbtest"
	rediswrap "ms-ledger/internal/order/redis"
	"ms-ledger/internal/sse"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

type staticOrganizers map[string]bool

func (s staticOrganizers) IsOrganizer(_ context.Context, _, userID string) (bool, error) {
	return s[userID], nil
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

type testEnv struct {
	router  http.Handler
	fix     *dbtest.Fixture
	emitter *sse.LedgerEmitter
}

func setup(t *testing.T) *testEnv {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})

	store := dbtest.New(t)
	fix := dbtest.Seed(t, store, t0)
	now := func() time.Time { return t0 }
	sessions := rediswrap.NewRedis(client, logger.Discard(), rediswrap.Options{LockTTL: time.Minute, LockWait: time.Second, LockRetry: time.Millisecond})
	orders := order.NewOrderService(store, sessions, nil, logger.Discard(), order.Options{Now: now})
	organizers := staticOrganizers{"organizer-1": true}
	emitter := sse.NewLedgerEmitter()

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if user := req.Header.Get("X-Test-User"); user != "" {
				req = req.WithContext(auth.WithUserID(req.Context(), user))
			}
			next.ServeHTTP(w, req)
		})
	})
	NewHandler(orders, order.NewCatalogService(store, now), analytics.NewSummaryService(store, orders), organizers, logger.Discard(), time.Hour).RegisterRoutes(r)
	NewSSEHandler(logger.Discard(), emitter, store, organizers).RegisterRoutes(r)

	return &testEnv{router: r, fix: fix, emitter: emitter}
}

func (e *testEnv) do(t *testing.T, method, path, session, user, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if session != "" {
		req.Header.Set(auth.SessionHeader, session)
	}
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

// open resolves a fresh order for session and returns its id.
func (e *testEnv) open(t *testing.T, session string) string {
	t.Helper()
	rec, env := e.do(t, http.MethodPost, "/api/ledger/events/"+e.fix.Event.ID+"/order", session, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var view struct {
		Order models.Order `json:"order"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &view))
	return view.Order.ID
}

func summaryOf(t *testing.T, env envelope) analytics.Summary {
	t.Helper()
	var sum analytics.Summary
	require.NoError(t, json.Unmarshal(env.Data, &sum))
	return sum
}

func TestResolveOrder_MintsSessionAndReusesOrder(t *testing.T) {
	e := setup(t)
	path := "/api/ledger/events/" + e.fix.Event.ID + "/order"

	rec, _ := e.do(t, http.MethodGet, path, "", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, env := e.do(t, http.MethodPost, path, "", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	session := rec.Header().Get(auth.SessionHeader)
	require.NotEmpty(t, session)
	assert.Contains(t, rec.Header().Get("Set-Cookie"), auth.SessionCookie+"=")

	var first struct {
		Order   models.Order      `json:"order"`
		Summary analytics.Summary `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &first))
	assert.Len(t, first.Order.Code, 8)
	assert.Empty(t, first.Summary.Buckets)

	rec, env = e.do(t, http.MethodGet, path, session, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var again struct {
		Order models.Order `json:"order"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &again))
	assert.Equal(t, first.Order.ID, again.Order.ID)

	rec, _ = e.do(t, http.MethodPost, "/api/ledger/events/missing/order", session, "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCartFlow(t *testing.T) {
	e := setup(t)
	orderID := e.open(t, "sess-1")
	base := "/api/ledger/orders/" + orderID

	rec, env := e.do(t, http.MethodPost, base+"/items", "sess-1", "", `{"option_id":"`+e.fix.Pass.ID+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var pass models.BoughtItem
	require.NoError(t, json.Unmarshal(env.Data, &pass))
	assert.Equal(t, models.StatusReserved, pass.Status)

	rec, env = e.do(t, http.MethodPost, base+"/items", "sess-1", "", `{"option_id":"`+e.fix.Dinner.ID+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var dinner models.BoughtItem
	require.NoError(t, json.Unmarshal(env.Data, &dinner))

	rec, env = e.do(t, http.MethodPost, base+"/discounts", "sess-1", "", `{"code":"FLAT10"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Discount applied", env.Message)
	rec, env = e.do(t, http.MethodPost, base+"/discounts", "sess-1", "", `{"code":"FLAT10"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Discount not applicable", env.Message)

	rec, env = e.do(t, http.MethodGet, base+"/summary", "sess-1", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	sum := summaryOf(t, env)
	assert.True(t, sum.GrossCost.Equal(decimal.RequireFromString("80")))
	assert.True(t, sum.TotalSavings.Equal(decimal.RequireFromString("-10")))
	assert.True(t, sum.NetCost.Equal(decimal.RequireFromString("70")))

	rec, _ = e.do(t, http.MethodDelete, base+"/items/"+dinner.ID, "sess-1", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	_, env = e.do(t, http.MethodGet, base+"/summary", "sess-1", "", "")
	assert.True(t, summaryOf(t, env).NetCost.Equal(decimal.RequireFromString("40")))

	rec, _ = e.do(t, http.MethodDelete, base+"/cart", "sess-1", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	_, env = e.do(t, http.MethodGet, base+"/summary", "sess-1", "", "")
	assert.Empty(t, summaryOf(t, env).Buckets)
}

func TestCartRejectsBadRequests(t *testing.T) {
	e := setup(t)
	orderID := e.open(t, "sess-1")
	base := "/api/ledger/orders/" + orderID

	rec, _ := e.do(t, http.MethodPost, base+"/items", "sess-2", "", `{"option_id":"`+e.fix.Pass.ID+`"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = e.do(t, http.MethodPost, base+"/items", "sess-1", "", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = e.do(t, http.MethodPost, base+"/items", "sess-1", "", `{"option_id":"missing"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = e.do(t, http.MethodPost, base+"/discounts", "sess-1", "", `{"code":"NOPE"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = e.do(t, http.MethodGet, "/api/ledger/orders/missing/summary", "sess-1", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = e.do(t, http.MethodGet, base+"/summary", "", "organizer-1", "")
	assert.Equal(t, http.StatusOK, rec.Code, "organizers can read any summary")
}

func TestForceDiscountIsForOrganizers(t *testing.T) {
	e := setup(t)
	orderID := e.open(t, "sess-1")
	base := "/api/ledger/orders/" + orderID

	rec, _ := e.do(t, http.MethodPost, base+"/items", "sess-1", "", `{"option_id":"`+e.fix.Pass.ID+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, _ = e.do(t, http.MethodPost, base+"/discounts", "sess-1", "", `{"code":"FLAT10","force":true}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, env := e.do(t, http.MethodPost, base+"/discounts", "", "organizer-1", `{"code":"FLAT10","force":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Discount applied", env.Message)
}

func TestEventStream(t *testing.T) {
	e := setup(t)
	path := "/api/ledger/events/" + e.fix.Event.ID + "/stream"

	rec, _ := e.do(t, http.MethodGet, path, "", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec, _ = e.do(t, http.MethodGet, path, "", "attendee-1", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec, _ = e.do(t, http.MethodGet, "/api/ledger/events/missing/stream", "", "organizer-1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	srv := httptest.NewServer(e.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+path, nil)
	require.NoError(t, err)
	req.Header.Set("X-Test-User", "organizer-1")
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream;charset=UTF-8", resp.Header.Get("Content-Type"))

	lines := bufio.NewScanner(resp.Body)
	require.True(t, lines.Scan())
	assert.Equal(t, "event: connected", lines.Text())

	e.emitter.Emit(models.LedgerEvent{Type: models.LedgerOrderPaid, EventID: e.fix.Event.ID, OrderID: "order-1", Amount: decimal.RequireFromString("70")})

	var got []string
	for lines.Scan() {
		if line := lines.Text(); strings.HasPrefix(line, "event: ") && line != "event: connected" {
			got = append(got, line)
			require.True(t, lines.Scan())
			assert.Contains(t, lines.Text(), `"order_id":"order-1"`)
			break
		}
	}
	assert.Equal(t, []string{"event: " + models.LedgerOrderPaid}, got)
}
