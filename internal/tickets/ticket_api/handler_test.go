package ticket_api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ms-ledger/internal/auth"
	"ms-ledger/internal/logger"
	"ms-ledger/internal/models"
	"ms-ledger/internal/order"
	"ms-ledger/internal/order/db/dbtest"
	rediswrap "ms-ledger/internal/order/redis"
	"ms-ledger/internal/tickets"
	qr "ms-ledger/internal/tickets/qr_genrator"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

type staticOrganizers map[string]bool

func (s staticOrganizers) IsOrganizer(_ context.Context, _, userID string) (bool, error) {
	return s[userID], nil
}

type testEnv struct {
	router http.Handler
	passes *tickets.PassService
	item   *models.BoughtItem
}

// setup creates an anonymous order for session "sess-1" holding one bought pass.
func setup(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})

	store := dbtest.New(t)
	fix := dbtest.Seed(t, store, t0)
	sessions := rediswrap.NewRedis(client, logger.Discard(), rediswrap.Options{LockTTL: time.Minute, LockWait: time.Second, LockRetry: time.Millisecond})
	orders := order.NewOrderService(store, sessions, nil, logger.Discard(), order.Options{Now: func() time.Time { return t0 }})

	o, err := orders.ResolveOrder(ctx, fix.Event.ID, models.Identity{SessionToken: "sess-1"}, true)
	require.NoError(t, err)
	item, err := orders.AddToCart(ctx, o, fix.Pass.ID)
	require.NoError(t, err)
	_, err = store.UpdateBoughtItemStatus(ctx, []string{item.ID}, models.CartStatuses, models.StatusBought)
	require.NoError(t, err)

	passes := tickets.NewPassService(store, qr.NewQRGenerator("secret"), logger.Discard(), func() time.Time { return t0 })

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if user := req.Header.Get("X-Test-User"); user != "" {
				req = req.WithContext(auth.WithUserID(req.Context(), user))
			}
			next.ServeHTTP(w, req)
		})
	})
	NewHandler(passes, orders, staticOrganizers{"organizer-1": true}, logger.Discard()).RegisterRoutes(r)

	return &testEnv{router: r, passes: passes, item: item}
}

func (e *testEnv) do(method, path, session, user, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if session != "" {
		req.Header.Set(auth.SessionHeader, session)
	}
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestGetPass(t *testing.T) {
	env := setup(t)
	path := "/api/ledger/items/" + env.item.ID + "/pass"

	rec := env.do(http.MethodGet, path, "sess-1", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "\x89PNG"))

	assert.Equal(t, http.StatusForbidden, env.do(http.MethodGet, path, "sess-2", "", "").Code)
	assert.Equal(t, http.StatusForbidden, env.do(http.MethodGet, path, "", "attendee-9", "").Code)
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, path, "", "organizer-1", "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/api/ledger/items/missing/pass", "sess-1", "", "").Code)
}

func TestVerifyPass(t *testing.T) {
	env := setup(t)
	pass, _, err := env.passes.Issue(context.Background(), env.item.ID)
	require.NoError(t, err)
	payload, err := env.passes.QR.Payload(*pass)
	require.NoError(t, err)
	body := `{"encrypted_qr":"` + payload + `"}`

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/api/ledger/passes/verify", "", "organizer-1", `{}`).Code)
	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodPost, "/api/ledger/passes/verify", "", "", body).Code)
	assert.Equal(t, http.StatusForbidden, env.do(http.MethodPost, "/api/ledger/passes/verify", "", "attendee-9", body).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/api/ledger/passes/verify", "", "organizer-1", `{"encrypted_qr":"nope"}`).Code)
	assert.Equal(t, http.StatusOK, env.do(http.MethodPost, "/api/ledger/passes/verify", "", "organizer-1", body).Code)
}
