package analytics_api

import (
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
	"ms-ledger/internal/order/db/dbtest"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticOrganizers map[string]bool

func (s staticOrganizers) IsOrganizer(_ context.Context, _, userID string) (bool, error) {
	return s[userID], nil
}

func setup(t *testing.T) (http.Handler, *dbtest.Fixture) {
	t.Helper()
	now := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)
	store := dbtest.New(t)
	fix := dbtest.Seed(t, store, now)
	o := dbtest.NewOrder(t, store, fix.Event.ID, "", now)
	dbtest.NewItem(t, store, o.ID, fix.Pass, fix.Item, models.StatusReserved, now)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if user := req.Header.Get("X-Test-User"); user != "" {
				req = req.WithContext(auth.WithUserID(req.Context(), user))
			}
			next.ServeHTTP(w, req)
		})
	})
	NewHandler(analytics.NewService(store), staticOrganizers{"organizer-1": true}, logger.Discard()).RegisterRoutes(r)
	return r, fix
}

func get(h http.Handler, method, path, user, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestEventAnalyticsAuthorization(t *testing.T) {
	h, fix := setup(t)
	path := "/api/ledger/analytics/events/" + fix.Event.ID

	assert.Equal(t, http.StatusUnauthorized, get(h, http.MethodGet, path, "", "").Code)
	assert.Equal(t, http.StatusForbidden, get(h, http.MethodGet, path, "attendee-1", "").Code)
	assert.Equal(t, http.StatusNotFound, get(h, http.MethodGet, "/api/ledger/analytics/events/missing", "organizer-1", "").Code)

	rec := get(h, http.MethodGet, path, "organizer-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Success bool                     `json:"success"`
		Data    analytics.EventAnalytics `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, fix.Event.ID, resp.Data.EventID)
	assert.Equal(t, 0, resp.Data.ItemsSold)
}

func TestEventOrdersQuery(t *testing.T) {
	h, fix := setup(t)
	path := "/api/ledger/analytics/events/" + fix.Event.ID + "/orders"

	assert.Equal(t, http.StatusBadRequest, get(h, http.MethodGet, path+"?limit=-1", "organizer-1", "").Code)

	rec := get(h, http.MethodGet, path+"?balance_due=true", "organizer-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Data []analytics.OrderOverview `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "50.00", resp.Data[0].Summary.NetBalance.StringFixed(2))
}

func TestBatchAndOrganization(t *testing.T) {
	h, fix := setup(t)

	assert.Equal(t, http.StatusBadRequest, get(h, http.MethodPost, "/api/ledger/analytics/events/batch", "organizer-1", `{}`).Code)
	assert.Equal(t, http.StatusForbidden, get(h, http.MethodPost, "/api/ledger/analytics/events/batch", "attendee-1", `{"event_ids":["`+fix.Event.ID+`"]}`).Code)
	assert.Equal(t, http.StatusOK, get(h, http.MethodPost, "/api/ledger/analytics/events/batch", "organizer-1", `{"event_ids":["`+fix.Event.ID+`"]}`).Code)

	assert.Equal(t, http.StatusForbidden, get(h, http.MethodGet, "/api/ledger/analytics/organizations/"+fix.Org.ID, "attendee-1", "").Code)
	assert.Equal(t, http.StatusOK, get(h, http.MethodGet, "/api/ledger/analytics/organizations/"+fix.Org.ID, "organizer-1", "").Code)
}
