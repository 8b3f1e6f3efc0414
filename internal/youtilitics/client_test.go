package youtilitics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/api/v1/", srv.Client(), zap.NewNop())
}

func TestFetchAccounts(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/services", r.URL.Path)
		w.Write([]byte(`[{"id":"acc-1","utility":{"id":"u","slug":"s","name":"Utility","services":[1]},"services":[{"id":"svc-1","type":1,"remote_id":"R"}]}]`))
	})

	accounts, err := client.FetchAccounts(context.Background())
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "svc-1", accounts[0].Services[0].ID)
}

func TestFetchServiceTypes(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/utilities/services", r.URL.Path)
		w.Write([]byte(`{"Electricity":10,"Water":30}`))
	})

	types, err := client.FetchServiceTypes(context.Background())
	require.NoError(t, err)
	require.NotNil(t, types.Electricity)
	assert.Equal(t, 10, *types.Electricity)
	assert.Nil(t, types.Gas)
}

func TestFetchReadings_SinceQuery(t *testing.T) {
	var gotQuery string
	var hasQuery bool
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/services/svc-1", r.URL.Path)
		gotQuery = r.URL.Query().Get("last")
		_, hasQuery = r.URL.Query()["last"]
		w.Write([]byte(`[]`))
	})

	_, err := client.FetchReadings(context.Background(), "svc-1", "")
	require.NoError(t, err)
	assert.False(t, hasQuery)

	_, err = client.FetchReadings(context.Background(), "svc-1", "2024-01-01T01:00:00+00:00")
	require.NoError(t, err)
	assert.True(t, hasQuery)
	assert.Equal(t, "2024-01-01T01:00:00+00:00", gotQuery)
}

func TestFetchReadings_ReplacesCache(t *testing.T) {
	calls := 0
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Write([]byte(`[{"id":1,"timestamp":"2024-01-01T00:00:00","reading":1,"unit":"kWh"},{"id":2,"timestamp":"2024-01-01T01:00:00","reading":2,"unit":"kWh"}]`))
			return
		}
		w.Write([]byte(`[{"id":3,"timestamp":"2024-01-01T02:00:00","reading":3,"unit":"kWh"}]`))
	})

	assert.Empty(t, client.CachedReadings("svc-1"))

	_, err := client.FetchReadings(context.Background(), "svc-1", "")
	require.NoError(t, err)
	assert.Len(t, client.CachedReadings("svc-1"), 2)

	_, err = client.FetchReadings(context.Background(), "svc-1", "2024-01-01T01:00:00")
	require.NoError(t, err)
	cached := client.CachedReadings("svc-1")
	require.Len(t, cached, 1)
	assert.Equal(t, int64(3), cached[0].ID)

	assert.Empty(t, client.CachedReadings("svc-2"))
}

func TestFetch_APIError(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`token expired`))
	})

	_, err := client.FetchAccounts(context.Background())
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "token expired", apiErr.Body)
	assert.Equal(t, "services", apiErr.Path)
}

func TestFetchReadings_ErrorKeepsPreviousCache(t *testing.T) {
	fail := false
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if fail {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`[{"id":1,"timestamp":"2024-01-01T00:00:00","reading":1,"unit":"kWh"}]`))
	})

	_, err := client.FetchReadings(context.Background(), "svc-1", "")
	require.NoError(t, err)

	fail = true
	_, err = client.FetchReadings(context.Background(), "svc-1", "")
	require.Error(t, err)
	assert.Len(t, client.CachedReadings("svc-1"), 1)
}

func TestFetchReadings_MalformedPayload(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":1,"reading":1,"unit":"kWh"}]`))
	})

	_, err := client.FetchReadings(context.Background(), "svc-1", "")
	assert.ErrorContains(t, err, "missing required field")
}

func TestCachedReadings_ReturnsCopy(t *testing.T) {
	cache := NewReadingCache()
	cache.Put("svc-1", []Reading{{ID: 1}})

	got := cache.Get("svc-1")
	got[0].ID = 99

	assert.Equal(t, int64(1), cache.Get("svc-1")[0].ID)
}
