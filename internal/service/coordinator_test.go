package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/septivank/youtilitics-worker/internal/anomaly"
	"github.com/septivank/youtilitics-worker/internal/config"
	"github.com/septivank/youtilitics-worker/internal/reconciler"
	"github.com/septivank/youtilitics-worker/internal/youtilitics"
)

const (
	accountsBody = `[{"id":"acc-1","utility":{"id":"u-1","slug":"city","name":"City Power","services":[1]},"services":[{"id":"svc-1","type":1,"remote_id":"R1"},{"id":"svc-9","type":9,"remote_id":"R9"}]}]`
	typesBody    = `{"Electricity":1}`
	historyBody  = `[
		{"id":1,"timestamp":"2024-01-01T00:00:00","reading":1,"unit":"kWh"},
		{"id":2,"timestamp":"2024-01-01T01:00:00","reading":2,"unit":"kWh"},
		{"id":3,"timestamp":"2024-01-01T02:00:00","reading":3,"unit":"kWh"},
		{"id":4,"timestamp":"2024-01-01T03:00:00","reading":4,"unit":"kWh"}
	]`
)

type fakeAPI struct {
	accountsFail atomic.Bool
	fullFetches  atomic.Int32
}

func (f *fakeAPI) handler(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/services":
		if f.accountsFail.Load() {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.Write([]byte(accountsBody))
	case "/utilities/services":
		w.Write([]byte(typesBody))
	case "/services/svc-1":
		if r.URL.Query().Get("last") != "" {
			w.Write([]byte(`[]`))
			return
		}
		f.fullFetches.Add(1)
		w.Write([]byte(historyBody))
	default:
		http.NotFound(w, r)
	}
}

func newTestCoordinator(t *testing.T, store *memStore) (*Coordinator, *fakeAPI) {
	t.Helper()
	api := &fakeAPI{}
	srv := httptest.NewServer(http.HandlerFunc(api.handler))
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		RabbitMQ: config.RabbitMQConfig{SampleRoutingKey: "sensor.sample.emitted"},
		Polling: config.PollingConfig{
			Interval:            time.Hour,
			BackfillStride:      4,
			BackfillConcurrency: 2,
		},
	}
	client := youtilitics.NewClient(srv.URL, srv.Client(), zap.NewNop())
	c := NewCoordinator(client, store, &fakePublisher{}, anomaly.NewDetector(10, 8), cfg, zap.NewNop())
	return c, api
}

func TestCoordinator_RefreshStartsEntities(t *testing.T) {
	store := newMemStore()
	c, _ := newTestCoordinator(t, store)

	require.NoError(t, c.Refresh(context.Background()))
	c.Wait()

	_, ok := c.Entity("youtilitics.svc_9")
	assert.False(t, ok, "unknown service type must be skipped")

	interval, ok := c.Entity("youtilitics.svc_1")
	require.True(t, ok)
	assert.True(t, interval.Available())
	assert.True(t, interval.State().Backfilled)

	meter, ok := c.Entity("youtilitics.svc_1_total")
	require.True(t, ok)
	assert.Equal(t, 10.0, meter.State().Total)
	assert.True(t, meter.State().Backfilled)

	saved := store.state("youtilitics.svc_1")
	require.NotNil(t, saved)
	require.NotNil(t, saved.State)
	assert.Equal(t, 4.0, *saved.State)
	assert.Equal(t, "true", saved.Attributes[reconciler.AttrBackfilled])

	savedMeter := store.state("youtilitics.svc_1_total")
	require.NotNil(t, savedMeter)
	assert.Equal(t, "10", savedMeter.Attributes[reconciler.AttrCumulativeTotal])
}

func TestCoordinator_SecondCycleRefreshesKnownEntities(t *testing.T) {
	store := newMemStore()
	c, _ := newTestCoordinator(t, store)
	ctx := context.Background()

	require.NoError(t, c.Refresh(ctx))
	c.Wait()
	before, _ := c.Entity("youtilitics.svc_1_total")

	require.NoError(t, c.Refresh(ctx))
	c.Wait()
	after, _ := c.Entity("youtilitics.svc_1_total")

	assert.Same(t, before, after)
	assert.Equal(t, 10.0, after.State().Total)
}

func TestCoordinator_RestartRestoresWithoutDoubleCounting(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()

	first, _ := newTestCoordinator(t, store)
	require.NoError(t, first.Refresh(ctx))
	first.Wait()

	second, api := newTestCoordinator(t, store)
	require.NoError(t, second.Refresh(ctx))
	second.Wait()

	meter, ok := second.Entity("youtilitics.svc_1_total")
	require.True(t, ok)
	assert.Equal(t, 10.0, meter.State().Total)
	assert.True(t, meter.State().Backfilled)
	assert.Zero(t, api.fullFetches.Load(), "restored entities only fetch newer readings")
}

func TestCoordinator_EntityStartFailureIsRetried(t *testing.T) {
	store := newMemStore()
	store.setGetErr(errors.New("connection refused"))
	c, _ := newTestCoordinator(t, store)
	ctx := context.Background()

	require.NoError(t, c.Refresh(ctx))
	_, ok := c.Entity("youtilitics.svc_1")
	assert.False(t, ok)

	store.setGetErr(nil)
	require.NoError(t, c.Refresh(ctx))
	c.Wait()
	_, ok = c.Entity("youtilitics.svc_1")
	assert.True(t, ok)
}

func TestCoordinator_APIFailureFailsCycle(t *testing.T) {
	c, api := newTestCoordinator(t, newMemStore())
	api.accountsFail.Store(true)

	err := c.Refresh(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error communicating with API")

	var apiErr *youtilitics.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
}

func TestCoordinator_HandleRefreshRequest(t *testing.T) {
	c, _ := newTestCoordinator(t, newMemStore())
	ctx := context.Background()

	require.Error(t, c.HandleRefreshRequest(ctx, []byte(`not json`)))

	body := []byte(`{"request_id":"r-1","requested_by":"ytctl","requested_at":"2024-01-01T00:00:00Z"}`)
	require.NoError(t, c.HandleRefreshRequest(ctx, body))
	c.Wait()

	_, ok := c.Entity("youtilitics.svc_1_total")
	assert.True(t, ok)
}

func TestCoordinator_RunStopsOnCancel(t *testing.T) {
	c, _ := newTestCoordinator(t, newMemStore())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		_, ok := c.Entity("youtilitics.svc_1")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	c.Wait()
}
