package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitIsIdempotent(t *testing.T) {
	Init()
	first := rowsTotal
	Init()
	require.NotNil(t, rowsTotal)
	assert.Same(t, first, rowsTotal)
}

func TestObservers(t *testing.T) {
	Init()

	before := testutil.ToFloat64(rowsTotal.WithLabelValues("inserted"))
	ObserveRow("inserted")
	ObserveRow("inserted")
	assert.Equal(t, before+2, testutil.ToFloat64(rowsTotal.WithLabelValues("inserted")))

	pages := testutil.ToFloat64(pagesFetchedTotal.WithLabelValues("forward"))
	ObservePage("forward")
	assert.Equal(t, pages+1, testutil.ToFloat64(pagesFetchedTotal.WithLabelValues("forward")))

	retries := testutil.ToFloat64(fetchRetriesTotal)
	ObserveFetchRetry()
	assert.Equal(t, retries+1, testutil.ToFloat64(fetchRetriesTotal))

	checkpoints := testutil.ToFloat64(checkpointsTotal)
	ObserveCheckpoint()
	assert.Equal(t, checkpoints+1, testutil.ToFloat64(checkpointsTotal))

	latest := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	SetDatabaseState(10, 2, latest)
	assert.Equal(t, float64(10), testutil.ToFloat64(databaseSongs))
	assert.Equal(t, float64(2), testutil.ToFloat64(databaseBroken))
	assert.Equal(t, float64(latest.Unix()), testutil.ToFloat64(latestTimestampSeconds))

	ObserveFetchDuration(150 * time.Millisecond)
	ObserveRun("update", "boundary_reached")
}

func TestWriteTextfile(t *testing.T) {
	Init()
	ObserveRow("conflict")

	path := filepath.Join(t.TempDir(), "lastplayed.prom")
	require.NoError(t, WriteTextfile(path))

	// #nosec G304 -- test reads from the controlled temp directory.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "lastplayed_rows_total")
}

func TestRouter(t *testing.T) {
	Init()
	ObservePage("backward")

	ts := httptest.NewServer(NewRouter())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), "lastplayed_pages_fetched_total"))

	resp, err = http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServerLifecycle(t *testing.T) {
	Init()

	srv, err := StartServer("127.0.0.1:0", nil)
	require.NoError(t, err)

	resp, err := http.Get("http://" + srv.Addr() + "/healthz")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
}
