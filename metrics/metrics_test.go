package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akshayDhotre/build-ml-pipeline-for-short-term-rental-prices/models"
)

func TestObserveReport(t *testing.T) {
	r := New("basic_cleaning", "")
	r.ObserveReport(&models.CleaningReport{InputRows: 10, PriceDropped: 3, GeoDropped: 2, OutputRows: 5})

	assert.Equal(t, 10.0, testutil.ToFloat64(r.rows.WithLabelValues("input")))
	assert.Equal(t, 5.0, testutil.ToFloat64(r.rows.WithLabelValues("output")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.dropped.WithLabelValues("price")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.dropped.WithLabelValues("geo")))
}

func TestObserveRun(t *testing.T) {
	r := New("basic_cleaning", "")
	at := time.Unix(1700000000, 0)

	r.ObserveRun(1500*time.Millisecond, at, false)
	assert.Equal(t, 1.5, testutil.ToFloat64(r.duration))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.lastSuccess))

	r.ObserveRun(time.Second, at, true)
	assert.Equal(t, 1700000000.0, testutil.ToFloat64(r.lastSuccess))
}

func TestPushDisabled(t *testing.T) {
	r := New("basic_cleaning", "")
	assert.NoError(t, r.Push(context.Background(), "run-1"))
}

func TestPushSendsMetricsToJobGroup(t *testing.T) {
	var paths []string
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		paths = append(paths, req.URL.Path)
		b, _ := io.ReadAll(req.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := New("basic_cleaning", srv.URL)
	r.ObserveReport(&models.CleaningReport{InputRows: 4, OutputRows: 4})
	require.NoError(t, r.Push(context.Background(), "run-1"))
	require.NoError(t, r.Push(context.Background(), "run-2"))

	assert.Equal(t, []string{"/metrics/job/basic_cleaning", "/metrics/job/basic_cleaning"}, paths)
	assert.True(t, strings.Contains(gotBody, "basic_cleaning_rows"), "pushed body should carry the rows gauge")
	assert.Equal(t, 1, testutil.CollectAndCount(r.runInfo))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.runInfo.WithLabelValues("run-2")))
}

func TestPushError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	r := New("basic_cleaning", srv.URL)
	assert.Error(t, r.Push(context.Background(), "run-1"))
}
