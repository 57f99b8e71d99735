package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStatus struct {
	connected bool
	attempts  int
}

func (f *fakeStatus) IsConnected() bool { return f.connected }
func (f *fakeStatus) Attempts() int     { return f.attempts }

func TestCollector_Collect(t *testing.T) {
	state := &fakeStatus{connected: true, attempts: 0}
	c := NewCollector(state, time.Minute)

	c.Collect()
	assert.Equal(t, 1.0, testutil.ToFloat64(StatusConnectionStatus))
	assert.Equal(t, 0.0, testutil.ToFloat64(StatusReconnectAttempts))

	state.connected = false
	state.attempts = 3
	c.Collect()
	assert.Equal(t, 0.0, testutil.ToFloat64(StatusConnectionStatus))
	assert.Equal(t, 3.0, testutil.ToFloat64(StatusReconnectAttempts))
}

func TestCollector_StartStop(t *testing.T) {
	state := &fakeStatus{connected: true}
	c := NewCollector(state, 10*time.Millisecond)

	done := make(chan struct{})
	go func() {
		c.Start(context.Background())
		close(done)
	}()

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(StatusConnectionStatus) == 1.0
	}, time.Second, 5*time.Millisecond)

	c.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("collector did not stop")
	}
}

func TestNewCollector_DefaultInterval(t *testing.T) {
	c := NewCollector(&fakeStatus{}, 0)
	assert.Equal(t, 15*time.Second, c.interval)
}

func TestRoundTripper_RecordsRequests(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := &http.Client{Transport: NewRoundTripper(nil)}

	okBefore := testutil.ToFloat64(BackendRequestsTotal.WithLabelValues("GET", "/ok", "200"))
	missingBefore := testutil.ToFloat64(BackendRequestsTotal.WithLabelValues("GET", "/missing", "404"))

	for _, path := range []string{"/ok", "/ok", "/missing"} {
		resp, err := client.Get(server.URL + path)
		require.NoError(t, err)
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}

	assert.Equal(t, okBefore+2, testutil.ToFloat64(BackendRequestsTotal.WithLabelValues("GET", "/ok", "200")))
	assert.Equal(t, missingBefore+1, testutil.ToFloat64(BackendRequestsTotal.WithLabelValues("GET", "/missing", "404")))
}

func TestRoundTripper_RecordsTransportErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := &http.Client{Transport: NewRoundTripper(nil)}
	before := testutil.ToFloat64(BackendRequestsTotal.WithLabelValues("GET", "/gone", "error"))

	_, err := client.Get(url + "/gone")
	require.Error(t, err)

	assert.Equal(t, before+1, testutil.ToFloat64(BackendRequestsTotal.WithLabelValues("GET", "/gone", "error")))
}

func TestServer_ServesMetrics(t *testing.T) {
	srv, err := Listen("127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ctx) }()

	IngestRecordsTotal.Add(0)

	var body []byte
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + srv.Addr() + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, _ = io.ReadAll(resp.Body)
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	assert.Contains(t, string(body), "forge_ingest_records_total")

	cancel()
	require.NoError(t, <-errCh)
}

func TestCollector_StopTwice(t *testing.T) {
	c := NewCollector(&fakeStatus{}, time.Minute)
	c.Stop()
	assert.NotPanics(t, c.Stop)
}
