package metrics

import (
	"net/http"
	"strconv"
	"time"
)

// RoundTripper records backend request metrics for an http.Client.
// Labels: method, endpoint (URL path), status_code ("error" when the request
// failed before a response arrived).
type RoundTripper struct {
	Next http.RoundTripper
}

// NewRoundTripper wraps next, or http.DefaultTransport when next is nil
func NewRoundTripper(next http.RoundTripper) *RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return &RoundTripper{Next: next}
}

// RoundTrip implements http.RoundTripper
func (rt *RoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()

	resp, err := rt.Next.RoundTrip(req)

	duration := time.Since(start).Seconds()
	statusCode := "error"
	if err == nil {
		statusCode = strconv.Itoa(resp.StatusCode)
	}

	BackendRequestsTotal.WithLabelValues(req.Method, req.URL.Path, statusCode).Inc()
	BackendRequestDuration.WithLabelValues(req.Method, req.URL.Path).Observe(duration)

	return resp, err
}
