package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forgeclient/pkg/client"
	"forgeclient/pkg/ingest"
	"forgeclient/pkg/status"
)

const requestYAML = `model_type: FinancialPlanning
dimensions:
  - name: Time
    members: [Jan, Feb, Mar]
settings:
  num_records: 3
`

func backend(t *testing.T) *httptest.Server {
	t.Helper()
	r := mux.NewRouter()
	r.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":"EPM Data Forge backend is running"}`))
	}).Methods(http.MethodGet)
	r.HandleFunc("/generate-stream", func(w http.ResponseWriter, r *http.Request) {
		var req client.GenerationConfig
		json.NewDecoder(r.Body).Decode(&req)
		if req.Settings.NumRecords > 100 {
			w.WriteHeader(http.StatusUnprocessableEntity)
			w.Write([]byte(`{"detail":"too many records"}`))
			return
		}
		w.Write([]byte(`[{"Time":"Jan","Value":1},{"Time":"Feb","Value":2}]` + "\n"))
		w.(http.Flusher).Flush()
		w.Write([]byte(`[{"Time":"Mar","Value":3}]` + "\n"))
	}).Methods(http.MethodPost)

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return server
}

func run(t *testing.T, server *httptest.Server, args ...string) (string, string, error) {
	t.Helper()
	var stdout bytes.Buffer
	stderr, err := runWithOutput(t, server, &stdout, args...)
	return stdout.String(), stderr, err
}

func runWithOutput(t *testing.T, server *httptest.Server, stdout io.Writer, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("FORGE_BACKEND_URL", server.URL)

	var stderr bytes.Buffer
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.ExecuteContext(context.Background())
	return stderr.String(), err
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) {
	return 0, errors.New("disk full")
}

func writeRequest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "request.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestHealthCommand(t *testing.T) {
	server := backend(t)

	stdout, _, err := run(t, server, "health", "-o", "json")
	require.NoError(t, err)

	var got client.HealthStatus
	require.NoError(t, json.Unmarshal([]byte(stdout), &got))
	assert.Equal(t, "EPM Data Forge backend is running", got.Message)
}

func TestGenerateCommand(t *testing.T) {
	server := backend(t)
	outPath := filepath.Join(t.TempDir(), "records.ndjson")

	_, stderr, err := run(t, server, "generate", "-f", writeRequest(t, requestYAML), "--out", outPath, "--format", "ndjson")
	require.NoError(t, err)
	assert.Contains(t, stderr, "Generated 3 records")

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.JSONEq(t, `{"Time":"Jan","Value":1}`, lines[0])
	assert.JSONEq(t, `{"Time":"Mar","Value":3}`, lines[2])
}

func TestGenerateCommandBackendError(t *testing.T) {
	server := backend(t)
	req := strings.Replace(requestYAML, "num_records: 3", "num_records: 5000", 1)

	_, _, err := run(t, server, "generate", "-f", writeRequest(t, req), "--out", filepath.Join(t.TempDir(), "out.csv"), "--format", "csv")
	require.Error(t, err)

	var statusErr *client.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, "too many records", statusErr.Detail)
	assert.NotErrorIs(t, err, ingest.ErrCancelled)
}

func TestGenerateCommandWriteFailure(t *testing.T) {
	server := backend(t)

	_, err := runWithOutput(t, server, failingWriter{},
		"generate", "-f", writeRequest(t, requestYAML), "--out=", "--format", "ndjson")
	require.Error(t, err)
	assert.ErrorContains(t, err, "failed to write records")
	assert.ErrorContains(t, err, "disk full")
	assert.NotErrorIs(t, err, ingest.ErrCancelled)
}

func TestRetryHint(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"unavailable", &client.StatusError{StatusCode: http.StatusServiceUnavailable}, true},
		{"wrapped gateway timeout", fmt.Errorf("generation failed: %w", &client.StatusError{StatusCode: http.StatusGatewayTimeout}), true},
		{"validation", &client.StatusError{StatusCode: http.StatusUnprocessableEntity}, false},
		{"plain error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, retryHint(tt.err) != "")
		})
	}
}

func TestStatusPrinter(t *testing.T) {
	var buf bytes.Buffer
	printer := statusPrinter(&buf, false, zerolog.Nop())

	printer(status.Snapshot{Connected: true, Text: status.ConnectedNotice, State: status.StateOpen})
	printer(status.Snapshot{Connected: true, Text: status.ConnectedNotice, State: status.StateOpen})
	printer(status.Snapshot{Connected: false, Text: status.GiveUpNotice, State: status.StateClosed})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "(connected) "+status.ConnectedNotice)
	assert.Contains(t, lines[1], "(disconnected) "+status.GiveUpNotice)
}

func TestStatusPrinterJSON(t *testing.T) {
	var buf bytes.Buffer
	printer := statusPrinter(&buf, true, zerolog.Nop())
	printer(status.Snapshot{Text: "Generating", Attempts: 2, State: status.StateConnecting})

	var line statusLine
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "Generating", line.Text)
	assert.Equal(t, "connecting", line.State)
	assert.Equal(t, 2, line.Attempts)
}

func TestStatusPrinterLogsWriteErrors(t *testing.T) {
	prev := zerolog.GlobalLevel()
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })

	for _, asJSON := range []bool{false, true} {
		var logs bytes.Buffer
		printer := statusPrinter(failingWriter{}, asJSON, zerolog.New(&logs))
		printer(status.Snapshot{Connected: true, Text: status.ConnectedNotice, State: status.StateOpen})

		assert.Contains(t, logs.String(), "Failed to write status line")
		assert.Contains(t, logs.String(), "disk full")
	}
}

func TestProgressLineWithoutTerminal(t *testing.T) {
	var buf bytes.Buffer
	p := newProgressLine(&buf)

	p.update(ingest.Progress{Batches: 1, Records: 10})
	assert.Empty(t, buf.String())

	p.note("Validating model")
	p.done()
	assert.Equal(t, "status: Validating model\n", buf.String())
}
