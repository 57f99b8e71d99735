package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forgeclient/pkg/config"
)

func sampleRequest() *GenerationConfig {
	return &GenerationConfig{
		ModelType: ModelFinancialPlanning,
		Dimensions: []Dimension{
			{Name: "Time", Members: []any{"Jan", "Feb"}},
			{Name: "Account", Members: []any{"Revenue", "COGS"}},
		},
		Settings: DataSettings{NumRecords: 4, Sparsity: 0.1},
	}
}

// fakeBackend mirrors the data generation API routes
func fakeBackend(t *testing.T) *httptest.Server {
	t.Helper()
	r := mux.NewRouter()

	r.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"message": "EPM Data Forge backend is running"})
	}).Methods(http.MethodGet)

	r.HandleFunc("/generate", func(w http.ResponseWriter, r *http.Request) {
		var req GenerationConfig
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusUnprocessableEntity)
			return
		}
		json.NewEncoder(w).Encode(GenerationResponse{
			Message:     "Generated 2 records",
			PreviewData: []map[string]any{{"Time": "Jan", "Value": 1.0}, {"Time": "Feb", "Value": 2.0}},
		})
	}).Methods(http.MethodPost)

	r.HandleFunc("/generate-stream", func(w http.ResponseWriter, r *http.Request) {
		var req GenerationConfig
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"detail":"bad body"}`, http.StatusBadRequest)
			return
		}
		if req.ModelType == ModelHRHeadcount {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"detail":"Data generation failed","error":"coordinator unavailable"}`))
			return
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		flusher := w.(http.Flusher)
		w.Write([]byte(`[{"Time":"Jan","Value":1},{"Time":"Feb","Value":2}]` + "\n"))
		flusher.Flush()
		w.Write([]byte(`[{"Time":"Mar","Value":3}]` + "\n"))
	}).Methods(http.MethodPost)

	r.HandleFunc("/suggest-structure", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["model_type"] == "Unknown" {
			w.WriteHeader(http.StatusUnprocessableEntity)
			w.Write([]byte(`{"detail":[{"loc":["body","model_type"],"msg":"value is not a valid enumeration member"}]}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"suggested_structure": map[string]any{"model_type": body["model_type"], "dimensions": []string{"Time", "Account"}},
		})
	}).Methods(http.MethodPost)

	r.HandleFunc("/upload-analyze", func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("file")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"detail":"missing file"}`))
			return
		}
		defer file.Close()
		content, _ := io.ReadAll(file)
		json.NewEncoder(w).Encode(map[string]any{
			"dimensions": []map[string]any{{"name": "Region", "role": "dimension"}},
			"commentary": header.Filename + " " + header.Header.Get("Content-Type") + " " + strings.TrimSpace(string(content)),
		})
	}).Methods(http.MethodPost)

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return server
}

func newTestClient(t *testing.T, server *httptest.Server) *Client {
	t.Helper()
	return New(&config.Config{Backend: config.BackendConfig{URL: server.URL + "/", Timeout: 5 * time.Second}})
}

func TestClient_Health(t *testing.T) {
	c := newTestClient(t, fakeBackend(t))

	status, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "EPM Data Forge backend is running", status.Message)
	assert.False(t, strings.HasSuffix(c.BaseURL(), "/"))
}

func TestClient_Generate(t *testing.T) {
	c := newTestClient(t, fakeBackend(t))

	resp, err := c.Generate(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "Generated 2 records", resp.Message)
	require.Len(t, resp.PreviewData, 2)
	assert.Equal(t, "Feb", resp.PreviewData[1]["Time"])
}

func TestClient_GenerateValidatesLocally(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hits++ }))
	t.Cleanup(server.Close)
	c := newTestClient(t, server)

	req := sampleRequest()
	req.Settings.NumRecords = 0
	_, err := c.Generate(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "num_records")
	assert.Zero(t, hits)
}

func TestClient_SuggestStructure(t *testing.T) {
	c := newTestClient(t, fakeBackend(t))

	s, err := c.SuggestStructure(context.Background(), "SalesAnalysis")
	require.NoError(t, err)
	assert.Equal(t, "SalesAnalysis", s.SuggestedStructure["model_type"])

	_, err = c.SuggestStructure(context.Background(), "Unknown")
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnprocessableEntity, statusErr.StatusCode)
	assert.Equal(t, "body.model_type: value is not a valid enumeration member", statusErr.Detail)
}

func TestClient_UploadAnalyze(t *testing.T) {
	c := newTestClient(t, fakeBackend(t))

	res, err := c.UploadAnalyze(context.Background(), "/tmp/data/regions.csv", strings.NewReader("Region,Value\nEMEA,1\n"))
	require.NoError(t, err)
	require.Len(t, res.Dimensions, 1)
	assert.Equal(t, "Region", res.Dimensions[0]["name"])
	assert.True(t, strings.HasPrefix(res.Commentary, "regions.csv text/csv Region,Value"))
}

func TestClient_UploadAnalyzeRejectsUnsupportedType(t *testing.T) {
	c := newTestClient(t, fakeBackend(t))

	_, err := c.UploadAnalyze(context.Background(), "notes.txt", strings.NewReader("hello"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported file type")
}

func TestClient_OpenStream(t *testing.T) {
	c := newTestClient(t, fakeBackend(t))

	body, err := c.OpenStream(context.Background(), sampleRequest())
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 2)
}

func TestClient_OpenStreamStatusError(t *testing.T) {
	c := newTestClient(t, fakeBackend(t))

	req := sampleRequest()
	req.ModelType = ModelHRHeadcount
	_, err := c.OpenStream(context.Background(), req)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
	assert.Equal(t, "Data generation failed (coordinator unavailable)", statusErr.Detail)
	assert.False(t, statusErr.Temporary())
}

func TestClient_OpenStreamTransportError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	c := New(&config.Config{Backend: config.BackendConfig{URL: url}})
	_, err := c.OpenStream(context.Background(), sampleRequest())
	require.Error(t, err)

	var statusErr *StatusError
	assert.False(t, errors.As(err, &statusErr))
}

func TestClient_WithHTTPClient(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{"message":"ok"}`))
	}))
	t.Cleanup(server.Close)

	c := newTestClient(t, server).WithHTTPClient(server.Client())
	_, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/", gotPath)
}

func TestStatusError(t *testing.T) {
	tests := []struct {
		name       string
		code       int
		body       string
		wantDetail string
		temporary  bool
	}{
		{name: "string detail", code: 400, body: `{"detail":"Invalid file type"}`, wantDetail: "Invalid file type"},
		{name: "validation list", code: 422, body: `{"detail":[{"loc":["body","settings","num_records"],"msg":"must be > 0"}]}`, wantDetail: "body.settings.num_records: must be > 0"},
		{name: "plain text", code: 502, body: "Bad Gateway\n", wantDetail: "Bad Gateway", temporary: true},
		{name: "empty", code: 503, body: "", wantDetail: "", temporary: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &http.Response{
				StatusCode: tt.code,
				Status:     http.StatusText(tt.code),
				Body:       io.NopCloser(strings.NewReader(tt.body)),
			}
			se := newStatusError(resp)
			assert.Equal(t, tt.wantDetail, se.Detail)
			assert.Equal(t, tt.temporary, se.Temporary())
			if tt.wantDetail != "" {
				assert.Contains(t, se.Error(), tt.wantDetail)
			}
		})
	}
}
