// Package client is a typed HTTP client for the data generation backend.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"forgeclient/internal/metrics"
	"forgeclient/pkg/config"
)

// Backend endpoint paths
const (
	PathHealth           = "/"
	PathGenerate         = "/generate"
	PathGenerateStream   = "/generate-stream"
	PathUploadAnalyze    = "/upload-analyze"
	PathSuggestStructure = "/suggest-structure"
)

// uploadContentTypes are the file types /upload-analyze accepts
var uploadContentTypes = map[string]string{
	".csv":  "text/csv",
	".xls":  "application/vnd.ms-excel",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

// Client talks to the data generation backend over HTTP
type Client struct {
	baseURL string
	// httpClient is used for one-shot calls and carries the configured timeout
	httpClient *http.Client
	// streamClient has no overall timeout; a generation stream can run for hours
	streamClient *http.Client
}

// New creates a Client for the backend configured in cfg
func New(cfg *config.Config) *Client {
	transport := metrics.NewRoundTripper(nil)
	return &Client{
		baseURL:      strings.TrimRight(cfg.Backend.URL, "/"),
		httpClient:   &http.Client{Timeout: cfg.Backend.Timeout, Transport: transport},
		streamClient: &http.Client{Transport: transport},
	}
}

// WithHTTPClient replaces both underlying HTTP clients (useful for testing)
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	c.streamClient = hc
	return c
}

// BaseURL returns the backend base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Health calls the backend root endpoint
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	var out HealthStatus
	if err := c.doJSON(ctx, http.MethodGet, PathHealth, nil, &out); err != nil {
		return nil, fmt.Errorf("health check failed: %w", err)
	}
	return &out, nil
}

// Generate runs a one-shot generation and returns the preview rows
func (c *Client) Generate(ctx context.Context, req *GenerationConfig) (*GenerationResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var out GenerationResponse
	if err := c.doJSON(ctx, http.MethodPost, PathGenerate, req, &out); err != nil {
		return nil, fmt.Errorf("generation failed: %w", err)
	}
	return &out, nil
}

// SuggestStructure asks the backend for a default structure for a model type
func (c *Client) SuggestStructure(ctx context.Context, modelType string) (*SuggestedStructure, error) {
	body := map[string]string{"model_type": modelType}

	var out SuggestedStructure
	if err := c.doJSON(ctx, http.MethodPost, PathSuggestStructure, body, &out); err != nil {
		return nil, fmt.Errorf("failed to suggest structure: %w", err)
	}
	return &out, nil
}

// UploadAnalyze uploads a CSV or Excel file for structural analysis
func (c *Client) UploadAnalyze(ctx context.Context, filename string, file io.Reader) (*AnalysisResult, error) {
	contentType, ok := uploadContentTypes[strings.ToLower(filepath.Ext(filename))]
	if !ok {
		return nil, fmt.Errorf("unsupported file type %q: upload CSV or Excel", filepath.Ext(filename))
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(filename)))
	header.Set("Content-Type", contentType)

	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("failed to create upload part: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filename, err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish upload body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+PathUploadAnalyze, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("upload failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("upload failed: %w", newStatusError(resp))
	}

	var out AnalysisResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode analysis result: %w", err)
	}
	return &out, nil
}

// OpenStream starts a streamed generation and returns the open response body.
// The caller owns the body and must close it. A non-2xx status is returned
// as a *StatusError before any body bytes are handed out.
func (c *Client) OpenStream(ctx context.Context, req *GenerationConfig) (io.ReadCloser, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+PathGenerateStream, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	log.Debug().
		Str("url", httpReq.URL.String()).
		Str("model_type", string(req.ModelType)).
		Int("num_records", req.Settings.NumRecords).
		Msg("Opening generation stream")

	resp, err := c.streamClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to open generation stream: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, newStatusError(resp)
	}

	return resp.Body, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newStatusError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
