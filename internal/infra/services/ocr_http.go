package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/joeott/legal-doc-processor-sub003/internal/core/config"
	"github.com/joeott/legal-doc-processor-sub003/internal/core/domain"
)

// HTTPOCRClient implements OCRClient against a JSON OCR service exposing
// POST /jobs and GET /jobs/{id}.
type HTTPOCRClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPOCRClient creates an OCR client from config.
func NewHTTPOCRClient(cfg config.OCRConfig) *HTTPOCRClient {
	return &HTTPOCRClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

type submitRequest struct {
	Bucket      string `json:"bucket"`
	Key         string `json:"key"`
	ContentType string `json:"content_type"`
}

type submitResponse struct {
	JobID string `json:"job_id"`
}

type pollResponse struct {
	Status     string  `json:"status"` // running, succeeded, failed
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Pages      int     `json:"pages"`
	Error      string  `json:"error"`
}

// Submit starts an OCR job for the referenced object. The service reads the
// bytes from object storage itself; only the reference crosses this boundary.
func (c *HTTPOCRClient) Submit(ctx context.Context, ref domain.SourceRef, contentType string) (string, error) {
	body, err := json.Marshal(submitRequest{
		Bucket:      ref.Bucket,
		Key:         ref.Key,
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/jobs", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("submit call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("submit returned %d: %s", resp.StatusCode, raw)
	}

	var out submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if out.JobID == "" {
		return "", fmt.Errorf("submit returned empty job id")
	}
	return out.JobID, nil
}

// Poll checks an OCR job once.
func (c *HTTPOCRClient) Poll(ctx context.Context, jobID string) (*OCRJobStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/jobs/"+jobID, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("poll call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("poll returned %d: %s", resp.StatusCode, raw)
	}

	var out pollResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	status := &OCRJobStatus{
		Text:       out.Text,
		Confidence: out.Confidence,
		Pages:      out.Pages,
		Error:      out.Error,
	}
	switch out.Status {
	case "succeeded":
		status.State = OCRJobSucceeded
	case "failed":
		status.State = OCRJobFailed
	default:
		status.State = OCRJobRunning
	}
	return status, nil
}
