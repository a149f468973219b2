// Package classify calls the external audio classification service.
package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"nestcare/backend/internal/apperr"
	"nestcare/backend/internal/monitor"
)

const defaultTimeout = 10 * time.Second

// Client posts audio chunks to the classifier's predict endpoint and decodes
// its {label, score} verdict. The service is a black box; any failure is
// wrapped as a ClassificationError so callers degrade to "no detection".
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: defaultTimeout},
	}
}

func (c *Client) Classify(ctx context.Context, chunk []byte) (monitor.Classification, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", bytes.NewReader(chunk))
	if err != nil {
		return monitor.Classification{}, &apperr.ClassificationError{Err: err}
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return monitor.Classification{}, &apperr.ClassificationError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return monitor.Classification{}, &apperr.ClassificationError{
			Err: fmt.Errorf("classifier returned %d: %s", resp.StatusCode, body),
		}
	}

	var out monitor.Classification
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return monitor.Classification{}, &apperr.ClassificationError{Err: fmt.Errorf("decode verdict: %w", err)}
	}
	return out, nil
}
