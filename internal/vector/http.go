package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// DefaultHTTPTimeout bounds one engine round trip.
const DefaultHTTPTimeout = 30 * time.Second

// HTTPEngine talks to a vector engine running as a separate service.
//
//	POST <endpoint> {"query": "...", "top_k": 15}
//	200 {"results": [{"metadata": {...}, "score": 0.83}, ...]}
type HTTPEngine struct {
	Endpoint string
	APIKey   string
	http     *http.Client
}

// HTTPError represents a non-200 engine response.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

type queryRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

type queryResponse struct {
	Results []RawHit `json:"results"`
}

// NewHTTPEngine creates an engine client for endpoint. A zero timeout uses
// DefaultHTTPTimeout.
func NewHTTPEngine(endpoint, apiKey string, timeout time.Duration) (*HTTPEngine, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	return &HTTPEngine{
		Endpoint: endpoint,
		APIKey:   apiKey,
		http:     &http.Client{Timeout: timeout},
	}, nil
}

// Query implements Engine. There is no retry: a failed call is reported to
// the caller as is.
func (e *HTTPEngine) Query(ctx context.Context, text string, topK int) ([]RawHit, error) {
	requestBody, err := json.Marshal(queryRequest{Query: text, TopK: topK})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", e.Endpoint, bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Request-ID", uuid.NewString())
	if e.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+e.APIKey)
	}

	resp, err := e.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	var qr queryResponse
	if err := json.Unmarshal(body, &qr); err != nil {
		return nil, fmt.Errorf("parsing response JSON: %w", err)
	}
	return qr.Results, nil
}
