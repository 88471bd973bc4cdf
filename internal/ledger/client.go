package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"queue-market-watch/internal/domain"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
)

// ErrMalformedSnapshot is returned when the gateway answers but the data
// violates the contract's shape guarantees (sparse token ids, bad owner).
// Callers treat it like a transient fetch failure: skip the cycle, retry
// on the next tick.
var ErrMalformedSnapshot = errors.New("malformed snapshot")

// HTTPClient implements Source against the contract gateway's JSON-RPC 2.0
// endpoint.
type HTTPClient struct {
	endpoint    string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	requestID   atomic.Uint64
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.retryDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// NewHTTPClient creates a new gateway client.
func NewHTTPClient(endpoint string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		endpoint:    endpoint,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// rpcRequest represents a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

// rpcResponse represents a JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// rpcError represents a JSON-RPC 2.0 error.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// call performs a JSON-RPC call with retries and exponential backoff.
func (c *HTTPClient) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	reqID := c.requestID.Add(1)
	reqBody := rpcRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			// Exponential backoff
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		// Handle rate limiting
		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
			continue
		}

		var rpcResp rpcResponse
		if err := json.Unmarshal(respBody, &rpcResp); err != nil {
			lastErr = fmt.Errorf("unmarshal response: %w", err)
			continue
		}

		if rpcResp.Error != nil {
			// RPC errors are not retried
			return rpcResp.Error
		}

		if result != nil && rpcResp.Result != nil {
			if err := json.Unmarshal(rpcResp.Result, result); err != nil {
				return fmt.Errorf("unmarshal result: %w", err)
			}
		}

		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// listQueuesResult is the raw RPC response item for listQueues.
type listQueuesResult struct {
	QueueID    uint32 `json:"queueId"`
	Name       string `json:"name"`
	Creator    string `json:"creatorId"`
	TokenCount uint32 `json:"tokenCount"`
}

// ListQueues returns every queue known to the contract.
func (c *HTTPClient) ListQueues(ctx context.Context) ([]domain.Queue, error) {
	var result []listQueuesResult
	if err := c.call(ctx, "listQueues", nil, &result); err != nil {
		return nil, err
	}

	queues := make([]domain.Queue, 0, len(result))
	for _, r := range result {
		if r.Name == "" {
			return nil, fmt.Errorf("%w: queue %d has empty name", ErrMalformedSnapshot, r.QueueID)
		}
		queues = append(queues, domain.Queue{
			QueueID:    r.QueueID,
			Name:       r.Name,
			Creator:    r.Creator,
			TokenCount: r.TokenCount,
		})
	}
	return queues, nil
}

// listTokensResult is the raw RPC response item for listTokens.
type listTokensResult struct {
	TokenID uint32 `json:"tokenId"`
	Owner   string `json:"owner"`
	Price   uint64 `json:"price"`
}

// ListTokens returns the full ordered snapshot for a queue. The whole
// snapshot is rejected if any token violates the contract's shape
// guarantees: ids dense from 0 in order, every owner a valid account id.
func (c *HTTPClient) ListTokens(ctx context.Context, queueID uint32) (domain.Snapshot, error) {
	params := []interface{}{queueID}

	var result []listTokensResult
	if err := c.call(ctx, "listTokens", params, &result); err != nil {
		return nil, err
	}

	snapshot := make(domain.Snapshot, 0, len(result))
	for i, r := range result {
		if r.TokenID != uint32(i) {
			return nil, fmt.Errorf("%w: queue %d token at index %d has id %d", ErrMalformedSnapshot, queueID, i, r.TokenID)
		}
		if !ValidAccountID(r.Owner) {
			return nil, fmt.Errorf("%w: queue %d token %d has invalid owner", ErrMalformedSnapshot, queueID, r.TokenID)
		}
		snapshot = append(snapshot, domain.Token{
			TokenID: r.TokenID,
			Owner:   r.Owner,
			Price:   r.Price,
		})
	}
	return snapshot, nil
}

// Verify interface compliance at compile time.
var _ Source = (*HTTPClient)(nil)
