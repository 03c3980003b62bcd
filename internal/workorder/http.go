// Package workorder connects the corrective loop to the maintenance system
// that owns work orders: an HTTP client for a remote service, an in-process
// service for single-node deployments, and a Kafka reader for the
// completion signals the remote service emits.
package workorder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/matthewbaird/compliance/internal/corrective"
)

// HTTPClient opens work orders by POSTing to {base}/work-orders.
type HTTPClient struct {
	base string
	h    *http.Client
}

// NewHTTPClient returns a client for the work order service at base. A nil
// hc gets a client with a 10 second timeout.
func NewHTTPClient(base string, hc *http.Client) *HTTPClient {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPClient{base: strings.TrimRight(base, "/"), h: hc}
}

type createResponse struct {
	ID string `json:"id"`
}

// CreateWorkOrder implements corrective.WorkOrderService.
func (c *HTTPClient) CreateWorkOrder(ctx context.Context, req corrective.WorkOrderRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	u := c.base + "/work-orders"
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	hreq.Header.Set("Content-Type", "application/json")
	if req.IssueID != "" {
		hreq.Header.Set("Idempotency-Key", req.IssueID)
	}

	resp, err := c.h.Do(hreq)
	if err != nil {
		return "", fmt.Errorf("work order service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("work order service %s returned %d: %s", u, resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var out createResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("work order service: decoding response: %w", err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("work order service %s returned no id", u)
	}
	return out.ID, nil
}
