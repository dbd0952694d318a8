package clients

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"relay-backend/internal/config"
)

// BundlerClient talks to the ERC-4337 bundler service over HTTP.
type BundlerClient struct {
	baseURL    string
	authToken  string
	entryPoint string
	httpClient *http.Client
}

// BundlerCall is a single call inside a submitted batch.
type BundlerCall struct {
	To    string `json:"to"`
	Value string `json:"value"`
	Data  string `json:"data"`
}

// BundlerSendRequest batch submission request
type BundlerSendRequest struct {
	Sender     string        `json:"sender"`
	EntryPoint string        `json:"entry_point,omitempty"`
	Calls      []BundlerCall `json:"calls"`
}

// BundlerSendResponse batch submission response
type BundlerSendResponse struct {
	Success    bool   `json:"success"`
	UserOpHash string `json:"user_op_hash,omitempty"`
	Error      string `json:"error,omitempty"`
}

// BundlerStatusResponse user operation status response
type BundlerStatusResponse struct {
	Success          bool   `json:"success"`
	Status           string `json:"status,omitempty"` // pending, success, failed, reverted
	EntryPointTxHash string `json:"entry_point_tx_hash,omitempty"`
	RevertReason     string `json:"revert_reason,omitempty"`
	Error            string `json:"error,omitempty"`
}

// NewBundlerClient creates a bundler client from config.
func NewBundlerClient(cfg config.BundlerConfig) *BundlerClient {
	timeout := 120 * time.Second
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}

	return &BundlerClient{
		baseURL:    cfg.BaseURL,
		authToken:  cfg.AuthToken,
		entryPoint: cfg.EntryPoint,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// SubmitBatch submits a call batch for the smart account and returns the
// user operation hash.
func (c *BundlerClient) SubmitBatch(sender string, calls []BundlerCall) (*BundlerSendResponse, error) {
	req := BundlerSendRequest{
		Sender:     sender,
		EntryPoint: c.entryPoint,
		Calls:      calls,
	}

	response, err := c.makeRequest("POST", "/api/v1/userops", req)
	if err != nil {
		return nil, fmt.Errorf("bundler submit request failed: %w", err)
	}

	var sendResp BundlerSendResponse
	if err := json.Unmarshal(response, &sendResp); err != nil {
		return nil, fmt.Errorf("failed to parse bundler response: %w", err)
	}

	if !sendResp.Success {
		return nil, fmt.Errorf("bundler rejected batch: %s", sendResp.Error)
	}

	return &sendResp, nil
}

// GetUserOperationStatus queries the status of a submitted user operation.
func (c *BundlerClient) GetUserOperationStatus(userOpHash string) (*BundlerStatusResponse, error) {
	response, err := c.makeRequest("GET", "/api/v1/userops/"+userOpHash, nil)
	if err != nil {
		return nil, fmt.Errorf("bundler status request failed: %w", err)
	}

	var statusResp BundlerStatusResponse
	if err := json.Unmarshal(response, &statusResp); err != nil {
		return nil, fmt.Errorf("failed to parse bundler status response: %w", err)
	}

	if !statusResp.Success {
		return nil, fmt.Errorf("bundler status query failed: %s", statusResp.Error)
	}

	return &statusResp, nil
}

// HealthCheck probes the bundler health endpoint.
func (c *BundlerClient) HealthCheck() error {
	response, err := c.makeRequest("GET", "/api/v1/health", nil)
	if err != nil {
		return fmt.Errorf("bundler health check failed: %w", err)
	}

	var healthResp struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(response, &healthResp); err != nil {
		return fmt.Errorf("failed to parse bundler health response: %w", err)
	}

	if healthResp.Status != "healthy" && healthResp.Status != "ok" {
		return fmt.Errorf("bundler unhealthy: %s", healthResp.Status)
	}

	return nil
}

func (c *BundlerClient) makeRequest(method, path string, data interface{}) ([]byte, error) {
	url := c.baseURL + path

	var body io.Reader
	if data != nil {
		jsonData, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "relay-backend/1.0")

	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP request failed: status=%d, body=%s", resp.StatusCode, string(responseBody))
	}

	return responseBody, nil
}
