package launcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"pumpfun-dashboard-go/internal/models"

	"go.uber.org/zap"
)

// ErrCompanionUnavailable means the launch service did not pass its health check.
var ErrCompanionUnavailable = errors.New("launcher: companion service is not running")

// Result is the companion's answer to one launch.
type Result struct {
	Success       bool   `json:"success"`
	Signature     string `json:"signature"`
	Mint          string `json:"mint"`
	SellScheduled bool   `json:"sellScheduled"`
	Error         string `json:"error,omitempty"`
}

type launchWallet struct {
	Name       string `json:"name"`
	Address    string `json:"address"`
	PrivateKey string `json:"privateKey"`
	APIKey     string `json:"apiKey"`
}

type launchRequest struct {
	Wallet launchWallet      `json:"wallet"`
	Launch models.LaunchSpec `json:"launch"`
}

// Client calls the companion launch service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Health checks GET /health. Any transport failure or non-2xx status is
// reported as ErrCompanionUnavailable.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCompanionUnavailable, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: health returned HTTP %d", ErrCompanionUnavailable, resp.StatusCode)
	}
	return nil
}

// Launch posts one launch to /spam-launch with the wallet embedded.
func (c *Client) Launch(ctx context.Context, walletName string, spec models.LaunchSpec) (*Result, error) {
	payload, err := json.Marshal(launchRequest{
		Wallet: launchWallet{
			Name:       walletName,
			Address:    spec.WalletAddress,
			PrivateKey: spec.PrivateKey,
			APIKey:     spec.APIKey,
		},
		Launch: spec,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal launch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/spam-launch", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build launch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("launch %s: %w", spec.Symbol, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read launch response: %w", err)
	}

	var result Result
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("companion returned HTTP %d with undecodable body: %w", resp.StatusCode, err)
	}
	if !result.Success && result.Error == "" {
		result.Error = fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
	return &result, nil
}
