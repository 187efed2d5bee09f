package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pumpfun-dashboard-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// tokenDecimals is the precision of pump.fun tokens; sell amounts are
// truncated to it so rounding never asks for more than the wallet holds.
const tokenDecimals = 6

// PumpPortalExchange talks to the PumpPortal trade and create-wallet endpoints.
type PumpPortalExchange struct {
	tradeURL        string
	createWalletURL string
	httpClient      *http.Client
	logger          *zap.Logger
}

// NewPumpPortalExchange creates a client. timeout bounds every HTTP request.
func NewPumpPortalExchange(tradeURL, createWalletURL string, timeout time.Duration, logger *zap.Logger) *PumpPortalExchange {
	return &PumpPortalExchange{
		tradeURL:        tradeURL,
		createWalletURL: createWalletURL,
		httpClient:      &http.Client{Timeout: timeout},
		logger:          logger,
	}
}

type tradePayload struct {
	Action           string      `json:"action"`
	Mint             string      `json:"mint"`
	PrivateKey       string      `json:"privateKey"`
	Amount           interface{} `json:"amount"`
	DenominatedInSol string      `json:"denominatedInSol"`
	Slippage         float64     `json:"slippage"`
	PriorityFee      float64     `json:"priorityFee"`
	Pool             string      `json:"pool"`
}

// buildTradePayload converts a request to the API's wire format. Buys are
// denominated in SOL; sells in tokens, or "100%" for a full exit.
func buildTradePayload(req models.TradeRequest) tradePayload {
	p := tradePayload{
		Action:           string(req.Action),
		Mint:             req.Mint,
		PrivateKey:       req.PrivateKey,
		DenominatedInSol: "false",
		Slippage:         req.Slippage,
		PriorityFee:      req.PriorityFee,
		Pool:             string(req.Pool),
	}
	if p.Pool == "" {
		p.Pool = string(models.PoolAuto)
	}

	switch {
	case req.Action == models.Buy:
		p.DenominatedInSol = "true"
		p.Amount = req.Amount
	case req.SellAll:
		p.Amount = "100%"
	default:
		p.Amount = decimal.NewFromFloat(req.Amount).Truncate(tokenDecimals).InexactFloat64()
	}
	return p
}

// SubmitTrade posts the order to /api/trade?api-key=....
func (e *PumpPortalExchange) SubmitTrade(ctx context.Context, req models.TradeRequest) (*TradeResult, error) {
	endpoint := e.tradeURL + "?api-key=" + url.QueryEscape(req.APIKey)
	body, status, err := e.doRequest(ctx, http.MethodPost, endpoint, buildTradePayload(req))
	if err != nil {
		return nil, err
	}

	result, err := parseTradeResponse(body)
	if err != nil {
		return nil, fmt.Errorf("trade API returned HTTP %d with undecodable body: %w", status, err)
	}
	if result.Signature == "" && result.Error == "" && status >= http.StatusBadRequest {
		result.Error = fmt.Sprintf("HTTP %d", status)
	}
	return result, nil
}

// parseTradeResponse accepts {"signature": ...} and the error shapes the API
// uses: "error" as a string, "errors" as a string or a list.
func parseTradeResponse(body []byte) (*TradeResult, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}

	result := &TradeResult{}
	if sig, ok := raw["signature"].(string); ok {
		result.Signature = sig
	}
	if msg, ok := raw["error"].(string); ok && msg != "" {
		result.Error = msg
	}
	switch errs := raw["errors"].(type) {
	case string:
		if errs != "" {
			result.Error = errs
		}
	case []interface{}:
		parts := make([]string, 0, len(errs))
		for _, item := range errs {
			parts = append(parts, fmt.Sprint(item))
		}
		if len(parts) > 0 {
			result.Error = strings.Join(parts, "; ")
		}
	}
	return result, nil
}

type createWalletResponse struct {
	WalletPublicKey string `json:"walletPublicKey"`
	PrivateKey      string `json:"privateKey"`
	APIKey          string `json:"apiKey"`
}

// CreateWallet calls the create-wallet endpoint.
func (e *PumpPortalExchange) CreateWallet(ctx context.Context) (*models.Wallet, error) {
	body, status, err := e.doRequest(ctx, http.MethodPost, e.createWalletURL, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("failed to create wallet: HTTP %d", status)
	}

	var resp createWalletResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode create-wallet response: %w", err)
	}
	if resp.WalletPublicKey == "" || resp.PrivateKey == "" {
		return nil, fmt.Errorf("create-wallet response is missing key material")
	}

	e.logger.Info("Wallet created through trade API", zap.String("address", resp.WalletPublicKey))
	return &models.Wallet{
		Address:    resp.WalletPublicKey,
		PrivateKey: resp.PrivateKey,
		APIKey:     resp.APIKey,
	}, nil
}

// doRequest sends a JSON request and returns the raw body and status code.
func (e *PumpPortalExchange) doRequest(ctx context.Context, method, endpoint string, payload interface{}) ([]byte, int, error) {
	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request %s failed: %w", redact(endpoint), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response body: %w", err)
	}
	return body, resp.StatusCode, nil
}

// redact drops the query string so API keys never reach the logs.
func redact(endpoint string) string {
	if i := strings.IndexByte(endpoint, '?'); i >= 0 {
		return endpoint[:i]
	}
	return endpoint
}
