package exchange

import (
	"context"

	"pumpfun-dashboard-go/internal/models"
)

// TradeResult is the trading API's answer to an order. Exactly one of
// Signature and Error is normally set; an answer with neither is a failure.
type TradeResult struct {
	Signature string
	Error     string
}

// Exchange is the trading API the dashboard submits orders through. Switching
// between the live API and the paper implementation needs no other change.
type Exchange interface {
	// SubmitTrade sends one order. A non-nil error means the request itself
	// failed (network, undecodable response); API-level rejections come back
	// in TradeResult.Error.
	SubmitTrade(ctx context.Context, req models.TradeRequest) (*TradeResult, error)

	// CreateWallet asks the API for a fresh wallet with its own API key.
	CreateWallet(ctx context.Context) (*models.Wallet, error)
}
