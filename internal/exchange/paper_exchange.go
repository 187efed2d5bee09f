package exchange

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"sync"

	"pumpfun-dashboard-go/internal/models"

	"github.com/google/uuid"
	"github.com/jxskiss/base62"
	"github.com/mr-tron/base58"
)

// PaperExchange accepts every order without touching the network. It backs
// dry-run mode and tests.
type PaperExchange struct {
	mu     sync.Mutex
	orders []models.TradeRequest
}

// NewPaperExchange creates an empty paper exchange.
func NewPaperExchange() *PaperExchange {
	return &PaperExchange{}
}

// SubmitTrade records the order and returns a synthetic signature.
func (e *PaperExchange) SubmitTrade(ctx context.Context, req models.TradeRequest) (*TradeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.orders = append(e.orders, req)
	e.mu.Unlock()

	id := uuid.New()
	return &TradeResult{Signature: "paper-" + base62.EncodeToString(id[:])}, nil
}

// CreateWallet generates a local ed25519 keypair in the trade API's format:
// base58 address and base58 64-byte secret key.
func (e *PaperExchange) CreateWallet(ctx context.Context) (*models.Wallet, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}
	return &models.Wallet{
		Address:    base58.Encode(pub),
		PrivateKey: base58.Encode(priv),
		APIKey:     "paper",
	}, nil
}

// Orders returns every order submitted so far.
func (e *PaperExchange) Orders() []models.TradeRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]models.TradeRequest(nil), e.orders...)
}
