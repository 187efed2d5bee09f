package portfolio

import (
	"context"
	"fmt"
	"math/big"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
)

// lamportDecimals: one SOL is 10^9 lamports.
const lamportDecimals = 9

// BalanceFetcher returns a wallet's SOL balance.
type BalanceFetcher interface {
	Balance(ctx context.Context, address string) (float64, error)
}

// SolanaBalanceFetcher reads balances over Solana JSON-RPC.
type SolanaBalanceFetcher struct {
	client *rpc.Client
}

// NewSolanaBalanceFetcher creates a fetcher for the RPC endpoint.
func NewSolanaBalanceFetcher(endpoint string) *SolanaBalanceFetcher {
	return &SolanaBalanceFetcher{client: rpc.New(endpoint)}
}

// Balance implements BalanceFetcher.
func (f *SolanaBalanceFetcher) Balance(ctx context.Context, address string) (float64, error) {
	pubkey, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return 0, fmt.Errorf("invalid wallet address %s: %w", address, err)
	}
	out, err := f.client.GetBalance(ctx, pubkey, rpc.CommitmentConfirmed)
	if err != nil {
		return 0, fmt.Errorf("getBalance %s: %w", address, err)
	}
	return LamportsToSol(out.Value), nil
}

// LamportsToSol converts lamports to SOL.
func LamportsToSol(lamports uint64) float64 {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(lamports), -lamportDecimals).InexactFloat64()
}
