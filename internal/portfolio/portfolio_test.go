package portfolio

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"pumpfun-dashboard-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubFetcher answers from a map; addresses in fail return an error.
type stubFetcher struct {
	sync.Mutex
	balances map[string]float64
	fail     map[string]bool
	calls    int
}

func (f *stubFetcher) Balance(ctx context.Context, address string) (float64, error) {
	f.Lock()
	defer f.Unlock()
	f.calls++
	if f.fail[address] {
		return 0, errors.New("rpc timeout")
	}
	return f.balances[address], nil
}

func (f *stubFetcher) set(address string, balance float64, fail bool) {
	f.Lock()
	defer f.Unlock()
	f.balances[address] = balance
	f.fail[address] = fail
}

func TestRefreshRecordsInitialOnce(t *testing.T) {
	f := &stubFetcher{balances: map[string]float64{"A": 2, "B": 3}, fail: map[string]bool{"C": true}}
	tr := NewTracker(f, zap.NewNop())
	start := time.Unix(1700000000, 0)
	tr.now = func() time.Time { return start }

	tr.Refresh(context.Background(), []string{"A", "B", "C"})
	_, ok := tr.Balance("C")
	assert.False(t, ok, "failed fetch leaves no balance")

	f.set("A", 1.5, false)
	f.set("B", 9, true)
	f.set("C", 4, false)
	tr.now = func() time.Time { return start.Add(time.Hour) }
	tr.Refresh(context.Background(), []string{"A", "B", "C"})

	snap := tr.Snapshot()
	assert.Equal(t, map[string]float64{"A": 1.5, "B": 3, "C": 4}, snap.Current, "B keeps its cached value")
	assert.Equal(t, map[string]float64{"A": 2, "B": 3, "C": 4}, snap.Initial)
	assert.Equal(t, start, snap.InitialTime)
}

func TestStats(t *testing.T) {
	tr := NewTracker(&stubFetcher{}, zap.NewNop())
	tr.Restore(Balances{
		Current: map[string]float64{"A": 3, "B": 1.5},
		Initial: map[string]float64{"A": 2, "B": 2},
	})

	s := tr.Stats(models.PortfolioStats{WinCount: 3, LossCount: 1})
	assert.Equal(t, 4.0, s.TotalInitial)
	assert.Equal(t, 4.5, s.TotalCurrent)
	assert.InDelta(t, 0.5, s.RealizedPnL, 1e-12)
	assert.InDelta(t, 12.5, s.RealizedPnLPercent, 1e-9)
	assert.Equal(t, 75.0, s.WinRate)

	empty := NewTracker(&stubFetcher{}, zap.NewNop()).Stats(models.PortfolioStats{})
	assert.Zero(t, empty.WinRate)
	assert.Zero(t, empty.RealizedPnLPercent)

	tr.Forget("A")
	_, ok := tr.InitialBalance("A")
	assert.False(t, ok)
}

func TestRunRefreshesUntilCancelled(t *testing.T) {
	f := &stubFetcher{balances: map[string]float64{"A": 1}, fail: map[string]bool{}}
	tr := NewTracker(f, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		tr.Run(ctx, 5*time.Millisecond, func() []string { return []string{"A"} })
		close(done)
	}()

	assert.Eventually(t, func() bool {
		f.Lock()
		defer f.Unlock()
		return f.calls >= 3
	}, time.Second, time.Millisecond)
	cancel()
	<-done
	b, ok := tr.Balance("A")
	require.True(t, ok)
	assert.Equal(t, 1.0, b)
}

func TestLivePnL(t *testing.T) {
	p := &models.Position{TotalInvested: 2, EntryMarketCapSol: 40, CurrentMarketCapSol: 60}
	pnl := LivePnL(p)
	assert.InDelta(t, 3, pnl.Value, 1e-12)
	assert.InDelta(t, 1, pnl.PnL, 1e-12)
	assert.InDelta(t, 50, pnl.Percent, 1e-9)

	p.CurrentMarketCapSol = 0
	assert.Zero(t, LivePnL(p).PnL, "falls back to the entry market cap")
	assert.Equal(t, PositionPnL{}, LivePnL(&models.Position{TotalInvested: 1}))
}

func TestOthersSolAndHoldings(t *testing.T) {
	positions := map[string]*models.Position{
		"A": {Mint: "M1", Balance: 20_000_000, TotalBought: 20_000_000, TotalInvested: 1, AvgPrice: 5e-8, EntryMarketCapSol: 30},
		"B": {Mint: "M1", Balance: 10_000_000, TotalBought: 30_000_000, TotalInvested: 2, AvgPrice: 6.6e-8, EntryMarketCapSol: 60},
		"C": {Mint: "M2", Balance: 5, TotalBought: 5, TotalInvested: 9, EntryMarketCapSol: 1},
	}

	assert.InDelta(t, 7, OthersSol(40, 30, positions, "M1"), 1e-12)
	assert.Zero(t, OthersSol(31, 30, positions, "M1"))
	assert.Zero(t, OthersSol(0, 30, positions, "M1"))

	h := Summarize(positions, "M1", 100, 9600)
	assert.Equal(t, 30_000_000.0, h.TotalTokens)
	assert.InDelta(t, 3, h.HoldingPercent, 1e-12)
	assert.InDelta(t, 48, h.AvgEntryMarketCapSol, 1e-9)
	assert.InDelta(t, 4800, h.AvgEntryMarketCapUSD, 1e-6)
	assert.InDelta(t, 100, h.MarketCapPnLPercent, 1e-6)
}

func TestLamportsToSol(t *testing.T) {
	assert.Equal(t, 1.5, LamportsToSol(1_500_000_000))
	assert.Equal(t, 0.000005, LamportsToSol(5000))
	assert.Zero(t, LamportsToSol(0))
}

// TestSolanaBalanceFetcher talks JSON-RPC to a stub node.
func TestSolanaBalanceFetcher(t *testing.T) {
	methods := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		methods <- req.Method
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"jsonrpc":"2.0","id":` + string(req.ID) + `,"result":{"context":{"slot":1},"value":2500000000}}`))
	}))
	defer server.Close()

	f := NewSolanaBalanceFetcher(server.URL)
	balance, err := f.Balance(context.Background(), "11111111111111111111111111111111")
	require.NoError(t, err)
	assert.Equal(t, 2.5, balance)
	assert.Equal(t, "getBalance", <-methods)

	_, err = f.Balance(context.Background(), "not-an-address-0OIl")
	assert.Error(t, err)
}
