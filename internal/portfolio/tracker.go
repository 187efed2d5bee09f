package portfolio

import (
	"context"
	"sync"
	"time"

	"pumpfun-dashboard-go/internal/models"

	"go.uber.org/zap"
)

// Balances is a copy of the tracker's balance book.
type Balances struct {
	Current     map[string]float64
	Initial     map[string]float64
	InitialTime time.Time
}

// Tracker caches wallet SOL balances. The first successful fetch for a wallet
// becomes its initial balance.
type Tracker struct {
	fetcher BalanceFetcher

	mu          sync.RWMutex
	current     map[string]float64
	initial     map[string]float64
	initialTime time.Time

	now    func() time.Time
	logger *zap.Logger
}

// NewTracker creates an empty tracker.
func NewTracker(fetcher BalanceFetcher, logger *zap.Logger) *Tracker {
	return &Tracker{
		fetcher: fetcher,
		current: make(map[string]float64),
		initial: make(map[string]float64),
		now:     time.Now,
		logger:  logger,
	}
}

// Refresh fetches every address concurrently. A failed fetch is logged and
// leaves the cached balance in place.
func (t *Tracker) Refresh(ctx context.Context, addresses []string) {
	var wg sync.WaitGroup
	for _, addr := range addresses {
		wg.Add(1)
		go func(addr string) {
			defer wg.Done()
			balance, err := t.fetcher.Balance(ctx, addr)
			if err != nil {
				t.logger.Warn("Balance fetch failed", zap.String("wallet", addr), zap.Error(err))
				return
			}
			t.record(addr, balance)
		}(addr)
	}
	wg.Wait()
}

func (t *Tracker) record(address string, balance float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current[address] = balance
	if _, ok := t.initial[address]; !ok {
		t.initial[address] = balance
		if t.initialTime.IsZero() {
			t.initialTime = t.now()
		}
	}
}

// Run refreshes immediately and then every interval until ctx is done.
func (t *Tracker) Run(ctx context.Context, interval time.Duration, addresses func() []string) {
	t.Refresh(ctx, addresses())
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Refresh(ctx, addresses())
		}
	}
}

// Balance returns the cached balance of a wallet.
func (t *Tracker) Balance(address string) (float64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	b, ok := t.current[address]
	return b, ok
}

// InitialBalance returns the first balance seen for a wallet.
func (t *Tracker) InitialBalance(address string) (float64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	b, ok := t.initial[address]
	return b, ok
}

// Forget drops a removed wallet.
func (t *Tracker) Forget(address string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.current, address)
	delete(t.initial, address)
}

// Snapshot copies the balance book.
func (t *Tracker) Snapshot() Balances {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := Balances{
		Current:     make(map[string]float64, len(t.current)),
		Initial:     make(map[string]float64, len(t.initial)),
		InitialTime: t.initialTime,
	}
	for k, v := range t.current {
		out.Current[k] = v
	}
	for k, v := range t.initial {
		out.Initial[k] = v
	}
	return out
}

// Restore replaces the balance book, used by configuration import.
func (t *Tracker) Restore(b Balances) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = make(map[string]float64, len(b.Current))
	t.initial = make(map[string]float64, len(b.Initial))
	for k, v := range b.Current {
		t.current[k] = v
	}
	for k, v := range b.Initial {
		t.initial[k] = v
	}
	t.initialTime = b.InitialTime
}

// Stats aggregates balances with the win/loss record.
func (t *Tracker) Stats(record models.PortfolioStats) Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s := Stats{
		Wins:               record.WinCount,
		Losses:             record.LossCount,
		InitialBalanceTime: t.initialTime,
	}
	for _, v := range t.initial {
		s.TotalInitial += v
	}
	for _, v := range t.current {
		s.TotalCurrent += v
	}
	s.RealizedPnL = s.TotalCurrent - s.TotalInitial
	if s.TotalInitial > 0 {
		s.RealizedPnLPercent = s.RealizedPnL / s.TotalInitial * 100
	}
	if total := s.Wins + s.Losses; total > 0 {
		s.WinRate = float64(s.Wins) / float64(total) * 100
	}
	return s
}
