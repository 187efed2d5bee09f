package executor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pumpfun-dashboard-go/internal/exchange"
	"pumpfun-dashboard-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type scriptedResponse struct {
	result *exchange.TradeResult
	err    error
}

// mockExchange answers SubmitTrade from a script, one response per call.
type mockExchange struct {
	sync.Mutex
	script []scriptedResponse
	calls  int
}

func (m *mockExchange) SubmitTrade(ctx context.Context, req models.TradeRequest) (*exchange.TradeResult, error) {
	m.Lock()
	defer m.Unlock()
	i := m.calls
	m.calls++
	if i >= len(m.script) {
		return &exchange.TradeResult{Error: "script exhausted"}, nil
	}
	return m.script[i].result, m.script[i].err
}

func (m *mockExchange) CreateWallet(ctx context.Context) (*models.Wallet, error) {
	return nil, errors.New("not supported")
}

type mockJournal struct {
	sync.Mutex
	entries []models.TransactionQueueEntry
}

func (j *mockJournal) RecordOrder(entry models.TransactionQueueEntry) error {
	j.Lock()
	defer j.Unlock()
	j.entries = append(j.entries, entry)
	return nil
}

type harness struct {
	exec      *Executor
	exchange  *mockExchange
	journal   *mockJournal
	sleeps    []time.Duration
	scheduled []func()
}

func newHarness(script ...scriptedResponse) *harness {
	h := &harness{exchange: &mockExchange{script: script}, journal: &mockJournal{}}
	h.exec = New(h.exchange, Options{}, zap.NewNop())
	h.exec.SetJournal(h.journal)
	h.exec.sleep = func(ctx context.Context, d time.Duration) error {
		h.sleeps = append(h.sleeps, d)
		return nil
	}
	h.exec.schedule = func(d time.Duration, f func()) {
		h.scheduled = append(h.scheduled, f)
	}
	return h
}

func ok(sig string) scriptedResponse {
	return scriptedResponse{result: &exchange.TradeResult{Signature: sig}}
}

func rejected(msg string) scriptedResponse {
	return scriptedResponse{result: &exchange.TradeResult{Error: msg}}
}

func request() models.TradeRequest {
	return models.TradeRequest{Action: models.Buy, Mint: "M1", WalletAddress: "W1", WalletName: "Wallet 1", Amount: 0.1, Source: "manual"}
}

// TestRetriesBlockhashUntilSuccess fails twice on a stale blockhash and then lands.
func TestRetriesBlockhashUntilSuccess(t *testing.T) {
	h := newHarness(rejected("Blockhash not found"), rejected("blockhash expired"), ok("sig-3"))

	entry := h.exec.Execute(context.Background(), request())

	assert.Equal(t, models.StatusSuccess, entry.Status)
	assert.Equal(t, "sig-3", entry.Signature)
	assert.Equal(t, 3, entry.Attempts)
	assert.Equal(t, []time.Duration{500 * time.Millisecond, 500 * time.Millisecond}, h.sleeps)

	queue := h.exec.Queue()
	require.Len(t, queue, 1)
	assert.Equal(t, models.StatusSuccess, queue[0].Status)
}

// TestTerminalErrorStopsImmediately does not retry messages without a marker.
func TestTerminalErrorStopsImmediately(t *testing.T) {
	h := newHarness(rejected("Invalid mint"), ok("never"))

	entry := h.exec.Execute(context.Background(), request())

	assert.Equal(t, models.StatusError, entry.Status)
	assert.Equal(t, "Invalid mint", entry.Error)
	assert.Equal(t, 1, entry.Attempts)
	assert.Empty(t, h.sleeps)
	assert.Equal(t, 1, h.exchange.calls)
}

// TestMissingSignatureIsFailure treats an empty answer as a terminal failure.
func TestMissingSignatureIsFailure(t *testing.T) {
	h := newHarness(scriptedResponse{result: &exchange.TradeResult{}})

	entry := h.exec.Execute(context.Background(), request())
	assert.Equal(t, models.StatusError, entry.Status)
	assert.Equal(t, unknownError, entry.Error)
	assert.Equal(t, 1, h.exchange.calls)
}

// TestExhaustsAttempts keeps the last failure reason.
func TestExhaustsAttempts(t *testing.T) {
	h := newHarness(
		rejected("insufficient funds"),
		scriptedResponse{err: errors.New("connection reset")},
		rejected("Transaction failed"),
	)

	entry := h.exec.Execute(context.Background(), request())

	assert.Equal(t, models.StatusError, entry.Status)
	assert.Equal(t, "Transaction failed", entry.Error)
	assert.Equal(t, 3, entry.Attempts)
	assert.Len(t, h.sleeps, 2)
	assert.Equal(t, 3, h.exchange.calls)
}

// TestCancelledContextStopsRetrying records the cancellation as the reason.
func TestCancelledContextStopsRetrying(t *testing.T) {
	h := newHarness(rejected("blockhash"), ok("late"))
	h.exec.sleep = sleepContext

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	entry := h.exec.Execute(ctx, request())

	assert.Equal(t, models.StatusError, entry.Status)
	assert.Equal(t, context.Canceled.Error(), entry.Error)
	assert.Equal(t, 1, h.exchange.calls)
}

// TestQueueEntriesExpire removes terminal entries once the expiry fires.
func TestQueueEntriesExpire(t *testing.T) {
	h := newHarness(ok("a"), rejected("bad request"))

	first := h.exec.Execute(context.Background(), request())
	second := h.exec.Execute(context.Background(), request())
	assert.NotEqual(t, first.ID, second.ID)
	require.Len(t, h.exec.Queue(), 2)
	require.Len(t, h.scheduled, 2)

	h.scheduled[0]()
	queue := h.exec.Queue()
	require.Len(t, queue, 1)
	assert.Equal(t, second.ID, queue[0].ID)

	h.scheduled[1]()
	assert.Empty(t, h.exec.Queue())
}

// TestJournalAndCallbacks sees the processing entry and the terminal entry.
func TestJournalAndCallbacks(t *testing.T) {
	h := newHarness(ok("sig"))
	var statuses []models.OrderStatus
	h.exec.OnChange(func(e models.TransactionQueueEntry) { statuses = append(statuses, e.Status) })

	h.exec.Execute(context.Background(), request())

	assert.Equal(t, []models.OrderStatus{models.StatusProcessing, models.StatusSuccess}, statuses)
	require.Len(t, h.journal.entries, 1)
	assert.Equal(t, "sig", h.journal.entries[0].Signature)
	assert.Equal(t, "manual", h.journal.entries[0].Source)
}

// TestRealExpiryTimer uses the default scheduler with a short expiry.
func TestRealExpiryTimer(t *testing.T) {
	ex := New(&mockExchange{script: []scriptedResponse{ok("sig")}}, Options{Expiry: 20 * time.Millisecond}, zap.NewNop())
	ex.Execute(context.Background(), request())

	assert.Eventually(t, func() bool { return len(ex.Queue()) == 0 }, time.Second, 5*time.Millisecond)
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		msg  string
		want bool
	}{
		{"Insufficient funds for rent", true},
		{"Blockhash not found", true},
		{"Transaction simulation failed", true},
		{"Invalid private key", false},
		{"", false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, isRetryable(c.msg), c.msg)
	}
}
