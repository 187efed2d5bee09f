package executor

import (
	"context"
	"strings"
	"sync"
	"time"

	"pumpfun-dashboard-go/internal/exchange"
	"pumpfun-dashboard-go/internal/models"

	"github.com/google/uuid"
	"github.com/jxskiss/base62"
	"go.uber.org/zap"
)

const unknownError = "Unknown error"

// retryMarkers are the failure messages worth another attempt.
var retryMarkers = []string{"insufficient", "blockhash", "failed"}

// Journal receives every entry that reaches a terminal status.
type Journal interface {
	RecordOrder(entry models.TransactionQueueEntry) error
}

// Options tune the retry loop and the queue.
type Options struct {
	MaxAttempts int
	RetryDelay  time.Duration
	Expiry      time.Duration
}

func (o *Options) setDefaults() {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 500 * time.Millisecond
	}
	if o.Expiry <= 0 {
		o.Expiry = 10 * time.Second
	}
}

// Executor submits orders with retries and keeps the visible transaction queue.
type Executor struct {
	exchange exchange.Exchange
	opts     Options
	journal  Journal

	mu       sync.RWMutex
	queue    []*models.TransactionQueueEntry
	onChange []func(models.TransactionQueueEntry)

	sleep    func(ctx context.Context, d time.Duration) error
	schedule func(d time.Duration, f func())
	now      func() time.Time

	logger *zap.Logger
}

// New creates an executor submitting through ex.
func New(ex exchange.Exchange, opts Options, logger *zap.Logger) *Executor {
	opts.setDefaults()
	return &Executor{
		exchange: ex,
		opts:     opts,
		sleep:    sleepContext,
		schedule: func(d time.Duration, f func()) { time.AfterFunc(d, f) },
		now:      time.Now,
		logger:   logger,
	}
}

// Call before the first Execute.
func (e *Executor) SetJournal(j Journal) { e.journal = j }

// OnChange registers a callback run after every queue update.
func (e *Executor) OnChange(fn func(models.TransactionQueueEntry)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onChange = append(e.onChange, fn)
}

func (e *Executor) Queue() []models.TransactionQueueEntry {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]models.TransactionQueueEntry, 0, len(e.queue))
	for _, entry := range e.queue {
		out = append(out, *entry)
	}
	return out
}

type retryState struct {
	attempts    int
	maxAttempts int
	lastErr     string
}

// fail records a failed attempt and reports whether another one is allowed.
func (s *retryState) fail(msg string, retryable bool) bool {
	s.lastErr = msg
	return retryable && s.attempts < s.maxAttempts
}

func (s *retryState) next() bool {
	if s.attempts >= s.maxAttempts {
		return false
	}
	s.attempts++
	return true
}

// isRetryable reports whether an API failure message carries a retry marker.
func isRetryable(msg string) bool {
	lower := strings.ToLower(msg)
	for _, marker := range retryMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// Execute enqueues req as a processing entry and submits it, retrying
// transient failures. It never returns an error: the outcome is the
// returned entry's status.
//
// A rejected order is retried only when its message carries a retry marker
// and attempts remain, waiting RetryDelay in between. Transport errors are
// retried until ctx is done. The terminal entry is journaled and stays in
// the queue for Expiry before it is dropped.
func (e *Executor) Execute(ctx context.Context, req models.TradeRequest) models.TransactionQueueEntry {
	entry := e.enqueue(req)
	log := e.logger.With(
		zap.String("id", entry.ID),
		zap.String("action", string(req.Action)),
		zap.String("wallet", req.WalletName))

	state := &retryState{maxAttempts: e.opts.MaxAttempts}
	for state.next() {
		log.Info("Submitting order",
			zap.Int("attempt", state.attempts),
			zap.Int("maxAttempts", state.maxAttempts),
			zap.Float64("slippage", req.Slippage),
			zap.Float64("priorityFee", req.PriorityFee))

		result, err := e.exchange.SubmitTrade(ctx, req)
		var retry bool
		switch {
		case err != nil:
			log.Warn("Order request failed", zap.Int("attempt", state.attempts), zap.Error(err))
			retry = state.fail(err.Error(), ctx.Err() == nil)
		case result.Signature != "":
			log.Info("Order confirmed", zap.Int("attempt", state.attempts), zap.String("signature", result.Signature))
			return e.finish(entry.ID, state.attempts, models.StatusSuccess, result.Signature, "")
		default:
			msg := result.Error
			if msg == "" {
				msg = unknownError
			}
			log.Warn("Order rejected", zap.Int("attempt", state.attempts), zap.String("error", msg))
			retry = state.fail(msg, isRetryable(msg))
		}

		if !retry {
			break
		}
		e.setAttempts(entry.ID, state.attempts)
		if err := e.sleep(ctx, e.opts.RetryDelay); err != nil {
			state.lastErr = err.Error()
			break
		}
	}

	log.Error("Order failed", zap.Int("attempts", state.attempts), zap.String("error", state.lastErr))
	return e.finish(entry.ID, state.attempts, models.StatusError, "", state.lastErr)
}

func (e *Executor) enqueue(req models.TradeRequest) models.TransactionQueueEntry {
	id := uuid.New()
	entry := &models.TransactionQueueEntry{
		ID:            base62.EncodeToString(id[:]),
		Action:        req.Action,
		WalletAddress: req.WalletAddress,
		WalletName:    req.WalletName,
		Mint:          req.Mint,
		TokenSymbol:   req.TokenSymbol,
		Amount:        req.Amount,
		Percentage:    req.Percentage,
		Status:        models.StatusProcessing,
		Source:        req.Source,
		CreatedAt:     e.now(),
	}

	e.mu.Lock()
	e.queue = append(e.queue, entry)
	snapshot := *entry
	e.mu.Unlock()

	e.notify(snapshot)
	return snapshot
}

func (e *Executor) setAttempts(id string, attempts int) {
	e.mu.Lock()
	entry := e.find(id)
	if entry == nil {
		e.mu.Unlock()
		return
	}
	entry.Attempts = attempts
	snapshot := *entry
	e.mu.Unlock()
	e.notify(snapshot)
}

// finish marks the entry terminal, journals it and schedules its removal.
func (e *Executor) finish(id string, attempts int, status models.OrderStatus, signature, errMsg string) models.TransactionQueueEntry {
	e.mu.Lock()
	entry := e.find(id)
	if entry == nil {
		e.mu.Unlock()
		return models.TransactionQueueEntry{ID: id, Status: status, Signature: signature, Error: errMsg, Attempts: attempts}
	}
	entry.Status = status
	entry.Signature = signature
	entry.Error = errMsg
	entry.Attempts = attempts
	entry.CompletedAt = e.now()
	snapshot := *entry
	e.mu.Unlock()

	e.notify(snapshot)
	if e.journal != nil {
		if err := e.journal.RecordOrder(snapshot); err != nil {
			e.logger.Error("Failed to journal order", zap.String("id", id), zap.Error(err))
		}
	}
	e.schedule(e.opts.Expiry, func() { e.remove(id) })
	return snapshot
}

func (e *Executor) remove(id string) {
	e.mu.Lock()
	removed := false
	for i, entry := range e.queue {
		if entry.ID == id {
			e.queue = append(e.queue[:i], e.queue[i+1:]...)
			removed = true
			break
		}
	}
	e.mu.Unlock()
	if removed {
		e.logger.Debug("Queue entry expired", zap.String("id", id))
	}
}

// mu held.
func (e *Executor) find(id string) *models.TransactionQueueEntry {
	for _, entry := range e.queue {
		if entry.ID == id {
			return entry
		}
	}
	return nil
}

func (e *Executor) notify(entry models.TransactionQueueEntry) {
	e.mu.RLock()
	callbacks := append([]func(models.TransactionQueueEntry){}, e.onChange...)
	e.mu.RUnlock()
	for _, fn := range callbacks {
		fn(entry)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
