package statemanager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"pumpfun-dashboard-go/internal/models"
	"pumpfun-dashboard-go/internal/persistence"

	"go.uber.org/zap"
)

// EventType defines the type of a normalized event
type EventType int

const (
	FeedMessageEvent EventType = iota
	SetActiveTokenEvent
	ClearActiveTokenEvent
	DropPositionEvent
	ResetPositionsEvent
)

// ErrStopped is returned by DispatchAndWait once the event loop has exited.
var ErrStopped = errors.New("statemanager: event loop stopped")

// ErrInvalidMint is returned when a manually tracked mint is too short.
var ErrInvalidMint = errors.New("statemanager: mint address must be at least 32 characters")

const minMintLength = 32

// NormalizedEvent is a standardized internal representation of an event.
// Done, when set, is closed once the event has been processed.
type NormalizedEvent struct {
	Type      EventType
	Timestamp time.Time
	Data      interface{}
	Done      chan struct{}
}

// WalletDirectory resolves feed identities to tracked wallets. The dev wallet
// must be resolvable through Lookup too.
type WalletDirectory interface {
	Lookup(address string) (models.Wallet, bool)
	DevWallet() (models.Wallet, bool)
}

// Automation receives the trading triggers the reconciler raises. It is used
// to break the dependency between the reconciler and the trading engine.
type Automation interface {
	StartMonitor(address string)
	StopAllMonitors()
	TokenCreated(token models.ActiveToken)
}

// TokenSubscriber manages the feed's per-token channel.
type TokenSubscriber interface {
	SubscribeToken(mint string) error
	UnsubscribeToken(mint string) error
}

// Observer is told after every state mutation.
type Observer interface {
	StateChanged(reason string)
}

// Options tune the reconciler.
type Options struct {
	SolPriceUSD     float64
	ActivityLimit   int
	TokenTradeLimit int
	PersistQueue    int
	Now             func() time.Time
}

func (o *Options) setDefaults() {
	if o.SolPriceUSD <= 0 {
		o.SolPriceUSD = 162
	}
	if o.ActivityLimit <= 0 {
		o.ActivityLimit = 50
	}
	if o.TokenTradeLimit <= 0 {
		o.TokenTradeLimit = 100
	}
	if o.PersistQueue <= 0 {
		o.PersistQueue = 128
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// StateManager is the position reconciler. It is the only writer of
// positions, the active token, token stats and the win/loss record. Once
// started, every mutating method is handed to the event loop, so trades and
// manual operations never interleave.
type StateManager struct {
	mu    sync.RWMutex
	state *models.DashboardState

	wallets    WalletDirectory
	automation Automation
	subscriber TokenSubscriber
	observers  []Observer
	repo       persistence.StateRepository
	opts       Options

	eventChannel    chan NormalizedEvent
	persistenceChan chan models.PortfolioStats
	stopChan        chan struct{}
	stopOnce        sync.Once
	wg              sync.WaitGroup
	running         atomic.Bool

	subscribedMint string
	pending        []func()

	logger *zap.Logger
}

// NewStateManager creates a new StateManager. automation and subscriber may
// be nil until SetAutomation / SetTokenSubscriber are called.
func NewStateManager(initialState *models.DashboardState, wallets WalletDirectory, repo persistence.StateRepository, opts Options, logger *zap.Logger) *StateManager {
	opts.setDefaults()
	if initialState == nil {
		initialState = models.NewDashboardState()
	}
	if initialState.Positions == nil {
		initialState.Positions = make(map[string]*models.Position)
	}
	return &StateManager{
		state:           initialState,
		wallets:         wallets,
		repo:            repo,
		opts:            opts,
		eventChannel:    make(chan NormalizedEvent, 1024),
		persistenceChan: make(chan models.PortfolioStats, opts.PersistQueue),
		stopChan:        make(chan struct{}),
		logger:          logger,
	}
}

// SetAutomation wires the trading engine. Call before Start.
func (sm *StateManager) SetAutomation(a Automation) { sm.automation = a }

// SetTokenSubscriber wires the feed. Call before Start.
func (sm *StateManager) SetTokenSubscriber(s TokenSubscriber) { sm.subscriber = s }

// AddObserver registers a mutation hook. Call before Start.
func (sm *StateManager) AddObserver(o Observer) { sm.observers = append(sm.observers, o) }

// Start begins the event processing and persistence loops.
func (sm *StateManager) Start() {
	sm.wg.Add(2)
	sm.running.Store(true)
	go sm.eventLoop()
	go sm.persistenceLoop()
	sm.logger.Info("StateManager started.")
}

// Stop shuts the loops down. Snapshots already queued are saved first.
func (sm *StateManager) Stop() {
	sm.stopOnce.Do(func() {
		sm.running.Store(false)
		close(sm.stopChan)
		sm.wg.Wait()
		sm.logger.Info("StateManager stopped.")
	})
}

// DispatchEvent queues an event for the event loop.
func (sm *StateManager) DispatchEvent(ev NormalizedEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = sm.opts.Now()
	}
	sm.eventChannel <- ev
}

// DispatchAndWait queues an event and waits until it has been processed.
// It must not be called from the event loop itself.
func (sm *StateManager) DispatchAndWait(ctx context.Context, ev NormalizedEvent) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = sm.opts.Now()
	}
	ev.Done = make(chan struct{})
	select {
	case <-sm.stopChan:
		return ErrStopped
	default:
	}
	select {
	case sm.eventChannel <- ev:
	case <-sm.stopChan:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-ev.Done:
		return nil
	case <-sm.stopChan:
		// The loop may have taken the event before exiting.
		sm.wg.Wait()
		select {
		case <-ev.Done:
			return nil
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// serialize runs an operation on the event loop while it is running and
// inline otherwise.
func (sm *StateManager) serialize(typ EventType, data interface{}) {
	if sm.running.Load() {
		err := sm.DispatchAndWait(context.Background(), NormalizedEvent{Type: typ, Data: data})
		if err == nil {
			return
		}
		if !errors.Is(err, ErrStopped) {
			sm.logger.Error("Dropping state operation", zap.Int("type", int(typ)), zap.Error(err))
			return
		}
	}
	sm.processEvent(NormalizedEvent{Type: typ, Timestamp: sm.opts.Now(), Data: data})
}

// HandleFeedMessage is the feed's message callback.
func (sm *StateManager) HandleFeedMessage(data []byte) {
	sm.DispatchEvent(NormalizedEvent{Type: FeedMessageEvent, Data: data})
}

// GetStateSnapshot returns a deep copy of the current state for safe, concurrent reading.
func (sm *StateManager) GetStateSnapshot() *models.DashboardState {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.state.Clone()
}

// Position returns a copy of the wallet's position, or nil.
func (sm *StateManager) Position(address string) *models.Position {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.state.Positions[address].Clone()
}

// PositionsInMint returns copies of every open position in mint.
func (sm *StateManager) PositionsInMint(mint string) map[string]*models.Position {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	out := make(map[string]*models.Position)
	for addr, p := range sm.state.Positions {
		if p != nil && p.Mint == mint {
			out[addr] = p.Clone()
		}
	}
	return out
}

// ActiveToken returns a copy of the active token, or nil.
func (sm *StateManager) ActiveToken() *models.ActiveToken {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	if sm.state.ActiveToken == nil {
		return nil
	}
	t := *sm.state.ActiveToken
	return &t
}

// MarketCapUSD returns the active token's last market cap in USD.
func (sm *StateManager) MarketCapUSD() float64 {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.state.Stats.MarketCapUSD
}

// DevPositionClosed reports whether the dev wallet is configured and holds
// no position (absent or zero balance).
func (sm *StateManager) DevPositionClosed() bool {
	if sm.wallets == nil {
		return false
	}
	dev, ok := sm.wallets.DevWallet()
	if !ok {
		return false
	}
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	p := sm.state.Positions[dev.Address]
	return p == nil || p.Balance <= 0
}

// Portfolio returns the win/loss record.
func (sm *StateManager) Portfolio() models.PortfolioStats {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.state.Portfolio
}

// LoadPortfolio restores the persisted win/loss record.
func (sm *StateManager) LoadPortfolio() error {
	if sm.repo == nil {
		return nil
	}
	var stats models.PortfolioStats
	found, err := sm.repo.Load(persistence.KeyPortfolioStats, &stats)
	if err != nil {
		return fmt.Errorf("load portfolio stats: %w", err)
	}
	if found {
		sm.mu.Lock()
		sm.state.Portfolio = stats
		sm.mu.Unlock()
	}
	return nil
}

// eventLoop is the core processing loop that handles all incoming events serially.
func (sm *StateManager) eventLoop() {
	defer sm.wg.Done()
	for {
		select {
		case ev := <-sm.eventChannel:
			sm.processEvent(ev)
		case <-sm.stopChan:
			return
		}
	}
}

// persistenceLoop handles the asynchronous saving of portfolio snapshots.
func (sm *StateManager) persistenceLoop() {
	defer sm.wg.Done()
	for {
		select {
		case stats := <-sm.persistenceChan:
			sm.save(stats)
		case <-sm.stopChan:
			for {
				select {
				case stats := <-sm.persistenceChan:
					sm.save(stats)
				default:
					return
				}
			}
		}
	}
}

func (sm *StateManager) save(stats models.PortfolioStats) {
	if sm.repo == nil {
		return
	}
	if err := sm.repo.Save(persistence.KeyPortfolioStats, stats); err != nil {
		sm.logger.Error("CRITICAL: Failed to save portfolio stats", zap.Error(err))
	}
}

// processEvent routes one event to its handler.
func (sm *StateManager) processEvent(ev NormalizedEvent) {
	defer func() {
		if ev.Done != nil {
			close(ev.Done)
		}
	}()

	switch ev.Type {
	case FeedMessageEvent:
		if data, ok := ev.Data.([]byte); ok {
			sm.handleTradeEvent(data)
		} else {
			sm.logger.Sugar().Warnf("Received FeedMessageEvent with unexpected data type: %T", ev.Data)
		}
	case SetActiveTokenEvent:
		if token, ok := ev.Data.(models.ActiveToken); ok {
			sm.setActiveToken(token)
		} else {
			sm.logger.Sugar().Warnf("Received SetActiveTokenEvent with unexpected data type: %T", ev.Data)
		}
	case ClearActiveTokenEvent:
		sm.clearActiveToken()
	case DropPositionEvent:
		if addr, ok := ev.Data.(string); ok {
			sm.dropPosition(addr)
		} else {
			sm.logger.Sugar().Warnf("Received DropPositionEvent with unexpected data type: %T", ev.Data)
		}
	case ResetPositionsEvent:
		if stats, ok := ev.Data.(models.PortfolioStats); ok {
			sm.resetPositions(stats)
		} else {
			sm.logger.Sugar().Warnf("Received ResetPositionsEvent with unexpected data type: %T", ev.Data)
		}
	default:
		sm.logger.Sugar().Warnf("Received unknown event type %d", ev.Type)
	}
}

// mutate runs fn under the write lock, then runs the side effects fn queued
// with after, then notifies observers and queues a portfolio snapshot.
// Side effects run outside the lock because they may read state back.
func (sm *StateManager) mutate(reason string, fn func() bool) {
	sm.mu.Lock()
	before := sm.state.Portfolio
	changed := fn()
	effects := sm.pending
	sm.pending = nil
	after := sm.state.Portfolio
	sm.mu.Unlock()

	for _, effect := range effects {
		effect()
	}
	if !changed {
		return
	}
	if after != before {
		select {
		case sm.persistenceChan <- after:
		default:
			sm.logger.Warn("Persistence queue full, portfolio snapshot skipped")
		}
	}
	for _, o := range sm.observers {
		o.StateChanged(reason)
	}
}

// after queues a side effect to run once the current mutation releases the lock.
func (sm *StateManager) after(fn func()) {
	sm.pending = append(sm.pending, fn)
}
