package launcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"pumpfun-dashboard-go/internal/models"
	"pumpfun-dashboard-go/internal/persistence"

	"go.uber.org/zap"
)

// TxTypeLaunch marks launch results in the activity log.
const TxTypeLaunch = "spam-launch"

var (
	ErrBatchRunning = errors.New("launcher: a launch batch is already running")
	ErrInvalidIndex = errors.New("launcher: launch index out of range")
)

// Companion is the launch service the runner drives.
type Companion interface {
	Health(ctx context.Context) error
	Launch(ctx context.Context, walletName string, spec models.LaunchSpec) (*Result, error)
}

// ActivityLog receives launch results.
type ActivityLog interface {
	RecordActivity(entry models.ActivityEntry)
}

// Notifier surfaces messages the user should see.
type Notifier interface {
	Notify(msg string)
}

// logNotifier is used when no notifier is set.
type logNotifier struct{ logger *zap.Logger }

func (n logNotifier) Notify(msg string) { n.logger.Warn(msg) }

// Outcome is what happened to one launch of a batch.
type Outcome struct {
	Index   int
	Symbol  string
	Skipped string // reason, empty when attempted
	Result  *Result
	Err     error
}

// Runner owns the mass-launch configuration and executes batches.
type Runner struct {
	mu      sync.Mutex
	config  models.MassLaunchConfig
	running bool

	companion Companion
	activity  ActivityLog
	notifier  Notifier
	repo      persistence.StateRepository

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed bool

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time

	logger *zap.Logger
}

// NewRunner creates a runner with an empty, disabled configuration.
func NewRunner(companion Companion, activity ActivityLog, repo persistence.StateRepository, logger *zap.Logger) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		companion: companion,
		activity:  activity,
		notifier:  logNotifier{logger: logger},
		repo:      repo,
		ctx:       ctx,
		cancel:    cancel,
		sleep:     sleepContext,
		now:       time.Now,
		logger:    logger,
	}
}

// SetNotifier replaces the default log notifier.
func (r *Runner) SetNotifier(n Notifier) {
	if n != nil {
		r.notifier = n
	}
}

// Load restores the persisted configuration.
func (r *Runner) Load() error {
	if r.repo == nil {
		return nil
	}
	var cfg models.MassLaunchConfig
	found, err := r.repo.Load(persistence.KeySpamLaunchConfig, &cfg)
	if err != nil {
		return fmt.Errorf("load mass-launch config: %w", err)
	}
	if !found {
		return nil
	}
	r.mu.Lock()
	r.config = cfg
	r.mu.Unlock()
	r.logger.Info("Mass-launch config loaded", zap.Bool("enabled", cfg.Enabled), zap.Int("launches", len(cfg.Launches)))
	return nil
}

// Config returns a copy of the configuration.
func (r *Runner) Config() models.MassLaunchConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneConfig(r.config)
}

// Replace swaps the whole configuration, used by import.
func (r *Runner) Replace(cfg models.MassLaunchConfig) error {
	return r.edit(func(c *models.MassLaunchConfig) error {
		*c = cloneConfig(cfg)
		return nil
	})
}

func (r *Runner) SetEnabled(enabled bool) error {
	return r.edit(func(c *models.MassLaunchConfig) error {
		c.Enabled = enabled
		return nil
	})
}

func (r *Runner) AddLaunch(spec models.LaunchSpec) error {
	return r.edit(func(c *models.MassLaunchConfig) error {
		c.Launches = append(c.Launches, spec)
		return nil
	})
}

func (r *Runner) UpdateLaunch(index int, spec models.LaunchSpec) error {
	return r.edit(func(c *models.MassLaunchConfig) error {
		if index < 0 || index >= len(c.Launches) {
			return fmt.Errorf("%w: %d", ErrInvalidIndex, index)
		}
		c.Launches[index] = spec
		return nil
	})
}

func (r *Runner) RemoveLaunch(index int) error {
	return r.edit(func(c *models.MassLaunchConfig) error {
		if index < 0 || index >= len(c.Launches) {
			return fmt.Errorf("%w: %d", ErrInvalidIndex, index)
		}
		c.Launches = append(c.Launches[:index], c.Launches[index+1:]...)
		return nil
	})
}

// TokenCreated starts a batch in the background when the feature is enabled.
func (r *Runner) TokenCreated(token models.ActiveToken) {
	if !r.Config().Enabled {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if _, err := r.Execute(r.ctx); err != nil && !errors.Is(err, ErrBatchRunning) {
			r.logger.Error("Mass launch failed", zap.String("trigger_mint", token.Mint), zap.Error(err))
		}
	}()
}

// Close cancels a running batch and waits for it.
func (r *Runner) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.cancel()
	r.wg.Wait()
}

// Execute runs every configured launch in order. The companion must pass its
// health check first; otherwise nothing is launched and the configuration is
// left as it was. After the batch the list is cleared and the feature disabled.
func (r *Runner) Execute(ctx context.Context) ([]Outcome, error) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil, ErrBatchRunning
	}
	cfg := cloneConfig(r.config)
	if !cfg.Enabled || len(cfg.Launches) == 0 {
		r.mu.Unlock()
		return nil, nil
	}
	r.running = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	if err := r.companion.Health(ctx); err != nil {
		r.notifier.Notify("Mass-launch companion service is not running; start it before launching.")
		return nil, err
	}

	r.logger.Info("Executing mass launch", zap.Int("launches", len(cfg.Launches)))
	outcomes := make([]Outcome, 0, len(cfg.Launches))
	for i, spec := range cfg.Launches {
		out := Outcome{Index: i, Symbol: spec.Symbol}
		if reason := skipReason(spec); reason != "" {
			out.Skipped = reason
			r.notifier.Notify(fmt.Sprintf("Launch %d skipped: %s", i+1, reason))
			outcomes = append(outcomes, out)
			continue
		}

		if spec.DelayMs > 0 && i > 0 {
			if err := r.sleep(ctx, time.Duration(spec.DelayMs)*time.Millisecond); err != nil {
				return outcomes, err
			}
		}

		out.Result, out.Err = r.launch(ctx, i, spec)
		outcomes = append(outcomes, out)
	}

	r.notifier.Notify("Mass launches completed; tokens will auto-sell according to their timers.")
	err := r.edit(func(c *models.MassLaunchConfig) error {
		c.Launches = nil
		c.Enabled = false
		return nil
	})
	return outcomes, err
}

func (r *Runner) launch(ctx context.Context, i int, spec models.LaunchSpec) (*Result, error) {
	name := spec.WalletName
	if name == "" {
		name = fmt.Sprintf("Spam Wallet %d", i+1)
	}
	log := r.logger.With(zap.Int("launch", i+1), zap.String("symbol", spec.Symbol))
	log.Info("Launching token",
		zap.String("name", spec.TokenName),
		zap.Float64("sell_percent", spec.SellPercent),
		zap.Float64("sell_after_seconds", spec.SellAfterSeconds))

	result, err := r.companion.Launch(ctx, name, spec)
	if err != nil {
		log.Error("Launch request failed", zap.Error(err))
		r.notifier.Notify(fmt.Sprintf("Error creating %s: %v", spec.Symbol, err))
		return nil, err
	}
	if !result.Success {
		log.Error("Launch rejected", zap.String("error", result.Error))
		r.notifier.Notify(fmt.Sprintf("Failed to create %s: %s", spec.Symbol, result.Error))
		return result, nil
	}

	log.Info("Token launched",
		zap.String("mint", result.Mint),
		zap.String("signature", result.Signature),
		zap.Bool("sell_scheduled", result.SellScheduled))
	if r.activity != nil {
		r.activity.RecordActivity(models.ActivityEntry{
			Time:          r.now(),
			WalletAddress: spec.WalletAddress,
			WalletName:    name,
			TxType:        TxTypeLaunch,
			Mint:          result.Mint,
			Symbol:        spec.Symbol,
			SolAmount:     spec.InitialBuy,
			Signature:     result.Signature,
			Matched:       true,
			Note:          fmt.Sprintf("%s: auto-sell %g%% after %gs", spec.TokenName, spec.SellPercent, spec.SellAfterSeconds),
		})
	}
	return result, nil
}

func skipReason(spec models.LaunchSpec) string {
	if spec.WalletAddress == "" || spec.PrivateKey == "" || spec.APIKey == "" {
		return "missing wallet credentials"
	}
	if spec.TokenName == "" || spec.Symbol == "" {
		return "missing token name or symbol"
	}
	return ""
}

func (r *Runner) edit(fn func(c *models.MassLaunchConfig) error) error {
	r.mu.Lock()
	if err := fn(&r.config); err != nil {
		r.mu.Unlock()
		return err
	}
	snapshot := cloneConfig(r.config)
	r.mu.Unlock()

	if r.repo == nil {
		return nil
	}
	if err := r.repo.Save(persistence.KeySpamLaunchConfig, snapshot); err != nil {
		r.logger.Error("Failed to save mass-launch config", zap.Error(err))
		return fmt.Errorf("save mass-launch config: %w", err)
	}
	return nil
}

func cloneConfig(c models.MassLaunchConfig) models.MassLaunchConfig {
	c.Launches = append([]models.LaunchSpec(nil), c.Launches...)
	return c
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
