package registry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"pumpfun-dashboard-go/internal/models"
	"pumpfun-dashboard-go/internal/persistence"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"go.uber.org/zap"
)

var (
	ErrDuplicateWallet = errors.New("registry: wallet address already exists")
	ErrWalletNotFound  = errors.New("registry: wallet not found")
	ErrMissingField    = errors.New("registry: wallet fields are incomplete")
	ErrInvalidKey      = errors.New("registry: invalid wallet key material")
	ErrInvalidSetting  = errors.New("registry: invalid setting")
)

const DevWalletName = "Dev Wallet"

// Setting fields accepted by UpdateSetting.
const (
	SettingBuyAmount    = "buy"
	SettingSellPercent  = "sell"
	SettingBuySlippage  = "buySlippage"
	SettingSellSlippage = "sellSlippage"
	SettingPriorityFee  = "priorityFee"
)

// WalletCreator provisions new wallets (the trade API's create-wallet call).
type WalletCreator interface {
	CreateWallet(ctx context.Context) (*models.Wallet, error)
}

// Listener is notified after the wallet set changes.
type Listener interface {
	WalletAdded(w models.Wallet)
	WalletRemoved(address string)
}

// Registry holds the tracked trading wallets, the optional dev wallet and the
// per-wallet settings. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	wallets   []models.Wallet
	dev       *models.Wallet
	settings  map[string]models.WalletSettings
	repo      persistence.StateRepository
	listeners []Listener
	logger    *zap.Logger

	// VerifyKeys rejects wallets whose signing key does not belong to the
	// address. Enabled by default.
	VerifyKeys bool
}

// New creates an empty registry backed by repo (which may be nil).
func New(repo persistence.StateRepository, logger *zap.Logger) *Registry {
	return &Registry{
		settings:   make(map[string]models.WalletSettings),
		repo:       repo,
		logger:     logger,
		VerifyKeys: true,
	}
}

// AddListener registers l for wallet add/remove notifications.
func (r *Registry) AddListener(l Listener) {
	r.mu.Lock()
	r.listeners = append(r.listeners, l)
	r.mu.Unlock()
}

// Load restores wallets and settings from the repository.
func (r *Registry) Load() error {
	if r.repo == nil {
		return nil
	}

	var wallets []models.Wallet
	if _, err := r.repo.Load(persistence.KeyTradingWallets, &wallets); err != nil {
		return fmt.Errorf("load trading wallets: %w", err)
	}
	var dev models.Wallet
	devFound, err := r.repo.Load(persistence.KeyDevWallet, &dev)
	if err != nil {
		return fmt.Errorf("load dev wallet: %w", err)
	}
	stored := map[string]*models.WalletSettings{}
	if _, err := r.repo.Load(persistence.KeyWalletSettings, &stored); err != nil {
		return fmt.Errorf("load wallet settings: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.wallets = wallets
	r.dev = nil
	if devFound && dev.Address != "" {
		dev.IsDevWallet = true
		if dev.Name == "" {
			dev.Name = DevWalletName
		}
		r.dev = &dev
	}

	r.settings = make(map[string]models.WalletSettings)
	for _, w := range r.allLocked() {
		s := models.DefaultWalletSettings()
		if saved, ok := stored[w.Address]; ok && saved != nil {
			s = *saved
			s.Normalize()
		}
		r.settings[w.Address] = s
	}

	r.logger.Info("Wallet registry loaded",
		zap.Int("tradingWallets", len(r.wallets)),
		zap.Bool("devWallet", r.dev != nil))
	return nil
}

// Save writes wallets and settings to the repository.
func (r *Registry) Save() error {
	if r.repo == nil {
		return nil
	}
	r.mu.RLock()
	wallets := append([]models.Wallet{}, r.wallets...)
	var dev *models.Wallet
	if r.dev != nil {
		d := *r.dev
		dev = &d
	}
	settings := make(map[string]models.WalletSettings, len(r.settings))
	for k, v := range r.settings {
		settings[k] = v.Clone()
	}
	r.mu.RUnlock()

	if err := r.repo.Save(persistence.KeyTradingWallets, wallets); err != nil {
		return fmt.Errorf("save trading wallets: %w", err)
	}
	if dev != nil {
		if err := r.repo.Save(persistence.KeyDevWallet, dev); err != nil {
			return fmt.Errorf("save dev wallet: %w", err)
		}
	} else if err := r.repo.Delete(persistence.KeyDevWallet); err != nil {
		return fmt.Errorf("delete dev wallet: %w", err)
	}
	if err := r.repo.Save(persistence.KeyWalletSettings, settings); err != nil {
		return fmt.Errorf("save wallet settings: %w", err)
	}
	return nil
}

// Add imports a trading wallet. An empty name becomes "Wallet N".
func (r *Registry) Add(w models.Wallet) (models.Wallet, error) {
	w = trimWallet(w)
	w.IsDevWallet = false
	if err := r.validate(w); err != nil {
		return models.Wallet{}, err
	}

	r.mu.Lock()
	if r.existsLocked(w.Address) {
		r.mu.Unlock()
		return models.Wallet{}, fmt.Errorf("%w: %s", ErrDuplicateWallet, w.Address)
	}
	if w.Name == "" {
		w.Name = fmt.Sprintf("Wallet %d", len(r.wallets)+1)
	}
	r.wallets = append(r.wallets, w)
	r.settings[w.Address] = models.DefaultWalletSettings()
	listeners := append([]Listener(nil), r.listeners...)
	r.mu.Unlock()

	r.logger.Info("Trading wallet added", zap.String("name", w.Name), zap.String("address", w.Address))
	r.persist()
	for _, l := range listeners {
		l.WalletAdded(w)
	}
	return w, nil
}

// SetDevWallet installs w as the dev wallet, replacing any previous one.
func (r *Registry) SetDevWallet(w models.Wallet) (models.Wallet, error) {
	w = trimWallet(w)
	w.IsDevWallet = true
	if w.Name == "" {
		w.Name = DevWalletName
	}
	if err := r.validate(w); err != nil {
		return models.Wallet{}, err
	}

	r.mu.Lock()
	for _, tw := range r.wallets {
		if tw.Address == w.Address {
			r.mu.Unlock()
			return models.Wallet{}, fmt.Errorf("%w: %s is a trading wallet", ErrDuplicateWallet, w.Address)
		}
	}
	var replaced string
	if r.dev != nil && r.dev.Address != w.Address {
		replaced = r.dev.Address
		delete(r.settings, replaced)
	}
	r.dev = &w
	if _, ok := r.settings[w.Address]; !ok {
		r.settings[w.Address] = models.DefaultWalletSettings()
	}
	listeners := append([]Listener(nil), r.listeners...)
	r.mu.Unlock()

	r.logger.Info("Dev wallet set", zap.String("address", w.Address))
	r.persist()
	for _, l := range listeners {
		if replaced != "" {
			l.WalletRemoved(replaced)
		}
		l.WalletAdded(w)
	}
	return w, nil
}

// Create provisions a wallet through creator and adds it as a trading
// wallet, or as the dev wallet when dev is true.
func (r *Registry) Create(ctx context.Context, creator WalletCreator, dev bool) (models.Wallet, error) {
	created, err := creator.CreateWallet(ctx)
	if err != nil {
		return models.Wallet{}, fmt.Errorf("create wallet: %w", err)
	}
	if dev {
		return r.SetDevWallet(*created)
	}
	created.Name = ""
	return r.Add(*created)
}

// Remove deletes a trading wallet or the dev wallet.
func (r *Registry) Remove(address string) error {
	r.mu.Lock()
	found := false
	if r.dev != nil && r.dev.Address == address {
		r.dev = nil
		found = true
	} else {
		for i, w := range r.wallets {
			if w.Address == address {
				r.wallets = append(r.wallets[:i], r.wallets[i+1:]...)
				found = true
				break
			}
		}
	}
	if !found {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrWalletNotFound, address)
	}
	delete(r.settings, address)
	listeners := append([]Listener(nil), r.listeners...)
	r.mu.Unlock()

	r.logger.Info("Wallet removed", zap.String("address", address))
	r.persist()
	for _, l := range listeners {
		l.WalletRemoved(address)
	}
	return nil
}

// Replace swaps the whole wallet set, as an import does. Wallets without an
// entry in settings get defaults.
func (r *Registry) Replace(trading []models.Wallet, dev *models.Wallet, settings map[string]models.WalletSettings) error {
	seen := make(map[string]bool)
	cleaned := make([]models.Wallet, 0, len(trading))
	for _, w := range trading {
		w = trimWallet(w)
		w.IsDevWallet = false
		if w.Address == "" || seen[w.Address] {
			continue
		}
		seen[w.Address] = true
		cleaned = append(cleaned, w)
	}
	var devCopy *models.Wallet
	if dev != nil && dev.Address != "" && !seen[dev.Address] {
		d := trimWallet(*dev)
		d.IsDevWallet = true
		if d.Name == "" {
			d.Name = DevWalletName
		}
		devCopy = &d
	}

	r.mu.Lock()
	old := r.allLocked()
	r.wallets = cleaned
	r.dev = devCopy
	r.settings = make(map[string]models.WalletSettings)
	for _, w := range r.allLocked() {
		s, ok := settings[w.Address]
		if !ok {
			s = models.DefaultWalletSettings()
		}
		s.Normalize()
		r.settings[w.Address] = s.Clone()
	}
	current := r.allLocked()
	listeners := append([]Listener(nil), r.listeners...)
	r.mu.Unlock()

	for _, l := range listeners {
		for _, w := range old {
			l.WalletRemoved(w.Address)
		}
		for _, w := range current {
			l.WalletAdded(w)
		}
	}
	return r.Save()
}

// Lookup finds a wallet by address, the dev wallet included.
func (r *Registry) Lookup(address string) (models.Wallet, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.dev != nil && r.dev.Address == address {
		return *r.dev, true
	}
	for _, w := range r.wallets {
		if w.Address == address {
			return w, true
		}
	}
	return models.Wallet{}, false
}

// DevWallet returns the dev wallet if one is configured.
func (r *Registry) DevWallet() (models.Wallet, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.dev == nil {
		return models.Wallet{}, false
	}
	return *r.dev, true
}

// TradingWallets returns the trading wallets in insertion order.
func (r *Registry) TradingWallets() []models.Wallet {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]models.Wallet(nil), r.wallets...)
}

// All returns trading wallets followed by the dev wallet.
func (r *Registry) All() []models.Wallet {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.allLocked()
}

// Addresses returns the address of every wallet, dev wallet last.
func (r *Registry) Addresses() []string {
	all := r.All()
	out := make([]string, len(all))
	for i, w := range all {
		out[i] = w.Address
	}
	return out
}

// Settings returns a copy of the wallet's settings, or defaults.
func (r *Registry) Settings(address string) models.WalletSettings {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.settings[address]; ok {
		return s.Clone()
	}
	return models.DefaultWalletSettings()
}

// AllSettings returns a copy of every wallet's settings.
func (r *Registry) AllSettings() map[string]models.WalletSettings {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]models.WalletSettings, len(r.settings))
	for k, v := range r.settings {
		out[k] = v.Clone()
	}
	return out
}

// UpdateSetting changes one setting. value must be positive; index selects
// the preset for buy/sell fields.
func (r *Registry) UpdateSetting(address, field string, index int, value float64) error {
	if value <= 0 {
		return fmt.Errorf("%w: %s must be positive, got %v", ErrInvalidSetting, field, value)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.settings[address]
	if !ok {
		return fmt.Errorf("%w: %s", ErrWalletNotFound, address)
	}
	s = s.Clone()

	switch field {
	case SettingBuyAmount:
		if index < 0 || index >= len(s.BuyAmounts) {
			return fmt.Errorf("%w: buy preset index %d", ErrInvalidSetting, index)
		}
		s.BuyAmounts[index] = value
	case SettingSellPercent:
		if index < 0 || index >= len(s.SellPercentages) {
			return fmt.Errorf("%w: sell preset index %d", ErrInvalidSetting, index)
		}
		if value > 100 {
			return fmt.Errorf("%w: sell percentage %v above 100", ErrInvalidSetting, value)
		}
		s.SellPercentages[index] = value
	case SettingBuySlippage:
		s.BuySlippage = value
	case SettingSellSlippage:
		s.SellSlippage = value
	case SettingPriorityFee:
		s.PriorityFee = value
	default:
		return fmt.Errorf("%w: unknown field %q", ErrInvalidSetting, field)
	}
	r.settings[address] = s

	if r.repo != nil {
		settings := make(map[string]models.WalletSettings, len(r.settings))
		for k, v := range r.settings {
			settings[k] = v
		}
		if err := r.repo.Save(persistence.KeyWalletSettings, settings); err != nil {
			r.logger.Error("Failed to persist wallet settings", zap.Error(err))
		}
	}
	return nil
}

func (r *Registry) validate(w models.Wallet) error {
	if w.Address == "" || w.PrivateKey == "" || w.APIKey == "" {
		return ErrMissingField
	}
	pub, err := solana.PublicKeyFromBase58(w.Address)
	if err != nil {
		return fmt.Errorf("%w: address: %v", ErrInvalidKey, err)
	}
	if !r.VerifyKeys {
		return nil
	}
	secret, err := base58.Decode(w.PrivateKey)
	if err != nil {
		return fmt.Errorf("%w: signing key is not base58", ErrInvalidKey)
	}
	if len(secret) != 64 {
		return fmt.Errorf("%w: signing key has %d bytes, want 64", ErrInvalidKey, len(secret))
	}
	if !bytes.Equal(secret[32:], pub[:]) {
		return fmt.Errorf("%w: signing key does not belong to %s", ErrInvalidKey, w.Address)
	}
	return nil
}

func (r *Registry) existsLocked(address string) bool {
	if r.dev != nil && r.dev.Address == address {
		return true
	}
	for _, w := range r.wallets {
		if w.Address == address {
			return true
		}
	}
	return false
}

func (r *Registry) allLocked() []models.Wallet {
	out := make([]models.Wallet, 0, len(r.wallets)+1)
	out = append(out, r.wallets...)
	if r.dev != nil {
		out = append(out, *r.dev)
	}
	return out
}

func (r *Registry) persist() {
	if err := r.Save(); err != nil {
		r.logger.Error("Failed to persist wallet registry", zap.Error(err))
	}
}

func trimWallet(w models.Wallet) models.Wallet {
	w.Address = strings.TrimSpace(w.Address)
	w.PrivateKey = strings.TrimSpace(w.PrivateKey)
	w.APIKey = strings.TrimSpace(w.APIKey)
	w.Name = strings.TrimSpace(w.Name)
	return w
}
