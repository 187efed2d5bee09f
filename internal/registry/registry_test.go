package registry

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"sync"
	"testing"

	"pumpfun-dashboard-go/internal/models"
	"pumpfun-dashboard-go/internal/persistence"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newWallet(t *testing.T, name string) models.Wallet {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return models.Wallet{
		Address:    base58.Encode(pub),
		PrivateKey: base58.Encode(priv),
		APIKey:     "api-" + name,
		Name:       name,
	}
}

type recordingListener struct {
	sync.Mutex
	added   []string
	removed []string
}

func (l *recordingListener) WalletAdded(w models.Wallet) {
	l.Lock()
	defer l.Unlock()
	l.added = append(l.added, w.Address)
}

func (l *recordingListener) WalletRemoved(address string) {
	l.Lock()
	defer l.Unlock()
	l.removed = append(l.removed, address)
}

type stubCreator struct {
	wallet models.Wallet
	err    error
}

func (c *stubCreator) CreateWallet(ctx context.Context) (*models.Wallet, error) {
	if c.err != nil {
		return nil, c.err
	}
	w := c.wallet
	return &w, nil
}

// TestAddWallet assigns default settings and notifies listeners.
func TestAddWallet(t *testing.T) {
	r := New(nil, zap.NewNop())
	l := &recordingListener{}
	r.AddListener(l)

	w := newWallet(t, "")
	added, err := r.Add(w)
	require.NoError(t, err)
	assert.Equal(t, "Wallet 1", added.Name)

	got, ok := r.Lookup(w.Address)
	require.True(t, ok)
	assert.Equal(t, w.Address, got.Address)
	assert.Equal(t, models.DefaultWalletSettings(), r.Settings(w.Address))
	assert.Equal(t, []string{w.Address}, l.added)
}

// TestAddWalletRejectsDuplicates never lets two wallets share an address,
// including the dev wallet.
func TestAddWalletRejectsDuplicates(t *testing.T) {
	r := New(nil, zap.NewNop())
	w := newWallet(t, "a")
	_, err := r.Add(w)
	require.NoError(t, err)

	_, err = r.Add(w)
	assert.True(t, errors.Is(err, ErrDuplicateWallet))

	_, err = r.SetDevWallet(w)
	assert.True(t, errors.Is(err, ErrDuplicateWallet))

	dev := newWallet(t, "dev")
	_, err = r.SetDevWallet(dev)
	require.NoError(t, err)
	_, err = r.Add(dev)
	assert.True(t, errors.Is(err, ErrDuplicateWallet))
}

// TestAddWalletValidation rejects incomplete and mismatched key material.
func TestAddWalletValidation(t *testing.T) {
	r := New(nil, zap.NewNop())

	w := newWallet(t, "a")
	w.APIKey = ""
	_, err := r.Add(w)
	assert.True(t, errors.Is(err, ErrMissingField))

	other := newWallet(t, "b")
	mismatched := newWallet(t, "c")
	mismatched.PrivateKey = other.PrivateKey
	_, err = r.Add(mismatched)
	assert.True(t, errors.Is(err, ErrInvalidKey))

	bad := newWallet(t, "d")
	bad.Address = "not-base58-0OIl"
	_, err = r.Add(bad)
	assert.True(t, errors.Is(err, ErrInvalidKey))
}

// TestDevWalletIsIncludedInLookups keeps the dev wallet last in All.
func TestDevWalletIsIncludedInLookups(t *testing.T) {
	r := New(nil, zap.NewNop())
	trading := newWallet(t, "t")
	dev := newWallet(t, "")
	_, err := r.Add(trading)
	require.NoError(t, err)
	set, err := r.SetDevWallet(dev)
	require.NoError(t, err)
	assert.Equal(t, DevWalletName, set.Name)
	assert.True(t, set.IsDevWallet)

	assert.Equal(t, []string{trading.Address, dev.Address}, r.Addresses())
	got, ok := r.Lookup(dev.Address)
	require.True(t, ok)
	assert.True(t, got.IsDevWallet)
}

// TestRemoveWallet drops the wallet and its settings.
func TestRemoveWallet(t *testing.T) {
	r := New(nil, zap.NewNop())
	l := &recordingListener{}
	r.AddListener(l)
	w := newWallet(t, "a")
	_, err := r.Add(w)
	require.NoError(t, err)

	require.NoError(t, r.Remove(w.Address))
	_, ok := r.Lookup(w.Address)
	assert.False(t, ok)
	assert.Equal(t, []string{w.Address}, l.removed)
	assert.True(t, errors.Is(r.Remove(w.Address), ErrWalletNotFound))
}

// TestUpdateSetting validates values and indices.
func TestUpdateSetting(t *testing.T) {
	r := New(nil, zap.NewNop())
	w := newWallet(t, "a")
	_, err := r.Add(w)
	require.NoError(t, err)

	require.NoError(t, r.UpdateSetting(w.Address, SettingBuyAmount, 1, 2.5))
	require.NoError(t, r.UpdateSetting(w.Address, SettingSellSlippage, 0, 50))
	s := r.Settings(w.Address)
	assert.Equal(t, []float64{0.1, 2.5, 1}, s.BuyAmounts)
	assert.Equal(t, 50.0, s.SellSlippage)

	assert.True(t, errors.Is(r.UpdateSetting(w.Address, SettingBuyAmount, 3, 1), ErrInvalidSetting))
	assert.True(t, errors.Is(r.UpdateSetting(w.Address, SettingPriorityFee, 0, 0), ErrInvalidSetting))
	assert.True(t, errors.Is(r.UpdateSetting(w.Address, "bogus", 0, 1), ErrInvalidSetting))
	assert.True(t, errors.Is(r.UpdateSetting("missing", SettingBuySlippage, 0, 1), ErrWalletNotFound))
}

// TestCreateWallet names created wallets sequentially.
func TestCreateWallet(t *testing.T) {
	r := New(nil, zap.NewNop())
	_, err := r.Add(newWallet(t, "first"))
	require.NoError(t, err)

	created, err := r.Create(context.Background(), &stubCreator{wallet: newWallet(t, "ignored")}, false)
	require.NoError(t, err)
	assert.Equal(t, "Wallet 2", created.Name)

	dev, err := r.Create(context.Background(), &stubCreator{wallet: newWallet(t, "")}, true)
	require.NoError(t, err)
	assert.Equal(t, DevWalletName, dev.Name)

	_, err = r.Create(context.Background(), &stubCreator{err: errors.New("HTTP 500")}, false)
	assert.Error(t, err)
}

// TestSaveAndLoad round-trips wallets and normalizes older settings.
func TestSaveAndLoad(t *testing.T) {
	repo, err := persistence.NewInMemoryRepository()
	require.NoError(t, err)
	defer repo.Close()

	r := New(repo, zap.NewNop())
	w := newWallet(t, "a")
	dev := newWallet(t, "")
	_, err = r.Add(w)
	require.NoError(t, err)
	_, err = r.SetDevWallet(dev)
	require.NoError(t, err)

	require.NoError(t, repo.Save(persistence.KeyWalletSettings, map[string]map[string]float64{
		w.Address: {"buyAmount": 0.3},
	}))

	loaded := New(repo, zap.NewNop())
	require.NoError(t, loaded.Load())
	assert.Len(t, loaded.TradingWallets(), 1)
	d, ok := loaded.DevWallet()
	require.True(t, ok)
	assert.Equal(t, dev.Address, d.Address)

	s := loaded.Settings(w.Address)
	assert.Equal(t, []float64{0.3, 0.5, 1}, s.BuyAmounts)
	assert.Equal(t, 80.0, s.BuySlippage)
	assert.Equal(t, models.DefaultWalletSettings(), loaded.Settings(dev.Address))
}

// TestReplace swaps the wallet set and fills missing settings.
func TestReplace(t *testing.T) {
	r := New(nil, zap.NewNop())
	old := newWallet(t, "old")
	_, err := r.Add(old)
	require.NoError(t, err)

	a := newWallet(t, "a")
	b := newWallet(t, "b")
	dev := newWallet(t, "")
	custom := models.DefaultWalletSettings()
	custom.BuySlippage = 10

	require.NoError(t, r.Replace([]models.Wallet{a, b, a}, &dev, map[string]models.WalletSettings{a.Address: custom}))
	assert.Equal(t, []string{a.Address, b.Address, dev.Address}, r.Addresses())
	_, ok := r.Lookup(old.Address)
	assert.False(t, ok)
	assert.Equal(t, 10.0, r.Settings(a.Address).BuySlippage)
	assert.Equal(t, 80.0, r.Settings(b.Address).BuySlippage)
}
