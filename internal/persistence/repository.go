package persistence

// Fixed keys of the persisted JSON blobs.
const (
	KeyTradingWallets   = "tradingWallets"
	KeyDevWallet        = "devWallet"
	KeyWalletSettings   = "walletSettings"
	KeyAutoTradeConfig  = "autoTradeConfig"
	KeySpamLaunchConfig = "spamLaunchConfig"
	KeyPortfolioStats   = "portfolioStats"
)

// StateRepository stores opaque JSON blobs under fixed keys. It abstracts the
// underlying storage (BadgerDB, in-memory) from the rest of the application.
type StateRepository interface {
	// Save marshals v to JSON and stores it under key.
	Save(key string, v interface{}) error

	// Load unmarshals the blob stored under key into v. Fields absent from the
	// stored blob keep whatever v already holds, so callers pre-fill defaults.
	// found is false when nothing is stored under key.
	Load(key string, v interface{}) (found bool, err error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(key string) error

	// Close gracefully closes the connection to the database.
	Close() error
}
