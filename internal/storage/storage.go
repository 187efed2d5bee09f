package storage

import (
	"database/sql"
	"fmt"
	"time"

	"pumpfun-dashboard-go/internal/models"

	_ "github.com/mattn/go-sqlite3" // Import the sqlite3 driver
)

// InitDB initializes the database connection and creates necessary tables.
func InitDB(dataSourceName string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err = createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return db, nil
}

// createTables creates the necessary database tables if they don't exist.
func createTables(db *sql.DB) error {
	// One row per order that reached a terminal state.
	createOrdersTableSQL := `
	CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		action TEXT NOT NULL,
		source TEXT NOT NULL,
		wallet_address TEXT NOT NULL,
		wallet_name TEXT NOT NULL,
		mint TEXT NOT NULL,
		token_symbol TEXT NOT NULL,
		amount REAL NOT NULL,
		percentage REAL NOT NULL,
		status TEXT NOT NULL,
		signature TEXT,
		error TEXT,
		attempts INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		completed_at INTEGER NOT NULL
	);`

	if _, err := db.Exec(createOrdersTableSQL); err != nil {
		return err
	}

	createIndexSQL := `CREATE INDEX IF NOT EXISTS idx_orders_completed_at ON orders (completed_at);`
	if _, err := db.Exec(createIndexSQL); err != nil {
		return err
	}
	return nil
}

// SaveOrder inserts an order or updates the row already stored for its id.
func SaveOrder(db *sql.DB, entry models.TransactionQueueEntry) error {
	query := `
	INSERT INTO orders (id, action, source, wallet_address, wallet_name, mint, token_symbol, amount, percentage, status, signature, error, attempts, created_at, completed_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		status = excluded.status,
		signature = excluded.signature,
		error = excluded.error,
		attempts = excluded.attempts,
		completed_at = excluded.completed_at;`

	_, err := db.Exec(query,
		entry.ID,
		string(entry.Action),
		entry.Source,
		entry.WalletAddress,
		entry.WalletName,
		entry.Mint,
		entry.TokenSymbol,
		entry.Amount,
		entry.Percentage,
		string(entry.Status),
		entry.Signature,
		entry.Error,
		entry.Attempts,
		entry.CreatedAt.UnixMilli(),
		entry.CompletedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to save order %s: %w", entry.ID, err)
	}
	return nil
}

// GetRecentOrders returns up to limit orders, most recently completed first.
func GetRecentOrders(db *sql.DB, limit int) ([]models.TransactionQueueEntry, error) {
	query := `
	SELECT id, action, source, wallet_address, wallet_name, mint, token_symbol, amount, percentage, status, signature, error, attempts, created_at, completed_at
	FROM orders
	ORDER BY completed_at DESC, created_at DESC
	LIMIT ?`

	rows, err := db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent orders: %w", err)
	}
	defer rows.Close()

	var orders []models.TransactionQueueEntry
	for rows.Next() {
		var (
			entry             models.TransactionQueueEntry
			action, status    string
			signature, errMsg sql.NullString
			created, complete int64
		)
		if err := rows.Scan(
			&entry.ID, &action, &entry.Source, &entry.WalletAddress, &entry.WalletName,
			&entry.Mint, &entry.TokenSymbol, &entry.Amount, &entry.Percentage, &status,
			&signature, &errMsg, &entry.Attempts, &created, &complete,
		); err != nil {
			return nil, fmt.Errorf("failed to scan order row: %w", err)
		}
		entry.Action = models.Side(action)
		entry.Status = models.OrderStatus(status)
		entry.Signature = signature.String
		entry.Error = errMsg.String
		entry.CreatedAt = time.UnixMilli(created)
		entry.CompletedAt = time.UnixMilli(complete)
		orders = append(orders, entry)
	}
	return orders, rows.Err()
}

// OrderStats counts journaled orders by outcome.
type OrderStats struct {
	Total     int
	Succeeded int
	Failed    int
	SolBought float64
}

// GetOrderStats aggregates the whole journal.
func GetOrderStats(db *sql.DB) (OrderStats, error) {
	query := `
	SELECT
		COUNT(*),
		COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN status = ? AND action = ? THEN amount ELSE 0 END), 0)
	FROM orders`

	var s OrderStats
	err := db.QueryRow(query,
		string(models.StatusSuccess), string(models.StatusError),
		string(models.StatusSuccess), string(models.Buy),
	).Scan(&s.Total, &s.Succeeded, &s.Failed, &s.SolBought)
	if err != nil {
		return OrderStats{}, fmt.Errorf("failed to aggregate orders: %w", err)
	}
	return s, nil
}

// Journal adapts the database to the executor's journal hook.
type Journal struct {
	db *sql.DB
}

// NewJournal wraps an initialized database.
func NewJournal(db *sql.DB) *Journal {
	return &Journal{db: db}
}

// RecordOrder stores a terminal queue entry.
func (j *Journal) RecordOrder(entry models.TransactionQueueEntry) error {
	return SaveOrder(j.db, entry)
}

// Recent returns the latest journaled orders.
func (j *Journal) Recent(limit int) ([]models.TransactionQueueEntry, error) {
	return GetRecentOrders(j.db, limit)
}

// Stats aggregates the journal.
func (j *Journal) Stats() (OrderStats, error) {
	return GetOrderStats(j.db)
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}
