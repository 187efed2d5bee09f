package storage

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"pumpfun-dashboard-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJournal(t *testing.T) *Journal {
	t.Helper()
	db, err := InitDB(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	j := NewJournal(db)
	t.Cleanup(func() { j.Close() })
	return j
}

func entry(id string, action models.Side, status models.OrderStatus, amount float64, completed time.Time) models.TransactionQueueEntry {
	return models.TransactionQueueEntry{
		ID:            id,
		Action:        action,
		WalletAddress: "W1",
		WalletName:    "Wallet 1",
		Mint:          "MINT",
		TokenSymbol:   "PEPE",
		Amount:        amount,
		Status:        status,
		Attempts:      1,
		Source:        "manual",
		CreatedAt:     completed.Add(-time.Second),
		CompletedAt:   completed,
	}
}

func TestRecordAndReadOrders(t *testing.T) {
	j := newJournal(t)
	base := time.UnixMilli(1700000000000)

	first := entry("a", models.Buy, models.StatusSuccess, 0.5, base)
	first.Signature = "sig-a"
	second := entry("b", models.Sell, models.StatusError, 1000, base.Add(time.Minute))
	second.Error = "Transaction failed"
	second.Attempts = 3
	second.Percentage = 50
	require.NoError(t, j.RecordOrder(first))
	require.NoError(t, j.RecordOrder(second))

	orders, err := j.Recent(10)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, second, orders[0], "newest first")
	assert.Equal(t, first, orders[1])

	limited, err := j.Recent(1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

// TestRecordOrderUpserts keeps one row per id.
func TestRecordOrderUpserts(t *testing.T) {
	j := newJournal(t)
	base := time.UnixMilli(1700000000000)

	e := entry("a", models.Buy, models.StatusError, 1, base)
	e.Error = "blockhash not found"
	require.NoError(t, j.RecordOrder(e))
	e.Status = models.StatusSuccess
	e.Error = ""
	e.Signature = "sig"
	e.Attempts = 2
	require.NoError(t, j.RecordOrder(e))

	orders, err := j.Recent(10)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, models.StatusSuccess, orders[0].Status)
	assert.Equal(t, "sig", orders[0].Signature)
	assert.Equal(t, 2, orders[0].Attempts)
}

func TestOrderStats(t *testing.T) {
	j := newJournal(t)
	empty, err := j.Stats()
	require.NoError(t, err)
	assert.Equal(t, OrderStats{}, empty)

	base := time.UnixMilli(1700000000000)
	require.NoError(t, j.RecordOrder(entry("a", models.Buy, models.StatusSuccess, 0.5, base)))
	require.NoError(t, j.RecordOrder(entry("b", models.Buy, models.StatusSuccess, 0.25, base)))
	require.NoError(t, j.RecordOrder(entry("c", models.Buy, models.StatusError, 9, base)))
	require.NoError(t, j.RecordOrder(entry("d", models.Sell, models.StatusSuccess, 1000, base)))

	s, err := j.Stats()
	require.NoError(t, err)
	assert.Equal(t, OrderStats{Total: 4, Succeeded: 3, Failed: 1, SolBought: 0.75}, s)
}

// TestInitDBRejectsForeignSchema fails on an orders table without the
// journal's columns and leaves the file usable.
func TestInitDBRejectsForeignSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	raw, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = raw.Exec(`CREATE TABLE orders (id TEXT PRIMARY KEY)`)
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	db, err := InitDB(path)
	assert.Error(t, err)
	assert.Nil(t, db)

	raw, err = sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = raw.Exec(`DROP TABLE orders`)
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	db, err = InitDB(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())
}
