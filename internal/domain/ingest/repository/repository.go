// Package repository persists parsed shares and their transactions in PostgreSQL.
package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// DefaultChunkSize is the number of transactions written per database transaction.
const DefaultChunkSize = 5000

// DBTX is the subset of *pgxpool.Pool the repository uses.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Share is a row of the shares table.
type Share struct {
	ID        int64     `json:"id"`
	FullName  string    `json:"full_name"`
	Name      string    `json:"name"`
	ISIN      string    `json:"isin"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ShareTransaction is a row of the shares_transactions table. Sequence numbers the trades of
// one share that share a timestamp.
type ShareTransaction struct {
	Timestamp time.Time
	ShareID   int64
	Sequence  int
	Volume    int64
	Price     decimal.Decimal
	OrderType string // "B" or "S"
}

// ShareRepository defines the interface for share data access
type ShareRepository interface {
	// UpsertShare returns the id of the share with fullName, creating it if needed
	UpsertShare(ctx context.Context, fullName, name, isin string) (int64, error)

	// BulkUpsertTransactions writes txs in chunks, replacing rows with the same key
	BulkUpsertTransactions(ctx context.Context, txs []ShareTransaction) (int64, error)

	// ListShares returns all shares ordered by name
	ListShares(ctx context.Context) ([]Share, error)

	// SearchShares returns shares matching query by ISIN or fuzzy name, closest first
	SearchShares(ctx context.Context, query string, limit int) ([]ShareMatch, error)

	// CountTransactions returns the number of stored transactions of a share
	CountTransactions(ctx context.Context, shareID int64) (int64, error)
}
