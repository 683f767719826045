package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

var stageColumns = []string{"ts", "share_id", "sequno", "volume", "value", "order_type"}

// PostgresShareRepository implements ShareRepository using PostgreSQL
type PostgresShareRepository struct {
	db        DBTX
	chunkSize int
}

// NewPostgresShareRepository creates a new PostgreSQL-backed share repository. A chunkSize
// below one selects DefaultChunkSize.
func NewPostgresShareRepository(db DBTX, chunkSize int) *PostgresShareRepository {
	if chunkSize < 1 {
		chunkSize = DefaultChunkSize
	}
	return &PostgresShareRepository{db: db, chunkSize: chunkSize}
}

// UpsertShare returns the id of the share with fullName, creating it if needed
func (r *PostgresShareRepository) UpsertShare(ctx context.Context, fullName, name, isin string) (int64, error) {
	query := `
		INSERT INTO shares (share_full_name, share_name, share_isin)
		VALUES ($1, $2, $3)
		ON CONFLICT (share_full_name) DO UPDATE SET
			share_name = EXCLUDED.share_name,
			share_isin = EXCLUDED.share_isin,
			updated_at = now()
		RETURNING id
	`

	var id int64
	if err := r.db.QueryRow(ctx, query, fullName, name, isin).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to upsert share %q: %w", fullName, err)
	}
	return id, nil
}

// BulkUpsertTransactions copies each chunk into a transaction-scoped staging table and merges it
// into shares_transactions. A failed chunk rolls back alone; earlier chunks stay committed.
func (r *PostgresShareRepository) BulkUpsertTransactions(ctx context.Context, txs []ShareTransaction) (int64, error) {
	var written int64
	for start := 0; start < len(txs); start += r.chunkSize {
		end := min(start+r.chunkSize, len(txs))
		n, err := r.upsertChunk(ctx, txs[start:end])
		if err != nil {
			return written, fmt.Errorf("failed to upsert transactions %d-%d: %w", start, end-1, err)
		}
		written += n
	}
	return written, nil
}

func (r *PostgresShareRepository) upsertChunk(ctx context.Context, chunk []ShareTransaction) (int64, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		CREATE TEMP TABLE shares_transactions_stage
		(LIKE shares_transactions INCLUDING DEFAULTS)
		ON COMMIT DROP
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to create staging table: %w", err)
	}

	rows := make([][]any, 0, len(chunk))
	for _, t := range chunk {
		rows = append(rows, []any{t.Timestamp, t.ShareID, t.Sequence, t.Volume, t.Price.String(), t.OrderType})
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"shares_transactions_stage"}, stageColumns, pgx.CopyFromRows(rows)); err != nil {
		return 0, fmt.Errorf("failed to copy transactions: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO shares_transactions (ts, share_id, sequno, volume, value, order_type)
		SELECT ts, share_id, sequno, volume, value, order_type FROM shares_transactions_stage
		ON CONFLICT (ts, share_id, sequno) DO UPDATE SET
			volume = EXCLUDED.volume,
			value = EXCLUDED.value,
			order_type = EXCLUDED.order_type
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to merge transactions: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListShares returns all shares ordered by name
func (r *PostgresShareRepository) ListShares(ctx context.Context) ([]Share, error) {
	query := `
		SELECT id, share_full_name, share_name, share_isin, created_at, updated_at
		FROM shares
		ORDER BY share_name, id
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list shares: %w", err)
	}
	defer rows.Close()

	var shares []Share
	for rows.Next() {
		var s Share
		if err := rows.Scan(&s.ID, &s.FullName, &s.Name, &s.ISIN, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan share: %w", err)
		}
		shares = append(shares, s)
	}
	return shares, rows.Err()
}

// CountTransactions returns the number of stored transactions of a share
func (r *PostgresShareRepository) CountTransactions(ctx context.Context, shareID int64) (int64, error) {
	var n int64
	err := r.db.QueryRow(ctx, `SELECT count(*) FROM shares_transactions WHERE share_id = $1`, shareID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return n, nil
}
