package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"walletwatch/internal/models"
)

// migrations run in order; each entry's index+1 is its schema version.
// Never edit an applied migration, append a new one.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS transactions (
		id              TEXT PRIMARY KEY,
		type            TEXT NOT NULL,
		amount          TEXT NOT NULL DEFAULT '',
		asset           TEXT NOT NULL DEFAULT '',
		fee             BIGINT NOT NULL DEFAULT 0,
		from_account    TEXT NOT NULL DEFAULT '',
		to_account      TEXT NOT NULL DEFAULT '',
		memo            TEXT NOT NULL DEFAULT '',
		timestamp       TIMESTAMPTZ NOT NULL,
		status          TEXT NOT NULL,
		ledger_sequence INTEGER NOT NULL DEFAULT 0,
		paging_token    TEXT NOT NULL,
		synced_at       TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_timestamp ON transactions (timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_type ON transactions (type, timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_asset ON transactions (asset, timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_status ON transactions (status, timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_paging_token ON transactions (paging_token)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_type_asset ON transactions (type, asset)`,
	`CREATE TABLE IF NOT EXISTS kv_blobs (
		key        TEXT PRIMARY KEY,
		value      BYTEA NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

const txColumns = `id, type, amount, asset, fee, from_account, to_account, memo,
		timestamp, status, ledger_sequence, paging_token, synced_at`

const upsertQuery = `
	INSERT INTO transactions (
		id, type, amount, asset, fee, from_account, to_account, memo,
		timestamp, status, ledger_sequence, paging_token, synced_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	ON CONFLICT (id) DO UPDATE SET
		type = EXCLUDED.type,
		amount = EXCLUDED.amount,
		asset = EXCLUDED.asset,
		fee = EXCLUDED.fee,
		from_account = EXCLUDED.from_account,
		to_account = EXCLUDED.to_account,
		memo = EXCLUDED.memo,
		timestamp = EXCLUDED.timestamp,
		status = EXCLUDED.status,
		ledger_sequence = EXCLUDED.ledger_sequence,
		paging_token = EXCLUDED.paging_token,
		synced_at = EXCLUDED.synced_at
`

// PostgresRepository implements Repository and BlobStore using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates the pool, waits for the database to come up
// and applies pending migrations
func NewPostgresRepository(ctx context.Context, databaseURL string) (*PostgresRepository, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// The database may still be starting, retry the first ping
	ping := func() error {
		return pool.Ping(ctx)
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx)
	if err := backoff.RetryNotify(ping, policy, func(err error, next time.Duration) {
		slog.Warn("Database not ready, retrying", "error", err, "next_attempt_in", next)
	}); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}
	if err := r.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) migrate(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var current int
	err = r.pool.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for i := current; i < len(migrations); i++ {
		version := i + 1
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", version, err)
		}

		if _, err := tx.Exec(ctx, migrations[i]); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("failed to apply migration %d: %w", version, err)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, version); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("failed to record migration %d: %w", version, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", version, err)
		}
		slog.Info("Applied schema migration", "version", version)
	}

	return nil
}

// Put upserts a single transaction record
func (r *PostgresRepository) Put(ctx context.Context, record models.TransactionRecord) error {
	_, err := r.pool.Exec(ctx, upsertQuery, upsertArgs(record)...)
	if err != nil {
		return fmt.Errorf("failed to save transaction: %w", err)
	}
	return nil
}

// PutMany upserts all records in a single database transaction
func (r *PostgresRepository) PutMany(ctx context.Context, records []models.TransactionRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, record := range records {
		if _, err := tx.Exec(ctx, upsertQuery, upsertArgs(record)...); err != nil {
			return fmt.Errorf("failed to save transaction %s: %w", record.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Get retrieves one record by transaction hash
func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.TransactionRecord, error) {
	query := `SELECT ` + txColumns + ` FROM transactions WHERE id = $1`

	record, err := scanRecord(r.pool.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("transaction not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return record, nil
}

// GetAll returns every record, newest first
func (r *PostgresRepository) GetAll(ctx context.Context) ([]models.TransactionRecord, error) {
	query := `SELECT ` + txColumns + ` FROM transactions ORDER BY timestamp DESC`
	return r.queryRecords(ctx, query)
}

// GetByType returns records of one transaction type, newest first
func (r *PostgresRepository) GetByType(ctx context.Context, txType string) ([]models.TransactionRecord, error) {
	query := `SELECT ` + txColumns + ` FROM transactions WHERE type = $1 ORDER BY timestamp DESC`
	return r.queryRecords(ctx, query, txType)
}

// GetByAsset returns records involving one asset, newest first
func (r *PostgresRepository) GetByAsset(ctx context.Context, asset string) ([]models.TransactionRecord, error) {
	query := `SELECT ` + txColumns + ` FROM transactions WHERE asset = $1 ORDER BY timestamp DESC`
	return r.queryRecords(ctx, query, asset)
}

// GetByStatus returns records in one confirmation state, newest first
func (r *PostgresRepository) GetByStatus(ctx context.Context, status models.TransactionStatus) ([]models.TransactionRecord, error) {
	query := `SELECT ` + txColumns + ` FROM transactions WHERE status = $1 ORDER BY timestamp DESC`
	return r.queryRecords(ctx, query, string(status))
}

// GetByDateRange returns records with from <= timestamp <= to, newest first
func (r *PostgresRepository) GetByDateRange(ctx context.Context, from, to time.Time) ([]models.TransactionRecord, error) {
	query := `SELECT ` + txColumns + ` FROM transactions
		WHERE timestamp >= $1 AND timestamp <= $2 ORDER BY timestamp DESC`
	return r.queryRecords(ctx, query, from, to)
}

// GetLatest returns the record with the highest paging token
func (r *PostgresRepository) GetLatest(ctx context.Context) (*models.TransactionRecord, error) {
	// Paging tokens are decimal strings of varying width, compare numerically
	query := `SELECT ` + txColumns + ` FROM transactions ORDER BY paging_token::numeric DESC LIMIT 1`

	record, err := scanRecord(r.pool.QueryRow(ctx, query))
	if err == pgx.ErrNoRows {
		return nil, ErrNoTransactions
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest transaction: %w", err)
	}
	return record, nil
}

// GetLatestCursor returns the highest paging token, or "" for an empty store
func (r *PostgresRepository) GetLatestCursor(ctx context.Context) (string, error) {
	query := `SELECT paging_token FROM transactions ORDER BY paging_token::numeric DESC LIMIT 1`

	var cursor string
	err := r.pool.QueryRow(ctx, query).Scan(&cursor)
	if err == pgx.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get latest cursor: %w", err)
	}
	return cursor, nil
}

// Count returns the number of stored records
func (r *PostgresRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}

// Clear removes every stored record
func (r *PostgresRepository) Clear(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM transactions`); err != nil {
		return fmt.Errorf("failed to clear transactions: %w", err)
	}
	return nil
}

// GetBlob retrieves a named blob, (nil, nil) when the key does not exist
func (r *PostgresRepository) GetBlob(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := r.pool.QueryRow(ctx, `SELECT value FROM kv_blobs WHERE key = $1`, key).Scan(&value)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get blob %s: %w", key, err)
	}
	return value, nil
}

// SetBlob upserts a named blob
func (r *PostgresRepository) SetBlob(ctx context.Context, key string, value []byte) error {
	query := `
		INSERT INTO kv_blobs (key, value, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()
	`
	if _, err := r.pool.Exec(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to set blob %s: %w", key, err)
	}
	return nil
}

// Ping checks if the database connection is alive
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the database connection pool
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

func (r *PostgresRepository) queryRecords(ctx context.Context, query string, args ...interface{}) ([]models.TransactionRecord, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var records []models.TransactionRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		records = append(records, *record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return records, nil
}

func upsertArgs(record models.TransactionRecord) []interface{} {
	return []interface{}{
		record.ID,
		record.Type,
		record.Amount,
		record.Asset,
		record.Fee,
		record.From,
		record.To,
		record.Memo,
		record.Timestamp,
		string(record.Status),
		record.LedgerSequence,
		record.PagingToken,
		record.SyncedAt,
	}
}

func scanRecord(row pgx.Row) (*models.TransactionRecord, error) {
	var record models.TransactionRecord
	var status string

	err := row.Scan(
		&record.ID,
		&record.Type,
		&record.Amount,
		&record.Asset,
		&record.Fee,
		&record.From,
		&record.To,
		&record.Memo,
		&record.Timestamp,
		&status,
		&record.LedgerSequence,
		&record.PagingToken,
		&record.SyncedAt,
	)
	if err != nil {
		return nil, err
	}

	record.Status = models.TransactionStatus(status)
	return &record, nil
}
