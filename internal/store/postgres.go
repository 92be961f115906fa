package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/punchamoorthee/payrail/internal/domain"
	"github.com/punchamoorthee/payrail/internal/models"
)

const uniqueViolation = "23505"

type Store struct {
	Db *pgxpool.Pool
}

func NewStore(ctx context.Context, connString string) (*Store, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &Store{Db: pool}, nil
}

func (s *Store) Close() {
	s.Db.Close()
}

func (s *Store) Accounts() *PostgresAccounts {
	return &PostgresAccounts{db: s.Db}
}

func (s *Store) Payments() *PostgresLedger {
	return &PostgresLedger{db: s.Db}
}

func (s *Store) Idempotency() *PostgresIdempotency {
	return &PostgresIdempotency{db: s.Db}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// PostgresAccounts implements AccountStore on the accounts table.
type PostgresAccounts struct {
	db *pgxpool.Pool
}

const accountColumns = "account_number, balance, status, allowed_schemes, version, created_at, updated_at, updated_by"

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var (
		acc     domain.Account
		status  string
		schemes int16
	)
	err := row.Scan(&acc.Number, &acc.Balance, &status, &schemes, &acc.Version, &acc.CreatedAt, &acc.UpdatedAt, &acc.UpdatedBy)
	if err != nil {
		return nil, err
	}
	acc.Status = domain.AccountStatus(status)
	acc.AllowedSchemes = domain.SchemeFlags(schemes)
	return &acc, nil
}

// FindOne retrieves a single account by number.
func (s *PostgresAccounts) FindOne(ctx context.Context, number string) (*domain.Account, error) {
	acc, err := scanAccount(s.db.QueryRow(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE account_number = $1", number))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("account query failed: %w", err)
	}
	return acc, nil
}

// Insert creates a new account at version 0.
func (s *PostgresAccounts) Insert(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	stampInsert(account, now())
	account.Version = 0

	_, err := s.db.Exec(ctx,
		"INSERT INTO accounts ("+accountColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8)",
		account.Number, account.Balance, string(account.Status), int16(account.AllowedSchemes),
		account.Version, account.CreatedAt, account.UpdatedAt, account.UpdatedBy,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAccountExists
		}
		return nil, fmt.Errorf("account insert failed: %w", err)
	}
	return account, nil
}

// ReplaceMany updates all accounts in one transaction, rows touched in
// account-number order. A stale version aborts the whole batch.
func (s *PostgresAccounts) ReplaceMany(ctx context.Context, accounts ...*domain.Account) error {
	ordered := make([]*domain.Account, len(accounts))
	copy(ordered, accounts)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Number < ordered[j].Number })

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	at := now()
	for _, a := range ordered {
		updatedBy := a.UpdatedBy
		if updatedBy == "" {
			updatedBy = domain.SystemActor
		}
		tag, err := tx.Exec(ctx,
			`UPDATE accounts
			 SET balance = $1, status = $2, allowed_schemes = $3, version = version + 1, updated_at = $4, updated_by = $5
			 WHERE account_number = $6 AND version = $7`,
			a.Balance, string(a.Status), int16(a.AllowedSchemes), at, updatedBy, a.Number, a.Version,
		)
		if err != nil {
			return fmt.Errorf("account update failed: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("account %s: %w", a.Number, ErrVersionConflict)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("tx commit failed: %w", err)
	}

	for _, a := range ordered {
		stampReplace(a, at)
		a.Version++
	}
	return nil
}

// PostgresLedger implements LedgerStore on the payments table.
type PostgresLedger struct {
	db *pgxpool.Pool
}

const paymentColumns = "transaction_id, debtor_account_number, creditor_account_number, value, payment_scheme, transaction_date, created_at"

func scanPayment(row pgx.Row) (*domain.PaymentRecord, error) {
	var (
		rec    domain.PaymentRecord
		scheme string
	)
	if err := row.Scan(&rec.TransactionID, &rec.DebtorAccount, &rec.CreditorAccount, &rec.Value, &scheme, &rec.TransactionDate, &rec.CreatedAt); err != nil {
		return nil, err
	}
	rec.Scheme = domain.Scheme(scheme)
	return &rec, nil
}

// Insert records a completed payment.
func (s *PostgresLedger) Insert(ctx context.Context, record *domain.PaymentRecord) (*domain.PaymentRecord, error) {
	record.CreatedAt = now()
	_, err := s.db.Exec(ctx,
		"INSERT INTO payments ("+paymentColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7)",
		record.TransactionID, record.DebtorAccount, record.CreditorAccount, record.Value,
		string(record.Scheme), record.TransactionDate, record.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicatePayment
		}
		return nil, fmt.Errorf("payment insert failed: %w", err)
	}
	return record, nil
}

// FindOne retrieves payment details.
func (s *PostgresLedger) FindOne(ctx context.Context, id uuid.UUID) (*domain.PaymentRecord, error) {
	rec, err := scanPayment(s.db.QueryRow(ctx,
		"SELECT "+paymentColumns+" FROM payments WHERE transaction_id = $1", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("payment query failed: %w", err)
	}
	return rec, nil
}

// ListByAccount retrieves payments touching an account, newest first.
func (s *PostgresLedger) ListByAccount(ctx context.Context, number string) ([]*domain.PaymentRecord, error) {
	rows, err := s.db.Query(ctx,
		"SELECT "+paymentColumns+` FROM payments
		 WHERE debtor_account_number = $1 OR creditor_account_number = $1
		 ORDER BY transaction_date DESC`, number)
	if err != nil {
		return nil, fmt.Errorf("payment list failed: %w", err)
	}
	defer rows.Close()

	var out []*domain.PaymentRecord
	for rows.Next() {
		rec, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("payment scan failed: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("payment list failed: %w", err)
	}
	return out, nil
}

// PostgresIdempotency implements IdempotencyStore on the idempotency_keys table.
type PostgresIdempotency struct {
	db *pgxpool.Pool
}

func (s *PostgresIdempotency) Reserve(ctx context.Context, key, hash string) (*models.IdempotencyRecord, error) {
	tag, err := s.db.Exec(ctx,
		"INSERT INTO idempotency_keys (key, request_hash, status) VALUES ($1, $2, $3) ON CONFLICT (key) DO NOTHING",
		key, hash, models.IdempotencyInProgress,
	)
	if err != nil {
		return nil, fmt.Errorf("key reservation failed: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil, nil
	}

	var (
		rec          = models.IdempotencyRecord{Key: key}
		storedStatus *int32
	)
	err = s.db.QueryRow(ctx,
		"SELECT request_hash, status, response_status, response_body FROM idempotency_keys WHERE key = $1",
		key,
	).Scan(&rec.RequestHash, &rec.Status, &storedStatus, &rec.ResponseBody)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Released between our insert and select; the client may retry.
			return nil, ErrIdempotencyConflict
		}
		return nil, fmt.Errorf("idempotency query failed: %w", err)
	}

	if rec.RequestHash != hash {
		return nil, ErrIdempotencyMismatch
	}
	if rec.Status != models.IdempotencyCompleted {
		return nil, ErrIdempotencyConflict
	}
	if storedStatus != nil {
		rec.ResponseStatus = int(*storedStatus)
	}
	return &rec, nil
}

func (s *PostgresIdempotency) Complete(ctx context.Context, key string, status int, body []byte) error {
	_, err := s.db.Exec(ctx,
		"UPDATE idempotency_keys SET status = $1, response_status = $2, response_body = $3 WHERE key = $4",
		models.IdempotencyCompleted, status, body, key,
	)
	if err != nil {
		return fmt.Errorf("idempotency update failed: %w", err)
	}
	return nil
}

func (s *PostgresIdempotency) Release(ctx context.Context, key string) error {
	_, err := s.db.Exec(ctx,
		"DELETE FROM idempotency_keys WHERE key = $1 AND status <> $2",
		key, models.IdempotencyCompleted,
	)
	if err != nil {
		return fmt.Errorf("idempotency release failed: %w", err)
	}
	return nil
}
