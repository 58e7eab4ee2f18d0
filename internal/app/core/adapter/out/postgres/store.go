package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/usecase"
)

// uniqueViolation PostgreSQL unique_violation 錯誤碼
const uniqueViolation = "23505"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id             UUID PRIMARY KEY,
		account_number TEXT NOT NULL UNIQUE,
		balance        NUMERIC(20,4) NOT NULL,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		seq                   BIGSERIAL PRIMARY KEY,
		id                    TEXT NOT NULL UNIQUE,
		account_number        TEXT NOT NULL,
		type                  TEXT NOT NULL,
		ts                    TIMESTAMPTZ NOT NULL,
		old_balance           NUMERIC(20,4) NOT NULL,
		new_balance           NUMERIC(20,4) NOT NULL,
		amount                NUMERIC(20,4) NOT NULL,
		target_account_number TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_account_seq ON transactions (account_number, seq)`,
}

// querier pgxpool.Pool 與 pgx.Tx 共同的查詢介面
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Pool 可開啟交易的連線池，*pgxpool.Pool 即符合
type Pool interface {
	querier
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// Store 以 pgx 實作的 PostgreSQL 帳本儲存
//
// NUMERIC 欄位一律以文字進出，避免經過 float。
type Store struct {
	pool Pool
}

func NewStore(pool Pool) *Store {
	return &Store{pool: pool}
}

// Migrate 建立資料表 (可重複執行)
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return domain.WrapStorage("postgres: migrate", err)
		}
	}
	return nil
}

// Do 以 READ COMMITTED 交易執行 fn，搭配 FOR UPDATE 鎖列
func (s *Store) Do(ctx context.Context, fn func(ctx context.Context, repo usecase.Repository) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return domain.WrapStorage("postgres: begin", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(ctx, &repository{q: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.WrapStorage("postgres: commit", err)
	}
	return nil
}

func (s *Store) Accounts() usecase.AccountStore {
	return &accountStore{q: s.pool}
}

func (s *Store) Transactions() usecase.TransactionStore {
	return &transactionStore{q: s.pool}
}

type repository struct {
	q querier
}

func (r *repository) Accounts() usecase.AccountStore {
	return &accountStore{q: r.q}
}

func (r *repository) Transactions() usecase.TransactionStore {
	return &transactionStore{q: r.q}
}

type accountStore struct {
	q querier
}

const selectAccount = `SELECT id::text, account_number, balance::text FROM accounts`

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var id, number, balance string
	if err := row.Scan(&id, &number, &balance); err != nil {
		return nil, err
	}
	return toAccount(id, number, balance)
}

func toAccount(id, number, balance string) (*domain.Account, error) {
	parsedID, err := uuid.Parse(id)
	if err != nil {
		return nil, err
	}
	amount, err := decimal.NewFromString(balance)
	if err != nil {
		return nil, err
	}
	return &domain.Account{
		ID:            parsedID,
		AccountNumber: number,
		Balance:       amount,
	}, nil
}

func (s *accountStore) List(ctx context.Context) ([]*domain.Account, error) {
	rows, err := s.q.Query(ctx, selectAccount+` ORDER BY account_number`)
	if err != nil {
		return nil, domain.WrapStorage("postgres: list accounts", err)
	}
	defer rows.Close()

	accounts := make([]*domain.Account, 0)
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, domain.WrapStorage("postgres: list accounts", err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapStorage("postgres: list accounts", err)
	}
	return accounts, nil
}

func (s *accountStore) FindByNumber(ctx context.Context, accountNumber string) (*domain.Account, error) {
	return s.find(ctx, selectAccount+` WHERE account_number = $1`, accountNumber)
}

func (s *accountStore) FindForUpdate(ctx context.Context, accountNumber string) (*domain.Account, error) {
	return s.find(ctx, selectAccount+` WHERE account_number = $1 FOR UPDATE`, accountNumber)
}

func (s *accountStore) find(ctx context.Context, query, accountNumber string) (*domain.Account, error) {
	account, err := scanAccount(s.q.QueryRow(ctx, query, accountNumber))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, domain.WrapStorage("postgres: find account", err)
	}
	return account, nil
}

func (s *accountStore) Create(ctx context.Context, account *domain.Account) error {
	id := uuid.New()
	_, err := s.q.Exec(ctx,
		`INSERT INTO accounts (id, account_number, balance) VALUES ($1::uuid, $2, $3::numeric)`,
		id.String(), account.AccountNumber, account.Balance.String(),
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return domain.ErrAccountAlreadyExists
	}
	if err != nil {
		return domain.WrapStorage("postgres: create account", err)
	}
	account.ID = id
	return nil
}

func (s *accountStore) Update(ctx context.Context, account *domain.Account) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE accounts SET balance = $2::numeric, updated_at = now() WHERE account_number = $1`,
		account.AccountNumber, account.Balance.String(),
	)
	if err != nil {
		return domain.WrapStorage("postgres: update account", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

func (s *accountStore) Delete(ctx context.Context, accountNumber string) error {
	if _, err := s.q.Exec(ctx, `DELETE FROM transactions WHERE account_number = $1`, accountNumber); err != nil {
		return domain.WrapStorage("postgres: delete transactions", err)
	}
	tag, err := s.q.Exec(ctx, `DELETE FROM accounts WHERE account_number = $1`, accountNumber)
	if err != nil {
		return domain.WrapStorage("postgres: delete account", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

type transactionStore struct {
	q querier
}

func (s *transactionStore) Append(ctx context.Context, tran *domain.Transaction) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO transactions
			(id, account_number, type, ts, old_balance, new_balance, amount, target_account_number)
		VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7::numeric, NULLIF($8, ''))`,
		tran.ID,
		tran.AccountNumber,
		string(tran.Type),
		tran.Timestamp.UTC(),
		tran.OldBalance.String(),
		tran.NewBalance.String(),
		tran.Amount.String(),
		tran.TargetAccountNumber,
	)
	if err != nil {
		return domain.WrapStorage("postgres: append transaction", err)
	}
	return nil
}

func (s *transactionStore) FindByAccount(ctx context.Context, accountNumber string) ([]*domain.Transaction, error) {
	rows, err := s.q.Query(ctx,
		`SELECT id, account_number, type, ts,
			old_balance::text, new_balance::text, amount::text,
			COALESCE(target_account_number, '')
		FROM transactions
		WHERE account_number = $1
		ORDER BY seq`,
		accountNumber,
	)
	if err != nil {
		return nil, domain.WrapStorage("postgres: find transactions", err)
	}
	defer rows.Close()

	trans := make([]*domain.Transaction, 0)
	for rows.Next() {
		var tran domain.Transaction
		var txType, oldBal, newBal, amount string
		if err := rows.Scan(
			&tran.ID, &tran.AccountNumber, &txType, &tran.Timestamp,
			&oldBal, &newBal, &amount, &tran.TargetAccountNumber,
		); err != nil {
			return nil, domain.WrapStorage("postgres: find transactions", err)
		}
		tran.Type = domain.TransactionType(txType)
		tran.Timestamp = tran.Timestamp.UTC()
		if tran.OldBalance, err = decimal.NewFromString(oldBal); err != nil {
			return nil, domain.WrapStorage("postgres: find transactions", err)
		}
		if tran.NewBalance, err = decimal.NewFromString(newBal); err != nil {
			return nil, domain.WrapStorage("postgres: find transactions", err)
		}
		if tran.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, domain.WrapStorage("postgres: find transactions", err)
		}
		trans = append(trans, &tran)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapStorage("postgres: find transactions", err)
	}
	return trans, nil
}

var _ usecase.Store = (*Store)(nil)
