package mysql

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/usecase"
)

// sqlAccount 對應資料庫的 accounts 表
type sqlAccount struct {
	ID            string          `gorm:"type:char(36);primaryKey"`
	AccountNumber string          `gorm:"type:varchar(64);not null;uniqueIndex"`
	Balance       decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (*sqlAccount) TableName() string {
	return "accounts"
}

func (a *sqlAccount) toDomain() (*domain.Account, error) {
	id, err := uuid.Parse(a.ID)
	if err != nil {
		return nil, err
	}
	return &domain.Account{
		ID:            id,
		AccountNumber: a.AccountNumber,
		Balance:       a.Balance,
	}, nil
}

// sqlTransaction 對應資料庫的 transactions 表
// Seq 自增，作為同一帳戶內的寫入順序
type sqlTransaction struct {
	Seq                 int64           `gorm:"primaryKey;autoIncrement"`
	RefID               string          `gorm:"column:ref_id;type:char(26);not null;uniqueIndex"` // 對應 domain.Transaction.ID
	AccountNumber       string          `gorm:"type:varchar(64);not null;index"`
	Type                string          `gorm:"type:varchar(32);not null"`
	Timestamp           time.Time       `gorm:"type:datetime(6);not null"`
	OldBalance          decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	NewBalance          decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	Amount              decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	TargetAccountNumber string          `gorm:"type:varchar(64)"`
}

func (*sqlTransaction) TableName() string {
	return "transactions"
}

func (t *sqlTransaction) toDomain() *domain.Transaction {
	return &domain.Transaction{
		ID:                  t.RefID,
		AccountNumber:       t.AccountNumber,
		Type:                domain.TransactionType(t.Type),
		Timestamp:           t.Timestamp.UTC(),
		OldBalance:          t.OldBalance,
		NewBalance:          t.NewBalance,
		Amount:              t.Amount,
		TargetAccountNumber: t.TargetAccountNumber,
	}
}

// Store 以 GORM 實作的 MySQL 帳本儲存
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{
		db: db,
	}
}

// Migrate 建立或更新資料表
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&sqlAccount{}, &sqlTransaction{}); err != nil {
		return domain.WrapStorage("mysql: migrate", err)
	}
	return nil
}

// txOptions READ COMMITTED 下，對不存在的列做 FOR UPDATE 不會取得 gap lock
var txOptions = &sql.TxOptions{Isolation: sql.LevelReadCommitted}

// Do 以資料庫交易包住 fn，fn 回傳錯誤時 rollback
func (s *Store) Do(ctx context.Context, fn func(ctx context.Context, repo usecase.Repository) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, &repository{db: tx})
	}, txOptions)
}

func (s *Store) Accounts() usecase.AccountStore {
	return &accountStore{db: s.db}
}

func (s *Store) Transactions() usecase.TransactionStore {
	return &transactionStore{db: s.db}
}

// repository 綁定在單一 *gorm.DB (交易內或交易外)
type repository struct {
	db *gorm.DB
}

func (r *repository) Accounts() usecase.AccountStore {
	return &accountStore{db: r.db}
}

func (r *repository) Transactions() usecase.TransactionStore {
	return &transactionStore{db: r.db}
}

type accountStore struct {
	db *gorm.DB
}

func (s *accountStore) List(ctx context.Context) ([]*domain.Account, error) {
	var rows []sqlAccount
	if err := s.db.WithContext(ctx).Order("account_number").Find(&rows).Error; err != nil {
		return nil, domain.WrapStorage("mysql: list accounts", err)
	}
	accounts := make([]*domain.Account, 0, len(rows))
	for i := range rows {
		account, err := rows[i].toDomain()
		if err != nil {
			return nil, domain.WrapStorage("mysql: list accounts", err)
		}
		accounts = append(accounts, account)
	}
	return accounts, nil
}

func (s *accountStore) FindByNumber(ctx context.Context, accountNumber string) (*domain.Account, error) {
	return s.find(s.db.WithContext(ctx), accountNumber)
}

// FindForUpdate SELECT ... FOR UPDATE 悲觀鎖，需在 Do 內呼叫才有意義
func (s *accountStore) FindForUpdate(ctx context.Context, accountNumber string) (*domain.Account, error) {
	return s.find(s.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), accountNumber)
}

func (s *accountStore) find(db *gorm.DB, accountNumber string) (*domain.Account, error) {
	var row sqlAccount
	err := db.Where("account_number = ?", accountNumber).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, domain.WrapStorage("mysql: find account", err)
	}
	account, err := row.toDomain()
	if err != nil {
		return nil, domain.WrapStorage("mysql: find account", err)
	}
	return account, nil
}

func (s *accountStore) Create(ctx context.Context, account *domain.Account) error {
	id := uuid.New()
	row := sqlAccount{
		ID:            id.String(),
		AccountNumber: account.AccountNumber,
		Balance:       account.Balance,
	}
	err := s.db.WithContext(ctx).Create(&row).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.ErrAccountAlreadyExists
	}
	if err != nil {
		return domain.WrapStorage("mysql: create account", err)
	}
	account.ID = id
	return nil
}

// Update 只更新餘額
// MySQL 的 RowsAffected 是「有變動的列數」，餘額不變時為 0，因此不以此判斷帳戶是否存在
func (s *accountStore) Update(ctx context.Context, account *domain.Account) error {
	err := s.db.WithContext(ctx).
		Model(&sqlAccount{}).
		Where("account_number = ?", account.AccountNumber).
		Update("balance", account.Balance).Error
	if err != nil {
		return domain.WrapStorage("mysql: update account", err)
	}
	return nil
}

func (s *accountStore) Delete(ctx context.Context, accountNumber string) error {
	db := s.db.WithContext(ctx)
	if err := db.Where("account_number = ?", accountNumber).Delete(&sqlTransaction{}).Error; err != nil {
		return domain.WrapStorage("mysql: delete transactions", err)
	}
	result := db.Where("account_number = ?", accountNumber).Delete(&sqlAccount{})
	if result.Error != nil {
		return domain.WrapStorage("mysql: delete account", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

type transactionStore struct {
	db *gorm.DB
}

func (s *transactionStore) Append(ctx context.Context, tran *domain.Transaction) error {
	row := sqlTransaction{
		RefID:               tran.ID,
		AccountNumber:       tran.AccountNumber,
		Type:                string(tran.Type),
		Timestamp:           tran.Timestamp.UTC(),
		OldBalance:          tran.OldBalance,
		NewBalance:          tran.NewBalance,
		Amount:              tran.Amount,
		TargetAccountNumber: tran.TargetAccountNumber,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return domain.WrapStorage("mysql: append transaction", err)
	}
	return nil
}

func (s *transactionStore) FindByAccount(ctx context.Context, accountNumber string) ([]*domain.Transaction, error) {
	var rows []sqlTransaction
	err := s.db.WithContext(ctx).
		Where("account_number = ?", accountNumber).
		Order("seq").
		Find(&rows).Error
	if err != nil {
		return nil, domain.WrapStorage("mysql: find transactions", err)
	}
	trans := make([]*domain.Transaction, 0, len(rows))
	for i := range rows {
		trans = append(trans, rows[i].toDomain())
	}
	return trans, nil
}

var _ usecase.Store = (*Store)(nil)
