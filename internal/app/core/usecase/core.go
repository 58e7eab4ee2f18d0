package usecase

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
)

// CoreUseCase 是核心業務邏輯層 (帳本引擎)
//
// 每個異動操作都在單一 Unit of Work 內完成：
// 讀取並鎖定帳戶 -> 驗證 -> 更新帳戶 -> 附加交易紀錄 -> commit。
type CoreUseCase struct {
	store     Store
	log       *TransactionLog
	publisher EventPublisher
	logger    *zap.Logger
}

// Option 設定 CoreUseCase 的選用元件
type Option func(*CoreUseCase)

// WithPublisher 設定 commit 後的事件發布
func WithPublisher(p EventPublisher) Option {
	return func(c *CoreUseCase) {
		c.publisher = p
	}
}

// WithLogger 設定 logger，預設為 zap.NewNop()
func WithLogger(logger *zap.Logger) Option {
	return func(c *CoreUseCase) {
		c.logger = logger
	}
}

func NewCoreUseCase(store Store, clock Clock, opts ...Option) *CoreUseCase {
	c := &CoreUseCase{
		store:  store,
		log:    NewTransactionLog(store.Transactions(), clock),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListAccounts 列出所有帳戶 (依帳號排序)
func (c *CoreUseCase) ListAccounts(ctx context.Context) ([]*domain.Account, error) {
	accounts, err := c.store.Accounts().List(ctx)
	if err != nil {
		return nil, c.fail("list accounts", "", err)
	}
	if accounts == nil {
		accounts = []*domain.Account{}
	}
	return accounts, nil
}

// GetAccount 依帳號取得帳戶
//
// 回傳:
//
//	error: domain.ErrAccountNotFound
func (c *CoreUseCase) GetAccount(ctx context.Context, accountNumber string) (*domain.Account, error) {
	account, err := c.store.Accounts().FindByNumber(ctx, accountNumber)
	if err != nil {
		return nil, c.fail("get account", accountNumber, err)
	}
	return account, nil
}

// CreateAccount 開戶並寫入 ACCOUNT_CREATION 交易
//
// 參數:
//
//	ctx: 上下文
//	accountNumber: 帳號 (唯一)
//	initialBalance: 初始餘額 (不可為負，最多 AmountScale 位小數)
//
// 帳號重複優先於金額錯誤。
//
// 回傳:
//
//	*domain.Account: 建立後的帳戶 (含儲存層分配的 ID)
//	error: domain.ErrAccountAlreadyExists, domain.ErrInvalidAmount
func (c *CoreUseCase) CreateAccount(ctx context.Context, accountNumber string, initialBalance decimal.Decimal) (*domain.Account, error) {
	var created *domain.Account
	var written []*domain.Transaction
	err := c.store.Do(ctx, func(ctx context.Context, repo Repository) error {
		_, err := repo.Accounts().FindForUpdate(ctx, accountNumber)
		if err == nil {
			return domain.ErrAccountAlreadyExists
		}
		if !errors.Is(err, domain.ErrAccountNotFound) {
			return err
		}
		if !domain.ValidAmount(initialBalance) {
			return domain.ErrInvalidAmount
		}

		account := domain.NewAccount(accountNumber, initialBalance)
		if err := repo.Accounts().Create(ctx, account); err != nil {
			return err
		}

		tran := domain.NewCreationTransaction(account)
		if err := c.log.Append(ctx, repo.Transactions(), tran); err != nil {
			return err
		}
		created = account
		written = append(written, tran)
		return nil
	})
	if err != nil {
		return nil, c.fail("create account", accountNumber, err)
	}

	c.committed(ctx, written)
	return created, nil
}

// Deposit 存款
//
// 先確認帳戶存在，再檢查金額；金額 0 視為合法並記錄交易。
//
// 回傳:
//
//	error: domain.ErrAccountNotFound, domain.ErrInvalidAmount
func (c *CoreUseCase) Deposit(ctx context.Context, accountNumber string, amount decimal.Decimal) error {
	return c.mutate(ctx, "deposit", accountNumber, func(account *domain.Account) (*domain.Transaction, error) {
		oldBalance := account.Balance
		if err := account.Deposit(amount); err != nil {
			return nil, err
		}
		return domain.NewBalanceTransaction(domain.TransactionTypeDeposit, account, oldBalance, amount, ""), nil
	})
}

// Withdraw 提款
//
// 檢查順序: 帳戶存在 -> 金額非負 -> 餘額足夠。金額 0 視為合法並記錄交易。
//
// 回傳:
//
//	error: domain.ErrAccountNotFound, domain.ErrInvalidAmount, domain.ErrInsufficientBalance
func (c *CoreUseCase) Withdraw(ctx context.Context, accountNumber string, amount decimal.Decimal) error {
	return c.mutate(ctx, "withdraw", accountNumber, func(account *domain.Account) (*domain.Transaction, error) {
		oldBalance := account.Balance
		if err := account.Withdraw(amount); err != nil {
			return nil, err
		}
		return domain.NewBalanceTransaction(domain.TransactionTypeWithdrawal, account, oldBalance, amount, ""), nil
	})
}

// mutate 單一帳戶的 read-modify-write-append
func (c *CoreUseCase) mutate(
	ctx context.Context,
	op string,
	accountNumber string,
	apply func(account *domain.Account) (*domain.Transaction, error),
) error {
	var written []*domain.Transaction
	err := c.store.Do(ctx, func(ctx context.Context, repo Repository) error {
		account, err := repo.Accounts().FindForUpdate(ctx, accountNumber)
		if err != nil {
			return err
		}

		tran, err := apply(account)
		if err != nil {
			return err
		}

		if err := repo.Accounts().Update(ctx, account); err != nil {
			return err
		}
		if err := c.log.Append(ctx, repo.Transactions(), tran); err != nil {
			return err
		}
		written = append(written, tran)
		return nil
	})
	if err != nil {
		return c.fail(op, accountNumber, err)
	}

	c.committed(ctx, written)
	return nil
}

// Transfer 轉帳，兩個帳戶的異動與兩筆交易紀錄一起 commit
//
// 參數:
//
//	ctx: 上下文
//	sourceAccountNumber: 轉出帳號
//	targetAccountNumber: 轉入帳號
//	amount: 轉帳金額 (必須 > 0)
//
// 回傳:
//
//	error: domain.ErrAccountNotFound, domain.ErrInvalidAmount,
//	       domain.ErrInsufficientBalance, domain.ErrSameAccount
func (c *CoreUseCase) Transfer(ctx context.Context, sourceAccountNumber, targetAccountNumber string, amount decimal.Decimal) error {
	var written []*domain.Transaction
	err := c.store.Do(ctx, func(ctx context.Context, repo Repository) error {
		// 依固定順序鎖定，避免兩筆反向轉帳互相等待
		locked := make(map[string]*domain.Account, 2)
		for _, number := range domain.GetLockAccountNumbers(sourceAccountNumber, targetAccountNumber) {
			account, err := repo.Accounts().FindForUpdate(ctx, number)
			if err != nil {
				return err
			}
			locked[number] = account
		}
		if sourceAccountNumber == targetAccountNumber {
			return domain.ErrSameAccount
		}
		source := locked[sourceAccountNumber]
		target := locked[targetAccountNumber]

		if !amount.IsPositive() {
			return domain.ErrInvalidAmount
		}

		sourceOld := source.Balance
		targetOld := target.Balance
		if err := source.Withdraw(amount); err != nil {
			return err
		}
		if err := target.Deposit(amount); err != nil {
			return err
		}

		if err := repo.Accounts().Update(ctx, source); err != nil {
			return err
		}
		if err := repo.Accounts().Update(ctx, target); err != nil {
			return err
		}

		debit := domain.NewBalanceTransaction(domain.TransactionTypeTransfer, source, sourceOld, amount, targetAccountNumber)
		if err := c.log.Append(ctx, repo.Transactions(), debit); err != nil {
			return err
		}
		credit := domain.NewBalanceTransaction(domain.TransactionTypeTransfer, target, targetOld, amount, sourceAccountNumber)
		credit.Timestamp = debit.Timestamp
		if err := c.log.Append(ctx, repo.Transactions(), credit); err != nil {
			return err
		}
		written = append(written, debit, credit)
		return nil
	})
	if err != nil {
		return c.fail("transfer", sourceAccountNumber, err)
	}

	c.committed(ctx, written)
	return nil
}

// DeleteAccount 刪除帳戶，交易紀錄一併刪除
//
// 回傳:
//
//	error: domain.ErrAccountNotFound
func (c *CoreUseCase) DeleteAccount(ctx context.Context, accountNumber string) error {
	err := c.store.Do(ctx, func(ctx context.Context, repo Repository) error {
		if _, err := repo.Accounts().FindForUpdate(ctx, accountNumber); err != nil {
			return err
		}
		return repo.Accounts().Delete(ctx, accountNumber)
	})
	if err != nil {
		return c.fail("delete account", accountNumber, err)
	}

	c.logger.Info("account deleted", zap.String("account_number", accountNumber))
	return nil
}

// GetTransactionsForAccount 依寫入順序回傳交易紀錄
//
// 帳戶不存在不視為錯誤，回傳空 slice。
func (c *CoreUseCase) GetTransactionsForAccount(ctx context.Context, accountNumber string) ([]*domain.Transaction, error) {
	trans, err := c.log.FindByAccount(ctx, accountNumber)
	if err != nil {
		return nil, c.fail("get transactions", accountNumber, err)
	}
	return trans, nil
}

// committed commit 成功後記錄 log 並發布事件
// 發布失敗只記錄警告，交易已經生效
func (c *CoreUseCase) committed(ctx context.Context, written []*domain.Transaction) {
	for _, tran := range written {
		c.logger.Info("transaction committed",
			zap.String("transaction_id", tran.ID),
			zap.String("account_number", tran.AccountNumber),
			zap.String("type", string(tran.Type)),
			zap.String("amount", tran.Amount.String()),
			zap.String("new_balance", tran.NewBalance.String()),
		)
	}
	if c.publisher == nil || len(written) == 0 {
		return
	}
	if err := c.publisher.Publish(ctx, written...); err != nil {
		c.logger.Warn("failed to publish transaction events",
			zap.Int("count", len(written)),
			zap.Error(err),
		)
	}
}

// fail 統一錯誤包裝與記錄
func (c *CoreUseCase) fail(op, accountNumber string, err error) error {
	err = domain.WrapStorage(op, err)
	if domain.IsBusinessError(err) {
		c.logger.Debug("operation rejected",
			zap.String("op", op),
			zap.String("account_number", accountNumber),
			zap.Error(err),
		)
		return err
	}
	c.logger.Error("operation failed",
		zap.String("op", op),
		zap.String("account_number", accountNumber),
		zap.Error(err),
	)
	return err
}
