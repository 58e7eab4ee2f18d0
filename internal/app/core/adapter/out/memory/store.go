package memory

import (
	"context"
	"encoding/json"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-bank-ledger/pkg/wal"
)

// walRecord 一次 commit 寫入 WAL 的內容 (一行)
type walRecord struct {
	Puts    []*domain.Account     `json:"puts,omitempty"`
	Deletes []string              `json:"deletes,omitempty"`
	Appends []*domain.Transaction `json:"appends,omitempty"`
}

// Store 是一個使用 Mutex 實現的記憶體帳本儲存
//
// 結構:
//
//	accounts: 帳號對應的帳戶
//	trans: 帳號對應的交易紀錄 (依寫入順序)
//	mu: 寫入 (Do) 取得獨占鎖，非交易讀取取得共享鎖
//	wal: Write-Ahead Log 實例，nil 時只存在記憶體
type Store struct {
	accounts map[string]*domain.Account
	trans    map[string][]*domain.Transaction
	mu       sync.RWMutex
	wal      *wal.WAL
}

// NewStore 建立一個新的 Store 實例
//
// 參數:
//
//	w: Write-Ahead Log 實例，可為 nil
//
// 回傳:
//
//	*Store: Store 實例
//	error: 初始化錯誤 (如 WAL 恢復失敗)
func NewStore(w *wal.WAL) (*Store, error) {
	s := &Store{
		accounts: make(map[string]*domain.Account),
		trans:    make(map[string][]*domain.Transaction),
		wal:      w,
	}
	if w != nil {
		if err := s.recoverFromWAL(); err != nil {
			return nil, domain.WrapStorage("recover from wal", err)
		}
	}
	return s, nil
}

// recoverFromWAL 從 WAL 檔案恢復帳本狀態
// 只有 NewStore 呼叫，無需 Lock (單執行緒)
func (s *Store) recoverFromWAL() error {
	return s.wal.ReadAll(func(jsonRaw []byte) error {
		var rec walRecord
		if err := json.Unmarshal(jsonRaw, &rec); err != nil {
			return err
		}
		s.apply(&rec)
		return nil
	})
}

// apply 將一次 commit 的內容套用到記憶體
// 順序: 刪除 -> 寫入帳戶 -> 附加交易
func (s *Store) apply(rec *walRecord) {
	for _, number := range rec.Deletes {
		delete(s.accounts, number)
		delete(s.trans, number)
	}
	for _, account := range rec.Puts {
		s.accounts[account.AccountNumber] = account.Clone()
	}
	for _, tran := range rec.Appends {
		s.trans[tran.AccountNumber] = append(s.trans[tran.AccountNumber], tran.Clone())
	}
}

// Do 在獨占鎖內執行 fn
//
// fn 的寫入先放在 tx 的暫存區，fn 成功後寫入 WAL 再套用；
// fn 失敗或 WAL 寫入失敗時暫存區直接丟棄，狀態不變。
func (s *Store) Do(ctx context.Context, fn func(ctx context.Context, repo usecase.Repository) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := newTx(s)
	if err := fn(ctx, t); err != nil {
		return err
	}

	rec := t.record()
	if rec == nil {
		return nil
	}
	if s.wal != nil {
		if err := s.wal.Write(rec); err != nil {
			return domain.WrapStorage("write wal", err)
		}
	}
	s.apply(rec)
	return nil
}

// Accounts 非交易讀取用的 AccountStore，每次呼叫各自取得共享鎖
func (s *Store) Accounts() usecase.AccountStore {
	return &readAccounts{s: s}
}

// Transactions 非交易讀取用的 TransactionStore
func (s *Store) Transactions() usecase.TransactionStore {
	return &readTransactions{s: s}
}

// Close 關閉 WAL
func (s *Store) Close() error {
	if s.wal == nil {
		return nil
	}
	return s.wal.Close()
}

// snapshotAccounts 依帳號排序
func snapshotAccounts(m map[string]*domain.Account) []*domain.Account {
	out := make([]*domain.Account, 0, len(m))
	for _, number := range slices.Sorted(maps.Keys(m)) {
		out = append(out, m[number].Clone())
	}
	return out
}

func cloneTransactions(trans []*domain.Transaction) []*domain.Transaction {
	out := make([]*domain.Transaction, 0, len(trans))
	for _, tran := range trans {
		out = append(out, tran.Clone())
	}
	return out
}

// readAccounts 在 Do 以外使用，寫入一律透過 Do
type readAccounts struct {
	s *Store
}

func (r *readAccounts) List(ctx context.Context) ([]*domain.Account, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return snapshotAccounts(r.s.accounts), nil
}

func (r *readAccounts) FindByNumber(ctx context.Context, accountNumber string) (*domain.Account, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	account, ok := r.s.accounts[accountNumber]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return account.Clone(), nil
}

func (r *readAccounts) FindForUpdate(ctx context.Context, accountNumber string) (*domain.Account, error) {
	return r.FindByNumber(ctx, accountNumber)
}

func (r *readAccounts) Create(ctx context.Context, account *domain.Account) error {
	return r.s.Do(ctx, func(ctx context.Context, repo usecase.Repository) error {
		return repo.Accounts().Create(ctx, account)
	})
}

func (r *readAccounts) Update(ctx context.Context, account *domain.Account) error {
	return r.s.Do(ctx, func(ctx context.Context, repo usecase.Repository) error {
		return repo.Accounts().Update(ctx, account)
	})
}

func (r *readAccounts) Delete(ctx context.Context, accountNumber string) error {
	return r.s.Do(ctx, func(ctx context.Context, repo usecase.Repository) error {
		return repo.Accounts().Delete(ctx, accountNumber)
	})
}

type readTransactions struct {
	s *Store
}

func (r *readTransactions) Append(ctx context.Context, tran *domain.Transaction) error {
	return r.s.Do(ctx, func(ctx context.Context, repo usecase.Repository) error {
		return repo.Transactions().Append(ctx, tran)
	})
}

func (r *readTransactions) FindByAccount(ctx context.Context, accountNumber string) ([]*domain.Transaction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return cloneTransactions(r.s.trans[accountNumber]), nil
}

// tx 一次 Do 的暫存區，已持有 Store 的獨占鎖
type tx struct {
	s       *Store
	puts    map[string]*domain.Account
	deletes map[string]struct{}
	appends []*domain.Transaction
}

func newTx(s *Store) *tx {
	return &tx{
		s:       s,
		puts:    make(map[string]*domain.Account),
		deletes: make(map[string]struct{}),
	}
}

func (t *tx) Accounts() usecase.AccountStore         { return (*txAccounts)(t) }
func (t *tx) Transactions() usecase.TransactionStore { return (*txTransactions)(t) }

// lookup 先看暫存區，再看已 commit 的狀態
func (t *tx) lookup(accountNumber string) (*domain.Account, bool) {
	if account, ok := t.puts[accountNumber]; ok {
		return account, true
	}
	if _, ok := t.deletes[accountNumber]; ok {
		return nil, false
	}
	account, ok := t.s.accounts[accountNumber]
	return account, ok
}

// record 轉為 WAL 紀錄，沒有任何寫入時回傳 nil
func (t *tx) record() *walRecord {
	if len(t.puts) == 0 && len(t.deletes) == 0 && len(t.appends) == 0 {
		return nil
	}
	rec := &walRecord{
		Deletes: slices.Sorted(maps.Keys(t.deletes)),
		Appends: t.appends,
	}
	for _, number := range slices.Sorted(maps.Keys(t.puts)) {
		rec.Puts = append(rec.Puts, t.puts[number])
	}
	return rec
}

type txAccounts tx

func (a *txAccounts) List(ctx context.Context) ([]*domain.Account, error) {
	t := (*tx)(a)
	merged := make(map[string]*domain.Account, len(t.s.accounts)+len(t.puts))
	for number, account := range t.s.accounts {
		if _, deleted := t.deletes[number]; !deleted {
			merged[number] = account
		}
	}
	maps.Copy(merged, t.puts)
	return snapshotAccounts(merged), nil
}

func (a *txAccounts) FindByNumber(ctx context.Context, accountNumber string) (*domain.Account, error) {
	account, ok := (*tx)(a).lookup(accountNumber)
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return account.Clone(), nil
}

// FindForUpdate Do 已持有獨占鎖，等同 FindByNumber
func (a *txAccounts) FindForUpdate(ctx context.Context, accountNumber string) (*domain.Account, error) {
	return a.FindByNumber(ctx, accountNumber)
}

func (a *txAccounts) Create(ctx context.Context, account *domain.Account) error {
	t := (*tx)(a)
	if _, ok := t.lookup(account.AccountNumber); ok {
		return domain.ErrAccountAlreadyExists
	}
	account.ID = uuid.New()
	t.puts[account.AccountNumber] = account.Clone()
	return nil
}

func (a *txAccounts) Update(ctx context.Context, account *domain.Account) error {
	t := (*tx)(a)
	current, ok := t.lookup(account.AccountNumber)
	if !ok {
		return domain.ErrAccountNotFound
	}
	updated := current.Clone()
	updated.Balance = account.Balance
	t.puts[account.AccountNumber] = updated
	return nil
}

func (a *txAccounts) Delete(ctx context.Context, accountNumber string) error {
	t := (*tx)(a)
	if _, ok := t.lookup(accountNumber); !ok {
		return domain.ErrAccountNotFound
	}
	delete(t.puts, accountNumber)
	t.deletes[accountNumber] = struct{}{}
	t.appends = slices.DeleteFunc(t.appends, func(tran *domain.Transaction) bool {
		return tran.AccountNumber == accountNumber
	})
	return nil
}

type txTransactions tx

func (r *txTransactions) Append(ctx context.Context, tran *domain.Transaction) error {
	t := (*tx)(r)
	t.appends = append(t.appends, tran.Clone())
	return nil
}

func (r *txTransactions) FindByAccount(ctx context.Context, accountNumber string) ([]*domain.Transaction, error) {
	t := (*tx)(r)
	var out []*domain.Transaction
	if _, deleted := t.deletes[accountNumber]; !deleted {
		out = cloneTransactions(t.s.trans[accountNumber])
	}
	for _, tran := range t.appends {
		if tran.AccountNumber == accountNumber {
			out = append(out, tran.Clone())
		}
	}
	return out, nil
}

var _ usecase.Store = (*Store)(nil)
