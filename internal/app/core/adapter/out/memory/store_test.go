package memory

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-bank-ledger/pkg/wal"
)

func createAccount(t *testing.T, s *Store, number string, balance int64) *domain.Account {
	t.Helper()
	account := domain.NewAccount(number, decimal.NewFromInt(balance))
	err := s.Do(context.Background(), func(ctx context.Context, repo usecase.Repository) error {
		return repo.Accounts().Create(ctx, account)
	})
	require.NoError(t, err)
	return account
}

func TestStoreCreateAndFind(t *testing.T) {
	s, err := NewStore(nil)
	require.NoError(t, err)
	ctx := context.Background()

	created := createAccount(t, s, "B", 100)
	createAccount(t, s, "A", 50)
	assert.NotZero(t, created.ID)

	found, err := s.Accounts().FindByNumber(ctx, "B")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
	assert.True(t, found.Balance.Equal(decimal.NewFromInt(100)))

	list, err := s.Accounts().List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "A", list[0].AccountNumber)
	assert.Equal(t, "B", list[1].AccountNumber)

	_, err = s.Accounts().FindByNumber(ctx, "C")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestStoreCreateDuplicate(t *testing.T) {
	s, _ := NewStore(nil)
	createAccount(t, s, "A", 1)

	err := s.Do(context.Background(), func(ctx context.Context, repo usecase.Repository) error {
		return repo.Accounts().Create(ctx, domain.NewAccount("A", decimal.Zero))
	})
	assert.ErrorIs(t, err, domain.ErrAccountAlreadyExists)
}

func TestStoreReturnsCopies(t *testing.T) {
	s, _ := NewStore(nil)
	ctx := context.Background()
	createAccount(t, s, "A", 10)

	found, _ := s.Accounts().FindByNumber(ctx, "A")
	found.Balance = decimal.NewFromInt(999)

	again, _ := s.Accounts().FindByNumber(ctx, "A")
	assert.True(t, again.Balance.Equal(decimal.NewFromInt(10)))
}

func TestStoreRollback(t *testing.T) {
	s, _ := NewStore(nil)
	ctx := context.Background()
	createAccount(t, s, "A", 100)

	boom := errors.New("boom")
	err := s.Do(ctx, func(ctx context.Context, repo usecase.Repository) error {
		account, err := repo.Accounts().FindForUpdate(ctx, "A")
		require.NoError(t, err)
		account.Balance = decimal.NewFromInt(1)
		require.NoError(t, repo.Accounts().Update(ctx, account))
		require.NoError(t, repo.Transactions().Append(ctx, &domain.Transaction{AccountNumber: "A"}))

		// 同一個 tx 內看得到自己的寫入
		inTx, _ := repo.Accounts().FindByNumber(ctx, "A")
		assert.True(t, inTx.Balance.Equal(decimal.NewFromInt(1)))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	found, _ := s.Accounts().FindByNumber(ctx, "A")
	assert.True(t, found.Balance.Equal(decimal.NewFromInt(100)))
	trans, _ := s.Transactions().FindByAccount(ctx, "A")
	assert.Empty(t, trans)
}

func TestStoreDeleteCascades(t *testing.T) {
	s, _ := NewStore(nil)
	ctx := context.Background()
	createAccount(t, s, "A", 100)
	createAccount(t, s, "B", 100)
	require.NoError(t, s.Transactions().Append(ctx, &domain.Transaction{ID: "1", AccountNumber: "A"}))
	require.NoError(t, s.Transactions().Append(ctx, &domain.Transaction{ID: "2", AccountNumber: "B"}))

	require.NoError(t, s.Accounts().Delete(ctx, "A"))

	_, err := s.Accounts().FindByNumber(ctx, "A")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
	trans, _ := s.Transactions().FindByAccount(ctx, "A")
	assert.Empty(t, trans)
	trans, _ = s.Transactions().FindByAccount(ctx, "B")
	assert.Len(t, trans, 1)

	assert.ErrorIs(t, s.Accounts().Delete(ctx, "A"), domain.ErrAccountNotFound)
}

func TestStoreRecoverFromWAL(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.wal")

	w, err := wal.NewWAL(path)
	require.NoError(t, err)
	s, err := NewStore(w)
	require.NoError(t, err)

	a := createAccount(t, s, "A", 100)
	createAccount(t, s, "B", 5)
	require.NoError(t, s.Do(ctx, func(ctx context.Context, repo usecase.Repository) error {
		account, err := repo.Accounts().FindForUpdate(ctx, "A")
		if err != nil {
			return err
		}
		account.Balance = decimal.RequireFromString("70.25")
		if err := repo.Accounts().Update(ctx, account); err != nil {
			return err
		}
		return repo.Transactions().Append(ctx, &domain.Transaction{
			ID:            "01",
			AccountNumber: "A",
			Type:          domain.TransactionTypeWithdrawal,
			Amount:        decimal.RequireFromString("29.75"),
		})
	}))
	require.NoError(t, s.Accounts().Delete(ctx, "B"))
	require.NoError(t, s.Close())

	w, err = wal.NewWAL(path)
	require.NoError(t, err)
	recovered, err := NewStore(w)
	require.NoError(t, err)
	defer recovered.Close()

	found, err := recovered.Accounts().FindByNumber(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, a.ID, found.ID)
	assert.True(t, found.Balance.Equal(decimal.RequireFromString("70.25")))

	_, err = recovered.Accounts().FindByNumber(ctx, "B")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)

	trans, _ := recovered.Transactions().FindByAccount(ctx, "A")
	require.Len(t, trans, 1)
	assert.Equal(t, domain.TransactionTypeWithdrawal, trans[0].Type)
	assert.True(t, trans[0].Amount.Equal(decimal.RequireFromString("29.75")))
}
