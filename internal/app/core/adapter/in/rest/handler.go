package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
)

// LedgerService handler 需要的帳本操作 (由 usecase.CoreUseCase 實作)
type LedgerService interface {
	ListAccounts(ctx context.Context) ([]*domain.Account, error)
	GetAccount(ctx context.Context, accountNumber string) (*domain.Account, error)
	CreateAccount(ctx context.Context, accountNumber string, initialBalance decimal.Decimal) (*domain.Account, error)
	Deposit(ctx context.Context, accountNumber string, amount decimal.Decimal) error
	Withdraw(ctx context.Context, accountNumber string, amount decimal.Decimal) error
	Transfer(ctx context.Context, sourceAccountNumber, targetAccountNumber string, amount decimal.Decimal) error
	DeleteAccount(ctx context.Context, accountNumber string) error
	GetTransactionsForAccount(ctx context.Context, accountNumber string) ([]*domain.Transaction, error)
}

var errBadRequest = errors.New("bad request")

type Handler struct {
	svc    LedgerService
	logger *zap.Logger
}

func NewHandler(svc LedgerService, logger *zap.Logger) *Handler {
	return &Handler{
		svc:    svc,
		logger: logger,
	}
}

type createAccountRequest struct {
	AccountNr string           `json:"accountNr"`
	Balance   *decimal.Decimal `json:"balance"`
}

type transferRequest struct {
	SourceAccountNumber string          `json:"sourceAccountNumber"`
	TargetAccountNumber string          `json:"targetAccountNumber"`
	TransferAmount      decimal.Decimal `json:"transferAmount"`
}

type balanceResponse struct {
	Message    string          `json:"message"`
	NewBalance decimal.Decimal `json:"newBalance"`
}

type transferResponse struct {
	Message        string          `json:"message"`
	SourceAccount  string          `json:"sourceAccount"`
	TargetAccount  string          `json:"targetAccount"`
	TransferAmount decimal.Decimal `json:"transferAmount"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.svc.ListAccounts(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	account, err := h.svc.GetAccount(r.Context(), chi.URLParam(r, "accountNumber"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("%v: invalid request body", errBadRequest), http.StatusBadRequest)
		return
	}
	if req.AccountNr == "" {
		http.Error(w, fmt.Sprintf("%v: accountNr is required", errBadRequest), http.StatusBadRequest)
		return
	}
	balance := decimal.Zero
	if req.Balance != nil {
		balance = *req.Balance
	}

	account, err := h.svc.CreateAccount(r.Context(), req.AccountNr, balance)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// Deposit POST /{accountNumber}/deposit?amount=
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.changeBalance(w, r, h.svc.Deposit, "Amount %s deposited successfully!")
}

// Withdraw POST /{accountNumber}/withdraw?amount=
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.changeBalance(w, r, h.svc.Withdraw, "Amount %s has been withdrawn successfully!")
}

// changeBalance 存提款共用流程，回應附上異動後重新讀取的餘額
func (h *Handler) changeBalance(
	w http.ResponseWriter,
	r *http.Request,
	op func(ctx context.Context, accountNumber string, amount decimal.Decimal) error,
	messageFormat string,
) {
	accountNumber := chi.URLParam(r, "accountNumber")
	amount, err := decimal.NewFromString(r.URL.Query().Get("amount"))
	if err != nil {
		http.Error(w, fmt.Sprintf("%v: amount must be a decimal number", errBadRequest), http.StatusBadRequest)
		return
	}

	if err := op(r.Context(), accountNumber, amount); err != nil {
		h.writeError(w, r, err)
		return
	}

	account, err := h.svc.GetAccount(r.Context(), accountNumber)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{
		Message:    fmt.Sprintf(messageFormat, amount.String()),
		NewBalance: account.Balance,
	})
}

func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("%v: invalid request body", errBadRequest), http.StatusBadRequest)
		return
	}
	if req.SourceAccountNumber == "" || req.TargetAccountNumber == "" {
		http.Error(w, fmt.Sprintf("%v: source and target account numbers are required", errBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.svc.Transfer(r.Context(), req.SourceAccountNumber, req.TargetAccountNumber, req.TransferAmount); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, transferResponse{
		Message:        fmt.Sprintf("Amount %s transferred successfully!", req.TransferAmount.String()),
		SourceAccount:  req.SourceAccountNumber,
		TargetAccount:  req.TargetAccountNumber,
		TransferAmount: req.TransferAmount,
	})
}

func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteAccount(r.Context(), chi.URLParam(r, "accountNumber")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetTransactions 沒有任何交易紀錄時回 404
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	accountNumber := chi.URLParam(r, "accountNumber")
	trans, err := h.svc.GetTransactionsForAccount(r.Context(), accountNumber)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if len(trans) == 0 {
		http.Error(w, fmt.Sprintf("no transactions found for account %s", accountNumber), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, trans)
}
