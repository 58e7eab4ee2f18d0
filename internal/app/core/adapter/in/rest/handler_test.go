package rest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/adapter/out/memory"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/usecase"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store, err := memory.NewStore(nil)
	require.NoError(t, err)
	core := usecase.NewCoreUseCase(store, usecase.SystemClock{})
	router := NewRouter(core, RouterConfig{AllowedOrigins: []string{"http://localhost:3000"}}, zap.NewNop())

	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, method, url, body string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(raw)
}

func TestAccountLifecycle(t *testing.T) {
	ts := newTestServer(t)
	base := ts.URL + "/api/accounts"

	resp, body := do(t, http.MethodPost, base, `{"accountNr":"A","balance":1000}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	var account map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &account))
	assert.Equal(t, "A", account["accountNumber"])
	assert.Equal(t, "1000", account["balance"])
	assert.NotEmpty(t, account["id"])

	resp, body = do(t, http.MethodPost, base, `{"accountNr":"A","balance":5}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, body)

	resp, body = do(t, http.MethodPost, base+"/A/deposit?amount=500", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	var bal balanceResponse
	require.NoError(t, json.Unmarshal([]byte(body), &bal))
	assert.Equal(t, "Amount 500 deposited successfully!", bal.Message)
	assert.Equal(t, "1500", bal.NewBalance.String())

	resp, body = do(t, http.MethodPost, base+"/A/withdraw?amount=2000", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, "insufficient balance")

	resp, body = do(t, http.MethodPost, base+"/A/withdraw?amount=0.5", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	require.NoError(t, json.Unmarshal([]byte(body), &bal))
	assert.Equal(t, "Amount 0.5 has been withdrawn successfully!", bal.Message)
	assert.Equal(t, "1499.5", bal.NewBalance.String())

	_, _ = do(t, http.MethodPost, base, `{"accountNr":"B","balance":"100"}`)
	resp, body = do(t, http.MethodPost, base+"/transfer",
		`{"sourceAccountNumber":"A","targetAccountNumber":"B","transferAmount":300}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	var tr transferResponse
	require.NoError(t, json.Unmarshal([]byte(body), &tr))
	assert.Equal(t, "Amount 300 transferred successfully!", tr.Message)
	assert.Equal(t, "A", tr.SourceAccount)
	assert.Equal(t, "B", tr.TargetAccount)
	assert.Equal(t, "300", tr.TransferAmount.String())

	resp, body = do(t, http.MethodGet, base, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &list))
	require.Len(t, list, 2)
	assert.Equal(t, "1199.5", list[0]["balance"])
	assert.Equal(t, "400", list[1]["balance"])

	resp, body = do(t, http.MethodGet, base+"/A/transactions", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var trans []map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &trans))
	require.Len(t, trans, 4)
	assert.Equal(t, "ACCOUNT_CREATION", trans[0]["type"])
	assert.Equal(t, "TRANSFER", trans[3]["type"])
	assert.Equal(t, "B", trans[3]["targetAccountNumber"])

	resp, _ = do(t, http.MethodDelete, base+"/A", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, base+"/A", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = do(t, http.MethodGet, base+"/A/transactions", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = do(t, http.MethodDelete, base+"/A", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestBadRequests(t *testing.T) {
	ts := newTestServer(t)
	base := ts.URL + "/api/accounts"
	_, _ = do(t, http.MethodPost, base, `{"accountNr":"A","balance":10}`)
	_, _ = do(t, http.MethodPost, base, `{"accountNr":"B","balance":10}`)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"malformed body", http.MethodPost, "", `{"accountNr":`, http.StatusBadRequest},
		{"missing account number", http.MethodPost, "", `{"balance":1}`, http.StatusBadRequest},
		{"negative initial balance", http.MethodPost, "", `{"accountNr":"N","balance":-1}`, http.StatusBadRequest},
		{"missing amount", http.MethodPost, "/A/deposit", "", http.StatusBadRequest},
		{"non numeric amount", http.MethodPost, "/A/deposit?amount=ten", "", http.StatusBadRequest},
		{"negative deposit", http.MethodPost, "/A/deposit?amount=-1", "", http.StatusBadRequest},
		{"deposit unknown account", http.MethodPost, "/Z/deposit?amount=1", "", http.StatusNotFound},
		{"transfer same account", http.MethodPost, "/transfer", `{"sourceAccountNumber":"A","targetAccountNumber":"A","transferAmount":1}`, http.StatusBadRequest},
		{"transfer zero", http.MethodPost, "/transfer", `{"sourceAccountNumber":"A","targetAccountNumber":"B","transferAmount":0}`, http.StatusBadRequest},
		{"transfer unknown target", http.MethodPost, "/transfer", `{"sourceAccountNumber":"A","targetAccountNumber":"Z","transferAmount":1}`, http.StatusNotFound},
		{"transfer missing fields", http.MethodPost, "/transfer", `{"transferAmount":1}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := do(t, tt.method, base+tt.path, tt.body)
			assert.Equal(t, tt.want, resp.StatusCode, body)
		})
	}
}

func TestHealthMetricsAndCORS(t *testing.T) {
	ts := newTestServer(t)

	resp, body := do(t, http.MethodGet, ts.URL+"/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, body)

	_, _ = do(t, http.MethodGet, ts.URL+"/api/accounts", "")
	resp, body = do(t, http.MethodGet, ts.URL+"/metrics", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "ledger_http_requests_total")

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/api/accounts", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))
}
