package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand/v2"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	grpc_adapter "github.com/JoeShih716/go-bank-ledger/internal/app/core/adapter/in/grpc"
	"github.com/JoeShih716/go-bank-ledger/pkg/grpc"
	"github.com/JoeShih716/go-bank-ledger/pkg/logger"
)

type account struct {
	AccountNumber string          `json:"accountNumber"`
	Balance       decimal.Decimal `json:"balance"`
}

type client struct {
	base string
	http *http.Client
}

func (c *client) post(ctx context.Context, path string, body any) (int, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return 0, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, &buf)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func (c *client) getAccount(ctx context.Context, number string) (*account, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/api/accounts/"+number, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get account %s: status %d", number, resp.StatusCode)
	}
	var a account
	if err := json.NewDecoder(resp.Body).Decode(&a); err != nil {
		return nil, err
	}
	return &a, nil
}

func main() {
	baseURL := flag.String("http", "http://localhost:8080", "ledger HTTP base URL")
	grpcAddr := flag.String("grpc", "localhost:50051", "ledger gRPC address for health check (empty to skip)")
	accounts := flag.Int("accounts", 10, "number of accounts")
	initial := flag.String("initial", "1000", "initial balance per account")
	total := flag.Int("transfers", 10000, "total transfers")
	concurrency := flag.Int("concurrency", 100, "concurrent workers")
	maxAmount := flag.Int("max-amount", 50, "max transfer amount")
	timeout := flag.Duration("timeout", 2*time.Minute, "overall timeout")
	flag.Parse()

	zlog, err := logger.New("info", true)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	initialBalance, err := decimal.NewFromString(*initial)
	if err != nil {
		zlog.Fatal("invalid initial balance", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	// 1. 等待 ledger 可用
	if *grpcAddr != "" {
		pool := grpc.NewPool(grpc.WithInterceptor(grpc.LoggingInterceptor(zlog)))
		defer pool.Close()
		conn, err := pool.GetConnection(*grpcAddr)
		if err != nil {
			zlog.Fatal("failed to create grpc connection", zap.Error(err))
		}
		waitCtx, waitCancel := context.WithTimeout(ctx, 30*time.Second)
		err = grpc.WaitServing(waitCtx, conn, grpc_adapter.ServiceName, 500*time.Millisecond)
		waitCancel()
		if err != nil {
			zlog.Fatal("ledger is not serving", zap.Error(err))
		}
	}

	c := &client{
		base: *baseURL,
		http: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        *concurrency,
				MaxIdleConnsPerHost: *concurrency,
			},
		},
	}

	// 2. 建立帳戶 (每次執行使用不同前綴)
	prefix := fmt.Sprintf("LG%d-", time.Now().UnixNano())
	numbers := make([]string, *accounts)
	for i := range numbers {
		numbers[i] = fmt.Sprintf("%s%04d", prefix, i)
		status, err := c.post(ctx, "/api/accounts", map[string]any{
			"accountNr": numbers[i],
			"balance":   initialBalance,
		})
		if err != nil || status != http.StatusOK {
			zlog.Fatal("failed to create account", zap.String("account_number", numbers[i]), zap.Int("status", status), zap.Error(err))
		}
	}
	zlog.Info("accounts created", zap.Int("count", len(numbers)), zap.String("prefix", prefix))

	// 3. 併發轉帳
	var ok, rejected, failed atomic.Int64
	var wg sync.WaitGroup
	jobs := make(chan struct{})
	start := time.Now()
	for w := 0; w < *concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range jobs {
				src := numbers[rand.IntN(len(numbers))]
				dst := numbers[rand.IntN(len(numbers))]
				for dst == src && len(numbers) > 1 {
					dst = numbers[rand.IntN(len(numbers))]
				}
				status, err := c.post(ctx, "/api/accounts/transfer", map[string]any{
					"sourceAccountNumber": src,
					"targetAccountNumber": dst,
					"transferAmount":      decimal.NewFromInt(int64(rand.IntN(*maxAmount) + 1)),
				})
				switch {
				case err != nil || status >= http.StatusInternalServerError:
					failed.Add(1)
				case status == http.StatusOK:
					ok.Add(1)
				default:
					rejected.Add(1)
				}
			}
		}()
	}
	for i := 0; i < *total; i++ {
		jobs <- struct{}{}
	}
	close(jobs)
	wg.Wait()
	elapsed := time.Since(start)

	zlog.Info("transfers completed",
		zap.Int64("ok", ok.Load()),
		zap.Int64("rejected", rejected.Load()),
		zap.Int64("failed", failed.Load()),
		zap.Duration("elapsed", elapsed),
		zap.Float64("tps", float64(*total)/elapsed.Seconds()),
	)

	// 4. 檢查總額守恆
	sum := decimal.Zero
	for _, n := range numbers {
		a, err := c.getAccount(ctx, n)
		if err != nil {
			zlog.Fatal("failed to read account", zap.Error(err))
		}
		if a.Balance.IsNegative() {
			zlog.Error("negative balance", zap.String("account_number", n), zap.String("balance", a.Balance.String()))
			os.Exit(1)
		}
		sum = sum.Add(a.Balance)
	}
	expected := initialBalance.Mul(decimal.NewFromInt(int64(len(numbers))))
	if !sum.Equal(expected) {
		zlog.Error("total balance mismatch", zap.String("expected", expected.String()), zap.String("actual", sum.String()))
		os.Exit(1)
	}
	zlog.Info("total balance conserved", zap.String("total", sum.String()))
}
