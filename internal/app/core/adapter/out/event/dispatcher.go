package event

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/usecase"
)

// ErrQueueFull 輸送帶已滿，事件被丟棄
var ErrQueueFull = errors.New("event queue full")

// Dispatcher 非同步發布事件
//
// Publish 只把交易放上輸送帶就回傳，由單一 goroutine 依序交給下游 publisher，
// 讓 broker 的延遲不會拖慢帳本操作。
//
// Publish(放入) -> Channel -> Run Loop -> next.Publish
type Dispatcher struct {
	next    usecase.EventPublisher
	queue   chan []*domain.Transaction
	timeout time.Duration
	logger  *zap.Logger
	done    chan struct{}
}

// NewDispatcher 建立一個新的 Dispatcher 實例
//
// 參數:
//
//	next: 實際發布的 publisher
//	size: 輸送帶容量
//	timeout: 單次發布的逾時
//	logger: 發布失敗時記錄
//
// 回傳:
//
//	*Dispatcher: 尚未啟動的 Dispatcher，需呼叫 Start
func NewDispatcher(next usecase.EventPublisher, size int, timeout time.Duration, logger *zap.Logger) *Dispatcher {
	if size <= 0 {
		size = 1000
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{
		next:    next,
		queue:   make(chan []*domain.Transaction, size),
		timeout: timeout,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// Publish 放上輸送帶，滿了回傳 ErrQueueFull (不阻塞呼叫端)
func (d *Dispatcher) Publish(ctx context.Context, trans ...*domain.Transaction) error {
	if len(trans) == 0 {
		return nil
	}
	select {
	case d.queue <- trans:
		return nil
	default:
		return ErrQueueFull
	}
}

// Start 啟動發布迴圈 (非同步)，ctx 結束時把剩下的事件送完
func (d *Dispatcher) Start(ctx context.Context) {
	go d.run(ctx)
}

// Wait 等待發布迴圈結束
func (d *Dispatcher) Wait() {
	<-d.done
}

func (d *Dispatcher) run(ctx context.Context) {
	defer close(d.done)
	for {
		select {
		case <-ctx.Done():
			d.drain()
			return
		case batch := <-d.queue:
			d.send(batch)
		}
	}
}

func (d *Dispatcher) drain() {
	for {
		select {
		case batch := <-d.queue:
			d.send(batch)
		default:
			return
		}
	}
}

func (d *Dispatcher) send(batch []*domain.Transaction) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := d.next.Publish(ctx, batch...); err != nil {
		d.logger.Warn("failed to publish transaction events",
			zap.Int("count", len(batch)),
			zap.String("first_transaction_id", batch[0].ID),
			zap.Error(err),
		)
	}
}

var _ usecase.EventPublisher = (*Dispatcher)(nil)
