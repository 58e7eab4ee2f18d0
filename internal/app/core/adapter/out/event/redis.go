package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/usecase"
)

// DefaultRedisChannel 預設的 Pub/Sub channel
const DefaultRedisChannel = "ledger.transactions"

// RedisPublisher 以 Redis Pub/Sub 發布交易事件
type RedisPublisher struct {
	rdb     redis.UniversalClient
	channel string
}

func NewRedisPublisher(rdb redis.UniversalClient, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultRedisChannel
	}
	return &RedisPublisher{
		rdb:     rdb,
		channel: channel,
	}
}

// Publish 每筆交易各發布一則訊息
func (p *RedisPublisher) Publish(ctx context.Context, trans ...*domain.Transaction) error {
	var errs []error
	for _, tran := range trans {
		payload, err := json.Marshal(NewTransactionEvent(tran))
		if err != nil {
			errs = append(errs, fmt.Errorf("marshal event %s: %w", tran.ID, err))
			continue
		}
		if err := p.rdb.Publish(ctx, p.channel, payload).Err(); err != nil {
			errs = append(errs, fmt.Errorf("redis publish %s: %w", tran.ID, err))
		}
	}
	return errors.Join(errs...)
}

func (p *RedisPublisher) Close() error {
	return p.rdb.Close()
}

var _ usecase.EventPublisher = (*RedisPublisher)(nil)
