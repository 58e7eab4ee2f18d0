package event

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/usecase"
)

// DefaultKafkaTopic 預設的 topic
const DefaultKafkaTopic = "ledger.transactions"

// messageWriter kafka.Writer 中用到的部分
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher 以 Kafka 發布交易事件
//
// 以帳號作為 key，同一帳戶的事件會進到同一個 partition 並保持順序。
type KafkaPublisher struct {
	writer messageWriter
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	if topic == "" {
		topic = DefaultKafkaTopic
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
		},
	}
}

// Publish 一次批次寫入所有交易
func (p *KafkaPublisher) Publish(ctx context.Context, trans ...*domain.Transaction) error {
	msgs := make([]kafka.Message, 0, len(trans))
	for _, tran := range trans {
		payload, err := json.Marshal(NewTransactionEvent(tran))
		if err != nil {
			return fmt.Errorf("marshal event %s: %w", tran.ID, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(tran.AccountNumber),
			Value: payload,
			Time:  tran.Timestamp,
		})
	}
	if len(msgs) == 0 {
		return nil
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

var _ usecase.EventPublisher = (*KafkaPublisher)(nil)
