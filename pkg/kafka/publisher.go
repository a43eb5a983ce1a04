package kafkautils

import (
	"context"
	"encoding/json"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/nimeshabuddhika/resilient-ledger/pkg"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/models"
	"go.uber.org/zap"
)

// EventPublisher emits one LedgerEvent per committed transaction record.
type EventPublisher interface {
	PublishLedgerEvent(ctx context.Context, record models.TransactionRecord) error
	Close()
}

type ProducerConfig struct {
	Brokers    string
	Topic      string
	Partitions uint32
}

type KafkaEventPublisher struct {
	logger   *zap.Logger
	producer *kafka.Producer
	cnf      ProducerConfig
}

// NewKafkaEventPublisher creates an idempotent producer and starts draining its delivery reports.
func NewKafkaEventPublisher(logger *zap.Logger, cnf ProducerConfig) (*KafkaEventPublisher, error) {
	p, err := NewProducer(logger, cnf.Brokers)
	if err != nil {
		return nil, err
	}
	if cnf.Partitions == 0 {
		cnf.Partitions = 1
	}
	return &KafkaEventPublisher{logger: logger, producer: p, cnf: cnf}, nil
}

// NewProducer returns a producer that waits for all replicas and never writes a message twice.
func NewProducer(logger *zap.Logger, brokers string) (*kafka.Producer, error) {
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":  brokers,
		"acks":               "all",
		"enable.idempotence": "true",
		"retries":            "3",
	})
	if err != nil {
		return nil, err
	}
	logger.Info("kafka_producer_created", zap.String("brokers", brokers))
	go handleDeliveryReports(logger, p)
	return p, nil
}

// PublishLedgerEvent produces asynchronously. Records from one sender land on one partition,
// so consumers see a sender's history in commit order.
func (k *KafkaEventPublisher) PublishLedgerEvent(ctx context.Context, record models.TransactionRecord) error {
	msgBytes, err := json.Marshal(record.ToLedgerEvent(pkg.TraceIDFromContext(ctx)))
	if err != nil {
		return err
	}
	partition := int32(record.SenderID.ID() % k.cnf.Partitions)
	return k.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &k.cnf.Topic,
			Partition: partition,
		},
		Key:   []byte(record.Digest),
		Value: msgBytes,
		Headers: []kafka.Header{
			{Key: pkg.HeaderTraceId, Value: []byte(pkg.TraceIDFromContext(ctx))},
		},
	}, nil)
}

// Close flushes pending messages for up to 5s.
func (k *KafkaEventPublisher) Close() {
	if remaining := k.producer.Flush(5000); remaining > 0 {
		k.logger.Warn("kafka_flush_incomplete", zap.Int("remaining", remaining))
	}
	k.producer.Close()
}

// NoopPublisher drops events. Used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishLedgerEvent(context.Context, models.TransactionRecord) error { return nil }
func (NoopPublisher) Close()                                                         {}

func handleDeliveryReports(logger *zap.Logger, p *kafka.Producer) {
	for e := range p.Events() {
		switch ev := e.(type) {
		case *kafka.Message:
			if ev.TopicPartition.Error != nil {
				logger.Error("kafka_delivery_failed",
					zap.String("key", string(ev.Key)),
					zap.Error(ev.TopicPartition.Error))
			}
		}
	}
}
