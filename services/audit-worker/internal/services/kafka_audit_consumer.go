package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/go-playground/validator/v10"
	"github.com/nimeshabuddhika/resilient-ledger/pkg"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/cache"
	kafkautils "github.com/nimeshabuddhika/resilient-ledger/pkg/kafka"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/models"
	"github.com/nimeshabuddhika/resilient-ledger/services/audit-worker/configs"
	"github.com/nimeshabuddhika/resilient-ledger/services/audit-worker/internal/observability"
	"go.uber.org/zap"
)

// KafkaAuditHandler consumes ledger events and audits them.
type KafkaAuditHandler interface {
	Start() func()
}

// dlqProducer is the part of *kafka.Producer used for the integrity DLQ.
type dlqProducer interface {
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
	Flush(timeoutMs int) int
	Close()
}

// KafkaAuditConfig holds configuration and dependencies for the ledger event consumer.
type KafkaAuditConfig struct {
	Context context.Context
	Logger  *zap.Logger
	Config  *configs.Config
	Auditor Auditor
	Seen    cache.SeenSet // redeliveries of an audited digest are skipped

	// internal initialization
	consumer *kafka.Consumer
	dlq      dlqProducer
	commits  *kafkautils.CommitManager
	validate *validator.Validate
	auditSem chan struct{}
}

// NewKafkaAuditConsumer sets up the consumer, the DLQ producer and the commit manager.
func NewKafkaAuditConsumer(cfg KafkaAuditConfig) (KafkaAuditHandler, error) {
	consumer, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":  cfg.Config.KafkaBrokers,
		"group.id":           cfg.Config.KafkaAuditConsumerGroup,
		"auto.offset.reset":  "earliest",
		"enable.auto.commit": false, // offsets go through the commit manager
	})
	if err != nil {
		return nil, err
	}
	producer, err := kafkautils.NewProducer(cfg.Logger, cfg.Config.KafkaBrokers)
	if err != nil {
		_ = consumer.Close()
		return nil, err
	}

	cfg.consumer = consumer
	cfg.dlq = producer
	cfg.commits = kafkautils.NewCommitManager(consumer, cfg.Logger)
	cfg.validate = validator.New()
	cfg.auditSem = make(chan struct{}, cfg.Config.MaxConcurrentAudits)
	return &cfg, nil
}

// Start runs the read loop in a goroutine and returns its cleanup function.
func (k *KafkaAuditConfig) Start() func() {
	err := k.consumer.SubscribeTopics([]string{k.Config.KafkaLedgerTopic}, k.onRebalance)
	if err != nil {
		k.Logger.Fatal("kafka_subscribe_failed", zap.Error(err))
	}
	k.Logger.Info("kafka_consumer_listening",
		zap.String("topic", k.Config.KafkaLedgerTopic),
		zap.String("group", k.Config.KafkaAuditConsumerGroup))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if k.Context.Err() != nil {
				return
			}
			msg, err := k.consumer.ReadMessage(time.Second)
			if err != nil {
				var kerr kafka.Error
				if errors.As(err, &kerr) && kerr.IsTimeout() {
					continue
				}
				k.Logger.Error("kafka_read_failed", zap.Error(err))
				continue
			}
			observability.EventsReceived.WithLabelValues(*msg.TopicPartition.Topic).Inc()

			k.auditSem <- struct{}{}
			go func(m *kafka.Message) {
				defer func() { <-k.auditSem }()
				k.processMessage(m)
			}(msg)
		}
	}()

	return func() {
		<-done
		// wait for in-flight audits
		for range cap(k.auditSem) {
			k.auditSem <- struct{}{}
		}
		k.dlq.Flush(5000)
		k.dlq.Close()
		if err := k.consumer.Close(); err != nil {
			k.Logger.Error("kafka_consumer_close_failed", zap.Error(err))
		}
		k.Logger.Info("kafka_consumer_closed")
	}
}

// onRebalance seeds the commit manager from the group's committed offsets.
func (k *KafkaAuditConfig) onRebalance(c *kafka.Consumer, ev kafka.Event) error {
	assigned, ok := ev.(kafka.AssignedPartitions)
	if !ok {
		return nil
	}
	committed, err := c.Committed(assigned.Partitions, 5000)
	if err != nil {
		k.Logger.Warn("kafka_committed_lookup_failed", zap.Error(err))
		return nil
	}
	for _, p := range committed {
		if p.Topic != nil && p.Offset >= 0 {
			k.commits.Seed(*p.Topic, p.Partition, int64(p.Offset))
		}
	}
	return nil
}

// processMessage audits one event. Every path ends in an ack so the partition keeps moving;
// anything that is not a clean match is parked on the DLQ.
func (k *KafkaAuditConfig) processMessage(msg *kafka.Message) {
	select {
	case <-k.Context.Done():
		return // left uncommitted; redelivered after restart
	default:
	}
	observability.InflightAudits.Inc()
	defer observability.InflightAudits.Dec()

	var ev models.LedgerEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		k.Logger.Error("ledger_event_decode_failed", zap.Error(err))
		k.sendToDLQ(msg, ev, ReasonInvalidEvent, err.Error())
		k.commits.Ack(string(msg.Key), msg)
		return
	}
	if err := k.validate.Struct(&ev); err != nil {
		k.Logger.Error("ledger_event_invalid", zap.String(pkg.Digest, ev.Digest), zap.Error(err))
		k.sendToDLQ(msg, ev, ReasonInvalidEvent, err.Error())
		k.commits.Ack(ev.Digest, msg)
		return
	}

	if k.Seen != nil {
		fresh, err := k.Seen.MarkSeen(k.Context, ev.Digest)
		if err != nil {
			k.Logger.Warn("seen_set_unavailable", zap.String(pkg.Digest, ev.Digest), zap.Error(err))
		} else if !fresh {
			observability.DuplicatesSkipped.Inc()
			k.commits.Ack(ev.Digest, msg)
			return
		}
	}

	start := time.Now()
	verdict, err := k.Auditor.Audit(k.Context, ev)
	observability.AuditLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		k.Logger.Error("ledger_audit_failed",
			zap.String(pkg.TraceId, ev.TraceID),
			zap.String(pkg.Digest, ev.Digest),
			zap.Error(err))
		if k.Seen != nil {
			// a replay from the DLQ should be audited again
			_ = k.Seen.Forget(k.Context, ev.Digest)
		}
		k.sendToDLQ(msg, ev, ReasonAuditError, err.Error())
		k.commits.Ack(ev.Digest, msg)
		return
	}

	if !verdict.Match {
		observability.IntegrityViolations.WithLabelValues(verdict.Reason).Inc()
		k.Logger.Error("ledger_integrity_violation",
			zap.String(pkg.TraceId, ev.TraceID),
			zap.String(pkg.Digest, ev.Digest),
			zap.String("transaction_id", ev.TransactionID),
			zap.String("reason", verdict.Reason),
			zap.Strings("fields", verdict.Fields))
		k.sendToDLQ(msg, ev, verdict.Reason, verdict.String())
		k.commits.Ack(ev.Digest, msg)
		return
	}

	observability.EventsVerified.WithLabelValues(string(ev.Type)).Inc()
	k.Logger.Info("ledger_event_audited",
		zap.String(pkg.TraceId, ev.TraceID),
		zap.String(pkg.Digest, ev.Digest),
		zap.String("transaction_id", ev.TransactionID),
		zap.String("sender_account", ev.SenderNumber),
		zap.String("receiver_account", ev.ReceiverNumber),
		zap.String("amount", ev.Amount),
		zap.String("type", string(ev.Type)))
	k.commits.Ack(ev.Digest, msg)
}

// dlqEnvelope is what lands on the integrity DLQ.
type dlqEnvelope struct {
	Event         models.LedgerEvent `json:"event"`
	Raw           string             `json:"raw,omitempty"`
	FailureReason string             `json:"failureReason"`
	Error         string             `json:"error"`
	FailedAt      string             `json:"failedAt"`
}

func (k *KafkaAuditConfig) sendToDLQ(msg *kafka.Message, ev models.LedgerEvent, reason, errMsg string) {
	envelope := dlqEnvelope{
		Event:         ev,
		FailureReason: reason,
		Error:         errMsg,
		FailedAt:      time.Now().UTC().Format(time.RFC3339Nano),
	}
	if reason == ReasonInvalidEvent {
		envelope.Raw = string(msg.Value)
	}
	b, err := json.Marshal(envelope)
	if err != nil {
		k.Logger.Error("dlq_marshal_failed", zap.String(pkg.Digest, ev.Digest), zap.Error(err))
		return
	}

	err = k.dlq.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &k.Config.KafkaIntegrityDLQTopic,
			Partition: kafka.PartitionAny,
		},
		Key:     msg.Key,
		Value:   b,
		Headers: msg.Headers,
	}, nil)
	if err != nil {
		k.Logger.Error("dlq_produce_failed", zap.String(pkg.Digest, ev.Digest), zap.Error(err))
		return
	}
	observability.DLQPublished.WithLabelValues(reason).Inc()
	k.Logger.Info("sent_to_integrity_dlq",
		zap.String(pkg.Digest, ev.Digest),
		zap.String("reason", reason))
}
