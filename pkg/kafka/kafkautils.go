package kafkautils

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"
)

type KafkaConfig struct {
	BootstrapServers string
	Topics           []TopicConfig
}

type TopicConfig struct {
	Topic             string
	NumPartitions     int
	ReplicationFactor int
	Config            map[string]string
}

// LedgerTopics returns the topics both services expect: the ledger event stream and the
// integrity dead letter queue. Events are partitioned by sender account, so partitions keep
// per-account order.
func LedgerTopics(ledgerTopic, dlqTopic string, partitions int) []TopicConfig {
	if partitions <= 0 {
		partitions = 1
	}
	return []TopicConfig{
		{Topic: ledgerTopic, NumPartitions: partitions, ReplicationFactor: 1, Config: map[string]string{"cleanup.policy": "delete"}},
		{Topic: dlqTopic, NumPartitions: 1, ReplicationFactor: 1},
	}
}

// InitKafkaTopics creates the given topics, retrying for up to 2 minutes while the broker comes up.
// Topics that already exist count as created.
func InitKafkaTopics(logger *zap.Logger, ctx context.Context, cnf KafkaConfig) error {
	config := &kafka.ConfigMap{"bootstrap.servers": cnf.BootstrapServers}
	admin, err := kafka.NewAdminClient(config)
	if err != nil {
		return fmt.Errorf("failed to create admin client: %w", err)
	}
	defer admin.Close()

	topics := make([]kafka.TopicSpecification, 0, len(cnf.Topics))
	for _, topic := range cnf.Topics {
		if topic.Topic == "" {
			continue
		}
		topics = append(topics, kafka.TopicSpecification{
			Topic:             topic.Topic,
			NumPartitions:     topic.NumPartitions,
			ReplicationFactor: topic.ReplicationFactor,
			Config:            topic.Config,
		})
	}
	if len(topics) == 0 {
		return nil
	}

	operation := func() error {
		results, err := admin.CreateTopics(ctx, topics, kafka.SetAdminOperationTimeout(30*time.Second))
		if err != nil {
			return fmt.Errorf("failed to create topics: %w", err)
		}
		for _, result := range results {
			if result.Error.Code() != kafka.ErrNoError && result.Error.Code() != kafka.ErrTopicAlreadyExists {
				return fmt.Errorf("kafka topic %s creation failed: %v", result.Topic, result.Error)
			}
			logger.Info("kafka_topic_ready", zap.String("topic", result.Topic))
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 2 * time.Minute
	return backoff.Retry(operation, backoff.WithContext(b, ctx))
}
