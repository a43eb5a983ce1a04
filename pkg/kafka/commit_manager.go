package kafkautils

import (
	"sync"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/nimeshabuddhika/resilient-ledger/pkg"
	"go.uber.org/zap"
)

// Committer is the slice of *kafka.Consumer the commit manager needs.
type Committer interface {
	CommitOffsets(offsets []kafka.TopicPartition) ([]kafka.TopicPartition, error)
}

type tp struct {
	topic     string
	partition int32
}

// CommitManager commits offsets only once every lower offset on the partition has been acked,
// so out-of-order completion by concurrent handlers never skips an unprocessed message.
type CommitManager struct {
	mu        sync.Mutex
	high      map[tp]int64              // last committed offset per partition
	done      map[tp]map[int64]struct{} // processed offsets not yet committed
	committer Committer
	log       *zap.Logger
}

func NewCommitManager(c Committer, l *zap.Logger) *CommitManager {
	return &CommitManager{
		high:      make(map[tp]int64),
		done:      make(map[tp]map[int64]struct{}),
		committer: c,
		log:       l,
	}
}

// Seed sets the starting point of a partition, typically on assignment.
// offset is the first offset the consumer will read.
func (m *CommitManager) Seed(topic string, partition int32, offset int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.high[tp{topic: topic, partition: partition}] = offset - 1
}

// Ack marks msg processed. digest identifies the ledger record in logs.
func (m *CommitManager) Ack(digest string, msg *kafka.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := tp{topic: *msg.TopicPartition.Topic, partition: msg.TopicPartition.Partition}
	off := int64(msg.TopicPartition.Offset)

	if m.done[key] == nil {
		m.done[key] = map[int64]struct{}{}
	}
	m.done[key][off] = struct{}{}

	high, seeded := m.high[key]
	if !seeded {
		// Unseeded partition: assume the first ack is the first message read.
		high = off - 1
		m.high[key] = high
	}
	next := high
	for {
		if _, ok := m.done[key][next+1]; !ok {
			break
		}
		next++
	}
	if next <= high {
		return
	}

	toCommit := kafka.TopicPartition{Topic: &key.topic, Partition: key.partition, Offset: kafka.Offset(next + 1)}
	if _, err := m.committer.CommitOffsets([]kafka.TopicPartition{toCommit}); err != nil {
		m.log.Error("offset_commit_failed",
			zap.String(pkg.Digest, digest),
			zap.String("topic", key.topic),
			zap.Int32("partition", key.partition),
			zap.Int64("attempted_offset", next), zap.Error(err))
		return
	}
	for o := high + 1; o <= next; o++ {
		delete(m.done[key], o)
	}
	m.high[key] = next
	m.log.Debug("offset_committed",
		zap.String(pkg.Digest, digest),
		zap.String("topic", key.topic),
		zap.Int32("partition", key.partition),
		zap.Int64("offset", next))
}

// Committed returns the last committed offset for the partition, or -1.
func (m *CommitManager) Committed(topic string, partition int32) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	off, ok := m.high[tp{topic: topic, partition: partition}]
	if !ok {
		return -1
	}
	return off
}
