package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/go-playground/validator/v10"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/cache"
	kafkautils "github.com/nimeshabuddhika/resilient-ledger/pkg/kafka"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/models"
	"github.com/nimeshabuddhika/resilient-ledger/services/audit-worker/configs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const ledgerTopic = "ledger.events"

type fakeDLQ struct {
	mu       sync.Mutex
	messages []*kafka.Message
}

func (f *fakeDLQ) Produce(msg *kafka.Message, _ chan kafka.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msg)
	return nil
}

func (f *fakeDLQ) Flush(int) int { return 0 }
func (f *fakeDLQ) Close()        {}

func (f *fakeDLQ) envelopes(t *testing.T) []dlqEnvelope {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]dlqEnvelope, 0, len(f.messages))
	for _, m := range f.messages {
		var e dlqEnvelope
		require.NoError(t, json.Unmarshal(m.Value, &e))
		out = append(out, e)
	}
	return out
}

type offsetRecorder struct {
	mu      sync.Mutex
	offsets []int64
}

func (o *offsetRecorder) CommitOffsets(tps []kafka.TopicPartition) ([]kafka.TopicPartition, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, tp := range tps {
		o.offsets = append(o.offsets, int64(tp.Offset))
	}
	return tps, nil
}

type stubAuditor struct {
	verdict Verdict
	err     error
	calls   int
}

func (s *stubAuditor) Audit(context.Context, models.LedgerEvent) (Verdict, error) {
	s.calls++
	return s.verdict, s.err
}

type harness struct {
	consumer *KafkaAuditConfig
	dlq      *fakeDLQ
	commits  *kafkautils.CommitManager
	auditor  *stubAuditor
	seen     *cache.LocalSeenSet
}

func newHarness(t *testing.T, ctx context.Context, auditor *stubAuditor) harness {
	t.Helper()
	dlq := &fakeDLQ{}
	commits := kafkautils.NewCommitManager(&offsetRecorder{}, zap.NewNop())
	commits.Seed(ledgerTopic, 0, 0)
	seen := cache.NewLocalSeenSet(time.Hour)
	return harness{
		consumer: &KafkaAuditConfig{
			Context:  ctx,
			Logger:   zap.NewNop(),
			Config:   &configs.Config{KafkaLedgerTopic: ledgerTopic, KafkaIntegrityDLQTopic: "ledger.integrity.dlq", MaxConcurrentAudits: 1},
			Auditor:  auditor,
			Seen:     seen,
			dlq:      dlq,
			commits:  commits,
			validate: validator.New(),
			auditSem: make(chan struct{}, 1),
		},
		dlq:     dlq,
		commits: commits,
		auditor: auditor,
		seen:    seen,
	}
}

func eventMessage(t *testing.T, offset int64, ev models.LedgerEvent) *kafka.Message {
	t.Helper()
	b, err := json.Marshal(ev)
	require.NoError(t, err)
	return rawMessage(offset, b)
}

func rawMessage(offset int64, value []byte) *kafka.Message {
	topic := ledgerTopic
	return &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: 0, Offset: kafka.Offset(offset)},
		Key:            []byte("1234567890"),
		Value:          value,
		Headers:        []kafka.Header{{Key: "trace_id", Value: []byte("trace-1")}},
	}
}

func TestProcessMessage_MatchIsCommitted(t *testing.T) {
	h := newHarness(t, context.Background(), &stubAuditor{verdict: Verdict{Match: true}})
	ev := sampleRecord().ToLedgerEvent("trace-1")

	h.consumer.processMessage(eventMessage(t, 0, ev))

	assert.Empty(t, h.dlq.messages)
	assert.Equal(t, int64(0), h.commits.Committed(ledgerTopic, 0))
	assert.Equal(t, 1, h.auditor.calls)
}

func TestProcessMessage_InvalidPayloads(t *testing.T) {
	h := newHarness(t, context.Background(), &stubAuditor{verdict: Verdict{Match: true}})

	h.consumer.processMessage(rawMessage(0, []byte("{not json")))
	incomplete := sampleRecord().ToLedgerEvent("")
	incomplete.Digest = "short"
	h.consumer.processMessage(eventMessage(t, 1, incomplete))

	envs := h.dlq.envelopes(t)
	require.Len(t, envs, 2)
	for _, e := range envs {
		assert.Equal(t, ReasonInvalidEvent, e.FailureReason)
		assert.NotEmpty(t, e.Raw)
		assert.NotEmpty(t, e.Error)
	}
	assert.Equal(t, "ledger.integrity.dlq", *h.dlq.messages[0].TopicPartition.Topic)
	assert.Equal(t, []byte("1234567890"), h.dlq.messages[0].Key)
	assert.Zero(t, h.auditor.calls)
	assert.Equal(t, int64(1), h.commits.Committed(ledgerTopic, 0))
}

func TestProcessMessage_MismatchGoesToDLQ(t *testing.T) {
	h := newHarness(t, context.Background(), &stubAuditor{verdict: Verdict{Reason: ReasonFieldMismatch, Fields: []string{"amount"}}})
	ev := sampleRecord().ToLedgerEvent("trace-1")

	h.consumer.processMessage(eventMessage(t, 0, ev))

	envs := h.dlq.envelopes(t)
	require.Len(t, envs, 1)
	assert.Equal(t, ReasonFieldMismatch, envs[0].FailureReason)
	assert.Equal(t, "field_mismatch [amount]", envs[0].Error)
	assert.Equal(t, ev.Digest, envs[0].Event.Digest)
	assert.Empty(t, envs[0].Raw)
	assert.Equal(t, "trace_id", h.dlq.messages[0].Headers[0].Key)
	assert.Equal(t, int64(0), h.commits.Committed(ledgerTopic, 0))
}

func TestProcessMessage_DuplicateSkipped(t *testing.T) {
	h := newHarness(t, context.Background(), &stubAuditor{verdict: Verdict{Match: true}})
	ev := sampleRecord().ToLedgerEvent("")

	h.consumer.processMessage(eventMessage(t, 0, ev))
	h.consumer.processMessage(eventMessage(t, 1, ev))

	assert.Equal(t, 1, h.auditor.calls)
	assert.Empty(t, h.dlq.messages)
	assert.Equal(t, int64(1), h.commits.Committed(ledgerTopic, 0))
}

func TestProcessMessage_AuditErrorForgetsDigest(t *testing.T) {
	h := newHarness(t, context.Background(), &stubAuditor{err: errors.New("db unavailable")})
	ev := sampleRecord().ToLedgerEvent("")

	h.consumer.processMessage(eventMessage(t, 0, ev))

	envs := h.dlq.envelopes(t)
	require.Len(t, envs, 1)
	assert.Equal(t, ReasonAuditError, envs[0].FailureReason)
	assert.Equal(t, "db unavailable", envs[0].Error)

	fresh, err := h.seen.MarkSeen(context.Background(), ev.Digest)
	require.NoError(t, err)
	assert.True(t, fresh, "a failed audit must not mark the digest as seen")
}

func TestProcessMessage_CancelledLeavesOffset(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h := newHarness(t, ctx, &stubAuditor{verdict: Verdict{Match: true}})

	h.consumer.processMessage(eventMessage(t, 0, sampleRecord().ToLedgerEvent("")))

	assert.Zero(t, h.auditor.calls)
	assert.Equal(t, int64(-1), h.commits.Committed(ledgerTopic, 0))
}
