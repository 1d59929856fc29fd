package kafka

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gamedex/internal/config"
	"github.com/gamedex/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingHandler struct {
	mu       sync.Mutex
	batches  [][]domain.CollectionCommand
	failures int
}

func (h *recordingHandler) ApplyCommands(ctx context.Context, commands []domain.CollectionCommand) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if h.failures > 0 {
		h.failures--
		return 0, domain.ErrCollectionNotReady
	}
	batch := make([]domain.CollectionCommand, len(commands))
	copy(batch, commands)
	h.batches = append(h.batches, batch)
	return len(commands), nil
}

func (h *recordingHandler) Batches() [][]domain.CollectionCommand {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.batches
}

type fakeSession struct {
	ctx    context.Context
	mu     sync.Mutex
	marked []int64
}

func (s *fakeSession) Claims() map[string][]int32 { return nil }
func (s *fakeSession) MemberID() string           { return "member" }
func (s *fakeSession) GenerationID() int32        { return 1 }
func (s *fakeSession) MarkOffset(topic string, partition int32, offset int64, metadata string) {
}
func (s *fakeSession) Commit() {}
func (s *fakeSession) ResetOffset(topic string, partition int32, offset int64, metadata string) {
}
func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, metadata string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marked = append(s.marked, msg.Offset)
}
func (s *fakeSession) Context() context.Context { return s.ctx }

func (s *fakeSession) Marked() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.marked
}

type fakeClaim struct {
	messages chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Topic() string                            { return "collection-commands" }
func (c *fakeClaim) Partition() int32                         { return 0 }
func (c *fakeClaim) InitialOffset() int64                     { return 0 }
func (c *fakeClaim) HighWaterMarkOffset() int64               { return 0 }
func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.messages }

func commandMessage(t *testing.T, offset int64, cmd domain.CollectionCommand) *sarama.ConsumerMessage {
	t.Helper()
	data, err := json.Marshal(cmd)
	require.NoError(t, err)
	return &sarama.ConsumerMessage{Offset: offset, Value: data}
}

func TestConsumeClaimBatchesCommands(t *testing.T) {
	cfg := &config.KafkaConfig{BatchSize: 2, BatchTimeout: time.Hour, RetryAttempts: 1}
	handler := &recordingHandler{}
	consumer := newConsumer(cfg, handler, nil, testLogger())

	session := &fakeSession{ctx: context.Background()}
	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage, 8)}

	claim.messages <- commandMessage(t, 0, domain.CollectionCommand{Action: domain.CommandAdd, GameID: 1942})
	claim.messages <- &sarama.ConsumerMessage{Offset: 1, Value: []byte("not json")}
	claim.messages <- commandMessage(t, 2, domain.CollectionCommand{Action: "rate", GameID: 1942})
	claim.messages <- commandMessage(t, 3, domain.CollectionCommand{Action: domain.CommandRemove, GameID: 472})
	claim.messages <- commandMessage(t, 4, domain.CollectionCommand{Action: domain.CommandAdd, GameID: 1020})
	close(claim.messages)

	h := &consumerGroupHandler{consumer: consumer, ready: make(chan bool)}
	require.NoError(t, h.ConsumeClaim(session, claim))

	batches := handler.Batches()
	require.Len(t, batches, 2)
	assert.Equal(t, []domain.CollectionCommand{
		{Action: domain.CommandAdd, GameID: 1942},
		{Action: domain.CommandRemove, GameID: 472},
	}, batches[0])
	assert.Equal(t, int64(1020), batches[1][0].GameID)
	assert.Equal(t, []int64{3, 4}, session.Marked())
}

func TestConsumerRetriesWhileNotReady(t *testing.T) {
	cfg := &config.KafkaConfig{BatchSize: 10, BatchTimeout: time.Hour, RetryAttempts: 3, RetryDelay: time.Millisecond}
	handler := &recordingHandler{failures: 2}
	consumer := newConsumer(cfg, handler, nil, testLogger())

	assert.True(t, consumer.apply([]domain.CollectionCommand{{Action: domain.CommandAdd, GameID: 7346}}))
	require.Len(t, handler.Batches(), 1)

	handler.failures = 5
	assert.False(t, consumer.apply([]domain.CollectionCommand{{Action: domain.CommandAdd, GameID: 7346}}))
	assert.Len(t, handler.Batches(), 1)
}

func TestConsumeClaimLeavesFailedBatchUnmarked(t *testing.T) {
	cfg := &config.KafkaConfig{BatchSize: 10, BatchTimeout: time.Hour, RetryAttempts: 2, RetryDelay: time.Millisecond}
	handler := &recordingHandler{failures: 100}
	consumer := newConsumer(cfg, handler, nil, testLogger())

	session := &fakeSession{ctx: context.Background()}
	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage, 2)}
	claim.messages <- commandMessage(t, 0, domain.CollectionCommand{Action: domain.CommandAdd, GameID: 1942})
	close(claim.messages)

	h := &consumerGroupHandler{consumer: consumer, ready: make(chan bool)}
	err := h.ConsumeClaim(session, claim)
	assert.ErrorIs(t, err, ErrBatchNotApplied)
	assert.Empty(t, handler.Batches())
	assert.Empty(t, session.Marked())
}

func TestConsumeClaimMarksInvalidOnlyBatch(t *testing.T) {
	cfg := &config.KafkaConfig{BatchSize: 10, BatchTimeout: time.Hour, RetryAttempts: 1}
	handler := &recordingHandler{}
	consumer := newConsumer(cfg, handler, nil, testLogger())

	session := &fakeSession{ctx: context.Background()}
	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage, 2)}
	claim.messages <- &sarama.ConsumerMessage{Offset: 0, Value: []byte("{")}
	claim.messages <- commandMessage(t, 1, domain.CollectionCommand{Action: domain.CommandAdd})
	close(claim.messages)

	h := &consumerGroupHandler{consumer: consumer, ready: make(chan bool)}
	require.NoError(t, h.ConsumeClaim(session, claim))
	assert.Empty(t, handler.Batches())
	assert.Equal(t, []int64{1}, session.Marked())
}

func TestConsumeClaimAppliesPendingBatchOnShutdown(t *testing.T) {
	cfg := &config.KafkaConfig{BatchSize: 10, BatchTimeout: time.Hour, RetryAttempts: 1}
	handler := &recordingHandler{}
	consumer := newConsumer(cfg, handler, nil, testLogger())

	sessionCtx, cancelSession := context.WithCancel(context.Background())
	session := &fakeSession{ctx: sessionCtx}
	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage)}

	h := &consumerGroupHandler{consumer: consumer, ready: make(chan bool)}
	done := make(chan error, 1)
	go func() { done <- h.ConsumeClaim(session, claim) }()

	claim.messages <- commandMessage(t, 7, domain.CollectionCommand{Action: domain.CommandAdd, GameID: 1020})

	// Stop cancels the consumer before the session ends
	consumer.cancel()
	cancelSession()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("ConsumeClaim did not return after shutdown")
	}

	batches := handler.Batches()
	require.Len(t, batches, 1)
	assert.Equal(t, int64(1020), batches[0][0].GameID)
	assert.Equal(t, []int64{7}, session.Marked())
}

func TestEventPublisherKeysByGameID(t *testing.T) {
	saramaConfig := mocks.NewTestConfig()
	producer := mocks.NewAsyncProducer(t, saramaConfig)

	var got *sarama.ProducerMessage
	producer.ExpectInputWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		got = msg
		return nil
	})

	publisher := newEventPublisher(producer, "collection-events", testLogger())
	publisher.CollectionChanged(context.Background(), domain.CollectionEvent{
		Type:   domain.EventGameAdded,
		GameID: 1942,
		Name:   "The Witcher 3: Wild Hunt",
		Count:  1,
	})
	require.NoError(t, publisher.Close())

	require.NotNil(t, got)
	assert.Equal(t, "collection-events", got.Topic)
	key, err := got.Key.Encode()
	require.NoError(t, err)
	assert.Equal(t, "1942", string(key))

	value, err := got.Value.Encode()
	require.NoError(t, err)
	var event domain.CollectionEvent
	require.NoError(t, json.Unmarshal(value, &event))
	assert.Equal(t, domain.EventGameAdded, event.Type)

	// events after close are dropped
	publisher.CollectionChanged(context.Background(), domain.CollectionEvent{GameID: 1})
}
