package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ticket-workflow/internal/model"
	"github.com/sells-group/ticket-workflow/internal/resilience"
)

type mockWriter struct {
	mock.Mock
}

func (m *mockWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

func (m *mockWriter) Close() error {
	return m.Called().Error(0)
}

func newTestPublisher(w messageWriter) *KafkaPublisher {
	return &KafkaPublisher{
		writer: w,
		retry:  resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, Multiplier: 1},
	}
}

func sampleResult() *model.WorkflowResult {
	return &model.WorkflowResult{
		RunID:          "run-1",
		TicketID:       "ticket-1",
		Classification: model.ClassificationResult{Category: model.CategoryBilling},
	}
}

func TestKafkaPublisher_Publish(t *testing.T) {
	w := new(mockWriter)
	var sent []kafka.Message
	w.On("WriteMessages", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).([]kafka.Message) }).
		Return(nil).Once()

	require.NoError(t, newTestPublisher(w).Publish(context.Background(), sampleResult()))

	require.Len(t, sent, 1)
	assert.Equal(t, "run-1", string(sent[0].Key))
	var decoded model.WorkflowResult
	require.NoError(t, json.Unmarshal(sent[0].Value, &decoded))
	assert.Equal(t, "ticket-1", decoded.TicketID)
	assert.Equal(t, kafka.Header{Key: "category", Value: []byte("billing")}, sent[0].Headers[1])
	w.AssertExpectations(t)
}

func TestKafkaPublisher_RetriesTemporary(t *testing.T) {
	w := new(mockWriter)
	w.On("WriteMessages", mock.Anything, mock.Anything).Return(kafka.LeaderNotAvailable).Once()
	w.On("WriteMessages", mock.Anything, mock.Anything).Return(nil).Once()

	require.NoError(t, newTestPublisher(w).Publish(context.Background(), sampleResult()))
	w.AssertNumberOfCalls(t, "WriteMessages", 2)
}

func TestKafkaPublisher_PermanentError(t *testing.T) {
	w := new(mockWriter)
	w.On("WriteMessages", mock.Anything, mock.Anything).Return(errors.New("topic authorization failed"))

	err := newTestPublisher(w).Publish(context.Background(), sampleResult())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run-1")
	w.AssertNumberOfCalls(t, "WriteMessages", 1)
}

func TestKafkaPublisher_NilResult(t *testing.T) {
	w := new(mockWriter)
	require.NoError(t, newTestPublisher(w).Publish(context.Background(), nil))
	w.AssertNotCalled(t, "WriteMessages", mock.Anything, mock.Anything)
}

func TestKafkaPublisher_Close(t *testing.T) {
	w := new(mockWriter)
	w.On("Close").Return(nil)
	require.NoError(t, newTestPublisher(w).Close())
	w.AssertExpectations(t)
}

func TestNewKafkaPublisher(t *testing.T) {
	p := NewKafkaPublisher([]string{"localhost:9092"}, "results")
	kw, ok := p.writer.(*kafka.Writer)
	require.True(t, ok)
	assert.Equal(t, "results", kw.Topic)
	assert.Equal(t, 3, p.retry.MaxAttempts)
}

func TestNoop(t *testing.T) {
	var p Publisher = Noop{}
	assert.NoError(t, p.Publish(context.Background(), sampleResult()))
	assert.NoError(t, p.Close())
}
