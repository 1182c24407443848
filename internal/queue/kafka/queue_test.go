package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	kgo "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/social-harvester/internal/crawler"
)

// memoryLog is a single-partition topic shared by fakeWriter and fakeReader.
type memoryLog struct {
	mu        sync.Mutex
	msgs      []kgo.Message
	next      int
	committed []int64
	writeErr  error
	closed    int
}

func (l *memoryLog) WriteMessages(_ context.Context, msgs ...kgo.Message) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.writeErr != nil {
		return l.writeErr
	}
	for _, m := range msgs {
		m.Offset = int64(len(l.msgs))
		l.msgs = append(l.msgs, m)
	}
	return nil
}

func (l *memoryLog) FetchMessage(ctx context.Context) (kgo.Message, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.next >= len(l.msgs) {
		return kgo.Message{}, context.DeadlineExceeded
	}
	m := l.msgs[l.next]
	l.next++
	return m, nil
}

func (l *memoryLog) CommitMessages(_ context.Context, msgs ...kgo.Message) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range msgs {
		l.committed = append(l.committed, m.Offset)
	}
	return nil
}

func (l *memoryLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed++
	return nil
}

func TestQueueRoundTrip(t *testing.T) {
	log := &memoryLog{}
	q := NewWithClients(log, log, nil)
	ctx := context.Background()

	task := crawler.TaskRequest{
		TaskID:      "task-9",
		TargetID:    "target-1",
		Platform:    "linkedin",
		Offset:      50,
		ForceRepeat: true,
		Trigger:     crawler.TriggerContinuation,
	}
	require.NoError(t, q.Enqueue(ctx, task))
	require.Equal(t, "target-1", string(log.msgs[0].Key))

	got, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, task, got)
	require.Equal(t, []int64{0}, log.committed)
}

func TestQueueSkipsUndecodable(t *testing.T) {
	log := &memoryLog{}
	q := NewWithClients(log, log, nil)
	ctx := context.Background()

	require.NoError(t, log.WriteMessages(ctx, kgo.Message{Value: []byte("not json")}))
	payload, err := json.Marshal(crawler.TaskRequest{TaskID: "task-2"})
	require.NoError(t, err)
	require.NoError(t, log.WriteMessages(ctx, kgo.Message{Value: payload}))

	got, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, "task-2", got.TaskID)
	require.Equal(t, []int64{0, 1}, log.committed)
}

func TestQueueErrors(t *testing.T) {
	log := &memoryLog{writeErr: errors.New("broker down")}
	q := NewWithClients(log, log, nil)

	err := q.Enqueue(context.Background(), crawler.TaskRequest{TaskID: "t"})
	require.ErrorContains(t, err, "broker down")

	_, err = q.Dequeue(context.Background())
	require.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, q.Close())
	require.Equal(t, 2, log.closed)
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{}, nil)
	require.Error(t, err)
}
