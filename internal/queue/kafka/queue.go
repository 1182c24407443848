// Package kafka carries crawl tasks over a Kafka topic so schedulers and
// workers can run in separate processes.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	kgo "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/JakeFAU/social-harvester/internal/crawler"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kgo.Message) error
	Close() error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kgo.Message, error)
	CommitMessages(ctx context.Context, msgs ...kgo.Message) error
	Close() error
}

// Config locates the topic.
type Config struct {
	Brokers []string
	Topic   string
	GroupID string
}

// Queue implements crawler.Queue. Messages are committed as soon as they are
// fetched; a task lost to a crash is retried by the next scheduler tick.
type Queue struct {
	writer messageWriter
	reader messageReader
	logger *zap.Logger
}

var _ crawler.Queue = (*Queue)(nil)

// New builds a Queue backed by a kafka-go writer and consumer-group reader.
func New(cfg Config, logger *zap.Logger) (*Queue, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, errors.New("kafka queue requires brokers and topic")
	}
	if cfg.GroupID == "" {
		cfg.GroupID = "harvester-workers"
	}
	writer := &kgo.Writer{
		Addr:                   kgo.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kgo.Hash{},
		AllowAutoTopicCreation: false,
	}
	reader := kgo.NewReader(kgo.ReaderConfig{
		Brokers: cfg.Brokers,
		Topic:   cfg.Topic,
		GroupID: cfg.GroupID,
	})
	return NewWithClients(writer, reader, logger), nil
}

// NewWithClients builds a Queue from custom clients (tests).
func NewWithClients(writer messageWriter, reader messageReader, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{writer: writer, reader: reader, logger: logger}
}

// Enqueue publishes task keyed by target so one target's pages share a partition.
func (q *Queue) Enqueue(ctx context.Context, task crawler.TaskRequest) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}
	msg := kgo.Message{
		Key:   []byte(task.TargetID),
		Value: payload,
		Time:  time.Now().UTC(),
	}
	if err := q.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write task %s: %w", task.TaskID, err)
	}
	return nil
}

// Dequeue fetches and commits the next decodable task. Undecodable messages
// are committed and dropped.
func (q *Queue) Dequeue(ctx context.Context) (crawler.TaskRequest, error) {
	for {
		msg, err := q.reader.FetchMessage(ctx)
		if err != nil {
			return crawler.TaskRequest{}, fmt.Errorf("fetch task: %w", err)
		}
		if err := q.reader.CommitMessages(ctx, msg); err != nil {
			return crawler.TaskRequest{}, fmt.Errorf("commit task: %w", err)
		}
		var task crawler.TaskRequest
		if err := json.Unmarshal(msg.Value, &task); err != nil {
			q.logger.Warn("dropping undecodable task",
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
			continue
		}
		return task, nil
	}
}

// Close shuts down both clients.
func (q *Queue) Close() error {
	werr := q.writer.Close()
	rerr := q.reader.Close()
	if werr != nil {
		return fmt.Errorf("close kafka writer: %w", werr)
	}
	if rerr != nil {
		return fmt.Errorf("close kafka reader: %w", rerr)
	}
	return nil
}
