package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/openride/dispatch/pkg/logger"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	// ackTimeout bounds how long a produce waits for broker acknowledgement.
	ackTimeout = 10 * time.Second

	sessionTimeout  = 30 * time.Second
	maxPollInterval = 5 * time.Minute

	topicPartitions   = 3
	replicationFactor = 1
)

// HandlerFunc processes one consumed record. Returning an error leaves the
// offset uncommitted so the record is redelivered after a rebalance.
type HandlerFunc func(ctx context.Context, key, value []byte) error

// EnsureTopics creates the dispatch topics on the broker if they do not
// already exist.
func EnsureTopics(brokers []string) error {
	conn, err := kafka.Dial("tcp", brokers[0])
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("resolve controller: %w", err)
	}

	ctrl, err := kafka.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("dial controller: %w", err)
	}
	defer ctrl.Close()

	configs := make([]kafka.TopicConfig, 0, len(AllTopics))
	for _, topic := range AllTopics {
		configs = append(configs, kafka.TopicConfig{
			Topic:             topic,
			NumPartitions:     topicPartitions,
			ReplicationFactor: replicationFactor,
		})
	}

	if err := ctrl.CreateTopics(configs...); err != nil && !errors.Is(err, kafka.TopicAlreadyExists) {
		return fmt.Errorf("create topics: %w", err)
	}

	logger.Info("kafka topics ready", zap.Strings("topics", AllTopics))
	return nil
}

// Producer publishes keyed JSON records. The underlying writer is rebuilt on
// the next send after a failure.
type Producer struct {
	brokers []string

	mu     sync.Mutex
	writer *kafka.Writer
}

// NewProducer creates a producer for the given brokers.
func NewProducer(brokers []string) *Producer {
	return &Producer{brokers: brokers}
}

func (p *Producer) getWriter() *kafka.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writer == nil {
		p.writer = &kafka.Writer{
			Addr:         kafka.TCP(p.brokers...),
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			MaxAttempts:  3,
			WriteTimeout: ackTimeout,
			BatchTimeout: 10 * time.Millisecond,
		}
	}
	return p.writer
}

func (p *Producer) resetWriter(w *kafka.Writer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writer == w {
		p.writer.Close()
		p.writer = nil
	}
}

// Send publishes value as JSON to topic under key, waiting up to the ack
// timeout for broker acknowledgement. The key determines the partition, so
// records for one entity stay totally ordered.
func (p *Producer) Send(ctx context.Context, topic, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal message for %s: %w", topic, err)
	}

	ctx, cancel := context.WithTimeout(ctx, ackTimeout)
	defer cancel()

	w := p.getWriter()
	if err := w.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: data,
	}); err != nil {
		p.resetWriter(w)
		return fmt.Errorf("send to %s: %w", topic, err)
	}

	logger.Debug("message sent",
		zap.String("topic", topic),
		zap.String("key", key),
	)
	return nil
}

// Close closes the underlying writer.
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writer != nil {
		err := p.writer.Close()
		p.writer = nil
		return err
	}
	return nil
}

// Consumer runs one sequential worker per subscribed (topic, group) pair.
// Offsets are committed only after the handler returns nil, giving
// at-least-once delivery.
type Consumer struct {
	brokers []string

	mu      sync.Mutex
	readers []*kafka.Reader
	wg      sync.WaitGroup
	cancel  context.CancelFunc
	ctx     context.Context
}

// NewConsumer creates a consumer bound to the given brokers.
func NewConsumer(brokers []string) *Consumer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Consumer{brokers: brokers, ctx: ctx, cancel: cancel}
}

// Subscribe starts a worker consuming topic within the given group. The
// handler is invoked sequentially from that single worker; blocking in the
// handler blocks this topic only.
func (c *Consumer) Subscribe(topic, group string, handler HandlerFunc) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:          c.brokers,
		GroupID:          group,
		Topic:            topic,
		MinBytes:         1,
		MaxBytes:         10e6,
		MaxWait:          time.Second,
		SessionTimeout:   sessionTimeout,
		RebalanceTimeout: maxPollInterval,
		StartOffset:      kafka.LastOffset,
	})

	c.mu.Lock()
	c.readers = append(c.readers, reader)
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		logger.Info("consumer started",
			zap.String("topic", topic),
			zap.String("group", group),
		)
		for {
			msg, err := reader.FetchMessage(c.ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				logger.Error("fetch message failed",
					zap.String("topic", topic),
					zap.Error(err),
				)
				continue
			}

			if err := handler(c.ctx, msg.Key, msg.Value); err != nil {
				logger.Warn("handler failed, offset left uncommitted",
					zap.String("topic", topic),
					zap.String("key", string(msg.Key)),
					zap.Error(err),
				)
				continue
			}

			if err := reader.CommitMessages(c.ctx, msg); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("commit failed",
					zap.String("topic", topic),
					zap.Error(err),
				)
			}
		}
	}()
}

// Close stops all workers, waits for in-flight handlers to drain, then
// closes the readers.
func (c *Consumer) Close() {
	c.cancel()
	c.wg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range c.readers {
		if err := r.Close(); err != nil {
			logger.Warn("reader close failed", zap.Error(err))
		}
	}
	c.readers = nil
	logger.Info("kafka consumer closed")
}
