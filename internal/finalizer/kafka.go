package finalizer

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/IBM/sarama"

	"tixly/internal/checkout"
	"tixly/internal/shared/config"
	"tixly/pkg/logger"
)

// KafkaTransport publishes finalization messages to the order
// finalization topic. Messages are keyed by hold token so every message
// for one hold lands on the same partition, in order.
type KafkaTransport struct {
	producer sarama.SyncProducer
	cfg      config.KafkaConfig
	log      *logger.Logger
}

// NewKafkaTransport creates a Kafka-backed finalization transport
func NewKafkaTransport(cfg config.KafkaConfig, log *logger.Logger) (*KafkaTransport, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = 3
	saramaConfig.Producer.Idempotent = true
	saramaConfig.Net.MaxOpenRequests = 1
	saramaConfig.Producer.Partitioner = sarama.NewHashPartitioner

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	return &KafkaTransport{
		producer: producer,
		cfg:      cfg,
		log:      log,
	}, nil
}

// Publish sends a finalization message to the finalize topic
func (t *KafkaTransport) Publish(ctx context.Context, msg checkout.FinalizationMessage) error {
	return t.publishTo(ctx, t.cfg.FinalizeTopic, msg, 0, "")
}

// buildMessage assembles the producer record. A non-empty failureReason is
// attached as a header for dead letter inspection.
func (t *KafkaTransport) buildMessage(topic string, msg checkout.FinalizationMessage, deliveryCount int, failureReason string) (*sarama.ProducerMessage, error) {
	value, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal finalization message: %w", err)
	}

	headers := []sarama.RecordHeader{
		{Key: []byte("correlation_id"), Value: []byte(msg.CorrelationID)},
		{Key: []byte("delivery_count"), Value: []byte(strconv.Itoa(deliveryCount))},
	}
	if failureReason != "" {
		headers = append(headers, sarama.RecordHeader{
			Key:   []byte("failure_reason"),
			Value: []byte(failureReason),
		})
	}

	return &sarama.ProducerMessage{
		Topic:   topic,
		Key:     sarama.StringEncoder(msg.HoldToken),
		Value:   sarama.ByteEncoder(value),
		Headers: headers,
	}, nil
}

func (t *KafkaTransport) publishTo(ctx context.Context, topic string, msg checkout.FinalizationMessage, deliveryCount int, failureReason string) error {
	message, err := t.buildMessage(topic, msg, deliveryCount, failureReason)
	if err != nil {
		return err
	}

	partition, offset, err := t.producer.SendMessage(message)
	if err != nil {
		return fmt.Errorf("failed to send finalization message: %w", err)
	}

	t.log.InfoWithContext(ctx, "Finalization message published", map[string]interface{}{
		"topic":     topic,
		"partition": partition,
		"offset":    offset,
		"order_id":  msg.OrderID,
	})
	return nil
}

// Close closes the Kafka producer
func (t *KafkaTransport) Close() error {
	if t.producer != nil {
		if err := t.producer.Close(); err != nil {
			return fmt.Errorf("failed to close Kafka producer: %w", err)
		}
	}
	return nil
}

// Consumer drains the finalize topic through a consumer group and hands
// each message to the processor. Messages that keep failing get
// republished to the dead letter topic.
type Consumer struct {
	consumerGroup sarama.ConsumerGroup
	transport     *KafkaTransport
	handler       MessageHandler
	cfg           config.KafkaConfig
	log           *logger.Logger
	cancel        context.CancelFunc
}

// NewConsumer creates a consumer group for the finalize topic
func NewConsumer(cfg config.KafkaConfig, transport *KafkaTransport, handler MessageHandler, log *logger.Logger) (*Consumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Consumer.Group.Session.Timeout = 30 * time.Second
	saramaConfig.Consumer.Group.Heartbeat.Interval = 3 * time.Second
	saramaConfig.Consumer.Return.Errors = true
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	saramaConfig.Consumer.Offsets.AutoCommit.Enable = true
	saramaConfig.Consumer.Offsets.AutoCommit.Interval = 1 * time.Second

	consumerGroup, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.ConsumerGroup, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	return &Consumer{
		consumerGroup: consumerGroup,
		transport:     transport,
		handler:       handler,
		cfg:           cfg,
		log:           log,
	}, nil
}

// Start runs the consumer loop until the context ends or Stop is called
func (c *Consumer) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)

	go func() {
		for err := range c.consumerGroup.Errors() {
			c.log.ErrorWithContext(ctx, "Finalization consumer group error", err, nil)
		}
	}()

	go func() {
		handler := &consumerGroupHandler{consumer: c}
		topics := []string{c.cfg.FinalizeTopic}
		for {
			select {
			case <-ctx.Done():
				return
			default:
				if err := c.consumerGroup.Consume(ctx, topics, handler); err != nil {
					c.log.ErrorWithContext(ctx, "Finalization consumer error", err, nil)
					time.Sleep(time.Second)
				}
			}
		}
	}()
}

// Stop stops the consumer and closes the group
func (c *Consumer) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	if err := c.consumerGroup.Close(); err != nil {
		return fmt.Errorf("failed to close consumer group: %w", err)
	}
	return nil
}

type consumerGroupHandler struct {
	consumer *Consumer
}

func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message := <-claim.Messages():
			if message == nil {
				return nil
			}
			h.handleMessage(session, message)
		case <-session.Context().Done():
			return nil
		}
	}
}

// handleMessage processes one record with in-process retries, then either
// marks it consumed or ships it to the dead letter topic. The offset is
// always committed, the dead letter topic owns permanently failing work.
func (h *consumerGroupHandler) handleMessage(session sarama.ConsumerGroupSession, message *sarama.ConsumerMessage) {
	ctx := session.Context()
	c := h.consumer

	var msg checkout.FinalizationMessage
	if err := json.Unmarshal(message.Value, &msg); err != nil {
		c.log.ErrorWithContext(ctx, "Unreadable finalization message dropped", err, map[string]interface{}{
			"topic":  message.Topic,
			"offset": message.Offset,
		})
		session.MarkMessage(message, "")
		return
	}

	deliveryCount := deliveryCountFromHeaders(message.Headers)

	if err := h.executeWithRetry(ctx, msg); err != nil {
		deliveryCount++
		if deliveryCount >= c.cfg.MaxRetries {
			c.log.ErrorWithContext(ctx, "Finalization message dead-lettered", err, map[string]interface{}{
				"order_id":       msg.OrderID,
				"delivery_count": deliveryCount,
			})
			if dlqErr := c.transport.publishTo(ctx, c.cfg.DeadLetterTopic, msg, deliveryCount, err.Error()); dlqErr != nil {
				c.log.ErrorWithContext(ctx, "Failed to publish to dead letter topic", dlqErr, map[string]interface{}{
					"order_id": msg.OrderID,
				})
			}
		} else {
			// Requeue with the bumped delivery count
			if pubErr := c.transport.publishTo(ctx, c.cfg.FinalizeTopic, msg, deliveryCount, ""); pubErr != nil {
				c.log.ErrorWithContext(ctx, "Failed to requeue finalization message", pubErr, map[string]interface{}{
					"order_id": msg.OrderID,
				})
			}
		}
	}

	session.MarkMessage(message, "")
}

func (h *consumerGroupHandler) executeWithRetry(ctx context.Context, msg checkout.FinalizationMessage) error {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			delay := time.Duration(1<<uint(attempt-1)) * time.Second
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = h.consumer.handler.ProcessMessage(ctx, msg)
		if lastErr == nil {
			return nil
		}
	}
	return lastErr
}

func deliveryCountFromHeaders(headers []*sarama.RecordHeader) int {
	for _, header := range headers {
		if header != nil && string(header.Key) == "delivery_count" {
			if n, err := strconv.Atoi(string(header.Value)); err == nil {
				return n
			}
		}
	}
	return 0
}
