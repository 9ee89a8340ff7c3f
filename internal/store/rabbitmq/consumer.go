package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	retryHeader  = "x-retry-count"
	maxRetries   = 3
	retryBackoff = 2 * time.Second
)

var errBadMessage = errors.New("bad job message")

type HandleFunc func(ctx context.Context, jobID string) error

// Consumer runs a bounded pool of workers over the job queue. A failed job
// is retried through the retry queue with growing delay, then dead-lettered.
type Consumer struct {
	conn        *amqp.Connection
	ch          *amqp.Channel
	pub         *Publisher
	queue       string
	concurrency int
	log         *zap.Logger
}

func NewConsumer(url, queue string, concurrency int, logger *zap.Logger) (*Consumer, error) {
	if concurrency <= 0 {
		concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	pub, err := NewPublisher(url, queue)
	if err != nil {
		return nil, err
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		_ = pub.Close()
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		_ = pub.Close()
		return nil, err
	}
	// strict concurrency control
	if err := ch.Qos(concurrency, 0, false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		_ = pub.Close()
		return nil, fmt.Errorf("qos: %w", err)
	}
	return &Consumer{
		conn:        conn,
		ch:          ch,
		pub:         pub,
		queue:       queue,
		concurrency: concurrency,
		log:         logger.Named("consumer"),
	}, nil
}

// Publisher returns the consumer's publisher, used for replies.
func (c *Consumer) Publisher() *Publisher { return c.pub }

func (c *Consumer) Close() error {
	_ = c.ch.Close()
	_ = c.conn.Close()
	return c.pub.Close()
}

// Run consumes until ctx is done, then drains in-flight jobs.
func (c *Consumer) Run(ctx context.Context, handle HandleFunc) error {
	msgs, err := c.ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	c.log.Info("worker started", zap.String("queue", c.queue), zap.Int("concurrency", c.concurrency))

	deliveries := make(chan amqp.Delivery, c.concurrency*2)
	var wg sync.WaitGroup
	wg.Add(c.concurrency)
	for i := 0; i < c.concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range deliveries {
				c.handleDelivery(ctx, workerID, d, handle)
			}
		}(i)
	}

	// dispatcher
	for {
		select {
		case <-ctx.Done():
			c.log.Info("worker shutting down")
			close(deliveries)
			wg.Wait()
			return nil
		case d, ok := <-msgs:
			if !ok {
				close(deliveries)
				wg.Wait()
				return errors.New("delivery channel closed")
			}
			deliveries <- d
		}
	}
}

func (c *Consumer) handleDelivery(ctx context.Context, workerID int, d amqp.Delivery, handle HandleFunc) {
	jobID, err := decodeJob(d.Body)
	if err != nil {
		c.log.Warn("bad message", zap.Int("worker", workerID), zap.Error(err))
		_ = d.Nack(false, false)
		return
	}

	start := time.Now()
	err = handle(ctx, jobID)
	if err == nil {
		if err := d.Ack(false); err != nil {
			c.log.Warn("ack failed", zap.String("job_id", jobID), zap.Error(err))
		}
		return
	}

	attempt := retryCount(d.Headers)
	c.log.Warn("job failed",
		zap.Int("worker", workerID), zap.String("job_id", jobID),
		zap.Int("attempt", attempt+1), zap.Duration("cost", time.Since(start)), zap.Error(err))

	if attempt+1 >= maxRetries {
		_ = d.Nack(false, false) // -> DLQ
		return
	}
	if err := c.scheduleRetry(context.WithoutCancel(ctx), d, attempt+1); err != nil {
		c.log.Warn("schedule retry failed", zap.String("job_id", jobID), zap.Error(err))
		_ = d.Nack(false, false)
		return
	}
	_ = d.Ack(false)
}

func (c *Consumer) scheduleRetry(ctx context.Context, d amqp.Delivery, attempt int) error {
	delay := retryDelay(attempt)
	return c.pub.publish(ctx, c.queue+".retry", amqp.Publishing{
		ContentType:  d.ContentType,
		DeliveryMode: amqp.Persistent,
		Headers:      amqp.Table{retryHeader: int32(attempt)},
		Expiration:   strconv.FormatInt(delay.Milliseconds(), 10),
		Body:         d.Body,
		Timestamp:    time.Now(),
	})
}

func decodeJob(body []byte) (string, error) {
	var m JobMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return "", fmt.Errorf("%w: %v", errBadMessage, err)
	}
	if m.JobID == "" {
		return "", fmt.Errorf("%w: empty job_id", errBadMessage)
	}
	return m.JobID, nil
}

func retryCount(h amqp.Table) int {
	switch v := h[retryHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func retryDelay(attempt int) time.Duration {
	return retryBackoff * time.Duration(1<<(attempt-1))
}
