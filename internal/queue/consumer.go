package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

type MessageHandler func(ctx context.Context, msg jetstream.Msg) error

type Consumer struct {
	nc *nats.Conn
	js jetstream.JetStream
	wg sync.WaitGroup
}

func NewConsumer(natsURL string) (*Consumer, error) {
	nc, js, err := connect(natsURL)
	if err != nil {
		return nil, err
	}
	return &Consumer{nc: nc, js: js}, nil
}

// settle acks a handled message and terminates a failed one so it is
// never redelivered.
func settle(msg jetstream.Msg, err error) {
	if err == nil {
		_ = msg.Ack()
		return
	}
	slog.Error("handle message", "subject", msg.Subject(), "error", err)
	_ = msg.TermWithReason(err.Error())
}

// ConsumeExports starts workerCount goroutines processing export jobs.
// Jobs can take a while, so the ack deadline is generous and a job is
// delivered at most once.
func (c *Consumer) ConsumeExports(ctx context.Context, consumerName string, handler MessageHandler, workerCount int) error {
	if workerCount < 1 {
		workerCount = 1
	}
	stream, err := c.js.Stream(ctx, ExportsStreamName)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", ExportsStreamName, err)
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       5 * time.Minute,
		MaxDeliver:    1,
		FilterSubject: ExportsSubject,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	msgCh := make(chan jetstream.Msg, workerCount)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(msgCh)
		for ctx.Err() == nil {
			batch, err := cons.Fetch(workerCount, jetstream.FetchMaxWait(5*time.Second))
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Warn("fetch export jobs", "error", err)
				time.Sleep(time.Second)
				continue
			}
			for msg := range batch.Messages() {
				select {
				case msgCh <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	for i := 0; i < workerCount; i++ {
		c.wg.Add(1)
		go func(workerID int) {
			defer c.wg.Done()
			for msg := range msgCh {
				slog.Debug("export job received", "worker", workerID, "subject", msg.Subject())
				settle(msg, handler(ctx, msg))
			}
		}(i)
	}

	slog.Info("export consumer started", "consumer", consumerName, "workers", workerCount)
	return nil
}

// ConsumeEvents tails the LOGINS stream from now on, for the realtime
// dashboard.
func (c *Consumer) ConsumeEvents(ctx context.Context, consumerName string, handler MessageHandler) error {
	stream, err := c.js.Stream(ctx, LoginsStreamName)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", LoginsStreamName, err)
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       10 * time.Second,
		MaxDeliver:    3,
		FilterSubject: LoginsSubjectBase + ".>",
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for ctx.Err() == nil {
			batch, err := cons.Fetch(10, jetstream.FetchMaxWait(5*time.Second))
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				time.Sleep(time.Second)
				continue
			}
			for msg := range batch.Messages() {
				settle(msg, handler(ctx, msg))
			}
		}
	}()

	slog.Info("event consumer started", "consumer", consumerName)
	return nil
}

// Wait blocks until every consumer goroutine has returned after its
// context was cancelled.
func (c *Consumer) Wait() {
	c.wg.Wait()
}

func (c *Consumer) Close() {
	c.nc.Close()
}
