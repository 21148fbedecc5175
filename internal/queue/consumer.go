package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/strayaid/rescue-dispatch/internal/cleanup"
	"github.com/strayaid/rescue-dispatch/internal/diagnosis"
	"github.com/strayaid/rescue-dispatch/internal/notify"
	"github.com/strayaid/rescue-dispatch/internal/repository"
	"github.com/strayaid/rescue-dispatch/internal/storage"
)

// handlerFunc processes one message body.  A returned error rejects the
// message without requeue; the fan-out dedup markers stay unset for
// anything that did not go out, so a later trigger can resend.
type handlerFunc func(ctx context.Context, body []byte) error

// Consumer drains the three case-event queues and executes the
// asynchronous side of the lifecycle: push fan-out, media cleanup and
// diagnosis enrichment.  It runs detached from all HTTP requests with
// its own timeouts.
type Consumer struct {
	url     string
	cases   *repository.CaseRepo
	fanout  *notify.Fanout
	cleaner *cleanup.Cleaner
	store   storage.ObjectStore
	diag    *diagnosis.Client // nil disables enrichment
	log     *zap.Logger
}

// NewConsumer wires a Consumer.  diag may be nil.
func NewConsumer(url string, cases *repository.CaseRepo, fanout *notify.Fanout, cleaner *cleanup.Cleaner, store storage.ObjectStore, diag *diagnosis.Client, log *zap.Logger) *Consumer {
	if cases == nil || fanout == nil || cleaner == nil {
		panic("nil dependency passed to NewConsumer")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{url: url, cases: cases, fanout: fanout, cleaner: cleaner, store: store, diag: diag, log: log}
}

// Start launches one consume loop per queue.  Each loop reconnects with
// exponential backoff and runs until the context is cancelled.
func (c *Consumer) Start(ctx context.Context) {
	go c.run(ctx, CaseOpenedQueue, c.handleCaseOpened)
	go c.run(ctx, CaseClaimedQueue, c.handleCaseClaimed)
	go c.run(ctx, CaseClosedQueue, c.handleCaseClosed)
}

func (c *Consumer) run(ctx context.Context, queueName string, handle handlerFunc) {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.log.Warn("consumer: dial failed",
				zap.String("queue", queueName), zap.Duration("retry_in", backoff), zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		if err := c.consumeLoop(ctx, conn, queueName, handle); err != nil {
			c.log.Warn("consumer: loop ended, reconnecting",
				zap.String("queue", queueName), zap.Error(err))
		}
		_ = conn.Close()
		select {
		case <-ctx.Done():
			return
		case <-time.After(2 * time.Second):
		}
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection, queueName string, handle handlerFunc) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(20, 0, false); err != nil {
		c.log.Warn("consumer: set QoS failed", zap.Error(err))
	}

	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	msgs, err := ch.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			// Each message gets a fresh context; this work is allowed
			// to outlive any HTTP response.
			msgCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			err := handle(msgCtx, d.Body)
			cancel()
			if err != nil {
				c.log.Error("consumer: handle message failed",
					zap.String("queue", queueName), zap.Error(err))
				_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func (c *Consumer) handleCaseOpened(ctx context.Context, body []byte) error {
	var ev CaseOpenedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	rc, err := c.cases.GetByID(ctx, ev.CaseID)
	if err != nil {
		return fmt.Errorf("load case %s: %w", ev.CaseID, err)
	}
	if err := c.fanout.NewCase(ctx, rc); err != nil {
		return fmt.Errorf("new-case fanout: %w", err)
	}
	c.enrichDiagnosis(ctx, ev.CaseID)
	return nil
}

func (c *Consumer) handleCaseClaimed(ctx context.Context, body []byte) error {
	var ev CaseClaimedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if err := c.fanout.CaseClaimed(ctx, ev.CaseID, ev.RescuerID); err != nil {
		return fmt.Errorf("mute fanout: %w", err)
	}
	return nil
}

func (c *Consumer) handleCaseClosed(ctx context.Context, body []byte) error {
	var ev CaseClosedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	rc, err := c.cases.GetByID(ctx, ev.CaseID)
	if err != nil {
		return fmt.Errorf("load case %s: %w", ev.CaseID, err)
	}
	if err := c.fanout.CaseClosed(ctx, rc, ev.ActorID); err != nil {
		c.log.Warn("consumer: reporter notification failed",
			zap.String("case_id", ev.CaseID), zap.Error(err))
	}
	if err := c.cleaner.CleanupCase(ctx, ev.CaseID); err != nil {
		// The periodic sweep backstops a failed immediate cleanup.
		return fmt.Errorf("cleanup case %s: %w", ev.CaseID, err)
	}
	return nil
}

// enrichDiagnosis runs the best-effort AI analysis when the case carries
// a photo.  Failures are logged and swallowed; the case simply keeps a
// NULL diagnosis.
func (c *Consumer) enrichDiagnosis(ctx context.Context, caseID string) {
	if c.diag == nil || c.store == nil {
		return
	}
	photoKey, _, err := c.cases.MediaRefs(ctx, caseID)
	if err != nil || photoKey == nil {
		return
	}
	url, err := c.store.PresignGet(ctx, *photoKey)
	if err != nil {
		c.log.Warn("consumer: presign for diagnosis failed",
			zap.String("case_id", caseID), zap.Error(err))
		return
	}
	rc, err := c.cases.GetByID(ctx, caseID)
	if err != nil {
		return
	}
	desc := ""
	if rc.Description != nil {
		desc = *rc.Description
	}
	payload, err := c.diag.Analyze(ctx, url, desc)
	if err != nil {
		c.log.Warn("consumer: diagnosis failed",
			zap.String("case_id", caseID), zap.Error(err))
		return
	}
	if err := c.cases.SetDiagnosis(ctx, caseID, payload); err != nil {
		c.log.Warn("consumer: storing diagnosis failed",
			zap.String("case_id", caseID), zap.Error(err))
	}
}
