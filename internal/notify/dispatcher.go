// Package notify delivers swap events to counterpart users.  The
// dispatcher is strictly fire-and-forget: the swap engine calls it after
// its transaction has committed, a failed publish is logged and dropped,
// and no delivery error ever reaches the caller or undoes a transition.
package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/slotswap/slot-swap-api/internal/queue"
)

// SwapQueueName is the durable queue carrying all three swap event types.
const SwapQueueName = "swap.events"

// Dispatcher emits swap negotiation events to the affected counterpart.
// Implementations must not block the caller beyond a short publish and
// must swallow their own errors.
type Dispatcher interface {
	// SwapRequestCreated notifies the target user that a new swap
	// request addresses one of their slots.
	SwapRequestCreated(ctx context.Context, targetUserID, requestID uint64, requesterName, requesterSlotTitle, targetSlotTitle string)
	// SwapRequestAccepted notifies the original requester that the
	// target accepted and ownership was exchanged.
	SwapRequestAccepted(ctx context.Context, requesterID, requestID uint64, requesterSlotTitle, targetSlotTitle string)
	// SwapRequestRejected notifies the original requester that the
	// target declined the exchange.
	SwapRequestRejected(ctx context.Context, requesterID, requestID uint64, requesterSlotTitle, targetSlotTitle string)
}

// AMQPDispatcher publishes swap events to RabbitMQ.  The connection and
// channel are opened lazily on first publish and reused afterwards; a
// broken channel is dropped and re-dialed on the next event.
type AMQPDispatcher struct {
	url    string
	logger *zap.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewAMQPDispatcher returns a dispatcher that publishes to the broker at
// the given URL.  No connection is made until the first event.
func NewAMQPDispatcher(url string, logger *zap.Logger) *AMQPDispatcher {
	return &AMQPDispatcher{url: url, logger: logger}
}

// Close releases the broker connection if one was established.
func (d *AMQPDispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ch != nil {
		_ = d.ch.Close()
		d.ch = nil
	}
	if d.conn != nil {
		_ = d.conn.Close()
		d.conn = nil
	}
}

// channel returns a usable channel, dialing the broker and declaring the
// durable queue when needed.  Callers must hold d.mu.
func (d *AMQPDispatcher) channel() (*amqp.Channel, error) {
	if d.ch != nil && !d.ch.IsClosed() {
		return d.ch, nil
	}
	if d.conn == nil || d.conn.IsClosed() {
		conn, err := amqp.Dial(d.url)
		if err != nil {
			return nil, err
		}
		d.conn = conn
	}
	ch, err := d.conn.Channel()
	if err != nil {
		return nil, err
	}
	if _, err := ch.QueueDeclare(SwapQueueName, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, err
	}
	d.ch = ch
	return ch, nil
}

// publish serializes the event and hands it to the broker.  Errors are
// logged, the cached channel is discarded so the next event re-dials,
// and nothing is surfaced to the caller.
func (d *AMQPDispatcher) publish(ctx context.Context, ev queue.SwapEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ch, err := d.channel()
	if err != nil {
		d.logger.Error("notify: broker unavailable, dropping event",
			zap.String("type", ev.Type), zap.Uint64("request_id", ev.RequestID), zap.Error(err))
		return
	}
	body, err := json.Marshal(ev)
	if err != nil {
		d.logger.Error("notify: marshal event failed", zap.String("type", ev.Type), zap.Error(err))
		return
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", SwapQueueName, false, false, pub); err != nil {
		d.logger.Error("notify: publish failed, dropping event",
			zap.String("type", ev.Type), zap.Uint64("request_id", ev.RequestID), zap.Error(err))
		d.ch = nil
		return
	}
	d.logger.Info("notify: event published",
		zap.String("type", ev.Type),
		zap.Uint64("recipient", ev.RecipientUserID),
		zap.Uint64("request_id", ev.RequestID))
}

func (d *AMQPDispatcher) SwapRequestCreated(ctx context.Context, targetUserID, requestID uint64, requesterName, requesterSlotTitle, targetSlotTitle string) {
	d.publish(ctx, queue.SwapEvent{
		EventID:            uuid.NewString(),
		Type:               queue.EventSwapRequestCreated,
		RecipientUserID:    targetUserID,
		RequestID:          requestID,
		RequesterName:      requesterName,
		RequesterSlotTitle: requesterSlotTitle,
		TargetSlotTitle:    targetSlotTitle,
		OccurredAt:         time.Now().UTC().Format(time.RFC3339),
	})
}

func (d *AMQPDispatcher) SwapRequestAccepted(ctx context.Context, requesterID, requestID uint64, requesterSlotTitle, targetSlotTitle string) {
	d.publish(ctx, queue.SwapEvent{
		EventID:            uuid.NewString(),
		Type:               queue.EventSwapRequestAccepted,
		RecipientUserID:    requesterID,
		RequestID:          requestID,
		RequesterSlotTitle: requesterSlotTitle,
		TargetSlotTitle:    targetSlotTitle,
		OccurredAt:         time.Now().UTC().Format(time.RFC3339),
	})
}

func (d *AMQPDispatcher) SwapRequestRejected(ctx context.Context, requesterID, requestID uint64, requesterSlotTitle, targetSlotTitle string) {
	d.publish(ctx, queue.SwapEvent{
		EventID:            uuid.NewString(),
		Type:               queue.EventSwapRequestRejected,
		RecipientUserID:    requesterID,
		RequestID:          requestID,
		RequesterSlotTitle: requesterSlotTitle,
		TargetSlotTitle:    targetSlotTitle,
		OccurredAt:         time.Now().UTC().Format(time.RFC3339),
	})
}
