// Package queue also contains the background consumer that listens to
// the swap.events queue and writes structured lines to logs/swap.log.
package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const swapQueueName = "swap.events"

// StartSwapEventConsumer connects to RabbitMQ, declares the durable
// swap.events queue and starts consuming.  Each event is appended to
// logs/swap.log in a single-line, human-friendly format.  The function
// runs a reconnect loop forever; processing errors are logged and the
// offending message rejected so the server keeps operating.
func StartSwapEventConsumer(url string, logger *zap.Logger) {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(url)
		if err != nil {
			logger.Warn("swap-consumer: failed to dial broker",
				zap.Error(err), zap.Duration("retry_in", backoff))
			time.Sleep(backoff)
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		if err := consumeLoop(conn, logger); err != nil {
			logger.Warn("swap-consumer: consume loop ended, reconnecting", zap.Error(err))
			time.Sleep(2 * time.Second)
		}
	}
}

func consumeLoop(conn *amqp.Connection, logger *zap.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		logger.Warn("swap-consumer: set QoS failed", zap.Error(err))
	}

	if _, err := ch.QueueDeclare(swapQueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	msgs, err := ch.Consume(swapQueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for d := range msgs {
		if err := appendToLog(d.Body); err != nil {
			logger.Error("swap-consumer: handle message failed", zap.Error(err))
			_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

func appendToLog(body []byte) error {
	var ev SwapEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if err := os.MkdirAll("logs", 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	fpath := filepath.Join("logs", "swap.log")
	f, err := os.OpenFile(fpath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	line := fmt.Sprintf("[%s] %s | event_id=%s | recipient=%d | request_id=%d | requester=%q | offered=%q | wanted=%q\n",
		ev.OccurredAt, ev.Type, ev.EventID, ev.RecipientUserID, ev.RequestID,
		ev.RequesterName, ev.RequesterSlotTitle, ev.TargetSlotTitle)

	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}
