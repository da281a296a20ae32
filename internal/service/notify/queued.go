package notify

import (
	"context"
	"encoding/json"
	"fmt"

	domrepo "FXEngine/internal/domain/repository"
	"FXEngine/pkg/queue"
)

// MessageType is the queue message type carrying notifications.
const MessageType = "notification"

type notification struct {
	Text string `json:"text"`
}

// Queued hands messages to a redis queue so slow chat APIs never hold up a
// cycle. Delivery happens in DeliveryJob on the consumer side.
type Queued struct {
	q queue.QueueService
}

func NewQueued(q queue.QueueService) *Queued {
	return &Queued{q: q}
}

func (n *Queued) Notify(ctx context.Context, message string) error {
	if err := n.q.PublishMessage(ctx, MessageType, notification{Text: message}); err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	return nil
}

// DeliveryJob drains queued notifications into the real notifier. Returning
// an error lets the queue retry.
type DeliveryJob struct {
	target domrepo.Notifier
}

func NewDeliveryJob(target domrepo.Notifier) *DeliveryJob {
	return &DeliveryJob{target: target}
}

func (j *DeliveryJob) Name() string { return "notification-delivery" }
func (j *DeliveryJob) Type() string { return MessageType }

func (j *DeliveryJob) Handle(ctx context.Context, payload json.RawMessage) error {
	var msg notification
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("decode notification: %w", err)
	}
	if msg.Text == "" {
		return nil
	}
	return j.target.Notify(ctx, msg.Text)
}

var (
	_ domrepo.Notifier = (*Queued)(nil)
	_ queue.Job        = (*DeliveryJob)(nil)
)
