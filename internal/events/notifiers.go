package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-food/internal/store"
)

// TaskNotifyOrderEvent is the asynq task type handled by the worker.
const TaskNotifyOrderEvent = "notify:order-event"

// LogNotifier writes every event to the structured log.
type LogNotifier struct {
	Logger zerolog.Logger
}

func (n LogNotifier) Notify(_ context.Context, ev store.DomainEvent) error {
	n.Logger.Info().
		Str("event_id", store.UUIDString(ev.ID)).
		Str("topic", ev.Topic).
		Str("aggregate_id", store.UUIDString(ev.AggregateID)).
		RawJSON("payload", ev.Payload).
		Msg("domain_event")
	return nil
}

// TaskEnqueuer is satisfied by *asynq.Client.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// TaskNotifier hands events on the configured topics to the worker queue.
type TaskNotifier struct {
	Client     TaskEnqueuer
	Topics     []string
	Queue      string
	MaxRetry   int
	RetainedBy time.Duration
}

// NotifyPayload is the task body consumed by the worker.
type NotifyPayload struct {
	EventID     string          `json:"eventId"`
	Topic       string          `json:"topic"`
	AggregateID string          `json:"aggregateId"`
	Payload     json.RawMessage `json:"payload"`
	OccurredAt  time.Time       `json:"occurredAt"`
}

func (n TaskNotifier) Notify(ctx context.Context, ev store.DomainEvent) error {
	if n.Client == nil {
		return nil
	}
	if len(n.Topics) > 0 && !slices.Contains(n.Topics, ev.Topic) {
		return nil
	}
	body, err := json.Marshal(NotifyPayload{
		EventID:     store.UUIDString(ev.ID),
		Topic:       ev.Topic,
		AggregateID: store.UUIDString(ev.AggregateID),
		Payload:     json.RawMessage(ev.Payload),
		OccurredAt:  ev.OccurredAt,
	})
	if err != nil {
		return fmt.Errorf("encode notify task: %w", err)
	}
	opts := []asynq.Option{asynq.TaskID(store.UUIDString(ev.ID))}
	if n.Queue != "" {
		opts = append(opts, asynq.Queue(n.Queue))
	}
	if n.MaxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(n.MaxRetry))
	}
	if n.RetainedBy > 0 {
		opts = append(opts, asynq.Retention(n.RetainedBy))
	}
	if _, err := n.Client.EnqueueContext(ctx, asynq.NewTask(TaskNotifyOrderEvent, body), opts...); err != nil {
		return fmt.Errorf("enqueue notify task: %w", err)
	}
	return nil
}

// NotifyHandler processes notify tasks in the worker, handing each event to
// the notification collaborator. Without a forwarder the hand-off is logged.
type NotifyHandler struct {
	Forwarder *Forwarder
	Logger    zerolog.Logger
}

func (h NotifyHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p NotifyPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode notify task: %w: %w", err, asynq.SkipRetry)
	}
	log := h.Logger.With().Str("event_id", p.EventID).Str("topic", p.Topic).Logger()
	if err := h.Forwarder.Forward(ctx, p); err != nil {
		if errors.Is(err, ErrRejected) {
			log.Error().Err(err).Msg("notification rejected")
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		log.Warn().Err(err).Msg("notification delivery failed")
		return err
	}
	log.Info().
		Str("aggregate_id", p.AggregateID).
		Time("occurred_at", p.OccurredAt).
		Msg("notification handed off")
	return nil
}
