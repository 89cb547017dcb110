package jobs

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-hooks/core"
	"github.com/google/uuid"
)

// DedupDrop asks the queue to drop a job whose idempotency key is already
// pending.
const DedupDrop = "drop"

// NewDrainMessage builds a drain job keyed by the tick it belongs to, so two
// schedulers ticking in the same window enqueue it once.
func NewDrainMessage(at time.Time, interval time.Duration) *core.JobExecutionMessage {
	slot := at.UTC().Unix()
	if seconds := int64(interval / time.Second); seconds > 0 {
		slot -= slot % seconds
	}
	return &core.JobExecutionMessage{
		JobID:          core.JobIDDeliveryDrain,
		ScriptPath:     core.JobIDDeliveryDrain,
		Parameters:     map[string]any{},
		IdempotencyKey: core.JobIDDeliveryDrain + ":" + strconv.FormatInt(slot, 10),
		DedupPolicy:    DedupDrop,
	}
}

func NewQueueEventMessage(messageID uuid.UUID, eventName string, payload []byte) (*core.JobExecutionMessage, error) {
	if messageID == uuid.Nil {
		return nil, core.BadInputError("message id is required", nil)
	}
	if strings.TrimSpace(eventName) == "" {
		return nil, core.BadInputError("event name is required", nil)
	}
	return &core.JobExecutionMessage{
		JobID:      core.JobIDEventQueue,
		ScriptPath: core.JobIDEventQueue,
		Parameters: map[string]any{
			ParamMessageID: messageID.String(),
			ParamEventName: eventName,
			ParamPayload:   string(payload),
		},
		IdempotencyKey: core.JobIDEventQueue + ":" + messageID.String(),
		DedupPolicy:    DedupDrop,
	}, nil
}

// Scheduler enqueues a drain job on every tick.
type Scheduler struct {
	Enqueuer core.JobEnqueuer
	Interval time.Duration
	Now      core.Clock
	Observer core.Observer
}

func (s *Scheduler) Run(ctx context.Context) error {
	if s == nil || s.Enqueuer == nil {
		return fmt.Errorf("jobs: enqueuer is not configured")
	}
	if s.Interval <= 0 {
		return fmt.Errorf("jobs: schedule interval must be positive")
	}
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			_ = s.Tick(ctx)
		}
	}
}

func (s *Scheduler) Tick(ctx context.Context) (err error) {
	now := core.SystemClock
	if s.Now != nil {
		now = s.Now
	}
	startedAt := now()
	msg := NewDrainMessage(startedAt, s.Interval)
	defer func() {
		s.Observer.Observe(ctx, startedAt, "job.schedule", err, map[string]any{
			"job_id":          msg.JobID,
			"idempotency_key": msg.IdempotencyKey,
		})
	}()
	return s.Enqueuer.Enqueue(ctx, msg)
}
