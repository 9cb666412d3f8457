package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"rollcall/internal/metrics"
	"rollcall/internal/queue"
	"rollcall/internal/record"
)

// RecordMarker flags records once the parent notification went out.
type RecordMarker interface {
	MarkParentNotified(ctx context.Context, recordID string) error
}

// Dispatcher turns commit events into notification rows for the student and
// the parent. Delivery is fire-and-forget from the recorder's point of view:
// a failed dispatch is retried here and never touches the attendance record
// beyond the parent_notified flag.
type Dispatcher struct {
	store      Store
	records    RecordMarker
	log        *zap.Logger
	maxRetries int
	retryDelay time.Duration
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(store Store, records RecordMarker, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		store:      store,
		records:    records,
		log:        log,
		maxRetries: 3,
		retryDelay: 200 * time.Millisecond,
	}
}

// Dispatch writes the student and parent notifications for one commit event.
func (d *Dispatcher) Dispatch(ctx context.Context, evt record.CommitEvent) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	student := Notification{
		ID:        uuid.NewString(),
		UserID:    evt.StudentID,
		Kind:      KindStudentAttendance,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	if err := d.insertWithRetry(ctx, student); err != nil {
		metrics.NotificationsDispatched.WithLabelValues("failed").Inc()
		return err
	}

	parent := Notification{
		ID:        uuid.NewString(),
		UserID:    "parent:" + evt.StudentID,
		Kind:      KindParentAttendance,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	if err := d.insertWithRetry(ctx, parent); err != nil {
		metrics.NotificationsDispatched.WithLabelValues("failed").Inc()
		return err
	}

	if err := d.records.MarkParentNotified(ctx, evt.RecordID); err != nil {
		d.log.Warn("mark parent notified failed",
			zap.String("record_id", evt.RecordID), zap.Error(err))
	}
	metrics.NotificationsDispatched.WithLabelValues("ok").Inc()
	d.log.Info("notifications dispatched",
		zap.String("record_id", evt.RecordID),
		zap.String("student_id", evt.StudentID),
		zap.String("status", string(evt.Status)),
	)
	return nil
}

func (d *Dispatcher) insertWithRetry(ctx context.Context, n Notification) error {
	var err error
	for attempt := 0; attempt < d.maxRetries; attempt++ {
		if err = d.store.Insert(ctx, n); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.retryDelay):
		}
	}
	return err
}

// Run consumes commit events from the queue until the context ends.
func (d *Dispatcher) Run(ctx context.Context, q queue.Queue) error {
	msgs, err := q.Consume(ctx)
	if err != nil {
		return err
	}
	for msg := range msgs {
		if msg.Type != MsgTypeCommit {
			continue
		}
		var evt record.CommitEvent
		if err := json.Unmarshal(msg.Body, &evt); err != nil {
			d.log.Error("bad commit event payload", zap.Error(err))
			continue
		}
		if err := d.Dispatch(ctx, evt); err != nil {
			d.log.Error("dispatch failed",
				zap.String("record_id", evt.RecordID), zap.Error(err))
		}
	}
	return ctx.Err()
}
