package notify

import (
	"context"
	"encoding/json"
	"time"

	"rollcall/internal/queue"
	"rollcall/internal/record"
)

// MsgTypeCommit is the queue message type carrying a commit event.
const MsgTypeCommit = "attendance_committed"

// Notification kinds produced by the dispatcher.
const (
	KindStudentAttendance = "attendance_marked"
	KindParentAttendance  = "child_attendance_marked"
)

// Notification is one in-app notification row. Lifecycle is read/unread only.
type Notification struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	IsRead    bool            `json:"is_read"`
	CreatedAt time.Time       `json:"created_at"`
}

// Store persists notifications.
type Store interface {
	Insert(ctx context.Context, n Notification) error
	MarkRead(ctx context.Context, id string) error
	ListForUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]Notification, error)
}

// CommitPublisher pushes commit events onto the queue for the worker. It is
// the only coupling between the recorder and notification delivery.
type CommitPublisher struct {
	q queue.Queue
}

// NewCommitPublisher creates a publisher.
func NewCommitPublisher(q queue.Queue) *CommitPublisher {
	return &CommitPublisher{q: q}
}

// PublishCommit enqueues one commit event.
func (p *CommitPublisher) PublishCommit(ctx context.Context, evt record.CommitEvent) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return p.q.Publish(ctx, queue.Message{Type: MsgTypeCommit, Body: body})
}
