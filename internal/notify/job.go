package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"careerquest/internal/queue"
)

// MessageType tags broadcast jobs on the queue.
const MessageType = "broadcast"

// ErrEmptyText is returned for blank broadcasts.
var ErrEmptyText = errors.New("notification text is empty")

// Job is a queued broadcast request.
type Job struct {
	ID          string    `json:"id"`
	Text        string    `json:"text"`
	RequestedBy int64     `json:"requested_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// Publisher turns admin requests into queued jobs so the admin's command
// returns before any recipient is contacted.
type Publisher struct {
	q queue.Queue
}

// NewPublisher wraps q.
func NewPublisher(q queue.Queue) *Publisher {
	return &Publisher{q: q}
}

// Enqueue queues text for broadcast and returns the job.
func (p *Publisher) Enqueue(ctx context.Context, requestedBy int64, text string) (Job, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Job{}, ErrEmptyText
	}
	job := Job{ID: uuid.NewString(), Text: text, RequestedBy: requestedBy, CreatedAt: time.Now().UTC()}
	body, err := json.Marshal(job)
	if err != nil {
		return Job{}, fmt.Errorf("encode job: %w", err)
	}
	if err := p.q.Publish(ctx, queue.Message{Type: MessageType, Body: body}); err != nil {
		return Job{}, fmt.Errorf("enqueue broadcast: %w", err)
	}
	return job, nil
}

// Run consumes broadcast jobs until ctx is done.
func Run(ctx context.Context, q queue.Queue, d *Dispatcher, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	messages, err := q.Consume(ctx)
	if err != nil {
		return fmt.Errorf("queue consume init failed: %w", err)
	}
	for msg := range messages {
		if msg.Type != MessageType {
			continue
		}
		var job Job
		if err := json.Unmarshal(msg.Body, &job); err != nil {
			logger.Warn("skipping malformed broadcast job", "err", err)
			continue
		}
		logger.Info("processing broadcast", "job_id", job.ID, "requested_by", job.RequestedBy)
		rep, err := d.Broadcast(ctx, job.Text)
		if err != nil {
			logger.Error("broadcast aborted", "job_id", job.ID, "err", err)
			continue
		}
		logger.Info("broadcast delivered", "job_id", job.ID, "sent", rep.Sent, "failed", rep.Failed)
	}
	return nil
}
