// Package notify delivers organizer broadcasts to every registered student.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"careerquest/internal/metrics"
)

// Gateway sends one chat message to one recipient.
type Gateway interface {
	Send(ctx context.Context, recipientID int64, text string) error
}

// Recipients lists everyone a broadcast goes to.
type Recipients interface {
	ListStudentIDs(ctx context.Context) ([]int64, error)
}

// Report summarizes one broadcast.
type Report struct {
	Total  int
	Sent   int
	Failed int
}

// Dispatcher fans a message out to all students. A failed send is logged
// and counted; it never stops delivery to the remaining recipients.
type Dispatcher struct {
	recipients  Recipients
	gateway     Gateway
	log         *slog.Logger
	concurrency int
}

// NewDispatcher creates a dispatcher sending up to concurrency messages at once.
func NewDispatcher(recipients Recipients, gateway Gateway, logger *slog.Logger, concurrency int) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Dispatcher{recipients: recipients, gateway: gateway, log: logger, concurrency: concurrency}
}

// Broadcast sends text to every registered student. The only error it
// returns is a failure to load the recipient list.
func (d *Dispatcher) Broadcast(ctx context.Context, text string) (Report, error) {
	ids, err := d.recipients.ListStudentIDs(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("load recipients: %w", err)
	}

	var sent, failed atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(d.concurrency)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			if err := d.gateway.Send(ctx, id, text); err != nil {
				failed.Add(1)
				metrics.BroadcastDeliveries.WithLabelValues("failed").Inc()
				d.log.Warn("broadcast delivery failed", "recipient_id", id, "err", err)
				return nil
			}
			sent.Add(1)
			metrics.BroadcastDeliveries.WithLabelValues("sent").Inc()
			return nil
		})
	}
	_ = g.Wait()

	rep := Report{Total: len(ids), Sent: int(sent.Load()), Failed: int(failed.Load())}
	d.log.Info("broadcast finished", "total", rep.Total, "sent", rep.Sent, "failed", rep.Failed)
	return rep, nil
}
