package notify

import (
	"context"
	"log/slog"
	"time"

	"pianolearn/internal/util"
	"pianolearn/pkg/mail"
)

// DirectQueue delivers mail in a background goroutine without Redis. It keeps
// single-binary deployments working when no queue address is configured;
// delivery is fire-and-forget with no retries.
type DirectQueue struct {
	sender  mail.Sender
	timeout time.Duration
}

func NewDirectQueue(sender mail.Sender) *DirectQueue {
	return &DirectQueue{sender: sender, timeout: 30 * time.Second}
}

func (d *DirectQueue) Enqueue(_ context.Context, msg mail.Message) (EmailJob, error) {
	job := EmailJob{
		ID:        util.NewID(),
		To:        msg.To,
		Subject:   msg.Subject,
		Status:    StatusProcessing,
		Attempts:  1,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
		Message:   msg,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		if err := d.sender.Send(ctx, msg); err != nil {
			slog.Warn("email delivery failed", "to", msg.To, "subject", msg.Subject, "error", err)
		}
	}()
	return job, nil
}
