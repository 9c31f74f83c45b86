// Package outbox runs the background worker that drains the email outbox.
// It is fully decoupled from the resolution core: the core only appends rows.
package outbox

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/fundflow/be-fund-requests/internal/repository"
)

// maxAttempts is the per-message retry budget across drain passes.
const maxAttempts = 5

// publishBackoffElapsed bounds in-pass publish retries for one message.
const publishBackoffElapsed = 10 * time.Second

// Store is the outbox surface the drainer consumes.
type Store interface {
	ClaimBatch(ctx context.Context, limit int) ([]*repository.OutboxMessage, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, lastError string, maxAttempts int) error
}

// Publisher pushes one message to the mail transport.
type Publisher interface {
	Publish(ctx context.Context, msg *repository.OutboxMessage) error
}

// Drainer periodically claims a bounded batch of pending messages and pushes
// them to the publisher, recording per-message delivery accounting.
type Drainer struct {
	store     Store
	publisher Publisher
	interval  time.Duration
	batchSize int
	log       zerolog.Logger
}

// New creates a drainer.
func New(store Store, publisher Publisher, interval time.Duration, batchSize int, log zerolog.Logger) *Drainer {
	return &Drainer{
		store:     store,
		publisher: publisher,
		interval:  interval,
		batchSize: batchSize,
		log:       log,
	}
}

// Run drains on a fixed interval until ctx is cancelled.
func (d *Drainer) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.log.Info().
		Dur("interval", d.interval).
		Int("batch_size", d.batchSize).
		Msg("Outbox drainer started")

	for {
		select {
		case <-ctx.Done():
			d.log.Info().Msg("Outbox drainer stopped")
			return
		case <-ticker.C:
			d.DrainOnce(ctx)
		}
	}
}

// DrainOnce claims one batch and attempts delivery for each message.
func (d *Drainer) DrainOnce(ctx context.Context) {
	messages, err := d.store.ClaimBatch(ctx, d.batchSize)
	if err != nil {
		d.log.Warn().Err(err).Msg("Failed to claim outbox batch")
		return
	}
	if len(messages) == 0 {
		return
	}

	sent := 0
	for _, msg := range messages {
		if err := d.publish(ctx, msg); err != nil {
			d.log.Warn().Err(err).
				Str("message_id", msg.ID).
				Int("attempts", msg.Attempts).
				Msg("Outbox message delivery failed")
			if markErr := d.store.MarkFailed(ctx, msg.ID, err.Error(), maxAttempts); markErr != nil {
				d.log.Warn().Err(markErr).Str("message_id", msg.ID).Msg("Failed to record delivery failure")
			}
			continue
		}
		if err := d.store.MarkSent(ctx, msg.ID); err != nil {
			d.log.Warn().Err(err).Str("message_id", msg.ID).Msg("Failed to mark message sent")
			continue
		}
		sent++
	}

	d.log.Info().
		Int("claimed", len(messages)).
		Int("sent", sent).
		Msg("Outbox batch drained")
}

// publish retries transient transport failures with exponential backoff,
// bounded so one stuck message cannot stall the batch.
func (d *Drainer) publish(ctx context.Context, msg *repository.OutboxMessage) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = publishBackoffElapsed

	return backoff.Retry(func() error {
		return d.publisher.Publish(ctx, msg)
	}, backoff.WithContext(bo, ctx))
}
