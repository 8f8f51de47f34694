// Package queue is the JetStream plumbing for asynchronous intake. Two
// streams: INTAKE is a work queue of pending intake tasks consumed by the
// worker binary; MEDIA carries persisted-media events that the API fans
// out to WebSocket clients.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/moments/internal/models"
	"github.com/your-org/moments/internal/observability"
)

const (
	IntakeStreamName  = "INTAKE"
	IntakeSubjectBase = "intake"
	MediaStreamName   = "MEDIA"
	MediaSubjectBase  = "media"
)

type Producer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewProducer(natsURL string) (*Producer, error) {
	nc, err := nats.Connect(natsURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	return &Producer{nc: nc, js: js}, nil
}

// EnsureStreams creates the JetStream streams if they don't exist.
// Retries up to 30 times (1s apart) to handle NATS startup delay.
func (p *Producer) EnsureStreams(ctx context.Context) error {
	streams := []jetstream.StreamConfig{
		{
			Name:        IntakeStreamName,
			Subjects:    []string{IntakeSubjectBase + ".>"},
			Retention:   jetstream.WorkQueuePolicy,
			MaxAge:      1 * time.Hour,
			MaxMsgs:     100000,
			Storage:     jetstream.FileStorage,
			Discard:     jetstream.DiscardOld,
			Duplicates:  30 * time.Second,
			Description: "Pending intake tasks for pipeline workers",
		},
		{
			Name:        MediaStreamName,
			Subjects:    []string{MediaSubjectBase + ".>"},
			Retention:   jetstream.InterestPolicy,
			MaxAge:      24 * time.Hour,
			MaxMsgs:     1000000,
			Storage:     jetstream.FileStorage,
			Description: "Persisted-media events for live feeds",
		},
	}

	const maxAttempts = 30
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		allOK := true
		for _, cfg := range streams {
			opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			_, err := p.js.CreateOrUpdateStream(opCtx, cfg)
			cancel()
			if err != nil {
				allOK = false
				if attempt == maxAttempts {
					return fmt.Errorf("create stream %s: %w (after %d attempts)", cfg.Name, err, maxAttempts)
				}
				slog.Warn("ensure NATS stream (retrying...)", "name", cfg.Name, "attempt", attempt, "error", err)
				break
			}
			slog.Info("ensured NATS stream", "name", cfg.Name)
		}
		if allOK {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(1 * time.Second):
		}
	}
	return nil
}

// EnqueueIntake publishes an intake task for the worker pool. Subjects are
// per tenant so a stuck tenant can be inspected in isolation.
func (p *Producer) EnqueueIntake(ctx context.Context, task models.IntakeTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal intake task: %w", err)
	}

	subject := fmt.Sprintf("%s.%s", IntakeSubjectBase, task.TenantID)
	if _, err := p.js.Publish(ctx, subject, payload); err != nil {
		return fmt.Errorf("enqueue intake task: %w", err)
	}
	return nil
}

// PublishMediaPersisted emits the post-commit event consumed by the API's
// WebSocket fan-out.
func (p *Producer) PublishMediaPersisted(ctx context.Context, ev models.MediaPersistedEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal persisted event: %w", err)
	}

	subject := fmt.Sprintf("%s.persisted.%s", MediaSubjectBase, ev.TenantID)
	if _, err := p.js.Publish(ctx, subject, payload); err != nil {
		return fmt.Errorf("publish persisted event: %w", err)
	}
	return nil
}

// QueueDepth reports pending intake tasks and refreshes the gauge.
func (p *Producer) QueueDepth(ctx context.Context) (uint64, error) {
	stream, err := p.js.Stream(ctx, IntakeStreamName)
	if err != nil {
		return 0, err
	}
	info, err := stream.Info(ctx)
	if err != nil {
		return 0, err
	}
	observability.QueueDepth.Set(float64(info.State.Msgs))
	return info.State.Msgs, nil
}

func (p *Producer) Ping() error {
	if !p.nc.IsConnected() {
		return fmt.Errorf("nats not connected")
	}
	return nil
}

func (p *Producer) Close() {
	p.nc.Close()
}
