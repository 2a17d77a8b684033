package nats

import (
	"context"
	"fmt"
	"time"

	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"fermentctl/internal/domain"
	"fermentctl/internal/port"
)

// IngressConfig configures the durable pull consumer used to read inbound
// schedule and tracking envelopes.
type IngressConfig struct {
	URL             string
	Stream          string
	Subjects        []string
	DurableConsumer string
	FetchBatchSize  int
	FetchTimeout    time.Duration
}

// Ingress pulls envelopes off a JetStream durable consumer. One in-flight
// fetch at a time per process honors the single-inflight-per-subject
// ordering guarantee from spec §5 — the caller must not run concurrent
// Fetch calls.
type Ingress struct {
	conn     *natsgo.Conn
	consumer jetstream.Consumer
	batch    int
	timeout  time.Duration
}

// NewIngress dials NATS, ensures the work-queue stream exists, and binds (or
// creates) the durable pull consumer described by cfg.
func NewIngress(ctx context.Context, cfg IngressConfig, opts ...natsgo.Option) (*Ingress, error) {
	conn, err := natsgo.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats: connect: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("nats: jetstream context: %w", err)
	}

	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      cfg.Stream,
		Subjects:  cfg.Subjects,
		Retention: jetstream.WorkQueuePolicy,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("nats: create/update stream %q: %w", cfg.Stream, err)
	}

	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       cfg.DurableConsumer,
		FilterSubjects: cfg.Subjects,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxAckPending: 1,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("nats: create/bind consumer %q: %w", cfg.DurableConsumer, err)
	}

	batch := cfg.FetchBatchSize
	if batch <= 0 {
		batch = 32
	}
	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &Ingress{conn: conn, consumer: consumer, batch: batch, timeout: timeout}, nil
}

// Close closes the underlying NATS connection without draining it.
func (i *Ingress) Close() {
	i.conn.Close()
}

// Fetch implements port.Ingress: it pulls up to the configured batch size
// of messages, bounded by the configured timeout, and wraps each as an
// InboundEvent whose Ack acknowledges the JetStream message.
func (i *Ingress) Fetch(ctx context.Context) ([]port.InboundEvent, error) {
	msgs, err := i.consumer.Fetch(i.batch, jetstream.FetchMaxWait(i.timeout))
	if err != nil {
		return nil, fmt.Errorf("nats: fetch: %w", err)
	}

	var events []port.InboundEvent
	for msg := range msgs.Messages() {
		msg := msg
		events = append(events, port.InboundEvent{
			Payload: msg.Data(),
			Ack:     msg.Ack,
		})
	}
	if err := msgs.Error(); err != nil && err != natsgo.ErrTimeout {
		return events, fmt.Errorf("nats: fetch stream error: %w", err)
	}
	return events, nil
}

// Decode implements port.Ingress.
func (i *Ingress) Decode(payload []byte) (domain.Message, error) {
	return Decode(payload)
}
