package nats

import (
	"context"
	"fmt"
	"strings"
	"time"

	natsgo "github.com/nats-io/nats.go"

	"fermentctl/internal/domain"
	"fermentctl/internal/observability"
	"fermentctl/internal/port"
)

// Publisher implements port.Publisher by publishing a HardwareAction's
// on/off payload to the subject produced by substituting "{model}" and
// "{deviceid}" into a topic template (spec §6's outbound device topic
// rule).
type Publisher struct {
	conn     *natsgo.Conn
	template string
	model    string
	metrics  *observability.Metrics
}

// NewPublisher wraps an existing NATS connection as a port.Publisher.
// template must contain the literal placeholders "{model}" and
// "{deviceid}"; model is the deployment's device model constant. metrics
// may be nil, in which case no counters are recorded.
func NewPublisher(conn *natsgo.Conn, template, model string, metrics *observability.Metrics) *Publisher {
	return &Publisher{conn: conn, template: template, model: model, metrics: metrics}
}

var _ port.Publisher = (*Publisher)(nil)

// Publish sends the action's payload ("on"/"off") to the device's subject.
func (p *Publisher) Publish(ctx context.Context, action domain.HardwareAction) error {
	subject := strings.NewReplacer(
		"{model}", p.model,
		"{deviceid}", action.DeviceID,
	).Replace(p.template)

	start := time.Now()
	err := p.conn.Publish(subject, []byte(action.Kind.Payload()))
	if p.metrics != nil {
		p.metrics.PublishLatency.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return fmt.Errorf("nats: publish to %q: %w", subject, err)
	}
	return nil
}
