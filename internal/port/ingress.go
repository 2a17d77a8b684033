package port

import (
	"context"

	"fermentctl/internal/domain"
)

// InboundEvent is one undecoded message pulled from the transport, plus
// the callback used to acknowledge it once processing has finished
// (successfully or not — spec §5/§7: acknowledgement is unconditional).
type InboundEvent struct {
	Payload []byte
	Ack     func() error
}

// Ingress is the driven port for pulling and decoding inbound events
// (spec §4.5).
type Ingress interface {
	// Fetch waits for events up to an implementation-defined bound and
	// returns what arrived in that time, which may be none.
	Fetch(ctx context.Context) ([]InboundEvent, error)

	// Decode parses a raw payload into a domain Message.
	Decode(payload []byte) (domain.Message, error)
}
