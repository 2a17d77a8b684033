package port

import (
	"context"

	"fermentctl/internal/domain"
)

// Publisher is the driven port for emitting hardware actuation messages
// (spec §4.4). Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, action domain.HardwareAction) error
}
