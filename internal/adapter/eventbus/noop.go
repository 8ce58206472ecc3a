// Package eventbus provides EventPublisher implementations observing
// broker state transitions without participating in them.
package eventbus

import "github.com/hordebroker/broker/internal/domain"

// Noop discards every event. It is the default publisher when no
// event-bus backend is configured.
type Noop struct{}

// PublishGenerationCompleted does nothing.
func (Noop) PublishGenerationCompleted(_ domain.Context, _ domain.GenerationCompletedEvent) {}
