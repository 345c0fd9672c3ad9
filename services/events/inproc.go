// Package eventsvc delivers domain events, in process or through RabbitMQ.
package eventsvc

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo-audit/core"
	"github.com/trezcool/masomo-audit/core/event"
)

// Bus hands every published event to its subscribers synchronously, in subscription order.
type Bus struct {
	mu       sync.RWMutex
	handlers []event.Handler
	log      core.Logger
}

var _ event.Publisher = (*Bus)(nil)

func NewBus(log core.Logger) *Bus {
	return &Bus{log: log}
}

func (b *Bus) Subscribe(h event.Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Publish returns the first handler error; the remaining handlers still run.
func (b *Bus) Publish(ctx context.Context, ev event.Event) error {
	b.mu.RLock()
	handlers := append([]event.Handler(nil), b.handlers...)
	b.mu.RUnlock()

	var firstErr error
	for _, h := range handlers {
		if err := h.HandleEvent(ctx, ev); err != nil {
			b.log.Error(fmt.Sprintf("handling %s event: %v", ev.Type, err), err)
			if firstErr == nil {
				firstErr = errors.Wrapf(err, "handling %s event", ev.Type)
			}
		}
	}
	return firstErr
}
