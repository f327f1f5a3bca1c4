// Package events fans a committed domain change out to every subscriber.
package events

import (
	"context"
)

// Publisher receives domain events. The webhook and statistics services implement it.
type Publisher interface {
	Publish(ctx context.Context, eventType string, data map[string]interface{})
}

// Fanout forwards each event to all publishers in order. Nil entries are skipped.
type Fanout []Publisher

func NewFanout(publishers ...Publisher) Fanout {
	out := make(Fanout, 0, len(publishers))
	for _, p := range publishers {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}

func (f Fanout) Publish(ctx context.Context, eventType string, data map[string]interface{}) {
	for _, p := range f {
		p.Publish(ctx, eventType, data)
	}
}
