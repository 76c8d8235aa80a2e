package messaging

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// InstanceGate serializes gateway calls per instance and paces them so that two
// calls on one instance are at least minInterval apart. Calls on different
// instances run in parallel.
type InstanceGate struct {
	mu          sync.Mutex
	lanes       map[string]*lane
	minInterval time.Duration
}

type lane struct {
	slot    chan struct{}
	limiter *rate.Limiter
}

func NewInstanceGate(minInterval time.Duration) *InstanceGate {
	return &InstanceGate{lanes: map[string]*lane{}, minInterval: minInterval}
}

func (g *InstanceGate) lane(instanceID string) *lane {
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.lanes[instanceID]
	if !ok {
		limit := rate.Inf
		if g.minInterval > 0 {
			limit = rate.Every(g.minInterval)
		}
		l = &lane{slot: make(chan struct{}, 1), limiter: rate.NewLimiter(limit, 1)}
		g.lanes[instanceID] = l
	}
	return l
}

// Do runs fn while holding the instance slot
func (g *InstanceGate) Do(ctx context.Context, instanceID string, fn func(ctx context.Context) error) error {
	l := g.lane(instanceID)
	select {
	case l.slot <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-l.slot }()

	if err := l.limiter.Wait(ctx); err != nil {
		return err
	}
	return fn(ctx)
}
