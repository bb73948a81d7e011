package main

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

const jitterWindow = 250 * time.Millisecond

type publisherFactory func(topic string) publisher

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// publisherCache keeps one publisher per topic for the life of the service.
type publisherCache struct {
	mu      sync.Mutex
	factory publisherFactory
	byTopic map[string]publisher
}

func newPublisherCache(factory publisherFactory) *publisherCache {
	return &publisherCache{factory: factory, byTopic: map[string]publisher{}}
}

func (c *publisherCache) get(topic string) publisher {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.byTopic[topic]; ok {
		return p
	}
	p := c.factory(topic)
	if p != nil {
		c.byTopic[topic] = p
	}
	return p
}

// stop flushes and drops every cached publisher.
func (c *publisherCache) stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for topic, p := range c.byTopic {
		if s, ok := p.(interface{ Stop() }); ok {
			s.Stop()
		}
		delete(c.byTopic, topic)
	}
}

// gcpPublisher publishes with per-aggregate ordering keys. A failed publish
// pauses its key inside the client, so the key is resumed once the failure is
// observed and the row will be retried on a later batch.
type gcpPublisher struct {
	pub *gcppubsub.Publisher
}

func newGCPPublisher(p *gcppubsub.Publisher) publisher {
	if p == nil {
		return nil
	}
	p.EnableMessageOrdering = true
	return &gcpPublisher{pub: p}
}

func (g *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return &gcpResult{
		res:    g.pub.Publish(ctx, msg),
		resume: func() { g.pub.ResumePublish(msg.OrderingKey) },
	}
}

func (g *gcpPublisher) Stop() { g.pub.Stop() }

type gcpResult struct {
	res    *gcppubsub.PublishResult
	resume func()
}

func (r *gcpResult) Get(ctx context.Context) (string, error) {
	if r.res == nil {
		return "", errors.New("publish result is nil")
	}
	id, err := r.res.Get(ctx)
	if err != nil {
		r.resume()
	}
	return id, err
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextBackoff(current, base, limit time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	return min(current*2, limit)
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + rand.N(jitterWindow)
}
