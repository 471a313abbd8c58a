package comment

import (
	"fmt"
	"math/rand"
)

// DefaultRate is the chance that an injection point actually consumes a
// queued comment.
const DefaultRate = 1.0

// injectTemplate phrases a viewer comment as a conversation prompt. The
// neutral tag keeps the reading voice calm.
const injectTemplate = "[neutral]コメントで「%s」って流れてたけど、どう思う？"

// Injector decides at each topic boundary whether a queued viewer
// comment replaces the scripted line.
type Injector struct {
	queue *Queue
	rate  float64

	// randFloat is swappable in tests.
	randFloat func() float64
}

// NewInjector wraps a queue with an injection probability. Rates at or
// below zero disable injection; rates above one always inject.
func NewInjector(q *Queue, rate float64) *Injector {
	return &Injector{
		queue:     q,
		rate:      rate,
		randFloat: rand.Float64,
	}
}

// MaybeInject returns either the given line unchanged, or a queued
// comment phrased as a question. The original line wins when the draw
// misses or no fresh comment is available.
func (i *Injector) MaybeInject(defaultLine string) string {
	if i.randFloat() >= i.rate {
		return defaultLine
	}
	c, ok := i.queue.PopDeduped()
	if !ok {
		return defaultLine
	}
	return fmt.Sprintf(injectTemplate, c)
}
