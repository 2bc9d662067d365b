package resolve

import (
	"sync"
)

// CounterKey identifies one run-counter sequence: the scope of the file and
// the fully resolved entity tuple without the counter entity.
type CounterKey struct {
	Subject string
	Session string
	Group   string
	// Rule identifies the rule, including its fingerprint, so rules with the
	// same position in different templates never share a sequence.
	Rule string
	// Entities is the canonical encoding of the other resolved entities.
	Entities string
}

// Counters is the live run-counter table. Every draw is an atomic
// check-and-increment, so concurrent resolutions never share a value for
// the same key.
type Counters struct {
	mu   sync.Mutex
	next map[CounterKey]int
}

// NewCounters returns an empty counter table.
func NewCounters() *Counters {
	return &Counters{next: make(map[CounterKey]int)}
}

// Next returns the next value for key: start on first use, then start+1,
// start+2, ... without repeats or gaps.
func (c *Counters) Next(key CounterKey, start int) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.next[key]
	if !ok {
		n = start
	}

	c.next[key] = n + 1

	return n
}

// Peek returns the value the next draw for key would yield.
func (c *Counters) Peek(key CounterKey) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.next[key]

	return n, ok
}

// Len returns the number of live sequences.
func (c *Counters) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.next)
}

// Reset forgets every sequence.
func (c *Counters) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	clear(c.next)
}
