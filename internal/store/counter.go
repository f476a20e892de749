package store

import "sync/atomic"

// Counter tracks outstanding records. It is eventually consistent with the
// backend, not linearizable with it.
type Counter struct {
	n atomic.Int64
}

// Inc adds one and returns the new value.
func (c *Counter) Inc() int64 { return c.n.Add(1) }

// Dec subtracts one and returns the new value.
func (c *Counter) Dec() int64 { return c.n.Add(-1) }

// Value returns the current count.
func (c *Counter) Value() int64 { return c.n.Load() }

// Set overwrites the count.
func (c *Counter) Set(v int64) { c.n.Store(v) }
