package transport

import "time"

// Backoff doubles the reconnect delay from Min up to Max. It never gives up.
type Backoff struct {
	Min time.Duration
	Max time.Duration

	attempts int
}

// Next returns the delay before the next attempt and advances the sequence.
func (b *Backoff) Next() time.Duration {
	lo, hi := b.Min, b.Max
	if lo <= 0 {
		lo = time.Second
	}
	if hi < lo {
		hi = lo
	}
	d := lo
	for i := 0; i < b.attempts && d < hi; i++ {
		if d > hi/2 {
			d = hi
			break
		}
		d *= 2
	}
	if d > hi {
		d = hi
	}
	b.attempts++
	return d
}

// Reset starts the sequence over. Called after a connection opens.
func (b *Backoff) Reset() { b.attempts = 0 }
