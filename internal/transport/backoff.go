package transport

import "time"

// Backoff produces reconnect delays that start at Base and double on each
// consecutive failure until Cap. Reset starts the sequence over after a
// successful connect.
type Backoff struct {
	Base time.Duration
	Cap  time.Duration

	attempts int
}

// Next returns the delay to wait before the next attempt and advances the
// sequence.
func (b *Backoff) Next() time.Duration {
	base := b.Base
	if base <= 0 {
		base = time.Second
	}
	cap := b.Cap
	if cap <= 0 {
		cap = 30 * time.Second
	}

	d := base
	for i := 0; i < b.attempts && d < cap; i++ {
		d *= 2
	}
	if d > cap {
		d = cap
	}
	b.attempts++
	return d
}

// Reset returns the sequence to its starting delay.
func (b *Backoff) Reset() {
	b.attempts = 0
}

// Attempts returns the number of delays handed out since the last reset.
func (b *Backoff) Attempts() int {
	return b.attempts
}
