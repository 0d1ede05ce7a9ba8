package asmpack

// Sink is the byte destination a writer emits into. Destinations have a
// current capacity; a writer commits batches no larger than Room and
// suspends when the batch does not fit, resuming once the caller signals
// more room by invoking it again.
type Sink interface {
	// Room returns the number of bytes the sink can accept right now.
	Room() int
	// Write appends p to the destination. Callers never pass more than
	// Room() bytes; a short or failed write is a destination fault, not
	// backpressure.
	Write(p []byte) (int, error)
}
