package progress

import "context"

// Sink consumes batches of progress events. Implementations must honor ctx
// deadlines and tolerate Consume after a previous error.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// Emitter publishes individual events. Hub satisfies it, and a nil *Hub is a
// valid no-op emitter.
type Emitter interface {
	Emit(evt Event)
}
