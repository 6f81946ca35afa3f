package llm

import (
	"context"
	"io"
	"sync"
)

// eventStream runs a producer goroutine that writes events to a
// channel. Recv yields events in order, then the producer's error, or
// io.EOF on clean completion. Close cancels the producer and drains.
type eventStream struct {
	cancel context.CancelFunc
	events chan Event
	result chan error

	once sync.Once
	err  error
}

func newEventStream(ctx context.Context, run func(ctx context.Context, events chan<- Event) error) Stream {
	ctx, cancel := context.WithCancel(ctx)
	s := &eventStream{
		cancel: cancel,
		events: make(chan Event, 16),
		result: make(chan error, 1),
	}
	go func() {
		err := run(ctx, s.events)
		s.result <- err
		close(s.events)
	}()
	return s
}

func (s *eventStream) Recv() (Event, error) {
	event, ok := <-s.events
	if !ok {
		s.once.Do(func() { s.err = <-s.result })
		if s.err != nil {
			return Event{}, s.err
		}
		return Event{}, io.EOF
	}
	return event, nil
}

func (s *eventStream) Close() error {
	s.cancel()
	for range s.events {
	}
	return nil
}
