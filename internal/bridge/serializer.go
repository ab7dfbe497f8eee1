package bridge

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Op is one unit of work run by the Serializer.
type Op func() error

// pendingCommand is an Op waiting for the worker.
type pendingCommand struct {
	id         uint64
	op         Op
	onComplete func(error)
}

// Serializer runs submitted operations one at a time, in submission order,
// on a single worker goroutine.
type Serializer struct {
	logger *zap.Logger

	mu      sync.Mutex
	queue   []*pendingCommand
	nextID  uint64
	running bool
	closed  bool
	wake    chan struct{}

	wg sync.WaitGroup
}

// NewSerializer starts the worker.
func NewSerializer(logger *zap.Logger) *Serializer {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Serializer{
		logger: logger,
		wake:   make(chan struct{}, 1),
	}

	s.wg.Add(1)
	go s.worker()

	return s
}

// Execute enqueues op. onComplete is called exactly once from the worker
// with op's result. Execute never waits for op to run.
func (s *Serializer) Execute(op Op, onComplete func(error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSerializerUnavailable
	}

	s.nextID++
	s.queue = append(s.queue, &pendingCommand{id: s.nextID, op: op, onComplete: onComplete})

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return nil
}

// Submit enqueues op and returns a Future for its result.
func (s *Serializer) Submit(op Op) *Future {
	f := newFuture()
	if err := s.Execute(op, f.resolve); err != nil {
		f.resolve(err)
	}
	return f
}

// Do enqueues op and waits for it. Cancelling ctx abandons the wait only.
func (s *Serializer) Do(ctx context.Context, op Op) error {
	return Await(ctx, func(onComplete func(error)) error {
		return s.Execute(op, onComplete)
	})
}

// Pending returns the number of queued commands, including the running one.
func (s *Serializer) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.queue)
	if s.running {
		n++
	}
	return n
}

func (s *Serializer) worker() {
	defer s.wg.Done()

	for {
		cmd, ok := s.next()
		if !ok {
			return
		}

		err := s.run(cmd)

		s.mu.Lock()
		s.running = false
		s.mu.Unlock()

		cmd.onComplete(err)
	}
}

// next blocks until a command is queued or the serializer is closed.
func (s *Serializer) next() (*pendingCommand, bool) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			cmd := s.queue[0]
			s.queue[0] = nil
			s.queue = s.queue[1:]
			s.running = true
			s.mu.Unlock()
			return cmd, true
		}
		if s.closed {
			s.mu.Unlock()
			return nil, false
		}
		s.mu.Unlock()

		<-s.wake
	}
}

func (s *Serializer) run(cmd *pendingCommand) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("serialized command panicked",
				zap.Uint64("command", cmd.id),
				zap.Any("panic", r),
			)
			err = fmt.Errorf("command %d panicked: %v", cmd.id, r)
		}
	}()
	return cmd.op()
}

// Stop refuses new work, fails everything still queued with
// ErrSerializerUnavailable and waits for the running command, if any, until
// ctx ends.
func (s *Serializer) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	dropped := s.queue
	s.queue = nil
	close(s.wake)
	s.mu.Unlock()

	for _, cmd := range dropped {
		cmd.onComplete(ErrSerializerUnavailable)
	}
	if len(dropped) > 0 {
		s.logger.Info("serializer stopped with queued commands", zap.Int("dropped", len(dropped)))
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
