package filesystem

import (
	"context"
	"sync"
)

// pathLocks serializes writes to the same file while writes to different
// files run concurrently. A slot is a one-element channel so waiting can be
// abandoned when the tool call's context ends.
type pathLocks struct {
	mu    sync.Mutex
	slots map[string]*pathSlot
}

type pathSlot struct {
	ch    chan struct{}
	users int // holders plus waiters
}

func newPathLocks() *pathLocks {
	return &pathLocks{slots: make(map[string]*pathSlot)}
}

// acquire blocks until path is free or ctx is done. The returned release
// function must be called exactly once on success.
func (l *pathLocks) acquire(ctx context.Context, path string) (release func(), err error) {
	l.mu.Lock()
	s, ok := l.slots[path]
	if !ok {
		s = &pathSlot{ch: make(chan struct{}, 1)}
		l.slots[path] = s
	}
	s.users++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
		return func() {
			<-s.ch
			l.leave(path, s)
		}, nil
	case <-ctx.Done():
		l.leave(path, s)
		return nil, ctx.Err()
	}
}

func (l *pathLocks) leave(path string, s *pathSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s.users--
	if s.users == 0 {
		delete(l.slots, path)
	}
}

// tracked returns the number of paths with a holder or waiter.
func (l *pathLocks) tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.slots)
}
