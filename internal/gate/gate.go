// Package gate lets at most one message per conversation be handled at a
// time. The dialog core assumes this and takes no locks of its own.
package gate

import (
	"context"
	"errors"
	"sync"
)

// ErrBusy means the conversation stayed locked for longer than the caller
// was willing to wait.
var ErrBusy = errors.New("conversation busy")

type Gate interface {
	// Acquire blocks until the conversation is free. release must be called
	// exactly once.
	Acquire(ctx context.Context, conversationID string) (release func(), err error)
}

// LocalGate serializes conversations inside one process.
type LocalGate struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func NewLocalGate() *LocalGate {
	return &LocalGate{slots: make(map[string]*slot)}
}

func (g *LocalGate) Acquire(ctx context.Context, conversationID string) (func(), error) {
	g.mu.Lock()
	s, ok := g.slots[conversationID]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		g.slots[conversationID] = s
	}
	s.refs++
	g.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		g.drop(conversationID, s)
		return nil, errors.Join(ErrBusy, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			g.drop(conversationID, s)
		})
	}, nil
}

func (g *LocalGate) drop(conversationID string, s *slot) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(g.slots, conversationID)
	}
}

// Len reports how many conversations hold or wait for the gate.
func (g *LocalGate) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.slots)
}
