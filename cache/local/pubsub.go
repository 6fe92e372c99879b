package local

import (
	"context"
	"sync"
)

// LocalMessage is an in-process pub/sub message.
type LocalMessage struct {
	Channel string
	Payload string
}

type subscription struct {
	ch chan *LocalMessage
}

// LocalPubSub is an in-process fan-out pub/sub implementation. Delivery is
// best-effort: slow subscribers with full buffers miss messages rather than
// blocking publishers.
type LocalPubSub struct {
	mu      sync.RWMutex
	subs    map[string]map[*subscription]struct{}
	bufSize int
}

// NewPubSub creates a LocalPubSub with the given per-subscriber buffer size.
func NewPubSub(bufSize int) *LocalPubSub {
	if bufSize <= 0 {
		bufSize = 256
	}
	return &LocalPubSub{
		subs:    make(map[string]map[*subscription]struct{}),
		bufSize: bufSize,
	}
}

// Publish sends a message to every subscriber of channel.
func (ps *LocalPubSub) Publish(_ context.Context, channel, message string) error {
	msg := &LocalMessage{Channel: channel, Payload: message}
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	for sub := range ps.subs[channel] {
		select {
		case sub.ch <- msg:
		default:
			// full buffer, drop
		}
	}
	return nil
}

// Subscribe returns a message channel covering all given channels and a
// cancel function. Cancel is idempotent and closes the channel.
func (ps *LocalPubSub) Subscribe(_ context.Context, channels ...string) (<-chan *LocalMessage, func(), error) {
	sub := &subscription{ch: make(chan *LocalMessage, ps.bufSize)}

	ps.mu.Lock()
	for _, name := range channels {
		set := ps.subs[name]
		if set == nil {
			set = make(map[*subscription]struct{})
			ps.subs[name] = set
		}
		set[sub] = struct{}{}
	}
	ps.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			ps.mu.Lock()
			for _, name := range channels {
				if set := ps.subs[name]; set != nil {
					delete(set, sub)
					if len(set) == 0 {
						delete(ps.subs, name)
					}
				}
			}
			ps.mu.Unlock()
			close(sub.ch)
		})
	}

	return sub.ch, cancel, nil
}
