package bus

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"marketchat/internal/pkg/errs"
	"marketchat/internal/pkg/logx"
)

// memoryQueueSize bounds each subscription's backlog; a full queue drops the payload.
const memoryQueueSize = 1024

// ErrClosed is returned by operations on a closed in-process bus.
var ErrClosed = errors.New("bus: closed")

// MemoryBroker is an in-process stand-in for the shared broker. Every Client obtained
// from it behaves like a separate server instance connected to the same broker.
type MemoryBroker struct {
	mu   sync.RWMutex
	subs map[Channel][]*memorySub

	logger zerolog.Logger
}

// NewMemoryBroker creates an empty broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		subs:   make(map[Channel][]*memorySub),
		logger: logx.Component("MemoryBus"),
	}
}

// Client returns a new Bus connected to the broker.
func (b *MemoryBroker) Client() Bus {
	return &memoryBus{broker: b}
}

func (b *MemoryBroker) publish(channel Channel, payload []byte) {
	b.mu.RLock()
	subs := b.subs[channel]
	b.mu.RUnlock()

	for _, s := range subs {
		msg := append([]byte(nil), payload...)
		select {
		case s.queue <- msg:
		case <-s.done:
		default:
			b.logger.Warn().
				Str("channel", channel.String()).
				Msg("Subscriber queue full. Payload dropped.")
		}
	}
}

func (b *MemoryBroker) add(s *memorySub) {
	b.mu.Lock()
	b.subs[s.channel] = append(b.subs[s.channel], s)
	b.mu.Unlock()
}

func (b *MemoryBroker) remove(s *memorySub) {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.subs[s.channel]
	for i, candidate := range list {
		if candidate == s {
			b.subs[s.channel] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

type memorySub struct {
	channel Channel
	handler Handler
	queue   chan []byte
	done    chan struct{}
}

type memoryBus struct {
	broker *MemoryBroker

	mu     sync.Mutex
	subs   []*memorySub
	closed bool
	wg     sync.WaitGroup
}

func (m *memoryBus) Publish(_ context.Context, channel Channel, payload []byte) error {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()

	var err error
	switch {
	case closed:
		err = errs.Wrap(errs.ErrBusPublishFailed, ErrClosed)
	case !channel.Valid():
		err = errs.Wrap(errs.ErrBusPublishFailed, errors.New("bus: unknown channel "+string(channel)))
	}
	recordPublish(channel, err)
	if err != nil {
		return err
	}

	m.broker.publish(channel, payload)
	return nil
}

func (m *memoryBus) Subscribe(channel Channel, h Handler) error {
	if !channel.Valid() {
		return errors.New("bus: unknown channel " + string(channel))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	s := &memorySub{
		channel: channel,
		handler: h,
		queue:   make(chan []byte, memoryQueueSize),
		done:    make(chan struct{}),
	}
	m.subs = append(m.subs, s)
	m.broker.add(s)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for {
			select {
			case payload := <-s.queue:
				dispatch(m.broker.logger, channel, h, payload)
			case <-s.done:
				return
			}
		}
	}()
	return nil
}

func (m *memoryBus) Ping(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	return nil
}

func (m *memoryBus) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	subs := m.subs
	m.subs = nil
	m.mu.Unlock()

	for _, s := range subs {
		m.broker.remove(s)
		close(s.done)
	}
	m.wg.Wait()
	return nil
}
