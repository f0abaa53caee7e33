package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketchat/internal/pkg/errs"
)

type recorder struct {
	mu       sync.Mutex
	payloads []string
	channels []Channel
}

func (r *recorder) Handle(channel Channel, payload []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads = append(r.payloads, string(payload))
	r.channels = append(r.channels, channel)
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.payloads...)
}

func waitFor(t *testing.T, r *recorder, n int) []string {
	t.Helper()
	require.Eventually(t, func() bool { return len(r.snapshot()) >= n }, 2*time.Second, 5*time.Millisecond)
	return r.snapshot()
}

func TestChannelValid(t *testing.T) {
	assert.True(t, ChannelChat.Valid())
	assert.True(t, ChannelNotification.Valid())
	assert.False(t, Channel("room:1").Valid())
}

func TestMemoryBusEveryInstanceReceives(t *testing.T) {
	broker := NewMemoryBroker()
	instance1, instance2 := broker.Client(), broker.Client()
	defer instance1.Close()
	defer instance2.Close()

	var chat1, chat2, notes recorder
	require.NoError(t, instance1.Subscribe(ChannelChat, &chat1))
	require.NoError(t, instance2.Subscribe(ChannelChat, &chat2))
	require.NoError(t, instance2.Subscribe(ChannelNotification, &notes))

	ctx := context.Background()
	require.NoError(t, instance1.Publish(ctx, ChannelChat, []byte("a")))
	require.NoError(t, instance2.Publish(ctx, ChannelChat, []byte("b")))
	require.NoError(t, instance1.Publish(ctx, ChannelNotification, []byte("n")))

	assert.Equal(t, []string{"a", "b"}, waitFor(t, &chat1, 2))
	assert.Equal(t, []string{"a", "b"}, waitFor(t, &chat2, 2))
	assert.Equal(t, []string{"n"}, waitFor(t, &notes, 1))
	assert.Equal(t, []Channel{ChannelNotification}, notes.channels)
}

func TestMemoryBusPanickingHandlerKeepsSubscription(t *testing.T) {
	broker := NewMemoryBroker()
	b := broker.Client()
	defer b.Close()

	var got recorder
	require.NoError(t, b.Subscribe(ChannelChat, HandlerFunc(func(c Channel, p []byte) {
		if string(p) == "boom" {
			panic("handler failure")
		}
		got.Handle(c, p)
	})))

	ctx := context.Background()
	require.NoError(t, b.Publish(ctx, ChannelChat, []byte("boom")))
	require.NoError(t, b.Publish(ctx, ChannelChat, []byte("after")))

	assert.Equal(t, []string{"after"}, waitFor(t, &got, 1))
}

func TestMemoryBusClose(t *testing.T) {
	broker := NewMemoryBroker()
	closing, staying := broker.Client(), broker.Client()
	defer staying.Close()

	var closed, open recorder
	require.NoError(t, closing.Subscribe(ChannelChat, &closed))
	require.NoError(t, staying.Subscribe(ChannelChat, &open))

	require.NoError(t, closing.Close())
	require.NoError(t, closing.Close())

	err := closing.Publish(context.Background(), ChannelChat, []byte("x"))
	assert.True(t, errs.IsCode(err, errs.ErrBusPublishFailed))
	assert.Error(t, closing.Subscribe(ChannelChat, &closed))
	assert.Error(t, closing.Ping(context.Background()))

	require.NoError(t, staying.Publish(context.Background(), ChannelChat, []byte("y")))
	assert.Equal(t, []string{"y"}, waitFor(t, &open, 1))
	assert.Empty(t, closed.snapshot())
}

func TestMemoryBusRejectsUnknownChannel(t *testing.T) {
	b := NewMemoryBroker().Client()
	defer b.Close()

	assert.Error(t, b.Subscribe(Channel("room:1"), &recorder{}))
	err := b.Publish(context.Background(), Channel("room:1"), []byte("x"))
	assert.True(t, errs.IsCode(err, errs.ErrBusPublishFailed))
}

func newRedisPair(t *testing.T) (*miniredis.Miniredis, *RedisBus, *RedisBus) {
	t.Helper()
	srv := miniredis.RunT(t)
	names := ChannelNames{ChannelChat: "chat", ChannelNotification: "notification"}
	a := NewRedisBusFromClient(redis.NewClient(&redis.Options{Addr: srv.Addr()}), names)
	b := NewRedisBusFromClient(redis.NewClient(&redis.Options{Addr: srv.Addr()}), names)
	t.Cleanup(func() {
		_ = a.Close()
		_ = b.Close()
	})
	return srv, a, b
}

func TestRedisBusFanoutAcrossInstances(t *testing.T) {
	_, instance1, instance2 := newRedisPair(t)

	var chat1, chat2, notes recorder
	require.NoError(t, instance1.Subscribe(ChannelChat, &chat1))
	require.NoError(t, instance2.Subscribe(ChannelChat, &chat2))
	require.NoError(t, instance2.Subscribe(ChannelNotification, &notes))

	ctx := context.Background()
	require.NoError(t, instance1.Ping(ctx))
	require.NoError(t, instance1.Publish(ctx, ChannelChat, []byte(`{"kind":"CHAT_MESSAGE"}`)))
	require.NoError(t, instance1.Publish(ctx, ChannelNotification, []byte(`{"kind":"NOTIFICATION"}`)))

	assert.Equal(t, []string{`{"kind":"CHAT_MESSAGE"}`}, waitFor(t, &chat1, 1))
	assert.Equal(t, []string{`{"kind":"CHAT_MESSAGE"}`}, waitFor(t, &chat2, 1))
	assert.Equal(t, []string{`{"kind":"NOTIFICATION"}`}, waitFor(t, &notes, 1))
}

func TestRedisBusPublishFailure(t *testing.T) {
	srv, instance1, _ := newRedisPair(t)
	srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := instance1.Publish(ctx, ChannelChat, []byte("x"))
	assert.True(t, errs.IsCode(err, errs.ErrBusPublishFailed))
}

func TestRedisBusUnknownChannel(t *testing.T) {
	_, instance1, _ := newRedisPair(t)

	err := instance1.Publish(context.Background(), Channel("other"), []byte("x"))
	assert.True(t, errs.IsCode(err, errs.ErrBusPublishFailed))
	assert.Error(t, instance1.Subscribe(Channel("other"), &recorder{}))
}

func TestRedisBusCloseEndsSubscriptions(t *testing.T) {
	_, instance1, _ := newRedisPair(t)

	require.NoError(t, instance1.Subscribe(ChannelChat, &recorder{}))
	require.NoError(t, instance1.Close())
	assert.Error(t, instance1.Subscribe(ChannelChat, &recorder{}))
}
