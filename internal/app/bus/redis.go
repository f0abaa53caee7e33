package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"marketchat/internal/pkg/errs"
	"marketchat/internal/pkg/logx"
)

// RedisOptions configures the connection to the shared Redis broker.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Names    ChannelNames
}

// RedisBus implements Bus on Redis PUBLISH/SUBSCRIBE.
// Each subscription owns one Redis connection and one delivery goroutine.
type RedisBus struct {
	client *redis.Client
	names  ChannelNames

	mu     sync.Mutex
	subs   []*redis.PubSub
	closed bool
	wg     sync.WaitGroup

	logger zerolog.Logger
}

// NewRedisBus connects to Redis. An unreachable broker is logged but not fatal;
// go-redis reconnects on demand.
func NewRedisBus(ctx context.Context, opts RedisOptions) *RedisBus {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	b := NewRedisBusFromClient(client, opts.Names)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		b.logger.Warn().Err(err).Str("addr", opts.Addr).Msg("Unable to reach redis")
	} else {
		b.logger.Info().Str("addr", opts.Addr).Msg("Connected to redis")
	}

	return b
}

// NewRedisBusFromClient wraps an existing client. The bus takes ownership of client.
func NewRedisBusFromClient(client *redis.Client, names ChannelNames) *RedisBus {
	if names == nil {
		names = DefaultChannelNames()
	}
	return &RedisBus{
		client: client,
		names:  names,
		logger: logx.Component("RedisBus"),
	}
}

// Publish implements Bus.
func (b *RedisBus) Publish(ctx context.Context, channel Channel, payload []byte) error {
	name, err := b.names.resolve(channel)
	if err != nil {
		return errs.Wrap(errs.ErrBusPublishFailed, err)
	}

	err = b.client.Publish(ctx, name, payload).Err()
	recordPublish(channel, err)
	if err != nil {
		return errs.Wrap(errs.ErrBusPublishFailed, fmt.Errorf("publish to %s: %w", name, err))
	}
	return nil
}

// Subscribe implements Bus. It returns once Redis has confirmed the subscription.
func (b *RedisBus) Subscribe(channel Channel, h Handler) error {
	name, err := b.names.resolve(channel)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return errors.New("bus: closed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ps := b.client.Subscribe(ctx, name)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return fmt.Errorf("bus: subscribe to %s: %w", name, err)
	}

	b.subs = append(b.subs, ps)
	b.wg.Add(1)
	go b.consume(channel, ps, h)

	b.logger.Info().
		Str("channel", channel.String()).
		Str("redis_channel", name).
		Msg("Subscribed to bus channel.")
	return nil
}

func (b *RedisBus) consume(channel Channel, ps *redis.PubSub, h Handler) {
	defer b.wg.Done()

	for msg := range ps.Channel() {
		dispatch(b.logger, channel, h, []byte(msg.Payload))
	}

	b.logger.Info().Str("channel", channel.String()).Msg("Bus subscription ended.")
}

// Ping implements Bus.
func (b *RedisBus) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Close implements Bus.
func (b *RedisBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	var closeErr error
	for _, ps := range subs {
		if err := ps.Close(); err != nil {
			closeErr = errors.Join(closeErr, err)
		}
	}
	b.wg.Wait()

	if err := b.client.Close(); err != nil {
		closeErr = errors.Join(closeErr, err)
	}
	return closeErr
}
