package broker

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"go-realtime-events/internal/infrastructure/logger"
)

// Redis publishes and subscribes on one Redis Pub/Sub channel.
type Redis struct {
	client  *redis.Client
	channel string
	policy  ReconnectPolicy
	logger  logger.Logger
}

// NewRedisClient parses a redis:// URL. The client connects lazily.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	return redis.NewClient(opts), nil
}

func NewRedis(client *redis.Client, channel string, policy ReconnectPolicy, log logger.Logger) *Redis {
	return &Redis{
		client:  client,
		channel: channel,
		policy:  policy,
		logger:  log.WithFields(logger.Fields{"component": "broker", "driver": "redis", "channel": channel}),
	}
}

// Ping checks that the server is reachable.
func (r *Redis) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Publish(ctx context.Context, payload []byte) error {
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		if errors.Is(err, redis.ErrClosed) {
			return ErrClosed
		}
		return errors.Wrap(err, "redis publish")
	}
	return nil
}

func (r *Redis) Subscribe(ctx context.Context, handle Handler) error {
	b := r.policy.newBackOff()
	for {
		err := r.subscribeOnce(ctx, handle, b.Reset)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, redis.ErrClosed) {
			return ErrClosed
		}

		delay := b.NextBackOff()
		r.logger.WithError(err).Warnf("subscription lost, resubscribing in %s", delay)
		if sleep(ctx, delay) != nil {
			return nil
		}
	}
}

// subscribeOnce runs one subscription until it fails. onSubscribed is called once the
// server confirmed the subscription.
func (r *Redis) subscribeOnce(ctx context.Context, handle Handler, onSubscribed func()) error {
	ps := r.client.Subscribe(ctx, r.channel)
	defer ps.Close()

	// ReceiveMessage does not watch ctx; closing the subscription unblocks it.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = ps.Close()
		case <-stop:
		}
	}()

	if _, err := ps.Receive(ctx); err != nil {
		return errors.Wrap(err, "redis subscribe")
	}
	onSubscribed()
	r.logger.Info("subscribed")

	for {
		msg, err := ps.ReceiveMessage(ctx)
		if err != nil {
			return errors.Wrap(err, "redis receive")
		}
		handle([]byte(msg.Payload))
	}
}

func (r *Redis) Close() error {
	return r.client.Close()
}
