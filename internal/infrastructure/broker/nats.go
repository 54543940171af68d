package broker

import (
	"context"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"

	"go-realtime-events/internal/infrastructure/logger"
)

// NATS publishes and subscribes on one core NATS subject. The client reconnects and
// restores the subscription by itself.
type NATS struct {
	conn    *nats.Conn
	subject string
	logger  logger.Logger
}

func DialNATS(url, subject string, policy ReconnectPolicy, log logger.Logger) (*NATS, error) {
	l := log.WithFields(logger.Fields{"component": "broker", "driver": "nats", "subject": subject})

	conn, err := nats.Connect(url,
		nats.Name("realtime-events"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(policy.Min),
		// no client-side buffering while disconnected: publishes fail instead
		nats.ReconnectBufSize(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				l.WithError(err).Warn("disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			l.Infof("reconnected to %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, errors.Wrap(err, "nats connect")
	}

	return &NATS{conn: conn, subject: subject, logger: l}, nil
}

func (n *NATS) Publish(ctx context.Context, payload []byte) error {
	if err := n.conn.Publish(n.subject, payload); err != nil {
		if errors.Is(err, nats.ErrConnectionClosed) {
			return ErrClosed
		}
		return errors.Wrap(err, "nats publish")
	}
	return nil
}

func (n *NATS) Subscribe(ctx context.Context, handle Handler) error {
	sub, err := n.conn.Subscribe(n.subject, func(msg *nats.Msg) {
		handle(msg.Data)
	})
	if err != nil {
		if errors.Is(err, nats.ErrConnectionClosed) {
			return ErrClosed
		}
		return errors.Wrap(err, "nats subscribe")
	}
	n.logger.Info("subscribed")

	<-ctx.Done()
	if err := sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		n.logger.WithError(err).Warn("unsubscribe failed")
	}
	return nil
}

func (n *NATS) Close() error {
	n.conn.Close()
	return nil
}
