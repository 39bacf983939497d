package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyang/job-dispatch/internal/domain/event"
	porteventbus "github.com/alanyang/job-dispatch/internal/port/eventbus"
)

var _ porteventbus.EventBus = (*EventBus)(nil)

// retryDelay is the pause before re-acquiring a LISTEN connection that dropped.
const retryDelay = time.Second

// EventBus publishes with pg_notify and delivers through LISTEN, so every dispatcher process
// sharing the database sees every event.
type EventBus struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *EventBus {
	return &EventBus{pool: pool}
}

// Publish sends an event via Postgres NOTIFY on the domain channel for the event type.
// Inside a transaction the notification is delivered on commit.
func (eb *EventBus) Publish(ctx context.Context, e event.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}

	channel := ChannelName(event.ChannelFor(e.Type))
	if _, err := eb.pool.Exec(ctx, "SELECT pg_notify($1, $2)", channel, string(payload)); err != nil {
		return fmt.Errorf("publishing event on channel %s: %w", channel, err)
	}
	return nil
}

// Subscribe LISTENs on the domain channel from a dedicated connection and invokes handler for
// every event published to it. A dropped connection is re-acquired until the subscription is
// cancelled; events sent while it was down are lost.
func (eb *EventBus) Subscribe(ctx context.Context, ch event.Channel, handler porteventbus.Handler) (porteventbus.Subscription, error) {
	channel := ChannelName(ch)
	conn, err := eb.listen(ctx, channel)
	if err != nil {
		return nil, err
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(sub.done)
		for {
			eb.consume(subCtx, conn, channel, handler)
			if subCtx.Err() != nil {
				return
			}
			slog.WarnContext(subCtx, "event listener dropped, reconnecting", "channel", channel)
			if conn = eb.relisten(subCtx, channel); conn == nil {
				return
			}
		}
	}()

	return sub, nil
}

func (eb *EventBus) listen(ctx context.Context, channel string) (*pgxpool.Conn, error) {
	conn, err := eb.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring connection for LISTEN: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+channel); err != nil {
		conn.Release()
		return nil, fmt.Errorf("executing LISTEN on channel %s: %w", channel, err)
	}
	return conn, nil
}

// relisten retries listen until it succeeds or ctx ends, in which case it returns nil.
func (eb *EventBus) relisten(ctx context.Context, channel string) *pgxpool.Conn {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(retryDelay):
		}
		conn, err := eb.listen(ctx, channel)
		if err == nil {
			return conn
		}
		slog.ErrorContext(ctx, "failed to re-listen", "channel", channel, "error", err)
	}
}

// consume delivers notifications until ctx ends or the connection fails. It always releases conn.
func (eb *EventBus) consume(ctx context.Context, conn *pgxpool.Conn, channel string, handler porteventbus.Handler) {
	defer func() {
		if ctx.Err() != nil {
			conn.Exec(context.Background(), "UNLISTEN "+channel) //nolint:errcheck
			conn.Release()
			return
		}
		// A broken connection must not go back to the pool.
		conn.Hijack().Close(context.Background()) //nolint:errcheck
	}()

	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return
		}

		var e event.Event
		if err := json.Unmarshal([]byte(notification.Payload), &e); err != nil {
			slog.WarnContext(ctx, "dropping malformed event", "channel", channel, "error", err)
			continue
		}
		handler(ctx, e)
	}
}

// ChannelName converts a domain Channel to a safe Postgres channel identifier.
func ChannelName(ch event.Channel) string {
	return "job_dispatch_" + string(ch)
}

type subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *subscription) Unsubscribe() {
	s.cancel()
	<-s.done
}
