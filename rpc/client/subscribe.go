package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/eventreg/eventreg/logging"
	"github.com/eventreg/eventreg/rpc"
	"github.com/eventreg/eventreg/types"
)

type subscription struct {
	conn   *websocket.Conn
	err    chan error
	stop   chan struct{}
	once   sync.Once
	client *Client
}

func (s *subscription) Err() <-chan error {
	return s.err
}

func (s *subscription) Unsubscribe() {
	s.client.forget(s)
	_ = s.close()
}

func (s *subscription) close() error {
	var err error
	s.once.Do(func() {
		close(s.stop)
		_ = s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		err = s.conn.Close()
	})
	return err
}

func (c *Client) forget(s *subscription) {
	c.mu.Lock()
	delete(c.subs, s)
	c.mu.Unlock()
}

// Subscribe streams logs named name (all logs if empty) into sink.
// A dropped connection is reported on Err as a transport failure.
func (c *Client) Subscribe(ctx context.Context, name string, sink chan<- types.Log) (types.Subscription, error) {
	u := *c.baseURL
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u = *u.JoinPath(rpc.PathSubscribe)
	u.RawQuery = url.Values{"name": []string{name}}.Encode()

	conn, res, err := c.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if res != nil {
			return nil, fmt.Errorf("%w: subscribing (status %s): %w", types.ErrTransport, res.Status, err)
		}
		return nil, fmt.Errorf("%w: subscribing: %w", types.ErrTransport, err)
	}

	sub := &subscription{
		conn:   conn,
		err:    make(chan error, 1),
		stop:   make(chan struct{}),
		client: c,
	}
	c.mu.Lock()
	c.subs[sub] = struct{}{}
	c.mu.Unlock()

	go sub.read(ctx, sink)
	go func() {
		select {
		case <-ctx.Done():
			sub.Unsubscribe()
		case <-sub.stop:
		}
	}()
	return sub, nil
}

func (s *subscription) read(ctx context.Context, sink chan<- types.Log) {
	defer close(s.err)
	logger := logging.FromContext(ctx)
	for {
		var lg types.Log
		if err := s.conn.ReadJSON(&lg); err != nil {
			select {
			case <-s.stop:
				return
			default:
			}
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) && closeErr.Code == rpc.CloseLagging {
				err = fmt.Errorf("%w: node dropped a lagging subscriber: %s", types.ErrTransport, closeErr.Text)
			} else {
				err = fmt.Errorf("%w: subscription dropped: %w", types.ErrTransport, err)
			}
			logger.Debug("subscription ended", zap.Error(err))
			s.err <- err
			s.client.forget(s)
			_ = s.close()
			return
		}
		select {
		case sink <- lg:
		case <-s.stop:
			return
		}
	}
}
