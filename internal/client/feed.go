package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"churn-service/internal/inference"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	feedReadLimit  = 512 * 1024
	maxFeedBackoff = 30 * time.Second
)

// Feed follows the dashboard's live prediction stream.
type Feed struct {
	url  string
	ping time.Duration
}

// NewFeed creates a feed for the dashboard at base, e.g.
// "http://localhost:8501". Keep-alive pings are sent every ping interval.
func NewFeed(base string, ping time.Duration) (*Feed, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid dashboard url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("invalid dashboard url scheme %q", u.Scheme)
	}
	u.Path += "/ws"

	if ping <= 0 {
		ping = 20 * time.Second
	}
	return &Feed{url: u.String(), ping: ping}, nil
}

// URL returns the WebSocket address of the feed.
func (f *Feed) URL() string { return f.url }

// Stream delivers predictions to out until ctx is done, reconnecting with
// exponential backoff. Connection failures are reported on errs without
// blocking.
func (f *Feed) Stream(ctx context.Context, out chan<- inference.Prediction, errs chan<- error) error {
	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		connected, err := f.streamOnce(ctx, out)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			backoff = time.Second
		}

		log.Warn().Err(err).Dur("backoff", backoff).Msg("live feed disconnected, reconnecting")
		select {
		case errs <- fmt.Errorf("feed reconnect: %w", err):
		default:
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}

		backoff *= 2
		if backoff > maxFeedBackoff {
			backoff = maxFeedBackoff
		}
	}
}

// streamOnce reads one connection until it fails. connected reports
// whether the dial succeeded.
func (f *Feed) streamOnce(ctx context.Context, out chan<- inference.Prediction) (connected bool, err error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return false, fmt.Errorf("dial failed: %w", err)
	}
	defer conn.Close()
	log.Info().Str("url", f.url).Msg("connected to live feed")

	conn.SetReadLimit(feedReadLimit)
	deadline := 2 * f.ping
	conn.SetReadDeadline(time.Now().Add(deadline))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(deadline))
		return nil
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(f.ping)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
					log.Debug().Err(err).Msg("live feed ping failed")
					return
				}
			case <-ctx.Done():
				// unblock ReadMessage
				conn.Close()
				return
			case <-done:
				return
			}
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return true, fmt.Errorf("feed closed: %w", err)
			}
			return true, fmt.Errorf("read message failed: %w", err)
		}
		conn.SetReadDeadline(time.Now().Add(deadline))

		var p inference.Prediction
		if err := json.Unmarshal(msg, &p); err != nil {
			log.Debug().Err(err).Str("message", string(msg)).Msg("failed to parse feed message")
			continue
		}

		select {
		case out <- p:
		case <-ctx.Done():
			return true, ctx.Err()
		}
	}
}
