// Package wsgateway bridges the Redis fanout channels to websocket
// subscribers: visitors watch their own session, operators watch the shared
// monitoring channel. Delivery is best-effort; a slow or dead client is
// dropped rather than ever blocking the publisher.
package wsgateway

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/supportflow-dev/supportflow/pkg/fanout"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Gateway serves websocket subscriptions backed by Redis pub/sub.
type Gateway struct {
	client   *redis.Client
	prefix   string
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

// New creates a gateway over an existing Redis client.
func New(client *redis.Client, prefix string, log zerolog.Logger) *Gateway {
	return &Gateway{
		client: client,
		prefix: prefix,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The REST layer owns auth; the gateway accepts any origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: log.With().Str("component", "wsgateway").Logger(),
	}
}

// RegisterRoutes registers the websocket endpoints with the echo server.
func (g *Gateway) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws/chat/:sessionId", g.SessionSocket)
	e.GET("/ws/operators", g.OperatorSocket)
}

// SessionSocket streams one session's events to a visitor.
func (g *Gateway) SessionSocket(c echo.Context) error {
	channel := fanout.SessionChannel(g.prefix, c.Param("sessionId"))
	return g.serve(c, channel)
}

// OperatorSocket streams operator-visible events across all sessions.
func (g *Gateway) OperatorSocket(c echo.Context) error {
	return g.serve(c, fanout.OperatorChannel(g.prefix))
}

func (g *Gateway) serve(c echo.Context, channel string) error {
	conn, err := g.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	sub := g.client.Subscribe(ctx, channel)
	defer func() {
		_ = sub.Close()
		_ = conn.Close()
	}()

	// Reader side only services control frames and detects the close.
	go func() {
		defer cancel()
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	g.log.Debug().Str("channel", channel).Msg("subscriber connected")

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil

		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}

		case m, ok := <-msgs:
			if !ok {
				return nil
			}
			ev, err := fanout.Decode([]byte(m.Payload))
			if err != nil {
				g.log.Warn().Err(err).Str("channel", channel).Msg("dropping undecodable event")
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				g.log.Debug().Err(err).Str("channel", channel).Msg("subscriber dropped")
				return nil
			}
		}
	}
}
