package ws

import (
	"net/http"
	"slices"
	"strings"
	"time"

	"PairPulse/internal/domain/models"
	"PairPulse/internal/services/bus"
	xhttp "PairPulse/pkg/http"
	applogger "PairPulse/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Frame is what a client receives for each bus message.
type Frame struct {
	Topic     bus.Topic   `json:"topic"`
	Data      interface{} `json:"data"`
	Published time.Time   `json:"published"`
}

// StreamHandler pushes bus messages to WebSocket clients. Each connection
// owns one subscription per requested topic; a slow client only loses its
// own oldest messages.
type StreamHandler struct {
	logger   *applogger.Logger
	bus      *bus.Bus
	upgrader websocket.Upgrader
}

func NewStreamHandler(logger *applogger.Logger, b *bus.Bus) *StreamHandler {
	return &StreamHandler{
		logger: logger.With("component", "ws"),
		bus:    b,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (h *StreamHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws", h.Stream)
}

// Stream upgrades the request. Query: topics=tick,candle,alert (default
// all) and optional symbols=BTCUSDT,ETHUSDT to filter ticks and candles.
func (h *StreamHandler) Stream(c echo.Context) error {
	topics, verr := parseTopics(c.QueryParam("topics"))
	if verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	var symbols []string
	for _, s := range xhttp.SplitCSV(c.QueryParam("symbols")) {
		symbols = append(symbols, models.NormalizeSymbol(s))
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade has already written the error response.
		h.logger.Debug("ws upgrade failed", applogger.Error(err))
		return nil
	}

	subs := make([]*bus.Subscription, 0, len(topics))
	for _, t := range topics {
		subs = append(subs, h.bus.Subscribe(t))
	}
	merged := make(chan bus.Message, 64)
	for _, s := range subs {
		go func(s *bus.Subscription) {
			for msg := range s.C() {
				select {
				case merged <- msg:
				case <-s.Done():
					return
				}
			}
		}(s)
	}

	h.logger.Info("ws client connected",
		applogger.String("remote", c.RealIP()),
		applogger.Strings("topics", topicNames(topics)),
		applogger.Strings("symbols", symbols))

	closed := make(chan struct{})
	go h.readLoop(conn, closed)
	h.writeLoop(conn, merged, closed, symbols)

	for _, s := range subs {
		h.bus.Unsubscribe(s)
	}
	_ = conn.Close()
	h.logger.Info("ws client disconnected", applogger.String("remote", c.RealIP()))
	return nil
}

// readLoop consumes control frames so pongs and close messages are seen.
func (h *StreamHandler) readLoop(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *StreamHandler) writeLoop(conn *websocket.Conn, in <-chan bus.Message, closed <-chan struct{}, symbols []string) {
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-closed:
			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case msg := <-in:
			if !matches(msg, symbols) {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(Frame{Topic: msg.Topic, Data: msg.Payload, Published: msg.Published}); err != nil {
				h.logger.Debug("ws write failed", applogger.Error(err))
				return
			}
		}
	}
}

func matches(msg bus.Message, symbols []string) bool {
	if len(symbols) == 0 {
		return true
	}
	switch p := msg.Payload.(type) {
	case models.Tick:
		return slices.Contains(symbols, p.Symbol)
	case models.Candle:
		return slices.Contains(symbols, p.Symbol)
	case models.AlertEvent:
		for _, s := range strings.Split(p.Pair, "-") {
			if slices.Contains(symbols, s) {
				return true
			}
		}
		return false
	}
	return true
}

func parseTopics(raw string) ([]bus.Topic, []xhttp.ValidationError) {
	names := xhttp.SplitCSV(raw)
	if len(names) == 0 {
		return []bus.Topic{bus.TopicTick, bus.TopicCandle, bus.TopicAlert}, nil
	}
	var out []bus.Topic
	for _, n := range names {
		t, ok := bus.ParseTopic(n)
		if !ok {
			return nil, []xhttp.ValidationError{{
				Code:    "ERR_ONEOF",
				Field:   "topics",
				Message: "topics must be one of: tick, candle, alert",
			}}
		}
		if !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out, nil
}

func topicNames(ts []bus.Topic) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = string(t)
	}
	return out
}
