package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"PairPulse/internal/domain/models"
	drepo "PairPulse/internal/domain/repository"
	"PairPulse/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

// Client implements MarketStream over the Binance combined trade stream.
// Symbols are subscribed through the stream URL, so Subscribe only checks
// the connection.
type Client struct {
	baseURL        string
	symbols        []string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	log            *logger.Logger
	dialer         *websocket.Dialer

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
}

func New(baseURL string, symbols []string, reconnectDelay, pingInterval time.Duration, l *logger.Logger) *Client {
	if l == nil {
		l = logger.NewNop()
	}
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		symbols:        symbols,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		log:            l.With("component", "binance"),
		dialer:         websocket.DefaultDialer,
	}
}

// StreamURL builds <base>/stream?streams=a@trade/b@trade.
func (c *Client) StreamURL() string {
	streams := make([]string, 0, len(c.symbols))
	for _, s := range c.symbols {
		streams = append(streams, strings.ToLower(strings.TrimSpace(s))+"@trade")
	}
	return c.baseURL + "/stream?streams=" + strings.Join(streams, "/")
}

func (c *Client) Connect(ctx context.Context) error {
	if len(c.symbols) == 0 {
		return fmt.Errorf("binance connect: no symbols")
	}
	conn, _, err := c.dialer.DialContext(ctx, c.StreamURL(), nil)
	if err != nil {
		return fmt.Errorf("binance connect: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()
	c.log.Info("connected", logger.Strings("symbols", c.symbols))
	return nil
}

func (c *Client) Subscribe(context.Context) error {
	if !c.IsConnected() {
		return fmt.Errorf("binance not connected")
	}
	return nil
}

type tradeEvent struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
	Price     string `json:"p"`
	Quantity  string `json:"q"`
	TradeTime int64  `json:"T"`
}

type envelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// parseFrame decodes one combined-stream frame. ok is false for frames that
// are not trades.
func parseFrame(b []byte) (models.Tick, bool, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return models.Tick{}, false, fmt.Errorf("decode frame: %w", err)
	}
	raw := env.Data
	if len(raw) == 0 {
		raw = b
	}
	var ev tradeEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return models.Tick{}, false, fmt.Errorf("decode trade: %w", err)
	}
	if ev.EventType != "trade" {
		return models.Tick{}, false, nil
	}
	price, err := decimal.NewFromString(ev.Price)
	if err != nil {
		return models.Tick{}, false, fmt.Errorf("price %q: %w", ev.Price, err)
	}
	qty, err := decimal.NewFromString(ev.Quantity)
	if err != nil {
		return models.Tick{}, false, fmt.Errorf("quantity %q: %w", ev.Quantity, err)
	}
	return models.Tick{
		Symbol:    models.NormalizeSymbol(ev.Symbol),
		Price:     price.InexactFloat64(),
		Quantity:  qty.InexactFloat64(),
		Timestamp: time.UnixMilli(ev.TradeTime).UTC(),
	}, true, nil
}

// Read streams ticks until the connection fails or ctx ends. The first read
// error is sent on the error channel and both channels are closed.
func (c *Client) Read(ctx context.Context) (<-chan *models.Tick, <-chan error) {
	ticks := make(chan *models.Tick, 1024)
	errs := make(chan error, 1)

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		errs <- fmt.Errorf("binance conn nil")
		close(ticks)
		close(errs)
		return ticks, errs
	}

	done := make(chan struct{})
	go c.pingLoop(ctx, conn, done)

	go func() {
		defer close(errs)
		defer close(ticks)
		defer close(done)
		for {
			_, b, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					errs <- fmt.Errorf("binance read: %w", err)
				}
				return
			}
			t, ok, err := parseFrame(b)
			if err != nil {
				c.log.Debug("skip frame", logger.Error(err))
				continue
			}
			if !ok {
				continue
			}
			select {
			case ticks <- &t:
			case <-ctx.Done():
				return
			}
		}
	}()

	// unblock ReadMessage on cancel
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	return ticks, errs
}

func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(5 * time.Second)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.log.Warn("ping failed", logger.Error(err))
			}
		}
	}
}

// Reconnect closes the current connection, waits reconnectDelay and dials
// again.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()
	select {
	case <-time.After(c.reconnectDelay):
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.Subscribe(ctx)
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

var _ drepo.MarketStream = (*Client)(nil)
