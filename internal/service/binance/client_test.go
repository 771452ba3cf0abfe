package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tradeFrame = `{"stream":"btcusdt@trade","data":{"e":"trade","E":1700000000123,"s":"BTCUSDT","t":1,"p":"37000.10","q":"0.00500000","T":1700000000120,"m":false}}`

func TestParseFrame(t *testing.T) {
	tick, ok, err := parseFrame([]byte(tradeFrame))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "BTCUSDT", tick.Symbol)
	assert.InDelta(t, 37000.10, tick.Price, 1e-9)
	assert.InDelta(t, 0.005, tick.Quantity, 1e-12)
	assert.Equal(t, time.UnixMilli(1700000000120).UTC(), tick.Timestamp)

	_, ok, err = parseFrame([]byte(`{"stream":"x","data":{"e":"kline"}}`))
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = parseFrame([]byte(`{"data":{"e":"trade","p":"abc","q":"1"}}`))
	assert.Error(t, err)

	_, _, err = parseFrame([]byte(`not json`))
	assert.Error(t, err)
}

func TestStreamURL(t *testing.T) {
	c := New("wss://stream.binance.com:9443/", []string{"BTCUSDT", " ethusdt"}, time.Second, time.Second, nil)
	assert.Equal(t, "wss://stream.binance.com:9443/stream?streams=btcusdt@trade/ethusdt@trade", c.StreamURL())
}

func TestReadStreamsTicks(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "btcusdt@trade", r.URL.Query().Get("streams"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"result":null,"id":1}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(tradeFrame))
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()

	c := New("ws"+strings.TrimPrefix(srv.URL, "http"), []string{"btcusdt"}, 0, time.Second, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	require.NoError(t, c.Connect(ctx))
	require.NoError(t, c.Subscribe(ctx))
	assert.True(t, c.IsConnected())

	ticks, errs := c.Read(ctx)
	select {
	case tick := <-ticks:
		require.NotNil(t, tick)
		assert.Equal(t, "BTCUSDT", tick.Symbol)
	case <-ctx.Done():
		t.Fatal("no tick received")
	}
	select {
	case err := <-errs:
		assert.Error(t, err)
	case <-ctx.Done():
		t.Fatal("close not reported")
	}
	require.NoError(t, c.Close())
	assert.False(t, c.IsConnected())
}

func TestSubscribeRequiresConnection(t *testing.T) {
	c := New("ws://localhost:1", []string{"btcusdt"}, 0, 0, nil)
	assert.Error(t, c.Subscribe(context.Background()))
}
