package hyperliquid

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"PerpLens/internal/domain/models"
	drepo "PerpLens/internal/domain/repository"

	"github.com/gorilla/websocket"
)

// Client implements a MarketStream backed by the Hyperliquid WebSocket feed.
// It subscribes to trades, activeAssetCtx and candle channels per symbol and
// normalizes frames into MarketEvent records.
type Client struct {
	websocketURL   string
	symbols        []string
	candleInterval string
	reconnectDelay time.Duration
	pingInterval   time.Duration

	conn      *websocket.Conn
	connected bool
}

// New creates a new Hyperliquid MarketStream.
func New(websocketURL string, symbols []string, candleInterval string, reconnectDelay, pingInterval time.Duration) drepo.MarketStream {
	return &Client{
		websocketURL:   websocketURL,
		symbols:        symbols,
		candleInterval: candleInterval,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
	}
}

// Connect establishes the WebSocket connection.
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.websocketURL, nil)
	if err != nil {
		return fmt.Errorf("hyperliquid connect: %w", err)
	}
	c.conn = conn
	c.connected = true
	log.Printf("hyperliquid: connected")
	return nil
}

type subscription struct {
	Type     string `json:"type"`
	Coin     string `json:"coin,omitempty"`
	Interval string `json:"interval,omitempty"`
}

type subscribeMsg struct {
	Method       string       `json:"method"`
	Subscription subscription `json:"subscription"`
}

// Subscribe subscribes trades, asset context and candles for each symbol.
func (c *Client) Subscribe(ctx context.Context) error {
	if c.conn == nil || !c.connected {
		return fmt.Errorf("hyperliquid not connected")
	}
	for _, s := range c.symbols {
		subs := []subscription{
			{Type: "trades", Coin: s},
			{Type: "activeAssetCtx", Coin: s},
			{Type: "candle", Coin: s, Interval: c.candleInterval},
		}
		for _, sub := range subs {
			if err := c.conn.WriteJSON(subscribeMsg{Method: "subscribe", Subscription: sub}); err != nil {
				return fmt.Errorf("subscribe %s/%s: %w", s, sub.Type, err)
			}
		}
		log.Printf("hyperliquid: subscribed %s", s)
	}
	return nil
}

// Hyperliquid encodes all numeric fields as JSON strings.

type wsFrame struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

type wsTrade struct {
	Coin string `json:"coin"`
	Side string `json:"side"` // "B" buyer is taker, "A" seller is taker
	Px   string `json:"px"`
	Sz   string `json:"sz"`
	Time int64  `json:"time"` // ms
}

type wsAssetCtx struct {
	Coin string `json:"coin"`
	Ctx  struct {
		Funding      string `json:"funding"`
		OpenInterest string `json:"openInterest"`
		MarkPx       string `json:"markPx"`
	} `json:"ctx"`
}

type wsCandle struct {
	T int64  `json:"t"` // open time ms
	S string `json:"s"`
	I string `json:"i"`
	O string `json:"o"`
	C string `json:"c"`
	H string `json:"h"`
	L string `json:"l"`
	V string `json:"v"`
}

// Read streams normalized MarketEvents and errors.
func (c *Client) Read(ctx context.Context) (<-chan *models.MarketEvent, <-chan error) {
	events := make(chan *models.MarketEvent, 1024)
	errs := make(chan error, 1)

	// ping loop
	go func() {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if c.conn != nil {
					_ = c.conn.WriteJSON(map[string]string{"method": "ping"})
				}
			}
		}
	}()

	// read loop
	go func() {
		defer close(events)
		defer close(errs)
		for {
			select {
			case <-ctx.Done():
				return
			default:
				if c.conn == nil {
					errs <- fmt.Errorf("hyperliquid conn nil")
					return
				}
				_, b, err := c.conn.ReadMessage()
				if err != nil {
					errs <- fmt.Errorf("hyperliquid read: %w", err)
					return
				}
				var f wsFrame
				if err := json.Unmarshal(b, &f); err != nil {
					continue
				}
				for _, e := range decodeFrame(&f) {
					select {
					case events <- e:
					default:
						// drop on backpressure
					}
				}
			}
		}
	}()

	return events, errs
}

func decodeFrame(f *wsFrame) []*models.MarketEvent {
	switch f.Channel {
	case "trades":
		var trades []wsTrade
		if err := json.Unmarshal(f.Data, &trades); err != nil {
			return nil
		}
		out := make([]*models.MarketEvent, 0, len(trades))
		for _, t := range trades {
			out = append(out, tradeEvent(&t))
		}
		return out
	case "activeAssetCtx":
		var ctx wsAssetCtx
		if err := json.Unmarshal(f.Data, &ctx); err != nil {
			return nil
		}
		funding := parseFloat(ctx.Ctx.Funding)
		return []*models.MarketEvent{{
			Kind:         models.EventAssetCtx,
			Symbol:       ctx.Coin,
			Timestamp:    time.Now().UnixMilli(),
			OpenInterest: parseFloat(ctx.Ctx.OpenInterest),
			FundingRate:  &funding,
		}}
	case "candle":
		var k wsCandle
		if err := json.Unmarshal(f.Data, &k); err != nil {
			return nil
		}
		return []*models.MarketEvent{{
			Kind:      models.EventKline,
			Symbol:    k.S,
			Timestamp: k.T,
			Bar: &models.PriceBar{
				Bucket:    time.UnixMilli(k.T).UTC(),
				Symbol:    k.S,
				Timeframe: k.I,
				Open:      parseFloat(k.O),
				High:      parseFloat(k.H),
				Low:       parseFloat(k.L),
				Close:     parseFloat(k.C),
				Volume:    parseFloat(k.V),
			},
		}}
	default:
		// subscriptionResponse, pong and anything unrecognized
		return nil
	}
}

// tradeEvent converts a fill into a taker-flow event. Side "B" means the
// buyer was the aggressor, so the notional counts as taker buy volume.
func tradeEvent(t *wsTrade) *models.MarketEvent {
	notional := parseFloat(t.Px) * parseFloat(t.Sz)
	e := &models.MarketEvent{
		Kind:      models.EventTrade,
		Symbol:    t.Coin,
		Timestamp: t.Time,
	}
	if t.Side == "B" {
		e.TakerBuyNotional = notional
	} else {
		e.TakerSellNotional = notional
	}
	return e
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

// Reconnect closes and reconnects.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()
	time.Sleep(c.reconnectDelay)
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.Subscribe(ctx)
}

// Close closes the WS connection.
func (c *Client) Close() error {
	c.connected = false
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// IsConnected indicates status.
func (c *Client) IsConnected() bool { return c.connected }
