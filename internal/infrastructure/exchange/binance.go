package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/krejcif/llmtrader/internal/domain"
)

const (
	BinanceBaseURL = "https://fapi.binance.com"
	BinanceWSURL   = "wss://fstream.binance.com/ws"
)

// BinanceAdapter implements domain.MarketData and domain.Exchange against
// the Binance USD-M futures API. Prices arrive over the mark-price stream
// and are cached; REST is the fallback when the stream has no quote yet.
type BinanceAdapter struct {
	apiKey    string
	apiSecret string
	baseURL   string
	wsURL     string
	client    *http.Client
	logger    *zap.Logger

	mu         sync.Mutex
	wsConn     *websocket.Conn
	lastPrices map[string]float64
	callbacks  []func(symbol string, price float64)
}

func NewBinanceAdapter(apiKey, apiSecret, baseURL, wsURL string, logger *zap.Logger) *BinanceAdapter {
	if baseURL == "" {
		baseURL = BinanceBaseURL
	}
	if wsURL == "" {
		wsURL = BinanceWSURL
	}
	return &BinanceAdapter{
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		baseURL:    baseURL,
		wsURL:      wsURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
		lastPrices: make(map[string]float64),
	}
}

// --- REST API ---

func (b *BinanceAdapter) sign(params string) string {
	h := hmac.New(sha256.New, []byte(b.apiSecret))
	h.Write([]byte(params))
	return hex.EncodeToString(h.Sum(nil))
}

func (b *BinanceAdapter) sendPublic(ctx context.Context, path string, params url.Values) ([]byte, error) {
	u := b.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	return b.do(req)
}

func (b *BinanceAdapter) sendSigned(ctx context.Context, method, path string, params url.Values) ([]byte, error) {
	if params == nil {
		params = url.Values{}
	}
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	params.Set("recvWindow", "5000")
	query := params.Encode()
	query += "&signature=" + b.sign(query)

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path+"?"+query, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-MBX-APIKEY", b.apiKey)
	return b.do(req)
}

func (b *BinanceAdapter) do(req *http.Request) ([]byte, error) {
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("binance API error: %s", string(body))
	}
	return body, nil
}

func (b *BinanceAdapter) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	b.mu.Lock()
	cached, ok := b.lastPrices[symbol]
	b.mu.Unlock()
	if ok {
		return cached, nil
	}

	params := url.Values{"symbol": {symbol}}
	body, err := b.sendPublic(ctx, "/fapi/v1/ticker/price", params)
	if err != nil {
		return 0, err
	}

	var result struct {
		Price string `json:"price"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return 0, err
	}
	return strconv.ParseFloat(result.Price, 64)
}

// GetCandles returns completed candles, oldest first. The still-forming
// candle Binance appends last is dropped.
func (b *BinanceAdapter) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error) {
	params := url.Values{
		"symbol":   {symbol},
		"interval": {interval},
		"limit":    {strconv.Itoa(limit + 1)},
	}
	body, err := b.sendPublic(ctx, "/fapi/v1/klines", params)
	if err != nil {
		return nil, err
	}

	var raw [][]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}

	var candles []domain.Candle
	for _, row := range raw {
		if len(row) < 6 {
			continue
		}
		var ts int64
		if err := json.Unmarshal(row[0], &ts); err != nil {
			continue
		}
		c := domain.Candle{Time: ts / 1000}
		fields := []*float64{&c.Open, &c.High, &c.Low, &c.Close, &c.Volume}
		ok := true
		for i, f := range fields {
			var s string
			if err := json.Unmarshal(row[i+1], &s); err != nil {
				ok = false
				break
			}
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				ok = false
				break
			}
			*f = v
		}
		if ok {
			candles = append(candles, c)
		}
	}

	if len(candles) > 0 {
		candles = candles[:len(candles)-1]
	}
	return candles, nil
}

func (b *BinanceAdapter) GetFundingRate(ctx context.Context, symbol string) (float64, error) {
	params := url.Values{"symbol": {symbol}}
	body, err := b.sendPublic(ctx, "/fapi/v1/premiumIndex", params)
	if err != nil {
		return 0, err
	}

	var result struct {
		LastFundingRate string `json:"lastFundingRate"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return 0, err
	}
	return strconv.ParseFloat(result.LastFundingRate, 64)
}

func (b *BinanceAdapter) GetOrderBook(ctx context.Context, symbol string, depth int) (*domain.OrderBook, error) {
	if depth <= 0 {
		depth = 50
	}
	params := url.Values{
		"symbol": {symbol},
		"limit":  {strconv.Itoa(depth)},
	}
	body, err := b.sendPublic(ctx, "/fapi/v1/depth", params)
	if err != nil {
		return nil, err
	}

	var result struct {
		Bids [][]string `json:"bids"`
		Asks [][]string `json:"asks"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, err
	}

	ob := &domain.OrderBook{
		Symbol: symbol,
		Bids:   make([]domain.OrderBookEntry, 0, len(result.Bids)),
		Asks:   make([]domain.OrderBookEntry, 0, len(result.Asks)),
	}
	for _, e := range result.Bids {
		if len(e) < 2 {
			continue
		}
		price, _ := strconv.ParseFloat(e[0], 64)
		size, _ := strconv.ParseFloat(e[1], 64)
		ob.Bids = append(ob.Bids, domain.OrderBookEntry{Price: price, Size: size})
	}
	for _, e := range result.Asks {
		if len(e) < 2 {
			continue
		}
		price, _ := strconv.ParseFloat(e[0], 64)
		size, _ := strconv.ParseFloat(e[1], 64)
		ob.Asks = append(ob.Asks, domain.OrderBookEntry{Price: price, Size: size})
	}
	return ob, nil
}

func (b *BinanceAdapter) GetOpenPositions(ctx context.Context, symbol string) ([]domain.ExternalPosition, error) {
	params := url.Values{}
	if symbol != "" {
		params.Set("symbol", symbol)
	}
	body, err := b.sendSigned(ctx, http.MethodGet, "/fapi/v2/positionRisk", params)
	if err != nil {
		return nil, err
	}

	var raw []struct {
		Symbol      string `json:"symbol"`
		PositionAmt string `json:"positionAmt"`
		EntryPrice  string `json:"entryPrice"`
		MarkPrice   string `json:"markPrice"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}

	var positions []domain.ExternalPosition
	for _, p := range raw {
		amt, _ := strconv.ParseFloat(p.PositionAmt, 64)
		if amt == 0 {
			continue
		}
		entry, _ := strconv.ParseFloat(p.EntryPrice, 64)
		mark, _ := strconv.ParseFloat(p.MarkPrice, 64)
		side := domain.SideLong
		size := amt
		if amt < 0 {
			side = domain.SideShort
			size = -amt
		}
		positions = append(positions, domain.ExternalPosition{
			Symbol:     p.Symbol,
			Side:       side,
			Size:       size,
			EntryPrice: entry,
			MarkPrice:  mark,
		})
	}
	return positions, nil
}

func (b *BinanceAdapter) GetOpenOrders(ctx context.Context, symbol string) ([]domain.ExternalOrder, error) {
	params := url.Values{}
	if symbol != "" {
		params.Set("symbol", symbol)
	}
	body, err := b.sendSigned(ctx, http.MethodGet, "/fapi/v1/openOrders", params)
	if err != nil {
		return nil, err
	}

	var raw []struct {
		OrderID   int64  `json:"orderId"`
		Symbol    string `json:"symbol"`
		Type      string `json:"type"`
		Side      string `json:"side"`
		OrigQty   string `json:"origQty"`
		StopPrice string `json:"stopPrice"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}

	orders := make([]domain.ExternalOrder, 0, len(raw))
	for _, o := range raw {
		qty, _ := strconv.ParseFloat(o.OrigQty, 64)
		stop, _ := strconv.ParseFloat(o.StopPrice, 64)
		side := domain.SideLong
		if o.Side == "SELL" {
			side = domain.SideShort
		}
		orders = append(orders, domain.ExternalOrder{
			ID:        strconv.FormatInt(o.OrderID, 10),
			Symbol:    o.Symbol,
			Type:      o.Type,
			Side:      side,
			Quantity:  qty,
			StopPrice: stop,
		})
	}
	return orders, nil
}

func binanceSide(side domain.Side) string {
	if side == domain.SideShort {
		return "SELL"
	}
	return "BUY"
}

func (b *BinanceAdapter) placeOrder(ctx context.Context, params url.Values) error {
	body, err := b.sendSigned(ctx, http.MethodPost, "/fapi/v1/order", params)
	if err != nil {
		return err
	}
	var result struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	_ = json.Unmarshal(body, &result)
	if result.Code != 0 {
		return fmt.Errorf("binance order error %d: %s", result.Code, result.Msg)
	}
	return nil
}

func (b *BinanceAdapter) PlaceMarketOrder(ctx context.Context, symbol string, side domain.Side, quantity float64) error {
	return b.placeOrder(ctx, url.Values{
		"symbol":   {symbol},
		"side":     {binanceSide(side)},
		"type":     {"MARKET"},
		"quantity": {strconv.FormatFloat(quantity, 'f', -1, 64)},
	})
}

func (b *BinanceAdapter) PlaceStopOrder(ctx context.Context, symbol string, side domain.Side, quantity, stopPrice float64) error {
	return b.placeOrder(ctx, url.Values{
		"symbol":     {symbol},
		"side":       {binanceSide(side)},
		"type":       {domain.OrderTypeStop},
		"quantity":   {strconv.FormatFloat(quantity, 'f', -1, 64)},
		"stopPrice":  {strconv.FormatFloat(stopPrice, 'f', -1, 64)},
		"reduceOnly": {"true"},
	})
}

func (b *BinanceAdapter) PlaceTakeProfitOrder(ctx context.Context, symbol string, side domain.Side, quantity, stopPrice float64) error {
	return b.placeOrder(ctx, url.Values{
		"symbol":     {symbol},
		"side":       {binanceSide(side)},
		"type":       {domain.OrderTypeTakeProfit},
		"quantity":   {strconv.FormatFloat(quantity, 'f', -1, 64)},
		"stopPrice":  {strconv.FormatFloat(stopPrice, 'f', -1, 64)},
		"reduceOnly": {"true"},
	})
}

func (b *BinanceAdapter) CancelOrder(ctx context.Context, symbol, orderID string) error {
	_, err := b.sendSigned(ctx, http.MethodDelete, "/fapi/v1/order", url.Values{
		"symbol":  {symbol},
		"orderId": {orderID},
	})
	return err
}

func (b *BinanceAdapter) CancelAllOrders(ctx context.Context, symbol string) error {
	_, err := b.sendSigned(ctx, http.MethodDelete, "/fapi/v1/allOpenOrders", url.Values{
		"symbol": {symbol},
	})
	return err
}

func (b *BinanceAdapter) GetAccountBalance(ctx context.Context) (float64, error) {
	body, err := b.sendSigned(ctx, http.MethodGet, "/fapi/v2/balance", nil)
	if err != nil {
		return 0, err
	}

	var raw []struct {
		Asset            string `json:"asset"`
		AvailableBalance string `json:"availableBalance"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return 0, err
	}
	for _, a := range raw {
		if a.Asset == "USDT" {
			return strconv.ParseFloat(a.AvailableBalance, 64)
		}
	}
	return 0, fmt.Errorf("no USDT balance in response")
}

// --- WebSocket ---

func (b *BinanceAdapter) OnPriceUpdate(callback func(symbol string, price float64)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.callbacks = append(b.callbacks, callback)
}

// Subscribe opens the mark-price stream for the symbols and keeps the local
// price cache warm. Reconnects with backoff when the stream drops.
func (b *BinanceAdapter) Subscribe(symbols []string) error {
	if len(symbols) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.wsConn != nil {
		return b.subscribe(symbols)
	}

	c, _, err := websocket.DefaultDialer.Dial(b.wsURL, nil)
	if err != nil {
		return err
	}
	b.wsConn = c

	go b.readLoop(symbols)

	return b.subscribe(symbols)
}

func (b *BinanceAdapter) subscribe(symbols []string) error {
	params := make([]string, len(symbols))
	for i, s := range symbols {
		params[i] = strings.ToLower(s) + "@markPrice@1s"
	}
	return b.wsConn.WriteJSON(map[string]interface{}{
		"method": "SUBSCRIBE",
		"params": params,
		"id":     1,
	})
}

func (b *BinanceAdapter) readLoop(symbols []string) {
	for {
		b.mu.Lock()
		conn := b.wsConn
		b.mu.Unlock()
		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			b.logger.Warn("ws read error, reconnecting", zap.Error(err))
			conn.Close()
			b.mu.Lock()
			b.wsConn = nil
			b.mu.Unlock()

			time.Sleep(5 * time.Second)
			if err := b.Subscribe(symbols); err != nil {
				b.logger.Error("ws reconnect failed", zap.Error(err))
			}
			return
		}

		b.handleStreamMessage(message)
	}
}

// handleStreamMessage caches a mark-price tick and fans it out to the
// registered callbacks. Anything other than a valid markPriceUpdate is
// dropped silently.
func (b *BinanceAdapter) handleStreamMessage(message []byte) {
	var event struct {
		EventType string `json:"e"`
		Symbol    string `json:"s"`
		Price     string `json:"p"`
	}
	if err := json.Unmarshal(message, &event); err != nil {
		return
	}
	if event.EventType != "markPriceUpdate" {
		return
	}
	price, err := strconv.ParseFloat(event.Price, 64)
	if err != nil || price <= 0 {
		return
	}

	b.mu.Lock()
	b.lastPrices[event.Symbol] = price
	callbacks := make([]func(string, float64), len(b.callbacks))
	copy(callbacks, b.callbacks)
	b.mu.Unlock()

	for _, cb := range callbacks {
		cb(event.Symbol, price)
	}
}
