// Package breeze is the boundary layer to the ICICI Breeze broker API:
// a checksum-signed REST client for the command surface and a websocket
// worker for the push market-data feed.
package breeze

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"optiongate/internal/domain"
)

// DefaultRestURL is the production Breeze API host.
const DefaultRestURL = "https://api.icicidirect.com/breezeapi/api/v1"

const bookTimeLayout = "2006-01-02T15:04:05.000Z"

// Client is the Breeze REST API client. Methods are synchronous and carry
// no rate limiting of their own; the session tier paces every call.
type Client struct {
	baseURL    string
	wsURL      string
	httpClient *http.Client
	signer     *Signer
	worker     *FeedWorker
	handler    domain.TickHandler
	logger     *slog.Logger
}

// NewClient creates a new Breeze API client.
func NewClient(restURL, wsURL, apiKey, apiSecret string) *Client {
	if restURL == "" {
		restURL = DefaultRestURL
	}
	return &Client{
		baseURL: restURL,
		wsURL:   wsURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
		signer: NewSigner(apiKey, apiSecret),
		logger: slog.Default().With("module", "breeze_client"),
	}
}

// CreateSession exchanges credentials for a customer session. The returned
// token is attached to every later request and to the feed handshake.
func (c *Client) CreateSession(ctx context.Context, creds domain.Credentials) (*domain.SessionInfo, error) {
	c.signer.SetSession(creds.SessionToken)

	body := map[string]string{
		"SessionToken": creds.SessionToken,
		"AppKey":       creds.APIKey,
	}
	resp, err := c.doRequest(ctx, http.MethodGet, "/customerdetails", body)
	if err != nil {
		return nil, err
	}
	row, err := resp.row()
	if err != nil {
		return nil, err
	}

	info := &domain.SessionInfo{SessionToken: creds.SessionToken}
	if row != nil {
		if v, ok := row["session_token"].(string); ok && v != "" {
			info.SessionToken = v
			c.signer.SetSession(v)
		}
		if v, ok := row["idirect_user_name"].(string); ok {
			info.Name = v
		}
	}
	c.logger.Info("session established", slog.String("user", info.Name))
	return info, nil
}

// CloseSession drops the session token and tears down the feed.
func (c *Client) CloseSession() {
	c.FeedDisconnect()
	c.signer.SetSession("")
}

// OptionChain fetches a full chain snapshot for one expiry and right.
func (c *Client) OptionChain(ctx context.Context, req domain.OptionChainRequest) ([]domain.RawTick, error) {
	body := map[string]string{
		"stock_code":    req.Symbol,
		"exchange_code": req.Exchange,
		"product_type":  "options",
		"expiry_date":   req.Expiry,
		"right":         req.Right.BrokerRight(),
	}
	if req.Strike != "" {
		body["strike_price"] = req.Strike
	}
	resp, err := c.doRequest(ctx, http.MethodGet, "/optionchain", body)
	if err != nil {
		return nil, err
	}
	return resp.rows()
}

// Quote fetches a single instrument quote. Cash-market quotes omit the
// derivative attributes entirely.
func (c *Client) Quote(ctx context.Context, req domain.QuoteRequest) ([]domain.RawTick, error) {
	body := map[string]string{
		"stock_code":    req.Symbol,
		"exchange_code": req.Exchange,
	}
	if req.Expiry != "" {
		body["product_type"] = "options"
		body["expiry_date"] = req.Expiry
		body["right"] = req.Right
		body["strike_price"] = req.Strike
	}
	resp, err := c.doRequest(ctx, http.MethodGet, "/quotes", body)
	if err != nil {
		return nil, err
	}
	return resp.rows()
}

// PlaceOrder submits one leg and returns the broker order id.
func (c *Client) PlaceOrder(ctx context.Context, leg domain.OrderLeg) (string, error) {
	body := map[string]any{
		"stock_code":    leg.Symbol,
		"exchange_code": leg.Exchange,
		"product":       leg.Product,
		"action":        leg.Action,
		"order_type":    leg.OrderType,
		"quantity":      fmt.Sprintf("%d", leg.Quantity),
		"price":         leg.Price.String(),
		"stoploss":      leg.Stoploss.String(),
		"validity":      "day",
		"expiry_date":   leg.Expiry,
		"right":         leg.Right,
		"strike_price":  fmt.Sprintf("%d", leg.Strike),
	}
	if leg.Remark != "" {
		body["user_remark"] = leg.Remark
	}

	resp, err := c.doRequest(ctx, http.MethodPost, "/order", body)
	if err != nil {
		return "", err
	}
	row, err := resp.row()
	if err != nil {
		return "", err
	}
	if row == nil {
		return "", fmt.Errorf("order accepted without an order_id")
	}
	orderID, _ := row["order_id"].(string)
	if orderID == "" {
		return "", fmt.Errorf("order accepted without an order_id")
	}
	c.logger.Info("order placed", slog.String("order_id", orderID), slog.String("symbol", leg.Symbol))
	return orderID, nil
}

// CancelOrder cancels a pending order.
func (c *Client) CancelOrder(ctx context.Context, orderID, exchange string) error {
	body := map[string]string{
		"order_id":      orderID,
		"exchange_code": exchange,
	}
	resp, err := c.doRequest(ctx, http.MethodDelete, "/order", body)
	if err != nil {
		return err
	}
	_, err = resp.rows()
	return err
}

// ModifyOrder updates the mutable attributes of a pending order.
func (c *Client) ModifyOrder(ctx context.Context, req domain.ModifyRequest) error {
	body := map[string]any{
		"order_id":      req.OrderID,
		"exchange_code": req.Exchange,
	}
	if req.Quantity > 0 {
		body["quantity"] = fmt.Sprintf("%d", req.Quantity)
	}
	if !req.Price.IsZero() {
		body["price"] = req.Price.String()
	}
	if !req.Stoploss.IsZero() {
		body["stoploss"] = req.Stoploss.String()
	}
	if req.Validity != "" {
		body["validity"] = req.Validity
	}
	resp, err := c.doRequest(ctx, http.MethodPut, "/order", body)
	if err != nil {
		return err
	}
	_, err = resp.rows()
	return err
}

// OrderBook lists orders placed inside the given window.
func (c *Client) OrderBook(ctx context.Context, exchange string, from, to time.Time) ([]domain.RawTick, error) {
	return c.book(ctx, "/order", exchange, from, to)
}

// TradeBook lists executed trades inside the given window.
func (c *Client) TradeBook(ctx context.Context, exchange string, from, to time.Time) ([]domain.RawTick, error) {
	return c.book(ctx, "/trades", exchange, from, to)
}

func (c *Client) book(ctx context.Context, path, exchange string, from, to time.Time) ([]domain.RawTick, error) {
	body := map[string]string{
		"exchange_code": exchange,
		"from_date":     from.UTC().Format(bookTimeLayout),
		"to_date":       to.UTC().Format(bookTimeLayout),
	}
	resp, err := c.doRequest(ctx, http.MethodGet, path, body)
	if err != nil {
		return nil, err
	}
	return resp.rows()
}

// Positions lists open derivative positions.
func (c *Client) Positions(ctx context.Context) ([]domain.RawTick, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/portfoliopositions", map[string]string{})
	if err != nil {
		return nil, err
	}
	return resp.rows()
}

// Holdings lists demat holdings.
func (c *Client) Holdings(ctx context.Context) ([]domain.RawTick, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/dematholdings", map[string]string{})
	if err != nil {
		return nil, err
	}
	return resp.rows()
}

// Funds returns the available margin summary.
func (c *Client) Funds(ctx context.Context) (domain.RawTick, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/funds", map[string]string{})
	if err != nil {
		return nil, err
	}
	return resp.row()
}

// Historical fetches OHLCV candles.
func (c *Client) Historical(ctx context.Context, req domain.HistoricalRequest) ([]domain.RawTick, error) {
	body := map[string]string{
		"stock_code":    req.Symbol,
		"exchange_code": req.Exchange,
		"interval":      req.Interval,
		"from_date":     req.From,
		"to_date":       req.To,
	}
	if req.Expiry != "" {
		body["product_type"] = "options"
		body["expiry_date"] = req.Expiry
		body["right"] = req.Right
		body["strike_price"] = req.Strike
	}
	resp, err := c.doRequest(ctx, http.MethodGet, "/historicalcharts", body)
	if err != nil {
		return nil, err
	}
	return resp.rows()
}

// FeedConnect starts the websocket feed worker. Safe to call once per session.
func (c *Client) FeedConnect(ctx context.Context) error {
	if c.worker != nil && c.worker.Active() {
		return nil
	}
	if c.worker == nil {
		c.worker = NewFeedWorker(c.wsURL, c.signer)
	}
	c.worker.OnTicks(c.handler)
	return c.worker.Connect(ctx)
}

// FeedDisconnect stops the feed worker if one is running.
func (c *Client) FeedDisconnect() {
	if c.worker != nil {
		c.worker.Disconnect()
		c.worker = nil
	}
}

// FeedActive reports whether the feed socket is currently up.
func (c *Client) FeedActive() bool {
	return c.worker != nil && c.worker.Active()
}

// Subscribe registers one instrument on the feed.
func (c *Client) Subscribe(ctx context.Context, sub domain.FeedSubscription) error {
	if c.worker == nil {
		return domain.ErrNotConnected
	}
	return c.worker.Subscribe(sub)
}

// Unsubscribe removes one instrument from the feed.
func (c *Client) Unsubscribe(ctx context.Context, sub domain.FeedSubscription) error {
	if c.worker == nil {
		return domain.ErrNotConnected
	}
	return c.worker.Unsubscribe(sub)
}

// OnTicks installs the push payload handler. Must be set before FeedConnect.
func (c *Client) OnTicks(h domain.TickHandler) {
	c.handler = h
	if c.worker != nil {
		c.worker.OnTicks(h)
	}
}

// doRequest signs, sends and decodes one API call. Breeze carries request
// parameters in the JSON body even on GET and DELETE.
func (c *Client) doRequest(ctx context.Context, method, path string, body any) (*apiResponse, error) {
	jsonBytes, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewBuffer(jsonBytes))
	if err != nil {
		return nil, err
	}
	for k, v := range c.signer.GenerateHeaders(string(jsonBytes)) {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("breeze request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("breeze api error: status=%d body=%s", resp.StatusCode, string(bodyBytes))
	}

	var apiResp apiResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if err := apiResp.err(); err != nil {
		return nil, err
	}
	return &apiResp, nil
}
