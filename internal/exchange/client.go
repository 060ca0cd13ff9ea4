// Package exchange implements the signed JSON-RPC private API client.
package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/ccruz0/crypto-2.0-sub003/internal/config"
	"github.com/ccruz0/crypto-2.0-sub003/internal/logger"

	"github.com/tidwall/gjson"
)

// Client talks to the exchange's private JSON-RPC API. Every call is signed
// and carries a fixed timeout; there is no internal retrying, the execution
// layer owns retry policy.
type Client struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	httpClient *http.Client
	nowFn      func() time.Time
	nextID     atomic.Int64
}

func NewClient(cfg config.ExchangeConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
		httpClient: &http.Client{Timeout: timeout},
		nowFn:      time.Now,
	}
}

type request struct {
	ID     int64          `json:"id"`
	Method string         `json:"method"`
	APIKey string         `json:"api_key"`
	Params map[string]any `json:"params"`
	Nonce  int64          `json:"nonce"`
	Sig    string         `json:"sig"`
}

// Call sends one signed request. A non-zero body code is returned as
// *APIError regardless of the HTTP status: a 200 whose body encodes an
// error code is the same rejection as an HTTP-level error with that code.
func (c *Client) Call(ctx context.Context, method string, params map[string]any) (gjson.Result, error) {
	if params == nil {
		params = map[string]any{}
	}
	id := c.nextID.Add(1)
	nonce := c.nowFn().UnixMilli()
	req := request{
		ID:     id,
		Method: method,
		APIKey: c.apiKey,
		Params: params,
		Nonce:  nonce,
		Sig:    sign(c.apiSecret, method, id, c.apiKey, params, nonce),
	}
	body, err := json.Marshal(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, bytes.NewReader(body))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("calling %s: %w", method, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("reading %s response: %w", method, err)
	}

	parsed := gjson.ParseBytes(raw)
	code := parsed.Get("code")
	if code.Exists() && code.Int() != CodeOK {
		return gjson.Result{}, &APIError{
			Code:    int(code.Int()),
			Message: parsed.Get("message").String(),
		}
	}
	if resp.StatusCode != http.StatusOK {
		// HTTP error without a parseable body code.
		return gjson.Result{}, fmt.Errorf("%s returned HTTP %d: %s", method, resp.StatusCode, string(raw))
	}
	return parsed.Get("result"), nil
}

// CreateOrder places one order through the primary method.
func (c *Client) CreateOrder(ctx context.Context, params map[string]any) (OrderAck, error) {
	result, err := c.Call(ctx, MethodCreateOrder, params)
	if err != nil {
		return OrderAck{}, err
	}
	return OrderAck{
		OrderID:       result.Get("order_id").String(),
		ClientOrderID: result.Get("client_oid").String(),
	}, nil
}

// CreateOrderList places orders through the batched fallback method. The
// batch envelope wraps the same order params in an order_list array.
func (c *Client) CreateOrderList(ctx context.Context, orders []map[string]any) ([]OrderAck, error) {
	items := make([]any, 0, len(orders))
	for _, o := range orders {
		items = append(items, o)
	}
	result, err := c.Call(ctx, MethodCreateOrderList, map[string]any{
		"contingency_type": "LIST",
		"order_list":       items,
	})
	if err != nil {
		return nil, err
	}
	var acks []OrderAck
	for _, item := range result.Get("result_list").Array() {
		// Individual batch entries carry their own codes.
		if item.Get("code").Exists() && item.Get("code").Int() != CodeOK {
			logger.Warnf("exchange: batch entry rejected: code=%d", item.Get("code").Int())
			continue
		}
		acks = append(acks, OrderAck{
			OrderID:       item.Get("order_id").String(),
			ClientOrderID: item.Get("client_oid").String(),
		})
	}
	if len(acks) == 0 {
		return nil, &APIError{Code: CodeBadRequest, Message: "batch accepted no orders"}
	}
	return acks, nil
}

// GetOrderDetail fetches current order state for status sync.
func (c *Client) GetOrderDetail(ctx context.Context, orderID string) (OrderDetail, error) {
	result, err := c.Call(ctx, MethodGetOrderDetail, map[string]any{"order_id": orderID})
	if err != nil {
		return OrderDetail{}, err
	}
	info := result.Get("order_info")
	return OrderDetail{
		OrderID:      info.Get("order_id").String(),
		Status:       info.Get("status").String(),
		FilledQty:    info.Get("cumulative_quantity").Float(),
		AvgPrice:     info.Get("avg_price").Float(),
		UpdateTimeMs: info.Get("update_time").Int(),
	}, nil
}
